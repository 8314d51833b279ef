package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

func (a *App) Status(ctx context.Context, _ []string) error {
	ctx, cancel := a.call(ctx)
	defer cancel()
	st, err := a.api.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Diary: %s\n", st.Status)
	if st.UnlockedAt != nil {
		fmt.Fprintf(a.out, "Unlocked at: %s\n", st.UnlockedAt.Local().Format(time.DateTime))
	}
	if st.RemainingSeconds > 0 {
		fmt.Fprintf(a.out, "Locks in: %s\n", time.Duration(st.RemainingSeconds)*time.Second)
	}
	return nil
}

func (a *App) Setup(ctx context.Context, _ []string) error {
	password, err := a.newPassword("Diary password")
	if err != nil {
		return err
	}
	hint, err := GetSimpleText(a.reader, "Password hint (optional, stored unencrypted)", a.out)
	if err != nil {
		return err
	}

	req := &rpc.SetupRequest{Password: []byte(password), Hint: hint}
	defer common.WipeByteArray(req.Password)

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.Setup(ctx, req); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Diary ready and unlocked. A forgotten diary password cannot be recovered.")
	return nil
}

func (a *App) Unlock(ctx context.Context, _ []string) error {
	password, err := GetPassword(a.out, "Diary password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.Unlock(ctx, &rpc.UnlockRequest{Password: password}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Diary unlocked")
	return nil
}

func (a *App) Lock(ctx context.Context, _ []string) error {
	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.Lock(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Diary locked")
	return nil
}

func (a *App) Hint(ctx context.Context, _ []string) error {
	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.GetHint(ctx)
	if err != nil {
		return err
	}
	if resp.Hint == "" {
		fmt.Fprintln(a.out, "No hint set")
		return nil
	}
	fmt.Fprintln(a.out, "Hint:", resp.Hint)
	return nil
}

func (a *App) ChangePassword(ctx context.Context, _ []string) error {
	old, err := GetPassword(a.out, "Current diary password")
	if err != nil {
		return err
	}
	next, err := a.newPassword("New diary password")
	if err != nil {
		common.WipeByteArray(old)
		return err
	}

	req := &rpc.ChangePasswordRequest{OldPassword: old, NewPassword: []byte(next)}
	defer common.WipeByteArray(req.OldPassword)
	defer common.WipeByteArray(req.NewPassword)

	// Re-encrypting a large diary takes a while.
	ctx, cancel := context.WithTimeout(ctx, 10*a.config.RequestTimeout)
	defer cancel()
	if err := a.api.ChangePassword(ctx, req); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Diary password changed")
	return nil
}

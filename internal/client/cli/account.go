package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

func (a *App) Register(ctx context.Context, _ []string) error {
	userName, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	password, err := a.newPassword("Login password")
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	if _, err := a.api.Register(ctx, &rpc.RegisterRequest{Username: userName, Password: password}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Registered. You can login now.")
	return nil
}

func (a *App) Login(ctx context.Context, _ []string) error {
	userName, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out, "Login password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.Login(ctx, userName, string(password)); err != nil {
		return err
	}
	a.setUserName(userName)
	fmt.Fprintln(a.out, "Logged in. Type 'unlock' to open your diary.")
	return nil
}

func (a *App) Logout(ctx context.Context, _ []string) error {
	ctx, cancel := a.call(ctx)
	defer cancel()
	err := a.api.Logout(ctx)
	a.setUserName("")
	if err == nil {
		fmt.Fprintln(a.out, "Logged out")
	}
	return err
}

// ChangeLoginPassword changes the account password. The diary password is
// separate and stays as it is.
func (a *App) ChangeLoginPassword(ctx context.Context, _ []string) error {
	current, err := GetPassword(a.out, "Current login password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)
	next, err := a.newPassword("New login password")
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.ChangeLoginPassword(ctx, &rpc.ChangeLoginPasswordRequest{
		CurrentPassword: string(current), NewPassword: next,
	}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Login password changed.")
	return nil
}

// newPassword asks twice and returns the password once both agree.
func (a *App) newPassword(prompt string) (string, error) {
	first, err := GetPassword(a.out, prompt)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)
	second, err := GetPassword(a.out, "Repeat "+prompt)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func (a *App) SetupRecovery(ctx context.Context, _ []string) error {
	questions, err := GetList(a.reader, "Security questions, one per line", a.out)
	if err != nil {
		return err
	}
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		ans, err := GetSimpleText(a.reader, "Answer: "+q, a.out)
		if err != nil {
			return err
		}
		answers = append(answers, ans)
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.SetupRecovery(ctx, &rpc.SetupRecoveryRequest{Questions: questions, Answers: answers})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Recovery key (store it somewhere safe, it is shown only once):")
	fmt.Fprintln(a.out, resp.RecoveryKey)
	fmt.Fprintln(a.out, "It resets the login password only. The diary password cannot be recovered.")
	return nil
}

func (a *App) ResetWithAnswers(ctx context.Context, _ []string) error {
	userName, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}

	qctx, cancel := a.call(ctx)
	resp, err := a.api.GetRecoveryQuestions(qctx, userName)
	cancel()
	if err != nil {
		return err
	}

	answers := make([]string, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		ans, err := GetSimpleText(a.reader, q, a.out)
		if err != nil {
			return err
		}
		answers = append(answers, ans)
	}
	password, err := a.newPassword("New login password")
	if err != nil {
		return err
	}

	ctx, cancel = a.call(ctx)
	defer cancel()
	if err := a.api.ResetPasswordWithAnswers(ctx, &rpc.ResetWithAnswersRequest{
		Username: userName, Answers: answers, NewPassword: password,
	}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Login password reset.")
	return nil
}

func (a *App) ResetWithRecoveryKey(ctx context.Context, _ []string) error {
	userName, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	key, err := GetSimpleText(a.reader, "Recovery key", a.out)
	if err != nil {
		return err
	}
	password, err := a.newPassword("New login password")
	if err != nil {
		return err
	}

	ctx, cancel := a.call(ctx)
	defer cancel()
	if err := a.api.ResetPasswordWithRecoveryKey(ctx, &rpc.ResetWithRecoveryKeyRequest{
		Username: userName, RecoveryKey: key, NewPassword: password,
	}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Login password reset.")
	return nil
}

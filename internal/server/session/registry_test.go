package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaterials struct {
	mu      sync.Mutex
	byUser  map[string]models.KeyMaterial
	gets    atomic.Int32
	getErr  error
	saveErr error
}

func newFakeMaterials() *fakeMaterials {
	return &fakeMaterials{byUser: map[string]models.KeyMaterial{}}
}

func (f *fakeMaterials) Get(ctx context.Context, userID string) (*models.KeyMaterial, error) {
	f.gets.Add(1)
	if f.getErr != nil {
		return nil, f.getErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byUser[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &m, nil
}

func (f *fakeMaterials) Create(ctx context.Context, m *models.KeyMaterial) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byUser[m.UserID]; ok {
		return common.ErrAlreadySetUp
	}
	f.byUser[m.UserID] = *m
	return nil
}

func (f *fakeMaterials) Replace(ctx context.Context, m *models.KeyMaterial) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byUser[m.UserID]; !ok {
		return common.ErrNotSetUp
	}
	f.byUser[m.UserID] = *m
	return nil
}

var t0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *fakeMaterials, *timex.ManualClock) {
	t.Helper()
	mats := newFakeMaterials()
	clock := timex.NewManualClock(t0)
	r := NewRegistry(mats, Options{Iterations: 1000, Clock: clock})
	return r, mats, clock
}

func status(t *testing.T, r *Registry, principal string) Status {
	t.Helper()
	info, err := r.Status(context.Background(), principal)
	require.NoError(t, err)
	return info.Status
}

func keyOf(t *testing.T, r *Registry, principal string) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, r.WithKey(context.Background(), principal, func(key []byte) error {
		out = append([]byte(nil), key...)
		return nil
	}))
	return out
}

func TestRegistry_Lifecycle(t *testing.T) {
	r, mats, _ := newTestRegistry(t)
	ctx := context.Background()

	assert.Equal(t, StatusNotSetUp, status(t, r, "alice"))

	require.NoError(t, r.Setup(ctx, "alice", []byte("correct"), "the usual"))
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"))
	stored := mats.byUser["alice"]
	assert.Len(t, stored.Salt, cryptox.SaltSize)
	assert.Equal(t, 1000, stored.Iterations)
	assert.Equal(t, "the usual", stored.Hint)

	k1 := keyOf(t, r, "alice")

	r.Lock(ctx, "alice")
	assert.Equal(t, StatusLocked, status(t, r, "alice"))

	require.NoError(t, r.Unlock(ctx, "alice", []byte("correct")))
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"))
	assert.Equal(t, k1, keyOf(t, r, "alice"), "unlock re-derives the same key")
}

func TestRegistry_SetupTwiceRejected(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	require.ErrorIs(t, r.Setup(ctx, "alice", []byte("pw"), ""), common.ErrAlreadySetUp)

	r.Lock(ctx, "alice")
	require.ErrorIs(t, r.Setup(ctx, "alice", []byte("other"), ""), common.ErrAlreadySetUp)
}

func TestRegistry_WrongPassword(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Setup(ctx, "alice", []byte("correct"), ""))
	r.Lock(ctx, "alice")

	require.ErrorIs(t, r.Unlock(ctx, "alice", []byte("wrong")), common.ErrWrongPassword)
	assert.Equal(t, StatusLocked, status(t, r, "alice"))

	err := r.WithKey(ctx, "alice", func([]byte) error { t.Fatal("fn must not run"); return nil })
	require.ErrorIs(t, err, common.ErrDiaryLocked)
}

func TestRegistry_UnlockWhileUnlockedVerifiesPassword(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("correct"), ""))

	require.ErrorIs(t, r.Unlock(ctx, "alice", []byte("wrong")), common.ErrWrongPassword)
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"), "failed re-unlock does not lock")
	require.NoError(t, r.Unlock(ctx, "alice", []byte("correct")))
}

func TestRegistry_UnlockNotSetUp(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.ErrorIs(t, r.Unlock(context.Background(), "ghost", []byte("pw")), common.ErrNotSetUp)
}

func TestRegistry_LockIsIdempotent(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	r.Lock(ctx, "nobody")
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	r.Lock(ctx, "alice")
	r.Lock(ctx, "alice")
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
}

func TestRegistry_SlidingTimeout(t *testing.T) {
	r, _, clock := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))

	clock.Advance(20 * time.Minute)
	keyOf(t, r, "alice") // activity at T0+20
	clock.Advance(20 * time.Minute)

	info, err := r.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusUnlocked, info.Status)
	assert.Equal(t, int64(10*60), info.RemainingSeconds)
	assert.Equal(t, t0, info.UnlockedAt)

	clock.Advance(11 * time.Minute)
	err = r.WithKey(ctx, "alice", func([]byte) error { return nil })
	require.ErrorIs(t, err, common.ErrDiaryLocked)
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
}

func TestRegistry_TimeoutAfter31Minutes(t *testing.T) {
	r, _, clock := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))

	clock.Advance(31 * time.Minute)
	called := false
	err := r.WithKey(ctx, "alice", func([]byte) error { called = true; return nil })
	require.ErrorIs(t, err, common.ErrDiaryLocked)
	assert.False(t, called)
}

func TestRegistry_Sweep(t *testing.T) {
	r, _, clock := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	require.NoError(t, r.Setup(ctx, "bob", []byte("pw"), ""))

	clock.Advance(29 * time.Minute)
	keyOf(t, r, "bob")
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, r.Sweep(ctx))
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	assert.Equal(t, StatusUnlocked, status(t, r, "bob"))
	assert.Equal(t, 0, r.Sweep(ctx))
}

func TestRegistry_LockAll(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	require.NoError(t, r.Setup(ctx, "bob", []byte("pw"), ""))
	r.Lock(ctx, "bob")

	assert.Equal(t, 1, r.LockAll(ctx))
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	assert.Equal(t, StatusLocked, status(t, r, "bob"))
	assert.ErrorIs(t, r.WithKey(ctx, "alice", func([]byte) error { return nil }), common.ErrDiaryLocked)
}

func TestRegistry_RunSweeperStopsOnCancel(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRegistry_PrincipalsAreIsolated(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	require.NoError(t, r.Setup(ctx, "bob", []byte("pw"), ""))

	assert.NotEqual(t, keyOf(t, r, "alice"), keyOf(t, r, "bob"), "different salts")

	r.Lock(ctx, "alice")
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	assert.Equal(t, StatusUnlocked, status(t, r, "bob"))

	// bob's password does not open alice's verifier even if equal bytes
	require.NoError(t, r.Unlock(ctx, "alice", []byte("pw")))
}

func TestRegistry_LogoutForgetsState(t *testing.T) {
	r, mats, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))

	r.Logout(ctx, "alice")
	r.mu.Lock()
	_, ok := r.states["alice"]
	r.mu.Unlock()
	assert.False(t, ok)

	before := mats.gets.Load()
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	assert.Equal(t, before+1, mats.gets.Load(), "fresh state re-reads material once")
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	assert.Equal(t, before+1, mats.gets.Load())
}

func TestRegistry_UnlockWaitingOnLogoutLandsInLiveState(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	r.Lock(ctx, "alice")

	// hold the transition the way Logout does while an unlock queues up
	st := r.acquire("alice")
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- r.Unlock(ctx, "alice", []byte("pw"))
	}()
	<-started
	time.Sleep(20 * time.Millisecond)
	r.retire(ctx, st)
	st.transition.Unlock()

	require.NoError(t, <-done)
	assert.False(t, st.unlocked(), "retired state never receives a key")
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"))
	assert.Equal(t, 1, r.LockAll(ctx), "the unlocked diary is reachable")
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
}

func TestRegistry_WithKeyFnErrorAndPanic(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))

	boom := errors.New("boom")
	require.ErrorIs(t, r.WithKey(ctx, "alice", func([]byte) error { return boom }), boom)

	assert.Panics(t, func() {
		_ = r.WithKey(ctx, "alice", func(key []byte) error {
			panic("inside")
		})
	})

	// cache itself is intact
	assert.Len(t, keyOf(t, r, "alice"), cryptox.KeySize)
}

func TestRegistry_UnlockSettlesDespiteCancelAfterLoad(t *testing.T) {
	mats := newFakeMaterials()
	r := NewRegistry(mats, Options{Iterations: 1000, Clock: timex.NewManualClock(t0)})
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	r.Lock(ctx, "alice")

	cctx, cancel := context.WithCancel(ctx)
	wrapped := &cancelAfterGet{MaterialStore: mats, cancel: cancel}
	r.materials = wrapped

	require.NoError(t, r.Unlock(cctx, "alice", []byte("pw")))
	require.Error(t, cctx.Err())
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"))
}

type cancelAfterGet struct {
	MaterialStore
	cancel context.CancelFunc
}

func (c *cancelAfterGet) Get(ctx context.Context, userID string) (*models.KeyMaterial, error) {
	m, err := c.MaterialStore.Get(ctx, userID)
	c.cancel()
	return m, err
}

func TestRegistry_ConcurrentUnlocksSerialize(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	r.Lock(ctx, "alice")

	var wg sync.WaitGroup
	var okCount, wrongCount atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pw := "pw"
			if i%2 == 1 {
				pw = "nope"
			}
			switch err := r.Unlock(ctx, "alice", []byte(pw)); {
			case err == nil:
				okCount.Add(1)
			case errors.Is(err, common.ErrWrongPassword):
				wrongCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(4), okCount.Load())
	assert.Equal(t, int32(4), wrongCount.Load())
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"))
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("pw"), ""))
	want := keyOf(t, r, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := r.WithKey(ctx, "alice", func(key []byte) error {
					if string(key) != string(want) {
						return errors.New("key mismatch")
					}
					return nil
				})
				if err != nil && !errors.Is(err, common.ErrDiaryLocked) {
					t.Errorf("WithKey: %v", err)
				}
			}
		}()
	}
	r.Lock(ctx, "alice")
	wg.Wait()
}

func TestRegistry_ChangePassword(t *testing.T) {
	r, mats, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("old"), "hint"))
	oldKey := keyOf(t, r, "alice")
	oldSalt := mats.byUser["alice"].Salt

	var gotOld, gotNew []byte
	err := r.ChangePassword(ctx, "alice", []byte("old"), []byte("new"), func(ctx context.Context, o, n []byte, next *models.KeyMaterial) error {
		gotOld = append([]byte(nil), o...)
		gotNew = append([]byte(nil), n...)
		assert.Equal(t, StatusLocked, status(t, r, "alice"), "locked during re-encryption")
		assert.Equal(t, "alice", next.UserID)
		assert.Equal(t, "hint", next.Hint)
		return mats.Replace(ctx, next)
	})
	require.NoError(t, err)

	assert.Equal(t, oldKey, gotOld)
	assert.Equal(t, gotNew, keyOf(t, r, "alice"))
	assert.NotEqual(t, oldSalt, mats.byUser["alice"].Salt)
	assert.Equal(t, "hint", mats.byUser["alice"].Hint)

	r.Lock(ctx, "alice")
	require.ErrorIs(t, r.Unlock(ctx, "alice", []byte("old")), common.ErrWrongPassword)
	require.NoError(t, r.Unlock(ctx, "alice", []byte("new")))
}

func TestRegistry_ChangePasswordWithoutReencrypt(t *testing.T) {
	r, mats, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("old"), ""))
	salt := mats.byUser["alice"].Salt

	require.NoError(t, r.ChangePassword(ctx, "alice", []byte("old"), []byte("new"), nil))
	assert.NotEqual(t, salt, mats.byUser["alice"].Salt)
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"))

	r.Lock(ctx, "alice")
	require.NoError(t, r.Unlock(ctx, "alice", []byte("new")))
}

func TestRegistry_ChangePasswordFailures(t *testing.T) {
	r, mats, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Setup(ctx, "alice", []byte("old"), ""))
	called := false
	noop := func(context.Context, []byte, []byte, *models.KeyMaterial) error { called = true; return nil }

	require.ErrorIs(t, r.ChangePassword(ctx, "alice", []byte("bad"), []byte("new"), noop), common.ErrWrongPassword)
	assert.Equal(t, StatusUnlocked, status(t, r, "alice"), "wrong old password changes nothing")

	require.ErrorIs(t, r.ChangePassword(ctx, "ghost", []byte("x"), []byte("y"), noop), common.ErrNotSetUp)
	assert.False(t, called)

	salt := mats.byUser["alice"].Salt
	err := r.ChangePassword(ctx, "alice", []byte("old"), []byte("new"), func(context.Context, []byte, []byte, *models.KeyMaterial) error {
		return errors.New("store down")
	})
	require.ErrorContains(t, err, "store down")
	assert.Equal(t, salt, mats.byUser["alice"].Salt)
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	require.NoError(t, r.Unlock(ctx, "alice", []byte("old")))

	mats.saveErr = errors.New("disk full")
	require.ErrorContains(t, r.ChangePassword(ctx, "alice", []byte("old"), []byte("new"), nil), "disk full")
	assert.Equal(t, salt, mats.byUser["alice"].Salt)
	assert.Equal(t, StatusLocked, status(t, r, "alice"))
	mats.saveErr = nil
	require.NoError(t, r.Unlock(ctx, "alice", []byte("old")))
}

func TestRegistry_MaterialErrorsPropagate(t *testing.T) {
	r, mats, _ := newTestRegistry(t)
	mats.getErr = errors.New("db down")

	_, err := r.Status(context.Background(), "alice")
	require.ErrorContains(t, err, "db down")
	require.ErrorContains(t, r.Setup(context.Background(), "alice", []byte("pw"), ""), "db down")

	mats.getErr = nil
	mats.saveErr = errors.New("disk full")
	require.ErrorContains(t, r.Setup(context.Background(), "alice", []byte("pw"), ""), "disk full")
	assert.Equal(t, StatusNotSetUp, status(t, r, "alice"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not_set_up", StatusNotSetUp.String())
	assert.Equal(t, "locked", StatusLocked.String())
	assert.Equal(t, "unlocked", StatusUnlocked.String())
	assert.Equal(t, "unknown", Status(9).String())
}

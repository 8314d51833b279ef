// Package session implements the diary lock: a per-principal state machine
// NotSetUp -> Locked <-> Unlocked that holds the derived diary key in sealed
// memory for a sliding inactivity window.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/logging"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/timex"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// MaterialStore loads and saves diary key material.
// keymaterial.Repository satisfies it.
type MaterialStore interface {
	Get(ctx context.Context, userID string) (*models.KeyMaterial, error)
	Create(ctx context.Context, m *models.KeyMaterial) error
	Replace(ctx context.Context, m *models.KeyMaterial) error
}

// ReencryptFunc rewrites every envelope of a principal from oldKey to newKey
// and stores next as the principal's key material in the same commit. Both
// keys are only valid for the duration of the call. On error nothing it
// committed may remain visible.
type ReencryptFunc func(ctx context.Context, oldKey, newKey []byte, next *models.KeyMaterial) error

type Options struct {
	Timeout    time.Duration
	Iterations int
	Clock      timex.Clock
	Logger     logging.Logger
}

// Registry owns the lock state of every principal in the process. Create one
// and pass it to whoever needs it.
type Registry struct {
	materials  MaterialStore
	timeout    time.Duration
	iterations int
	clock      timex.Clock
	log        logging.Logger

	mu     sync.Mutex
	states map[string]*State
}

func NewRegistry(materials MaterialStore, opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Iterations <= 0 {
		opts.Iterations = cryptox.DefaultIterations
	}
	if opts.Clock == nil {
		opts.Clock = timex.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Registry{
		materials:  materials,
		timeout:    opts.Timeout,
		iterations: opts.Iterations,
		clock:      opts.Clock,
		log:        opts.Logger.With("module", "session"),
		states:     make(map[string]*State),
	}
}

func (r *Registry) state(principal string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[principal]
	if !ok {
		st = newState(principal)
		r.states[principal] = st
	}
	return st
}

// acquire returns the principal's live state with its transition lock held.
// A state retired by Logout while the caller waited for it is skipped, so a
// key is never cached where Sweep and LockAll cannot see it.
func (r *Registry) acquire(principal string) *State {
	for {
		st := r.state(principal)
		st.transition.Lock()
		if !st.retired {
			return st
		}
		st.transition.Unlock()
	}
}

func (r *Registry) loadMaterial(ctx context.Context, principal string) (*models.KeyMaterial, error) {
	m, err := r.materials.Get(ctx, principal)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNotSetUp
		}
		return nil, fmt.Errorf("load key material: %w", err)
	}
	return m, nil
}

// Status reports the principal's lock state without exposing the key. It
// applies the inactivity timeout first.
func (r *Registry) Status(ctx context.Context, principal string) (Info, error) {
	st := r.state(principal)
	now := r.clock.Now()

	if st.expire(now, r.timeout) {
		r.log.Info(ctx, "diary auto-locked", "user_id", principal)
	}

	st.mu.RLock()
	if st.key != nil {
		info := Info{
			Status:           StatusUnlocked,
			UnlockedAt:       st.unlockedAt,
			RemainingSeconds: int64((r.timeout - now.Sub(st.lastActivity)) / time.Second),
		}
		st.mu.RUnlock()
		return info, nil
	}
	setUp := st.setUp
	st.mu.RUnlock()

	if setUp {
		return Info{Status: StatusLocked}, nil
	}

	if _, err := r.loadMaterial(ctx, principal); err != nil {
		if errors.Is(err, common.ErrNotSetUp) {
			return Info{Status: StatusNotSetUp}, nil
		}
		return Info{}, err
	}
	st.mu.Lock()
	st.setUp = true
	st.mu.Unlock()
	return Info{Status: StatusLocked}, nil
}

// Setup creates key material for a principal that has none and leaves the
// diary unlocked.
func (r *Registry) Setup(ctx context.Context, principal string, password []byte, hint string) error {
	st := r.acquire(principal)
	defer st.transition.Unlock()

	if st.unlocked() {
		return common.ErrAlreadySetUp
	}
	if _, err := r.loadMaterial(ctx, principal); err == nil {
		return common.ErrAlreadySetUp
	} else if !errors.Is(err, common.ErrNotSetUp) {
		return err
	}

	salt := cryptox.NewSalt()
	key, err := cryptox.DeriveKey(password, salt, r.iterations)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	verifier, err := cryptox.NewVerifier(key, principal)
	if err != nil {
		return err
	}
	vb, err := verifier.MarshalBinary()
	if err != nil {
		return err
	}

	err = r.materials.Create(ctx, &models.KeyMaterial{
		UserID:     principal,
		Salt:       salt,
		Iterations: r.iterations,
		Verifier:   vb,
		Hint:       hint,
	})
	if err != nil {
		return err
	}

	st.cache(key, r.clock.Now())
	r.log.Info(ctx, "diary set up", "user_id", principal, "iterations", r.iterations)
	return nil
}

// Unlock derives the key from password and checks it against the setup
// verifier. Once material is loaded the derivation runs to completion and
// settles the state even if ctx is cancelled.
func (r *Registry) Unlock(ctx context.Context, principal string, password []byte) error {
	st := r.acquire(principal)
	defer st.transition.Unlock()

	m, err := r.loadMaterial(ctx, principal)
	if err != nil {
		return err
	}

	key, err := r.deriveAndCheck(m, principal, password)
	if err != nil {
		if errors.Is(err, common.ErrWrongPassword) {
			r.log.Warn(ctx, "diary unlock rejected", "user_id", principal)
		}
		return err
	}
	defer common.WipeByteArray(key)

	if st.unlocked() {
		// already open: the password was right, keep the current session
		return nil
	}
	st.cache(key, r.clock.Now())
	r.log.Info(ctx, "diary unlocked", "user_id", principal)
	return nil
}

func (r *Registry) deriveAndCheck(m *models.KeyMaterial, principal string, password []byte) ([]byte, error) {
	key, err := cryptox.DeriveKey(password, m.Salt, m.Iterations)
	if err != nil {
		return nil, err
	}
	verifier := &cryptox.Envelope{}
	if err := verifier.UnmarshalBinary(m.Verifier); err != nil {
		common.WipeByteArray(key)
		return nil, err
	}
	if err := cryptox.CheckVerifier(key, verifier, principal); err != nil {
		common.WipeByteArray(key)
		return nil, err
	}
	return key, nil
}

// Lock discards the cached key. Locking a locked diary does nothing.
func (r *Registry) Lock(ctx context.Context, principal string) {
	st := r.acquire(principal)
	defer st.transition.Unlock()

	if st.drop() {
		r.log.Info(ctx, "diary locked", "user_id", principal)
	}
}

// Logout locks the diary and forgets the principal's state entirely.
func (r *Registry) Logout(ctx context.Context, principal string) {
	st := r.acquire(principal)
	defer st.transition.Unlock()
	r.retire(ctx, st)
}

// retire drops the key of st and removes it from the registry. The caller
// holds st.transition.
func (r *Registry) retire(ctx context.Context, st *State) {
	if st.drop() {
		r.log.Info(ctx, "diary locked", "user_id", st.principal)
	}
	st.retired = true

	r.mu.Lock()
	if r.states[st.principal] == st {
		delete(r.states, st.principal)
	}
	r.mu.Unlock()
}

// WithKey runs fn with a private copy of the principal's key. The copy lives
// in locked, read-only memory and is destroyed when WithKey returns, panics
// included, so fn must neither modify nor retain it.
// It returns common.ErrDiaryLocked, without calling fn, unless the diary is
// unlocked and within its inactivity window. A successful acquisition slides
// the window.
func (r *Registry) WithKey(ctx context.Context, principal string, fn func(key []byte) error) error {
	st := r.state(principal)
	enclave, expired := st.touch(r.clock.Now(), r.timeout)
	if expired {
		r.log.Info(ctx, "diary auto-locked", "user_id", principal)
	}
	if enclave == nil {
		return common.ErrDiaryLocked
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

// ChangePassword re-keys the diary. The old password is verified, the diary
// is locked while reencrypt rewrites every envelope and stores the new
// material, and the diary is left unlocked under the new key. On failure the
// diary stays locked under the old password. A nil reencrypt only replaces
// the material.
func (r *Registry) ChangePassword(ctx context.Context, principal string, oldPassword, newPassword []byte, reencrypt ReencryptFunc) error {
	st := r.acquire(principal)
	defer st.transition.Unlock()

	m, err := r.loadMaterial(ctx, principal)
	if err != nil {
		return err
	}
	oldKey, err := r.deriveAndCheck(m, principal, oldPassword)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(oldKey)

	salt := cryptox.NewSalt()
	newKey, err := cryptox.DeriveKey(newPassword, salt, r.iterations)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(newKey)

	verifier, err := cryptox.NewVerifier(newKey, principal)
	if err != nil {
		return err
	}
	vb, err := verifier.MarshalBinary()
	if err != nil {
		return err
	}

	st.drop()

	next := &models.KeyMaterial{
		UserID:     principal,
		Salt:       salt,
		Iterations: r.iterations,
		Verifier:   vb,
		Hint:       m.Hint,
	}
	if reencrypt == nil {
		err = r.materials.Replace(ctx, next)
	} else {
		err = reencrypt(ctx, oldKey, newKey, next)
	}
	if err != nil {
		r.log.Error(ctx, "diary re-encryption failed", "user_id", principal, "error", err)
		return fmt.Errorf("re-encrypt: %w", err)
	}

	st.cache(newKey, r.clock.Now())
	r.log.Info(ctx, "diary password changed", "user_id", principal)
	return nil
}

// Sweep locks every diary whose inactivity window has passed and returns how
// many were locked.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.clock.Now()
	n := 0
	for _, st := range r.snapshot() {
		if st.expire(now, r.timeout) {
			n++
			r.log.Info(ctx, "diary auto-locked", "user_id", st.principal)
		}
	}
	return n
}

// LockAll locks every diary, e.g. on shutdown, and returns how many were
// unlocked.
func (r *Registry) LockAll(ctx context.Context) int {
	n := 0
	for _, st := range r.snapshot() {
		st.transition.Lock()
		if st.drop() {
			n++
		}
		st.transition.Unlock()
	}
	if n > 0 {
		r.log.Info(ctx, "diaries locked", "count", n)
	}
	return n
}

func (r *Registry) snapshot() []*State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]*State, 0, len(r.states))
	for _, st := range r.states {
		states = append(states, st)
	}
	return states
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Timeout is the inactivity window after which an unlocked diary locks.
func (r *Registry) Timeout() time.Duration { return r.timeout }

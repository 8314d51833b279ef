package session

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"
)

// Status is the lock state of one principal's diary.
type Status int

const (
	StatusNotSetUp Status = iota
	StatusLocked
	StatusUnlocked
)

func (s Status) String() string {
	switch s {
	case StatusNotSetUp:
		return "not_set_up"
	case StatusLocked:
		return "locked"
	case StatusUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Info is what callers may learn about a session. It never carries key
// material.
type Info struct {
	Status           Status
	RemainingSeconds int64
	UnlockedAt       time.Time
}

// State is the lock state for one principal.
//
// transition serializes setup, unlock, lock and password change, and is held
// across key derivation. mu guards only the cached key and timestamps.
type State struct {
	principal  string
	transition sync.Mutex
	retired    bool // set by Logout under transition

	mu           sync.RWMutex
	key          *memguard.Enclave
	setUp        bool
	unlockedAt   time.Time
	lastActivity time.Time
}

func newState(principal string) *State {
	return &State{principal: principal}
}

// cache seals key into an enclave. memguard wipes key in the process.
func (s *State) cache(key []byte, now time.Time) {
	enclave := memguard.NewEnclave(key)
	s.mu.Lock()
	s.key = enclave
	s.setUp = true
	s.unlockedAt = now
	s.lastActivity = now
	s.mu.Unlock()
}

// drop forgets the key. Reports whether one was held.
func (s *State) drop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked()
}

func (s *State) dropLocked() bool {
	had := s.key != nil
	s.key = nil
	s.unlockedAt = time.Time{}
	s.lastActivity = time.Time{}
	return had
}

func (s *State) expiredLocked(now time.Time, timeout time.Duration) bool {
	return s.key != nil && now.Sub(s.lastActivity) > timeout
}

// expire drops the key if the inactivity timeout has passed.
func (s *State) expire(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(now, timeout) {
		return s.dropLocked()
	}
	return false
}

// touch returns the cached key and slides the inactivity window. expired is
// true when this call found the key past its timeout and dropped it.
func (s *State) touch(now time.Time, timeout time.Duration) (key *memguard.Enclave, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiredLocked(now, timeout) {
		s.dropLocked()
		return nil, true
	}
	if s.key == nil {
		return nil, false
	}
	s.lastActivity = now
	return s.key, false
}

func (s *State) unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

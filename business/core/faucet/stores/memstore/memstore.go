// Package memstore provides in memory implementations of the faucet stores.
// The records live for the lifetime of the process which is what a single
// faucet instance needs.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/faucet/business/core/faucet"
)

type challengeEntry struct {
	challenge faucet.Challenge
	expires   time.Time
}

// Challenges is an in memory challenge store.
type Challenges struct {
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]challengeEntry
}

// NewChallenges constructs an empty challenge store. A nil clock defaults
// to time.Now.
func NewChallenges(now func() time.Time) *Challenges {
	if now == nil {
		now = time.Now
	}

	return &Challenges{
		now:     now,
		entries: make(map[string]challengeEntry),
	}
}

// Set stores the challenge for the ttl.
func (s *Challenges) Set(ctx context.Context, ch faucet.Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[ch.SessionID] = challengeEntry{
		challenge: ch,
		expires:   s.now().Add(ttl),
	}

	return nil
}

// Get returns the challenge for the session without removing it.
func (s *Challenges) Get(ctx context.Context, sessionID string) (faucet.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[sessionID]
	if !exists || !s.now().Before(e.expires) {
		return faucet.Challenge{}, faucet.ErrNotFound
	}

	return e.challenge, nil
}

// Take returns the challenge for the session and removes it.
func (s *Challenges) Take(ctx context.Context, sessionID string) (faucet.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[sessionID]
	if !exists {
		return faucet.Challenge{}, faucet.ErrNotFound
	}
	delete(s.entries, sessionID)

	if !s.now().Before(e.expires) {
		return faucet.Challenge{}, faucet.ErrNotFound
	}

	return e.challenge, nil
}

// Delete removes the challenge for the session.
func (s *Challenges) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)

	return nil
}

// Sweep removes the challenges issued before the specified time and the
// ones past their ttl.
func (s *Challenges) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var n int
	for id, e := range s.entries {
		if e.challenge.IssuedAt.Before(olderThan) || !now.Before(e.expires) {
			delete(s.entries, id)
			n++
		}
	}

	return n, nil
}

// Len returns the number of stored challenges.
func (s *Challenges) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// =============================================================================

// Claims is an in memory cooldown store.
type Claims struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewClaims constructs an empty cooldown store.
func NewClaims() *Claims {
	return &Claims{
		last: make(map[string]time.Time),
	}
}

// LastClaim returns the time of the last claim for the key.
func (s *Claims) LastClaim(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, exists := s.last[key]
	if !exists {
		return time.Time{}, faucet.ErrNotFound
	}

	return at, nil
}

// Reserve records a claim for the key unless the key is inside the cooldown.
func (s *Claims) Reserve(ctx context.Context, key string, at time.Time, cooldown time.Duration) (faucet.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.last[key]
	if exists {
		if elapsed := at.Sub(prev); elapsed < cooldown {
			return faucet.Reservation{}, &faucet.CooldownError{Key: key, RetryAfter: cooldown - elapsed}
		}
	}

	s.last[key] = at

	return faucet.Reservation{Key: key, At: at, Prev: prev}, nil
}

// Release undoes a reservation if it is still the current record for the key.
func (s *Claims) Release(ctx context.Context, r faucet.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, exists := s.last[r.Key]; !exists || !at.Equal(r.At) {
		return nil
	}

	if r.Prev.IsZero() {
		delete(s.last, r.Key)
		return nil
	}
	s.last[r.Key] = r.Prev

	return nil
}

// Sweep removes the records last claimed before the specified time.
func (s *Claims) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for key, at := range s.last {
		if at.Before(olderThan) {
			delete(s.last, key)
			n++
		}
	}

	return n, nil
}

// Len returns the number of stored cooldown records.
func (s *Claims) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.last)
}

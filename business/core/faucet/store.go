package faucet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// CooldownError is returned by a ClaimStore when a key already has a claim
// inside the cooldown window.
type CooldownError struct {
	Key        string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (ce *CooldownError) Error() string {
	return fmt.Sprintf("key %q is cooling down for another %s", ce.Key, ce.RetryAfter)
}

// ChallengeStore manages the set of live challenges. Take must be atomic so
// two requests can never both receive the same challenge.
type ChallengeStore interface {
	Set(ctx context.Context, ch Challenge, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (Challenge, error)
	Take(ctx context.Context, sessionID string) (Challenge, error)
	Delete(ctx context.Context, sessionID string) error
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// ClaimStore manages the cooldown records. Reserve must atomically check the
// cooldown and record the claim.
type ClaimStore interface {
	LastClaim(ctx context.Context, key string) (time.Time, error)
	Reserve(ctx context.Context, key string, at time.Time, cooldown time.Duration) (Reservation, error)
	Release(ctx context.Context, r Reservation) error
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

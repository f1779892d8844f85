// Package redisstore provides Redis backed implementations of the faucet
// stores. Every operation that must be atomic is a single command or a
// script so several faucet instances can share one Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ardanlabs/faucet/business/core/faucet"
	"github.com/redis/go-redis/v9"
)

// Set of key prefixes used for the records.
const (
	challengePrefix = "faucet:challenge:"
	claimPrefix     = "faucet:claim:"
)

// Open parses the url, connects and checks the server is reachable.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// =============================================================================

// Challenges is a Redis challenge store. Records expire through the Redis
// key ttl so there is nothing for Sweep to do.
type Challenges struct {
	client redis.UniversalClient
}

// NewChallenges constructs a challenge store for the client.
func NewChallenges(client redis.UniversalClient) *Challenges {
	return &Challenges{client: client}
}

// Set stores the challenge for the ttl.
func (s *Challenges) Set(ctx context.Context, ch faucet.Challenge, ttl time.Duration) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, challengePrefix+ch.SessionID, data, ttl).Err()
}

// Get returns the challenge for the session without removing it.
func (s *Challenges) Get(ctx context.Context, sessionID string) (faucet.Challenge, error) {
	return decode(s.client.Get(ctx, challengePrefix+sessionID))
}

// Take returns the challenge for the session and removes it.
func (s *Challenges) Take(ctx context.Context, sessionID string) (faucet.Challenge, error) {
	return decode(s.client.GetDel(ctx, challengePrefix+sessionID))
}

// Delete removes the challenge for the session.
func (s *Challenges) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, challengePrefix+sessionID).Err()
}

// Sweep is a no-op since Redis expires the records.
func (s *Challenges) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func decode(cmd *redis.StringCmd) (faucet.Challenge, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return faucet.Challenge{}, faucet.ErrNotFound
		}
		return faucet.Challenge{}, err
	}

	var ch faucet.Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return faucet.Challenge{}, fmt.Errorf("decoding challenge: %w", err)
	}

	return ch, nil
}

// =============================================================================

// reserveScript records the claim time unless the key is cooling down.
// Returns {1, prev} on success and {0, retryAfterMillis} when cooling down.
var reserveScript = redis.NewScript(`
local prev = tonumber(redis.call("GET", KEYS[1]) or "0")
local at = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
if prev > 0 and at - prev < cooldown then
	return {0, cooldown - (at - prev)}
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return {1, prev}
`)

// releaseScript restores the previous claim time if the reservation is
// still the current record.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == "0" then
	redis.call("DEL", KEYS[1])
else
	redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
end
return 1
`)

// Claims is a Redis cooldown store. Claim times are stored as unix
// milliseconds and records expire after the retention window.
type Claims struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewClaims constructs a cooldown store for the client. A retention shorter
// than the cooldown keeps the records for twice the cooldown.
func NewClaims(client redis.UniversalClient, retention time.Duration) *Claims {
	return &Claims{
		client:    client,
		retention: retention,
	}
}

// LastClaim returns the time of the last claim for the key.
func (s *Claims) LastClaim(ctx context.Context, key string) (time.Time, error) {
	v, err := s.client.Get(ctx, claimPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, faucet.ErrNotFound
		}
		return time.Time{}, err
	}

	return time.UnixMilli(v), nil
}

// Reserve records a claim for the key unless the key is inside the cooldown.
func (s *Claims) Reserve(ctx context.Context, key string, at time.Time, cooldown time.Duration) (faucet.Reservation, error) {
	ttl := s.retention
	if ttl < cooldown {
		ttl = 2 * cooldown
	}

	args := []any{at.UnixMilli(), cooldown.Milliseconds(), ttl.Milliseconds()}

	res, err := reserveScript.Run(ctx, s.client, []string{claimPrefix + key}, args...).Int64Slice()
	if err != nil {
		return faucet.Reservation{}, fmt.Errorf("reserve: %w", err)
	}
	if len(res) != 2 {
		return faucet.Reservation{}, fmt.Errorf("reserve: unexpected reply %v", res)
	}

	if res[0] == 0 {
		return faucet.Reservation{}, &faucet.CooldownError{Key: key, RetryAfter: time.Duration(res[1]) * time.Millisecond}
	}

	r := faucet.Reservation{
		Key: key,
		At:  time.UnixMilli(at.UnixMilli()),
	}
	if res[1] > 0 {
		r.Prev = time.UnixMilli(res[1])
	}

	return r, nil
}

// Release undoes a reservation if it is still the current record for the key.
func (s *Claims) Release(ctx context.Context, r faucet.Reservation) error {
	var prev int64
	if !r.Prev.IsZero() {
		prev = r.Prev.UnixMilli()
	}

	args := []any{strconv.FormatInt(r.At.UnixMilli(), 10), strconv.FormatInt(prev, 10)}

	if err := releaseScript.Run(ctx, s.client, []string{claimPrefix + r.Key}, args...).Err(); err != nil {
		return fmt.Errorf("release: %w", err)
	}

	return nil
}

// Sweep is a no-op since Redis expires the records.
func (s *Claims) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

// Package faucet implements the proof of work gated faucet. Challenges are
// issued to clients, solved on the client side and presented back with a
// claim. A claim that passes every check is paid out of the treasury ledger
// once per cooldown window.
package faucet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/faucet/foundation/ledger"
	"github.com/ardanlabs/faucet/foundation/pow"
	"go.uber.org/zap"
)

// Set of default values used when a config value is not provided.
const (
	DefaultDifficulty         = 4
	DefaultCooldown           = 24 * time.Hour
	DefaultChallengeRetention = 15 * time.Minute
	DefaultChallengeValidity  = 10 * time.Minute
	DefaultSweepInterval      = time.Hour
)

// Set of random byte lengths for the challenge values.
const (
	sessionIDBytes = 16
	challengeBytes = 32
)

// EventHandler defines a function that is called when events
// occur in the processing of challenges and claims.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct the Core.
// A nil Ledger means the faucet is not configured and every claim fails
// with ServiceUnavailable.
type Config struct {
	Log                *zap.SugaredLogger
	Ledger             Ledger
	Challenges         ChallengeStore
	Claims             ClaimStore
	DripAmount         *big.Int
	Difficulty         int
	Cooldown           time.Duration
	CooldownKey        KeyPolicy
	ChallengeRetention time.Duration
	ChallengeValidity  time.Duration
	ClaimRetention     time.Duration
	WaitConfirm        bool
	ConfirmTimeout     time.Duration
	EvHandler          EventHandler
	Now                func() time.Time
}

// Core manages the set of APIs for the faucet.
type Core struct {
	log            *zap.SugaredLogger
	ledger         Ledger
	challenges     ChallengeStore
	claims         ClaimStore
	drip           *big.Int
	difficulty     int
	cooldown       time.Duration
	keyPolicy      KeyPolicy
	retention      time.Duration
	validity       time.Duration
	claimRetention time.Duration
	waitConfirm    bool
	confirmTimeout time.Duration
	evHandler      EventHandler
	now            func() time.Time
}

// NewCore constructs a core for faucet api access.
func NewCore(cfg Config) (*Core, error) {
	if cfg.Log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Challenges == nil || cfg.Claims == nil {
		return nil, errors.New("challenge and claim stores are required")
	}
	if cfg.DripAmount == nil || cfg.DripAmount.Sign() <= 0 {
		return nil, errors.New("drip amount must be greater than zero")
	}
	if cfg.Difficulty < 0 || cfg.Difficulty > pow.MaxDifficulty {
		return nil, fmt.Errorf("difficulty must be between 0 and %d", pow.MaxDifficulty)
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.CooldownKey == "" {
		cfg.CooldownKey = KeyBoth
	}
	if cfg.ChallengeRetention <= 0 {
		cfg.ChallengeRetention = DefaultChallengeRetention
	}
	if cfg.ChallengeValidity <= 0 {
		cfg.ChallengeValidity = DefaultChallengeValidity
	}
	if cfg.ChallengeValidity > cfg.ChallengeRetention {
		return nil, errors.New("challenge validity must not exceed the challenge retention")
	}
	if cfg.ClaimRetention < cfg.Cooldown {
		cfg.ClaimRetention = 2 * cfg.Cooldown
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	core := Core{
		log:            cfg.Log,
		ledger:         cfg.Ledger,
		challenges:     cfg.Challenges,
		claims:         cfg.Claims,
		drip:           new(big.Int).Set(cfg.DripAmount),
		difficulty:     cfg.Difficulty,
		cooldown:       cfg.Cooldown,
		keyPolicy:      cfg.CooldownKey,
		retention:      cfg.ChallengeRetention,
		validity:       cfg.ChallengeValidity,
		claimRetention: cfg.ClaimRetention,
		waitConfirm:    cfg.WaitConfirm,
		confirmTimeout: cfg.ConfirmTimeout,
		evHandler:      cfg.EvHandler,
		now:            cfg.Now,
	}

	return &core, nil
}

// Configured reports whether a treasury ledger is available.
func (c *Core) Configured() bool {
	return c.ledger != nil
}

// IssueChallenge generates a new challenge, stores it and returns it to the
// caller. Challenges past the retention window are swept on the way out.
func (c *Core) IssueChallenge(ctx context.Context) (Challenge, error) {
	sessionID, err := randomHex(sessionIDBytes)
	if err != nil {
		return Challenge{}, fmt.Errorf("generating session id: %w", err)
	}

	challenge, err := randomHex(challengeBytes)
	if err != nil {
		return Challenge{}, fmt.Errorf("generating challenge: %w", err)
	}

	ch := Challenge{
		SessionID:  sessionID,
		Challenge:  challenge,
		Difficulty: c.difficulty,
		IssuedAt:   c.now(),
	}

	if err := c.challenges.Set(ctx, ch, c.retention); err != nil {
		return Challenge{}, fmt.Errorf("storing challenge: %w", err)
	}

	c.evHandler("faucet: IssueChallenge: session[%s] difficulty[%d]", ch.SessionID, ch.Difficulty)
	challengesIssued.Inc()

	n, err := c.challenges.Sweep(ctx, ch.IssuedAt.Add(-c.retention))
	switch {
	case err != nil:
		c.log.Errorw("issue challenge", "status", "sweep failed", "ERROR", err)
	case n > 0:
		c.evHandler("faucet: IssueChallenge: swept[%d] expired challenges", n)
		recordsSwept.WithLabelValues("challenges").Add(float64(n))
	}

	return ch, nil
}

// Info returns the current status of the faucet. A failure to read the
// treasury balance leaves the balance empty.
func (c *Core) Info(ctx context.Context) Info {
	info := Info{
		Configured: c.ledger != nil,
		DripAmount: new(big.Int).Set(c.drip),
		Cooldown:   c.cooldown,
		Difficulty: c.difficulty,
	}

	if c.ledger == nil {
		return info
	}

	info.Address = c.ledger.Address()

	balance, err := c.ledger.Balance(ctx)
	if err != nil {
		c.log.Infow("info", "status", "balance unavailable", "reason", ledger.Classify(err), "ERROR", err)
		return info
	}
	info.Balance = balance

	return info
}

// SweepClaims removes the cooldown records that are older than the claim
// retention window.
func (c *Core) SweepClaims(ctx context.Context) (int, error) {
	n, err := c.claims.Sweep(ctx, c.now().Add(-c.claimRetention))
	if err != nil {
		return 0, fmt.Errorf("sweeping claims: %w", err)
	}

	if n > 0 {
		c.evHandler("faucet: SweepClaims: swept[%d] cooldown records", n)
		recordsSwept.WithLabelValues("claims").Add(float64(n))
	}

	return n, nil
}

// =============================================================================

// randomHex returns n bytes from the crypto random source, hex encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

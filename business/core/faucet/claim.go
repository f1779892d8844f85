package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/faucet/foundation/ledger"
	"github.com/ardanlabs/faucet/foundation/pow"
	"github.com/ardanlabs/faucet/foundation/validate"
)

// Claim validates the claim and, when every check passes, transfers the drip
// amount from the treasury to the address. The checks run in a fixed order
// and the first failure is returned as an *Error.
func (c *Core) Claim(ctx context.Context, req ClaimRequest) (Receipt, error) {
	rcpt, err := c.claim(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		c.evHandler("faucet: Claim: REJECTED: session[%s] address[%s]: %s", req.SessionID, req.Address, err)
	}
	claimsTotal.WithLabelValues(outcome).Inc()

	return rcpt, err
}

func (c *Core) claim(ctx context.Context, req ClaimRequest) (Receipt, error) {

	// Nothing can be paid out without a treasury.
	if c.ledger == nil {
		return Receipt{}, &Error{Kind: ServiceUnavailable}
	}

	if err := validate.Address(req.Address); err != nil {
		return Receipt{}, &Error{Kind: InvalidAddress, Err: err}
	}

	now := c.now()
	keys := c.keyPolicy.cooldownKeys(req)

	c.evHandler("faucet: Claim: check cooldown: address[%s] keys%v", req.Address, keys)

	wait, err := c.cooldownRemaining(ctx, keys, now)
	if err != nil {
		return Receipt{}, unknown(err)
	}
	if wait > 0 {
		return Receipt{}, &Error{Kind: RateLimited, RetryAfter: wait}
	}

	c.evHandler("faucet: Claim: take challenge: session[%s]", req.SessionID)

	// Taking the challenge removes it from the store. Only one request can
	// hold a given session from here on.
	ch, err := c.challenges.Take(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Receipt{}, &Error{Kind: InvalidSession}
		}
		return Receipt{}, unknown(fmt.Errorf("take challenge: %w", err))
	}

	if now.Sub(ch.IssuedAt) > c.validity {
		return Receipt{}, &Error{Kind: ChallengeExpired}
	}

	// The difficulty stored with the challenge is used, never one provided
	// by the client.
	c.evHandler("faucet: Claim: verify proof: session[%s] nonce[%d] difficulty[%d]", ch.SessionID, req.Nonce, ch.Difficulty)

	if !pow.Verify(ch.Challenge, req.Nonce, ch.Difficulty) {
		c.restore(ctx, ch)
		return Receipt{}, &Error{Kind: InvalidProof}
	}

	// No transfer was attempted so an unreachable treasury is reported as
	// unavailable.
	balance, err := c.ledger.Balance(ctx)
	if err != nil {
		c.restore(ctx, ch)
		return Receipt{}, &Error{Kind: ServiceUnavailable, Err: fmt.Errorf("treasury balance: %w", err)}
	}
	if balance.Cmp(c.drip) < 0 {
		c.restore(ctx, ch)
		return Receipt{}, &Error{Kind: FaucetEmpty, Balance: balance}
	}

	// Reserve the cooldown keys before funds move so concurrent claims for
	// the same keys can't both be paid.
	reservations, err := c.reserve(ctx, keys, now)
	if err != nil {
		c.restore(ctx, ch)

		var ce *CooldownError
		if errors.As(err, &ce) {
			return Receipt{}, &Error{Kind: RateLimited, RetryAfter: ce.RetryAfter}
		}
		return Receipt{}, unknown(err)
	}

	c.evHandler("faucet: Claim: transfer: address[%s] amount[%s]", req.Address, ledger.FormatEther(c.drip))

	txHash, err := c.ledger.Transfer(ctx, req.Address, c.drip)
	if err != nil {
		c.release(ctx, reservations)
		c.restore(ctx, ch)
		return Receipt{}, &Error{Kind: TransferFailed, Reason: ledger.Classify(err), Err: err}
	}

	c.evHandler("faucet: Claim: SUBMITTED: session[%s] address[%s] tx[%s]", ch.SessionID, req.Address, txHash)
	c.recordDisbursed()

	rcpt := Receipt{
		TxHash: txHash,
		Amount: new(big.Int).Set(c.drip),
	}

	if !c.waitConfirm {
		return rcpt, nil
	}

	return c.confirm(ctx, rcpt)
}

// confirm waits for the transfer to be mined. Running out of time is not a
// failure since the transfer was accepted by the network.
func (c *Core) confirm(ctx context.Context, rcpt Receipt) (Receipt, error) {
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}

	confirmations, err := c.ledger.WaitConfirmed(ctx, rcpt.TxHash)
	if err != nil {
		if ledger.Classify(err) == ledger.ReasonReverted {
			return Receipt{}, &Error{Kind: TransferFailed, Reason: ledger.ReasonReverted, TxHash: rcpt.TxHash, Err: err}
		}

		c.log.Infow("claim", "status", "transfer not confirmed", "tx", rcpt.TxHash, "ERROR", err)
		return rcpt, nil
	}

	c.evHandler("faucet: Claim: CONFIRMED: tx[%s] confirmations[%d]", rcpt.TxHash, confirmations)

	rcpt.Confirmed = true
	rcpt.Confirmations = confirmations

	return rcpt, nil
}

// cooldownRemaining returns the longest wait across the keys.
func (c *Core) cooldownRemaining(ctx context.Context, keys []string, now time.Time) (time.Duration, error) {
	var wait time.Duration

	for _, key := range keys {
		last, err := c.claims.LastClaim(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("last claim: %w", err)
		}

		if elapsed := now.Sub(last); elapsed < c.cooldown {
			if remaining := c.cooldown - elapsed; remaining > wait {
				wait = remaining
			}
		}
	}

	return wait, nil
}

// reserve takes a cooldown reservation for every key. On failure the
// reservations already taken are released.
func (c *Core) reserve(ctx context.Context, keys []string, now time.Time) ([]Reservation, error) {
	reservations := make([]Reservation, 0, len(keys))

	for _, key := range keys {
		r, err := c.claims.Reserve(ctx, key, now, c.cooldown)
		if err != nil {
			c.release(ctx, reservations)
			return nil, err
		}
		reservations = append(reservations, r)
	}

	return reservations, nil
}

// release undoes cooldown reservations. This runs even if the request has
// been cancelled.
func (c *Core) release(ctx context.Context, reservations []Reservation) {
	ctx = context.WithoutCancel(ctx)

	for _, r := range reservations {
		if err := c.claims.Release(ctx, r); err != nil {
			c.log.Errorw("claim", "status", "release reservation", "key", r.Key, "ERROR", err)
		}
	}
}

// restore puts a taken challenge back so the client can submit again.
func (c *Core) restore(ctx context.Context, ch Challenge) {
	ttl := c.retention - c.now().Sub(ch.IssuedAt)
	if ttl <= 0 {
		return
	}

	if err := c.challenges.Set(context.WithoutCancel(ctx), ch, ttl); err != nil {
		c.log.Errorw("claim", "status", "restore challenge", "session", ch.SessionID, "ERROR", err)
	}
}

func (c *Core) recordDisbursed() {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(c.drip), big.NewFloat(1e18)).Float64()
	etherDisbursed.Add(f)
}

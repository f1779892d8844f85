// Package faucetgrp maintains the group of handlers for the faucet api.
package faucetgrp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/faucet/business/core/faucet"
	"github.com/ardanlabs/faucet/business/web/errs"
	"github.com/ardanlabs/faucet/foundation/events"
	"github.com/ardanlabs/faucet/foundation/ledger"
	"github.com/ardanlabs/faucet/foundation/validate"
	"github.com/ardanlabs/faucet/foundation/web"
	"github.com/gorilla/websocket"
	"github.com/sebest/xff"
	"go.uber.org/zap"
)

// Handlers manages the set of faucet endpoints.
type Handlers struct {
	Log        *zap.SugaredLogger
	Core       *faucet.Core
	Evts       *events.Events
	WS         websocket.Upgrader
	TrustProxy bool
}

// Challenge issues a new proof of work challenge.
func (h Handlers) Challenge(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ch, err := h.Core.IssueChallenge(ctx)
	if err != nil {
		return fmt.Errorf("issue challenge: %w", err)
	}

	return web.Respond(ctx, w, toChallengeResponse(ch), http.StatusOK)
}

// Claim pays out the drip for a solved challenge.
func (h Handlers) Claim(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req claimRequest
	if err := web.Decode(r, &req); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrustedCode(err, http.StatusBadRequest, "InvalidRequest", nil)
	}

	clientIP := h.clientIP(r)

	h.Log.Infow("claim", "traceid", v.TraceID, "address", req.Address, "session", req.SessionID, "clientip", clientIP)

	rcpt, err := h.Core.Claim(ctx, faucet.ClaimRequest{
		Address:   req.Address,
		SessionID: req.SessionID,
		Nonce:     *req.Nonce,
		ClientIP:  clientIP,
	})
	if err != nil {
		return toTrusted(w, err)
	}

	return web.Respond(ctx, w, toClaimResponse(rcpt), http.StatusOK)
}

// Info returns the status of the faucet.
func (h Handlers) Info(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toInfoResponse(h.Core.Info(ctx)), http.StatusOK)
}

// Preflight answers a CORS preflight request. The headers are set by the
// cors middleware.
func (h Handlers) Preflight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(evt); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

// clientIP returns the address of the client without the port. Forwarded
// headers are only honored behind a trusted proxy.
func (h Handlers) clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if h.TrustProxy {
		addr = xff.GetRemoteAddr(r)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// toTrusted maps a faucet failure to the status and context the client
// receives. Errors from outside the faucet are returned as is.
func toTrusted(w http.ResponseWriter, err error) error {
	fe := faucet.GetError(err)
	if fe == nil {
		return err
	}

	var status int
	extra := make(map[string]any)

	switch fe.Kind {
	case faucet.ServiceUnavailable:
		status = http.StatusServiceUnavailable

	case faucet.InvalidAddress, faucet.InvalidSession, faucet.ChallengeExpired, faucet.InvalidProof:
		status = http.StatusBadRequest

	case faucet.RateLimited:
		status = http.StatusTooManyRequests
		seconds := int64(math.Ceil(fe.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		extra["retryAfter"] = fe.RetryAfter.Round(time.Second).String()
		extra["retryAfterSeconds"] = seconds

	case faucet.FaucetEmpty:
		status = http.StatusServiceUnavailable
		extra["balance"] = ledger.FormatEther(fe.Balance)

	case faucet.UnknownError:
		status = http.StatusInternalServerError

	case faucet.TransferFailed:
		status = http.StatusServiceUnavailable
		extra["reason"] = string(fe.Reason)
		if fe.TxHash != "" {
			extra["txHash"] = fe.TxHash
		}

	default:
		return errors.Join(err, fmt.Errorf("unmapped kind %q", fe.Kind))
	}

	return errs.NewTrustedCode(err, status, string(fe.Kind), extra)
}

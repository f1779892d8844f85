package faucet

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/faucet/foundation/ledger"
)

// Kind identifies the category of a failed faucet operation.
type Kind string

// Set of failure kinds a caller can receive.
const (
	ServiceUnavailable Kind = "ServiceUnavailable"
	InvalidAddress     Kind = "InvalidAddress"
	RateLimited        Kind = "RateLimited"
	InvalidSession     Kind = "InvalidSession"
	ChallengeExpired   Kind = "ChallengeExpired"
	InvalidProof       Kind = "InvalidProof"
	FaucetEmpty        Kind = "FaucetEmpty"
	TransferFailed     Kind = "TransferFailed"
	UnknownError       Kind = "UnknownError"
)

// Error is returned for every failed claim. The message is safe to show
// to the user. The extra fields are only set for the kinds that use them.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Balance    *big.Int
	Reason     ledger.Reason
	TxHash     string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case ServiceUnavailable:
		if e.Err != nil {
			return "faucet treasury is unreachable"
		}
		return "faucet is not configured"
	case InvalidAddress:
		return "invalid account address"
	case RateLimited:
		return fmt.Sprintf("rate limited, try again in %s", e.RetryAfter.Round(time.Second))
	case InvalidSession:
		return "invalid or already used session"
	case ChallengeExpired:
		return "challenge expired, request a new one"
	case InvalidProof:
		return "invalid proof of work"
	case FaucetEmpty:
		return fmt.Sprintf("faucet is empty, balance %s", ledger.FormatEther(e.Balance))
	case TransferFailed:
		return fmt.Sprintf("transfer failed: %s", e.Reason)
	}

	if e.Err != nil {
		return fmt.Sprintf("unknown error: %s", e.Err)
	}
	return "unknown error"
}

// Unwrap provides access to the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a faucet error or an empty kind.
func KindOf(err error) Kind {
	var fe *Error
	if !errors.As(err, &fe) {
		return ""
	}
	return fe.Kind
}

// IsKind checks if the error is a faucet error of the specified kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// GetError returns a copy of the faucet error pointer.
func GetError(err error) *Error {
	var fe *Error
	if !errors.As(err, &fe) {
		return nil
	}
	return fe
}

func unknown(err error) error {
	return &Error{Kind: UnknownError, Err: err}
}

package ledger

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Reason identifies why a transfer could not be completed.
type Reason string

// Set of reasons a transfer can fail.
const (
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonNonceConflict     Reason = "nonce_conflict"
	ReasonUnderpriced       Reason = "underpriced"
	ReasonGas               Reason = "gas"
	ReasonNetwork           Reason = "network"
	ReasonReverted          Reason = "reverted"
	ReasonRejected          Reason = "rejected"
)

// TransferError is returned by a ledger when a transfer fails on the
// network side.
type TransferError struct {
	Reason Reason
	Err    error
}

// NewTransferError classifies the error and wraps it.
func NewTransferError(err error) error {
	return &TransferError{
		Reason: Classify(err),
		Err:    err,
	}
}

// Error implements the error interface.
func (te *TransferError) Error() string {
	return string(te.Reason) + ": " + te.Err.Error()
}

// Unwrap provides access to the underlying error.
func (te *TransferError) Unwrap() error {
	return te.Err
}

// Classify maps an error returned by a node into a reason. The node reports
// most failures as JSON-RPC error strings so the messages are matched.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}

	var te *TransferError
	if errors.As(err, &te) {
		return te.Reason
	}

	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return ReasonInsufficientFunds

	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "already known"):
		return ReasonNonceConflict

	case strings.Contains(msg, "underpriced"),
		strings.Contains(msg, "less than block base fee"),
		strings.Contains(msg, "max fee per gas less than"):
		return ReasonUnderpriced

	case strings.Contains(msg, "intrinsic gas too low"),
		strings.Contains(msg, "exceeds block gas limit"),
		strings.Contains(msg, "out of gas"):
		return ReasonGas

	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"):
		return ReasonNetwork
	}

	return ReasonRejected
}

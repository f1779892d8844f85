package faucet

import (
	"math/big"
	"time"
)

// Challenge represents a proof of work puzzle issued to a client.
type Challenge struct {
	SessionID  string    `json:"sessionId"`
	Challenge  string    `json:"challenge"`
	Difficulty int       `json:"difficulty"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// ClaimRequest is what a client submits once a challenge is solved.
// ClientIP is the network address the request was observed from.
type ClaimRequest struct {
	Address   string
	SessionID string
	Nonce     uint64
	ClientIP  string
}

// Receipt describes a successful disbursement. Confirmations is only set
// when Confirmed is true.
type Receipt struct {
	TxHash        string
	Amount        *big.Int
	Confirmed     bool
	Confirmations uint64
}

// Info is the read only status of the faucet.
type Info struct {
	Configured bool
	Address    string
	Balance    *big.Int
	DripAmount *big.Int
	Cooldown   time.Duration
	Difficulty int
}

// Reservation is a cooldown record taken for a key before funds are sent.
// Prev holds the record it replaced so the reservation can be undone.
type Reservation struct {
	Key  string
	At   time.Time
	Prev time.Time
}

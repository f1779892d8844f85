package faucet

import (
	"context"
	"math/big"
)

//go:generate mockgen -source=ledger.go -destination=./ledger_mock.go -package=faucet

// Ledger is the funded treasury account that pays out drips.
type Ledger interface {
	Address() string
	Balance(ctx context.Context) (*big.Int, error)
	Transfer(ctx context.Context, to string, amount *big.Int) (string, error)
	WaitConfirmed(ctx context.Context, txHash string) (uint64, error)
}

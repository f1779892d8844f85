// Package ledger provides access to the funded treasury account that pays
// out faucet drips, along with the wei and ether conversions needed to
// present amounts.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// receiptPollInterval is how often a node is asked for a transaction receipt
// while waiting for confirmation.
const receiptPollInterval = time.Second

// Ethereum represents a treasury account on an EVM compatible network.
type Ethereum struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	mu         sync.Mutex
}

// Dial connects to the node at the specified url and binds the treasury
// private key to the connection.
func Dial(ctx context.Context, url string, privateKey *ecdsa.PrivateKey) (*Ethereum, error) {
	if privateKey == nil {
		return nil, errors.New("treasury private key is required")
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	eth := Ethereum{
		client:     client,
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
	}

	return &eth, nil
}

// Close releases the connection to the node.
func (eth *Ethereum) Close() {
	eth.client.Close()
}

// Address returns the treasury account address.
func (eth *Ethereum) Address() string {
	return eth.from.Hex()
}

// ChainID returns the id of the network the node is connected to.
func (eth *Ethereum) ChainID() *big.Int {
	return new(big.Int).Set(eth.chainID)
}

// Balance returns the treasury balance in wei.
func (eth *Ethereum) Balance(ctx context.Context) (*big.Int, error) {
	balance, err := eth.client.BalanceAt(ctx, eth.from, nil)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}

	return balance, nil
}

// Transfer signs and submits a value transfer of the specified amount of wei
// to the account. It returns once the node has accepted the transaction.
func (eth *Ethereum) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", &TransferError{Reason: ReasonRejected, Err: fmt.Errorf("invalid account %q", to)}
	}
	toAddr := common.HexToAddress(to)

	// The nonce must be selected and used by one submission at a time.
	eth.mu.Lock()
	defer eth.mu.Unlock()

	nonce, err := eth.client.PendingNonceAt(ctx, eth.from)
	if err != nil {
		return "", NewTransferError(fmt.Errorf("pending nonce: %w", err))
	}

	tx, err := eth.newTx(ctx, nonce, toAddr, amount)
	if err != nil {
		return "", NewTransferError(err)
	}

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(eth.chainID), eth.privateKey)
	if err != nil {
		return "", &TransferError{Reason: ReasonRejected, Err: fmt.Errorf("sign: %w", err)}
	}

	if err := eth.client.SendTransaction(ctx, signedTx); err != nil {
		return "", NewTransferError(fmt.Errorf("send: %w", err))
	}

	return signedTx.Hash().Hex(), nil
}

// WaitConfirmed blocks until the transaction has a receipt or the context is
// done. It returns the number of blocks that include and follow the one
// holding the transaction.
func (eth *Ethereum) WaitConfirmed(ctx context.Context, txHash string) (uint64, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := eth.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return 0, &TransferError{Reason: ReasonReverted, Err: fmt.Errorf("transaction %s reverted", txHash)}
			}

			head, err := eth.client.BlockNumber(ctx)
			if err != nil {
				return 1, nil
			}

			mined := receipt.BlockNumber.Uint64()
			if head < mined {
				return 1, nil
			}
			return head - mined + 1, nil

		case !errors.Is(err, ethereum.NotFound):
			return 0, NewTransferError(fmt.Errorf("receipt: %w", err))
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// newTx constructs an unsigned transfer. Dynamic fee transactions are used
// when the network reports a base fee.
func (eth *Ethereum) newTx(ctx context.Context, nonce uint64, to common.Address, amount *big.Int) (*types.Transaction, error) {
	head, err := eth.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := eth.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      params.TxGas,
			To:       &to,
			Value:    amount,
		})
		return tx, nil
	}

	tip, err := eth.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}

	// Leave room for the base fee to double before the transaction is mined.
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   eth.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       params.TxGas,
		To:        &to,
		Value:     amount,
	})

	return tx, nil
}

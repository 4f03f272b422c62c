package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/erazemk/kovnica/internal/mint"
)

// TxBackend is the subset of *ethclient.Client needed to send transactions.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// KeyWallet signs transactions with a local private key.
type KeyWallet struct {
	Backend      TxBackend
	Key          *ecdsa.PrivateKey
	ChainID      *big.Int
	PollInterval time.Duration
}

// NewKeyWallet parses a hex private key, with or without 0x.
func NewKeyWallet(backend TxBackend, hexKey string, chainID *big.Int) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &KeyWallet{Backend: backend, Key: key, ChainID: chainID, PollInterval: 2 * time.Second}, nil
}

// Address returns the checksummed address of the signing key.
func (w *KeyWallet) Address() string {
	return crypto.PubkeyToAddress(w.Key.PublicKey).Hex()
}

// Send estimates gas first so calls the contract would reject fail with
// mint.ErrReverted before anything is broadcast.
func (w *KeyWallet) Send(ctx context.Context, call mint.Call) (string, error) {
	from := crypto.PubkeyToAddress(w.Key.PublicKey)
	to := common.HexToAddress(call.To)
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	gas, err := w.Backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: call.Data})
	if isRevert(err) {
		return "", fmt.Errorf("%w: %v", mint.ErrReverted, err)
	}
	if err != nil {
		return "", fmt.Errorf("estimating gas: %w", err)
	}
	nonce, err := w.Backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}
	gasPrice, err := w.Backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("reading gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas + gas/5,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.ChainID), w.Key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	// The node may have accepted the transaction even if the call failed.
	if err := w.Backend.SendTransaction(ctx, signed); err != nil {
		return signed.Hash().Hex(), fmt.Errorf("sending transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// Wait polls for the receipt until it is mined or ctx ends.
func (w *KeyWallet) Wait(ctx context.Context, txHash string) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		receipt, err := w.Backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", mint.ErrReverted, txHash)
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("reading receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

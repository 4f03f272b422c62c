package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrTxNotFound = errors.New("transaction not found")
	ErrTxFailed   = errors.New("transaction failed")
	ErrNoMint     = errors.New("transaction minted nothing to wallet")
)

var transferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))

// ReceiptReader is the subset of *ethclient.Client the verifier needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Verifier checks that a reported transaction really minted an item.
type Verifier struct {
	Backend  ReceiptReader
	Contract common.Address
}

// MintedQuantity returns how many units of itemID the transaction minted
// to wallet, summing the contract's TransferSingle events from the zero
// address.
func (v *Verifier) MintedQuantity(ctx context.Context, txHash string, itemID int64, wallet string) (int64, error) {
	receipt, err := v.Backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return 0, ErrTxNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, ErrTxFailed
	}

	to := common.HexToAddress(wallet)
	id := big.NewInt(itemID)
	total := new(big.Int)
	for _, l := range receipt.Logs {
		if l.Address != v.Contract || len(l.Topics) != 4 || l.Topics[0] != transferSingleTopic || len(l.Data) != 64 {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != (common.Address{}) ||
			common.BytesToAddress(l.Topics[3].Bytes()) != to {
			continue
		}
		if new(big.Int).SetBytes(l.Data[:32]).Cmp(id) != 0 {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data[32:]))
	}
	if total.Sign() == 0 || !total.IsInt64() {
		return 0, ErrNoMint
	}
	return total.Int64(), nil
}

// NormalizeTxHash returns the lower-case 0x form of a 32-byte hash.
func NormalizeTxHash(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return "", false
	}
	for _, c := range s[2:] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", false
		}
	}
	return s, true
}

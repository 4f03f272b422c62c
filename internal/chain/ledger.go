package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erazemk/kovnica/internal/mint"
	"github.com/erazemk/kovnica/internal/model"
)

// BalanceReader is the subset of *ethclient.Client the ledger needs.
type BalanceReader interface {
	Caller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthLedger reads native and ERC-20 balances and allowances.
type EthLedger struct {
	Backend BalanceReader
}

func (l *EthLedger) Balance(ctx context.Context, currency model.Currency, owner string) (*big.Int, error) {
	if currency.Native() {
		b, err := l.Backend.BalanceAt(ctx, common.HexToAddress(owner), nil)
		if err != nil {
			return nil, fmt.Errorf("reading native balance: %w", err)
		}
		return b, nil
	}
	out, err := call(ctx, l.Backend, common.HexToAddress(currency.Address), erc20ABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("reading token balance: %w", err)
	}
	return out[0].(*big.Int), nil
}

func (l *EthLedger) Allowance(ctx context.Context, currency model.Currency, owner, spender string) (*big.Int, error) {
	out, err := call(ctx, l.Backend, common.HexToAddress(currency.Address), erc20ABI, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("reading allowance: %w", err)
	}
	return out[0].(*big.Int), nil
}

func (l *EthLedger) ApproveCall(currency model.Currency, spender string, amount *big.Int) (mint.Call, error) {
	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return mint.Call{}, fmt.Errorf("packing approve: %w", err)
	}
	return mint.Call{To: currency.Address, Data: data, Value: new(big.Int)}, nil
}

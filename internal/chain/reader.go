// Package chain talks to the drop contract through go-ethereum: it reads
// claim conditions, checks payment balances, signs purchases and verifies
// reported mints.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/erazemk/kovnica/internal/model"
)

// ErrTimeout is returned when a read does not finish within the reader's
// timeout.
var ErrTimeout = errors.New("chain read timed out")

// Reader reads sale parameters for an item. SaleParams returns (nil, nil)
// when the item has no active claim condition.
type Reader interface {
	SaleParams(ctx context.Context, itemID int64) (*model.OnchainSale, error)
	WalletClaimed(ctx context.Context, itemID int64, wallet string) (int64, error)
}

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthReader reads a thirdweb-style ERC-1155 drop contract.
type EthReader struct {
	Caller       Caller
	Contract     common.Address
	Timeout      time.Duration
	NativeSymbol string

	mu         sync.Mutex
	currencies map[common.Address]model.Currency
}

type claimCondition struct {
	StartTimestamp         *big.Int
	MaxClaimableSupply     *big.Int
	SupplyClaimed          *big.Int
	QuantityLimitPerWallet *big.Int
	MerkleRoot             [32]byte
	PricePerToken          *big.Int
	Currency               common.Address
	Metadata               string
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

// wrap marks errors caused by the read deadline.
func wrap(ctx context.Context, what string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", what, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r *EthReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}

func call(ctx context.Context, c Caller, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return values, nil
}

// clamp converts an on-chain quantity to int64. Values that do not fit,
// such as the max-uint256 "no limit" marker, become 0.
func clamp(n *big.Int) int64 {
	if n == nil || !n.IsInt64() {
		return 0
	}
	return n.Int64()
}

func (r *EthReader) activeCondition(ctx context.Context, itemID int64) (*big.Int, bool, error) {
	out, err := call(ctx, r.Caller, r.Contract, dropABI, "getActiveClaimConditionId", big.NewInt(itemID))
	if isRevert(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(ctx, "reading active claim condition", err)
	}
	return out[0].(*big.Int), true, nil
}

func (r *EthReader) SaleParams(ctx context.Context, itemID int64) (*model.OnchainSale, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	condID, ok, err := r.activeCondition(ctx, itemID)
	if err != nil || !ok {
		return nil, err
	}

	out, err := call(ctx, r.Caller, r.Contract, dropABI, "getClaimConditionById", big.NewInt(itemID), condID)
	if err != nil {
		return nil, wrap(ctx, "reading claim condition", err)
	}
	cond := *abi.ConvertType(out[0], new(claimCondition)).(*claimCondition)

	currency, err := r.currency(ctx, cond.Currency)
	if err != nil {
		return nil, err
	}

	start := time.Unix(clamp(cond.StartTimestamp), 0).UTC()
	sale := &model.OnchainSale{
		ItemID:         itemID,
		Name:           r.name(ctx),
		ConditionID:    clamp(condID),
		Price:          decimal.NewFromBigInt(cond.PricePerToken, -currency.Decimals),
		Currency:       currency,
		PerWalletCap:   clamp(cond.QuantityLimitPerWallet),
		SupplyCap:      clamp(cond.MaxClaimableSupply),
		SupplyClaimed:  clamp(cond.SupplyClaimed),
		MembershipRoot: common.Hash(cond.MerkleRoot).Hex(),
		WindowStart:    &start,
		FetchedAt:      time.Now().UTC(),
	}
	return sale, nil
}

func (r *EthReader) WalletClaimed(ctx context.Context, itemID int64, wallet string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	condID, ok, err := r.activeCondition(ctx, itemID)
	if err != nil || !ok {
		return 0, err
	}
	out, err := call(ctx, r.Caller, r.Contract, dropABI, "getSupplyClaimedByWallet",
		big.NewInt(itemID), condID, common.HexToAddress(wallet))
	if err != nil {
		return 0, wrap(ctx, "reading wallet claims", err)
	}
	return clamp(out[0].(*big.Int)), nil
}

// name is best effort; contracts without name() yield "".
func (r *EthReader) name(ctx context.Context) string {
	out, err := call(ctx, r.Caller, r.Contract, dropABI, "name")
	if err != nil {
		return ""
	}
	return out[0].(string)
}

// currency resolves symbol and decimals, caching token metadata per address.
func (r *EthReader) currency(ctx context.Context, addr common.Address) (model.Currency, error) {
	if model.IsNativeCurrency(addr.Hex()) {
		symbol := r.NativeSymbol
		if symbol == "" {
			symbol = "ETH"
		}
		return model.Currency{Address: model.NativeCurrencyAddress, Symbol: symbol, Decimals: 18}, nil
	}

	r.mu.Lock()
	c, ok := r.currencies[addr]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	out, err := call(ctx, r.Caller, addr, erc20ABI, "decimals")
	if err != nil {
		return model.Currency{}, wrap(ctx, "reading token decimals", err)
	}
	c = model.Currency{
		Address:  strings.ToLower(addr.Hex()),
		Decimals: int32(out[0].(uint8)),
	}
	if out, err := call(ctx, r.Caller, addr, erc20ABI, "symbol"); err == nil {
		c.Symbol = out[0].(string)
	} else {
		c.Symbol = c.Address
	}

	r.mu.Lock()
	if r.currencies == nil {
		r.currencies = make(map[common.Address]model.Currency)
	}
	r.currencies[addr] = c
	r.mu.Unlock()
	return c, nil
}

// Package mint executes a purchase against the drop contract: it validates
// the wallet's decision, handles the payment allowance and tries each
// candidate purchase call in order until one is accepted.
package mint

import (
	"context"
	"errors"
	"math/big"

	"github.com/erazemk/kovnica/internal/model"
)

// State is a step of a mint run.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateApproving  State = "approving"
	StateMinting    State = "minting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// FailureReason explains a failed run.
type FailureReason string

const (
	FailureZeroQuantity         FailureReason = "zero-quantity"
	FailureNotAllowlisted       FailureReason = "not-allowlisted"
	FailureSaleClosed           FailureReason = "sale-closed"
	FailureWalletCap            FailureReason = "wallet-cap"
	FailureSupplyCap            FailureReason = "supply-cap"
	FailurePriceUnresolved      FailureReason = "price-unresolved"
	FailurePriceDeclined        FailureReason = "price-declined"
	FailureInsufficientBalance  FailureReason = "insufficient-balance"
	FailureBalanceCheckFailed   FailureReason = "balance-check-failed"
	FailureAllowanceCheckFailed FailureReason = "allowance-check-failed"
	FailureApprovalFailed       FailureReason = "approval-failed"
	FailureUserRejected         FailureReason = "user-rejected"
	FailureAllReverted          FailureReason = "all-candidates-reverted"
	FailureSendFailed           FailureReason = "send-failed"
	FailureConfirmationUnknown  FailureReason = "confirmation-unknown"
)

var (
	// ErrUserRejected is returned by a Wallet when its holder declines to
	// sign a transaction.
	ErrUserRejected = errors.New("user rejected transaction")
	// ErrReverted is returned by a Wallet when the contract rejects a call,
	// either at gas estimation or in the mined receipt.
	ErrReverted = errors.New("transaction reverted")
	// ErrInFlight is returned when the wallet already has a run in progress.
	ErrInFlight = errors.New("mint already in progress for wallet")
)

// Call is a contract call ready to be signed.
type Call struct {
	To    string
	Data  []byte
	Value *big.Int
}

// Purchase carries everything a Strategy needs to build its call.
type Purchase struct {
	ItemID        int64
	Receiver      string
	Quantity      int64
	Currency      model.Currency
	PricePerToken *big.Int
	Value         *big.Int
	Proof         []string
	ProofLimit    int64
}

// Strategy builds one candidate purchase call. Build must not have side
// effects.
type Strategy interface {
	Name() string
	Build(p Purchase) (Call, error)
}

// Quoter re-derives the wallet's decision for an item.
type Quoter interface {
	Quote(ctx context.Context, itemID int64, address string) (*model.Quote, error)
}

// Wallet signs and broadcasts calls for a single address. Send returns the
// hash together with the error when the transaction may have reached the
// network. Only errors wrapping ErrReverted mean the call certainly had no
// effect.
type Wallet interface {
	Address() string
	Send(ctx context.Context, call Call) (string, error)
	Wait(ctx context.Context, txHash string) error
}

// Ledger reads payment balances and builds allowance approvals.
type Ledger interface {
	Balance(ctx context.Context, currency model.Currency, owner string) (*big.Int, error)
	Allowance(ctx context.Context, currency model.Currency, owner, spender string) (*big.Int, error)
	ApproveCall(currency model.Currency, spender string, amount *big.Int) (Call, error)
}

// Confirmer asks the buyer to accept an on-chain price higher than the
// displayed one.
type Confirmer interface {
	ConfirmPrice(ctx context.Context, q *model.Quote) (bool, error)
}

// Recorder persists a confirmed purchase in the supply ledger.
type Recorder interface {
	RecordMint(ctx context.Context, itemID int64, wallet string, quantity int64, txHash string) (*model.Mint, error)
}

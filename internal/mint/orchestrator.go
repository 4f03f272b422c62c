package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erazemk/kovnica/internal/metrics"
	"github.com/erazemk/kovnica/internal/model"
)

// Request asks for quantity units of an item.
type Request struct {
	ItemID   int64
	Quantity int64
}

// Result is the outcome of a run. Attempts lists the strategy names tried in
// order.
type Result struct {
	ID          uuid.UUID     `json:"id"`
	State       State         `json:"state"`
	Reason      FailureReason `json:"reason,omitempty"`
	TxHash      string        `json:"tx_hash,omitempty"`
	Attempts    []string      `json:"attempts"`
	Diagnostic  string        `json:"diagnostic,omitempty"`
	Transitions []State       `json:"transitions"`
}

// Orchestrator drives mint runs. Spender is the contract that pulls token
// payments. Confirmer may be nil, in which case price increases are declined.
type Orchestrator struct {
	Quoter     Quoter
	Ledger     Ledger
	Confirmer  Confirmer
	Recorder   Recorder
	Strategies []Strategy
	Spender    string
	Metrics    *metrics.Registry

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type run struct {
	res    *Result
	logger *slog.Logger
}

func (r *run) to(s State) {
	from := r.res.State
	r.res.State = s
	r.res.Transitions = append(r.res.Transitions, s)
	r.logger.Info("mint state", "from", from, "to", s)
}

func (r *run) fail(reason FailureReason, diagnostic string) *Result {
	r.res.Reason = reason
	r.res.Diagnostic = diagnostic
	r.to(StateFailed)
	r.logger.Warn("mint failed", "reason", reason, "diagnostic", diagnostic)
	return r.res
}

func (o *Orchestrator) acquire(addr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight == nil {
		o.inFlight = make(map[string]struct{})
	}
	if _, busy := o.inFlight[addr]; busy {
		return false
	}
	o.inFlight[addr] = struct{}{}
	return true
}

func (o *Orchestrator) release(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, addr)
}

// Run executes one purchase with w. Denials and transaction failures are
// reported in the Result; an error is returned only when the run could not
// start or the decision could not be derived.
func (o *Orchestrator) Run(ctx context.Context, w Wallet, req Request) (*Result, error) {
	addr, ok := model.NormalizeAddress(w.Address())
	if !ok {
		return nil, fmt.Errorf("invalid wallet address %q", w.Address())
	}
	if !o.acquire(addr) {
		return nil, ErrInFlight
	}
	defer o.release(addr)

	id := uuid.New()
	r := &run{
		res:    &Result{ID: id, State: StateIdle, Attempts: []string{}, Transitions: []State{StateIdle}},
		logger: slog.With("run", id.String(), "item", req.ItemID, "wallet", addr),
	}

	res, err := o.run(ctx, r, w, addr, req)
	if err != nil {
		return nil, err
	}
	o.Metrics.MintRun(string(res.State), string(res.Reason))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, r *run, w Wallet, addr string, req Request) (*Result, error) {
	r.to(StateValidating)
	if req.Quantity <= 0 {
		return r.fail(FailureZeroQuantity, "quantity must be positive"), nil
	}

	q, err := o.Quoter.Quote(ctx, req.ItemID, addr)
	if err != nil {
		return nil, fmt.Errorf("deriving decision: %w", err)
	}
	if reason, diag := validate(q, req.Quantity); reason != "" {
		return r.fail(reason, diag), nil
	}

	if q.Decision.RequiresPriceConfirmation {
		accepted := false
		if o.Confirmer != nil {
			accepted, err = o.Confirmer.ConfirmPrice(ctx, q)
			if err != nil {
				return r.fail(FailurePriceDeclined, err.Error()), nil
			}
		}
		if !accepted {
			return r.fail(FailurePriceDeclined, fmt.Sprintf("on-chain price %s %s not accepted", q.Sale.ChargePrice, q.Sale.EffectiveCurrency)), nil
		}
	}

	currency := q.Sale.Currency()
	unit := q.Sale.ChargePrice.Shift(currency.Decimals).BigInt()
	required := q.Sale.ChargePrice.Mul(decimal.NewFromInt(req.Quantity)).Shift(currency.Decimals).BigInt()

	balance, err := o.Ledger.Balance(ctx, currency, addr)
	if err != nil {
		return r.fail(FailureBalanceCheckFailed, err.Error()), nil
	}
	if balance.Cmp(required) < 0 {
		return r.fail(FailureInsufficientBalance, fmt.Sprintf("balance %s below required %s", balance, required)), nil
	}

	value := new(big.Int)
	if currency.Native() {
		value = required
	} else if required.Sign() > 0 {
		if res := o.approve(ctx, r, w, currency, addr, required); res != nil {
			return res, nil
		}
	}

	r.to(StateMinting)
	p := Purchase{
		ItemID:        req.ItemID,
		Receiver:      addr,
		Quantity:      req.Quantity,
		Currency:      currency,
		PricePerToken: unit,
		Value:         value,
		Proof:         q.Proof,
		ProofLimit:    q.ProofLimit,
	}

	var lastErr error
	for _, s := range o.Strategies {
		r.res.Attempts = append(r.res.Attempts, s.Name())

		call, err := s.Build(p)
		if err != nil {
			lastErr = fmt.Errorf("%s: building call: %w", s.Name(), err)
			continue
		}
		hash, err := w.Send(ctx, call)
		switch {
		case errors.Is(err, ErrUserRejected):
			return r.fail(FailureUserRejected, s.Name()+": "+err.Error()), nil
		case errors.Is(err, ErrReverted):
			lastErr = fmt.Errorf("%s: %w", s.Name(), err)
			r.logger.Info("mint candidate rejected", "strategy", s.Name(), "error", err)
			continue
		case err != nil && hash != "":
			// The purchase may still be mined, so another candidate could buy twice.
			r.res.TxHash = hash
			return r.fail(FailureConfirmationUnknown, fmt.Sprintf("%s: %s: %v", s.Name(), hash, err)), nil
		case err != nil:
			return r.fail(FailureSendFailed, fmt.Sprintf("%s: %v", s.Name(), err)), nil
		}

		if err := w.Wait(ctx, hash); err != nil {
			if !errors.Is(err, ErrReverted) {
				r.res.TxHash = hash
				return r.fail(FailureConfirmationUnknown, fmt.Sprintf("%s: %s: %v", s.Name(), hash, err)), nil
			}
			lastErr = fmt.Errorf("%s: %s: %w", s.Name(), hash, err)
			r.logger.Info("mint candidate reverted", "strategy", s.Name(), "tx", hash, "error", err)
			continue
		}

		r.res.TxHash = hash
		if _, err := o.Recorder.RecordMint(ctx, req.ItemID, addr, req.Quantity, hash); err != nil {
			r.res.Diagnostic = fmt.Sprintf("recording mint: %v", err)
			r.logger.Error("failed to record confirmed mint", "tx", hash, "error", err)
		}
		r.to(StateSucceeded)
		return r.res, nil
	}

	diag := fmt.Sprintf("tried %s", strings.Join(r.res.Attempts, ", "))
	if lastErr != nil {
		diag += "; last error: " + lastErr.Error()
	}
	return r.fail(FailureAllReverted, diag), nil
}

// approve raises the allowance when it is below required. It returns a
// failed result, or nil to continue.
func (o *Orchestrator) approve(ctx context.Context, r *run, w Wallet, currency model.Currency, owner string, required *big.Int) *Result {
	allowance, err := o.Ledger.Allowance(ctx, currency, owner, o.Spender)
	if err != nil {
		return r.fail(FailureAllowanceCheckFailed, err.Error())
	}
	if allowance.Cmp(required) >= 0 {
		return nil
	}

	r.to(StateApproving)
	call, err := o.Ledger.ApproveCall(currency, o.Spender, required)
	if err != nil {
		return r.fail(FailureApprovalFailed, err.Error())
	}
	hash, err := w.Send(ctx, call)
	if errors.Is(err, ErrUserRejected) {
		return r.fail(FailureUserRejected, "approve: "+err.Error())
	}
	if err != nil {
		return r.fail(FailureApprovalFailed, err.Error())
	}
	if err := w.Wait(ctx, hash); err != nil {
		return r.fail(FailureApprovalFailed, fmt.Sprintf("approve %s: %v", hash, err))
	}
	return nil
}

func validate(q *model.Quote, quantity int64) (FailureReason, string) {
	d := q.Decision
	switch d.DenialReason {
	case model.DenialNotAllowlisted:
		return FailureNotAllowlisted, "wallet is not on the allowlist"
	case model.DenialWalletCapReached:
		return FailureWalletCap, fmt.Sprintf("wallet already minted %d", d.AlreadyMinted)
	case model.DenialSaleNotOpen, model.DenialSaleNotConfigured:
		return FailureSaleClosed, fmt.Sprintf("sale is %s", q.Sale.Status)
	case model.DenialSoldOut:
		return FailureSupplyCap, "sold out"
	case model.DenialPriceUnresolved:
		return FailurePriceUnresolved, "price could not be resolved"
	}
	if quantity > d.MaxMintAmount {
		return FailureWalletCap, fmt.Sprintf("quantity %d exceeds allowed %d", quantity, d.MaxMintAmount)
	}
	if q.Sale.RemainingSupply != nil && quantity > *q.Sale.RemainingSupply {
		return FailureSupplyCap, fmt.Sprintf("quantity %d exceeds remaining supply %d", quantity, *q.Sale.RemainingSupply)
	}
	if !d.CanMint {
		return FailureSaleClosed, "decision does not allow minting"
	}
	return "", ""
}

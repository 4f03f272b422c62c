package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/kovnica/internal/model"
)

const (
	buyer    = "0x00000000000000000000000000000000000000b1"
	contract = "0x00000000000000000000000000000000000000c1"
	token    = "0x00000000000000000000000000000000000000d1"
)

type fakeQuoter struct {
	quote *model.Quote
	err   error
}

func (f *fakeQuoter) Quote(_ context.Context, itemID int64, address string) (*model.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.Decision.ItemID = itemID
	q.Decision.Address = address
	return &q, nil
}

type fakeWallet struct {
	mu      sync.Mutex
	sent    []Call
	sendErr map[string]error // keyed by string(Call.Data)
	lostErr map[string]error // broadcast, but the send call still failed
	waitErr map[string]error // keyed by tx hash
	block   chan struct{}
}

func (w *fakeWallet) Address() string { return buyer }

func (w *fakeWallet) Send(_ context.Context, call Call) (string, error) {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, call)
	if err := w.sendErr[string(call.Data)]; err != nil {
		return "", err
	}
	hash := "0xtx-" + string(call.Data)
	return hash, w.lostErr[string(call.Data)]
}

func (w *fakeWallet) Wait(_ context.Context, hash string) error {
	return w.waitErr[hash]
}

type fakeLedger struct {
	balance      *big.Int
	allowance    *big.Int
	allowanceErr error
	approved     *big.Int
}

func (l *fakeLedger) Balance(context.Context, model.Currency, string) (*big.Int, error) {
	return l.balance, nil
}

func (l *fakeLedger) Allowance(context.Context, model.Currency, string, string) (*big.Int, error) {
	return l.allowance, l.allowanceErr
}

func (l *fakeLedger) ApproveCall(_ model.Currency, _ string, amount *big.Int) (Call, error) {
	l.approved = amount
	return Call{To: token, Data: []byte("approve")}, nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	mints []string
}

func (r *fakeRecorder) RecordMint(_ context.Context, itemID int64, wallet string, qty int64, hash string) (*model.Mint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints = append(r.mints, hash)
	return &model.Mint{ItemID: itemID, Wallet: wallet, Quantity: qty, TxHash: hash}, nil
}

type fakeConfirmer struct {
	accept bool
	asked  int
}

func (c *fakeConfirmer) ConfirmPrice(context.Context, *model.Quote) (bool, error) {
	c.asked++
	return c.accept, nil
}

type named string

func (n named) Name() string { return string(n) }

func (n named) Build(p Purchase) (Call, error) {
	return Call{To: contract, Data: []byte(n), Value: p.Value}, nil
}

func nativeQuote() *model.Quote {
	return &model.Quote{
		Decision: model.MintDecision{
			IsAllowlisted: true,
			MaxMintAmount: 3,
			CanMint:       true,
			Price:         decimal.RequireFromString("0.5"),
			Currency:      "ETH",
		},
		Sale: model.SaleState{
			ItemID:                   1,
			EffectivePrice:           decimal.RequireFromString("0.5"),
			ChargePrice:              decimal.RequireFromString("0.5"),
			EffectiveCurrency:        "ETH",
			EffectiveCurrencyAddress: model.NativeCurrencyAddress,
			CurrencyDecimals:         18,
			Status:                   model.SaleStatusActive,
		},
		ProofLimit: 3,
	}
}

func tokenQuote() *model.Quote {
	q := nativeQuote()
	q.Sale.EffectiveCurrency = "USDC"
	q.Sale.EffectiveCurrencyAddress = token
	q.Sale.CurrencyDecimals = 6
	q.Sale.ChargePrice = decimal.RequireFromString("2.5")
	return q
}

func wei(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func newOrchestrator(q *model.Quote, ledger *fakeLedger, rec *fakeRecorder, strategies ...Strategy) *Orchestrator {
	return &Orchestrator{
		Quoter:     &fakeQuoter{quote: q},
		Ledger:     ledger,
		Recorder:   rec,
		Strategies: strategies,
		Spender:    contract,
	}
}

func TestFallbackToThirdCandidate(t *testing.T) {
	w := &fakeWallet{
		sendErr: map[string]error{"A": ErrReverted},
		waitErr: map[string]error{"0xtx-B": ErrReverted},
	}
	rec := &fakeRecorder{}
	o := newOrchestrator(nativeQuote(), &fakeLedger{balance: wei("10000000000000000000")}, rec, named("A"), named("B"), named("C"))

	res, err := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("expected succeeded, got %s (%s: %s)", res.State, res.Reason, res.Diagnostic)
	}
	if !slices.Equal(res.Attempts, []string{"A", "B", "C"}) {
		t.Errorf("expected attempts [A B C], got %v", res.Attempts)
	}
	if res.TxHash != "0xtx-C" {
		t.Errorf("expected tx 0xtx-C, got %s", res.TxHash)
	}
	if len(rec.mints) != 1 {
		t.Errorf("expected exactly one ledger update, got %d", len(rec.mints))
	}
	want := []State{StateIdle, StateValidating, StateMinting, StateSucceeded}
	if !slices.Equal(res.Transitions, want) {
		t.Errorf("expected transitions %v, got %v", want, res.Transitions)
	}
	// 0.5 ETH x 2
	if got := w.sent[len(w.sent)-1].Value; got.Cmp(wei("1000000000000000000")) != 0 {
		t.Errorf("expected value 1e18, got %s", got)
	}
}

func TestAllCandidatesReverted(t *testing.T) {
	w := &fakeWallet{sendErr: map[string]error{"A": ErrReverted, "B": ErrReverted}}
	rec := &fakeRecorder{}
	o := newOrchestrator(nativeQuote(), &fakeLedger{balance: wei("10000000000000000000")}, rec, named("A"), named("B"))

	res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
	if res.State != StateFailed || res.Reason != FailureAllReverted {
		t.Fatalf("expected all-candidates-reverted, got %s %s", res.State, res.Reason)
	}
	if res.Diagnostic != "tried A, B; last error: B: transaction reverted" {
		t.Errorf("unexpected diagnostic %q", res.Diagnostic)
	}
	if len(rec.mints) != 0 {
		t.Error("expected no ledger update on failure")
	}
}

func TestUnknownOutcomeStopsFallback(t *testing.T) {
	funded := func() *fakeLedger { return &fakeLedger{balance: wei("10000000000000000000")} }

	t.Run("receipt read fails", func(t *testing.T) {
		w := &fakeWallet{waitErr: map[string]error{"0xtx-A": errors.New("reading receipt: connection reset")}}
		rec := &fakeRecorder{}
		o := newOrchestrator(nativeQuote(), funded(), rec, named("A"), named("B"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.State != StateFailed || res.Reason != FailureConfirmationUnknown {
			t.Fatalf("expected confirmation-unknown, got %s %s", res.State, res.Reason)
		}
		if res.TxHash != "0xtx-A" {
			t.Errorf("expected tx 0xtx-A kept, got %q", res.TxHash)
		}
		if len(w.sent) != 1 || !slices.Equal(res.Attempts, []string{"A"}) {
			t.Errorf("expected a single broadcast, got %d sends, attempts %v", len(w.sent), res.Attempts)
		}
		if len(rec.mints) != 0 {
			t.Error("expected no ledger update for an unconfirmed purchase")
		}
	})

	t.Run("wait cancelled", func(t *testing.T) {
		w := &fakeWallet{waitErr: map[string]error{"0xtx-A": context.Canceled}}
		o := newOrchestrator(nativeQuote(), funded(), &fakeRecorder{}, named("A"), named("B"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailureConfirmationUnknown || len(w.sent) != 1 {
			t.Errorf("expected confirmation-unknown after one send, got %s after %d", res.Reason, len(w.sent))
		}
	})

	t.Run("broadcast fails after signing", func(t *testing.T) {
		w := &fakeWallet{lostErr: map[string]error{"A": errors.New("sending transaction: timeout")}}
		o := newOrchestrator(nativeQuote(), funded(), &fakeRecorder{}, named("A"), named("B"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailureConfirmationUnknown || res.TxHash != "0xtx-A" || len(w.sent) != 1 {
			t.Errorf("expected confirmation-unknown for 0xtx-A after one send, got %s %q after %d",
				res.Reason, res.TxHash, len(w.sent))
		}
	})

	t.Run("send fails before broadcast", func(t *testing.T) {
		w := &fakeWallet{sendErr: map[string]error{"A": errors.New("reading nonce: connection refused")}}
		o := newOrchestrator(nativeQuote(), funded(), &fakeRecorder{}, named("A"), named("B"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailureSendFailed || res.TxHash != "" || len(w.sent) != 1 {
			t.Errorf("expected send-failed without tx after one send, got %s %q after %d",
				res.Reason, res.TxHash, len(w.sent))
		}
	})
}

func TestUserRejectionStopsFallback(t *testing.T) {
	w := &fakeWallet{sendErr: map[string]error{"A": ErrUserRejected}}
	rec := &fakeRecorder{}
	o := newOrchestrator(nativeQuote(), &fakeLedger{balance: wei("10000000000000000000")}, rec, named("A"), named("B"))

	res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
	if res.Reason != FailureUserRejected {
		t.Fatalf("expected user-rejected, got %s", res.Reason)
	}
	if !slices.Equal(res.Attempts, []string{"A"}) {
		t.Errorf("expected only A attempted, got %v", res.Attempts)
	}
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		mutate   func(q *model.Quote)
		want     FailureReason
	}{
		{"zero quantity", 0, func(*model.Quote) {}, FailureZeroQuantity},
		{"not allowlisted", 1, func(q *model.Quote) {
			q.Decision.CanMint = false
			q.Decision.DenialReason = model.DenialNotAllowlisted
		}, FailureNotAllowlisted},
		{"sale closed", 1, func(q *model.Quote) {
			q.Decision.CanMint = false
			q.Decision.DenialReason = model.DenialSaleNotOpen
		}, FailureSaleClosed},
		{"unconfigured", 1, func(q *model.Quote) {
			q.Decision.CanMint = false
			q.Decision.DenialReason = model.DenialSaleNotConfigured
		}, FailureSaleClosed},
		{"over wallet allowance", 4, func(*model.Quote) {}, FailureWalletCap},
		{"over remaining supply", 2, func(q *model.Quote) {
			one := int64(1)
			q.Sale.RemainingSupply = &one
		}, FailureSupplyCap},
		{"sold out", 1, func(q *model.Quote) {
			q.Decision.CanMint = false
			q.Decision.DenialReason = model.DenialSoldOut
		}, FailureSupplyCap},
		{"price unresolved", 1, func(q *model.Quote) {
			q.Decision.CanMint = false
			q.Decision.DenialReason = model.DenialPriceUnresolved
		}, FailurePriceUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := nativeQuote()
			tt.mutate(q)
			w := &fakeWallet{}
			o := newOrchestrator(q, &fakeLedger{balance: wei("10000000000000000000")}, &fakeRecorder{}, named("A"))

			res, err := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: tt.quantity})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Reason != tt.want {
				t.Errorf("expected %s, got %s", tt.want, res.Reason)
			}
			if len(w.sent) != 0 {
				t.Error("expected no transactions")
			}
		})
	}
}

func TestPriceConfirmation(t *testing.T) {
	t.Run("declined before approval", func(t *testing.T) {
		q := tokenQuote()
		q.Decision.RequiresPriceConfirmation = true
		w := &fakeWallet{}
		ledger := &fakeLedger{balance: wei("100000000"), allowance: big.NewInt(0)}
		o := newOrchestrator(q, ledger, &fakeRecorder{}, named("A"))
		c := &fakeConfirmer{accept: false}
		o.Confirmer = c

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailurePriceDeclined {
			t.Fatalf("expected price-declined, got %s", res.Reason)
		}
		if c.asked != 1 || len(w.sent) != 0 || ledger.approved != nil {
			t.Errorf("expected confirmation before any transaction, asked=%d sent=%d", c.asked, len(w.sent))
		}
	})

	t.Run("no confirmer declines", func(t *testing.T) {
		q := nativeQuote()
		q.Decision.RequiresPriceConfirmation = true
		o := newOrchestrator(q, &fakeLedger{balance: wei("10000000000000000000")}, &fakeRecorder{}, named("A"))

		res, _ := o.Run(context.Background(), &fakeWallet{}, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailurePriceDeclined {
			t.Errorf("expected price-declined, got %s", res.Reason)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		q := nativeQuote()
		q.Decision.RequiresPriceConfirmation = true
		o := newOrchestrator(q, &fakeLedger{balance: wei("10000000000000000000")}, &fakeRecorder{}, named("A"))
		o.Confirmer = &fakeConfirmer{accept: true}

		res, _ := o.Run(context.Background(), &fakeWallet{}, Request{ItemID: 1, Quantity: 1})
		if res.State != StateSucceeded {
			t.Errorf("expected succeeded, got %s %s", res.State, res.Reason)
		}
	})
}

func TestTokenApproval(t *testing.T) {
	t.Run("approves shortfall", func(t *testing.T) {
		w := &fakeWallet{}
		ledger := &fakeLedger{balance: wei("100000000"), allowance: wei("1000000")}
		o := newOrchestrator(tokenQuote(), ledger, &fakeRecorder{}, named("A"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 2})
		if res.State != StateSucceeded {
			t.Fatalf("expected succeeded, got %s %s %s", res.State, res.Reason, res.Diagnostic)
		}
		// 2.5 USDC x 2 at 6 decimals
		if ledger.approved == nil || ledger.approved.Cmp(wei("5000000")) != 0 {
			t.Errorf("expected approval of 5000000, got %v", ledger.approved)
		}
		if string(w.sent[0].Data) != "approve" {
			t.Errorf("expected approve first, got %q", w.sent[0].Data)
		}
		if !slices.Contains(res.Transitions, StateApproving) {
			t.Errorf("expected approving transition, got %v", res.Transitions)
		}
		if w.sent[1].Value.Sign() != 0 {
			t.Errorf("expected zero value for token payment, got %s", w.sent[1].Value)
		}
	})

	t.Run("sufficient allowance skips approval", func(t *testing.T) {
		w := &fakeWallet{}
		ledger := &fakeLedger{balance: wei("100000000"), allowance: wei("5000000")}
		o := newOrchestrator(tokenQuote(), ledger, &fakeRecorder{}, named("A"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 2})
		if slices.Contains(res.Transitions, StateApproving) || ledger.approved != nil {
			t.Error("expected no approval")
		}
		if len(w.sent) != 1 {
			t.Errorf("expected one transaction, got %d", len(w.sent))
		}
	})

	t.Run("allowance read failure", func(t *testing.T) {
		ledger := &fakeLedger{balance: wei("100000000"), allowanceErr: errors.New("rpc down")}
		o := newOrchestrator(tokenQuote(), ledger, &fakeRecorder{}, named("A"))

		res, _ := o.Run(context.Background(), &fakeWallet{}, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailureAllowanceCheckFailed {
			t.Errorf("expected allowance-check-failed, got %s", res.Reason)
		}
	})

	t.Run("approval rejected", func(t *testing.T) {
		w := &fakeWallet{sendErr: map[string]error{"approve": ErrUserRejected}}
		ledger := &fakeLedger{balance: wei("100000000"), allowance: big.NewInt(0)}
		o := newOrchestrator(tokenQuote(), ledger, &fakeRecorder{}, named("A"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailureUserRejected {
			t.Errorf("expected user-rejected, got %s", res.Reason)
		}
	})

	t.Run("approval reverted", func(t *testing.T) {
		w := &fakeWallet{waitErr: map[string]error{"0xtx-approve": ErrReverted}}
		ledger := &fakeLedger{balance: wei("100000000"), allowance: big.NewInt(0)}
		o := newOrchestrator(tokenQuote(), ledger, &fakeRecorder{}, named("A"))

		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		if res.Reason != FailureApprovalFailed {
			t.Errorf("expected approval-failed, got %s", res.Reason)
		}
	})
}

func TestInsufficientBalance(t *testing.T) {
	ledger := &fakeLedger{balance: wei("1000000")}
	o := newOrchestrator(tokenQuote(), ledger, &fakeRecorder{}, named("A"))

	res, _ := o.Run(context.Background(), &fakeWallet{}, Request{ItemID: 1, Quantity: 1})
	if res.Reason != FailureInsufficientBalance {
		t.Errorf("expected insufficient-balance, got %s", res.Reason)
	}
}

func TestSingleFlightPerWallet(t *testing.T) {
	w := &fakeWallet{block: make(chan struct{})}
	o := newOrchestrator(nativeQuote(), &fakeLedger{balance: wei("10000000000000000000")}, &fakeRecorder{}, named("A"))

	done := make(chan *Result)
	go func() {
		res, _ := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1})
		done <- res
	}()

	// Wait until the first run holds the wallet.
	for {
		o.mu.Lock()
		_, busy := o.inFlight[buyer]
		o.mu.Unlock()
		if busy {
			break
		}
	}

	if _, err := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1}); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}

	close(w.block)
	if res := <-done; res.State != StateSucceeded {
		t.Errorf("expected first run to succeed, got %s", res.State)
	}
	if _, err := o.Run(context.Background(), w, Request{ItemID: 1, Quantity: 1}); err != nil {
		t.Errorf("expected wallet released after run, got %v", err)
	}
}

func TestQuoteErrorIsReturned(t *testing.T) {
	o := &Orchestrator{Quoter: &fakeQuoter{err: fmt.Errorf("db closed")}}
	if _, err := o.Run(context.Background(), &fakeWallet{}, Request{ItemID: 1, Quantity: 1}); err == nil {
		t.Error("expected error")
	}
}

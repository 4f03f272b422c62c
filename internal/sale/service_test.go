package sale

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erazemk/kovnica/internal/db"
	"github.com/erazemk/kovnica/internal/merkle"
	"github.com/erazemk/kovnica/internal/model"
	"github.com/erazemk/kovnica/internal/store"
)

type fakeReader struct {
	sale    *model.OnchainSale
	claimed int64
	err     error
	reads   int
}

func (f *fakeReader) SaleParams(context.Context, int64) (*model.OnchainSale, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if f.sale == nil {
		return nil, nil
	}
	s := *f.sale
	return &s, nil
}

func (f *fakeReader) WalletClaimed(context.Context, int64, string) (int64, error) {
	return f.claimed, f.err
}

func newTestService(t *testing.T, reader *fakeReader) *Service {
	t.Helper()
	svc := NewService(db.NewTestDB(t), reader)
	svc.Now = func() time.Time { return now }
	if _, err := store.PutOverride(context.Background(), svc.DB, *activeOverride()); err != nil {
		t.Fatalf("PutOverride: %v", err)
	}
	return svc
}

func TestQuoteAllowlistedWallet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeReader{sale: usdcSale("1")})
	other := "0x00000000000000000000000000000000000000b2"
	store.ReplaceAllowlist(ctx, svc.DB, []model.AllowlistEntry{
		{Address: wallet, MaxMintAmount: 3},
		{Address: other, MaxMintAmount: 1},
	})

	if _, err := svc.Quote(ctx, 1, "0x1234"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	q, err := svc.Quote(ctx, 1, "0x"+strings.ToUpper(wallet[2:]))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Decision.CanMint || q.Decision.MaxMintAmount != 3 || q.Decision.Address != wallet {
		t.Errorf("unexpected decision %+v", q.Decision)
	}
	if q.ProofLimit != 3 || len(q.Proof) != 1 {
		t.Errorf("expected one-step proof with limit 3, got %v %d", q.Proof, q.ProofLimit)
	}

	tree, _ := svc.Tree(ctx)
	proof := make([]merkle.Hash, len(q.Proof))
	for i, p := range q.Proof {
		copy(proof[i][:], mustHex(t, p))
	}
	if !merkle.Verify(tree.Root(), wallet, proof) {
		t.Error("expected returned proof to verify against the allowlist root")
	}
}

func TestQuoteCountsMints(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{sale: usdcSale("1")}
	svc := newTestService(t, reader)
	store.ReplaceAllowlist(ctx, svc.DB, []model.AllowlistEntry{{Address: wallet, MaxMintAmount: 3}})

	if _, err := svc.RecordMint(ctx, 1, wallet, 2, "0xaa"); err != nil {
		t.Fatalf("RecordMint: %v", err)
	}
	d, _ := svc.Decide(ctx, 1, wallet)
	if d.AlreadyMinted != 2 || d.MaxMintAmount != 1 {
		t.Errorf("expected 2 minted 1 left, got %+v", d)
	}

	reader.claimed = 3
	d, _ = svc.Decide(ctx, 1, wallet)
	if d.AlreadyMinted != 3 || d.DenialReason != model.DenialWalletCapReached {
		t.Errorf("expected on-chain claims to count, got %+v", d)
	}

	state, _ := svc.SaleState(ctx, 1)
	if state.TotalMinted != 2 {
		t.Errorf("expected ledger total 2, got %d", state.TotalMinted)
	}
}

func TestStaleFallback(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{sale: usdcSale("4")}
	svc := newTestService(t, reader)

	fresh, _ := svc.SaleState(ctx, 1)
	if fresh.Stale || !fresh.EffectivePrice.Equal(dec("4")) {
		t.Fatalf("unexpected fresh state %+v", fresh)
	}

	reader.err = errors.New("rpc unavailable")
	stale, err := svc.SaleState(ctx, 1)
	if err != nil {
		t.Fatalf("SaleState: %v", err)
	}
	if !stale.Stale || !stale.EffectivePrice.Equal(dec("4")) || stale.MembershipRoot != rootHex {
		t.Errorf("expected cached record flagged stale, got %+v", stale)
	}

	store.ReplaceAllowlist(ctx, svc.DB, []model.AllowlistEntry{{Address: wallet, MaxMintAmount: 1}})
	d, err := svc.Decide(ctx, 1, wallet)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !d.Stale || !d.CanMint {
		t.Errorf("expected stale decision still answered, got %+v", d)
	}
}

func TestStaleWithoutCacheFailsClosed(t *testing.T) {
	svc := newTestService(t, &fakeReader{err: errors.New("rpc unavailable")})

	s, err := svc.SaleState(context.Background(), 1)
	if err != nil {
		t.Fatalf("SaleState: %v", err)
	}
	if !s.Stale || !s.PriceUnresolved || !s.AllowlistMode {
		t.Errorf("expected stale unresolved allowlist-only state, got %+v", s)
	}
}

func TestNoChainRecord(t *testing.T) {
	svc := newTestService(t, &fakeReader{})
	d, _ := svc.Decide(context.Background(), 1, wallet)
	if d.CanMint || d.DenialReason != model.DenialNotAllowlisted {
		t.Errorf("expected not-allowlisted without a record or entry, got %+v", d)
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeReader{sale: usdcSale("1")})
	hidden := activeOverride()
	hidden.ItemID = 2
	hidden.DisplayEnabled = false
	store.PutOverride(ctx, svc.DB, *hidden)
	shown := activeOverride()
	shown.ItemID = 3
	shown.DisplayOrder = -1
	shown.IsDefaultDisplay = true
	store.PutOverride(ctx, svc.DB, *shown)

	c, err := svc.Catalog(ctx)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(c.Items) != 2 || c.Items[0].ItemID != 3 || c.Items[1].ItemID != 1 {
		t.Errorf("expected items [3 1], got %+v", c.Items)
	}
	if c.DefaultItemID == nil || *c.DefaultItemID != 3 {
		t.Errorf("expected default item 3, got %v", c.DefaultItemID)
	}
}

func TestProof(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeReader{})
	store.ReplaceAllowlist(ctx, svc.DB, []model.AllowlistEntry{{Address: wallet, MaxMintAmount: 1}})

	if _, ok, err := svc.Proof(ctx, wallet); err != nil || !ok {
		t.Errorf("expected proof, got %v %v", ok, err)
	}
	if _, ok, _ := svc.Proof(ctx, "0x00000000000000000000000000000000000000ff"); ok {
		t.Error("expected no proof for non-member")
	}
	if _, _, err := svc.Proof(ctx, "nope"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}

	before, _ := svc.Tree(ctx)
	store.ReplaceAllowlist(ctx, svc.DB, []model.AllowlistEntry{{Address: wallet, MaxMintAmount: 1}, {Address: "0x00000000000000000000000000000000000000ff", MaxMintAmount: 1}})
	after, _ := svc.Tree(ctx)
	if before.Root() == after.Root() || after.Len() != 2 {
		t.Error("expected tree rebuilt after allowlist replace")
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSaleStateUsesServiceNativeCurrency(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeReader{})
	svc.Native = NativeCurrency("POL")

	state, err := svc.SaleState(ctx, 1)
	if err != nil {
		t.Fatalf("SaleState: %v", err)
	}
	if state.EffectiveCurrency != "POL" || state.EffectiveCurrencyAddress != model.NativeCurrencyAddress {
		t.Errorf("expected POL native currency, got %s %s", state.EffectiveCurrency, state.EffectiveCurrencyAddress)
	}
}

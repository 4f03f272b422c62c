package sale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/kovnica/internal/cache"
	"github.com/erazemk/kovnica/internal/chain"
	"github.com/erazemk/kovnica/internal/merkle"
	"github.com/erazemk/kovnica/internal/metrics"
	"github.com/erazemk/kovnica/internal/model"
	"github.com/erazemk/kovnica/internal/store"
)

// ErrInvalidAddress is returned for wallet addresses that are not 20-byte hex.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Service answers sale and eligibility queries. Chain may be nil, in which
// case every item is treated as having no on-chain record.
type Service struct {
	DB      *sql.DB
	Chain   chain.Reader
	Cache   cache.Sales
	Trees   *merkle.Cache
	Metrics *metrics.Registry
	Native  model.Currency
	Now     func() time.Time
}

// NewService returns a Service with an in-memory record cache.
func NewService(db *sql.DB, reader chain.Reader) *Service {
	return &Service{
		DB:     db,
		Chain:  reader,
		Cache:  cache.NewMemory(),
		Trees:  &merkle.Cache{},
		Native: NativeCurrency("ETH"),
		Now:    time.Now,
	}
}

// onchain reads the item's contract record. When the read fails the last
// cached record is returned with stale set.
func (s *Service) onchain(ctx context.Context, itemID int64) (*model.OnchainSale, bool) {
	if s.Chain == nil {
		return nil, false
	}

	start := time.Now()
	rec, err := s.Chain.SaleParams(ctx, itemID)
	elapsed := time.Since(start).Seconds()
	if err == nil {
		s.Metrics.ChainRead("ok", elapsed)
		if rec != nil && s.Cache != nil {
			if err := s.Cache.Put(ctx, rec); err != nil {
				slog.Warn("failed to cache sale record", "item", itemID, "error", err)
			}
		}
		return rec, false
	}

	result := "error"
	if errors.Is(err, chain.ErrTimeout) {
		result = "timeout"
	}
	s.Metrics.ChainRead(result, elapsed)
	s.Metrics.StaleFallback()
	slog.Warn("on-chain read failed, using cached record", "item", itemID, "error", err)

	if s.Cache == nil {
		return nil, true
	}
	cached, cerr := s.Cache.Get(ctx, itemID)
	if cerr != nil {
		slog.Warn("failed to read cached sale record", "item", itemID, "error", cerr)
		return nil, true
	}
	return cached, true
}

// SaleState reconciles the current sale state for an item.
func (s *Service) SaleState(ctx context.Context, itemID int64) (*model.SaleState, error) {
	override, err := store.GetOverride(ctx, s.DB, itemID)
	if err != nil {
		return nil, err
	}
	if override == nil {
		d := model.DefaultOverride(itemID)
		override = &d
	}

	rec, stale := s.onchain(ctx, itemID)
	state := Reconcile(rec, override, s.Native, s.now())
	state.Stale = stale
	return &state, nil
}

// Catalog returns the sale state of every displayed item in display order.
func (s *Service) Catalog(ctx context.Context) (*model.Catalog, error) {
	overrides, err := store.ListOverrides(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	c := &model.Catalog{Items: []model.SaleState{}}
	for _, o := range overrides {
		if !o.DisplayEnabled {
			continue
		}
		if o.IsDefaultDisplay && c.DefaultItemID == nil {
			id := o.ItemID
			c.DefaultItemID = &id
		}
		rec, stale := s.onchain(ctx, o.ItemID)
		state := Reconcile(rec, &o, s.Native, s.now())
		state.Stale = stale
		c.Items = append(c.Items, state)
	}
	return c, nil
}

// Quote derives the mint decision for address along with its proof.
func (s *Service) Quote(ctx context.Context, itemID int64, address string) (*model.Quote, error) {
	addr, ok := model.NormalizeAddress(address)
	if !ok {
		return nil, ErrInvalidAddress
	}

	state, err := s.SaleState(ctx, itemID)
	if err != nil {
		return nil, err
	}
	entry, err := store.GetAllowlistEntry(ctx, s.DB, addr)
	if err != nil {
		return nil, err
	}
	minted, err := s.alreadyMinted(ctx, itemID, addr, state.Stale)
	if err != nil {
		return nil, err
	}

	q := &model.Quote{
		Decision: Resolve(*state, entry, minted, addr),
		Sale:     *state,
		Proof:    []string{},
	}
	s.Metrics.Decision(string(q.Decision.DenialReason))

	if entry != nil {
		tree, err := s.Tree(ctx)
		if err != nil {
			return nil, err
		}
		if proof, ok := tree.Proof(addr); ok {
			q.Proof = hexProof(proof)
		}
		q.ProofLimit = entry.MaxMintAmount
		if state.AllowlistMode && state.MembershipRoot != "" && tree.Root().Hex() != state.MembershipRoot {
			slog.Warn("allowlist root differs from contract root",
				"item", itemID, "local", tree.Root().Hex(), "onchain", state.MembershipRoot)
		}
	}
	return q, nil
}

// Decide returns only the mint decision for address.
func (s *Service) Decide(ctx context.Context, itemID int64, address string) (*model.MintDecision, error) {
	q, err := s.Quote(ctx, itemID, address)
	if err != nil {
		return nil, err
	}
	return &q.Decision, nil
}

// alreadyMinted takes the larger of the local ledger and the contract's
// per-wallet claim count, so purchases made elsewhere still count.
func (s *Service) alreadyMinted(ctx context.Context, itemID int64, addr string, stale bool) (int64, error) {
	local, err := store.WalletMinted(ctx, s.DB, itemID, addr)
	if err != nil {
		return 0, err
	}
	if s.Chain == nil || stale {
		return local, nil
	}
	claimed, err := s.Chain.WalletClaimed(ctx, itemID, addr)
	if err != nil {
		slog.Warn("failed to read wallet claims", "item", itemID, "wallet", addr, "error", err)
		return local, nil
	}
	return max(local, claimed), nil
}

// Tree returns the proof tree for the current allowlist.
func (s *Service) Tree(ctx context.Context) (*merkle.Tree, error) {
	version, err := store.AllowlistVersion(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return s.Trees.Get(version, func() ([]string, error) {
		entries, err := store.ListAllowlist(ctx, s.DB)
		if err != nil {
			return nil, err
		}
		addrs := make([]string, len(entries))
		for i, e := range entries {
			addrs[i] = e.Address
		}
		slog.Info("building allowlist tree", "version", version, "entries", len(addrs))
		return addrs, nil
	})
}

// Proof returns the membership proof for address, or false if it is not on
// the allowlist.
func (s *Service) Proof(ctx context.Context, address string) ([]string, bool, error) {
	addr, ok := model.NormalizeAddress(address)
	if !ok {
		return nil, false, ErrInvalidAddress
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, false, err
	}
	proof, ok := tree.Proof(addr)
	if !ok {
		return nil, false, nil
	}
	return hexProof(proof), true, nil
}

// RecordMint adds a confirmed purchase to the supply ledger.
func (s *Service) RecordMint(ctx context.Context, itemID int64, wallet string, quantity int64, txHash string) (*model.Mint, error) {
	m, err := store.RecordMint(ctx, s.DB, itemID, wallet, quantity, txHash)
	if err != nil {
		return nil, fmt.Errorf("recording mint: %w", err)
	}
	s.Metrics.MintRecorded()
	slog.Info("mint recorded", "item", itemID, "wallet", m.Wallet, "quantity", quantity, "tx", txHash)
	return m, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func hexProof(proof []merkle.Hash) []string {
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = h.Hex()
	}
	return out
}

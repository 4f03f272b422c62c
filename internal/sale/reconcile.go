package sale

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/kovnica/internal/model"
)

// NativeCurrency describes the chain's native unit under the given symbol.
// It is assumed when neither the contract nor the operator names a currency.
func NativeCurrency(symbol string) model.Currency {
	return model.Currency{Address: model.NativeCurrencyAddress, Symbol: symbol, Decimals: 18}
}

// Reconcile derives the effective sale state for an item. onchain is nil
// when the contract has no active claim condition for it, and override is
// nil when the operator has never configured it. native is the chain's
// native currency. The result depends only on the arguments.
func Reconcile(onchain *model.OnchainSale, override *model.Override, native model.Currency, now time.Time) model.SaleState {
	var o model.Override
	switch {
	case override != nil:
		o = *override
	case onchain != nil:
		o = model.DefaultOverride(onchain.ItemID)
	}

	s := model.SaleState{
		ItemID:         o.ItemID,
		TotalMinted:    o.TotalMinted,
		SoldOutMessage: o.SoldOutMessage,
	}
	if onchain != nil {
		s.ItemID = onchain.ItemID
		s.Name = onchain.Name
	}

	s.Status, s.Provenance.Status = resolve(fieldStatus, map[model.Source]option[model.SaleStatus]{
		model.SourceOverride: overrideStatus(o, now),
		model.SourceDefault:  some(model.SaleStatusUnconfigured),
	})

	reconcilePrice(&s, onchain, o, native)

	var capOpt option[int64]
	if o.MaxSupply != nil {
		capOpt = some(max(0, *o.MaxSupply-o.ReservedSupply))
	}
	supplyCap, src := resolve(fieldSupplyCap, map[model.Source]option[int64]{
		model.SourceOverride: capOpt,
	})
	s.Provenance.SupplyCap = src
	if capOpt.ok {
		remaining := max(0, supplyCap-s.TotalMinted)
		s.EffectiveSupplyCap = &supplyCap
		s.RemainingSupply = &remaining
		s.SoldOut = s.TotalMinted >= supplyCap
	}

	s.EffectivePerWalletCap, s.Provenance.PerWalletCap = resolve(fieldPerWalletCap, map[model.Source]option[int64]{
		model.SourceOverride: when(o.MaxPerWallet != nil && derefInt(o.MaxPerWallet) > 0, derefInt(o.MaxPerWallet)),
		model.SourceOnchain:  when(onchain != nil && onchain.PerWalletCap > 0, perWalletCap(onchain)),
	})

	var rootOpt option[string]
	if onchain != nil {
		rootOpt = some(strings.ToLower(onchain.MembershipRoot))
	}
	s.MembershipRoot, s.Provenance.Membership = resolve(fieldMembership, map[model.Source]option[string]{
		model.SourceOnchain: rootOpt,
	})
	// Without a contract record there is no proof of a public phase, so
	// purchases stay restricted to the allowlist.
	s.AllowlistMode = !rootOpt.ok || !model.IsZeroRoot(s.MembershipRoot)

	return s
}

// overrideStatus applies the operator's sale period. It yields no value
// when the period is disabled or has neither bound.
func overrideStatus(o model.Override, now time.Time) option[model.SaleStatus] {
	switch {
	case !o.SalesPeriodEnabled:
		return option[model.SaleStatus]{}
	case o.IsUnlimited:
		return some(model.SaleStatusUnlimited)
	case o.SalesStartDate == nil && o.SalesEndDate == nil:
		return option[model.SaleStatus]{}
	case o.SalesStartDate != nil && now.Before(*o.SalesStartDate):
		return some(model.SaleStatusBefore)
	case o.SalesEndDate != nil && now.After(*o.SalesEndDate):
		return some(model.SaleStatusAfter)
	}
	return some(model.SaleStatusActive)
}

func reconcilePrice(s *model.SaleState, onchain *model.OnchainSale, o model.Override, native model.Currency) {
	var onchainCurrency option[model.Currency]
	if onchain != nil {
		onchainCurrency = some(onchain.Currency)
	}
	var customCurrency option[model.Currency]
	if o.CustomCurrency != nil {
		customCurrency = some(currencyFor(*o.CustomCurrency, onchain, native))
	}
	currency, curSrc := resolve(fieldCurrency, map[model.Source]option[model.Currency]{
		model.SourceOverride: customCurrency,
		model.SourceOnchain:  onchainCurrency,
		model.SourceDefault:  some(native),
	})
	s.EffectiveCurrency = currency.Symbol
	s.EffectiveCurrencyAddress = currency.Address
	s.CurrencyDecimals = currency.Decimals
	s.Provenance.Currency = curSrc

	currencyConflict := onchain != nil && customCurrency.ok && !sameCurrency(customCurrency.value, onchain.Currency)

	var custom, chainPrice, derived option[decimal.Decimal]
	if o.CustomPrice != nil {
		custom = some(*o.CustomPrice)
	}
	if onchain != nil && !currencyConflict {
		chainPrice = some(onchain.Price)
	}
	if custom.ok && chainPrice.ok {
		derived = some(decimal.Min(custom.value, chainPrice.value))
		s.PriceMismatch = chainPrice.value.GreaterThan(custom.value)
	}

	s.EffectivePrice, s.Provenance.Price = resolve(fieldPrice, map[model.Source]option[decimal.Decimal]{
		model.SourceDerived:  derived,
		model.SourceOverride: custom,
		model.SourceOnchain:  chainPrice,
	})
	s.PriceUnresolved = currencyConflict || (!custom.ok && !chainPrice.ok)

	s.ChargePrice = s.EffectivePrice
	if chainPrice.ok {
		s.ChargePrice = chainPrice.value
	}
}

// currencyFor describes an operator-chosen currency address, borrowing
// metadata from the on-chain record when they match.
func currencyFor(addr string, onchain *model.OnchainSale, native model.Currency) model.Currency {
	c := model.Currency{Address: strings.ToLower(addr), Symbol: strings.ToLower(addr), Decimals: 18}
	switch {
	case onchain != nil && sameCurrency(c, onchain.Currency):
		return onchain.Currency
	case c.Native():
		return native
	}
	return c
}

func sameCurrency(a, b model.Currency) bool {
	if a.Native() || b.Native() {
		return a.Native() && b.Native()
	}
	return strings.EqualFold(a.Address, b.Address)
}

func perWalletCap(onchain *model.OnchainSale) int64 {
	if onchain == nil {
		return 0
	}
	return onchain.PerWalletCap
}

func derefInt(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// Package sale merges on-chain claim parameters, operator overrides and the
// allowlist into the effective sale state and per-wallet mint decisions.
package sale

import "github.com/erazemk/kovnica/internal/model"

type field string

const (
	fieldPrice        field = "price"
	fieldCurrency     field = "currency"
	fieldStatus       field = "status"
	fieldSupplyCap    field = "supply_cap"
	fieldPerWalletCap field = "per_wallet_cap"
	fieldMembership   field = "membership"
)

// precedence lists, per field, the sources consulted in order. The first
// source with a value wins. Derived values combine the on-chain and
// override values of the same field.
var precedence = map[field][]model.Source{
	fieldPrice:        {model.SourceDerived, model.SourceOverride, model.SourceOnchain, model.SourceDefault},
	fieldCurrency:     {model.SourceOverride, model.SourceOnchain, model.SourceDefault},
	fieldStatus:       {model.SourceOverride, model.SourceDefault},
	fieldSupplyCap:    {model.SourceOverride, model.SourceDefault},
	fieldPerWalletCap: {model.SourceOverride, model.SourceOnchain, model.SourceDefault},
	fieldMembership:   {model.SourceOnchain, model.SourceDefault},
}

type option[T any] struct {
	value T
	ok    bool
}

func some[T any](v T) option[T] {
	return option[T]{value: v, ok: true}
}

func when[T any](ok bool, v T) option[T] {
	return option[T]{value: v, ok: ok}
}

// resolve returns the value of the highest-precedence source that has one.
func resolve[T any](f field, candidates map[model.Source]option[T]) (T, model.Source) {
	for _, src := range precedence[f] {
		if c := candidates[src]; c.ok {
			return c.value, src
		}
	}
	var zero T
	return zero, model.SourceDefault
}

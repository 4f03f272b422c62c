package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is the reconciled state of an item's sale window.
type SaleStatus string

// Sale statuses.
const (
	SaleStatusBefore       SaleStatus = "before"
	SaleStatusActive       SaleStatus = "active"
	SaleStatusAfter        SaleStatus = "after"
	SaleStatusUnlimited    SaleStatus = "unlimited"
	SaleStatusUnconfigured SaleStatus = "unconfigured"
)

// Open reports whether purchases are allowed in this status.
func (s SaleStatus) Open() bool {
	return s == SaleStatusActive || s == SaleStatusUnlimited
}

// Currency identifies a payment currency on the ledger.
type Currency struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// Native reports whether the currency is the chain's native unit.
func (c Currency) Native() bool {
	return IsNativeCurrency(c.Address)
}

// OnchainSale is the item's sale configuration as read from the drop
// contract. Prices are in whole currency units, not base units.
type OnchainSale struct {
	ItemID         int64           `json:"item_id"`
	Name           string          `json:"name,omitempty"`
	ConditionID    int64           `json:"condition_id"`
	Price          decimal.Decimal `json:"price"`
	Currency       Currency        `json:"currency"`
	PerWalletCap   int64           `json:"per_wallet_cap"`
	SupplyCap      int64           `json:"supply_cap"`
	SupplyClaimed  int64           `json:"supply_claimed"`
	MembershipRoot string          `json:"membership_root"`
	WindowStart    *time.Time      `json:"window_start,omitempty"`
	WindowEnd      *time.Time      `json:"window_end,omitempty"`
	FetchedAt      time.Time       `json:"fetched_at"`
}

// Override is the operator-controlled local configuration for an item.
// TotalMinted is only ever written by the supply ledger.
type Override struct {
	ItemID             int64            `json:"item_id"`
	DisplayEnabled     bool             `json:"display_enabled"`
	DisplayOrder       int              `json:"display_order"`
	CustomPrice        *decimal.Decimal `json:"custom_price,omitempty"`
	CustomCurrency     *string          `json:"custom_currency,omitempty"`
	SalesPeriodEnabled bool             `json:"sales_period_enabled"`
	IsUnlimited        bool             `json:"is_unlimited"`
	SalesStartDate     *time.Time       `json:"sales_start_date,omitempty"`
	SalesEndDate       *time.Time       `json:"sales_end_date,omitempty"`
	MaxSupply          *int64           `json:"max_supply,omitempty"`
	ReservedSupply     int64            `json:"reserved_supply"`
	TotalMinted        int64            `json:"total_minted"`
	SoldOutMessage     string           `json:"sold_out_message"`
	MaxPerWallet       *int64           `json:"max_per_wallet,omitempty"`
	IsDefaultDisplay   bool             `json:"is_default_display"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// DefaultOverride is used for items the operator has never configured:
// visible, but with no sale period enabled.
func DefaultOverride(itemID int64) Override {
	return Override{ItemID: itemID, DisplayEnabled: true}
}

// Source names where a reconciled field's value came from.
type Source string

// Field sources, from most to least authoritative.
const (
	SourceOnchain  Source = "onchain"
	SourceOverride Source = "override"
	SourceDerived  Source = "derived"
	SourceDefault  Source = "default"
)

// Provenance records the source chosen for each reconciled field.
type Provenance struct {
	Price        Source `json:"price"`
	Currency     Source `json:"currency"`
	Status       Source `json:"status"`
	SupplyCap    Source `json:"supply_cap"`
	PerWalletCap Source `json:"per_wallet_cap"`
	Membership   Source `json:"membership"`
}

// SaleState is the reconciled, point-in-time sale parameters for an item.
// It is derived on every request and never persisted.
type SaleState struct {
	ItemID                   int64           `json:"item_id"`
	Name                     string          `json:"name,omitempty"`
	EffectivePrice           decimal.Decimal `json:"effective_price"`
	ChargePrice              decimal.Decimal `json:"charge_price"`
	EffectiveCurrency        string          `json:"effective_currency"`
	EffectiveCurrencyAddress string          `json:"effective_currency_address"`
	CurrencyDecimals         int32           `json:"currency_decimals"`
	Status                   SaleStatus      `json:"sale_status"`
	EffectiveSupplyCap       *int64          `json:"effective_supply_cap,omitempty"`
	EffectivePerWalletCap    int64           `json:"effective_per_wallet_cap"`
	TotalMinted              int64           `json:"total_minted"`
	RemainingSupply          *int64          `json:"remaining_supply,omitempty"`
	SoldOut                  bool            `json:"sold_out"`
	SoldOutMessage           string          `json:"sold_out_message,omitempty"`
	PriceMismatch            bool            `json:"price_mismatch"`
	PriceUnresolved          bool            `json:"price_unresolved"`
	AllowlistMode            bool            `json:"allowlist_mode"`
	MembershipRoot           string          `json:"membership_root,omitempty"`
	Stale                    bool            `json:"stale"`
	Provenance               Provenance      `json:"provenance"`
}

// Currency returns the effective currency as a value.
func (s SaleState) Currency() Currency {
	return Currency{
		Address:  s.EffectiveCurrencyAddress,
		Symbol:   s.EffectiveCurrency,
		Decimals: s.CurrencyDecimals,
	}
}

// Catalog lists the displayed items. DefaultItemID is the item the
// operator marked to show first, if any.
type Catalog struct {
	Items         []SaleState `json:"items"`
	DefaultItemID *int64      `json:"default_item_id,omitempty"`
}

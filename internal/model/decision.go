package model

import "github.com/shopspring/decimal"

// DenialReason explains why a wallet cannot mint.
type DenialReason string

// Denial reasons, in the priority order they are reported.
const (
	DenialNotAllowlisted    DenialReason = "not-allowlisted"
	DenialWalletCapReached  DenialReason = "wallet-cap-reached"
	DenialSaleNotOpen       DenialReason = "sale-not-open"
	DenialSaleNotConfigured DenialReason = "sale-not-configured"
	DenialSoldOut           DenialReason = "sold-out"
	DenialPriceUnresolved   DenialReason = "price-unresolved"
)

// MintDecision is the per-wallet, per-item authorization and pricing outcome.
type MintDecision struct {
	ItemID                    int64           `json:"item_id"`
	Address                   string          `json:"address"`
	IsAllowlisted             bool            `json:"is_allowlisted"`
	MaxMintAmount             int64           `json:"max_mint_amount"`
	AlreadyMinted             int64           `json:"already_minted"`
	Price                     decimal.Decimal `json:"price"`
	Currency                  string          `json:"currency"`
	CanMint                   bool            `json:"can_mint"`
	DenialReason              DenialReason    `json:"denial_reason,omitempty"`
	RequiresPriceConfirmation bool            `json:"requires_price_confirmation"`
	Stale                     bool            `json:"stale"`
}

// Quote bundles a decision with the sale state it was derived from and the
// membership proof the purchase call needs. ProofLimit is the allowlist
// entry's max mint amount, or zero in public mode.
type Quote struct {
	Decision   MintDecision `json:"decision"`
	Sale       SaleState    `json:"sale"`
	Proof      []string     `json:"proof"`
	ProofLimit int64        `json:"proof_limit"`
}

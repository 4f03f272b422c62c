package sale

import (
	"math"

	"github.com/erazemk/kovnica/internal/model"
)

// unbounded stands in for "no limit" when a public sale has no per-wallet cap.
const unbounded = math.MaxInt32

// Resolve decides whether address may mint under state. entry is the
// address's allowlist entry, or nil. alreadyMinted is the number of units
// the address has bought so far.
func Resolve(state model.SaleState, entry *model.AllowlistEntry, alreadyMinted int64, address string) model.MintDecision {
	d := model.MintDecision{
		ItemID:                    state.ItemID,
		Address:                   address,
		AlreadyMinted:             alreadyMinted,
		Price:                     state.EffectivePrice,
		Currency:                  state.EffectiveCurrency,
		RequiresPriceConfirmation: state.PriceMismatch,
		Stale:                     state.Stale,
	}

	walletCap := state.EffectivePerWalletCap
	var base int64
	switch {
	case !state.AllowlistMode:
		d.IsAllowlisted = true
		base = unbounded
		if walletCap > 0 {
			base = walletCap
		}
	case entry != nil:
		d.IsAllowlisted = true
		base = entry.MaxMintAmount
		if walletCap > 0 {
			base = min(base, walletCap)
		}
	}
	d.MaxMintAmount = max(0, base-alreadyMinted)

	switch {
	case !d.IsAllowlisted:
		d.DenialReason = model.DenialNotAllowlisted
	case d.MaxMintAmount == 0:
		d.DenialReason = model.DenialWalletCapReached
	case state.Status == model.SaleStatusUnconfigured:
		d.DenialReason = model.DenialSaleNotConfigured
	case !state.Status.Open():
		d.DenialReason = model.DenialSaleNotOpen
	case state.SoldOut:
		d.DenialReason = model.DenialSoldOut
	case state.PriceUnresolved:
		d.DenialReason = model.DenialPriceUnresolved
	}
	d.CanMint = d.DenialReason == ""
	return d
}

package model

// AllowlistEntry grants an address the right to mint up to MaxMintAmount units.
type AllowlistEntry struct {
	Address       string `json:"address"`
	MaxMintAmount int64  `json:"max_mint_amount"`
}

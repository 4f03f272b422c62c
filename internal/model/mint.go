package model

import "time"

// Mint is a confirmed on-chain purchase recorded by the supply ledger.
type Mint struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	Wallet    string    `json:"wallet"`
	Quantity  int64     `json:"quantity"`
	TxHash    string    `json:"tx_hash"`
	CreatedAt time.Time `json:"created_at"`
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/kovnica/internal/model"
)

// ErrMintAlreadyRecorded is returned when a transaction hash was already counted.
var ErrMintAlreadyRecorded = errors.New("mint already recorded")

// RecordMint records a confirmed purchase and increments the item's minted
// counter in the same transaction. The counter is bumped in place, so
// concurrent purchases cannot lose an increment.
func RecordMint(ctx context.Context, db *sql.DB, itemID int64, wallet string, quantity int64, txHash string) (*model.Mint, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if txHash == "" {
		return nil, fmt.Errorf("transaction hash required")
	}
	addr, ok := model.NormalizeAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO mints (item_id, wallet, quantity, tx_hash) VALUES (?, ?, ?, ?)`,
		itemID, addr, quantity, txHash,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting mint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking mint insert: %w", err)
	}
	if n == 0 {
		return nil, ErrMintAlreadyRecorded
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting mint id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO item_overrides (item_id, total_minted) VALUES (?, ?)
		 ON CONFLICT (item_id) DO UPDATE SET total_minted = total_minted + excluded.total_minted`,
		itemID, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("incrementing minted counter: %w", err)
	}

	m := &model.Mint{ID: id, ItemID: itemID, Wallet: addr, Quantity: quantity, TxHash: txHash}
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM mints WHERE id = ?`, id).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading mint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing mint: %w", err)
	}
	return m, nil
}

// WalletMinted returns how many units of an item a wallet has bought.
func WalletMinted(ctx context.Context, db *sql.DB, itemID int64, wallet string) (int64, error) {
	addr, ok := model.NormalizeAddress(wallet)
	if !ok {
		return 0, fmt.Errorf("invalid wallet address %q", wallet)
	}

	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM mints WHERE item_id = ? AND wallet = ?`,
		itemID, addr,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing wallet mints: %w", err)
	}
	return total, nil
}

// ListMints returns the recorded purchases of an item, newest first.
func ListMints(ctx context.Context, db *sql.DB, itemID int64) ([]model.Mint, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, item_id, wallet, quantity, tx_hash, created_at
		 FROM mints WHERE item_id = ? ORDER BY id DESC`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mints: %w", err)
	}
	defer rows.Close()

	var mints []model.Mint
	for rows.Next() {
		var m model.Mint
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Wallet, &m.Quantity, &m.TxHash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mint: %w", err)
		}
		mints = append(mints, m)
	}
	return mints, rows.Err()
}

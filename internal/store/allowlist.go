package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/erazemk/kovnica/internal/model"
)

const allowlistVersionKey = "allowlist_version"

// ReplaceAllowlist swaps the whole allowlist for entries and bumps the
// allowlist version. Entries are expected to be normalized and unique.
func ReplaceAllowlist(ctx context.Context, db *sql.DB, entries []model.AllowlistEntry) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM allowlist_entries`); err != nil {
		return 0, fmt.Errorf("clearing allowlist: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO allowlist_entries (address, max_mint_amount) VALUES (?, ?)
		 ON CONFLICT (address) DO UPDATE SET max_mint_amount = excluded.max_mint_amount`,
	)
	if err != nil {
		return 0, fmt.Errorf("preparing allowlist insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Address, e.MaxMintAmount); err != nil {
			return 0, fmt.Errorf("inserting allowlist entry %s: %w", e.Address, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, '1')
		 ON CONFLICT (key) DO UPDATE SET value = CAST(value AS INTEGER) + 1`,
		allowlistVersionKey,
	)
	if err != nil {
		return 0, fmt.Errorf("bumping allowlist version: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, allowlistVersionKey).Scan(&raw); err != nil {
		return 0, fmt.Errorf("reading allowlist version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing allowlist: %w", err)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// GetAllowlistEntry returns the entry for a normalized address, or nil.
func GetAllowlistEntry(ctx context.Context, db *sql.DB, address string) (*model.AllowlistEntry, error) {
	e := &model.AllowlistEntry{}
	err := db.QueryRowContext(ctx,
		`SELECT address, max_mint_amount FROM allowlist_entries WHERE address = ?`, address,
	).Scan(&e.Address, &e.MaxMintAmount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting allowlist entry: %w", err)
	}
	return e, nil
}

// ListAllowlist returns every allowlist entry ordered by address.
func ListAllowlist(ctx context.Context, db *sql.DB) ([]model.AllowlistEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT address, max_mint_amount FROM allowlist_entries ORDER BY address`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing allowlist: %w", err)
	}
	defer rows.Close()

	var entries []model.AllowlistEntry
	for rows.Next() {
		var e model.AllowlistEntry
		if err := rows.Scan(&e.Address, &e.MaxMintAmount); err != nil {
			return nil, fmt.Errorf("scanning allowlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AllowlistVersion returns the current allowlist version, 0 if never uploaded.
func AllowlistVersion(ctx context.Context, db *sql.DB) (int64, error) {
	raw, err := GetSetting(ctx, db, allowlistVersionKey)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing allowlist version: %w", err)
	}
	return v, nil
}

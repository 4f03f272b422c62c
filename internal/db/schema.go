package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'operator' CHECK (role IN ('admin', 'operator')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_overrides (
    item_id              INTEGER PRIMARY KEY,
    display_enabled      INTEGER NOT NULL DEFAULT 1,
    display_order        INTEGER NOT NULL DEFAULT 0,
    custom_price         TEXT,
    custom_currency      TEXT,
    sales_period_enabled INTEGER NOT NULL DEFAULT 0,
    is_unlimited         INTEGER NOT NULL DEFAULT 0,
    sales_start_date     DATETIME,
    sales_end_date       DATETIME,
    max_supply           INTEGER CHECK (max_supply IS NULL OR max_supply >= 0),
    reserved_supply      INTEGER NOT NULL DEFAULT 0 CHECK (reserved_supply >= 0),
    total_minted         INTEGER NOT NULL DEFAULT 0 CHECK (total_minted >= 0),
    sold_out_message     TEXT NOT NULL DEFAULT '',
    max_per_wallet       INTEGER CHECK (max_per_wallet IS NULL OR max_per_wallet >= 0),
    is_default_display   INTEGER NOT NULL DEFAULT 0,
    updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS allowlist_entries (
    address         TEXT PRIMARY KEY,
    max_mint_amount INTEGER NOT NULL CHECK (max_mint_amount >= 0)
);

CREATE TABLE IF NOT EXISTS mints (
    id         INTEGER PRIMARY KEY,
    item_id    INTEGER NOT NULL,
    wallet     TEXT NOT NULL,
    quantity   INTEGER NOT NULL CHECK (quantity > 0),
    tx_hash    TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_mints_item_wallet ON mints(item_id, wallet);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

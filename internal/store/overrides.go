package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/kovnica/internal/model"
)

const overrideColumns = `item_id, display_enabled, display_order, custom_price, custom_currency,
	sales_period_enabled, is_unlimited, sales_start_date, sales_end_date, max_supply,
	reserved_supply, total_minted, sold_out_message, max_per_wallet, is_default_display, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOverride(row rowScanner) (*model.Override, error) {
	var (
		o              model.Override
		customPrice    sql.NullString
		customCurrency sql.NullString
		maxSupply      sql.NullInt64
		maxPerWallet   sql.NullInt64
	)
	err := row.Scan(&o.ItemID, &o.DisplayEnabled, &o.DisplayOrder, &customPrice, &customCurrency,
		&o.SalesPeriodEnabled, &o.IsUnlimited, &o.SalesStartDate, &o.SalesEndDate, &maxSupply,
		&o.ReservedSupply, &o.TotalMinted, &o.SoldOutMessage, &maxPerWallet, &o.IsDefaultDisplay, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if customPrice.Valid {
		price, err := decimal.NewFromString(customPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parsing custom price of item %d: %w", o.ItemID, err)
		}
		o.CustomPrice = &price
	}
	if customCurrency.Valid {
		o.CustomCurrency = &customCurrency.String
	}
	if maxSupply.Valid {
		o.MaxSupply = &maxSupply.Int64
	}
	if maxPerWallet.Valid {
		o.MaxPerWallet = &maxPerWallet.Int64
	}
	return &o, nil
}

// GetOverride returns the override record for an item, or nil if the
// operator has never saved one.
func GetOverride(ctx context.Context, db *sql.DB, itemID int64) (*model.Override, error) {
	o, err := scanOverride(db.QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM item_overrides WHERE item_id = ?`, itemID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting override: %w", err)
	}
	return o, nil
}

// ListOverrides returns all override records in display order.
func ListOverrides(ctx context.Context, db *sql.DB) ([]model.Override, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+overrideColumns+` FROM item_overrides ORDER BY display_order, item_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	var overrides []model.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		overrides = append(overrides, *o)
	}
	return overrides, rows.Err()
}

// PutOverride replaces the operator-writable fields of an item's override
// record. The minted counter is left untouched. Last writer wins.
func PutOverride(ctx context.Context, db *sql.DB, o model.Override) (*model.Override, error) {
	if err := ValidateOverride(o); err != nil {
		return nil, err
	}

	var customPrice, customCurrency *string
	if o.CustomPrice != nil {
		s := o.CustomPrice.String()
		customPrice = &s
	}
	if o.CustomCurrency != nil {
		if addr, ok := model.NormalizeAddress(*o.CustomCurrency); ok {
			customCurrency = &addr
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO item_overrides (item_id, display_enabled, display_order, custom_price, custom_currency,
		     sales_period_enabled, is_unlimited, sales_start_date, sales_end_date, max_supply,
		     reserved_supply, sold_out_message, max_per_wallet, is_default_display)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_id) DO UPDATE SET
		     display_enabled = excluded.display_enabled,
		     display_order = excluded.display_order,
		     custom_price = excluded.custom_price,
		     custom_currency = excluded.custom_currency,
		     sales_period_enabled = excluded.sales_period_enabled,
		     is_unlimited = excluded.is_unlimited,
		     sales_start_date = excluded.sales_start_date,
		     sales_end_date = excluded.sales_end_date,
		     max_supply = excluded.max_supply,
		     reserved_supply = excluded.reserved_supply,
		     sold_out_message = excluded.sold_out_message,
		     max_per_wallet = excluded.max_per_wallet,
		     is_default_display = excluded.is_default_display,
		     updated_at = CURRENT_TIMESTAMP`,
		o.ItemID, o.DisplayEnabled, o.DisplayOrder, customPrice, customCurrency,
		o.SalesPeriodEnabled, o.IsUnlimited, o.SalesStartDate, o.SalesEndDate, o.MaxSupply,
		o.ReservedSupply, o.SoldOutMessage, o.MaxPerWallet, o.IsDefaultDisplay,
	)
	if err != nil {
		return nil, fmt.Errorf("saving override: %w", err)
	}

	return GetOverride(ctx, db, o.ItemID)
}

// ValidateOverride checks operator input before it is stored.
func ValidateOverride(o model.Override) error {
	if o.ItemID < 0 {
		return fmt.Errorf("item id must not be negative")
	}
	if o.CustomPrice != nil && o.CustomPrice.IsNegative() {
		return fmt.Errorf("custom price must not be negative")
	}
	if o.CustomCurrency != nil {
		if _, ok := model.NormalizeAddress(*o.CustomCurrency); !ok {
			return fmt.Errorf("custom currency must be a token address")
		}
	}
	if o.SalesStartDate != nil && o.SalesEndDate != nil && o.SalesEndDate.Before(*o.SalesStartDate) {
		return fmt.Errorf("sales end date is before start date")
	}
	if o.MaxSupply != nil && *o.MaxSupply < 0 {
		return fmt.Errorf("max supply must not be negative")
	}
	if o.ReservedSupply < 0 {
		return fmt.Errorf("reserved supply must not be negative")
	}
	if o.MaxPerWallet != nil && *o.MaxPerWallet < 0 {
		return fmt.Errorf("max per wallet must not be negative")
	}
	return nil
}

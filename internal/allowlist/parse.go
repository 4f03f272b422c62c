// Package allowlist ingests operator-uploaded allowlist tables.
package allowlist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/erazemk/kovnica/internal/model"
)

// ErrMissingAddressColumn is returned for tables without an address column.
var ErrMissingAddressColumn = errors.New("allowlist table has no address column")

// DefaultMaxMintAmount applies to rows without a maxMintAmount value.
const DefaultMaxMintAmount = 1

// Format is an accepted upload format.
type Format string

// Formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file name, defaulting to CSV.
func FormatFromName(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Parse reads an allowlist table. The result is unique by address (the last
// row for an address wins) and sorted by address.
func Parse(r io.Reader, format Format) ([]model.AllowlistEntry, error) {
	var rows [][]string
	var err error

	switch format {
	case FormatXLSX:
		rows, err = readXLSX(r)
	case FormatCSV:
		rows, err = readCSV(r)
	default:
		return nil, fmt.Errorf("unsupported allowlist format %q", format)
	}
	if err != nil {
		return nil, err
	}

	return parseRows(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// headerKey folds "Max Mint Amount", "max_mint_amount" and "maxMintAmount"
// onto the same key.
func headerKey(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func parseRows(rows [][]string) ([]model.AllowlistEntry, error) {
	if len(rows) == 0 {
		return nil, ErrMissingAddressColumn
	}

	addrCol, maxCol := -1, -1
	for i, h := range rows[0] {
		switch headerKey(h) {
		case "address":
			addrCol = i
		case "maxmintamount":
			maxCol = i
		}
	}
	if addrCol < 0 {
		return nil, ErrMissingAddressColumn
	}

	byAddr := make(map[string]int64)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}

		raw := cell(row, addrCol)
		addr, ok := model.NormalizeAddress(raw)
		if !ok {
			return nil, fmt.Errorf("row %d: invalid address %q", line, raw)
		}

		amount := int64(DefaultMaxMintAmount)
		if v := cell(row, maxCol); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid maxMintAmount %q", line, v)
			}
			if n < 0 {
				return nil, fmt.Errorf("row %d: maxMintAmount must not be negative", line)
			}
			amount = n
		}
		byAddr[addr] = amount
	}

	entries := make([]model.AllowlistEntry, 0, len(byAddr))
	for addr, amount := range byAddr {
		entries = append(entries, model.AllowlistEntry{Address: addr, MaxMintAmount: amount})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

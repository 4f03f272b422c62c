package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrencyAddress is the sentinel address drop contracts use for the
// chain's native unit.
const NativeCurrencyAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// ZeroRoot is the membership root of a public (non-allowlisted) claim phase.
const ZeroRoot = "0x0000000000000000000000000000000000000000000000000000000000000000"

// NormalizeAddress returns the lower-case 0x form of a hex address.
func NormalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), true
}

// IsNativeCurrency reports whether addr denotes the chain's native unit.
func IsNativeCurrency(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return a == "" || a == NativeCurrencyAddress || a == strings.ToLower(common.Address{}.Hex())
}

// IsZeroRoot reports whether root is empty or all zeroes.
func IsZeroRoot(root string) bool {
	r := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(root)), "0x")
	return strings.Trim(r, "0") == ""
}

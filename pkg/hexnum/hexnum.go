// Package hexnum implements the canonical quantity encoding used on the filter wire:
// a 0x prefix followed by an even number of lower case hex digits.
package hexnum

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidQuantity = errors.New("invalid hex quantity")

// IntToHex encodes n canonically, left padding with a single zero when the natural
// encoding has an odd number of digits.
func IntToHex(n uint64) string {
	digits := strconv.FormatUint(n, 16)
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	return "0x" + digits
}

// HexToInt decodes a 0x prefixed hex quantity. Leading zeros and odd digit counts are
// accepted so every canonical value round-trips.
func HexToInt(s string) (uint64, error) {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	n, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return n, nil
}

// IncrementHex returns s+1 canonically encoded. An empty input stays empty, which is how
// an absent block reference travels through range computations.
func IncrementHex(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	n, err := HexToInt(s)
	if err != nil {
		return "", err
	}
	return IntToHex(n + 1), nil
}

// Canonical re-encodes a numeric string. Strings with a 0x prefix are read as hex,
// anything else as decimal.
func Canonical(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := HexToInt(s)
		if err != nil {
			return "", err
		}
		return IntToHex(n), nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return IntToHex(n), nil
}

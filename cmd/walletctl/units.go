package main

import (
	"fmt"
	"math/big"
	"strings"
)

// parseValue parses amounts like "1ether", "0.5gwei" or "1000".
func parseValue(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "0" {
		return new(big.Int), nil
	}

	decimals := 0
	switch {
	case strings.HasSuffix(s, "ether"):
		decimals, s = 18, strings.TrimSuffix(s, "ether")
	case strings.HasSuffix(s, "eth"):
		decimals, s = 18, strings.TrimSuffix(s, "eth")
	case strings.HasSuffix(s, "gwei"):
		decimals, s = 9, strings.TrimSuffix(s, "gwei")
	case strings.HasSuffix(s, "wei"):
		s = strings.TrimSuffix(s, "wei")
	}
	s = strings.TrimSpace(s)

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(frac) > decimals {
		return nil, fmt.Errorf("too many decimal places in %q", s)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid number %q", s)
	}

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

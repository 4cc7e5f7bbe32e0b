package chain

import (
	"math/big"
	"strings"
)

// FormatAtomic renders an integer amount of atomic token units as a decimal
// string with `decimals` fractional digits, per spec.md §4.6.4: no
// scientific notation, at least one fractional digit ("0.0" for zero),
// trailing zeros trimmed but the leading integer-part zero kept.
func FormatAtomic(atomic *big.Int, decimals int) string {
	if atomic == nil {
		atomic = big.NewInt(0)
	}
	neg := atomic.Sign() < 0
	abs := new(big.Int).Abs(atomic)

	s := abs.String()
	for len(s) <= decimals {
		s = "0" + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := s[len(s)-decimals:]
	if intPart == "" {
		intPart = "0"
	}

	fracPart = strings.TrimRight(fracPart, "0")
	if fracPart == "" {
		fracPart = "0"
	}

	out := intPart + "." + fracPart
	if neg && abs.Sign() != 0 {
		out = "-" + out
	}
	return out
}

// ParseDecimalToAtomic parses a decimal USDC string (e.g. "5.00") into
// atomic units at the given decimals, for rule-limit comparisons.
func ParseDecimalToAtomic(decimal string, decimals int) (*big.Int, bool) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return nil, false
	}
	neg := false
	if strings.HasPrefix(decimal, "-") {
		neg = true
		decimal = decimal[1:]
	}

	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	for len(fracPart) < decimals {
		fracPart += "0"
	}

	combined := intPart + fracPart
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, false
	}
	if neg {
		v.Neg(v)
	}
	return v, true
}

package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/payflowhq/payflow/internal/errors"
)

// User-facing amounts are decimal strings; everything the routing service
// sees is an integer base-unit string. The conversion happens exactly once,
// with big.Int so large token amounts never lose precision.

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// NormalizeAmount accepts exactly one of an integer base-unit amount or a
// decimal amount and returns both representations.
func NormalizeAmount(baseUnits, decimal string, decimals int) (string, string, error) {
	switch {
	case baseUnits != "" && decimal != "":
		return "", "", clierr.New(clierr.CodeUsage, "use either --amount or --amount-decimal, not both")
	case baseUnits == "" && decimal == "":
		return "", "", clierr.New(clierr.CodeUsage, "amount is required")
	case decimals < 0:
		return "", "", clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}

	if baseUnits != "" {
		if strings.HasPrefix(baseUnits, "-") {
			return "", "", clierr.New(clierr.CodeUsage, "--amount must be non-negative")
		}
		if _, ok := new(big.Int).SetString(baseUnits, 10); !ok {
			return "", "", clierr.New(clierr.CodeUsage, "--amount must be a positive integer string")
		}
		return baseUnits, FormatDecimal(baseUnits, decimals), nil
	}

	base, err := toBaseUnits(decimal, decimals)
	if err != nil {
		return "", "", err
	}
	return base, trimDecimal(decimal), nil
}

// FormatDecimal renders a base-unit integer string as a decimal string with
// trailing zeros removed.
func FormatDecimal(baseUnits string, decimals int) string {
	digits := new(big.Int)
	digits.SetString(baseUnits, 10)
	s := digits.String()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func toBaseUnits(decimal string, decimals int) (string, error) {
	if !decimalPattern.MatchString(decimal) {
		return "", clierr.New(clierr.CodeUsage, "--amount-decimal must be in decimal form like 1.23")
	}
	whole, frac, _ := strings.Cut(decimal, ".")
	if len(frac) > decimals {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	combined := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if combined == "" {
		return "0", nil
	}
	if _, ok := new(big.Int).SetString(combined, 10); !ok {
		return "", clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	return combined, nil
}

func trimDecimal(v string) string {
	whole, frac, hasFrac := strings.Cut(v, ".")
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	if !hasFrac {
		return whole
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

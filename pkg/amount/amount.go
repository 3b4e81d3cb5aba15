// Package amount converts between decimal ETH strings and wei.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const Decimals = 18

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more than 18 decimals")
	ErrNegative      = errors.New("amount must not be negative")
)

// ParseETH converts a decimal ETH string such as "0.01" into wei. An empty
// string is zero.
func ParseETH(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}

	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNegative, s)
	}

	wei := d.Shift(Decimals)
	if !wei.Truncate(0).Equal(wei) {
		return nil, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}

	out, ok := new(big.Int).SetString(wei.Truncate(0).String(), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return out, nil
}

// FormatETH renders wei as a decimal ETH string without trailing zeros.
// nil is "0".
func FormatETH(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	return decimal.NewFromBigInt(wei, -Decimals).String()
}

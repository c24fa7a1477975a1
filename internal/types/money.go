// README: Money value object; amounts are kept in cents so sums stay exact.
package types

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a monetary amount in minor units.
type Cents int64

// CentsFromFloat rounds a decimal amount to the nearest cent.
func CentsFromFloat(v float64) Cents {
	return Cents(math.Round(v * 100))
}

// ParseCents parses a decimal string such as "12.5" or "7".
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse amount: empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return CentsFromFloat(v), nil
}

// Mul scales the amount by a non-negative factor, rounding half away from zero.
func (c Cents) Mul(f float64) Cents {
	return Cents(math.Round(float64(c) * f))
}

func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String renders the amount with two decimals, e.g. "6.65".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and decimal strings.
func (c *Cents) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = unq
	}
	v, err := ParseCents(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

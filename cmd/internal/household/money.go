package household

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Amount is a non-negative money value in minor units (1/100).
type Amount int64

var ErrInvalidAmount = errors.New("invalid amount")

// maxAmount keeps totals of many rows far from int64 overflow.
const maxAmount = Amount(math.MaxInt64 / 1_000_000)

// ParseAmount reads "12", "12.5" or "12.50". Signs, exponents and more than
// two decimals are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" || (hasDot && (frac == "" || len(frac) > 2)) {
		return 0, ErrInvalidAmount
	}
	if !digits(whole) || !digits(frac) {
		return 0, ErrInvalidAmount
	}
	if len(whole) > 13 {
		return 0, ErrInvalidAmount
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	var f int64
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		f, _ = strconv.ParseInt(frac, 10, 64)
	}
	a := Amount(w*100 + f)
	if a > maxAmount {
		return 0, ErrInvalidAmount
	}
	return a, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats with exactly two decimals.
func (a Amount) String() string {
	neg := a < 0
	if neg {
		a = -a
	}
	frac := strconv.FormatInt(int64(a%100), 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	out := strconv.FormatInt(int64(a/100), 10) + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// MarshalJSON writes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or a bare JSON number, both parsed
// as text so no float rounding happens.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// NumericToMinorUnits converts a numeric money column (e.g. 12.50) to integer minor
// units (1250), rounding half away from zero.
func NumericToMinorUnits(value pgtype.Numeric) int64 {
	if !value.Valid || value.NaN {
		return 0
	}
	f, err := value.Float64Value()
	if err == nil && f.Valid {
		return int64(math.Round(f.Float64 * 100))
	}
	// fallback to string parse
	text, err := value.MarshalJSON()
	if err != nil {
		return 0
	}
	var out float64
	if _, err := fmt.Sscan(string(text), &out); err != nil {
		return 0
	}
	return int64(math.Round(out * 100))
}

// FormatMinorUnits renders 1250 as "12.50".
func FormatMinorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := strconv.FormatInt(amount%100, 10)
	if len(cents) == 1 {
		cents = "0" + cents
	}
	return sign + strconv.FormatInt(amount/100, 10) + "." + cents
}

// ParseMinorUnits reads "12.5" or "12.50" as 1250.
func ParseMinorUnits(text string) (int64, error) {
	text = strings.TrimSpace(text)
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", text, err)
	}
	return int64(math.Round(f * 100)), nil
}

package market

import (
	"fmt"
	"time"
)

// YearMonth is a calendar month, the unit the provider archives data by.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth accepts "2006-01" or "200601".
func ParseYearMonth(s string) (YearMonth, error) {
	for _, layout := range []string{"2006-01", "200601"} {
		if t, err := time.Parse(layout, s); err == nil {
			return YearMonth{Year: t.Year(), Month: t.Month()}, nil
		}
	}
	return YearMonth{}, fmt.Errorf("invalid year-month %q, want YYYY-MM", s)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Compact renders the provider's six digit form, e.g. "202101".
func (ym YearMonth) Compact() string {
	return fmt.Sprintf("%04d%02d", ym.Year, int(ym.Month))
}

// Before reports whether ym precedes other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// Next returns the following calendar month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// MonthsBetween expands the inclusive range [start, end] into individual
// months in ascending order. Returns an error when the range is inverted.
func MonthsBetween(start, end YearMonth) ([]YearMonth, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end %s precedes start %s", end, start)
	}
	var months []YearMonth
	for ym := start; !end.Before(ym); ym = ym.Next() {
		months = append(months, ym)
	}
	return months, nil
}

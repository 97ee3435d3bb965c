package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tinoosan/fintrack/internal/errs"
)

// Month identifies a calendar month (one billing cycle of a card).
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month { return Month{Year: t.Year(), Month: t.Month()} }

// ParseMonth parses a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return Month{}, fmt.Errorf("%q: %w", s, errs.ErrInvalidMonthFormat)
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil {
		return Month{}, fmt.Errorf("%q: %w", s, errs.ErrInvalidMonthFormat)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return Month{}, fmt.Errorf("%q: %w", s, errs.ErrInvalidMonthFormat)
	}
	out := Month{Year: y, Month: time.Month(m)}
	if !out.Valid() {
		return Month{}, fmt.Errorf("%q: %w", s, errs.ErrInvalidMonthFormat)
	}
	return out, nil
}

// Valid reports whether m is a real calendar month.
func (m Month) Valid() bool {
	return m.Year >= 1 && m.Year <= 9999 && m.Month >= time.January && m.Month <= time.December
}

// String formats m as "YYYY-MM".
func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// AddMonths returns the month n months after m (n may be negative).
func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// MarshalText implements encoding.TextMarshaler.
func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Month) UnmarshalText(b []byte) error {
	v, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

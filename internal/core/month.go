package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a calendar month with no day component. The zero value means
// "no month".
type Month struct {
	Year  int
	Month time.Month
}

var errMonthFormat = errors.New("month must be MM/YYYY or YYYY-MM")

// NewMonth creates a Month from year and month numbers
func NewMonth(year, month int) Month {
	return Month{Year: year, Month: time.Month(month)}
}

// MonthOf returns the calendar month containing t
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "MM/YYYY" (display form) and "YYYY-MM" (storage form).
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	var yearStr, monthStr string
	switch {
	case strings.Contains(s, "/"):
		parts := strings.Split(s, "/")
		if len(parts) != 2 {
			return Month{}, errMonthFormat
		}
		monthStr, yearStr = parts[0], parts[1]
	case strings.Contains(s, "-"):
		parts := strings.Split(s, "-")
		if len(parts) != 2 {
			return Month{}, errMonthFormat
		}
		yearStr, monthStr = parts[0], parts[1]
	default:
		return Month{}, errMonthFormat
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil || len(yearStr) != 4 {
		return Month{}, fmt.Errorf("invalid year %q: %w", yearStr, errMonthFormat)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || len(monthStr) > 2 {
		return Month{}, fmt.Errorf("invalid month %q: %w", monthStr, errMonthFormat)
	}

	m := NewMonth(year, month)
	if err := m.Validate(); err != nil {
		return Month{}, err
	}
	return m, nil
}

// Validate checks the month is present and within range
func (m Month) Validate() error {
	if m.IsZero() {
		return errors.New("month cannot be zero")
	}
	if m.Year < 1 || m.Year > 9999 {
		return fmt.Errorf("year %d out of range", m.Year)
	}
	if m.Month < time.January || m.Month > time.December {
		return ErrInvalidMonth
	}
	return nil
}

// IsZero reports whether m is the zero Month
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Compare returns -1, 0 or +1 depending on whether m is before, equal to or after o.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year < o.Year:
		return -1
	case m.Year > o.Year:
		return 1
	case m.Month < o.Month:
		return -1
	case m.Month > o.Month:
		return 1
	}
	return 0
}

func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }
func (m Month) After(o Month) bool  { return m.Compare(o) > 0 }
func (m Month) Equal(o Month) bool  { return m.Compare(o) == 0 }

// AddMonths returns the month n months after m (n may be negative).
func (m Month) AddMonths(n int) Month {
	idx := m.Year*12 + int(m.Month) - 1 + n
	return Month{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

// Time returns the first instant of the month in UTC
func (m Month) Time() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Format returns the display form "MM/YYYY"
func (m Month) Format() string {
	return fmt.Sprintf("%02d/%04d", int(m.Month), m.Year)
}

// String returns the storage form "YYYY-MM"
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

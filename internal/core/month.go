package core

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month unambiguously across years.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t, in t's location.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// AddMonths returns the month n months after k (n may be negative).
func (k MonthKey) AddMonths(n int) MonthKey {
	idx := k.Year*12 + int(k.Month) - 1 + n
	y := idx / 12
	m := idx % 12
	if m < 0 {
		m += 12
		y--
	}
	return MonthKey{Year: y, Month: time.Month(m + 1)}
}

// Start returns midnight of the first day of the month in loc.
func (k MonthKey) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, loc)
}

func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Package correlation joins daily news sentiment to daily price changes.
//
// Articles are matched to symbols by keyword, their sentiment is averaged per
// calendar day, prices are turned into day-over-day percentage changes, and
// each sentiment day is aligned to the nearest known trading day. Everything
// in this package is a pure function of its inputs.
package correlation

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a calendar date string cannot be parsed.
var ErrInvalidDate = errors.New("invalid calendar date")

// Date is a calendar day in YYYY-MM-DD form. Values produced by ParseDate are
// always canonical, so two equal days compare equal as map keys.
type Date string

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time returns midnight UTC of d.
func (d Date) Time() (time.Time, error) {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, string(d))
	}
	return t, nil
}

func (d Date) String() string { return string(d) }

// DateSet is a set of calendar days.
type DateSet map[Date]struct{}

// NewDateSet builds a set from the given days.
func NewDateSet(dates ...Date) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

// Has reports whether d is in the set.
func (s DateSet) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

// KeySet returns the days that key m.
func KeySet(m map[Date]float64) DateSet {
	s := make(DateSet, len(m))
	for d := range m {
		s[d] = struct{}{}
	}
	return s
}

package utils

import (
	"testing"
	"time"
)

func TestMarketOpenClose(t *testing.T) {
	date := time.Date(2026, 2, 18, 12, 0, 0, 0, Eastern)

	open := MarketOpenTime(date)
	if open.Hour() != 9 || open.Minute() != 30 {
		t.Errorf("MarketOpenTime = %v, want 09:30", open)
	}

	close := MarketCloseTime(date)
	if close.Hour() != 16 || close.Minute() != 0 {
		t.Errorf("MarketCloseTime = %v, want 16:00", close)
	}
}

func TestIsMarketOpenAt(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"wednesday 10:00", time.Date(2026, 2, 18, 10, 0, 0, 0, Eastern), true},
		{"saturday", time.Date(2026, 2, 21, 10, 0, 0, 0, Eastern), false},
		{"before open", time.Date(2026, 2, 18, 9, 29, 0, 0, Eastern), false},
		{"at close", time.Date(2026, 2, 18, 16, 0, 0, 0, Eastern), false},
		{"good friday", time.Date(2026, 4, 3, 11, 0, 0, 0, Eastern), false},
		{"utc input", time.Date(2026, 2, 18, 15, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarketOpenAt(tt.at); got != tt.want {
				t.Errorf("IsMarketOpenAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestNextTradingDay(t *testing.T) {
	// Thursday before Good Friday 2026 -> Monday.
	got := NextTradingDay(time.Date(2026, 4, 2, 12, 0, 0, 0, Eastern))
	if got.Format("2006-01-02") != "2026-04-06" {
		t.Errorf("NextTradingDay = %s, want 2026-04-06", got.Format("2006-01-02"))
	}
}

func TestMarketStatusAt(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 2, 21, 10, 0, 0, 0, Eastern), "CLOSED (Weekend)"},
		{time.Date(2026, 12, 25, 10, 0, 0, 0, Eastern), "CLOSED (Christmas Day)"},
		{time.Date(2026, 2, 18, 3, 0, 0, 0, Eastern), "CLOSED"},
		{time.Date(2026, 2, 18, 8, 0, 0, 0, Eastern), "PRE-MARKET"},
		{time.Date(2026, 2, 18, 12, 0, 0, 0, Eastern), "OPEN"},
		{time.Date(2026, 2, 18, 17, 0, 0, 0, Eastern), "AFTER-HOURS"},
	}
	for _, tt := range tests {
		if got := MarketStatusAt(tt.at); got != tt.want {
			t.Errorf("MarketStatusAt(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

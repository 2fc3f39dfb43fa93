package correlation

import (
	"errors"
	"fmt"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// ErrUnsortedSeries is returned by CheckSeries when price dates are not
// strictly ascending.
var ErrUnsortedSeries = errors.New("price series is not in ascending date order")

// DailySentiment averages article scores per calendar day. The day is the
// first ten characters of PublishedAt; articles without a timestamp are
// skipped. A timestamp whose date prefix is not a calendar date is an error.
func DailySentiment(scored []models.ScoredArticle) (map[Date]float64, error) {
	sums := make(map[Date]float64)
	counts := make(map[Date]int)

	for _, a := range scored {
		if a.PublishedAt == "" {
			continue
		}
		if len(a.PublishedAt) < len(DateLayout) {
			return nil, fmt.Errorf("article %q: %w: %q", a.URL, ErrInvalidDate, a.PublishedAt)
		}
		day, err := ParseDate(a.PublishedAt[:len(DateLayout)])
		if err != nil {
			return nil, fmt.Errorf("article %q: %w", a.URL, err)
		}
		sums[day] += a.SentimentScore
		counts[day]++
	}

	daily := make(map[Date]float64, len(sums))
	for day, sum := range sums {
		daily[day] = sum / float64(counts[day])
	}
	return daily, nil
}

// DailyPriceChanges returns the percentage change of each bar against the bar
// before it in the given order. The series is not re-sorted, so callers must
// pass it in ascending date order. The first bar has no entry, and neither
// does a bar whose predecessor has a non-positive close.
func DailyPriceChanges(prices []models.PriceBar) (map[Date]float64, error) {
	changes := make(map[Date]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		today, prev := prices[i], prices[i-1]
		day, err := ParseDate(today.Date)
		if err != nil {
			return nil, err
		}
		if prev.Close <= 0 {
			continue
		}
		changes[day] = (today.Close - prev.Close) / prev.Close * 100
	}
	return changes, nil
}

// CheckSeries reports whether prices are in strictly ascending date order,
// which is what DailyPriceChanges assumes.
func CheckSeries(prices []models.PriceBar) error {
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1].Date, prices[i].Date
		if _, err := ParseDate(cur); err != nil {
			return err
		}
		if cur <= prev {
			return fmt.Errorf("%w: %s follows %s", ErrUnsortedSeries, cur, prev)
		}
	}
	return nil
}

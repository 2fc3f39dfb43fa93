package datasource

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/seenimoa/stockpulse/pkg/models"
	"github.com/seenimoa/stockpulse/pkg/utils"
)

// DefaultYahooURL is the Yahoo Finance chart API root.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// Yahoo fetches daily closes from the Yahoo Finance chart API. It needs no
// API key and serves as the fallback price source.
type Yahoo struct {
	client
	now func() time.Time
}

// NewYahoo creates a Yahoo Finance price client.
func NewYahoo(opts ...Option) *Yahoo {
	y := &Yahoo{
		client: newClient("yahoo", DefaultYahooURL, opts),
		now:    time.Now,
	}
	if y.historyDays <= 0 {
		y.historyDays = DefaultHistoryDays
	}
	return y
}

// --- Yahoo Finance v8 API types ---

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta       yfChartMeta  `json:"meta"`
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfChartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Timezone string `json:"exchangeTimezoneName"`
}

type yfIndicators struct {
	Quote []yfOHLCV `json:"quote"`
}

type yfOHLCV struct {
	Close []*float64 `json:"close"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// FetchDaily returns the most recent daily closes of symbol in ascending
// date order.
func (y *Yahoo) FetchDaily(ctx context.Context, symbol string) ([]models.PriceBar, error) {
	cacheKey := fmt.Sprintf("yahoo:daily:%s:%d", symbol, y.historyDays)
	var bars []models.PriceBar
	if y.cached(ctx, cacheKey, &bars) {
		return bars, nil
	}

	// Calendar days, padded so weekends and holidays still leave
	// historyDays trading days.
	to := y.now()
	from := to.AddDate(0, 0, -(y.historyDays*7/5 + 10))
	q := url.Values{}
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(to.Unix()))
	q.Set("interval", "1d")

	var resp yfChartResponse
	if err := y.getJSON(ctx, y.baseURL+"/v8/finance/chart/"+url.PathEscape(symbol)+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, newError(y.source, KindInvalidSymbol, symbol+": "+resp.Chart.Error.Description, nil)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, newError(y.source, KindNoData, "no chart for "+symbol, nil)
	}

	bars = parseYFCloses(resp.Chart.Result[0])
	if len(bars) == 0 {
		return nil, newError(y.source, KindNoData, "empty daily series for "+symbol, nil)
	}
	if len(bars) > y.historyDays {
		bars = bars[len(bars)-y.historyDays:]
	}
	y.store(ctx, cacheKey, bars)
	return bars, nil
}

// --- Helpers ---

// parseYFCloses maps chart timestamps to exchange-local trading days,
// skipping null closes. A repeated day keeps its last close.
func parseYFCloses(result yfChartResult) []models.PriceBar {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	closes := result.Indicators.Quote[0].Close

	loc := utils.Eastern
	if result.Meta.Timezone != "" {
		if l, err := time.LoadLocation(result.Meta.Timezone); err == nil {
			loc = l
		}
	}

	byDate := make(map[string]float64, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		byDate[time.Unix(ts, 0).In(loc).Format("2006-01-02")] = *closes[i]
	}

	bars := make([]models.PriceBar, 0, len(byDate))
	for date, c := range byDate {
		bars = append(bars, models.PriceBar{Date: date, Close: c})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars
}

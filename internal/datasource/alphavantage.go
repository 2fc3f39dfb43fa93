package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// DefaultAlphaVantageURL is the Alpha Vantage API root.
const DefaultAlphaVantageURL = "https://www.alphavantage.co"

// DefaultHistoryDays is how many recent bars FetchDaily returns by default.
const DefaultHistoryDays = 90

// AlphaVantage fetches daily closing prices.
type AlphaVantage struct {
	client
	apiKey string
}

// NewAlphaVantage creates a price client. An empty key makes every fetch
// fail with KindConfig.
func NewAlphaVantage(apiKey string, opts ...Option) *AlphaVantage {
	av := &AlphaVantage{
		client: newClient("alphavantage", DefaultAlphaVantageURL, opts),
		apiKey: apiKey,
	}
	if av.historyDays <= 0 {
		av.historyDays = DefaultHistoryDays
	}
	return av
}

// FetchDaily returns the most recent daily closes of symbol in ascending
// date order.
func (a *AlphaVantage) FetchDaily(ctx context.Context, symbol string) ([]models.PriceBar, error) {
	if a.apiKey == "" {
		return nil, newError(a.source, KindConfig, "ALPHA_VANTAGE_KEY is not set", nil)
	}

	cacheKey := fmt.Sprintf("alphavantage:daily:%s:%d", symbol, a.historyDays)
	var bars []models.PriceBar
	if a.cached(ctx, cacheKey, &bars) {
		return bars, nil
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)
	if a.historyDays > 100 {
		q.Set("outputsize", "full")
	}

	var payload map[string]json.RawMessage
	if err := a.getJSON(ctx, a.baseURL+"/query?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	bars, err := a.parseDaily(symbol, payload)
	if err != nil {
		return nil, err
	}
	a.store(ctx, cacheKey, bars)
	return bars, nil
}

// parseDaily maps a TIME_SERIES_DAILY payload to ascending bars, keeping
// the newest historyDays entries.
func (a *AlphaVantage) parseDaily(symbol string, payload map[string]json.RawMessage) ([]models.PriceBar, error) {
	if msg, ok := payloadMessage(payload, "Error Message"); ok {
		return nil, newError(a.source, KindInvalidSymbol, symbol+": "+msg, nil)
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := payloadMessage(payload, key); ok {
			return nil, newError(a.source, KindQuota, msg, nil)
		}
	}

	raw, ok := payload["Time Series (Daily)"]
	if !ok {
		return nil, newError(a.source, KindNoData, "no daily series for "+symbol, nil)
	}
	var series map[string]map[string]string
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, newError(a.source, KindProvider, "decode daily series", err)
	}

	bars := make([]models.PriceBar, 0, len(series))
	for date, fields := range series {
		closeStr, ok := fields["4. close"]
		if !ok {
			continue
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(closeStr), 64)
		if err != nil {
			continue
		}
		bars = append(bars, models.PriceBar{Date: date, Close: closePrice})
	}
	if len(bars) == 0 {
		return nil, newError(a.source, KindNoData, "empty daily series for "+symbol, nil)
	}

	// Newest first, trim, then back to ascending.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date > bars[j].Date })
	if len(bars) > a.historyDays {
		bars = bars[:a.historyDays]
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

func payloadMessage(payload map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return string(raw), true
	}
	return msg, true
}

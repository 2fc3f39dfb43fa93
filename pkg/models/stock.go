// Package models defines the core data structures used throughout StockPulse.
package models

// Stock is one tracked ticker together with the keywords used to match news to it.
type Stock struct {
	Symbol   string   `json:"symbol"             mapstructure:"symbol"   yaml:"symbol"`   // e.g., "AAPL"
	Name     string   `json:"name"               mapstructure:"name"     yaml:"name"`     // e.g., "Apple Inc."
	Keywords []string `json:"keywords,omitempty" mapstructure:"keywords" yaml:"keywords"` // e.g., "iPhone", "Tim Cook"
}

// PriceBar is the closing price of a symbol on one calendar day.
type PriceBar struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// StockPriceDay is a persisted closing price keyed by (symbol, date).
type StockPriceDay struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
}

// APIUsage holds the advisory per-day call counters for the external providers.
type APIUsage struct {
	Date          string `json:"date"`
	NewsCalls     int    `json:"news_calls"`
	StockCalls    int    `json:"stock_calls"`
	MaxNewsCalls  int    `json:"max_news_calls,omitempty"`
	MaxStockCalls int    `json:"max_stock_calls,omitempty"`
}

// NewsExhausted reports whether the news provider quota for the day is used up.
func (u APIUsage) NewsExhausted() bool {
	return u.MaxNewsCalls > 0 && u.NewsCalls >= u.MaxNewsCalls
}

// StockExhausted reports whether the price provider quota for the day is used up.
func (u APIUsage) StockExhausted() bool {
	return u.MaxStockCalls > 0 && u.StockCalls >= u.MaxStockCalls
}

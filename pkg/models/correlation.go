package models

// Correlation pairs the mean sentiment of a news date with the price change
// of the trading date it was aligned to.
type Correlation struct {
	Symbol      string  `json:"symbol,omitempty"`
	NewsDate    string  `json:"news_date"`
	TradingDate string  `json:"trading_date"`
	Sentiment   float64 `json:"sentiment"`
	PriceChange float64 `json:"price_change"` // percent
}

// CorrelationSummary is the sign-conditioned description of a correlation set.
// Averages are 0 when their partition is empty.
type CorrelationSummary struct {
	TotalCorrelations      int     `json:"total_correlations"`
	PositiveSentimentDays  int     `json:"positive_sentiment_days"`
	NegativeSentimentDays  int     `json:"negative_sentiment_days"`
	AvgPositivePriceChange float64 `json:"avg_positive_price_change"`
	AvgNegativePriceChange float64 `json:"avg_negative_price_change"`
}

// CorrelationCoverage describes how much of the input made it into correlations.
type CorrelationCoverage struct {
	ArticlesUsed      int     `json:"articles_used"`
	DaysWithSentiment int     `json:"days_with_sentiment"`
	TradingDays       int     `json:"trading_days"`
	DaysCorrelated    int     `json:"days_correlated"`
	CoveragePct       float64 `json:"coverage_pct"`
}

// CorrelationReport is the full result of a correlation run for one symbol.
type CorrelationReport struct {
	Symbol       string              `json:"symbol"`
	Correlations []Correlation       `json:"correlation_data"`
	Summary      CorrelationSummary  `json:"summary"`
	Coverage     CorrelationCoverage `json:"coverage"`
	Message      string              `json:"message,omitempty"`
}

package models

// Classification is the three-way sentiment label.
type Classification string

const (
	Positive Classification = "positive"
	Negative Classification = "negative"
	Neutral  Classification = "neutral"
)

// Classification thresholds. Both boundaries are neutral.
const (
	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
)

// Classify maps a score in [-1, 1] to its classification.
func Classify(score float64) Classification {
	switch {
	case score > PositiveThreshold:
		return Positive
	case score < NegativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

// SentimentResult is the output of a sentiment scorer for one piece of text.
type SentimentResult struct {
	Score          float64            `json:"combined_score"` // -1.0 (very negative) to +1.0 (very positive)
	Classification Classification     `json:"classification"`
	Confidence     float64            `json:"confidence"`
	Components     map[string]float64 `json:"components,omitempty"` // per-model scores, e.g. "lexicon", "polarity"
}

// OverallSentiment is the mean sentiment across a set of articles.
type OverallSentiment struct {
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
}

// SymbolSentiment is the sentiment picture for one symbol.
type SymbolSentiment struct {
	Symbol           string            `json:"symbol"`
	ArticlesFound    int               `json:"articles_found"`
	OverallSentiment *OverallSentiment `json:"overall_sentiment"`
	Articles         []ScoredArticle   `json:"articles,omitempty"`
	Message          string            `json:"message,omitempty"`
}

// SentimentCoverage reports how many linked articles of a symbol carry a score.
type SentimentCoverage struct {
	Symbol                string  `json:"symbol"`
	TotalArticles         int     `json:"total_articles"`
	ArticlesWithSentiment int     `json:"articles_with_sentiment"`
	CoveragePct           float64 `json:"coverage_pct"`
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpulse/internal/analysis/correlation"
	"github.com/seenimoa/stockpulse/internal/analysis/sentiment"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// Live request defaults.
const (
	DefaultSentimentCount   = 50 // split across categories
	DefaultCorrelationCount = 50 // per category
	DefaultNewsCount        = 50 // split across categories
	DefaultBatchCount       = 25 // per category
	BatchSampleArticles     = 3
)

// Analyzer answers live analysis requests from the providers.
type Analyzer struct {
	src        Sources
	scorer     sentiment.Scorer
	keywords   map[string][]string
	categories []string
}

// NewAnalyzer creates an Analyzer. keywords is the symbol → keyword
// dictionary used to match headlines to symbols.
func NewAnalyzer(src Sources, scorer sentiment.Scorer, keywords map[string][]string, categories []string) *Analyzer {
	if scorer == nil {
		scorer = sentiment.NewCombined()
	}
	if len(categories) == 0 {
		categories = []string{"technology", "business"}
	}
	return &Analyzer{src: src, scorer: scorer, keywords: keywords, categories: categories}
}

// TextAnalysis is the score of a piece of free text.
type TextAnalysis struct {
	Text      string                 `json:"text"`
	Sentiment models.SentimentResult `json:"sentiment"`
}

// NewsResult is the filtered live news of one symbol.
type NewsResult struct {
	Symbol                 string           `json:"symbol"`
	TotalArticlesCollected int              `json:"total_articles_collected"`
	RelevantArticles       int              `json:"relevant_articles"`
	Articles               []models.Article `json:"articles"`
}

// BatchResult is the live sentiment of several symbols from one fetch.
type BatchResult struct {
	TotalArticlesCollected int                               `json:"total_articles_collected"`
	SymbolsAnalyzed        int                               `json:"symbols_analyzed"`
	Results                map[string]models.SymbolSentiment `json:"results"`
}

// AnalyzeText scores text with the configured scorer.
func (a *Analyzer) AnalyzeText(text string) TextAnalysis {
	return TextAnalysis{Text: text, Sentiment: a.scorer.Score(text)}
}

// AnalyzeSymbol fetches count headlines split across the categories, keeps
// those relevant to symbol and scores them.
func (a *Analyzer) AnalyzeSymbol(ctx context.Context, symbol string, count int) (models.SymbolSentiment, error) {
	if count <= 0 {
		count = DefaultSentimentCount
	}
	articles, err := a.src.News.FetchCategories(ctx, a.categories, count)
	if err != nil {
		return models.SymbolSentiment{}, fmt.Errorf("fetch headlines: %w", err)
	}

	relevant := a.relevant(articles, symbol)
	if len(relevant) == 0 {
		return models.SymbolSentiment{
			Symbol:  symbol,
			Message: "No relevant articles found for " + symbol,
		}, nil
	}
	return a.score(symbol, relevant), nil
}

// AnalyzeCorrelation fetches headlines and daily prices for symbol and
// correlates them.
func (a *Analyzer) AnalyzeCorrelation(ctx context.Context, symbol string) (models.CorrelationReport, error) {
	articles, err := a.src.News.FetchCategories(ctx, a.categories, DefaultCorrelationCount*len(a.categories))
	if err != nil {
		return models.CorrelationReport{}, fmt.Errorf("fetch headlines: %w", err)
	}

	relevant := a.relevant(articles, symbol)
	if len(relevant) == 0 {
		return models.CorrelationReport{
			Symbol:       symbol,
			Correlations: []models.Correlation{},
			Message:      "No articles found for correlation analysis of " + symbol,
		}, nil
	}

	scored := make([]models.ScoredArticle, 0, len(relevant))
	for _, art := range relevant {
		scored = append(scored, sentiment.ScoreArticle(a.scorer, art))
	}

	prices, err := a.src.Prices.FetchDaily(ctx, symbol)
	if err != nil {
		return models.CorrelationReport{}, fmt.Errorf("stock data: %w", err)
	}
	if err := correlation.CheckSeries(prices); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("price series out of order")
	}

	report, err := correlation.Analyze(symbol, scored, prices)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("correlation contract violation")
		return models.CorrelationReport{}, err
	}
	return report, nil
}

// GetNews returns the live headlines relevant to symbol. A positive
// daysBack adds RSS articles published within that many days.
func (a *Analyzer) GetNews(ctx context.Context, symbol string, count, daysBack int) (NewsResult, error) {
	if count <= 0 {
		count = DefaultNewsCount
	}
	articles, err := a.src.News.FetchCategories(ctx, a.categories, count)
	if err != nil {
		return NewsResult{}, fmt.Errorf("fetch headlines: %w", err)
	}

	if daysBack > 0 && a.src.Feeds != nil {
		feed, err := a.src.Feeds.FetchFeeds(ctx, daysBack)
		if err != nil {
			// RSS is supplementary; headlines alone still answer.
			log.Warn().Err(err).Int("days_back", daysBack).Msg("rss fetch failed")
		}
		articles = mergeByURL(articles, feed)
	}

	relevant := a.relevant(articles, symbol)
	return NewsResult{
		Symbol:                 symbol,
		TotalArticlesCollected: len(articles),
		RelevantArticles:       len(relevant),
		Articles:               relevant,
	}, nil
}

// AnalyzeBatch fetches count headlines per category once and scores them
// for every symbol. Each result keeps at most BatchSampleArticles articles.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, symbols []string, count int) (BatchResult, error) {
	if count <= 0 {
		count = DefaultBatchCount
	}
	articles, err := a.src.News.FetchCategories(ctx, a.categories, count*len(a.categories))
	if err != nil {
		return BatchResult{}, fmt.Errorf("fetch headlines: %w", err)
	}

	buckets := correlation.FilterArticles(articles, a.keywords)
	results := make(map[string]models.SymbolSentiment, len(symbols))
	for _, symbol := range symbols {
		relevant := buckets[symbol]
		if len(relevant) == 0 {
			results[symbol] = models.SymbolSentiment{
				Symbol:  symbol,
				Message: "No articles found for " + symbol,
			}
			continue
		}
		res := a.score(symbol, relevant)
		if len(res.Articles) > BatchSampleArticles {
			res.Articles = res.Articles[:BatchSampleArticles]
		}
		results[symbol] = res
	}

	return BatchResult{
		TotalArticlesCollected: len(articles),
		SymbolsAnalyzed:        len(symbols),
		Results:                results,
	}, nil
}

func (a *Analyzer) relevant(articles []models.Article, symbol string) []models.Article {
	kws, ok := a.keywords[symbol]
	if !ok {
		return nil
	}
	return correlation.FilterArticles(articles, map[string][]string{symbol: kws})[symbol]
}

func (a *Analyzer) score(symbol string, articles []models.Article) models.SymbolSentiment {
	scored := make([]models.ScoredArticle, 0, len(articles))
	scores := make([]float64, 0, len(articles))
	for _, art := range articles {
		sa := sentiment.ScoreArticle(a.scorer, art)
		scored = append(scored, sa)
		scores = append(scores, sa.SentimentScore)
	}
	return models.SymbolSentiment{
		Symbol:           symbol,
		ArticlesFound:    len(scored),
		OverallSentiment: sentiment.Overall(scores),
		Articles:         scored,
	}
}

// mergeByURL appends extra to base, skipping URLs already present.
func mergeByURL(base, extra []models.Article) []models.Article {
	seen := make(map[string]bool, len(base)+len(extra))
	for _, a := range base {
		seen[a.URL] = true
	}
	for _, a := range extra {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		base = append(base, a)
	}
	return base
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/seenimoa/stockpulse/internal/analysis/correlation"
	"github.com/seenimoa/stockpulse/internal/analysis/sentiment"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// read runs fn on a connection reserved for the call. The handle passed to
// fn is a session, so several queries can be chained from it independently.
func (s *Store) read(ctx context.Context, fn func(conn *gorm.DB) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(conn.Session(&gorm.Session{}))
	})
}

// Stocks returns the stored universe ordered by symbol.
func (s *Store) Stocks(ctx context.Context) ([]models.Stock, error) {
	var rows []stockRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		return conn.Order("symbol").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	out := make([]models.Stock, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Stock{Symbol: r.Symbol, Name: r.Name, Keywords: r.Keywords})
	}
	return out, nil
}

// Stock returns one stock, or ErrNotFound.
func (s *Store) Stock(ctx context.Context, symbol string) (models.Stock, error) {
	var row stockRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		return conn.Where("symbol = ?", symbol).First(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Stock{}, fmt.Errorf("%w: stock %s", ErrNotFound, symbol)
	}
	if err != nil {
		return models.Stock{}, fmt.Errorf("get stock %s: %w", symbol, err)
	}
	return models.Stock{Symbol: row.Symbol, Name: row.Name, Keywords: row.Keywords}, nil
}

type scoredRow struct {
	Title          string
	Description    string
	Content        string
	URL            string
	URLToImage     string
	Source         string
	Author         string
	PublishedRaw   string
	SentimentScore float64
	Confidence     *float64
}

func (r scoredRow) scored() models.ScoredArticle {
	a := models.Article{
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
		URL:         r.URL,
		URLToImage:  r.URLToImage,
		Source:      r.Source,
		Author:      r.Author,
		PublishedAt: r.PublishedRaw,
	}
	sa := models.NewScoredArticle(a, r.SentimentScore)
	sa.Confidence = r.Confidence
	return sa
}

// ArticlesWithSentiment returns the scored articles of symbol published in
// the last daysBack days, newest first. limit <= 0 means no limit.
func (s *Store) ArticlesWithSentiment(ctx context.Context, symbol string, daysBack, limit int) ([]models.ScoredArticle, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -daysBack)

	var rows []scoredRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		q := conn.Table("news_articles AS na").
			Select(`na.title, na.description, na.content, na.url, na.url_to_image, na.source, na.author,
				na.published_raw, ss.sentiment_score, ss.confidence`).
			Joins("JOIN article_stock_relations asr ON asr.article_id = na.id").
			Joins("JOIN stocks s ON s.id = asr.stock_id").
			Joins("JOIN sentiment_scores ss ON ss.article_id = na.id AND ss.stock_id = s.id").
			Where("s.symbol = ? AND na.published_at >= ?", symbol, cutoff).
			Order("na.published_at DESC, na.id DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("articles with sentiment for %s: %w", symbol, err)
	}

	out := make([]models.ScoredArticle, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.scored())
	}
	return out, nil
}

// PriceHistory returns the stored closes of symbol on or after since, in
// ascending date order.
func (s *Store) PriceHistory(ctx context.Context, symbol string, since correlation.Date) ([]models.PriceBar, error) {
	var bars []models.PriceBar
	err := s.read(ctx, func(conn *gorm.DB) error {
		return conn.Table("stock_prices AS sp").
			Select("sp.date AS date, sp.close_price AS close").
			Joins("JOIN stocks s ON s.id = sp.stock_id").
			Where("s.symbol = ? AND sp.date >= ?", symbol, since.String()).
			Order("sp.date ASC").
			Scan(&bars).Error
	})
	if err != nil {
		return nil, fmt.Errorf("price history for %s: %w", symbol, err)
	}
	return bars, nil
}

// CorrelationData loads the stored scored articles and prices of symbol for
// the last daysBack days and runs the correlation pipeline over them.
func (s *Store) CorrelationData(ctx context.Context, symbol string, daysBack int) (models.CorrelationReport, error) {
	scored, err := s.ArticlesWithSentiment(ctx, symbol, daysBack, 0)
	if err != nil {
		return models.CorrelationReport{}, err
	}
	// One extra week of prices gives the first days in range a predecessor
	// and room for backward alignment.
	since := correlation.DateOf(s.now().UTC().AddDate(0, 0, -daysBack-correlation.ForwardWindow))
	prices, err := s.PriceHistory(ctx, symbol, since)
	if err != nil {
		return models.CorrelationReport{}, err
	}
	return correlation.Analyze(symbol, scored, prices)
}

type batchRow struct {
	Symbol        string
	ArticlesFound int
	AvgSentiment  *float64
}

// BatchSentimentSummary returns, for every stored stock, the number of
// linked articles published in the last days days and their mean score.
// Stocks without scored articles have a nil OverallSentiment.
func (s *Store) BatchSentimentSummary(ctx context.Context, days int) (map[string]models.SymbolSentiment, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	var rows []batchRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		return conn.Table("stocks AS s").
			Select("s.symbol AS symbol, COUNT(na.id) AS articles_found, AVG(ss.sentiment_score) AS avg_sentiment").
			Joins("LEFT JOIN article_stock_relations asr ON asr.stock_id = s.id").
			Joins("LEFT JOIN news_articles na ON na.id = asr.article_id AND na.published_at >= ?", cutoff).
			Joins("LEFT JOIN sentiment_scores ss ON ss.article_id = na.id AND ss.stock_id = s.id").
			Group("s.symbol").
			Order("s.symbol").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("batch sentiment summary: %w", err)
	}

	out := make(map[string]models.SymbolSentiment, len(rows))
	for _, r := range rows {
		entry := models.SymbolSentiment{Symbol: r.Symbol, ArticlesFound: r.ArticlesFound}
		if r.AvgSentiment != nil {
			entry.OverallSentiment = sentiment.Overall([]float64{*r.AvgSentiment})
		}
		out[r.Symbol] = entry
	}
	return out, nil
}

// IsFresh reports whether symbol has both an article published and a price
// dated within the last hours hours.
func (s *Store) IsFresh(ctx context.Context, symbol string, hours int) (bool, error) {
	cutoff := s.now().UTC().Add(-time.Duration(hours) * time.Hour)

	var articles, prices int64
	err := s.read(ctx, func(conn *gorm.DB) error {
		err := conn.Table("news_articles AS na").
			Joins("JOIN article_stock_relations asr ON asr.article_id = na.id").
			Joins("JOIN stocks s ON s.id = asr.stock_id").
			Where("s.symbol = ? AND na.published_at >= ?", symbol, cutoff).
			Count(&articles).Error
		if err != nil {
			return err
		}
		return conn.Table("stock_prices AS sp").
			Joins("JOIN stocks s ON s.id = sp.stock_id").
			Where("s.symbol = ? AND sp.date >= ?", symbol, correlation.DateOf(cutoff).String()).
			Count(&prices).Error
	})
	if err != nil {
		return false, fmt.Errorf("freshness of %s: %w", symbol, err)
	}
	return articles > 0 && prices > 0, nil
}

// UsageToday returns today's API usage counters. Limits are left zero.
func (s *Store) UsageToday(ctx context.Context) (models.APIUsage, error) {
	today := s.today()
	var row usageRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		return conn.Where("date = ?", today).Limit(1).Find(&row).Error
	})
	if err != nil {
		return models.APIUsage{}, fmt.Errorf("usage for %s: %w", today, err)
	}
	return models.APIUsage{Date: today, NewsCalls: row.NewsCalls, StockCalls: row.StockCalls}, nil
}

// PendingScore is a stored article/symbol link that has no sentiment score.
type PendingScore struct {
	ArticleID uint
	Symbol    string
	Article   models.Article
}

type pendingRow struct {
	ArticleID    uint
	Symbol       string
	Title        string
	Description  string
	URL          string
	Source       string
	PublishedRaw string
}

// MissingSentiment lists up to limit links without a score, oldest article
// first. limit <= 0 means no limit.
func (s *Store) MissingSentiment(ctx context.Context, limit int) ([]PendingScore, error) {
	var rows []pendingRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		q := conn.Table("article_stock_relations AS asr").
			Select("na.id AS article_id, s.symbol, na.title, na.description, na.url, na.source, na.published_raw").
			Joins("JOIN news_articles na ON na.id = asr.article_id").
			Joins("JOIN stocks s ON s.id = asr.stock_id").
			Joins("LEFT JOIN sentiment_scores ss ON ss.article_id = asr.article_id AND ss.stock_id = asr.stock_id").
			Where("ss.id IS NULL").
			Order("na.id, s.symbol")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("missing sentiment: %w", err)
	}

	out := make([]PendingScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, PendingScore{
			ArticleID: r.ArticleID,
			Symbol:    r.Symbol,
			Article: models.Article{
				Title:       r.Title,
				Description: r.Description,
				URL:         r.URL,
				Source:      r.Source,
				PublishedAt: r.PublishedRaw,
			},
		})
	}
	return out, nil
}

type coverageRow struct {
	Symbol                string
	TotalArticles         int
	ArticlesWithSentiment int
}

// SentimentCoverage reports per stock how many linked articles carry a score.
func (s *Store) SentimentCoverage(ctx context.Context) ([]models.SentimentCoverage, error) {
	var rows []coverageRow
	err := s.read(ctx, func(conn *gorm.DB) error {
		return conn.Table("stocks AS s").
			Select("s.symbol AS symbol, COUNT(asr.id) AS total_articles, COUNT(ss.id) AS articles_with_sentiment").
			Joins("LEFT JOIN article_stock_relations asr ON asr.stock_id = s.id").
			Joins("LEFT JOIN sentiment_scores ss ON ss.article_id = asr.article_id AND ss.stock_id = s.id").
			Group("s.symbol").
			Order("s.symbol").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("sentiment coverage: %w", err)
	}

	out := make([]models.SentimentCoverage, 0, len(rows))
	for _, r := range rows {
		c := models.SentimentCoverage{
			Symbol:                r.Symbol,
			TotalArticles:         r.TotalArticles,
			ArticlesWithSentiment: r.ArticlesWithSentiment,
		}
		if r.TotalArticles > 0 {
			c.CoveragePct = float64(r.ArticlesWithSentiment) / float64(r.TotalArticles) * 100
		}
		out = append(out, c)
	}
	return out, nil
}

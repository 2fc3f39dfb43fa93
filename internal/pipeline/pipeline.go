// Package pipeline connects the news and price providers, the sentiment
// scorer, the correlation core and the store.
//
// Analyzer answers live requests straight from the providers without
// touching the database. Collector runs the persistent collection: fetch,
// filter, score, save, within the daily API quota.
package pipeline

import (
	"context"
	"errors"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpulse/internal/datasource"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// Sentinel errors.
var (
	ErrRefreshInProgress = errors.New("pipeline: a refresh is already running")
	ErrQuotaExceeded     = errors.New("pipeline: daily API quota exhausted")
)

// HeadlineSource fetches top headlines by category.
type HeadlineSource interface {
	FetchHeadlines(ctx context.Context, category string, count int) ([]models.Article, error)
	FetchCategories(ctx context.Context, categories []string, total int) ([]models.Article, error)
}

// FeedSource fetches RSS articles published in the last daysBack days.
type FeedSource interface {
	FetchFeeds(ctx context.Context, daysBack int) ([]models.Article, error)
}

// PriceSource fetches ascending daily closes for one symbol.
type PriceSource interface {
	FetchDaily(ctx context.Context, symbol string) ([]models.PriceBar, error)
}

// Sources bundles the external providers. Feeds may be nil.
type Sources struct {
	News   HeadlineSource
	Feeds  FeedSource
	Prices PriceSource
}

// UsageRecorder persists provider call counters.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, kind store.UsageKind, n int) error
}

// Repository is the part of the store the collector writes through.
type Repository interface {
	UsageRecorder
	SaveArticle(ctx context.Context, a models.Article, symbols []string) (uint, bool, error)
	SaveSentimentScore(ctx context.Context, articleID uint, symbol string, score float64, confidence *float64) (bool, error)
	SaveStockPrices(ctx context.Context, symbol string, bars []models.PriceBar) (int, error)
	UsageToday(ctx context.Context) (models.APIUsage, error)
	MissingSentiment(ctx context.Context, limit int) ([]store.PendingScore, error)
	SentimentCoverage(ctx context.Context) ([]models.SentimentCoverage, error)
}

// CountCalls returns a provider hook that adds one to the kind counter for
// every request that reaches the network. Failures to record are logged.
func CountCalls(rec UsageRecorder, kind store.UsageKind) datasource.CallHook {
	return func(ctx context.Context) {
		if err := rec.IncrementUsage(context.WithoutCancel(ctx), kind, 1); err != nil {
			log.Warn().Err(err).Str("counter", string(kind)).Msg("record api usage")
		}
	}
}

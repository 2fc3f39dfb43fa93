package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpulse/internal/analysis/correlation"
	"github.com/seenimoa/stockpulse/internal/analysis/sentiment"
	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// priceWorkers bounds concurrent price fetches. The provider limiter does
// the real throttling.
const priceWorkers = 2

// Collector fetches news and prices and persists them with their scores.
// At most one refresh runs at a time per Collector.
type Collector struct {
	repo     Repository
	src      Sources
	scorer   sentiment.Scorer
	cfg      *config.Config
	keywords map[string][]string

	mu  sync.Mutex
	now func() time.Time
}

// NewCollector creates a Collector over cfg's symbols, categories and quota.
func NewCollector(cfg *config.Config, repo Repository, src Sources, scorer sentiment.Scorer) *Collector {
	if scorer == nil {
		scorer = sentiment.NewCombined()
	}
	return &Collector{
		repo:     repo,
		src:      src,
		scorer:   scorer,
		cfg:      cfg,
		keywords: cfg.Keywords(),
		now:      time.Now,
	}
}

// RefreshOptions tunes one collection run.
type RefreshOptions struct {
	PageSize   int      // headlines per category; 0 uses news.page_size
	Symbols    []string // subset of the universe; empty means all
	DaysBack   int      // > 0 adds RSS articles from the last DaysBack days
	SkipNews   bool
	SkipPrices bool
}

// RefreshResult describes one collection run.
type RefreshResult struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	ArticlesFetched  int           `json:"articles_fetched"`
	ArticlesRelevant int           `json:"articles_relevant"`
	ArticlesSaved    int           `json:"articles_saved"`
	ScoresSaved      int           `json:"scores_saved"`
	PricesSaved      int           `json:"prices_saved"`
	SymbolsPriced    []string      `json:"symbols_priced"`
	NewsSkipped      bool          `json:"news_skipped"`
	PricesSkipped    bool          `json:"prices_skipped"`
	Failures         []string      `json:"failures,omitempty"`
}

// Refresh runs one collection: daily prices first, then headlines, which
// are filtered, saved, linked and scored. Provider and store failures are
// logged and recorded in the result; the run continues past them.
// It fails with ErrRefreshInProgress when another refresh is running and
// with ErrQuotaExceeded when no requested part has quota left.
func (c *Collector) Refresh(ctx context.Context, opts RefreshOptions) (*RefreshResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer c.mu.Unlock()

	res := &RefreshResult{RunID: uuid.New().String(), StartedAt: c.now().UTC()}

	usage, err := c.repo.UsageToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("read api usage: %w", err)
	}
	usage.MaxNewsCalls = c.cfg.Quota.MaxNewsCalls
	usage.MaxStockCalls = c.cfg.Quota.MaxStockCalls

	res.PricesSkipped = opts.SkipPrices || usage.StockExhausted()
	res.NewsSkipped = opts.SkipNews || usage.NewsExhausted()
	if res.PricesSkipped && res.NewsSkipped && (usage.StockExhausted() || usage.NewsExhausted()) {
		log.Warn().Str("run_id", res.RunID).
			Int("news_calls", usage.NewsCalls).Int("stock_calls", usage.StockCalls).
			Msg("api quota exhausted, refresh skipped")
		return nil, ErrQuotaExceeded
	}

	log.Info().Str("run_id", res.RunID).Int("news_calls", usage.NewsCalls).Int("max_news_calls", usage.MaxNewsCalls).
		Int("stock_calls", usage.StockCalls).Int("max_stock_calls", usage.MaxStockCalls).
		Msg("refresh started")

	symbols := c.symbols(opts.Symbols)

	if res.PricesSkipped {
		if !opts.SkipPrices {
			log.Warn().Str("run_id", res.RunID).Msg("stock api limit reached, skipping prices")
		}
	} else {
		budget := len(symbols)
		if usage.MaxStockCalls > 0 {
			budget = min(budget, usage.MaxStockCalls-usage.StockCalls)
		}
		c.collectPrices(ctx, res, symbols[:budget])
	}

	if res.NewsSkipped {
		if !opts.SkipNews {
			log.Warn().Str("run_id", res.RunID).Msg("news api limit reached, skipping news")
		}
	} else {
		c.collectNews(ctx, res, symbols, opts)
	}

	res.Duration = c.now().Sub(res.StartedAt)
	log.Info().Str("run_id", res.RunID).
		Int("articles_fetched", res.ArticlesFetched).
		Int("articles_relevant", res.ArticlesRelevant).
		Int("articles_saved", res.ArticlesSaved).
		Int("scores_saved", res.ScoresSaved).
		Int("prices_saved", res.PricesSaved).
		Int("failures", len(res.Failures)).
		Dur("duration", res.Duration).
		Msg("refresh finished")
	return res, ctx.Err()
}

func (c *Collector) symbols(requested []string) []string {
	if len(requested) == 0 {
		return c.cfg.SymbolList()
	}
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if c.cfg.HasSymbol(s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Collector) collectPrices(ctx context.Context, res *RefreshResult, symbols []string) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(priceWorkers)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := c.src.Prices.FetchDaily(gctx, symbol)
			if err == nil {
				_, err = c.repo.SaveStockPrices(gctx, symbol, bars)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("run_id", res.RunID).Str("symbol", symbol).Msg("price collection failed")
				res.Failures = append(res.Failures, fmt.Sprintf("prices %s: %v", symbol, err))
				return nil
			}
			res.PricesSaved += len(bars)
			res.SymbolsPriced = append(res.SymbolsPriced, symbol)
			return nil
		})
	}
	_ = g.Wait()
	log.Info().Str("run_id", res.RunID).Int("symbols", len(res.SymbolsPriced)).Int("requested", len(symbols)).
		Msg("stock price collection completed")
}

func (c *Collector) collectNews(ctx context.Context, res *RefreshResult, symbols []string, opts RefreshOptions) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.cfg.News.PageSize
	}
	categories := c.cfg.News.Categories

	articles, err := c.src.News.FetchCategories(ctx, categories, pageSize*len(categories))
	if err != nil {
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("headline collection failed")
		res.Failures = append(res.Failures, fmt.Sprintf("headlines: %v", err))
	}
	if opts.DaysBack > 0 && c.src.Feeds != nil {
		feed, err := c.src.Feeds.FetchFeeds(ctx, opts.DaysBack)
		if err != nil {
			log.Warn().Err(err).Str("run_id", res.RunID).Msg("rss collection failed")
			res.Failures = append(res.Failures, fmt.Sprintf("rss: %v", err))
		}
		articles = mergeByURL(articles, feed)
	}
	res.ArticlesFetched = len(articles)

	keywords := make(map[string][]string, len(symbols))
	for _, s := range symbols {
		keywords[s] = c.keywords[s]
	}

	for _, a := range articles {
		if ctx.Err() != nil {
			return
		}
		matched := correlation.MatchSymbols(a, keywords)
		if len(matched) == 0 {
			continue
		}
		res.ArticlesRelevant++

		id, created, err := c.repo.SaveArticle(ctx, a, matched)
		if err != nil {
			log.Warn().Err(err).Str("run_id", res.RunID).Str("url", a.URL).Msg("save article failed")
			res.Failures = append(res.Failures, fmt.Sprintf("article %s: %v", a.URL, err))
			continue
		}
		if created {
			res.ArticlesSaved++
		}

		result := c.scorer.Score(a.Text())
		conf := result.Confidence
		for _, symbol := range matched {
			ok, err := c.repo.SaveSentimentScore(ctx, id, symbol, result.Score, &conf)
			if err != nil {
				log.Warn().Err(err).Str("run_id", res.RunID).Uint("article_id", id).Str("symbol", symbol).
					Msg("save sentiment failed")
				res.Failures = append(res.Failures, fmt.Sprintf("sentiment %d/%s: %v", id, symbol, err))
				continue
			}
			if ok {
				res.ScoresSaved++
			}
		}
	}
}

// BackfillResult describes one backfill run.
type BackfillResult struct {
	Pending int            `json:"pending"`
	Scored  int            `json:"scored"`
	Skipped int            `json:"skipped"`
	Failed  int            `json:"failed"`
	ByStock map[string]int `json:"by_symbol"`
}

// Backfill scores up to limit stored article/symbol links that have no
// sentiment score. limit <= 0 means all of them.
func (c *Collector) Backfill(ctx context.Context, limit int) (*BackfillResult, error) {
	pending, err := c.repo.MissingSentiment(ctx, limit)
	if err != nil {
		return nil, err
	}
	res := &BackfillResult{Pending: len(pending), ByStock: make(map[string]int)}
	log.Info().Int("pending", len(pending)).Msg("sentiment backfill started")

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		text := p.Article.Text()
		if strings.TrimSpace(text) == "" {
			res.Skipped++
			continue
		}
		result := c.scorer.Score(text)
		conf := result.Confidence
		if _, err := c.repo.SaveSentimentScore(ctx, p.ArticleID, p.Symbol, result.Score, &conf); err != nil {
			log.Warn().Err(err).Uint("article_id", p.ArticleID).Str("symbol", p.Symbol).Msg("backfill score failed")
			res.Failed++
			continue
		}
		res.Scored++
		res.ByStock[p.Symbol]++
	}

	log.Info().Int("scored", res.Scored).Int("skipped", res.Skipped).Int("failed", res.Failed).
		Msg("sentiment backfill finished")
	return res, nil
}

// Coverage reports the share of linked articles that carry a score.
func (c *Collector) Coverage(ctx context.Context) ([]models.SentimentCoverage, error) {
	return c.repo.SentimentCoverage(ctx)
}

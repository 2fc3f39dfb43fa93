package main

import (
	"context"
	"io"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpulse/internal/analysis/sentiment"
	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/datasource"
	"github.com/seenimoa/stockpulse/internal/infra"
	"github.com/seenimoa/stockpulse/internal/pipeline"
	"github.com/seenimoa/stockpulse/internal/store"
)

// app holds the wired services shared by the commands.
type app struct {
	store     *store.Store
	cache     infra.Cache
	analyzer  *pipeline.Analyzer
	collector *pipeline.Collector
}

// newApp opens the store, migrates it and wires the providers, the
// analyzer and the collector from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx, cfg.Symbols); err != nil {
		st.Close()
		return nil, err
	}

	cache, err := infra.NewCache(infra.CacheOptions{
		Backend:   cfg.Cache.Backend,
		RedisAddr: cfg.Cache.RedisAddr,
		RedisDB:   cfg.Cache.RedisDB,
		KeyPrefix: "stockpulse:",
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	newsLimiter := infra.NewLimiter(cfg.News.RatePerSec, time.Second, cfg.News.RatePerSec)
	priceLimiter := infra.NewLimiter(cfg.Prices.RatePerMin, time.Minute, 1)

	newsOpts := []datasource.Option{
		datasource.WithCache(cache, cfg.Cache.TTL),
		datasource.WithLimiter(newsLimiter),
		datasource.WithCallHook(pipeline.CountCalls(st, store.UsageNews)),
	}
	if cfg.News.BaseURL != "" {
		newsOpts = append(newsOpts, datasource.WithBaseURL(cfg.News.BaseURL))
	}
	priceOpts := []datasource.Option{
		datasource.WithCache(cache, cfg.Cache.TTL),
		datasource.WithLimiter(priceLimiter),
		datasource.WithCallHook(pipeline.CountCalls(st, store.UsageStock)),
		datasource.WithHistoryDays(cfg.Prices.HistoryDays),
	}
	if cfg.Prices.BaseURL != "" {
		priceOpts = append(priceOpts, datasource.WithBaseURL(cfg.Prices.BaseURL))
	}

	var fallback datasource.PriceFetcher
	if cfg.Prices.Fallback == "yahoo" {
		yahooOpts := []datasource.Option{
			datasource.WithCache(cache, cfg.Cache.TTL),
			datasource.WithCallHook(pipeline.CountCalls(st, store.UsageStock)),
			datasource.WithHistoryDays(cfg.Prices.HistoryDays),
		}
		if cfg.Prices.FallbackURL != "" {
			yahooOpts = append(yahooOpts, datasource.WithBaseURL(cfg.Prices.FallbackURL))
		}
		fallback = datasource.NewYahoo(yahooOpts...)
	}

	src := pipeline.Sources{
		News:   datasource.NewNewsAPI(cfg.News.APIKey, newsOpts...),
		Feeds:  datasource.NewRSS(cfg.News.RSSFeeds, datasource.WithCache(cache, cfg.Cache.TTL)),
		Prices: datasource.NewFallbackPrices(datasource.NewAlphaVantage(cfg.Prices.APIKey, priceOpts...), fallback),
	}
	scorer := sentiment.NewCombined()

	return &app{
		store:     st,
		cache:     cache,
		analyzer:  pipeline.NewAnalyzer(src, scorer, cfg.Keywords(), cfg.News.Categories),
		collector: pipeline.NewCollector(cfg, st, src, scorer),
	}, nil
}

// Close releases the database pool and the cache connection.
func (a *app) Close() {
	if c, ok := a.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close cache")
		}
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}

package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// DefaultRSSFeeds lists the financial news feeds polled when none are configured.
var DefaultRSSFeeds = []string{
	"https://feeds.bloomberg.com/markets/news.rss",
	"https://feeds.reuters.com/money/wealth/rss",
	"https://feeds.marketwatch.com/marketwatch/MarketPulse/",
	"https://finance.yahoo.com/rss/",
}

// maxConcurrentFeeds bounds parallel feed downloads.
const maxConcurrentFeeds = 4

// RSS fetches articles from a fixed set of RSS/Atom feeds.
type RSS struct {
	client
	feeds []string
	now   func() time.Time
}

// NewRSS creates a feed client. A nil feed list means DefaultRSSFeeds.
func NewRSS(feeds []string, opts ...Option) *RSS {
	if feeds == nil {
		feeds = DefaultRSSFeeds
	}
	return &RSS{
		client: newClient("rss", "", opts),
		feeds:  feeds,
		now:    time.Now,
	}
}

// FetchFeeds returns the items of every feed published within the last
// daysBack days, in feed order, without duplicate URLs. Items without a
// publication date are skipped. A failing feed is logged and skipped; an
// error is returned only when every feed failed.
func (r *RSS) FetchFeeds(ctx context.Context, daysBack int) ([]models.Article, error) {
	if len(r.feeds) == 0 {
		return nil, nil
	}
	cutoff := r.now().UTC().AddDate(0, 0, -daysBack)

	results := make([][]models.Article, len(r.feeds))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeeds)
	for i, feedURL := range r.feeds {
		i, feedURL := i, feedURL
		g.Go(func() error {
			articles, err := r.fetchFeed(gctx, feedURL, cutoff)
			if err != nil {
				log.Warn().Err(err).Str("feed", feedURL).Msg("rss feed failed")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = articles
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(r.feeds) {
		return nil, newError(r.source, KindNetwork, "all feeds failed", errors.Join(errs...))
	}

	seen := make(map[string]bool)
	var all []models.Article
	for _, articles := range results {
		for _, a := range articles {
			if seen[a.URL] {
				continue
			}
			seen[a.URL] = true
			all = append(all, a)
		}
	}
	return all, nil
}

// fetchFeed downloads and parses one feed, keeping items newer than cutoff.
func (r *RSS) fetchFeed(ctx context.Context, feedURL string, cutoff time.Time) ([]models.Article, error) {
	cacheKey := "rss:" + feedURL
	var items []models.Article
	if !r.cached(ctx, cacheKey, &items) {
		body, err := r.doGet(ctx, feedURL, nil)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		feed, err := gofeed.NewParser().Parse(body)
		if err != nil {
			return nil, newError(r.source, KindProvider, fmt.Sprintf("parse %s", feedURL), err)
		}
		items = feedArticles(feed)
		r.store(ctx, cacheKey, items)
	}

	kept := make([]models.Article, 0, len(items))
	for _, a := range items {
		if t, ok := a.PublishedTime(); ok && !t.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	return kept, nil
}

// feedArticles converts parsed feed items; undated or link-less items are dropped.
func feedArticles(feed *gofeed.Feed) []models.Article {
	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = "RSS Feed"
	}

	articles := make([]models.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published == nil || item.Link == "" {
			continue
		}

		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		a := models.Article{
			Title:       strings.TrimSpace(item.Title),
			Description: cleanHTML(desc),
			URL:         item.Link,
			Source:      source,
			PublishedAt: published.UTC().Format(time.RFC3339),
		}
		if item.Author != nil {
			a.Author = item.Author.Name
		}
		articles = append(articles, a)
	}
	return articles
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

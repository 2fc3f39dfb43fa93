package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/internal/datasource"
	"github.com/seenimoa/stockpulse/internal/store"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// ── fakes ──

type fakeNews struct {
	articles []models.Article
	err      error
	totals   []int
}

func (f *fakeNews) FetchHeadlines(_ context.Context, _ string, count int) ([]models.Article, error) {
	return f.FetchCategories(context.Background(), nil, count)
}

func (f *fakeNews) FetchCategories(_ context.Context, _ []string, total int) ([]models.Article, error) {
	f.totals = append(f.totals, total)
	return f.articles, f.err
}

type fakeFeeds struct {
	articles []models.Article
	err      error
}

func (f *fakeFeeds) FetchFeeds(context.Context, int) ([]models.Article, error) {
	return f.articles, f.err
}

type fakePrices struct {
	mu    sync.Mutex
	bars  map[string][]models.PriceBar
	calls []string
}

func (f *fakePrices) FetchDaily(_ context.Context, symbol string) ([]models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, &datasource.Error{Kind: datasource.KindNoData, Source: "fake", Message: "no data for " + symbol}
	}
	return bars, nil
}

type scoreKey struct {
	id     uint
	symbol string
}

type fakeRepo struct {
	mu       sync.Mutex
	usage    models.APIUsage
	usageErr error
	articles map[string]uint
	links    map[uint][]string
	scores   map[scoreKey]float64
	prices   map[string]int
	pending  []store.PendingScore
	failURL  string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		articles: map[string]uint{},
		links:    map[uint][]string{},
		scores:   map[scoreKey]float64{},
		prices:   map[string]int{},
	}
}

func (r *fakeRepo) IncrementUsage(_ context.Context, kind store.UsageKind, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case store.UsageNews:
		r.usage.NewsCalls += n
	case store.UsageStock:
		r.usage.StockCalls += n
	}
	return nil
}

func (r *fakeRepo) SaveArticle(_ context.Context, a models.Article, symbols []string) (uint, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.URL == r.failURL {
		return 0, false, errors.New("disk full")
	}
	if id, ok := r.articles[a.URL]; ok {
		return id, false, nil
	}
	id := uint(len(r.articles) + 1)
	r.articles[a.URL] = id
	r.links[id] = symbols
	return id, true, nil
}

func (r *fakeRepo) SaveSentimentScore(_ context.Context, id uint, symbol string, score float64, _ *float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := scoreKey{id, symbol}
	if _, ok := r.scores[k]; ok {
		return false, nil
	}
	r.scores[k] = score
	return true, nil
}

func (r *fakeRepo) SaveStockPrices(_ context.Context, symbol string, bars []models.PriceBar) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[symbol] += len(bars)
	return len(bars), nil
}

func (r *fakeRepo) UsageToday(context.Context) (models.APIUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage, r.usageErr
}

func (r *fakeRepo) MissingSentiment(context.Context, int) ([]store.PendingScore, error) {
	return r.pending, nil
}

func (r *fakeRepo) SentimentCoverage(context.Context) ([]models.SentimentCoverage, error) {
	return []models.SentimentCoverage{{Symbol: "AAPL", TotalArticles: 2, ArticlesWithSentiment: 1, CoveragePct: 50}}, nil
}

// ── fixtures ──

func testKeywords() map[string][]string {
	return map[string][]string{
		"AAPL": {"Apple", "iPhone"},
		"TSLA": {"Tesla"},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		News: config.NewsConfig{Categories: []string{"technology", "business"}, PageSize: 20},
		Quota: config.QuotaConfig{
			MaxNewsCalls:  100,
			MaxStockCalls: 5,
		},
		Symbols: []models.Stock{
			{Symbol: "AAPL", Name: "Apple Inc.", Keywords: []string{"Apple", "iPhone"}},
			{Symbol: "TSLA", Name: "Tesla Inc.", Keywords: []string{"Tesla"}},
		},
	}
}

func testArticles() []models.Article {
	return []models.Article{
		{Title: "Apple posts record profit", Description: "iPhone sales surge", URL: "https://x/1", PublishedAt: "2024-01-05T10:00:00Z"},
		{Title: "Tesla recalls vehicles", Description: "shares plunge on weak demand", URL: "https://x/2", PublishedAt: "2024-01-05T11:00:00Z"},
		{Title: "Apple and Tesla in talks", Description: "", URL: "https://x/3", PublishedAt: "2024-01-06T09:00:00Z"},
		{Title: "Oil prices steady", Description: "", URL: "https://x/4", PublishedAt: "2024-01-06T09:30:00Z"},
		{Title: "Apple unveils headset", Description: "", URL: "https://x/5", PublishedAt: "2024-01-07T09:30:00Z"},
	}
}

func testPrices() map[string][]models.PriceBar {
	return map[string][]models.PriceBar{
		"AAPL": {
			{Date: "2024-01-04", Close: 100},
			{Date: "2024-01-05", Close: 102},
			{Date: "2024-01-08", Close: 101},
		},
	}
}

// ── Analyzer ──

func TestAnalyzeSymbol(t *testing.T) {
	news := &fakeNews{articles: testArticles()}
	a := NewAnalyzer(Sources{News: news}, nil, testKeywords(), nil)

	res, err := a.AnalyzeSymbol(context.Background(), "AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{DefaultSentimentCount}, news.totals)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, 3, res.ArticlesFound)
	require.Len(t, res.Articles, 3)
	require.NotNil(t, res.OverallSentiment)
	for _, sa := range res.Articles {
		assert.NotNil(t, sa.Confidence)
		assert.Equal(t, models.Classify(sa.SentimentScore), sa.Classification)
	}
}

func TestAnalyzeSymbolNoArticles(t *testing.T) {
	a := NewAnalyzer(Sources{News: &fakeNews{articles: testArticles()[3:4]}}, nil, testKeywords(), nil)

	res, err := a.AnalyzeSymbol(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	assert.Zero(t, res.ArticlesFound)
	assert.Nil(t, res.OverallSentiment)
	assert.Equal(t, "No relevant articles found for AAPL", res.Message)
}

func TestAnalyzeSymbolProviderError(t *testing.T) {
	provErr := &datasource.Error{Kind: datasource.KindQuota, Source: "newsapi", Message: "rate limited"}
	a := NewAnalyzer(Sources{News: &fakeNews{err: provErr}}, nil, testKeywords(), nil)

	_, err := a.AnalyzeSymbol(context.Background(), "AAPL", 10)
	require.Error(t, err)
	assert.True(t, datasource.IsKind(err, datasource.KindQuota))
}

func TestAnalyzeText(t *testing.T) {
	a := NewAnalyzer(Sources{}, nil, nil, nil)
	res := a.AnalyzeText("Shares surge after record profit")
	assert.Equal(t, "Shares surge after record profit", res.Text)
	assert.Greater(t, res.Sentiment.Score, 0.0)
	assert.Contains(t, res.Sentiment.Components, "lexicon")
	assert.Contains(t, res.Sentiment.Components, "polarity")
}

func TestAnalyzeCorrelation(t *testing.T) {
	news := &fakeNews{articles: testArticles()}
	prices := &fakePrices{bars: testPrices()}
	a := NewAnalyzer(Sources{News: news, Prices: prices}, nil, testKeywords(), nil)

	report, err := a.AnalyzeCorrelation(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []int{2 * DefaultCorrelationCount}, news.totals)
	assert.Equal(t, "AAPL", report.Symbol)
	// 01-05 aligns to itself; 01-06 and 01-07 align forward to 01-08.
	require.Len(t, report.Correlations, 3)
	assert.Equal(t, "2024-01-05", report.Correlations[0].TradingDate)
	assert.InDelta(t, 2.0, report.Correlations[0].PriceChange, 1e-9)
	assert.Equal(t, "2024-01-08", report.Correlations[1].TradingDate)
	assert.Equal(t, 3, report.Summary.TotalCorrelations)
}

func TestAnalyzeCorrelationNoArticles(t *testing.T) {
	prices := &fakePrices{bars: testPrices()}
	a := NewAnalyzer(Sources{News: &fakeNews{}, Prices: prices}, nil, testKeywords(), nil)

	report, err := a.AnalyzeCorrelation(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Empty(t, report.Correlations)
	assert.NotNil(t, report.Correlations)
	assert.Equal(t, "No articles found for correlation analysis of TSLA", report.Message)
	assert.Empty(t, prices.calls, "prices are not fetched without articles")
}

func TestAnalyzeCorrelationPriceError(t *testing.T) {
	a := NewAnalyzer(Sources{News: &fakeNews{articles: testArticles()}, Prices: &fakePrices{}}, nil, testKeywords(), nil)

	_, err := a.AnalyzeCorrelation(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, datasource.IsKind(err, datasource.KindNoData))
}

func TestGetNews(t *testing.T) {
	feeds := &fakeFeeds{articles: []models.Article{
		{Title: "iPhone demand cools", URL: "https://rss/1"},
		{Title: "Apple posts record profit", URL: "https://x/1"},
	}}
	a := NewAnalyzer(Sources{News: &fakeNews{articles: testArticles()}, Feeds: feeds}, nil, testKeywords(), nil)

	res, err := a.GetNews(context.Background(), "AAPL", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalArticlesCollected)
	assert.Equal(t, 3, res.RelevantArticles)

	res, err = a.GetNews(context.Background(), "AAPL", 0, 7)
	require.NoError(t, err)
	assert.Equal(t, 6, res.TotalArticlesCollected, "duplicate RSS url is dropped")
	assert.Equal(t, 4, res.RelevantArticles)
}

func TestGetNewsRSSFailureIsTolerated(t *testing.T) {
	feeds := &fakeFeeds{err: errors.New("all feeds failed")}
	a := NewAnalyzer(Sources{News: &fakeNews{articles: testArticles()}, Feeds: feeds}, nil, testKeywords(), nil)

	res, err := a.GetNews(context.Background(), "TSLA", 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RelevantArticles)
}

func TestAnalyzeBatch(t *testing.T) {
	articles := testArticles()
	articles = append(articles, models.Article{Title: "Apple again", URL: "https://x/6"})
	news := &fakeNews{articles: articles}
	a := NewAnalyzer(Sources{News: news}, nil, testKeywords(), nil)

	res, err := a.AnalyzeBatch(context.Background(), []string{"AAPL", "TSLA", "MSFT"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2 * DefaultBatchCount}, news.totals)
	assert.Equal(t, 6, res.TotalArticlesCollected)
	assert.Equal(t, 3, res.SymbolsAnalyzed)

	aapl := res.Results["AAPL"]
	assert.Equal(t, 4, aapl.ArticlesFound)
	assert.Len(t, aapl.Articles, BatchSampleArticles)
	assert.NotNil(t, aapl.OverallSentiment)

	assert.Equal(t, 2, res.Results["TSLA"].ArticlesFound)

	msft := res.Results["MSFT"]
	assert.Zero(t, msft.ArticlesFound)
	assert.Nil(t, msft.OverallSentiment)
	assert.Equal(t, "No articles found for MSFT", msft.Message)
}

// ── Collector ──

func TestRefresh(t *testing.T) {
	repo := newFakeRepo()
	prices := &fakePrices{bars: testPrices()}
	news := &fakeNews{articles: testArticles()}
	c := NewCollector(testConfig(), repo, Sources{News: news, Prices: prices}, nil)

	res, err := c.Refresh(context.Background(), RefreshOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []int{40}, news.totals, "page size per category")

	assert.Equal(t, 5, res.ArticlesFetched)
	assert.Equal(t, 4, res.ArticlesRelevant)
	assert.Equal(t, 4, res.ArticlesSaved)
	// Article 3 mentions both symbols.
	assert.Equal(t, 5, res.ScoresSaved)
	assert.Equal(t, []string{"AAPL", "TSLA"}, repo.links[repo.articles["https://x/3"]])

	assert.Equal(t, 3, res.PricesSaved)
	assert.Equal(t, []string{"AAPL"}, res.SymbolsPriced)
	require.Len(t, res.Failures, 1, "TSLA has no price data")
	assert.Contains(t, res.Failures[0], "TSLA")

	// A second run is idempotent.
	res, err = c.Refresh(context.Background(), RefreshOptions{SkipPrices: true})
	require.NoError(t, err)
	assert.Zero(t, res.ArticlesSaved)
	assert.Zero(t, res.ScoresSaved)
	assert.True(t, res.PricesSkipped)
}

func TestRefreshSymbolSubsetAndPageSize(t *testing.T) {
	repo := newFakeRepo()
	news := &fakeNews{articles: testArticles()}
	prices := &fakePrices{bars: testPrices()}
	c := NewCollector(testConfig(), repo, Sources{News: news, Prices: prices}, nil)

	res, err := c.Refresh(context.Background(), RefreshOptions{Symbols: []string{"TSLA", "NOPE"}, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, []int{100}, news.totals)
	assert.Equal(t, []string{"TSLA"}, prices.calls)
	assert.Equal(t, 2, res.ArticlesRelevant)
	assert.Equal(t, []string{"TSLA"}, repo.links[repo.articles["https://x/3"]])
}

func TestRefreshStockBudget(t *testing.T) {
	repo := newFakeRepo()
	repo.usage.StockCalls = 4
	prices := &fakePrices{bars: testPrices()}
	c := NewCollector(testConfig(), repo, Sources{News: &fakeNews{}, Prices: prices}, nil)

	_, err := c.Refresh(context.Background(), RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, prices.calls, "one call left in the budget")
}

func TestRefreshQuota(t *testing.T) {
	tests := []struct {
		name        string
		news, stock int
		opts        RefreshOptions
		wantErr     error
		newsSkipped bool
		priceSkip   bool
	}{
		{name: "both exhausted", news: 100, stock: 5, wantErr: ErrQuotaExceeded},
		{name: "stock exhausted, news skipped", stock: 5, opts: RefreshOptions{SkipNews: true}, wantErr: ErrQuotaExceeded},
		{name: "stock exhausted only", stock: 5, priceSkip: true},
		{name: "news exhausted only", news: 100, newsSkipped: true},
		{name: "nothing exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.usage.NewsCalls = tt.news
			repo.usage.StockCalls = tt.stock
			c := NewCollector(testConfig(), repo, Sources{News: &fakeNews{}, Prices: &fakePrices{}}, nil)

			res, err := c.Refresh(context.Background(), tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.newsSkipped, res.NewsSkipped)
			assert.Equal(t, tt.priceSkip, res.PricesSkipped)
		})
	}
}

func TestRefreshUsageError(t *testing.T) {
	repo := newFakeRepo()
	repo.usageErr = errors.New("db down")
	c := NewCollector(testConfig(), repo, Sources{News: &fakeNews{}, Prices: &fakePrices{}}, nil)

	_, err := c.Refresh(context.Background(), RefreshOptions{})
	assert.ErrorContains(t, err, "db down")
}

func TestRefreshInProgress(t *testing.T) {
	c := NewCollector(testConfig(), newFakeRepo(), Sources{News: &fakeNews{}, Prices: &fakePrices{}}, nil)
	c.mu.Lock()
	_, err := c.Refresh(context.Background(), RefreshOptions{})
	c.mu.Unlock()
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	_, err = c.Refresh(context.Background(), RefreshOptions{SkipPrices: true})
	assert.NoError(t, err)
}

func TestRefreshContinuesPastFailures(t *testing.T) {
	repo := newFakeRepo()
	repo.failURL = "https://x/1"
	news := &fakeNews{articles: testArticles()}
	feeds := &fakeFeeds{err: errors.New("feeds down")}
	c := NewCollector(testConfig(), repo, Sources{News: news, Feeds: feeds, Prices: &fakePrices{}}, nil)

	res, err := c.Refresh(context.Background(), RefreshOptions{SkipPrices: true, DaysBack: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ArticlesSaved)
	assert.Len(t, res.Failures, 2)
}

func TestCountCalls(t *testing.T) {
	repo := newFakeRepo()
	hook := CountCalls(repo, store.UsageStock)
	hook(context.Background())
	hook(context.Background())
	assert.Equal(t, 2, repo.usage.StockCalls)
	assert.Zero(t, repo.usage.NewsCalls)
}

func TestBackfill(t *testing.T) {
	repo := newFakeRepo()
	repo.pending = []store.PendingScore{
		{ArticleID: 1, Symbol: "AAPL", Article: models.Article{Title: "Apple shares surge"}},
		{ArticleID: 1, Symbol: "TSLA", Article: models.Article{Title: "Apple shares surge"}},
		{ArticleID: 2, Symbol: "AAPL", Article: models.Article{}},
	}
	c := NewCollector(testConfig(), repo, Sources{}, nil)

	res, err := c.Backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pending)
	assert.Equal(t, 2, res.Scored)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, map[string]int{"AAPL": 1, "TSLA": 1}, res.ByStock)

	keys := make([]string, 0, len(repo.scores))
	for k := range repo.scores {
		keys = append(keys, k.symbol)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"AAPL", "TSLA"}, keys)
}

func TestCoverage(t *testing.T) {
	c := NewCollector(testConfig(), newFakeRepo(), Sources{}, nil)
	cov, err := c.Coverage(context.Background())
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Equal(t, 50.0, cov[0].CoveragePct)
}

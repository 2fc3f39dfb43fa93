package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// DefaultNewsAPIURL is the newsapi.org v2 endpoint.
const DefaultNewsAPIURL = "https://newsapi.org/v2"

// NewsAPI fetches top headlines by category from newsapi.org.
type NewsAPI struct {
	client
	apiKey string
}

// NewNewsAPI creates a headline client. An empty key makes every fetch fail
// with KindConfig.
func NewNewsAPI(apiKey string, opts ...Option) *NewsAPI {
	return &NewsAPI{
		client: newClient("newsapi", DefaultNewsAPIURL, opts),
		apiKey: apiKey,
	}
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// removedMarker is what newsapi.org puts in place of withdrawn articles.
const removedMarker = "[Removed]"

// FetchHeadlines returns up to count top headlines in category.
func (n *NewsAPI) FetchHeadlines(ctx context.Context, category string, count int) ([]models.Article, error) {
	if n.apiKey == "" {
		return nil, newError(n.source, KindConfig, "NEWS_API_KEY is not set", nil)
	}
	if count <= 0 {
		count = 20
	}

	cacheKey := fmt.Sprintf("newsapi:headlines:%s:%d", category, count)
	var articles []models.Article
	if n.cached(ctx, cacheKey, &articles) {
		return articles, nil
	}

	q := url.Values{}
	q.Set("category", category)
	q.Set("language", "en")
	q.Set("pageSize", strconv.Itoa(count))
	q.Set("apiKey", n.apiKey)

	var resp newsAPIResponse
	if err := n.getJSON(ctx, n.baseURL+"/top-headlines?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, newError(n.source, newsAPIErrorKind(resp.Code), resp.Message, nil)
	}

	articles = make([]models.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.URL == "" || a.Title == removedMarker {
			continue
		}
		articles = append(articles, models.Article{
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			URLToImage:  a.URLToImage,
			Source:      a.Source.Name,
			Author:      a.Author,
			PublishedAt: a.PublishedAt,
		})
	}

	n.store(ctx, cacheKey, articles)
	return articles, nil
}

// FetchCategories splits total evenly across categories and concatenates
// the results, dropping duplicate URLs. It stops at the first error.
func (n *NewsAPI) FetchCategories(ctx context.Context, categories []string, total int) ([]models.Article, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	per := total / len(categories)
	if per < 1 {
		per = 1
	}

	seen := make(map[string]bool)
	var all []models.Article
	for _, cat := range categories {
		articles, err := n.FetchHeadlines(ctx, cat, per)
		if err != nil {
			return all, err
		}
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

func newsAPIErrorKind(code string) ErrorKind {
	switch code {
	case "rateLimited", "apiKeyExhausted", "maximumResultsReached":
		return KindQuota
	case "apiKeyMissing", "apiKeyInvalid", "apiKeyDisabled":
		return KindConfig
	default:
		return KindProvider
	}
}

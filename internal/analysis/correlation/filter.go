package correlation

import (
	"sort"
	"strings"

	"github.com/seenimoa/stockpulse/pkg/models"
)

// FilterArticles partitions articles by symbol using case-insensitive
// substring keyword matching on title and description. Every symbol in
// keywords gets a bucket, possibly empty; an article can land in several
// buckets but at most once in each. Bucket order follows input order.
func FilterArticles(articles []models.Article, keywords map[string][]string) map[string][]models.Article {
	buckets := make(map[string][]models.Article, len(keywords))
	lowered := make(map[string][]string, len(keywords))
	for symbol, kws := range keywords {
		buckets[symbol] = []models.Article{}
		lowered[symbol] = lowerKeywords(kws)
	}

	for _, a := range articles {
		text := searchText(a)
		for symbol, kws := range lowered {
			if containsAny(text, kws) {
				buckets[symbol] = append(buckets[symbol], a)
			}
		}
	}
	return buckets
}

// MatchSymbols returns the sorted symbols whose keywords occur in the article.
func MatchSymbols(a models.Article, keywords map[string][]string) []string {
	text := searchText(a)
	var symbols []string
	for symbol, kws := range keywords {
		if containsAny(text, lowerKeywords(kws)) {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

func searchText(a models.Article) string {
	return strings.ToLower(a.Title) + " " + strings.ToLower(a.Description)
}

// lowerKeywords lower-cases keywords and drops blanks, which would otherwise
// match every article.
func lowerKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		out = append(out, strings.ToLower(kw))
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

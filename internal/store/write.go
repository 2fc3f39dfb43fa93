package store

import (
	"context"
	"fmt"
	"math"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seenimoa/stockpulse/internal/analysis/correlation"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// SaveArticle inserts an article and links it to symbols in one
// transaction. An article whose URL is already stored is left unchanged;
// its id is still returned (created == false) so links and scores can be
// attached to it.
func (s *Store) SaveArticle(ctx context.Context, a models.Article, symbols []string) (id uint, created bool, err error) {
	if a.URL == "" || a.Title == "" {
		return 0, false, ErrInvalidArticle
	}

	row := articleRow{
		Title:        a.Title,
		Description:  a.Description,
		Content:      a.Content,
		URL:          a.URL,
		URLToImage:   a.URLToImage,
		Source:       a.Source,
		Author:       a.Author,
		PublishedRaw: a.PublishedAt,
	}
	if t, ok := a.PublishedTime(); ok {
		row.PublishedAt = &t
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert article: %w", res.Error)
		}
		created = res.RowsAffected == 1

		if !created {
			var existing articleRow
			if err := tx.Select("id").Where("url = ?", a.URL).First(&existing).Error; err != nil {
				return fmt.Errorf("load existing article: %w", err)
			}
			row.ID = existing.ID
		}
		return linkArticle(tx, row.ID, symbols)
	})
	if err != nil {
		return 0, false, err
	}
	return row.ID, created, nil
}

// LinkArticle relates a stored article to symbols. Existing links are kept.
func (s *Store) LinkArticle(ctx context.Context, articleID uint, symbols []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return linkArticle(tx, articleID, symbols)
	})
}

func linkArticle(tx *gorm.DB, articleID uint, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	ids, err := stockIDs(tx, symbols)
	if err != nil {
		return err
	}
	rows := make([]relationRow, 0, len(symbols))
	for _, sym := range symbols {
		rows = append(rows, relationRow{ArticleID: articleID, StockID: ids[sym], RelevanceScore: 1})
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "article_id"}, {Name: "stock_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relevance_score"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("link article %d: %w", articleID, err)
	}
	return nil
}

// SaveStockPrices upserts daily closes for symbol, replacing the close of
// dates already stored. It returns the number of bars written.
func (s *Store) SaveStockPrices(ctx context.Context, symbol string, bars []models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	for _, b := range bars {
		if _, err := correlation.ParseDate(b.Date); err != nil {
			return 0, err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := stockIDs(tx, []string{symbol})
		if err != nil {
			return err
		}
		rows := make([]priceRow, 0, len(bars))
		for _, b := range bars {
			rows = append(rows, priceRow{StockID: ids[symbol], Date: b.Date, ClosePrice: b.Close})
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stock_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"close_price"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return 0, fmt.Errorf("save prices for %s: %w", symbol, err)
	}
	return len(bars), nil
}

// SaveSentimentScore records the score of an article for symbol. Scores are
// insert-only: when one already exists nothing changes and created is false.
func (s *Store) SaveSentimentScore(ctx context.Context, articleID uint, symbol string, score float64, confidence *float64) (created bool, err error) {
	if math.IsNaN(score) || score < -1 || score > 1 {
		return false, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := stockIDs(tx, []string{symbol})
		if err != nil {
			return err
		}
		row := sentimentRow{
			ArticleID:      articleID,
			StockID:        ids[symbol],
			SentimentScore: score,
			Confidence:     confidence,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "article_id"}, {Name: "stock_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("save sentiment for article %d/%s: %w", articleID, symbol, err)
	}
	return created, nil
}

// UsageKind names an API usage counter.
type UsageKind string

const (
	UsageNews  UsageKind = "news_calls"
	UsageStock UsageKind = "stock_calls"
)

// IncrementUsage adds n to today's counter of the given kind.
func (s *Store) IncrementUsage(ctx context.Context, kind UsageKind, n int) error {
	if kind != UsageNews && kind != UsageStock {
		return fmt.Errorf("store: unknown usage counter %q", kind)
	}
	today := s.today()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&usageRow{Date: today}).Error
		if err != nil {
			return fmt.Errorf("create usage row: %w", err)
		}
		err = tx.Model(&usageRow{}).Where("date = ?", today).
			UpdateColumn(string(kind), gorm.Expr(string(kind)+" + ?", n)).Error
		if err != nil {
			return fmt.Errorf("increment %s: %w", kind, err)
		}
		return nil
	})
}

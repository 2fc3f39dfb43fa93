package store

import "time"

// Table rows. Price dates are stored as "YYYY-MM-DD" text so that the same
// lexical comparisons work on both sqlite and postgres.

type stockRow struct {
	ID        uint     `gorm:"primaryKey"`
	Symbol    string   `gorm:"size:10;uniqueIndex;not null"`
	Name      string   `gorm:"size:255;not null"`
	Keywords  []string `gorm:"serializer:json"`
	CreatedAt time.Time
}

func (stockRow) TableName() string { return "stocks" }

type articleRow struct {
	ID           uint   `gorm:"primaryKey"`
	Title        string `gorm:"not null"`
	Description  string
	Content      string
	URL          string `gorm:"uniqueIndex;not null"`
	URLToImage   string
	Source       string     `gorm:"size:255"`
	Author       string     `gorm:"size:255"`
	PublishedAt  *time.Time `gorm:"index"`
	PublishedRaw string     `gorm:"size:64"` // timestamp exactly as the provider sent it
	CreatedAt    time.Time
}

func (articleRow) TableName() string { return "news_articles" }

type priceRow struct {
	ID         uint    `gorm:"primaryKey"`
	StockID    uint    `gorm:"not null;uniqueIndex:idx_stock_prices_stock_date"`
	Date       string  `gorm:"size:10;not null;uniqueIndex:idx_stock_prices_stock_date"`
	ClosePrice float64 `gorm:"not null"`
	CreatedAt  time.Time
}

func (priceRow) TableName() string { return "stock_prices" }

type relationRow struct {
	ID             uint    `gorm:"primaryKey"`
	ArticleID      uint    `gorm:"not null;uniqueIndex:idx_relations_article_stock"`
	StockID        uint    `gorm:"not null;uniqueIndex:idx_relations_article_stock;index"`
	RelevanceScore float64 `gorm:"default:1"`
	CreatedAt      time.Time
}

func (relationRow) TableName() string { return "article_stock_relations" }

type sentimentRow struct {
	ID             uint     `gorm:"primaryKey"`
	ArticleID      uint     `gorm:"not null;uniqueIndex:idx_sentiment_article_stock"`
	StockID        uint     `gorm:"not null;uniqueIndex:idx_sentiment_article_stock"`
	SentimentScore float64  `gorm:"not null"`
	Confidence     *float64
	CreatedAt      time.Time
}

func (sentimentRow) TableName() string { return "sentiment_scores" }

type usageRow struct {
	Date       string `gorm:"primaryKey;size:10"`
	NewsCalls  int    `gorm:"not null;default:0"`
	StockCalls int    `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

func (usageRow) TableName() string { return "api_usage" }

func allRows() []any {
	return []any{
		&stockRow{}, &articleRow{}, &priceRow{}, &relationRow{}, &sentimentRow{}, &usageRow{},
	}
}

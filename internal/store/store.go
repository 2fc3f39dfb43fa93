// Package store persists articles, prices, article/symbol links, sentiment
// scores and API usage counters through gorm, on sqlite or postgres.
//
// Every operation runs on a pooled connection scoped to the call, either a
// transaction for writes or a dedicated connection for reads, and releases
// it on every exit path.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/phuslu/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seenimoa/stockpulse/internal/config"
	"github.com/seenimoa/stockpulse/pkg/models"
)

// Sentinel errors.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrUnknownSymbol  = errors.New("store: unknown symbol")
	ErrInvalidArticle = errors.New("store: article needs a url and a title")
	ErrInvalidScore   = errors.New("store: sentiment score must be within [-1, 1]")
)

// Store is the persistence gateway. It is safe for concurrent use.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the configured database and sizes the pool.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	gcfg := &gorm.Config{Logger: newGormLogger(200 * time.Millisecond)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gcfg)
	case "postgres":
		var sqlDB *sql.DB
		sqlDB, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gcfg)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite" {
		// sqlite serialises writers; one connection avoids "database is locked".
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	log.Info().Str("driver", cfg.Driver).Int("max_open_conns", maxOpen).Msg("database connected")
	return New(db, opts...), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates the schema and upserts the given stock universe.
func (s *Store) Migrate(ctx context.Context, stocks []models.Stock) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(allRows()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if len(stocks) == 0 {
		return nil
	}

	rows := make([]stockRow, 0, len(stocks))
	for _, st := range stocks {
		rows = append(rows, stockRow{Symbol: st.Symbol, Name: st.Name, Keywords: st.Keywords})
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "keywords"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("seed stocks: %w", err)
	}
	return nil
}

// today is the current UTC calendar day.
func (s *Store) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// stockIDs resolves symbols to row ids. Any unknown symbol is an error.
func stockIDs(tx *gorm.DB, symbols []string) (map[string]uint, error) {
	ids := make(map[string]uint, len(symbols))
	if len(symbols) == 0 {
		return ids, nil
	}
	var rows []stockRow
	if err := tx.Select("id", "symbol").Where("symbol IN ?", symbols).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup stocks: %w", err)
	}
	for _, r := range rows {
		ids[r.Symbol] = r.ID
	}
	for _, sym := range symbols {
		if _, ok := ids[sym]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
		}
	}
	return ids, nil
}

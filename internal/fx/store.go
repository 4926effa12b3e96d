package fx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fuzzy-reconciliation-service/internal/models"
)

// Store persists resolved rates across runs.
type Store interface {
	Get(ctx context.Context, key string) (models.FXRate, bool, error)
	Put(ctx context.Context, rate models.FXRate) error
}

// SQLiteStore keeps historical rates in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

const createRatesTable = `
CREATE TABLE IF NOT EXISTS fx_rates (
	cache_key       TEXT PRIMARY KEY,
	date            TEXT NOT NULL,
	source_currency TEXT NOT NULL,
	target_currency TEXT NOT NULL,
	rate            REAL NOT NULL,
	rate_date       TEXT NOT NULL,
	source          TEXT NOT NULL,
	fetched_at      TIMESTAMP NOT NULL
)`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(createRatesTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create fx_rates table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get looks up a rate by cache key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (models.FXRate, bool, error) {
	query := `
	SELECT date, source_currency, target_currency, rate, rate_date, source
	FROM fx_rates WHERE cache_key = ?
	`

	var (
		r              models.FXRate
		date, rateDate string
		source         string
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&date,
		&r.SourceCurrency,
		&r.TargetCurrency,
		&r.Rate,
		&rateDate,
		&source,
	)
	if err == sql.ErrNoRows {
		return models.FXRate{}, false, nil
	}
	if err != nil {
		return models.FXRate{}, false, err
	}

	if r.Date, err = time.Parse(models.DateLayout, date); err != nil {
		return models.FXRate{}, false, fmt.Errorf("corrupt date for %s: %w", key, err)
	}
	if r.EffectiveDate, err = time.Parse(models.DateLayout, rateDate); err != nil {
		return models.FXRate{}, false, fmt.Errorf("corrupt rate date for %s: %w", key, err)
	}
	r.Source = models.RateSource(source)

	return r, true, nil
}

// Put stores rate under its cache key, keeping the first value written.
func (s *SQLiteStore) Put(ctx context.Context, rate models.FXRate) error {
	query := `
	INSERT OR IGNORE INTO fx_rates
	(cache_key, date, source_currency, target_currency, rate, rate_date, source, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		Key(rate.Date, rate.SourceCurrency, rate.TargetCurrency),
		rate.Date.Format(models.DateLayout),
		rate.SourceCurrency,
		rate.TargetCurrency,
		rate.Rate,
		rate.EffectiveDate.Format(models.DateLayout),
		string(rate.Source),
		time.Now().UTC(),
	)
	return err
}

// Count returns the number of stored rates.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fx_rates").Scan(&n)
	return n, err
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-price-sync/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS product (
	product_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	url        TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT 'tiki'
);
CREATE TABLE IF NOT EXISTS price_history (
	price_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id     INTEGER NOT NULL REFERENCES product (product_id),
	price          REAL,
	original_price REAL,
	currency       TEXT NOT NULL,
	deal_type      TEXT NOT NULL,
	recorded_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_product_recorded
	ON price_history (product_id, recorded_at);
CREATE TABLE IF NOT EXISTS scrape_log (
	log_id         INTEGER PRIMARY KEY AUTOINCREMENT,
	scrape_date    DATETIME NOT NULL,
	source         TEXT NOT NULL,
	total_products INTEGER NOT NULL,
	status         TEXT NOT NULL,
	notes          TEXT
);`

// SQLiteStore is the embedded store used for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database file at path and pings it.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: the run is sequential and :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables used by the sync run when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ListProducts returns the whole catalog in key order.
func (s *SQLiteStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, name, url, source FROM product ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.URL, &p.Source); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// InsertPriceHistory appends one price history row. A single INSERT is atomic.
func (s *SQLiteStore) InsertPriceHistory(ctx context.Context, rec *models.PriceHistoryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_history (product_id, price, original_price, currency, deal_type, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ProductID, rec.Price, rec.OriginalPrice, rec.Currency, string(rec.DealType), rec.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

// InsertRunSummary writes the run log row.
func (s *SQLiteStore) InsertRunSummary(ctx context.Context, summary *models.RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_log (scrape_date, source, total_products, status, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		summary.ScrapeDate.UTC(), summary.Source, summary.TotalProducts, string(summary.Status), summary.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

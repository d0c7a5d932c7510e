package store

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-price-sync/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS product (
	product_id BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	url        TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT 'tiki'
);
CREATE TABLE IF NOT EXISTS price_history (
	price_id       BIGSERIAL PRIMARY KEY,
	product_id     BIGINT NOT NULL REFERENCES product (product_id),
	price          NUMERIC(15, 2),
	original_price NUMERIC(15, 2),
	currency       TEXT NOT NULL,
	deal_type      TEXT NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_product_recorded
	ON price_history (product_id, recorded_at);
CREATE TABLE IF NOT EXISTS scrape_log (
	log_id         BIGSERIAL PRIMARY KEY,
	scrape_date    TIMESTAMPTZ NOT NULL,
	source         TEXT NOT NULL,
	total_products INTEGER NOT NULL,
	status         TEXT NOT NULL,
	notes          TEXT
);`

// PostgresStore handles interactions with the PostgreSQL database.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore opens a single-connection pool and pings it.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	cfg.MaxConns = 1

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// EnsureSchema creates the tables used by the sync run when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ListProducts returns the whole catalog in key order.
func (s *PostgresStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.Query(ctx, `SELECT product_id, name, url, source FROM product ORDER BY product_id`)
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

// InsertPriceHistory appends one price history row within a single transaction.
func (s *PostgresStore) InsertPriceHistory(ctx context.Context, rec *models.PriceHistoryRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin price history tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO price_history (product_id, price, original_price, currency, deal_type, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ProductID, rec.Price, rec.OriginalPrice, rec.Currency, string(rec.DealType), rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return tx.Commit(ctx)
}

// InsertRunSummary writes the run log row.
func (s *PostgresStore) InsertRunSummary(ctx context.Context, summary *models.RunSummary) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO scrape_log (scrape_date, source, total_products, status, notes)
		 VALUES ($1, $2, $3, $4, $5)`,
		summary.ScrapeDate, summary.Source, summary.TotalProducts, string(summary.Status), summary.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

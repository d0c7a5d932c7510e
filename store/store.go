// Package store persists the catalog, price history and run log.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-price-sync/models"
)

// Store is the relational store used by one sync run. A run holds a single
// store for its whole duration and calls it from one goroutine.
type Store interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	InsertPriceHistory(ctx context.Context, rec *models.PriceHistoryRecord) error
	InsertRunSummary(ctx context.Context, summary *models.RunSummary) error
	EnsureSchema(ctx context.Context) error
	Close() error
}

// Open connects to the store named by dsn and verifies the connection.
// postgres:// and postgresql:// use pgx; sqlite://<path> uses the embedded driver.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		s, err := NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database URL scheme: %q", redact(dsn))
	}
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "..."
	}
	return "..."
}

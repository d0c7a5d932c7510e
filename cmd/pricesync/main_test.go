package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-price-sync/config"
	"github.com/aluiziolira/go-price-sync/models"
	"github.com/aluiziolira/go-price-sync/pipeline"
	"github.com/aluiziolira/go-price-sync/store"
	"github.com/jarcoal/httpmock"
)

func testConfig(dsn string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.APIBaseURL = "http://vendor.test"
	cfg.DatabaseURL = dsn
	cfg.Delay = 0
	return cfg
}

func TestRunStoreConnectionFailure(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "no", "such", "dir", "prices.db")
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(httpmock.NewStringResponder(200, `{"price":1}`))

	result, err := run(context.Background(), testConfig(dsn), transport)
	if err == nil {
		t.Fatalf("expected connection failure")
	}
	if result != nil {
		t.Fatalf("no result expected on connection failure, got %+v", result)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("vendor calls = %d, want 0", got)
	}
}

func TestRunWritesHistoryAndExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "prices.db")

	st, err := store.NewSQLiteStore(ctx, dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	st.Close()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO product (product_id, name, url, source) VALUES
		(10, 'Tai nghe', 'https://tiki.vn/tai-nghe-p555.html?spid=556', 'tiki'),
		(11, 'Sac', 'https://tiki.vn/sac?spid=777', 'tiki')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://vendor.test/api/v2/products/555",
		httpmock.NewStringResponder(200, `{"price":50000,"original_price":100000,"badges_new":[{"code":"FLASH_SALE"}]}`))
	transport.RegisterResponder("GET", "http://vendor.test/api/v2/products/777",
		httpmock.NewStringResponder(200, `{"price":20000}`))

	cfg := testConfig("sqlite://" + dbPath)
	cfg.ExportFormat = "csv"
	cfg.ExportFile = filepath.Join(dir, "exports", "prices.csv")

	result, err := run(ctx, cfg, transport)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Counters.Success != 2 || result.Counters.Failed != 0 {
		t.Fatalf("counters = %+v", result.Counters)
	}
	if result.Summary == nil || result.Summary.Status != "SUCCESS" {
		t.Fatalf("summary = %+v", result.Summary)
	}

	var deal string
	if err := db.QueryRow(`SELECT deal_type FROM price_history WHERE product_id = 10`).Scan(&deal); err != nil {
		t.Fatalf("query history: %v", err)
	}
	if deal != "FLASH_SALE" {
		t.Fatalf("deal = %s, want FLASH_SALE", deal)
	}

	data, err := os.ReadFile(cfg.ExportFile)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1; lines != 3 {
		t.Fatalf("export lines = %d, want 3 (header + 2 rows)\n%s", lines, data)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PRICESYNC_DATABASE_URL", "postgres://user:pw@localhost:5432/prices")
	t.Setenv("PRICESYNC_DELAY", "750ms")

	cfg, err := loadConfig([]string{"-timeout", "3s", "-v"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL != "postgres://user:pw@localhost:5432/prices" {
		t.Fatalf("database url = %q", cfg.DatabaseURL)
	}
	if cfg.Delay != 750*time.Millisecond {
		t.Fatalf("delay = %v", cfg.Delay)
	}
	if cfg.Timeout != 3*time.Second || !cfg.Verbose {
		t.Fatalf("flags not applied: timeout=%v verbose=%v", cfg.Timeout, cfg.Verbose)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfigInvalidEnv(t *testing.T) {
	t.Setenv("PRICESYNC_DELAY", "soon")
	if _, err := loadConfig(nil); err == nil {
		t.Fatalf("expected error for invalid PRICESYNC_DELAY")
	}
}

func TestLoadConfigFlagOverridesEnv(t *testing.T) {
	t.Setenv("PRICESYNC_DELAY", "5s")
	cfg, err := loadConfig([]string{"-delay", "1s"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Delay != time.Second {
		t.Fatalf("delay = %v, want 1s", cfg.Delay)
	}
}

type countingExport struct {
	validations int
	err         error
}

func (ce *countingExport) Write(records []*models.PriceHistoryRecord) error { return nil }

func (ce *countingExport) Close() error { return nil }

func (ce *countingExport) Validate() error {
	ce.validations++
	return ce.err
}

func TestValidateExport(t *testing.T) {
	emptyErr := errors.New("csv file is empty")
	tests := []struct {
		name            string
		counters        models.RunCounters
		exportErr       error
		wantValidations int
		wantErr         bool
	}{
		{name: "validated after successes", counters: models.RunCounters{Total: 2, Success: 2}, wantValidations: 1},
		{name: "validation error surfaces", counters: models.RunCounters{Total: 1, Success: 1}, exportErr: emptyErr, wantValidations: 1, wantErr: true},
		{name: "nothing recorded", counters: models.RunCounters{Total: 2, Failed: 1, Skipped: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			export := &countingExport{err: tt.exportErr}
			err := validateExport(export, tt.counters)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateExport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if export.validations != tt.wantValidations {
				t.Fatalf("validations = %d, want %d", export.validations, tt.wantValidations)
			}
		})
	}

	if err := validateExport(nil, models.RunCounters{Total: 1, Success: 1}); err != nil {
		t.Fatalf("disabled export: %v", err)
	}
}

var _ pipeline.OutputWriter = (*countingExport)(nil)

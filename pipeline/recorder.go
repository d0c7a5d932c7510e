package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-price-sync/models"
	"github.com/aluiziolira/go-price-sync/parser"
)

// HistoryStore appends price history rows.
type HistoryStore interface {
	InsertPriceHistory(ctx context.Context, rec *models.PriceHistoryRecord) error
}

// RunLog stores one summary row per run.
type RunLog interface {
	InsertRunSummary(ctx context.Context, summary *models.RunSummary) error
}

// OutputWriter mirrors recorded rows to a local export file.
type OutputWriter interface {
	Write(records []*models.PriceHistoryRecord) error
	Close() error
	Validate() error
}

// Recorder appends one history row per successful observation.
type Recorder struct {
	store  HistoryStore
	export OutputWriter
	now    func() time.Time
}

// NewRecorder builds a recorder. export may be nil.
func NewRecorder(store HistoryStore, export OutputWriter) *Recorder {
	return &Recorder{
		store:  store,
		export: export,
		now:    time.Now,
	}
}

// Record stamps the observation with the current time and persists it.
// Any failure is reported as ErrPersist.
func (r *Recorder) Record(ctx context.Context, productID int64, obs *models.PriceObservation) (*models.PriceHistoryRecord, error) {
	if err := parser.ValidateObservation(obs); err != nil {
		return nil, fmt.Errorf("%w: invalid observation: %w", ErrPersist, err)
	}

	rec := &models.PriceHistoryRecord{
		ProductID:     productID,
		Price:         obs.Price,
		OriginalPrice: obs.OriginalPrice,
		Currency:      obs.Currency,
		DealType:      obs.DealType,
		RecordedAt:    r.now(),
	}
	if err := r.store.InsertPriceHistory(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if r.export != nil {
		if err := r.export.Write([]*models.PriceHistoryRecord{rec}); err != nil {
			slog.Warn("export write failed", slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	return rec, nil
}

// Reporter writes the run summary.
type Reporter struct {
	store RunLog
	now   func() time.Time
}

// NewReporter builds a reporter backed by store.
func NewReporter(store RunLog) *Reporter {
	return &Reporter{
		store: store,
		now:   time.Now,
	}
}

// Finalize derives status and notes from counters and writes exactly one summary.
func (r *Reporter) Finalize(ctx context.Context, counters models.RunCounters, source string) (*models.RunSummary, error) {
	if !counters.Consistent() {
		return nil, fmt.Errorf("inconsistent run counters: total=%d success=%d failed=%d skipped=%d",
			counters.Total, counters.Success, counters.Failed, counters.Skipped)
	}

	summary := &models.RunSummary{
		ScrapeDate:    r.now(),
		Source:        source,
		TotalProducts: counters.Total,
		Status:        counters.Status(),
		Notes:         counters.Notes(),
	}
	if err := r.store.InsertRunSummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return summary, nil
}

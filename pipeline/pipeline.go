package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-price-sync/cache"
	"github.com/aluiziolira/go-price-sync/models"
	"github.com/aluiziolira/go-price-sync/parser"
	"github.com/aluiziolira/go-price-sync/scraper"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPersist wraps every failed write to the store.
	ErrPersist = errors.New("pipeline: persist failed")
)

// sleep paces vendor requests; tests replace it.
var sleep = time.Sleep

// Catalog lists the products to synchronise.
type Catalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// Fetcher retrieves one classified observation per vendor id.
type Fetcher interface {
	Fetch(ctx context.Context, vendorID string) (*models.PriceObservation, error)
}

// PriceCache remembers the last recorded price of each product.
type PriceCache interface {
	LastPrice(ctx context.Context, productID int64) (float64, bool, error)
	SetLastPrice(ctx context.Context, productID int64, price float64) error
}

// Options tunes a Driver.
type Options struct {
	Source        string
	Delay         time.Duration
	DedupeMaxSize int
	Metrics       *scraper.Metrics
	Cache         PriceCache
}

// Driver walks the catalog sequentially: extract, fetch, classify, record.
// It owns the run counters and always finishes with a run summary.
type Driver struct {
	catalog  Catalog
	fetcher  Fetcher
	recorder *Recorder
	reporter *Reporter
	opts     Options
}

// productStep is the terminal state of one product.
type productStep struct {
	outcome   models.Outcome
	err       error
	deal      models.DealType
	requested bool
}

// NewDriver wires the run components together.
func NewDriver(catalog Catalog, fetcher Fetcher, recorder *Recorder, reporter *Reporter, opts Options) *Driver {
	if opts.DedupeMaxSize <= 0 {
		opts.DedupeMaxSize = 100000
	}
	return &Driver{
		catalog:  catalog,
		fetcher:  fetcher,
		recorder: recorder,
		reporter: reporter,
		opts:     opts,
	}
}

// Run processes the whole catalog once. A catalog read failure is returned
// before any product is touched; otherwise the result is always populated and
// the error, if any, comes from writing the run summary.
func (d *Driver) Run(ctx context.Context) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	products, err := d.catalog.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	slog.Info("catalog loaded", slog.Int("products", len(products)))

	seen, err := lru.New[int64, struct{}](d.opts.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	result := &models.RunResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
		DealsByType:  make(map[models.DealType]int),
	}

	var counters models.RunCounters
	for idx, product := range products {
		step := d.processProduct(ctx, product, seen, idx, len(products))
		counters.Add(step.outcome)
		d.opts.Metrics.IncOutcome(string(step.outcome))

		switch step.outcome {
		case models.OutcomeFailed:
			label := failureLabel(step.err)
			result.ErrorsByType[label]++
			result.FailedIDs = append(result.FailedIDs, product.ID)
			d.opts.Metrics.IncError(label)
		case models.OutcomeSuccess:
			result.DealsByType[step.deal]++
			d.opts.Metrics.IncDeal(string(step.deal))
		}

		if step.requested && idx < len(products)-1 && d.opts.Delay > 0 {
			sleep(d.opts.Delay)
		}
	}

	summary, err := d.reporter.Finalize(ctx, counters, d.opts.Source)
	result.Counters = counters
	result.Summary = summary
	result.EndTime = time.Now()
	if err != nil {
		return result, fmt.Errorf("finalize run: %w", err)
	}
	return result, nil
}

func (d *Driver) processProduct(ctx context.Context, product models.Product, seen *lru.Cache[int64, struct{}], idx, total int) productStep {
	logger := slog.With(
		slog.Int64("product_id", product.ID),
		slog.String("progress", fmt.Sprintf("%d/%d", idx+1, total)),
	)

	if contained, _ := seen.ContainsOrAdd(product.ID, struct{}{}); contained {
		logger.Warn("product skipped", slog.String("reason", "duplicate_catalog_entry"))
		return productStep{outcome: models.OutcomeSkipped}
	}

	vendorID, ok := parser.ExtractVendorID(product.URL)
	if !ok {
		logger.Warn("product skipped",
			slog.String("reason", "no_identifier"),
			slog.String("url", product.URL),
		)
		return productStep{outcome: models.OutcomeSkipped}
	}
	logger = logger.With(slog.String("vendor_id", vendorID))

	obs, err := d.fetcher.Fetch(ctx, vendorID)
	if err != nil {
		logger.Error("product failed",
			slog.String("error_type", failureLabel(err)),
			slog.Any("error", err),
		)
		return productStep{outcome: models.OutcomeFailed, err: err, requested: true}
	}

	rec, err := d.recorder.Record(ctx, product.ID, obs)
	if err != nil {
		logger.Error("product failed",
			slog.String("error_type", failureLabel(err)),
			slog.Any("error", err),
		)
		return productStep{outcome: models.OutcomeFailed, err: err, requested: true}
	}

	direction := d.trackPrice(ctx, logger, rec)
	logger.Info("price recorded",
		slog.Float64("price", rec.Price),
		slog.Float64("original_price", rec.OriginalPrice),
		slog.String("deal_type", string(rec.DealType)),
		slog.String("change", direction),
	)
	return productStep{outcome: models.OutcomeSuccess, deal: rec.DealType, requested: true}
}

// trackPrice compares against the cached last price. Cache faults only log.
func (d *Driver) trackPrice(ctx context.Context, logger *slog.Logger, rec *models.PriceHistoryRecord) string {
	if d.opts.Cache == nil {
		return "untracked"
	}

	previous, known, err := d.opts.Cache.LastPrice(ctx, rec.ProductID)
	if err != nil {
		logger.Debug("price cache read failed", slog.Any("error", err))
		return "untracked"
	}
	direction := cache.Direction(previous, known, rec.Price)
	d.opts.Metrics.IncPriceChange(direction)

	if err := d.opts.Cache.SetLastPrice(ctx, rec.ProductID, rec.Price); err != nil {
		logger.Debug("price cache write failed", slog.Any("error", err))
	}
	return direction
}

func failureLabel(err error) string {
	if errors.Is(err, ErrPersist) {
		return "persist"
	}
	return scraper.ErrorTypeLabel(err)
}

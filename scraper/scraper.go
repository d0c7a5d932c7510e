package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-price-sync/config"
	"github.com/aluiziolira/go-price-sync/models"
	"github.com/aluiziolira/go-price-sync/parser"
	"github.com/gocolly/colly/v2"
)

const (
	observationKey = "observation"
	failureKey     = "failure"
)

// Fetcher wraps the colly collector used to query the vendor product API.
// It issues exactly one request per call and never retries.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	headers   http.Header
	Metrics   *Metrics
}

type productPayload struct {
	Price         *float64 `json:"price"`
	OriginalPrice *float64 `json:"original_price"`
	BadgesNew     []struct {
		Code string `json:"code"`
	} `json:"badges_new"`
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse API base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("API base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	// Redirects are answers, not hops: a 3xx is reported like any other non-200 status.
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	// One request in flight at a time; pacing between products is the driver's job.
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	headers := http.Header{}
	headers.Set("User-Agent", cfg.UserAgent)
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Accept-Language", cfg.AcceptLanguage)
	headers.Set("Referer", cfg.Referer)

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		headers:   headers,
		Metrics:   NewMetrics(),
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport replaces the HTTP transport used for vendor requests.
func (f *Fetcher) WithTransport(transport http.RoundTripper) {
	f.collector.WithTransport(transport)
}

// Fetch queries the product-detail endpoint for vendorID and returns the
// classified observation, or one of the typed errors in errors.go.
func (f *Fetcher) Fetch(ctx context.Context, vendorID string) (*models.PriceObservation, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, classifyError(ctx.Err(), 0)
	}

	endpoint := f.cfg.ProductEndpoint(vendorID)
	reqCtx := colly.NewContext()

	start := time.Now()
	err := f.collector.Request(http.MethodGet, endpoint, nil, reqCtx, f.headers.Clone())
	f.Metrics.ObserveDuration(time.Since(start))

	if failure, ok := reqCtx.GetAny(failureKey).(error); ok {
		err = failure
	} else if err != nil {
		err = classifyError(err, 0)
	}
	if err != nil {
		f.Metrics.IncRequest(ErrorTypeLabel(err))
		return nil, err
	}

	obs, ok := reqCtx.GetAny(observationKey).(*models.PriceObservation)
	if !ok || obs == nil {
		err := ErrParse{Err: errors.New("no observation decoded")}
		f.Metrics.IncRequest(ErrorTypeLabel(err))
		return nil, err
	}
	f.Metrics.IncRequest("ok")
	return obs, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		slog.Debug("vendor request", slog.String("url", r.URL.String()))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			r.Ctx.Put(failureKey, classifyError(nil, r.StatusCode))
			return
		}
		obs, err := decodeObservation(r.Body, f.cfg.Currency)
		if err != nil {
			r.Ctx.Put(failureKey, ErrParse{Err: err})
			return
		}
		r.Ctx.Put(observationKey, obs)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		classified := classifyError(err, statusCode)
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(failureKey, classified)
		}
	})
}

func decodeObservation(body []byte, currency string) (*models.PriceObservation, error) {
	var payload productPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	if payload.Price == nil {
		return nil, fmt.Errorf("product missing price")
	}

	price := *payload.Price
	if price < 0 {
		return nil, fmt.Errorf("negative price %v", price)
	}
	originalPrice := price
	if payload.OriginalPrice != nil {
		originalPrice = *payload.OriginalPrice
	}
	if originalPrice < price {
		originalPrice = price
	}

	badges := make([]string, 0, len(payload.BadgesNew))
	for _, badge := range payload.BadgesNew {
		if badge.Code != "" {
			badges = append(badges, badge.Code)
		}
	}

	obs := &models.PriceObservation{
		Price:         price,
		OriginalPrice: originalPrice,
		Currency:      currency,
		DealType:      parser.ClassifyDeal(price, originalPrice, badges),
		Badges:        badges,
	}
	if err := parser.ValidateObservation(obs); err != nil {
		return nil, err
	}
	return obs, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}

	if statusCode != 0 && statusCode != http.StatusOK {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		if statusCode == http.StatusNotFound {
			return ErrNotFound{Err: wrapped}
		}
		return ErrUpstream{Status: statusCode, Err: wrapped}
	}

	if err == nil {
		return nil
	}
	return ErrConnection{Err: err}
}

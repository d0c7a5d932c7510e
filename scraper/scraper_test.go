package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-price-sync/config"
	"github.com/aluiziolira/go-price-sync/models"
	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://vendor.test"

func newTestFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.APIBaseURL = testBaseURL
	cfg.Delay = 0

	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	return f, transport
}

func jsonResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return httpmock.ResponderFromResponse(resp)
}

func redirectResponder(status int, location string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, "")
	resp.Header.Set("Location", location)
	return httpmock.ResponderFromResponse(resp)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "transport"},
		{name: "other transport", err: errors.New("tls handshake failure"), statusCode: 0, expected: "transport"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "upstream"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "upstream"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "upstream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrorTypeLabelParse(t *testing.T) {
	if got := ErrorTypeLabel(ErrParse{Err: errors.New("bad json")}); got != "parse" {
		t.Fatalf("label = %q, want parse", got)
	}
	if got := ErrorTypeLabel(errors.New("boom")); got != "other" {
		t.Fatalf("label = %q, want other", got)
	}
}

func TestFetchSuccess(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/api/v2/products/12345",
		jsonResponder(200, `{"id":12345,"price":100000,"original_price":150000,"badges_new":[]}`))

	obs, err := f.Fetch(context.Background(), "12345")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if obs.Price != 100000 || obs.OriginalPrice != 150000 {
		t.Fatalf("prices = %v/%v, want 100000/150000", obs.Price, obs.OriginalPrice)
	}
	if obs.Currency != "VND" {
		t.Fatalf("currency = %q, want VND", obs.Currency)
	}
	if obs.DealType != models.DealHot {
		t.Fatalf("deal type = %s, want %s", obs.DealType, models.DealHot)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestFetchSendsFixedHeaders(t *testing.T) {
	f, transport := newTestFetcher(t)

	var captured http.Header
	transport.RegisterResponder("GET", testBaseURL+"/api/v2/products/1",
		func(req *http.Request) (*http.Response, error) {
			captured = req.Header.Clone()
			return httpmock.NewStringResponse(200, `{"price":10}`), nil
		})

	if _, err := f.Fetch(context.Background(), "1"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	for _, key := range []string{"User-Agent", "Accept-Language", "Referer"} {
		if captured.Get(key) == "" {
			t.Fatalf("header %s not sent (headers=%v)", key, captured)
		}
	}
	if got := captured.Get("Referer"); got != "https://tiki.vn/" {
		t.Fatalf("referer = %q", got)
	}
}

func TestFetchDecodesBadgesAndDefaults(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantPrice    float64
		wantOriginal float64
		wantDeal     models.DealType
	}{
		{
			name:         "original defaults to price",
			body:         `{"price":250000}`,
			wantPrice:    250000,
			wantOriginal: 250000,
			wantDeal:     models.DealNormal,
		},
		{
			name:         "null original defaults to price",
			body:         `{"price":250000,"original_price":null}`,
			wantPrice:    250000,
			wantOriginal: 250000,
			wantDeal:     models.DealNormal,
		},
		{
			name:         "flash badge wins over discount",
			body:         `{"price":50,"original_price":100,"badges_new":[{"code":"flash_deal"}]}`,
			wantPrice:    50,
			wantOriginal: 100,
			wantDeal:     models.DealFlashSale,
		},
		{
			name:         "trend badge",
			body:         `{"price":90,"original_price":100,"badges_new":[{"code":"freeship"},{"code":"trending"}]}`,
			wantPrice:    90,
			wantOriginal: 100,
			wantDeal:     models.DealTrending,
		},
		{
			name:         "original below price is lifted",
			body:         `{"price":120,"original_price":100}`,
			wantPrice:    120,
			wantOriginal: 120,
			wantDeal:     models.DealNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, transport := newTestFetcher(t)
			transport.RegisterResponder("GET", testBaseURL+"/api/v2/products/7", jsonResponder(200, tt.body))

			obs, err := f.Fetch(context.Background(), "7")
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if obs.Price != tt.wantPrice || obs.OriginalPrice != tt.wantOriginal {
				t.Fatalf("prices = %v/%v, want %v/%v", obs.Price, obs.OriginalPrice, tt.wantPrice, tt.wantOriginal)
			}
			if obs.DealType != tt.wantDeal {
				t.Fatalf("deal type = %s, want %s", obs.DealType, tt.wantDeal)
			}
		})
	}
}

func TestFetchFailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		expected  string
	}{
		{name: "not found", responder: jsonResponder(http.StatusNotFound, `{"error":"not found"}`), expected: "not_found"},
		{name: "server error", responder: jsonResponder(http.StatusInternalServerError, ""), expected: "upstream"},
		{name: "rate limited", responder: jsonResponder(http.StatusTooManyRequests, ""), expected: "upstream"},
		{name: "accepted is not ok", responder: jsonResponder(http.StatusAccepted, `{"price":1}`), expected: "upstream"},
		{name: "redirect to other host", responder: redirectResponder(http.StatusFound, "http://elsewhere.test/product/42"), expected: "upstream"},
		{name: "redirect on same host", responder: redirectResponder(http.StatusMovedPermanently, testBaseURL+"/api/v2/products/43"), expected: "upstream"},
		{name: "timeout", responder: httpmock.NewErrorResponder(context.DeadlineExceeded), expected: "timeout"},
		{name: "transport", responder: httpmock.NewErrorResponder(errors.New("connection reset by peer")), expected: "transport"},
		{name: "malformed body", responder: jsonResponder(200, `{"price":`), expected: "parse"},
		{name: "missing price", responder: jsonResponder(200, `{"original_price":100}`), expected: "parse"},
		{name: "negative price", responder: jsonResponder(200, `{"price":-5}`), expected: "parse"},
		{name: "string price", responder: jsonResponder(200, `{"price":"cheap"}`), expected: "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, transport := newTestFetcher(t)
			transport.RegisterResponder("GET", testBaseURL+"/api/v2/products/42", tt.responder)

			obs, err := f.Fetch(context.Background(), "42")
			if err == nil {
				t.Fatalf("expected %s failure, got observation %+v", tt.expected, obs)
			}
			if got := ErrorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, err)
			}
			if got := transport.GetTotalCallCount(); got != 1 {
				t.Fatalf("calls = %d, want exactly one attempt", got)
			}
		})
	}
}

func TestFetchUpstreamKeepsStatus(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/api/v2/products/9", jsonResponder(http.StatusBadGateway, ""))

	_, err := f.Fetch(context.Background(), "9")
	var upstream ErrUpstream
	if !errors.As(err, &upstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if upstream.Status != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", upstream.Status, http.StatusBadGateway)
	}
}

func TestFetchRedirectIsNotFollowed(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/api/v2/products/5",
		redirectResponder(http.StatusFound, "http://elsewhere.test/login"))
	transport.RegisterResponder("GET", "http://elsewhere.test/login", jsonResponder(200, `{"price":1}`))

	_, err := f.Fetch(context.Background(), "5")
	var upstream ErrUpstream
	if !errors.As(err, &upstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if upstream.Status != http.StatusFound {
		t.Fatalf("status = %d, want %d", upstream.Status, http.StatusFound)
	}
	if got := transport.GetCallCountInfo()["GET http://elsewhere.test/login"]; got != 0 {
		t.Fatalf("redirect target calls = %d, want 0", got)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	f, transport := newTestFetcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if _, err := f.Fetch(ctx, "1"); ErrorTypeLabel(err) != "timeout" {
		t.Fatalf("expected timeout, got %v", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}

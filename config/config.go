package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds price sync configuration.
type Config struct {
	APIBaseURL     string
	Source         string
	Currency       string
	Delay          time.Duration
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	Referer        string
	DatabaseURL    string
	RedisAddr      string
	PriceCacheTTL  time.Duration
	DedupeMaxSize  int
	MetricsAddr    string
	ExportFile     string
	ExportFormat   string // empty, csv, or json
	Verbose        bool
}

// DefaultConfig returns conservative defaults for the Tiki product API.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:     "https://tiki.vn",
		Source:         "tiki",
		Currency:       "VND",
		Delay:          2 * time.Second,
		Timeout:        10 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		AcceptLanguage: "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7",
		Referer:        "https://tiki.vn/",
		DatabaseURL:    "sqlite://price_insight.db",
		RedisAddr:      "",
		PriceCacheTTL:  7 * 24 * time.Hour,
		DedupeMaxSize:  100000,
		MetricsAddr:    "",
		ExportFile:     "",
		ExportFormat:   "",
		Verbose:        false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("API base URL must include a host")
	}

	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL cannot be empty")
	}
	if c.PriceCacheTTL < 0 {
		return fmt.Errorf("price cache TTL cannot be negative")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	switch c.ExportFormat {
	case "":
	case "csv", "json":
		if c.ExportFile == "" {
			return fmt.Errorf("export file cannot be empty when export format is %s", c.ExportFormat)
		}
	default:
		return fmt.Errorf("export format must be csv or json")
	}

	return nil
}

// ProductEndpoint returns the product-detail URL for a vendor id.
func (c *Config) ProductEndpoint(vendorID string) string {
	return strings.TrimSuffix(c.APIBaseURL, "/") + "/api/v2/products/" + url.PathEscape(vendorID)
}

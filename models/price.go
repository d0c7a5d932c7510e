// Package models defines data structures for the price sync run.
package models

import (
	"fmt"
	"time"
)

// DealType is the promotional classification of a price observation.
type DealType string

const (
	DealNormal    DealType = "NORMAL"
	DealFlashSale DealType = "FLASH_SALE"
	DealHot       DealType = "HOT_DEAL"
	DealTrending  DealType = "TRENDING"
)

// RunStatus is the overall result recorded for a run.
type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// Outcome is the terminal state of a single product within a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Product is a catalog row. The catalog is read-only to the sync run.
type Product struct {
	ID     int64  `json:"product_id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// PriceObservation is the normalised vendor response for one product.
type PriceObservation struct {
	Price         float64  `json:"price"`
	OriginalPrice float64  `json:"original_price"`
	Currency      string   `json:"currency"`
	DealType      DealType `json:"deal_type"`
	Badges        []string `json:"badges,omitempty"`
}

// PriceHistoryRecord is one append-only row of the price history.
type PriceHistoryRecord struct {
	ProductID     int64     `csv:"product_id" json:"product_id"`
	Price         float64   `csv:"price" json:"price"`
	OriginalPrice float64   `csv:"original_price" json:"original_price"`
	Currency      string    `csv:"currency" json:"currency"`
	DealType      DealType  `csv:"deal_type" json:"deal_type"`
	RecordedAt    time.Time `csv:"recorded_at" json:"recorded_at"`
}

// RunSummary is written exactly once at the end of a run.
type RunSummary struct {
	ScrapeDate    time.Time `json:"scrape_date"`
	Source        string    `json:"source"`
	TotalProducts int       `json:"total_products"`
	Status        RunStatus `json:"status"`
	Notes         string    `json:"notes"`
}

// RunCounters tracks per-product outcomes for a single run.
type RunCounters struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

// Add folds one terminal outcome into the counters.
func (c *RunCounters) Add(o Outcome) {
	c.Total++
	switch o {
	case OutcomeSuccess:
		c.Success++
	case OutcomeFailed:
		c.Failed++
	default:
		c.Skipped++
	}
}

// Consistent reports whether every counted product reached exactly one terminal state.
func (c RunCounters) Consistent() bool {
	return c.Total == c.Success+c.Failed+c.Skipped
}

// Status is SUCCESS only when no product failed.
func (c RunCounters) Status() RunStatus {
	if c.Failed == 0 {
		return RunSuccess
	}
	return RunFailed
}

// Notes renders the counters for the run log. It is display only.
func (c RunCounters) Notes() string {
	return fmt.Sprintf("Success: %d, Failed: %d, Skipped: %d", c.Success, c.Failed, c.Skipped)
}

// SuccessRate returns the share of successful products as a percentage.
func (c RunCounters) SuccessRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Success) / float64(c.Total) * 100
}

// RunResult holds the overall result of a sync run.
type RunResult struct {
	Counters     RunCounters
	Summary      *RunSummary
	StartTime    time.Time
	EndTime      time.Time
	ErrorsByType map[string]int
	FailedIDs    []int64
	DealsByType  map[DealType]int
}

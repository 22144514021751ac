// Package model defines the core data types shared across the ingestion pipeline.
package model

import "time"

// ListingURL identifies one discovered listing: the canonical ID derived from
// the URL plus the raw URL itself. Two URLs that differ only in tracking
// parameters carry the same ID.
type ListingURL struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ListingRecord is the persisted, structured form of one real-estate listing.
// Optional numeric fields are pointers: absent means nil, never zero.
type ListingRecord struct {
	ListingID      string   `json:"listing_id"`
	Price          *int64   `json:"price"`
	AreaSqm        *float64 `json:"area_sqm"`
	LivingAreaSqm  *float64 `json:"living_area_sqm,omitempty"`
	KitchenAreaSqm *float64 `json:"kitchen_area_sqm,omitempty"`
	RoomCount      *int     `json:"room_count,omitempty"`
	Floor          *int     `json:"floor,omitempty"`
	TotalFloors    *int     `json:"total_floors,omitempty"`
	CeilingHeightM *float64 `json:"ceiling_height_m,omitempty"`
	YearBuilt      *int     `json:"year_built,omitempty"`
	AddressText    string   `json:"address_text,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	District       string   `json:"district,omitempty"`
	SourceURL      string   `json:"source_url"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	ScrapeRunID string    `json:"scrape_run_id"`
}

// HasLocation reports whether the record carries at least one location signal
// usable for district resolution: a coordinate pair or a free-text address.
func (r *ListingRecord) HasLocation() bool {
	if r.Latitude != nil && r.Longitude != nil {
		return true
	}
	return r.AddressText != ""
}

// OutcomeStatus is the terminal state of one processed listing URL.
type OutcomeStatus string

const (
	OutcomeIngested         OutcomeStatus = "ingested"
	OutcomeSkippedDuplicate OutcomeStatus = "skipped_duplicate_in_run"
	OutcomeParseFailed      OutcomeStatus = "parse_failed"
	OutcomeFetchFailed      OutcomeStatus = "fetch_failed"
	OutcomeStoreFailed      OutcomeStatus = "store_failed"
)

// RunOutcome records the result of processing one URL within a run. It exists
// for observability and resumability only; ingestion logic never reads it back.
type RunOutcome struct {
	ListingID   string        `json:"listing_id,omitempty"`
	URL         string        `json:"url"`
	Status      OutcomeStatus `json:"status"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

// RunStatus represents the state of a scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ScrapeRun is one end-to-end execution of the ingestion pipeline.
type ScrapeRun struct {
	ID         string      `json:"id"`
	City       string      `json:"city"`
	SearchURL  string      `json:"search_url"`
	Status     RunStatus   `json:"status"`
	LastPage   int         `json:"last_page"` // last fully discovered page, resume cursor
	Summary    *RunSummary `json:"summary,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// RunSummary aggregates outcome counts for one run.
type RunSummary struct {
	Ingested   int `json:"ingested"`
	Skipped    int `json:"skipped_duplicate_in_run"`
	ParseFails int `json:"parse_failed"`
	FetchFails int `json:"fetch_failed"`
	StoreFails int `json:"store_failed"`
}

// Add counts one outcome into the summary.
func (s *RunSummary) Add(status OutcomeStatus) {
	switch status {
	case OutcomeIngested:
		s.Ingested++
	case OutcomeSkippedDuplicate:
		s.Skipped++
	case OutcomeParseFailed:
		s.ParseFails++
	case OutcomeFetchFailed:
		s.FetchFails++
	case OutcomeStoreFailed:
		s.StoreFails++
	}
}

// Total returns the number of processed URLs across all statuses.
func (s *RunSummary) Total() int {
	return s.Ingested + s.Skipped + s.ParseFails + s.FetchFails + s.StoreFails
}

// Package store persists scrape runs, listings, and per-URL outcomes. Two
// backends implement the same interface: SQLite for single-host ingestion and
// Postgres for shared deployments.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/config"
	"github.com/uralstat/realty-cli/internal/model"
)

// RunFilter specifies criteria for listing scrape runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ListingFilter specifies criteria for listing queries.
type ListingFilter struct {
	District string `json:"district,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, city, searchURL string) (*model.ScrapeRun, error)
	UpdateRunCursor(ctx context.Context, runID string, lastPage int) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.ScrapeRun, error)
	LatestRun(ctx context.Context) (*model.ScrapeRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ScrapeRun, error)

	// Listings. UpsertListing is keyed on the listing ID: an existing row is
	// overwritten field-for-field except first_seen_at, which keeps its
	// original value. The bool result reports whether the row was new.
	UpsertListing(ctx context.Context, rec *model.ListingRecord) (bool, error)
	GetListing(ctx context.Context, listingID string) (*model.ListingRecord, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]model.ListingRecord, error)

	// Outcomes
	RecordOutcome(ctx context.Context, runID string, outcome model.RunOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]model.RunOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = eris.New("store: not found")

// Open constructs the backend named by the config and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

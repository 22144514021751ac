// Package pipeline coordinates one ingestion run: discovery feeds a bounded
// pool of workers that fetch, extract, geo-resolve, and persist listings,
// recording a terminal outcome for every URL.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uralstat/realty-cli/internal/config"
	"github.com/uralstat/realty-cli/internal/discover"
	"github.com/uralstat/realty-cli/internal/fetcher"
	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/resilience"
	"github.com/uralstat/realty-cli/internal/store"
)

// Fetcher fetches one page. Satisfied by *fetcher.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// Extractor turns a fetched listing page into a structured record.
// Satisfied by *extract.Extractor.
type Extractor interface {
	Extract(page *fetcher.Page) (*model.ListingRecord, error)
}

// Resolver maps a location signal to a district name. Satisfied by
// *geo.Resolver.
type Resolver interface {
	Resolve(lat, lon *float64, address string) (string, bool)
}

// Coordinator runs the ingestion pipeline end to end.
type Coordinator struct {
	cfg     *config.Config
	store   store.Store
	fetch   Fetcher
	extract Extractor
	resolve Resolver
	retry   resilience.RetryConfig
	locks   keyedLocks
}

// New creates a Coordinator with all dependencies.
func New(cfg *config.Config, st store.Store, fetch Fetcher, ext Extractor, res Resolver) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		store:   st,
		fetch:   fetch,
		extract: ext,
		resolve: res,
		retry:   retryFromConfig(cfg.Retry),
	}
}

// Options controls one Run invocation.
type Options struct {
	// Resume continues from the page cursor of the most recent failed run
	// instead of page 1. A fresh run row is created either way; the old
	// run's outcomes stay untouched.
	Resume bool
}

// Run executes one full ingestion pass and returns the finished run row.
// It fails outright only when the portal is unreachable before any page was
// fetched or the run row itself cannot be written; every per-listing failure
// is recorded as an outcome and the run completes.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*model.ScrapeRun, error) {
	startPage := 1
	if opts.Resume {
		startPage = c.resumePage(ctx)
	}

	run, err := c.store.CreateRun(ctx, c.cfg.Portal.City, c.cfg.Portal.SearchURL)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: run starting",
		zap.String("search_url", run.SearchURL),
		zap.Int("start_page", startPage),
		zap.Int("concurrency", c.cfg.Pipeline.Concurrency),
	)

	var (
		summaryMu sync.Mutex
		summary   model.RunSummary
	)
	record := func(outcome model.RunOutcome) {
		summaryMu.Lock()
		summary.Add(outcome.Status)
		summaryMu.Unlock()
		if err := c.store.RecordOutcome(ctx, run.ID, outcome); err != nil {
			log.Warn("pipeline: record outcome failed",
				zap.String("url", outcome.URL), zap.Error(err))
		}
	}

	disc := discover.New(c.fetch, discover.Options{
		SearchURL: c.cfg.Portal.SearchURL,
		MaxPages:  c.cfg.Pipeline.MaxPages,
		StartPage: startPage,
		Retry:     c.retry,
		OnPage: func(page int) {
			if err := c.store.UpdateRunCursor(ctx, run.ID, page); err != nil {
				log.Warn("pipeline: update cursor failed", zap.Int("page", page), zap.Error(err))
			}
		},
	})

	ch := make(chan discover.Discovered, 2*c.concurrency())

	var discErr error
	discDone := make(chan struct{})
	go func() {
		defer close(discDone)
		defer close(ch)
		_, discErr = disc.Run(ctx, ch)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())

	for d := range ch {
		if d.Duplicate {
			record(model.RunOutcome{
				ListingID: d.Listing.ID,
				URL:       d.Listing.URL,
				Status:    model.OutcomeSkippedDuplicate,
			})
			continue
		}

		listing := d.Listing
		g.Go(func() error {
			record(c.process(gctx, run.ID, listing))
			return nil
		})
	}

	_ = g.Wait()
	<-discDone

	status := model.RunStatusComplete
	var runErr error
	switch {
	case discErr != nil && errors.Is(discErr, discover.ErrPortalUnreachable):
		status, runErr = model.RunStatusFailed, discErr
	case ctx.Err() != nil:
		status, runErr = model.RunStatusFailed, ctx.Err()
	}

	if err := c.store.FinishRun(ctx, run.ID, status, &summary); err != nil {
		// The run happened; losing the final row is worth surfacing.
		if runErr == nil {
			runErr = eris.Wrap(err, "pipeline: finish run")
		}
		log.Error("pipeline: finish run failed", zap.Error(err))
	}

	run.Status = status
	run.Summary = &summary

	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("ingested", summary.Ingested),
		zap.Int("skipped", summary.Skipped),
		zap.Int("parse_failed", summary.ParseFails),
		zap.Int("fetch_failed", summary.FetchFails),
		zap.Int("store_failed", summary.StoreFails),
	)
	return run, runErr
}

// process takes one listing URL to its terminal outcome.
func (c *Coordinator) process(ctx context.Context, runID string, lu model.ListingURL) model.RunOutcome {
	outcome := model.RunOutcome{ListingID: lu.ID, URL: lu.URL}
	log := zap.L().With(zap.String("listing_id", lu.ID))

	page, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*fetcher.Page, error) {
		return c.fetch.Fetch(ctx, lu.URL)
	})
	if err != nil {
		outcome.Status = model.OutcomeFetchFailed
		outcome.ErrorDetail = err.Error()
		log.Warn("pipeline: fetch failed", zap.Error(err))
		return outcome
	}

	rec, err := c.extract.Extract(page)
	if err != nil {
		outcome.Status = model.OutcomeParseFailed
		outcome.ErrorDetail = err.Error()
		log.Warn("pipeline: extract failed", zap.Error(err))
		return outcome
	}
	rec.ScrapeRunID = runID
	seen := page.FetchedAt
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	// The store keeps the original first_seen_at on conflict, so both stamps
	// carry the fetch time here.
	rec.FirstSeenAt = seen
	rec.LastSeenAt = seen

	if district, ok := c.resolve.Resolve(rec.Latitude, rec.Longitude, rec.AddressText); ok {
		rec.District = district
	}

	// Two workers can race on the same canonical ID when the portal repeats
	// a listing across pages the discoverer did not collapse. Serialize per ID
	// so last_seen_at and first_seen_at stay coherent.
	unlock := c.locks.lock(lu.ID)
	err = resilience.Do(ctx, storeRetry(c.retry), func(ctx context.Context) error {
		_, upErr := c.store.UpsertListing(ctx, rec)
		return upErr
	})
	unlock()

	if err != nil {
		outcome.Status = model.OutcomeStoreFailed
		outcome.ErrorDetail = err.Error()
		log.Error("pipeline: upsert failed", zap.Error(err))
		return outcome
	}

	outcome.Status = model.OutcomeIngested
	log.Debug("pipeline: listing ingested", zap.String("district", rec.District))
	return outcome
}

// resumePage reads the cursor of the latest failed run; a complete or missing
// history starts from page 1.
func (c *Coordinator) resumePage(ctx context.Context) int {
	last, err := c.store.LatestRun(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("pipeline: resume lookup failed", zap.Error(err))
		}
		return 1
	}
	if last.Status != model.RunStatusFailed || last.LastPage <= 0 {
		return 1
	}
	zap.L().Info("pipeline: resuming after failed run",
		zap.String("prev_run_id", last.ID),
		zap.Int("from_page", last.LastPage+1),
	)
	return last.LastPage + 1
}

func (c *Coordinator) concurrency() int {
	if c.cfg.Pipeline.Concurrency > 0 {
		return c.cfg.Pipeline.Concurrency
	}
	return 4
}

func retryFromConfig(rc config.RetryConfig) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("portal fetch")
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		cfg.InitialBackoff = msDuration(rc.InitialBackoffMs)
	}
	if rc.MaxBackoffMs > 0 {
		cfg.MaxBackoff = msDuration(rc.MaxBackoffMs)
	}
	if rc.Multiplier > 0 {
		cfg.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction > 0 {
		cfg.JitterFraction = rc.JitterFraction
	}
	cfg.ShouldRetry = resilience.IsTransient
	return cfg
}

// storeRetry allows a single retry on upsert. Database errors are not
// transient in the IsTransient sense, so retry unconditionally once.
func storeRetry(base resilience.RetryConfig) resilience.RetryConfig {
	base.MaxAttempts = 2
	base.ShouldRetry = func(error) bool { return true }
	base.OnRetry = resilience.RetryLogger("upsert listing")
	return base
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

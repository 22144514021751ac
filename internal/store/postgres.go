package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/uralstat/realty-cli/internal/db"
	"github.com/uralstat/realty-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot ingestion path.
var preparedStatements = map[string]string{
	"update_run_cursor": `UPDATE scrape_runs SET last_page = $1 WHERE id = $2`,
	"get_listing":       `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`,
	"record_outcome": `INSERT INTO run_outcomes (id, run_id, listing_id, url, status, error_detail, recorded_at)
	                   VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk backfill).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	city        TEXT NOT NULL,
	search_url  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	last_page   INTEGER NOT NULL DEFAULT 0,
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS listings (
	id               TEXT PRIMARY KEY,
	price            BIGINT,
	area_sqm         DOUBLE PRECISION,
	living_area_sqm  DOUBLE PRECISION,
	kitchen_area_sqm DOUBLE PRECISION,
	room_count       INTEGER,
	floor            INTEGER,
	total_floors     INTEGER,
	ceiling_height_m DOUBLE PRECISION,
	year_built       INTEGER,
	address_text     TEXT NOT NULL DEFAULT '',
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	district         TEXT,
	source_url       TEXT NOT NULL,
	first_seen_at    TIMESTAMPTZ NOT NULL,
	last_seen_at     TIMESTAMPTZ NOT NULL,
	scrape_run_id    TEXT NOT NULL REFERENCES scrape_runs(id)
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES scrape_runs(id),
	listing_id   TEXT,
	url          TEXT NOT NULL,
	status       TEXT NOT NULL,
	error_detail TEXT,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_status ON scrape_runs(status);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_listings_district ON listings(district);
CREATE INDEX IF NOT EXISTS idx_listings_run ON listings(scrape_run_id);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_run ON run_outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_status ON run_outcomes(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, city, searchURL string) (*model.ScrapeRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, city, search_url, status, last_page, started_at) VALUES ($1, $2, $3, $4, 0, $5)`,
		id, city, searchURL, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.ScrapeRun{
		ID:        id,
		City:      city,
		SearchURL: searchURL,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunCursor(ctx context.Context, runID string, lastPage int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs SET last_page = $1 WHERE id = $2`,
		lastPage, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run cursor %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs SET status = $1, summary = $2, finished_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ScrapeRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, city, search_url, status, last_page, summary, started_at, finished_at
		 FROM scrape_runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.ScrapeRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, city, search_url, status, last_page, summary, started_at, finished_at
		 FROM scrape_runs ORDER BY started_at DESC LIMIT 1`,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ScrapeRun, error) {
	query := `SELECT id, city, search_url, status, last_page, summary, started_at, finished_at
	          FROM scrape_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// listingColumnList is the insert column order shared by the single-row and
// bulk upsert paths.
var listingColumnList = []string{
	"id", "price", "area_sqm", "living_area_sqm", "kitchen_area_sqm",
	"room_count", "floor", "total_floors", "ceiling_height_m", "year_built",
	"address_text", "latitude", "longitude", "district", "source_url",
	"first_seen_at", "last_seen_at", "scrape_run_id",
}

func listingRow(rec *model.ListingRecord) []any {
	return []any{
		rec.ListingID, rec.Price, rec.AreaSqm, rec.LivingAreaSqm, rec.KitchenAreaSqm,
		rec.RoomCount, rec.Floor, rec.TotalFloors, rec.CeilingHeightM, rec.YearBuilt,
		rec.AddressText, rec.Latitude, rec.Longitude, nullString(rec.District), rec.SourceURL,
		rec.FirstSeenAt, rec.LastSeenAt, rec.ScrapeRunID,
	}
}

func (s *PostgresStore) UpsertListing(ctx context.Context, rec *model.ListingRecord) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO listings (
			id, price, area_sqm, living_area_sqm, kitchen_area_sqm,
			room_count, floor, total_floors, ceiling_height_m, year_built,
			address_text, latitude, longitude, district, source_url,
			first_seen_at, last_seen_at, scrape_run_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			price = EXCLUDED.price,
			area_sqm = EXCLUDED.area_sqm,
			living_area_sqm = EXCLUDED.living_area_sqm,
			kitchen_area_sqm = EXCLUDED.kitchen_area_sqm,
			room_count = EXCLUDED.room_count,
			floor = EXCLUDED.floor,
			total_floors = EXCLUDED.total_floors,
			ceiling_height_m = EXCLUDED.ceiling_height_m,
			year_built = EXCLUDED.year_built,
			address_text = EXCLUDED.address_text,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			district = EXCLUDED.district,
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			scrape_run_id = EXCLUDED.scrape_run_id
		RETURNING (xmax = 0)`,
		listingRow(rec)...,
	).Scan(&created)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert listing %s", rec.ListingID)
	}
	return created, nil
}

// UpsertListings bulk-upserts a batch of listings via COPY into a temp table.
// first_seen_at is excluded from the update set, so re-imported rows keep
// their original discovery time. Used by the backfill path, not the pipeline.
func (s *PostgresStore) UpsertListings(ctx context.Context, recs []model.ListingRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for i := range recs {
		rows = append(rows, listingRow(&recs[i]))
	}

	var updateCols []string
	for _, c := range listingColumnList {
		if c != "id" && c != "first_seen_at" {
			updateCols = append(updateCols, c)
		}
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "listings",
		Columns:      listingColumnList,
		ConflictKeys: []string{"id"},
		UpdateCols:   updateCols,
	}, rows)
}

func (s *PostgresStore) GetListing(ctx context.Context, listingID string) (*model.ListingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`,
		listingID,
	)
	rec, err := scanListing(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing %s", listingID)
	}
	return rec, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.ListingRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE true`
	args := []any{}
	argIdx := 1

	if filter.District != "" {
		query += fmt.Sprintf(` AND district = $%d`, argIdx)
		args = append(args, filter.District)
		argIdx++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND scrape_run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	query += ` ORDER BY id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listings")
	}
	defer rows.Close()

	var recs []model.ListingRecord
	for rows.Next() {
		rec, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list listings iterate")
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, runID string, outcome model.RunOutcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_outcomes (id, run_id, listing_id, url, status, error_detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), runID, nullString(outcome.ListingID), outcome.URL,
		string(outcome.Status), nullString(outcome.ErrorDetail), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record outcome for run %s", runID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]model.RunOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT listing_id, url, status, error_detail FROM run_outcomes
		 WHERE run_id = $1 ORDER BY recorded_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list outcomes for run %s", runID)
	}
	defer rows.Close()

	var outcomes []model.RunOutcome
	for rows.Next() {
		var o model.RunOutcome
		var listingID, detail *string
		if err := rows.Scan(&listingID, &o.URL, &o.Status, &detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		if listingID != nil {
			o.ListingID = *listingID
		}
		if detail != nil {
			o.ErrorDetail = *detail
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

// pg scan helpers: pgx rows cannot reuse database/sql Null types for JSONB.

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPgRun(row pgScannable) (*model.ScrapeRun, error) {
	var r model.ScrapeRun
	var summaryJSON []byte
	var finishedAt *time.Time

	err := row.Scan(&r.ID, &r.City, &r.SearchURL, &r.Status, &r.LastPage,
		&summaryJSON, &r.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(summaryJSON) > 0 && string(summaryJSON) != "null" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal summary")
		}
	}
	r.FinishedAt = finishedAt
	return &r, nil
}

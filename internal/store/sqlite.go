package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/uralstat/realty-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// The modernc driver serializes writes; a single connection avoids
	// SQLITE_BUSY between pipeline workers.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          TEXT PRIMARY KEY,
	city        TEXT NOT NULL,
	search_url  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	last_page   INTEGER NOT NULL DEFAULT 0,
	summary     TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS listings (
	id               TEXT PRIMARY KEY,
	price            INTEGER,
	area_sqm         REAL,
	living_area_sqm  REAL,
	kitchen_area_sqm REAL,
	room_count       INTEGER,
	floor            INTEGER,
	total_floors     INTEGER,
	ceiling_height_m REAL,
	year_built       INTEGER,
	address_text     TEXT NOT NULL DEFAULT '',
	latitude         REAL,
	longitude        REAL,
	district         TEXT,
	source_url       TEXT NOT NULL,
	first_seen_at    DATETIME NOT NULL,
	last_seen_at     DATETIME NOT NULL,
	scrape_run_id    TEXT NOT NULL REFERENCES scrape_runs(id)
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES scrape_runs(id),
	listing_id   TEXT,
	url          TEXT NOT NULL,
	status       TEXT NOT NULL,
	error_detail TEXT,
	recorded_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_scrape_runs_status ON scrape_runs(status);
CREATE INDEX IF NOT EXISTS idx_listings_district ON listings(district);
CREATE INDEX IF NOT EXISTS idx_listings_run ON listings(scrape_run_id);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_run ON run_outcomes(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, city, searchURL string) (*model.ScrapeRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, city, search_url, status, last_page, started_at) VALUES (?, ?, ?, ?, 0, ?)`,
		id, city, searchURL, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.ScrapeRun{
		ID:        id,
		City:      city,
		SearchURL: searchURL,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunCursor(ctx context.Context, runID string, lastPage int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET last_page = ? WHERE id = ?`,
		lastPage, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run cursor %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ScrapeRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, city, search_url, status, last_page, summary, started_at, finished_at
		 FROM scrape_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.ScrapeRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, city, search_url, status, last_page, summary, started_at, finished_at
		 FROM scrape_runs ORDER BY started_at DESC LIMIT 1`,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ScrapeRun, error) {
	query := `SELECT id, city, search_url, status, last_page, summary, started_at, finished_at
	          FROM scrape_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, rec *model.ListingRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	var firstSeen time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT first_seen_at FROM listings WHERE id = ?`, rec.ListingID,
	).Scan(&firstSeen)

	created := err == sql.ErrNoRows
	if err != nil && !created {
		return false, eris.Wrapf(err, "sqlite: lookup listing %s", rec.ListingID)
	}
	if created {
		firstSeen = rec.FirstSeenAt
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO listings (
			id, price, area_sqm, living_area_sqm, kitchen_area_sqm,
			room_count, floor, total_floors, ceiling_height_m, year_built,
			address_text, latitude, longitude, district, source_url,
			first_seen_at, last_seen_at, scrape_run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			price = excluded.price,
			area_sqm = excluded.area_sqm,
			living_area_sqm = excluded.living_area_sqm,
			kitchen_area_sqm = excluded.kitchen_area_sqm,
			room_count = excluded.room_count,
			floor = excluded.floor,
			total_floors = excluded.total_floors,
			ceiling_height_m = excluded.ceiling_height_m,
			year_built = excluded.year_built,
			address_text = excluded.address_text,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			district = excluded.district,
			source_url = excluded.source_url,
			last_seen_at = excluded.last_seen_at,
			scrape_run_id = excluded.scrape_run_id`,
		rec.ListingID, rec.Price, rec.AreaSqm, rec.LivingAreaSqm, rec.KitchenAreaSqm,
		rec.RoomCount, rec.Floor, rec.TotalFloors, rec.CeilingHeightM, rec.YearBuilt,
		rec.AddressText, rec.Latitude, rec.Longitude, nullString(rec.District), rec.SourceURL,
		firstSeen, rec.LastSeenAt, rec.ScrapeRunID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert listing %s", rec.ListingID)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit upsert")
	}
	return created, nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, listingID string) (*model.ListingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`,
		listingID,
	)
	return scanListing(row)
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.ListingRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	if filter.District != "" {
		query += ` AND district = ?`
		args = append(args, filter.District)
	}
	if filter.RunID != "" {
		query += ` AND scrape_run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list listings")
	}
	defer rows.Close()

	var recs []model.ListingRecord
	for rows.Next() {
		rec, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list listings iterate")
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, runID string, outcome model.RunOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_outcomes (id, run_id, listing_id, url, status, error_detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, nullString(outcome.ListingID), outcome.URL,
		string(outcome.Status), nullString(outcome.ErrorDetail), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record outcome for run %s", runID)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]model.RunOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT listing_id, url, status, error_detail FROM run_outcomes
		 WHERE run_id = ? ORDER BY recorded_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list outcomes for run %s", runID)
	}
	defer rows.Close()

	var outcomes []model.RunOutcome
	for rows.Next() {
		var o model.RunOutcome
		var listingID, detail sql.NullString
		if err := rows.Scan(&listingID, &o.URL, &o.Status, &detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		o.ListingID = listingID.String
		o.ErrorDetail = detail.String
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanRun(row scannable) (*model.ScrapeRun, error) {
	var r model.ScrapeRun
	var summaryJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.City, &r.SearchURL, &r.Status, &r.LastPage,
		&summaryJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid && summaryJSON.String != "null" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

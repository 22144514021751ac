package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uralstat/realty-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgres_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, city, search_url, status, last_page, summary, started_at, finished_at`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, city, search_url, status, last_page, summary, started_at, finished_at`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "city", "search_url", "status", "last_page", "summary", "started_at", "finished_at",
		}).AddRow("run-1", "Уфа", "https://realty.yandex.ru/ufa/kupit/kvartira/",
			"complete", 25, []byte(`{"ingested":40}`), started, (*time.Time)(nil)))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 25, run.LastPage)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 40, run.Summary.Ingested)
	assert.Nil(t, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO scrape_runs`).
		WithArgs(pgxmock.AnyArg(), "Уфа", "https://realty.yandex.ru/ufa/kupit/kvartira/",
			"running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "Уфа", "https://realty.yandex.ru/ufa/kupit/kvartira/")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRunCursor_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE scrape_runs SET last_page`).
		WithArgs(3, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunCursor(context.Background(), "missing", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE scrape_runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), "run-1", model.RunStatusComplete, &model.RunSummary{Ingested: 3})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertListing_Created(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := testListing("100500", "run-1")
	mock.ExpectQuery(`INSERT INTO listings`).
		WithArgs(listingRow(rec)...).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(true))

	created, err := s.UpsertListing(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertListing_Updated(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := testListing("100500", "run-2")
	mock.ExpectQuery(`INSERT INTO listings`).
		WithArgs(listingRow(rec)...).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(false))

	created, err := s.UpsertListing(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetListing_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, price, area_sqm`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetListing(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordOutcome(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO run_outcomes`).
		WithArgs(pgxmock.AnyArg(), "run-1", nil, "https://realty.yandex.ru/offer/7/",
			"fetch_failed", "status 503", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordOutcome(context.Background(), "run-1", model.RunOutcome{
		URL:         "https://realty.yandex.ru/offer/7/",
		Status:      model.OutcomeFetchFailed,
		ErrorDetail: "status 503",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListOutcomes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	id1 := "1"
	mock.ExpectQuery(`SELECT listing_id, url, status, error_detail FROM run_outcomes`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"listing_id", "url", "status", "error_detail"}).
			AddRow(&id1, "https://realty.yandex.ru/offer/1/", "ingested", (*string)(nil)).
			AddRow((*string)(nil), "https://realty.yandex.ru/offer/2/", "parse_failed", strPtr("parse price: field missing")))

	outcomes, err := s.ListOutcomes(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "1", outcomes[0].ListingID)
	assert.Equal(t, model.OutcomeParseFailed, outcomes[1].Status)
	assert.Equal(t, "parse price: field missing", outcomes[1].ErrorDetail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertListings_Bulk(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	recs := []model.ListingRecord{*testListing("1", "run-1"), *testListing("2", "run-1")}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_listings"}, listingColumnList).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "listings"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback after commit is a no-op

	n, err := s.UpsertListings(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }

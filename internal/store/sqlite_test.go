package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uralstat/realty-cli/internal/config"
	"github.com/uralstat/realty-cli/internal/model"
)

func configStore(driver, url string) config.StoreConfig {
	return config.StoreConfig{Driver: driver, DatabaseURL: url}
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testListing(id, runID string) *model.ListingRecord {
	price := int64(7750000)
	area := 54.3
	rooms := 2
	now := time.Now().UTC().Truncate(time.Second)
	return &model.ListingRecord{
		ListingID:   id,
		Price:       &price,
		AreaSqm:     &area,
		RoomCount:   &rooms,
		AddressText: "улица Ленина, 1",
		District:    "Кировский",
		SourceURL:   "https://realty.yandex.ru/offer/" + id + "/",
		FirstSeenAt: now,
		LastSeenAt:  now,
		ScrapeRunID: runID,
	}
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Уфа", "https://realty.yandex.ru/ufa/kupit/kvartira/")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Zero(t, run.LastPage)

	require.NoError(t, st.UpdateRunCursor(ctx, run.ID, 7))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.LastPage)
	assert.Equal(t, "Уфа", got.City)
	assert.Nil(t, got.FinishedAt)

	summary := &model.RunSummary{Ingested: 12, FetchFails: 1}
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, summary))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 12, got.Summary.Ingested)
	assert.NotNil(t, got.FinishedAt)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_LatestRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LatestRun(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = st.CreateRun(ctx, "Уфа", "u1")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // started_at must order the two runs
	second, err := st.CreateRun(ctx, "Уфа", "u2")
	require.NoError(t, err)

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSQLite_ListRuns_StatusFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx, "Уфа", "u")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "Уфа", "u")
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, r1.ID, model.RunStatusFailed, &model.RunSummary{}))

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, r1.ID, failed[0].ID)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Listings ---

func TestSQLite_UpsertListing_InsertThenUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Уфа", "u")
	require.NoError(t, err)

	rec := testListing("100500", run.ID)
	created, err := st.UpsertListing(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	// Second sighting: new price, later timestamps.
	newPrice := int64(8100000)
	rec2 := testListing("100500", run.ID)
	rec2.Price = &newPrice
	rec2.FirstSeenAt = rec.FirstSeenAt.Add(48 * time.Hour)
	rec2.LastSeenAt = rec.LastSeenAt.Add(48 * time.Hour)

	created, err = st.UpsertListing(ctx, rec2)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := st.GetListing(ctx, "100500")
	require.NoError(t, err)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(8100000), *got.Price)
	// first_seen_at keeps the original value; last_seen_at moves forward.
	assert.True(t, got.FirstSeenAt.Equal(rec.FirstSeenAt), "first_seen_at was overwritten")
	assert.True(t, got.LastSeenAt.Equal(rec2.LastSeenAt))
}

func TestSQLite_UpsertListing_OptionalFieldsNull(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Уфа", "u")
	require.NoError(t, err)

	now := time.Now().UTC()
	rec := &model.ListingRecord{
		ListingID:   "200",
		SourceURL:   "https://realty.yandex.ru/offer/200/",
		FirstSeenAt: now,
		LastSeenAt:  now,
		ScrapeRunID: run.ID,
	}
	_, err = st.UpsertListing(ctx, rec)
	require.NoError(t, err)

	got, err := st.GetListing(ctx, "200")
	require.NoError(t, err)
	assert.Nil(t, got.Price)
	assert.Nil(t, got.AreaSqm)
	assert.Nil(t, got.RoomCount)
	assert.Nil(t, got.Latitude)
	assert.Empty(t, got.District)
}

func TestSQLite_GetListing_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetListing(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListListings_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Уфа", "u")
	require.NoError(t, err)

	a := testListing("1", run.ID)
	b := testListing("2", run.ID)
	b.District = "Октябрьский"
	for _, rec := range []*model.ListingRecord{a, b} {
		_, err := st.UpsertListing(ctx, rec)
		require.NoError(t, err)
	}

	kirovsky, err := st.ListListings(ctx, ListingFilter{District: "Кировский"})
	require.NoError(t, err)
	require.Len(t, kirovsky, 1)
	assert.Equal(t, "1", kirovsky[0].ListingID)

	byRun, err := st.ListListings(ctx, ListingFilter{RunID: run.ID})
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	limited, err := st.ListListings(ctx, ListingFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "2", limited[0].ListingID)
}

// --- Outcomes ---

func TestSQLite_Outcomes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Уфа", "u")
	require.NoError(t, err)

	outcomes := []model.RunOutcome{
		{ListingID: "1", URL: "https://realty.yandex.ru/offer/1/", Status: model.OutcomeIngested},
		{URL: "https://realty.yandex.ru/offer/2/", Status: model.OutcomeFetchFailed, ErrorDetail: "status 503"},
	}
	for _, o := range outcomes {
		require.NoError(t, st.RecordOutcome(ctx, run.ID, o))
	}

	got, err := st.ListOutcomes(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.OutcomeIngested, got[0].Status)
	assert.Empty(t, got[1].ListingID)
	assert.Equal(t, "status 503", got[1].ErrorDetail)
}

// --- Factory ---

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), configStore("mysql", "dsn"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLiteDefault(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "open.db")
	st, err := Open(context.Background(), configStore("", dbPath))
	require.NoError(t, err)
	defer st.Close()

	// Migrations already ran: a write must succeed immediately.
	_, err = st.CreateRun(context.Background(), "Уфа", "u")
	assert.NoError(t, err)
}

package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/uralstat/realty-cli/internal/config"
	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/store"
)

func testBackfillStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "backfill.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func snapshotRecord(id, runID string) model.ListingRecord {
	price := int64(6_200_000)
	return model.ListingRecord{
		ListingID:   id,
		Price:       &price,
		AddressText: "улица Ленина, 1",
		District:    "Кировский",
		SourceURL:   "https://portal.test/offer/" + id + "/",
		ScrapeRunID: runID,
	}
}

func TestLoadRecords_UpsertsEveryRow(t *testing.T) {
	ctx := context.Background()
	st := testBackfillStore(t)

	run, err := st.CreateRun(ctx, "Уфа", "backfill:test.csv")
	if err != nil {
		t.Fatal(err)
	}
	recs := []model.ListingRecord{
		snapshotRecord("101", run.ID),
		snapshotRecord("102", run.ID),
	}

	loaded, err := loadRecords(ctx, st, recs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded = %d, want 2", loaded)
	}

	got, err := st.GetListing(ctx, "101")
	if err != nil {
		t.Fatal(err)
	}
	if got.District != "Кировский" {
		t.Errorf("district = %q", got.District)
	}
}

func TestLoadRecords_FailureNamesTheListing(t *testing.T) {
	ctx := context.Background()
	st := testBackfillStore(t)

	// No run row exists, so the run foreign key cannot resolve.
	recs := []model.ListingRecord{snapshotRecord("303", "no-such-run")}

	loaded, err := loadRecords(ctx, st, recs)
	if err == nil {
		t.Fatal("expected foreign key failure")
	}
	if loaded != 0 {
		t.Errorf("loaded = %d, want 0", loaded)
	}
	if !strings.Contains(err.Error(), "303") {
		t.Errorf("error %q does not name the failed listing", err)
	}
}

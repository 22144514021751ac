package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uralstat/realty-cli/internal/export"
	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/store"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <snapshot.csv>",
	Short: "Load a CSV snapshot back into the store",
	Long: `Reads a snapshot produced by "realty export --format csv" and upserts every
row. A synthetic run is recorded so the loaded rows carry a valid run
reference; the original run IDs from the snapshot are not preserved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "backfill: open snapshot")
		}
		defer f.Close()

		recs, err := export.ReadCSV(f)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("snapshot is empty, nothing to do")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.CreateRun(ctx, cfg.Portal.City, "backfill:"+args[0])
		if err != nil {
			return err
		}
		for i := range recs {
			recs[i].ScrapeRunID = run.ID
		}

		loaded, err := loadRecords(ctx, st, recs)
		summary := &model.RunSummary{Ingested: loaded}
		status := model.RunStatusComplete
		if err != nil {
			status = model.RunStatusFailed
		}
		if finErr := st.FinishRun(ctx, run.ID, status, summary); finErr != nil {
			zap.L().Warn("finish backfill run", zap.Error(finErr))
		}
		if err != nil {
			return err
		}

		fmt.Printf("loaded %d listings as run %s\n", loaded, run.ID)
		return nil
	},
}

// loadRecords upserts the snapshot rows, using the bulk COPY path when the
// backend supports it.
func loadRecords(ctx context.Context, st store.Store, recs []model.ListingRecord) (int, error) {
	if pg, ok := st.(*store.PostgresStore); ok {
		n, err := pg.UpsertListings(ctx, recs)
		return int(n), err
	}

	for i := range recs {
		if _, err := st.UpsertListing(ctx, &recs[i]); err != nil {
			return i, eris.Wrapf(err, "backfill: upsert %s", recs[i].ListingID)
		}
	}
	return len(recs), nil
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

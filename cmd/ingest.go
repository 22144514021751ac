package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/uralstat/realty-cli/internal/extract"
	"github.com/uralstat/realty-cli/internal/fetcher"
	"github.com/uralstat/realty-cli/internal/geo"
	"github.com/uralstat/realty-cli/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one full scrape of the portal search",
	Long: `Walks the paginated search results, fetches every discovered listing page,
extracts the structured record, resolves the district, and upserts into the
store. Per-listing failures are recorded and do not abort the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		resume, _ := cmd.Flags().GetBool("resume")
		if maxPages, _ := cmd.Flags().GetInt("max-pages"); maxPages > 0 {
			cfg.Pipeline.MaxPages = maxPages
		}
		if concurrency, _ := cmd.Flags().GetInt("concurrency"); concurrency > 0 {
			cfg.Pipeline.Concurrency = concurrency
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		resolver, err := buildResolver()
		if err != nil {
			return err
		}

		fetch := fetcher.New(fetcher.Options{
			UserAgent:      cfg.Portal.UserAgent,
			Timeout:        time.Duration(cfg.Portal.TimeoutSecs) * time.Second,
			RequestsPerSec: cfg.Portal.RequestsPerSec,
		})

		coord := pipeline.New(cfg, st, fetch, extract.New(cfg.Portal.City), resolver)
		run, err := coord.Run(ctx, pipeline.Options{Resume: resume})
		if err != nil {
			return err
		}

		s := run.Summary
		fmt.Printf("run %s %s\n", run.ID, run.Status)
		fmt.Printf("  ingested   %d\n", s.Ingested)
		fmt.Printf("  skipped    %d\n", s.Skipped)
		fmt.Printf("  parse fail %d\n", s.ParseFails)
		fmt.Printf("  fetch fail %d\n", s.FetchFails)
		fmt.Printf("  store fail %d\n", s.StoreFails)
		return nil
	},
}

// buildResolver loads district boundaries from the configured file and wires
// the resolution cache. Both YAML boundary files and shapefiles are accepted.
func buildResolver() (*geo.Resolver, error) {
	var (
		districts []geo.District
		err       error
	)
	if strings.EqualFold(filepath.Ext(cfg.Geo.BoundaryFile), ".shp") {
		districts, err = geo.LoadShapefile(cfg.Geo.BoundaryFile, "NAME")
	} else {
		districts, err = geo.LoadYAML(cfg.Geo.BoundaryFile)
	}
	if err != nil {
		return nil, err
	}

	bbox := geo.BoundingBox{
		MinLat: cfg.Geo.MinLat,
		MaxLat: cfg.Geo.MaxLat,
		MinLon: cfg.Geo.MinLon,
		MaxLon: cfg.Geo.MaxLon,
	}
	return geo.NewResolver(districts, bbox, geo.NewCache()), nil
}

func init() {
	ingestCmd.Flags().Bool("resume", false, "continue from the page cursor of the last failed run")
	ingestCmd.Flags().Int("max-pages", 0, "override the configured page limit")
	ingestCmd.Flags().Int("concurrency", 0, "override the configured worker count")
	rootCmd.AddCommand(ingestCmd)
}

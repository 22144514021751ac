package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uralstat/realty-cli/internal/model"
	"github.com/uralstat/realty-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect scrape runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scrape runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tPAGES\tINGESTED\tFAILED")
		for _, r := range runs {
			ingested, failed := "-", "-"
			if r.Summary != nil {
				ingested = fmt.Sprintf("%d", r.Summary.Ingested)
				failed = fmt.Sprintf("%d", r.Summary.ParseFails+r.Summary.FetchFails+r.Summary.StoreFails)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04"), r.LastPage, ingested, failed)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its per-listing outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("run %s\n", run.ID)
		fmt.Printf("  city       %s\n", run.City)
		fmt.Printf("  search     %s\n", run.SearchURL)
		fmt.Printf("  status     %s\n", run.Status)
		fmt.Printf("  last page  %d\n", run.LastPage)
		fmt.Printf("  started    %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Printf("  finished   %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		if s := run.Summary; s != nil {
			fmt.Printf("  outcomes   %d ingested, %d skipped, %d parse, %d fetch, %d store\n",
				s.Ingested, s.Skipped, s.ParseFails, s.FetchFails, s.StoreFails)
		}

		outcomes, err := st.ListOutcomes(ctx, run.ID)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LISTING\tSTATUS\tDETAIL")
		for _, o := range outcomes {
			id := o.ListingID
			if id == "" {
				id = o.URL
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, o.Status, o.ErrorDetail)
		}
		return w.Flush()
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status: running, complete, or failed")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

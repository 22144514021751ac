package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uralstat/realty-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of the stored listings",
	Long: `Writes the accumulated listings to a timestamped snapshot file. The csv and
xlsx formats carry every stored column; the dataset format emits the numeric
feature matrix used for price-model training, dropping rows without a price
or a resolved district. With --upload the file is also pushed to the
configured FTP drop under a date-partitioned key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		district, _ := cmd.Flags().GetString("district")
		runID, _ := cmd.Flags().GetString("run")
		upload, _ := cmd.Flags().GetBool("upload")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := export.New(st, cfg.Export).Run(ctx, export.Options{
			Format:   export.Format(format),
			District: district,
			RunID:    runID,
			Upload:   upload,
		})
		if err != nil {
			return err
		}

		fmt.Printf("wrote %d rows to %s\n", res.Rows, res.Path)
		if res.Key != "" {
			fmt.Printf("uploaded as %s\n", res.Key)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "snapshot format: csv, xlsx, or dataset")
	exportCmd.Flags().String("district", "", "only listings in this district")
	exportCmd.Flags().String("run", "", "only listings last touched by this run")
	exportCmd.Flags().Bool("upload", false, "push the snapshot to the FTP drop")
	rootCmd.AddCommand(exportCmd)
}

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest snapshot to the configured destinations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		dests := cfg.Sheets.Destinations
		if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
			sheet, _ := cmd.Flags().GetString("sheet")
			dests = []model.SheetDestination{{SpreadsheetID: path, SheetName: sheet, Kind: model.DestinationXLSX}}
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Pipeline.ExportSnapshot(ctx, dests)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		if report.Failed() > 0 {
			return fmt.Errorf("%d of %d destinations failed", report.Failed(), len(report.Results))
		}
		return nil
	},
}

func printReport(w io.Writer, report *export.Report) {
	if len(report.Results) == 0 {
		fmt.Fprintln(w, "Nothing exported.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tDESTINATION\tROWS\tERROR")
	for _, r := range report.Results {
		errMsg := "-"
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Destination.DestinationKind(), r.Destination.SpreadsheetID, r.Rows, errMsg)
	}
	_ = tw.Flush()
}

func init() {
	exportCmd.Flags().String("xlsx", "", "write the snapshot to this workbook instead of the configured destinations")
	exportCmd.Flags().String("sheet", "Tariffs", "sheet name used with --xlsx")
	rootCmd.AddCommand(exportCmd)
}

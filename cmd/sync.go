package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/tariff-sync/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and store tariffs for one date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			date = model.Today(time.Now(), loc)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Pipeline.FetchAndPersist(ctx, date)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d tariff rows for %s\n", n, date)
		return nil
	},
}

func init() {
	syncCmd.Flags().String("date", "", "tariff date YYYY-MM-DD (default today in the scheduler timezone)")
	rootCmd.AddCommand(syncCmd)
}

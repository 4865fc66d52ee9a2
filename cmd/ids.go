package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/tariff-sync/internal/surrogate"
)

var idsCmd = &cobra.Command{
	Use:   "ids NAME...",
	Short: "Show derived warehouse and region ids for names",
	Long:  "Prints the warehouse and region ids derived from each name and reports names that collide within each id range.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printIDs(cmd.OutOrStdout(), args)
		return nil
	},
}

func printIDs(w io.Writer, names []string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tWAREHOUSE_ID\tREGION_ID")
	for _, n := range names {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", n, surrogate.WarehouseID(n), surrogate.RegionID(n))
	}
	_ = tw.Flush()

	for _, c := range surrogate.Collisions(names, surrogate.WarehouseModulus) {
		fmt.Fprintf(w, "warehouse id collision %d: %s\n", c.ID, strings.Join(c.Names, ", "))
	}
	for _, c := range surrogate.Collisions(names, surrogate.RegionModulus) {
		fmt.Fprintf(w, "region id collision %d: %s\n", c.ID, strings.Join(c.Names, ", "))
	}
}

func init() {
	rootCmd.AddCommand(idsCmd)
}

package main

import (
	"fmt"

	"github.com/obentoo/buildwatch/internal/common/output"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <id|name>...",
	Short: "Show average and median playtime from reviews",
	Long: `Walk every page of a game's public reviews and report the average and
median playtime of the reviewers in hours.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.findEntries(args)
	if err != nil {
		return err
	}

	var failed int
	for _, entry := range entries {
		res, err := a.engine.PlaytimeStats(cmd.Context(), entry)
		if err != nil {
			failed++
			if res.Samples == 0 {
				output.PrintError("%s: %v", entry.Name, err)
				continue
			}
			output.PrintWarning("%s: stopped after %d page(s): %v", entry.Name, res.Pages, err)
		}

		average, median := res.Hours()
		fmt.Printf("  %s\n", output.FormatEntry(entry.Name, ""))
		fmt.Printf("    Average: %.2f hours | Median: %.2f hours %s\n",
			average, median, output.Sprintf(output.Dim, "(%d reviews)", res.Samples))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d game(s) had errors", failed, len(entries))
	}
	return nil
}

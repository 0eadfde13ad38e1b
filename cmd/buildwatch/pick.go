package main

import (
	"fmt"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/common/output"
	"github.com/obentoo/buildwatch/internal/library"
	"github.com/spf13/cobra"
)

// randomFilter restricts the random pick to entries carrying every tag
var randomFilter []string

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Pick a random game that is due for a check",
	Long: `Draw games at random until one is found that is not excluded by a
configured tag and has gone its full update interval without a new build.

Examples:
  buildwatch random                      Pick from the whole library
  buildwatch random --filter Installed   Only games tagged Installed`,
	Args: cobra.NoArgs,
	RunE: runRandom,
}

var oldestCmd = &cobra.Command{
	Use:   "oldest",
	Short: "Pick the game whose last update is oldest",
	Long:  `Look up the last update time of every game in one batch and print the one updated longest ago.`,
	Args:  cobra.NoArgs,
	RunE:  runOldest,
}

func init() {
	randomCmd.Flags().StringSliceVar(&randomFilter, "filter", nil, "Only consider games carrying this tag (repeatable)")

	rootCmd.AddCommand(randomCmd)
	rootCmd.AddCommand(oldestCmd)
}

func runRandom(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	candidates := a.lib.Filter(randomFilter...)
	logger.Debug("drawing from %d game(s)", len(candidates))

	picked, err := a.engine.PickRandom(cmd.Context(), candidates)
	if err != nil {
		return err
	}
	displayPick(a, picked, "No game is due for a check")
	return nil
}

func runOldest(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	picked, err := a.engine.PickOldest(cmd.Context(), a.lib.Games)
	if err != nil {
		return err
	}
	displayPick(a, picked, "No game has a known update time")
	return nil
}

// displayPick prints the picked entry with its tracking state
func displayPick(a *app, picked *library.Entry, none string) {
	if picked == nil {
		output.PrintInfo("%s", none)
		return
	}

	// picked is a copy; show the live entry so the label reflects saved state
	if live := a.lib.Get(picked.ID); live != nil {
		picked = live
	}
	status := a.engine.Status(picked)

	fmt.Println()
	fmt.Printf("  %s%s\n", output.FormatEntry(picked.Name, picked.ID), status.Label())
	fmt.Printf("    Last updated: %s\n", formatDate(status.State.LastUpdatedSeconds))
	fmt.Println()
}

package main

import (
	"fmt"
	"strconv"

	"github.com/obentoo/buildwatch/internal/common/output"
	"github.com/obentoo/buildwatch/internal/engine"
	"github.com/spf13/cobra"
)

var (
	// editPlayed is the build the user last played
	editPlayed string
	// editMonths overrides the update interval in months
	editMonths string
	// editLastUpdated is the last update date as YYYY/MM/DD
	editLastUpdated string
	// editLatest overrides the stored latest build
	editLatest string
)

var editCmd = &cobra.Command{
	Use:   "edit <id|name>",
	Short: "Edit the tracked state of a game",
	Long: `Set the played build, the update interval and the last update date of a
game by hand. Fields whose flag is not given keep their current value.

Examples:
  buildwatch edit Portal --played 9001
  buildwatch edit Portal --months 6 --last-updated 2024/01/31`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var clearCmd = &cobra.Command{
	Use:   "clear <id|name>",
	Short: "Forget the tracked state and version of a game",
	Args:  cobra.ExactArgs(1),
	RunE:  runClear,
}

var showCmd = &cobra.Command{
	Use:   "show [id|name]...",
	Short: "Show played and latest builds",
	Long:  `Show the played build, the latest known build, the update interval and whether a check is due for the given games (all games when none is given).`,
	RunE:  runShow,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Drop tracked state of games no longer in the library",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func init() {
	editCmd.Flags().StringVar(&editPlayed, "played", "", "Build you last played")
	editCmd.Flags().StringVar(&editMonths, "months", "", "Update interval in months (0 uses the default)")
	editCmd.Flags().StringVar(&editLastUpdated, "last-updated", "", "Last update date (YYYY/MM/DD)")
	editCmd.Flags().StringVar(&editLatest, "latest", "", "Latest build stored on the game")

	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.lib.Find(args[0])
	if err != nil {
		return err
	}

	state, _ := a.store.Get(entry.ID)
	flags := cmd.Flags()
	if flags.Changed("played") {
		state.PlayedVersion = editPlayed
	}
	if flags.Changed("months") {
		months, err := strconv.ParseFloat(editMonths, 64)
		if err != nil {
			return fmt.Errorf("invalid --months %q: %w", editMonths, err)
		}
		state.UpdateMonths = months
	}
	if flags.Changed("last-updated") {
		seconds, err := parseDate(editLastUpdated)
		if err != nil {
			return err
		}
		state.LastUpdatedSeconds = seconds
	}

	if err := a.engine.EditTracking(entry.ID, state.PlayedVersion, state.UpdateMonths, state.LastUpdatedSeconds); err != nil {
		return err
	}

	if flags.Changed("latest") && entry.Version != editLatest {
		entry.Version = editLatest
		if err := a.saveLibrary(); err != nil {
			return err
		}
	}

	output.PrintSuccess("Updated %s", entry.Name)
	displayStatus(a.engine.Status(entry), a.cfg.Tracking.ExcludeTags)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.lib.Find(args[0])
	if err != nil {
		return err
	}
	if err := a.engine.ClearTracking(entry); err != nil {
		return err
	}
	if err := a.saveLibrary(); err != nil {
		return err
	}
	output.PrintSuccess("Cleared %s", entry.Name)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.findEntries(args)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		displayStatus(a.engine.Status(entry), a.cfg.Tracking.ExcludeTags)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	// openApp already pruned; this run reports what is left
	removed, err := a.engine.Reconcile(a.lib.Games)
	if err != nil {
		return err
	}
	output.PrintSuccess("Tracking %d game(s), pruned %d", a.store.Len(), removed)
	return nil
}

// statusName classifies an entry for colored display. Entries carrying one
// of the excluded tags are reported as excluded whatever their state.
func statusName(s engine.Status, excluded []string) string {
	switch {
	case s.Entry.HasAnyTag(excluded):
		return output.StatusExcluded
	case !s.Tracked:
		return output.StatusUnknown
	case s.UpdateAvailable():
		return output.StatusUpdate
	case s.Stale:
		return output.StatusStale
	default:
		return output.StatusFresh
	}
}

// displayStatus prints the tracking view of one entry
func displayStatus(s engine.Status, excluded []string) {
	fmt.Printf("%s %s%s\n", output.FormatStatus(statusName(s, excluded)), output.FormatEntry(s.Entry.Name, s.Entry.ID), s.Label())
	if !s.Tracked {
		return
	}
	months := "default"
	if s.State.UpdateMonths > 0 {
		months = strconv.FormatFloat(s.State.UpdateMonths, 'f', -1, 64)
	}
	fmt.Printf("    Interval:     %s month(s)\n", months)
	fmt.Printf("    Last updated: %s\n", formatDate(s.State.LastUpdatedSeconds))
}

package main

import (
	"fmt"

	"github.com/obentoo/buildwatch/internal/common/output"
	"github.com/obentoo/buildwatch/internal/engine"
	"github.com/spf13/cobra"
)

var setVersionNoTag bool

var setVersionCmd = &cobra.Command{
	Use:   "set-version [id|name]...",
	Short: "Fetch the current public build of games",
	Long: `Resolve the public build id of the given games (all games when none is
given) and store it as their version. When the build you last played differs
from the new build the game is tagged with the configured update tag.

Examples:
  buildwatch set-version                 Update every game
  buildwatch set-version "Portal 2"      Update one game by name
  buildwatch set-version --no-tag Portal Update without tagging`,
	RunE: runSetVersion,
}

func init() {
	setVersionCmd.Flags().BoolVar(&setVersionNoTag, "no-tag", false, "Do not add the update tag")

	rootCmd.AddCommand(setVersionCmd)
}

func runSetVersion(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.findEntries(args)
	if err != nil {
		return err
	}

	var results []*engine.VersionResult
	var runErr error
	if setVersionNoTag {
		for _, entry := range entries {
			res, err := a.engine.SetVersion(cmd.Context(), entry, false)
			if err != nil {
				output.PrintError("%v", err)
				runErr = err
				continue
			}
			results = append(results, res)
		}
	} else {
		results, runErr = a.engine.SetVersions(cmd.Context(), entries)
	}

	changed := displayVersionResults(results)
	if changed > 0 {
		if err := a.saveLibrary(); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("%d of %d game(s) could not be updated", len(entries)-len(results), len(entries))
	}
	return nil
}

// displayVersionResults prints one line per result and returns how many
// entries changed
func displayVersionResults(results []*engine.VersionResult) int {
	changed := 0
	for _, r := range results {
		if r.Changed {
			changed++
		}
		switch {
		case r.UpdateAvailable:
			fmt.Printf("  %s %s: played %s, latest %s\n",
				output.FormatStatus(output.StatusUpdate), r.Entry.Name, r.PlayedVersion, r.BuildID)
		case r.PreviousVersion != r.BuildID:
			output.Success.Printf("  %s: %s → %s\n", r.Entry.Name, displayVersion(r.PreviousVersion), r.BuildID)
		default:
			output.Dim.Printf("  %s: %s (unchanged)\n", r.Entry.Name, r.BuildID)
		}
	}
	if len(results) > 0 {
		output.PrintSuccess("Game version(s) updated")
	}
	return changed
}

func displayVersion(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

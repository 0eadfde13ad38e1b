package main

import (
	"github.com/obentoo/buildwatch/internal/common/output"
	"github.com/spf13/cobra"
)

var sortLinksCmd = &cobra.Command{
	Use:   "sort-links",
	Short: "Sort the links of every game",
	Long: `Order every game's links by name, rename the first link starting with
"official" to Official and put it first, and put the Steam link right after it.`,
	Args: cobra.NoArgs,
	RunE: runSortLinks,
}

var flagMissingCmd = &cobra.Command{
	Use:   "flag-missing",
	Short: "Tag games with incomplete metadata",
	Long: `Tag every game that lacks platforms, artwork, links, a description or a
full release date with the configured missing-field tag, and untag complete ones.`,
	Args: cobra.NoArgs,
	RunE: runFlagMissing,
}

func init() {
	rootCmd.AddCommand(sortLinksCmd)
	rootCmd.AddCommand(flagMissingCmd)
}

func runSortLinks(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	changed := a.lib.SortLinks()
	if changed > 0 {
		if err := a.saveLibrary(); err != nil {
			return err
		}
	}
	output.PrintSuccess("Sorted links of %d game(s)", changed)
	return nil
}

func runFlagMissing(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	changed := a.lib.FlagMissingFields(a.cfg.Tracking.MissingFieldTag)
	if changed > 0 {
		if err := a.saveLibrary(); err != nil {
			return err
		}
	}
	output.PrintSuccess("Updated the %q tag on %d game(s)", a.cfg.Tracking.MissingFieldTag, changed)
	return nil
}

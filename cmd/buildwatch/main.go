package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/common/output"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "buildwatch",
	Short: "Track game builds and pick what to play next",
	Long: `buildwatch follows the public builds of the games in a TOML library,
records which build you last played and when each game last changed, and picks
the next game to check: a random one that has not been updated for a while or
the one whose last update is oldest.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Configure logging based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if err := logger.Default().EnableFileLogging(); err != nil {
			logger.Debug("file logging disabled: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/buildwatch/config.yaml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
}

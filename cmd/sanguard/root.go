package sanguard

import (
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel string
	flagVersion  bool

	version = "0.1.0"
	logger  = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: false,
	})
)

// rootCmd is the base Cobra command for the sanguard CLI.
var rootCmd = &cobra.Command{
	Use:           "sanguard",
	Short:         "Batch-sanitize untrusted files",
	Long:          "sanguard walks a directory (or a single file), strips metadata and risky active content from images, PDFs, and archives, and writes the cleaned copies to an output directory with a JSONL audit report.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if flagVersion {
			fmt.Println("sanguard " + version)
			os.Exit(0)
		}
		lvl, err := charmlog.ParseLevel(flagLogLevel)
		if err != nil {
			return &usageError{fmt.Errorf("invalid --log-level %q: %w", flagLogLevel, err)}
		}
		logger.SetLevel(lvl)
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the sanguard CLI. It should be called by the main package.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if _, ok := err.(*usageError); ok {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&flagVersion, "version", false, "print version and exit")
}

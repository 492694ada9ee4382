package sanguard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sanguard/sanguard/internal/config"
	"github.com/sanguard/sanguard/internal/dispatch"
	"github.com/sanguard/sanguard/internal/reportio"
	"github.com/sanguard/sanguard/internal/types"
)

var (
	flagInput            string
	flagOut              string
	flagReport           string
	flagFlat             bool
	flagOverwrite        bool
	flagCopyUnsupported  bool
	flagDryRun           bool
	flagReportSummary    bool
	flagFailOnWarnings   bool
	flagExclude          []string
	flagAllowExt         []string
	flagMaxFiles         int64
	flagMaxBytes         int64
	flagZipMaxMembers    int
	flagZipMaxMemberB    int64
	flagZipMaxTotalB     int64
	flagZipMaxRatio      float64
	flagNestedArchivePol string
	flagRiskyPolicy      string
	flagTable            bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "sanitize",
		Short: "Sanitize a directory or file of untrusted input",
		RunE:  runSanitize,
	}
	rootCmd.AddCommand(cmd)

	cmd.Flags().StringVar(&flagInput, "input", "", "path to the file or directory to sanitize (required)")
	cmd.Flags().StringVar(&flagOut, "out", "", "output directory for sanitized copies (required)")
	cmd.Flags().StringVar(&flagReport, "report", "-", "JSONL report path, or - for stdout")
	cmd.Flags().BoolVar(&flagFlat, "flat", false, "flatten output into a single directory, deduplicating basenames")
	cmd.Flags().BoolVar(&flagOverwrite, "overwrite", true, "overwrite pre-existing output files")
	cmd.Flags().BoolVar(&flagCopyUnsupported, "copy-unsupported", true, "copy files sanguard does not recognize as-is")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would happen without writing any output")
	cmd.Flags().BoolVar(&flagReportSummary, "report-summary", false, "append a trailing summary record to the report")
	cmd.Flags().BoolVar(&flagFailOnWarnings, "fail-on-warnings", false, "exit 3 if any warning was emitted")
	cmd.Flags().StringArrayVar(&flagExclude, "exclude", nil, "glob pattern to exclude (repeatable)")
	cmd.Flags().StringArrayVar(&flagAllowExt, "allow-ext", nil, "restrict processing to these extensions (repeatable; default: no restriction)")
	cmd.Flags().Int64Var(&flagMaxFiles, "max-files", 0, "abort traversal after this many files (0 = no limit)")
	cmd.Flags().Int64Var(&flagMaxBytes, "max-bytes", 0, "abort traversal after this many input bytes (0 = no limit)")
	cmd.Flags().IntVar(&flagZipMaxMembers, "zip-max-members", 0, "cap ZIP member count (0 = use default)")
	cmd.Flags().Int64Var(&flagZipMaxMemberB, "zip-max-member-bytes", 0, "cap per-member uncompressed bytes (0 = use default)")
	cmd.Flags().Int64Var(&flagZipMaxTotalB, "zip-max-total-bytes", 0, "cap total uncompressed bytes per archive (0 = use default)")
	cmd.Flags().Float64Var(&flagZipMaxRatio, "zip-max-compression-ratio", 0, "cap per-member compression ratio (0 = use default)")
	cmd.Flags().StringVar(&flagNestedArchivePol, "nested-archive-policy", "", "skip|copy (default: skip)")
	cmd.Flags().StringVar(&flagRiskyPolicy, "risky-policy", "", "warn|block (default: warn)")
	cmd.Flags().BoolVar(&flagTable, "table", false, "print a human-readable summary table to stderr after the run")
}

// usageError marks an error that should exit 1 (CLI usage error) rather
// than 2, distinguishing it from a run that completed but found
// errors/blocks.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }

func runSanitize(cmd *cobra.Command, _ []string) error {
	if flagInput == "" {
		return &usageError{fmt.Errorf("--input is required")}
	}
	if flagOut == "" {
		return &usageError{fmt.Errorf("--out is required")}
	}

	absIn, err := filepath.Abs(flagInput)
	if err != nil {
		return &usageError{fmt.Errorf("resolve --input: %w", err)}
	}

	opts := types.DefaultOptions()
	if gcfg, err := config.LoadGlobal(); err == nil {
		opts = config.Apply(opts, gcfg)
	}
	root := absIn
	if fi, err := os.Stat(absIn); err == nil && !fi.IsDir() {
		root = filepath.Dir(absIn)
	}
	if lcfg, err := config.LoadLocal(root); err == nil {
		opts = config.Apply(opts, lcfg)
	}

	if cmd.Flags().Changed("flat") {
		opts.FlatOutput = flagFlat
	}
	if cmd.Flags().Changed("overwrite") {
		opts.Overwrite = flagOverwrite
	}
	if cmd.Flags().Changed("copy-unsupported") {
		opts.CopyUnsupported = flagCopyUnsupported
	}
	if cmd.Flags().Changed("dry-run") {
		opts.DryRun = flagDryRun
	}
	if cmd.Flags().Changed("exclude") {
		opts.ExcludeGlobs = flagExclude
	}
	if cmd.Flags().Changed("allow-ext") {
		opts.AllowExts = make(map[string]bool, len(flagAllowExt))
		for _, ext := range flagAllowExt {
			opts.AllowExts[ext] = true
		}
	}
	if cmd.Flags().Changed("max-files") {
		opts.MaxFiles = flagMaxFiles
	}
	if cmd.Flags().Changed("max-bytes") {
		opts.MaxBytes = flagMaxBytes
	}
	if cmd.Flags().Changed("zip-max-members") && flagZipMaxMembers != 0 {
		opts.ZipMaxMembers = flagZipMaxMembers
	}
	if cmd.Flags().Changed("zip-max-member-bytes") && flagZipMaxMemberB != 0 {
		opts.ZipMaxMemberUncompressedBytes = flagZipMaxMemberB
	}
	if cmd.Flags().Changed("zip-max-total-bytes") && flagZipMaxTotalB != 0 {
		opts.ZipMaxTotalUncompressedBytes = flagZipMaxTotalB
	}
	if cmd.Flags().Changed("zip-max-compression-ratio") && flagZipMaxRatio != 0 {
		opts.ZipMaxCompressionRatio = flagZipMaxRatio
	}
	if cmd.Flags().Changed("nested-archive-policy") {
		switch flagNestedArchivePol {
		case string(types.NestedArchiveSkip), string(types.NestedArchiveCopy):
			opts.NestedArchivePolicy = types.NestedArchivePolicy(flagNestedArchivePol)
		default:
			return &usageError{fmt.Errorf("--nested-archive-policy must be skip or copy, got %q", flagNestedArchivePol)}
		}
	}
	if cmd.Flags().Changed("risky-policy") {
		switch flagRiskyPolicy {
		case string(types.RiskyWarn), string(types.RiskyBlock):
			opts.RiskyPolicy = types.RiskyPolicy(flagRiskyPolicy)
		default:
			return &usageError{fmt.Errorf("--risky-policy must be warn or block, got %q", flagRiskyPolicy)}
		}
	}

	absOut, err := filepath.Abs(flagOut)
	if err != nil {
		return &usageError{fmt.Errorf("resolve --out: %w", err)}
	}

	startedAt := reportio.NowISO8601()
	logger.Debug("starting sanitize run", "input", absIn, "out", absOut, "report", flagReport)

	d := dispatch.New(opts)
	items, exitCode, err := d.Run(absIn, absOut, flagReport)
	if err != nil {
		return fmt.Errorf("sanitize run: %w", err)
	}

	w, err := reportio.Open(flagReport)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer w.Close()

	warnCount, errCount := 0, 0
	for _, it := range items {
		warnCount += len(it.Warnings)
		if it.Action == types.ActionError {
			errCount++
		}
		if err := w.WriteItem(it); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	counts := map[string]int{}
	for _, it := range items {
		counts[string(it.Action)]++
	}

	if flagReportSummary {
		summary := reportio.Summary{
			ToolVersion: version,
			DryRun:      opts.DryRun,
			ExitCode:    exitCode,
			Files:       len(items),
			Warnings:    warnCount,
			Errors:      errCount,
			Counts:      counts,
			StartedAt:   startedAt,
			EndedAt:     reportio.NowISO8601(),
			Options:     opts,
		}
		if err := w.WriteSummary(summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if flagTable {
		reportio.PrintTable(os.Stderr, items)
		reportio.PrintSummaryText(os.Stderr, reportio.Summary{
			Files:    len(items),
			Warnings: warnCount,
			Errors:   errCount,
			Counts:   counts,
			ExitCode: exitCode,
			DryRun:   opts.DryRun,
		})
	}

	if exitCode == 0 && flagFailOnWarnings && warnCount > 0 {
		exitCode = 3
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

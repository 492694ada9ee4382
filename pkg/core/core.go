package core

import (
	"github.com/sanguard/sanguard/internal/dispatch"
	"github.com/sanguard/sanguard/internal/types"
)

// Re-export selected internal types as a stable public API surface. These
// are type aliases so external consumers can depend on a stable path.
type Options = types.SanitizeOptions
type ReportItem = types.ReportItem
type WarningItem = types.WarningItem
type Action = types.Action

// DefaultOptions returns the documented default SanitizeOptions.
func DefaultOptions() Options { return types.DefaultOptions() }

// Sanitize is the stable entrypoint for other programs: it runs one
// sanitize invocation over inputPath, placing output under outDir, and
// returns the report items in canonical traversal order plus the
// aggregate exit code (0 success, 2 one or more errors/blocks).
// reportPath is used only for the self-filter rule (the file at that path
// is never processed as an input); core.Sanitize does not itself write a
// report file. Callers that want the items serialized can pass them to
// MarshalItems.
func Sanitize(inputPath, outDir, reportPath string, opts Options) ([]ReportItem, int, error) {
	d := dispatch.New(opts)
	return d.Run(inputPath, outDir, reportPath)
}

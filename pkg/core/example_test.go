package core_test

import (
	"fmt"
	"os"

	"github.com/sanguard/sanguard/pkg/core"
)

// ExampleSanitize demonstrates running a sanitize pass over a directory and
// printing the report items as JSON.
func ExampleSanitize() {
	opts := core.DefaultOptions()
	opts.DryRun = true

	items, exitCode, err := core.Sanitize("./testdata", os.TempDir(), "-", opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sanitize failed: %v\n", err)
		return
	}

	fmt.Printf("processed %d items, exit code %d\n", len(items), exitCode)
	_ = core.MarshalItems(os.Stdout, items)
}

// ExampleDefaultOptions shows the documented defaults a caller starts from
// before overriding individual fields.
func ExampleDefaultOptions() {
	opts := core.DefaultOptions()
	fmt.Printf("overwrite=%v copy_unsupported=%v risky_policy=%v\n",
		opts.Overwrite, opts.CopyUnsupported, opts.RiskyPolicy)
}

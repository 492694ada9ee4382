// Package core provides a small, stable facade over sanguard's internal
// dispatcher for external integrations. It deliberately re-exports a
// narrow API surface so other tools can depend on a stable import path
// without reaching into internal packages.
//
// Example:
//
//	opts := core.DefaultOptions()
//	items, exitCode, err := core.Sanitize("./in", "./out", "-", opts)
//	if err != nil { /* handle */ }
//	_ = core.MarshalItems(os.Stdout, items)
package core

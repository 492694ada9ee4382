// Package dispatch implements the per-item sanitize pipeline (§4.1): the
// traversal, the seven-step guardrail/placement pipeline, and the format
// dispatch that ties the sniffer and format sanitizers together. It is
// generalized from the teacher's internal/engine single-purpose secret-scan
// loop (filepath.WalkDir traversal with directory pruning via
// filepath.SkipDir, glob filtering before read, running counters for
// limits) into the sanitizer's seven-step contract.
package dispatch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sanguard/sanguard/internal/globmatch"
	"github.com/sanguard/sanguard/internal/imagesan"
	"github.com/sanguard/sanguard/internal/materialize"
	"github.com/sanguard/sanguard/internal/ooxmlsan"
	"github.com/sanguard/sanguard/internal/pdfsan"
	"github.com/sanguard/sanguard/internal/sniff"
	"github.com/sanguard/sanguard/internal/types"
	"github.com/sanguard/sanguard/internal/zipsan"
)

// Dispatcher runs one sanitize invocation end to end.
type Dispatcher struct {
	Options      types.SanitizeOptions
	reservations *materialize.Reservations
}

// New returns a Dispatcher configured with opts.
func New(opts types.SanitizeOptions) *Dispatcher {
	return &Dispatcher{Options: opts, reservations: materialize.NewReservations()}
}

type candidate struct {
	relPath   string
	isDir     bool
	isSymlink bool
}

// Run walks inputPath (file or directory), applies the per-item pipeline,
// and returns the report items in canonical traversal order plus the
// aggregate exit code (0 success, 2 one or more errors/blocks).
func (d *Dispatcher) Run(inputPath, outDir, reportPath string) ([]types.ReportItem, int, error) {
	inputAbs, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, 1, fmt.Errorf("dispatch: resolve input path: %w", err)
	}
	outAbs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, 1, fmt.Errorf("dispatch: resolve output dir: %w", err)
	}
	var reportAbs string
	if reportPath != "" && reportPath != "-" {
		reportAbs, err = filepath.Abs(reportPath)
		if err != nil {
			return nil, 1, fmt.Errorf("dispatch: resolve report path: %w", err)
		}
	}

	info, err := os.Stat(inputAbs)
	if err != nil {
		return nil, 1, fmt.Errorf("dispatch: stat input: %w", err)
	}

	var inputRoot string
	var candidates []candidate
	isDirInput := info.IsDir()
	if isDirInput {
		inputRoot = inputAbs
		candidates, err = gather(inputAbs, d.Options.ExcludeGlobs)
		if err != nil {
			return nil, 1, fmt.Errorf("dispatch: walk input: %w", err)
		}
	} else {
		inputRoot = filepath.Dir(inputAbs)
		candidates = []candidate{{relPath: filepath.ToSlash(filepath.Base(inputAbs))}}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].relPath < candidates[j].relPath })

	outDirNested := isDirInput && strings.HasPrefix(outAbs+string(os.PathSeparator), inputRoot+string(os.PathSeparator))

	var items []types.ReportItem
	exitCode := 0
	var filesProcessed int64
	var bytesProcessed int64

	for _, cand := range candidates {
		absPath := filepath.Join(inputRoot, filepath.FromSlash(cand.relPath))

		if cand.isDir {
			items = append(items, excludedItem(absPath, cand.relPath))
			continue
		}

		if globmatch.AnyMatch(d.Options.ExcludeGlobs, cand.relPath) {
			items = append(items, excludedItem(absPath, cand.relPath))
			continue
		}

		if d.Options.SkipSymlinks && cand.isSymlink {
			items = append(items, skippedItem(absPath, types.WarnSymlinkSkipped, "symlink"))
			continue
		}

		resolvedAbs, statErr := filepath.EvalSymlinks(absPath)
		if statErr != nil {
			resolvedAbs = absPath
		}
		if reportAbs != "" && resolvedAbs == reportAbs {
			continue
		}
		if outDirNested && strings.HasPrefix(resolvedAbs+string(os.PathSeparator), outAbs+string(os.PathSeparator)) {
			continue
		}

		ext := strings.ToLower(filepath.Ext(cand.relPath))
		if len(d.Options.AllowExts) > 0 && !d.Options.AllowExts[ext] {
			items = append(items, skippedItem(absPath, types.WarnAllowlistSkipped, "extension not in allow-list"))
			continue
		}

		if isDirInput {
			fi, statErr := os.Stat(absPath)
			var size int64
			if statErr == nil {
				size = fi.Size()
			}
			overFiles := d.Options.MaxFiles > 0 && filesProcessed+1 > d.Options.MaxFiles
			overBytes := d.Options.MaxBytes > 0 && bytesProcessed+size > d.Options.MaxBytes
			if overFiles || overBytes {
				items = append(items, truncatedItem(absPath))
				break
			}
			filesProcessed++
			bytesProcessed += size
		}

		item := d.processFile(cand.relPath, absPath, outAbs)
		items = append(items, item)
		if item.Action == types.ActionError || item.Action == types.ActionBlocked || item.Action == types.ActionWouldBlock {
			exitCode = 2
		}
	}

	return items, exitCode, nil
}

// gather walks root collecting every regular file below it and every
// directory pruned by an exclusion glob (as its own excluded candidate),
// mirroring filepath.SkipDir's "never enter the subtree" contract. The
// returned list is not yet sorted into canonical order; Run sorts it.
func gather(root string, excludeGlobs []string) ([]candidate, error) {
	var out []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if globmatch.AnyMatch(excludeGlobs, rel) {
				out = append(out, candidate{relPath: rel, isDir: true})
				return filepath.SkipDir
			}
			return nil
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		out = append(out, candidate{relPath: rel, isSymlink: isSymlink})
		return nil
	})
	return out, err
}

func excludedItem(inputPath, pattern string) types.ReportItem {
	return types.ReportItem{
		InputPath: inputPath,
		Action:    types.ActionExcluded,
		Warnings: []types.WarningItem{{
			Code:    types.WarnExcludedByPattern,
			Message: fmt.Sprintf("path %q matches an exclusion pattern", pattern),
		}},
	}
}

func skippedItem(inputPath, code, message string) types.ReportItem {
	return types.ReportItem{
		InputPath: inputPath,
		Action:    types.ActionSkipped,
		Warnings:  []types.WarningItem{{Code: code, Message: message}},
	}
}

func truncatedItem(inputPath string) types.ReportItem {
	return types.ReportItem{
		InputPath: inputPath,
		Action:    types.ActionTruncated,
		Warnings:  []types.WarningItem{{Code: types.WarnTraversalLimit, Message: "traversal limit reached"}},
	}
}

func errorItem(inputPath string, err error) types.ReportItem {
	msg := truncateError(err)
	return types.ReportItem{InputPath: inputPath, Action: types.ActionError, Error: &msg}
}

func truncateError(err error) string {
	msg := err.Error()
	const maxLen = 500
	if len(msg) > maxLen {
		return msg[:maxLen] + "..."
	}
	return msg
}

// processFile executes steps 6 and 7 of the pipeline: output path
// computation and format dispatch.
func (d *Dispatcher) processFile(relPath, absPath, outDir string) types.ReportItem {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return errorItem(absPath, fmt.Errorf("read input: %w", err))
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	extClaim := sniff.ExtensionContentType(ext)
	sniffed := sniff.Sniff(data)
	finalType := sniffed.ContentType

	var contentWarnings []types.WarningItem
	if finalType != extClaim {
		if finalType != types.ContentOther {
			contentWarnings = append(contentWarnings, types.WarningItem{
				Code:    types.WarnContentTypeDetected,
				Message: fmt.Sprintf("sniffed content overrides extension %q", ext),
			})
		} else if extClaim != types.ContentOther {
			contentWarnings = append(contentWarnings, types.WarningItem{
				Code:    types.WarnContentTypeMismatch,
				Message: fmt.Sprintf("extension %q claims a sanitizable format but content does not match", ext),
			})
		}
	}

	outPath, err := d.reservations.ComputeOutputPath(outDir, relPath, d.Options.FlatOutput)
	if err != nil {
		return errorItem(absPath, err)
	}

	if !d.Options.Overwrite && materialize.Exists(outPath) {
		return types.ReportItem{
			InputPath: absPath,
			Action:    types.ActionSkipped,
			Warnings:  []types.WarningItem{{Code: types.WarnOutputExists, Message: "output already exists"}},
		}
	}

	payload, warnings, dispatchErr := d.sanitizeByType(finalType, sniffed.ImageFormat, ext, data)
	warnings = append(contentWarnings, warnings...)

	if dispatchErr != nil {
		return errorItem(absPath, dispatchErr)
	}

	action, wouldAction := activeAction(finalType, d.Options.CopyUnsupported)
	if payload == nil {
		// unsupported-and-not-copied: nothing written, no sanitize run.
		return types.ReportItem{InputPath: absPath, Action: types.ActionSkipped, Warnings: warnings}
	}

	if types.AnyRisky(warnings) && d.Options.RiskyPolicy == types.RiskyBlock {
		blocked := append(append([]types.WarningItem(nil), warnings...), types.WarningItem{Code: types.WarnPolicyBlocked, Message: "risky finding blocked by policy"})
		if d.Options.DryRun {
			return types.ReportItem{InputPath: absPath, Action: types.ActionWouldBlock, Warnings: blocked}
		}
		return types.ReportItem{InputPath: absPath, Action: types.ActionBlocked, Warnings: blocked}
	}

	if d.Options.DryRun {
		return types.ReportItem{InputPath: absPath, Action: wouldAction, Warnings: warnings}
	}

	if err := materialize.WriteAtomic(outPath, payload); err != nil {
		return errorItem(absPath, err)
	}

	outCopy := outPath
	return types.ReportItem{InputPath: absPath, OutputPath: &outCopy, Action: action, Warnings: warnings}
}

// activeAction maps a content type to its non-dry-run and dry-run action
// pair.
func activeAction(ct types.ContentType, copyUnsupported bool) (active, would types.Action) {
	switch ct {
	case types.ContentImage:
		return types.ActionImageSanitized, types.ActionWouldImageSanitize
	case types.ContentPDF:
		return types.ActionPDFSanitized, types.ActionWouldPDFSanitize
	case types.ContentZip:
		return types.ActionZipSanitized, types.ActionWouldZipSanitize
	case types.ContentOOXML:
		return types.ActionCopied, types.ActionWouldCopy
	default:
		if copyUnsupported {
			return types.ActionCopied, types.ActionWouldCopy
		}
		return types.ActionSkipped, types.ActionWouldSkip
	}
}

// sanitizeByType dispatches the payload to the matching format sanitizer.
// It returns (nil, nil, nil) for the unsupported-and-skipped case so
// the caller can distinguish "nothing to write" from "an error occurred".
func (d *Dispatcher) sanitizeByType(ct types.ContentType, imgFmt types.ImageFormat, ext string, data []byte) ([]byte, []types.WarningItem, error) {
	switch ct {
	case types.ContentImage:
		res, err := imagesan.Sanitize(imgFmt, data)
		if err != nil {
			return nil, nil, err
		}
		return res.Data, res.Warnings, nil

	case types.ContentPDF:
		res, err := pdfsan.Sanitize(data)
		if err != nil {
			return nil, nil, err
		}
		return res.Data, res.Warnings, nil

	case types.ContentZip:
		res, err := zipsan.Sanitize(data, d.Options)
		if err != nil {
			return nil, nil, err
		}
		return res.Data, res.Warnings, nil

	case types.ContentOOXML:
		var warnings []types.WarningItem
		if ooxmlsan.IsMacroExtension(ext) {
			warnings = append(warnings, types.WarningItem{Code: types.WarnOfficeMacroEnabled, Message: "office container carries a macro-enabled extension"})
		}
		warnings = append(warnings, ooxmlsan.ScanMembers(data)...)
		return data, warnings, nil

	default:
		if d.Options.CopyUnsupported {
			return data, nil, nil
		}
		return nil, nil, nil
	}
}

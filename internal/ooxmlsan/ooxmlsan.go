// Package ooxmlsan scans Office Open XML containers (themselves ZIP
// archives) for macro indicators, without altering their bytes (§4.6).
package ooxmlsan

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/sanguard/sanguard/internal/types"
)

// macroExtensions are the OOXML extensions whose mere presence implies
// macro support is enabled in the file format itself.
var macroExtensions = map[string]bool{
	".docm": true,
	".xlsm": true,
	".pptm": true,
	".dotm": true,
	".xltm": true,
	".potm": true,
}

// IsMacroExtension reports whether ext (lowercase, with leading dot) is one
// of the macro-enabled OOXML extensions.
func IsMacroExtension(ext string) bool {
	return macroExtensions[ext]
}

// ScanMembers opens data as a ZIP container and looks for a member whose
// path ends with "/vbaProject.bin" (case-insensitive), returning
// office_macro_indicator_vbaproject if found. Failure to open the
// container is returned as an office_ooxml_scan_failed warning rather than
// an error, matching §4.6 ("failure to open ... surfaces as
// office_ooxml_scan_failed").
func ScanMembers(data []byte) []types.WarningItem {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return []types.WarningItem{{
			Code:    types.WarnOfficeOOXMLScanFailed,
			Message: fmt.Sprintf("failed to open ooxml container: %v", err),
		}}
	}
	for _, f := range r.File {
		if strings.HasSuffix(strings.ToLower(f.Name), "/vbaproject.bin") || strings.EqualFold(f.Name, "vbaProject.bin") {
			return []types.WarningItem{{
				Code:    types.WarnOfficeMacroIndicatorVBA,
				Message: "found " + f.Name,
			}}
		}
	}
	return nil
}

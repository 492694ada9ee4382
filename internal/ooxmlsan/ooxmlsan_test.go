package ooxmlsan

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanguard/sanguard/internal/types"
)

func buildZip(t *testing.T, names []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestScanMembers_FindsVBAProject(t *testing.T) {
	data := buildZip(t, []string{"[Content_Types].xml", "word/document.xml", "word/vbaProject.bin"})
	warnings := ScanMembers(data)
	require.Len(t, warnings, 1)
	assert.Equal(t, types.WarnOfficeMacroIndicatorVBA, warnings[0].Code)
}

func TestScanMembers_NoIndicator(t *testing.T) {
	data := buildZip(t, []string{"[Content_Types].xml", "word/document.xml"})
	assert.Empty(t, ScanMembers(data))
}

func TestScanMembers_OpenFailure(t *testing.T) {
	warnings := ScanMembers([]byte("not a zip"))
	require.Len(t, warnings, 1)
	assert.Equal(t, types.WarnOfficeOOXMLScanFailed, warnings[0].Code)
}

func TestIsMacroExtension(t *testing.T) {
	assert.True(t, IsMacroExtension(".docm"))
	assert.False(t, IsMacroExtension(".docx"))
}

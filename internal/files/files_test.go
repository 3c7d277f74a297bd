/*
Copyright 2025 Recon Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/reconcilehq/recon/internal/apierror"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseCSV(t *testing.T) {
	path := writeTempFile(t, "txns.csv", strings.Join([]string{
		" Transaction ID ,Amount,Reference,Date",
		"TXN-1,100.50,REF-1,2025-03-01",
		"TXN-2,200,REF-2,2025-03-02",
		",,,",
		"TXN-3,300,REF-3",
	}, "\n"))

	table, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Transaction ID", "Amount", "Reference", "Date"}, table.Headers)
	require.Len(t, table.Rows, 3, "empty row is skipped")

	assert.Equal(t, "TXN-1", table.Rows[0]["Transaction ID"])
	assert.Equal(t, "100.50", table.Rows[0]["Amount"])

	// Short row pads missing cells with empty strings.
	assert.Equal(t, "", table.Rows[2]["Date"])
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"txn", "amt"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"TXN-1", 100}))
	path := filepath.Join(t.TempDir(), "txns.xlsx")
	require.NoError(t, f.SaveAs(path))

	table, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"txn", "amt"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "TXN-1", table.Rows[0]["txn"])
}

func TestParseXLSRequiresOOXMLContainer(t *testing.T) {
	// An OLE/BIFF workbook is not a zip container, so the spreadsheet reader
	// rejects it as malformed rather than unsupported.
	path := writeTempFile(t, "legacy.xls", "\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1workbook")

	_, err := ParseFile(path)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrParse, apierror.CodeOf(err))

	// An .xls saved in the OOXML container still parses.
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"txn", "amt"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"TXN-1", 100}))
	dir := t.TempDir()
	saved := filepath.Join(dir, "modern.xlsx")
	require.NoError(t, f.SaveAs(saved))
	ooxml := filepath.Join(dir, "modern.xls")
	require.NoError(t, os.Rename(saved, ooxml))

	table, err := ParseFile(ooxml)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "TXN-1", table.Rows[0]["txn"])
}

func TestParseFileUnsupportedFormat(t *testing.T) {
	path := writeTempFile(t, "txns.pdf", "not tabular")

	_, err := ParseFile(path)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrUnsupportedFormat, apierror.CodeOf(err))
}

func TestParseFileMalformedCSV(t *testing.T) {
	path := writeTempFile(t, "bad.csv", "a,\"b\nunterminated")

	_, err := ParseFile(path)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrParse, apierror.CodeOf(err))
}

func TestPreviewSharesParser(t *testing.T) {
	path := writeTempFile(t, "txns.csv", strings.Join([]string{
		"txn,amt",
		"TXN-1,1",
		"TXN-2,2",
		"TXN-3,3",
	}, "\n"))

	preview, err := PreviewFile(path, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"txn", "amt"}, preview.Headers)
	assert.Len(t, preview.Rows, 2)
	assert.Equal(t, 3, preview.TotalRows)

	// Same parse path, same error surface.
	_, err = PreviewFile(writeTempFile(t, "x.pdf", "x"), 2)
	assert.Equal(t, apierror.ErrUnsupportedFormat, apierror.CodeOf(err))
}

func TestSaveUploadHashesContent(t *testing.T) {
	dir := t.TempDir()

	path1, hash1, err := SaveUpload(dir, "report.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.FileExists(t, path1)
	assert.Equal(t, ".csv", filepath.Ext(path1))

	// Identical bytes produce an identical digest regardless of file name.
	path2, hash2, err := SaveUpload(dir, "other.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.NotEqual(t, path1, path2)
	assert.Equal(t, hash1, hash2)

	_, hash3, err := SaveUpload(dir, "report.csv", strings.NewReader("a,b\n3,4\n"))
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash3)

	// The digest of the stored file matches the digest computed on save.
	stored, err := ContentHash(path1)
	require.NoError(t, err)
	assert.Equal(t, hash1, stored)
}

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
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/reconcilehq/recon/internal/apierror"
)

// Row maps a column header to the cell text of one parsed row.
type Row map[string]string

// Table is a fully parsed tabular file: the ordered header list plus rows in
// file order.
type Table struct {
	Headers []string
	Rows    []Row
}

// Preview is the first N rows of a file plus the total row count, used by
// column-mapping UIs before ingestion starts.
type Preview struct {
	Headers   []string `json:"headers"`
	Rows      []Row    `json:"rows"`
	TotalRows int      `json:"total_rows"`
}

// ParseFile parses a delimited-text or spreadsheet file based on its
// extension. It returns UNSUPPORTED_FORMAT for unrecognized extensions and
// PARSE_ERROR for malformed content. Spreadsheets are read with excelize,
// which only understands the OOXML container: an .xls file is accepted only
// if it was saved in that format, and a legacy BIFF .xls surfaces as
// PARSE_ERROR.
func ParseFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrParse, "unable to open file", err.Error())
		}
		defer f.Close()
		return parseCSV(f)
	case ".xlsx", ".xls":
		return parseSpreadsheet(path)
	default:
		return nil, apierror.NewAPIError(apierror.ErrUnsupportedFormat,
			fmt.Sprintf("unsupported file format: %s", filepath.Ext(path)), nil)
	}
}

// PreviewFile returns the first n rows without a second parse pass; it shares
// ParseFile's implementation.
func PreviewFile(path string, n int) (*Preview, error) {
	table, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	rows := table.Rows
	if len(rows) > n {
		rows = rows[:n]
	}

	return &Preview{
		Headers:   table.Headers,
		Rows:      rows,
		TotalRows: len(table.Rows),
	}, nil
}

func parseCSV(reader io.Reader) (*Table, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrParse, "malformed csv content", err.Error())
	}

	return tableFromRows(records), nil
}

func parseSpreadsheet(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrParse, "malformed spreadsheet content", err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrParse, "unable to read sheet rows", err.Error())
	}

	return tableFromRows(rows), nil
}

// tableFromRows converts raw parser output into a Table: the first row
// becomes the trimmed header list, empty rows are skipped, and short rows are
// padded so every header resolves to a cell.
func tableFromRows(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	table := &Table{Headers: headers}
	for _, record := range records[1:] {
		if isEmptyRow(record) {
			continue
		}
		row := make(Row, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// SaveUpload copies an uploaded byte stream into dir, hashing it along the
// way. The returned digest is the idempotency key for job creation.
func SaveUpload(dir, originalName string, reader io.Reader) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("error creating upload dir: %w", err)
	}

	dest, err := os.CreateTemp(dir, fmt.Sprintf("upload-*%s", filepath.Ext(originalName)))
	if err != nil {
		return "", "", fmt.Errorf("error creating upload file: %w", err)
	}
	defer dest.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dest, hasher), reader); err != nil {
		return "", "", fmt.Errorf("error copying upload data: %w", err)
	}

	return dest.Name(), hex.EncodeToString(hasher.Sum(nil)), nil
}

// ContentHash computes the sha-256 digest of a file already on disk.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

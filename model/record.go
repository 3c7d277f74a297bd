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
package model

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

const (
	SourceSystem = "system"
	SourceUpload = "upload"
)

// Record is a canonical transaction record. Records with Source "upload" always
// carry the ingestion job that produced them; "system" records never do.
type Record struct {
	ID              int64             `json:"-"`
	RecordID        string            `json:"record_id"`
	TransactionID   string            `json:"transaction_id"`
	Amount          float64           `json:"amount"`
	ReferenceNumber string            `json:"reference_number"`
	Date            time.Time         `json:"date"`
	Description     string            `json:"description"`
	Source          string            `json:"source"`
	UploadJobID     string            `json:"upload_job_id,omitempty"`
	RawOriginal     map[string]string `json:"raw_original,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ColumnMapping maps the canonical field names to the column names of the
// uploaded file. TransactionID, Amount, ReferenceNumber and Date are mandatory;
// Description is optional.
type ColumnMapping struct {
	TransactionID   string `json:"transaction_id"`
	Amount          string `json:"amount"`
	ReferenceNumber string `json:"reference_number"`
	Date            string `json:"date"`
	Description     string `json:"description,omitempty"`
}

func (m ColumnMapping) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.TransactionID, validation.Required),
		validation.Field(&m.Amount, validation.Required),
		validation.Field(&m.ReferenceNumber, validation.Required),
		validation.Field(&m.Date, validation.Required),
	)
}

// RejectRowError reports why a row was dropped during canonicalization.
// Rejected rows still advance ingestion progress; they are never fatal.
type RejectRowError struct {
	Field  string
	Reason string
}

func (e *RejectRowError) Error() string {
	return fmt.Sprintf("row rejected: %s %s", e.Field, e.Reason)
}

// dateLayouts are tried in order. All parse into a timezone-naive value; zoned
// inputs are normalized to UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// RecordFromRow canonicalizes one raw row using the given column mapping.
// It returns a *RejectRowError when a mandatory mapped value is missing or
// unparseable.
func RecordFromRow(row map[string]string, mapping ColumnMapping, jobID string) (*Record, error) {
	txnID := strings.TrimSpace(row[mapping.TransactionID])
	if txnID == "" {
		return nil, &RejectRowError{Field: "transactionId", Reason: "missing"}
	}

	rawAmount := strings.TrimSpace(row[mapping.Amount])
	if rawAmount == "" {
		return nil, &RejectRowError{Field: "amount", Reason: "missing"}
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, &RejectRowError{Field: "amount", Reason: "not a number"}
	}

	refNumber := strings.TrimSpace(row[mapping.ReferenceNumber])
	if refNumber == "" {
		return nil, &RejectRowError{Field: "referenceNumber", Reason: "missing"}
	}

	rawDate := strings.TrimSpace(row[mapping.Date])
	if rawDate == "" {
		return nil, &RejectRowError{Field: "date", Reason: "missing"}
	}
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, &RejectRowError{Field: "date", Reason: "not a date"}
	}

	description := ""
	if mapping.Description != "" {
		description = strings.TrimSpace(row[mapping.Description])
	}

	return &Record{
		RecordID:        GenerateUUIDWithSuffix("rec"),
		TransactionID:   txnID,
		Amount:          amount.InexactFloat64(),
		ReferenceNumber: refNumber,
		Date:            date,
		Description:     description,
		Source:          SourceUpload,
		UploadJobID:     jobID,
		RawOriginal:     row,
		CreatedAt:       time.Now(),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %q", s)
}

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

import "time"

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IngestionJob tracks the lifecycle of one uploaded file. ContentHash is the
// sha-256 digest of the file bytes and is unique across jobs: re-uploading
// identical bytes returns the existing job instead of creating a new one.
type IngestionJob struct {
	ID               int64         `json:"-"`
	JobID            string        `json:"job_id"`
	FileName         string        `json:"file_name"`
	OriginalName     string        `json:"original_name"`
	ContentHash      string        `json:"content_hash"`
	Status           string        `json:"status"`
	TotalRecords     int           `json:"total_records"`
	ProcessedRecords int           `json:"processed_records"`
	ColumnMapping    ColumnMapping `json:"column_mapping"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	Reconciled       bool          `json:"reconciled"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// JobProgress is the progress view returned to pollers. It is readable at any
// time, including mid-batch.
type JobProgress struct {
	JobID            string  `json:"job_id"`
	Status           string  `json:"status"`
	TotalRecords     int     `json:"total_records"`
	ProcessedRecords int     `json:"processed_records"`
	Fraction         float64 `json:"fraction"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

// Terminal reports whether a job status can no longer change through the
// ingestion pipeline.
func Terminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

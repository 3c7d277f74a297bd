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
	OutcomeMatched          = "matched"
	OutcomePartiallyMatched = "partially_matched"
	OutcomeNotMatched       = "not_matched"
	OutcomeDuplicate        = "duplicate"
)

// FieldMismatch records one differing field between an uploaded record and the
// system record it partially matched.
type FieldMismatch struct {
	Field         string `json:"field"`
	UploadedValue string `json:"uploaded_value"`
	SystemValue   string `json:"system_value"`
}

// Outcome is the reconciliation result for one uploaded record. Outcomes for a
// job are deleted and regenerated wholesale on every run; the manual-resolution
// fields are only ever set by the operator workflow, never by the engine.
type Outcome struct {
	ID               int64           `json:"-"`
	OutcomeID        string          `json:"outcome_id"`
	UploadedRecordID string          `json:"uploaded_record_id"`
	SystemRecordID   *string         `json:"system_record_id,omitempty"`
	Status           string          `json:"status"`
	MismatchedFields []FieldMismatch `json:"mismatched_fields"`
	MatchScore       int             `json:"match_score"`
	JobID            string          `json:"job_id"`
	ManuallyResolved bool            `json:"manually_resolved"`
	ResolvedBy       *string         `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Summary aggregates one reconciliation run by status.
type Summary struct {
	JobID            string  `json:"job_id"`
	Total            int     `json:"total"`
	Matched          int     `json:"matched"`
	PartiallyMatched int     `json:"partially_matched"`
	NotMatched       int     `json:"not_matched"`
	Duplicate        int     `json:"duplicate"`
	Accuracy         float64 `json:"accuracy"`
}

// Add counts one outcome into the summary.
func (s *Summary) Add(status string) {
	s.Total++
	switch status {
	case OutcomeMatched:
		s.Matched++
	case OutcomePartiallyMatched:
		s.PartiallyMatched++
	case OutcomeNotMatched:
		s.NotMatched++
	case OutcomeDuplicate:
		s.Duplicate++
	}
}

// Finalize computes the accuracy percentage once all outcomes are counted.
func (s *Summary) Finalize() {
	if s.Total > 0 {
		s.Accuracy = float64(s.Matched+s.PartiallyMatched) / float64(s.Total) * 100
	}
}

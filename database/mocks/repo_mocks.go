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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/reconcilehq/recon/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Ingestion job methods

func (m *MockDataSource) CreateIngestionJob(ctx context.Context, job *model.IngestionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockDataSource) GetIngestionJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestionJob), args.Error(1)
}

func (m *MockDataSource) GetIngestionJobByHash(ctx context.Context, contentHash string) (*model.IngestionJob, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestionJob), args.Error(1)
}

func (m *MockDataSource) UpdateJobStatus(ctx context.Context, jobID string, status string, errorMessage *string) error {
	args := m.Called(ctx, jobID, status, errorMessage)
	return args.Error(0)
}

func (m *MockDataSource) SetJobTotalRecords(ctx context.Context, jobID string, total int) error {
	args := m.Called(ctx, jobID, total)
	return args.Error(0)
}

func (m *MockDataSource) UpdateJobProgress(ctx context.Context, jobID string, processed int) error {
	args := m.Called(ctx, jobID, processed)
	return args.Error(0)
}

func (m *MockDataSource) ResetJobForReprocessing(ctx context.Context, jobID string, mapping model.ColumnMapping) error {
	args := m.Called(ctx, jobID, mapping)
	return args.Error(0)
}

func (m *MockDataSource) MarkJobCompleted(ctx context.Context, jobID string, processed int) error {
	args := m.Called(ctx, jobID, processed)
	return args.Error(0)
}

func (m *MockDataSource) MarkJobReconciled(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) ListIngestionJobs(ctx context.Context, limit int, offset int64) ([]*model.IngestionJob, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*model.IngestionJob), args.Error(1)
}

// Record methods

func (m *MockDataSource) CreateRecord(ctx context.Context, rec *model.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDataSource) RecordsBulkInsert(ctx context.Context, records []*model.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockDataSource) DeleteUploadedRecords(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) GetUploadedRecordsPaginated(ctx context.Context, jobID string, limit int, offset int64) ([]*model.Record, error) {
	args := m.Called(ctx, jobID, limit, offset)
	return args.Get(0).([]*model.Record), args.Error(1)
}

func (m *MockDataSource) GetSystemRecordsPaginated(ctx context.Context, limit int, offset int64) ([]*model.Record, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*model.Record), args.Error(1)
}

// Outcome methods

func (m *MockDataSource) DeleteOutcomes(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) OutcomesBulkInsert(ctx context.Context, outcomes []*model.Outcome) error {
	args := m.Called(ctx, outcomes)
	return args.Error(0)
}

func (m *MockDataSource) GetOutcomesPaginated(ctx context.Context, jobID string, status string, limit int, offset int64) ([]*model.Outcome, error) {
	args := m.Called(ctx, jobID, status, limit, offset)
	return args.Get(0).([]*model.Outcome), args.Error(1)
}

func (m *MockDataSource) CountOutcomes(ctx context.Context, jobID string, status string) (int64, error) {
	args := m.Called(ctx, jobID, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ResolveOutcome(ctx context.Context, outcomeID string, resolvedBy string) (*model.Outcome, error) {
	args := m.Called(ctx, outcomeID, resolvedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Outcome), args.Error(1)
}

// Audit methods

func (m *MockDataSource) RecordAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

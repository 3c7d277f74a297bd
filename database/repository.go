package database

import (
	"context"

	"github.com/reconcilehq/recon/model"
)

type IDataSource interface {
	ingestionJob
	record
	outcome
	audit
}

type ingestionJob interface {
	CreateIngestionJob(ctx context.Context, job *model.IngestionJob) error
	GetIngestionJob(ctx context.Context, jobID string) (*model.IngestionJob, error)
	GetIngestionJobByHash(ctx context.Context, contentHash string) (*model.IngestionJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, errorMessage *string) error
	SetJobTotalRecords(ctx context.Context, jobID string, total int) error
	UpdateJobProgress(ctx context.Context, jobID string, processed int) error
	ResetJobForReprocessing(ctx context.Context, jobID string, mapping model.ColumnMapping) error
	MarkJobCompleted(ctx context.Context, jobID string, processed int) error
	MarkJobReconciled(ctx context.Context, jobID string) error
	ListIngestionJobs(ctx context.Context, limit int, offset int64) ([]*model.IngestionJob, error)
}

type record interface {
	CreateRecord(ctx context.Context, rec *model.Record) error
	RecordsBulkInsert(ctx context.Context, records []*model.Record) error
	DeleteUploadedRecords(ctx context.Context, jobID string) error
	GetUploadedRecordsPaginated(ctx context.Context, jobID string, limit int, offset int64) ([]*model.Record, error)
	GetSystemRecordsPaginated(ctx context.Context, limit int, offset int64) ([]*model.Record, error)
}

type outcome interface {
	DeleteOutcomes(ctx context.Context, jobID string) error
	OutcomesBulkInsert(ctx context.Context, outcomes []*model.Outcome) error
	GetOutcomesPaginated(ctx context.Context, jobID string, status string, limit int, offset int64) ([]*model.Outcome, error)
	CountOutcomes(ctx context.Context, jobID string, status string) (int64, error)
	ResolveOutcome(ctx context.Context, outcomeID string, resolvedBy string) (*model.Outcome, error)
}

type audit interface {
	RecordAuditEvent(ctx context.Context, event *model.AuditEvent) error
}

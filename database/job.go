package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/reconcilehq/recon/internal/apierror"
	"github.com/reconcilehq/recon/model"
)

// CreateIngestionJob inserts a new ingestion job into the database
func (d Datasource) CreateIngestionJob(ctx context.Context, job *model.IngestionJob) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Saving ingestion job to db")
	defer span.End()

	mappingJSON, err := json.Marshal(job.ColumnMapping)
	if err != nil {
		return err
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO recon.ingestion_jobs(
			job_id, file_name, original_name, content_hash, status, total_records,
			processed_records, column_mapping, error_message, reconciled, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.JobID, job.FileName, job.OriginalName, job.ContentHash, job.Status, job.TotalRecords,
		job.ProcessedRecords, mappingJSON, job.ErrorMessage, job.Reconciled, job.CreatedAt, job.CompletedAt,
	)

	return err
}

// GetIngestionJob retrieves an ingestion job by its ID
func (d Datasource) GetIngestionJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Fetching ingestion job from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, job_id, file_name, original_name, content_hash, status, total_records,
			processed_records, column_mapping, error_message, reconciled, created_at, completed_at
		FROM recon.ingestion_jobs
		WHERE job_id = $1
	`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("ingestion job %s not found", jobID), nil)
		}
		return nil, err
	}
	return job, nil
}

// GetIngestionJobByHash retrieves an ingestion job by the content digest of
// its file. A nil job with a nil error means no job has seen these bytes yet.
func (d Datasource) GetIngestionJobByHash(ctx context.Context, contentHash string) (*model.IngestionJob, error) {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Fetching ingestion job by content hash")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, job_id, file_name, original_name, content_hash, status, total_records,
			processed_records, column_mapping, error_message, reconciled, created_at, completed_at
		FROM recon.ingestion_jobs
		WHERE content_hash = $1
	`, contentHash)

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// UpdateJobStatus transitions a job's status and error message
func (d Datasource) UpdateJobStatus(ctx context.Context, jobID string, status string, errorMessage *string) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Updating ingestion job status")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.ingestion_jobs
		SET status = $2, error_message = $3
		WHERE job_id = $1
	`, jobID, status, errorMessage)

	return err
}

// SetJobTotalRecords records the parsed row count once it is known
func (d Datasource) SetJobTotalRecords(ctx context.Context, jobID string, total int) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Setting ingestion job total records")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.ingestion_jobs
		SET total_records = $2
		WHERE job_id = $1
	`, jobID, total)

	return err
}

// UpdateJobProgress advances processed_records. Progress is written after
// every batch so pollers see movement mid-job.
func (d Datasource) UpdateJobProgress(ctx context.Context, jobID string, processed int) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Updating ingestion job progress")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.ingestion_jobs
		SET processed_records = $2
		WHERE job_id = $1
	`, jobID, processed)

	return err
}

// ResetJobForReprocessing stores a new column mapping and puts the job back to
// pending with cleared progress and error state.
func (d Datasource) ResetJobForReprocessing(ctx context.Context, jobID string, mapping model.ColumnMapping) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Resetting ingestion job for reprocessing")
	defer span.End()

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	_, err = d.Conn.ExecContext(ctx, `
		UPDATE recon.ingestion_jobs
		SET column_mapping = $2, status = $3, processed_records = 0, error_message = NULL, reconciled = FALSE
		WHERE job_id = $1
	`, jobID, mappingJSON, model.JobStatusPending)

	return err
}

// MarkJobCompleted transitions a job to its completed terminal state
func (d Datasource) MarkJobCompleted(ctx context.Context, jobID string, processed int) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Marking ingestion job completed")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.ingestion_jobs
		SET status = $2, processed_records = $3, completed_at = $4
		WHERE job_id = $1
	`, jobID, model.JobStatusCompleted, processed, time.Now())

	return err
}

// MarkJobReconciled flags a completed job as reconciled
func (d Datasource) MarkJobReconciled(ctx context.Context, jobID string) error {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Marking ingestion job reconciled")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.ingestion_jobs
		SET reconciled = TRUE
		WHERE job_id = $1
	`, jobID)

	return err
}

// ListIngestionJobs retrieves jobs newest first
func (d Datasource) ListIngestionJobs(ctx context.Context, limit int, offset int64) ([]*model.IngestionJob, error) {
	ctx, span := otel.Tracer("IngestionJob").Start(ctx, "Listing ingestion jobs")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, job_id, file_name, original_name, content_hash, status, total_records,
			processed_records, column_mapping, error_message, reconciled, created_at, completed_at
		FROM recon.ingestion_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.IngestionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(scanner rowScanner) (*model.IngestionJob, error) {
	job := &model.IngestionJob{}
	var mappingJSON []byte
	err := scanner.Scan(
		&job.ID, &job.JobID, &job.FileName, &job.OriginalName, &job.ContentHash, &job.Status,
		&job.TotalRecords, &job.ProcessedRecords, &mappingJSON, &job.ErrorMessage,
		&job.Reconciled, &job.CreatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &job.ColumnMapping); err != nil {
			return nil, fmt.Errorf("error unmarshaling column mapping JSON: %w", err)
		}
	}

	return job, nil
}

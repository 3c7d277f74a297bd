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

package recon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reconcilehq/recon/config"
	"github.com/reconcilehq/recon/internal/apierror"
	"github.com/reconcilehq/recon/internal/archive"
	"github.com/reconcilehq/recon/internal/files"
	redlock "github.com/reconcilehq/recon/internal/lock"
	"github.com/reconcilehq/recon/model"
)

const (
	progressCacheTTL = 5 * time.Minute
	jobLockTTL       = 30 * time.Minute
	jobLockWait      = 30 * time.Second
)

// CreateIngestionJob stores the uploaded bytes and creates a pending job for
// them. The content digest is the idempotency key: if a job already exists
// for the same bytes, that job is returned unchanged and the second upload is
// discarded.
func (r *Recon) CreateIngestionJob(ctx context.Context, originalName string, reader io.Reader, userID, userName string) (*model.IngestionJob, bool, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, false, err
	}

	path, contentHash, err := files.SaveUpload(cfg.Ingestion.UploadDir, originalName, reader)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.datasource.GetIngestionJobByHash(ctx, contentHash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		// Identical bytes were uploaded before; drop the new copy.
		if removeErr := os.Remove(path); removeErr != nil {
			logrus.WithError(removeErr).Warn("unable to remove duplicate upload file")
		}
		return existing, true, nil
	}

	job := &model.IngestionJob{
		JobID:        model.GenerateUUIDWithSuffix("job"),
		FileName:     filepath.Base(path),
		OriginalName: originalName,
		ContentHash:  contentHash,
		Status:       model.JobStatusPending,
		CreatedAt:    time.Now(),
	}
	if err := r.datasource.CreateIngestionJob(ctx, job); err != nil {
		return nil, false, err
	}

	r.emitAudit(model.AuditEvent{
		EntityType: "ingestion_job",
		EntityID:   job.JobID,
		Action:     model.AuditActionCreate,
		NewValue:   map[string]interface{}{"file_name": originalName, "content_hash": contentHash},
		UserID:     userID,
		UserName:   userName,
		Source:     model.AuditSourceManual,
	})

	return job, false, nil
}

// SubmitMapping stores the column mapping for a job and queues it for
// ingestion. Resubmitting a mapping for a job that already processed purges
// the job's previously ingested records before the pipeline restarts.
func (r *Recon) SubmitMapping(ctx context.Context, jobID string, mapping model.ColumnMapping, userID, userName string) (*model.IngestionJob, error) {
	if err := mapping.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			"mapping must include transactionId, amount, referenceNumber, and date", err.Error())
	}

	// Same lock the pipeline and the matching engine hold: a purge and reset
	// must never interleave with an in-flight run's inserts.
	locker := redlock.NewJobLocker(r.redis, jobID, model.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, jobLockTTL, jobLockWait); err != nil {
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).Warn("unable to release job lock")
		}
	}()

	job, err := r.datasource.GetIngestionJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusProcessing {
		if err := r.datasource.DeleteUploadedRecords(ctx, jobID); err != nil {
			return nil, err
		}
	}

	oldMapping := job.ColumnMapping
	if err := r.datasource.ResetJobForReprocessing(ctx, jobID, mapping); err != nil {
		return nil, err
	}

	if err := r.queue.EnqueueIngestion(ctx, IngestionTaskPayload{JobID: jobID, UserID: userID, UserName: userName}); err != nil {
		return nil, err
	}

	r.emitAudit(model.AuditEvent{
		EntityType: "ingestion_job",
		EntityID:   jobID,
		Action:     model.AuditActionUpdate,
		OldValue:   map[string]interface{}{"column_mapping": oldMapping},
		NewValue:   map[string]interface{}{"column_mapping": mapping},
		UserID:     userID,
		UserName:   userName,
		Source:     model.AuditSourceManual,
	})

	return r.datasource.GetIngestionJob(ctx, jobID)
}

// PreviewUpload returns the first n rows of a job's file for mapping.
func (r *Recon) PreviewUpload(ctx context.Context, jobID string, n int) (*files.Preview, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	job, err := r.datasource.GetIngestionJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return files.PreviewFile(filepath.Join(cfg.Ingestion.UploadDir, job.FileName), n)
}

// GetJob fetches one ingestion job by id.
func (r *Recon) GetJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	return r.datasource.GetIngestionJob(ctx, jobID)
}

// ListJobs lists ingestion jobs, newest first.
func (r *Recon) ListJobs(ctx context.Context, limit int, offset int64) ([]*model.IngestionJob, error) {
	return r.datasource.ListIngestionJobs(ctx, limit, offset)
}

// ProcessIngestion runs the ingestion pipeline for one queued job: parse,
// canonicalize in batches, bulk-persist, track progress, and end in a
// terminal state. Runs for the same job id are serialized by a per-job lock.
func (r *Recon) ProcessIngestion(ctx context.Context, jobID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	locker := redlock.NewJobLocker(r.redis, jobID, model.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, jobLockTTL, jobLockWait); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).Warn("unable to release job lock")
		}
	}()

	job, err := r.datasource.GetIngestionJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.ColumnMapping.Validate(); err != nil {
		return r.failIngestion(ctx, job, job.TotalRecords, job.ProcessedRecords, apierror.NewAPIError(apierror.ErrInvalidInput,
			"column mapping is incomplete", err.Error()))
	}

	if err := r.datasource.UpdateJobStatus(ctx, jobID, model.JobStatusProcessing, nil); err != nil {
		return err
	}

	path := filepath.Join(cfg.Ingestion.UploadDir, job.FileName)
	table, err := files.ParseFile(path)
	if err != nil {
		return r.failIngestion(ctx, job, job.TotalRecords, job.ProcessedRecords, err)
	}

	total := len(table.Rows)
	if err := r.datasource.SetJobTotalRecords(ctx, jobID, total); err != nil {
		return r.failIngestion(ctx, job, total, 0, err)
	}

	batchSize := cfg.Ingestion.BatchSize
	processed := 0
	accepted := 0

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := table.Rows[start:end]

		records := make([]*model.Record, 0, len(batch))
		for _, row := range batch {
			rec, err := model.RecordFromRow(row, job.ColumnMapping, jobID)
			if err != nil {
				// Rejected rows are dropped but still advance progress.
				logrus.WithError(err).WithField("job_id", jobID).Debug("row rejected")
				continue
			}
			records = append(records, rec)
		}

		if err := r.datasource.RecordsBulkInsert(ctx, records); err != nil {
			// Batches already committed stay committed; the job ends failed.
			return r.failIngestion(ctx, job, total, processed, apierror.NewAPIError(apierror.ErrPersistence,
				"bulk insert failed", err.Error()))
		}

		processed += len(batch)
		accepted += len(records)

		if err := r.datasource.UpdateJobProgress(ctx, jobID, processed); err != nil {
			return r.failIngestion(ctx, job, total, processed, err)
		}
		r.cacheProgress(ctx, jobID, model.JobStatusProcessing, total, processed, nil)
	}

	if err := r.datasource.MarkJobCompleted(ctx, jobID, processed); err != nil {
		return r.failIngestion(ctx, job, total, processed, err)
	}
	r.cacheProgress(ctx, jobID, model.JobStatusCompleted, total, processed, nil)

	r.emitAudit(model.AuditEvent{
		EntityType: "ingestion_job",
		EntityID:   jobID,
		Action:     model.AuditActionUpload,
		NewValue: map[string]interface{}{
			"total_records":     total,
			"processed_records": processed,
			"accepted":          accepted,
			"rejected":          processed - accepted,
			"status":            model.JobStatusCompleted,
		},
	})

	r.archiveSourceFile(ctx, job, path)

	logrus.WithFields(logrus.Fields{
		"job_id":   jobID,
		"total":    total,
		"accepted": accepted,
		"rejected": processed - accepted,
	}).Info("ingestion completed")

	return nil
}

// failIngestion puts the job into its failed terminal state. The returned
// error carries the original cause for the worker to log; the job itself
// never stays in processing. total and processed are the running counters of
// the failed run, so the cached progress view never moves backwards relative
// to what the pipeline already persisted.
func (r *Recon) failIngestion(ctx context.Context, job *model.IngestionJob, total, processed int, cause error) error {
	msg := cause.Error()
	if err := r.datasource.UpdateJobStatus(ctx, job.JobID, model.JobStatusFailed, &msg); err != nil {
		logrus.WithError(err).WithField("job_id", job.JobID).Error("unable to mark job failed")
	}
	r.cacheProgress(ctx, job.JobID, model.JobStatusFailed, total, processed, &msg)

	r.emitAudit(model.AuditEvent{
		EntityType: "ingestion_job",
		EntityID:   job.JobID,
		Action:     model.AuditActionUpload,
		NewValue:   map[string]interface{}{"status": model.JobStatusFailed, "error": msg},
	})

	return fmt.Errorf("ingestion of job %s failed: %w", job.JobID, cause)
}

// GetJobProgress reports status and progress for a job. It serves from the
// progress cache when possible and falls back to the datasource.
func (r *Recon) GetJobProgress(ctx context.Context, jobID string) (*model.JobProgress, error) {
	if r.cache != nil {
		var cached model.JobProgress
		if err := r.cache.Get(ctx, progressKey(jobID), &cached); err == nil && cached.JobID == jobID {
			return &cached, nil
		}
	}

	job, err := r.datasource.GetIngestionJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return jobProgress(job), nil
}

func jobProgress(job *model.IngestionJob) *model.JobProgress {
	progress := &model.JobProgress{
		JobID:            job.JobID,
		Status:           job.Status,
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		ErrorMessage:     job.ErrorMessage,
	}
	if job.TotalRecords > 0 {
		progress.Fraction = float64(job.ProcessedRecords) / float64(job.TotalRecords)
	}
	return progress
}

func (r *Recon) cacheProgress(ctx context.Context, jobID, status string, total, processed int, errMsg *string) {
	if r.cache == nil {
		return
	}
	progress := &model.JobProgress{
		JobID:            jobID,
		Status:           status,
		TotalRecords:     total,
		ProcessedRecords: processed,
		ErrorMessage:     errMsg,
	}
	if total > 0 {
		progress.Fraction = float64(processed) / float64(total)
	}
	if err := r.cache.Set(ctx, progressKey(jobID), progress, progressCacheTTL); err != nil {
		logrus.WithError(err).WithField("job_id", jobID).Warn("unable to cache job progress")
	}
}

func progressKey(jobID string) string {
	return fmt.Sprintf("recon:progress:%s", jobID)
}

// archiveSourceFile ships the ingested file to S3 when archival is
// configured. Failures are logged only; the job already completed.
func (r *Recon) archiveSourceFile(ctx context.Context, job *model.IngestionJob, path string) {
	cfg, err := config.Fetch()
	if err != nil {
		return
	}
	archiver := archive.NewArchiver(cfg.Archive)
	if !archiver.Enabled() {
		return
	}
	if err := archiver.Upload(ctx, path, fmt.Sprintf("ingested/%s/%s", job.JobID, job.OriginalName)); err != nil {
		logrus.WithError(err).WithField("job_id", job.JobID).Warn("unable to archive source file")
	}
}

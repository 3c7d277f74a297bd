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
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/reconcilehq/recon/config"
	"github.com/reconcilehq/recon/internal/apierror"
	redlock "github.com/reconcilehq/recon/internal/lock"
	"github.com/reconcilehq/recon/model"
)

// recordIndex holds the system records of one reconciliation run, keyed for
// the two lookups the cascade performs. Slices preserve fetch order, so the
// first candidate wins deterministically.
type recordIndex struct {
	byTransactionID   map[string][]*model.Record
	byReferenceNumber map[string][]*model.Record
}

func buildRecordIndex(records []*model.Record) *recordIndex {
	idx := &recordIndex{
		byTransactionID:   make(map[string][]*model.Record),
		byReferenceNumber: make(map[string][]*model.Record),
	}
	for _, rec := range records {
		idx.byTransactionID[rec.TransactionID] = append(idx.byTransactionID[rec.TransactionID], rec)
		if rec.ReferenceNumber != "" {
			idx.byReferenceNumber[rec.ReferenceNumber] = append(idx.byReferenceNumber[rec.ReferenceNumber], rec)
		}
	}
	return idx
}

// countTransactionIDs tallies transaction ids within one uploaded batch. A
// count above one marks every occurrence as a duplicate.
func countTransactionIDs(records []*model.Record) map[string]int {
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		counts[rec.TransactionID]++
	}
	return counts
}

// classifyRecord runs the cascade for one uploaded record: duplicate, then
// exact match, then partial match, then not matched. The first layer that
// claims the record decides its outcome.
func classifyRecord(uploaded *model.Record, dupCount int, idx *recordIndex, rules model.ReconciliationRules) *model.Outcome {
	out := &model.Outcome{
		OutcomeID:        model.GenerateUUIDWithSuffix("out"),
		UploadedRecordID: uploaded.RecordID,
		JobID:            uploaded.UploadJobID,
		Status:           model.OutcomeNotMatched,
		MismatchedFields: []model.FieldMismatch{},
		CreatedAt:        time.Now(),
	}

	if rules.Duplicate.Enabled && dupCount > 1 {
		out.Status = model.OutcomeDuplicate
		return out
	}

	if rules.ExactMatch.Enabled {
		for _, sys := range idx.byTransactionID[uploaded.TransactionID] {
			if sys.Amount == uploaded.Amount {
				sysID := sys.RecordID
				out.Status = model.OutcomeMatched
				out.SystemRecordID = &sysID
				out.MatchScore = 100
				return out
			}
		}
	}

	if rules.Partial.Enabled {
		for _, sys := range idx.byReferenceNumber[uploaded.ReferenceNumber] {
			diff := math.Abs(sys.Amount - uploaded.Amount)
			if diff > rules.Partial.Tolerance*sys.Amount {
				continue
			}
			sysID := sys.RecordID
			out.Status = model.OutcomePartiallyMatched
			out.SystemRecordID = &sysID
			out.MismatchedFields = mismatchedFields(uploaded, sys)
			out.MatchScore = matchScore(diff, sys.Amount)
			return out
		}
	}

	return out
}

// mismatchedFields reports the differing fields of a partial match in a fixed
// order: transactionId, amount, date.
func mismatchedFields(uploaded, sys *model.Record) []model.FieldMismatch {
	mismatches := []model.FieldMismatch{}
	if uploaded.TransactionID != sys.TransactionID {
		mismatches = append(mismatches, model.FieldMismatch{
			Field:         "transactionId",
			UploadedValue: uploaded.TransactionID,
			SystemValue:   sys.TransactionID,
		})
	}
	if uploaded.Amount != sys.Amount {
		mismatches = append(mismatches, model.FieldMismatch{
			Field:         "amount",
			UploadedValue: formatAmount(uploaded.Amount),
			SystemValue:   formatAmount(sys.Amount),
		})
	}
	if !uploaded.Date.Equal(sys.Date) {
		mismatches = append(mismatches, model.FieldMismatch{
			Field:         "date",
			UploadedValue: uploaded.Date.Format(time.RFC3339),
			SystemValue:   sys.Date.Format(time.RFC3339),
		})
	}
	return mismatches
}

// matchScore scores a partial match by how far the amounts drift apart,
// relative to the system amount. The denominator is floored at one so
// zero-amount records cannot divide by zero, and the score never goes
// negative.
func matchScore(diff, sysAmount float64) int {
	denominator := math.Max(sysAmount, 1)
	score := int(math.Round((1 - diff/denominator) * 100))
	if score < 0 {
		return 0
	}
	return score
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Reconcile runs the matching engine over every record a completed ingestion
// job produced. Reruns are idempotent: prior outcomes for the job are deleted
// before the new ones are written.
func (r *Recon) Reconcile(ctx context.Context, jobID, userID, userName string) (*model.Summary, error) {
	ctx, span := otel.Tracer("recon.reconciliation").Start(ctx, "Reconciling job")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

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
	if job.Status != model.JobStatusCompleted {
		return nil, apierror.NewAPIError(apierror.ErrPrecondition,
			"job must complete ingestion before reconciliation", map[string]string{"status": job.Status})
	}

	batchSize := cfg.Ingestion.BatchSize

	uploaded, err := r.fetchUploadedRecords(ctx, jobID, batchSize)
	if err != nil {
		return nil, err
	}
	if len(uploaded) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrPrecondition,
			"job has no ingested records to reconcile", nil)
	}

	system, err := r.fetchSystemRecords(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	if err := r.datasource.DeleteOutcomes(ctx, jobID); err != nil {
		return nil, err
	}

	idx := buildRecordIndex(system)
	dupCounts := countTransactionIDs(uploaded)
	rules := cfg.Reconciliation
	summary := &model.Summary{JobID: jobID}

	outcomes := make([]*model.Outcome, 0, batchSize)
	for _, rec := range uploaded {
		out := classifyRecord(rec, dupCounts[rec.TransactionID], idx, rules)
		summary.Add(out.Status)
		outcomes = append(outcomes, out)

		if len(outcomes) >= batchSize {
			if err := r.datasource.OutcomesBulkInsert(ctx, outcomes); err != nil {
				return nil, err
			}
			outcomes = outcomes[:0]
		}
	}
	if err := r.datasource.OutcomesBulkInsert(ctx, outcomes); err != nil {
		return nil, err
	}

	if err := r.datasource.MarkJobReconciled(ctx, jobID); err != nil {
		return nil, err
	}
	summary.Finalize()

	r.emitAudit(model.AuditEvent{
		EntityType: "ingestion_job",
		EntityID:   jobID,
		Action:     model.AuditActionReconcile,
		NewValue: map[string]interface{}{
			"total":             summary.Total,
			"matched":           summary.Matched,
			"partially_matched": summary.PartiallyMatched,
			"not_matched":       summary.NotMatched,
			"duplicate":         summary.Duplicate,
			"accuracy":          summary.Accuracy,
		},
		UserID:   userID,
		UserName: userName,
		Source:   model.AuditSourceManual,
	})

	logrus.WithFields(logrus.Fields{
		"job_id":   jobID,
		"total":    summary.Total,
		"matched":  summary.Matched,
		"accuracy": summary.Accuracy,
	}).Info("reconciliation completed")

	return summary, nil
}

func (r *Recon) fetchUploadedRecords(ctx context.Context, jobID string, batchSize int) ([]*model.Record, error) {
	var all []*model.Record
	var offset int64
	for {
		page, err := r.datasource.GetUploadedRecordsPaginated(ctx, jobID, batchSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < batchSize {
			return all, nil
		}
		offset += int64(len(page))
	}
}

func (r *Recon) fetchSystemRecords(ctx context.Context, batchSize int) ([]*model.Record, error) {
	var all []*model.Record
	var offset int64
	for {
		page, err := r.datasource.GetSystemRecordsPaginated(ctx, batchSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < batchSize {
			return all, nil
		}
		offset += int64(len(page))
	}
}

// GetOutcomes lists a job's outcomes with an optional status filter, along
// with the total count for the filter.
func (r *Recon) GetOutcomes(ctx context.Context, jobID, status string, limit int, offset int64) ([]*model.Outcome, int64, error) {
	if _, err := r.datasource.GetIngestionJob(ctx, jobID); err != nil {
		return nil, 0, err
	}
	outcomes, err := r.datasource.GetOutcomesPaginated(ctx, jobID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := r.datasource.CountOutcomes(ctx, jobID, status)
	if err != nil {
		return nil, 0, err
	}
	return outcomes, count, nil
}

// ResolveOutcome marks one outcome as manually resolved by an operator. The
// engine never sets these fields, and a reconciliation rerun discards them
// along with the outcome itself.
func (r *Recon) ResolveOutcome(ctx context.Context, outcomeID, userID, userName string) (*model.Outcome, error) {
	out, err := r.datasource.ResolveOutcome(ctx, outcomeID, userID)
	if err != nil {
		return nil, err
	}

	r.emitAudit(model.AuditEvent{
		EntityType: "reconciliation_outcome",
		EntityID:   outcomeID,
		Action:     model.AuditActionManualResolve,
		NewValue:   map[string]interface{}{"manually_resolved": true, "resolved_by": userID},
		UserID:     userID,
		UserName:   userName,
		Source:     model.AuditSourceManual,
	})

	return out, nil
}

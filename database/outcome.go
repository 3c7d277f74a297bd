package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/reconcilehq/recon/internal/apierror"
	"github.com/reconcilehq/recon/model"
)

// DeleteOutcomes removes every outcome of a prior reconciliation run for the
// job. Runs are delete-then-insert, so stale outcomes never survive a rerun.
func (d Datasource) DeleteOutcomes(ctx context.Context, jobID string) error {
	ctx, span := otel.Tracer("Outcome").Start(ctx, "Deleting outcomes for job")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM recon.reconciliation_outcomes
		WHERE job_id = $1
	`, jobID)

	return err
}

// OutcomesBulkInsert copies one batch of freshly computed outcomes into the
// database inside a transaction.
func (d Datasource) OutcomesBulkInsert(ctx context.Context, outcomes []*model.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	ctx, span := otel.Tracer("Outcome").Start(ctx, "Bulk inserting outcomes")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("recon", "reconciliation_outcomes",
		"outcome_id", "uploaded_record_id", "system_record_id", "status", "mismatched_fields",
		"match_score", "job_id", "manually_resolved", "resolved_by", "resolved_at", "created_at"))
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, out := range outcomes {
		mismatchJSON, err := json.Marshal(out.MismatchedFields)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = stmt.ExecContext(ctx,
			out.OutcomeID, out.UploadedRecordID, out.SystemRecordID, out.Status, string(mismatchJSON),
			out.MatchScore, out.JobID, out.ManuallyResolved, out.ResolvedBy, out.ResolvedAt, out.CreatedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// GetOutcomesPaginated retrieves a job's outcomes, optionally filtered by
// status, newest first.
func (d Datasource) GetOutcomesPaginated(ctx context.Context, jobID string, status string, limit int, offset int64) ([]*model.Outcome, error) {
	ctx, span := otel.Tracer("Outcome").Start(ctx, "Fetching outcomes with pagination")
	defer span.End()

	query := `
		SELECT id, outcome_id, uploaded_record_id, system_record_id, status, mismatched_fields,
			match_score, job_id, manually_resolved, resolved_by, resolved_at, created_at
		FROM recon.reconciliation_outcomes
		WHERE job_id = $1`
	args := []interface{}{jobID}

	if status != "" {
		query += ` AND status = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*model.Outcome
	for rows.Next() {
		out := &model.Outcome{}
		var mismatchJSON []byte
		err := rows.Scan(
			&out.ID, &out.OutcomeID, &out.UploadedRecordID, &out.SystemRecordID, &out.Status,
			&mismatchJSON, &out.MatchScore, &out.JobID, &out.ManuallyResolved,
			&out.ResolvedBy, &out.ResolvedAt, &out.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(mismatchJSON) > 0 {
			if err := json.Unmarshal(mismatchJSON, &out.MismatchedFields); err != nil {
				return nil, fmt.Errorf("error unmarshaling mismatched fields JSON: %w", err)
			}
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, rows.Err()
}

// ResolveOutcome flags one outcome as manually resolved and stamps who did it.
func (d Datasource) ResolveOutcome(ctx context.Context, outcomeID string, resolvedBy string) (*model.Outcome, error) {
	ctx, span := otel.Tracer("Outcome").Start(ctx, "Resolving outcome")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE recon.reconciliation_outcomes
		SET manually_resolved = TRUE, resolved_by = $2, resolved_at = NOW()
		WHERE outcome_id = $1
		RETURNING id, outcome_id, uploaded_record_id, system_record_id, status, mismatched_fields,
			match_score, job_id, manually_resolved, resolved_by, resolved_at, created_at
	`, outcomeID, resolvedBy)

	out := &model.Outcome{}
	var mismatchJSON []byte
	err := row.Scan(
		&out.ID, &out.OutcomeID, &out.UploadedRecordID, &out.SystemRecordID, &out.Status,
		&mismatchJSON, &out.MatchScore, &out.JobID, &out.ManuallyResolved,
		&out.ResolvedBy, &out.ResolvedAt, &out.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("outcome %s not found", outcomeID), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(mismatchJSON) > 0 {
		if err := json.Unmarshal(mismatchJSON, &out.MismatchedFields); err != nil {
			return nil, fmt.Errorf("error unmarshaling mismatched fields JSON: %w", err)
		}
	}
	return out, nil
}

// CountOutcomes counts a job's outcomes, optionally filtered by status.
func (d Datasource) CountOutcomes(ctx context.Context, jobID string, status string) (int64, error) {
	ctx, span := otel.Tracer("Outcome").Start(ctx, "Counting outcomes")
	defer span.End()

	var count int64
	var err error
	if status != "" {
		err = d.Conn.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM recon.reconciliation_outcomes WHERE job_id = $1 AND status = $2
		`, jobID, status).Scan(&count)
	} else {
		err = d.Conn.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM recon.reconciliation_outcomes WHERE job_id = $1
		`, jobID).Scan(&count)
	}

	return count, err
}

package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/reconcilehq/recon/model"
)

// CreateRecord inserts a single canonical record. Bulk paths go through
// RecordsBulkInsert; this is used by seeding and operator corrections.
func (d Datasource) CreateRecord(ctx context.Context, rec *model.Record) error {
	ctx, span := otel.Tracer("Record").Start(ctx, "Saving record to db")
	defer span.End()

	rawJSON, err := json.Marshal(rec.RawOriginal)
	if err != nil {
		return err
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO recon.records(
			record_id, transaction_id, amount, reference_number, date, description,
			source, upload_job_id, raw_original, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.RecordID, rec.TransactionID, rec.Amount, rec.ReferenceNumber, rec.Date,
		rec.Description, rec.Source, nullable(rec.UploadJobID), rawJSON, rec.CreatedAt,
	)

	return err
}

// RecordsBulkInsert copies one ingestion batch into the records table inside a
// transaction. The batch either commits as a whole or not at all; batches
// already committed by earlier calls are unaffected either way.
func (d Datasource) RecordsBulkInsert(ctx context.Context, records []*model.Record) error {
	if len(records) == 0 {
		return nil
	}

	ctx, span := otel.Tracer("Record").Start(ctx, "Bulk inserting records")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("recon", "records",
		"record_id", "transaction_id", "amount", "reference_number", "date",
		"description", "source", "upload_job_id", "raw_original", "created_at"))
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, rec := range records {
		rawJSON, err := json.Marshal(rec.RawOriginal)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = stmt.ExecContext(ctx,
			rec.RecordID, rec.TransactionID, rec.Amount, rec.ReferenceNumber, rec.Date,
			rec.Description, rec.Source, nullable(rec.UploadJobID), string(rawJSON), rec.CreatedAt,
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

// DeleteUploadedRecords purges all upload-sourced records of a job before
// reprocessing. System records are never touched.
func (d Datasource) DeleteUploadedRecords(ctx context.Context, jobID string) error {
	ctx, span := otel.Tracer("Record").Start(ctx, "Deleting uploaded records for job")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM recon.records
		WHERE upload_job_id = $1 AND source = $2
	`, jobID, model.SourceUpload)

	return err
}

// GetUploadedRecordsPaginated fetches a job's uploaded records in insertion
// order.
func (d Datasource) GetUploadedRecordsPaginated(ctx context.Context, jobID string, limit int, offset int64) ([]*model.Record, error) {
	ctx, span := otel.Tracer("Record").Start(ctx, "Fetching uploaded records with pagination")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, record_id, transaction_id, amount, reference_number, date, description,
			source, upload_job_id, raw_original, created_at
		FROM recon.records
		WHERE upload_job_id = $1 AND source = $2
		ORDER BY id ASC
		LIMIT $3 OFFSET $4
	`, jobID, model.SourceUpload, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetSystemRecordsPaginated fetches the reference record set. The ordering is
// part of the matching contract: candidate lists preserve it, and "first
// candidate" tie-breaks depend on it being stable across runs.
func (d Datasource) GetSystemRecordsPaginated(ctx context.Context, limit int, offset int64) ([]*model.Record, error) {
	ctx, span := otel.Tracer("Record").Start(ctx, "Fetching system records with pagination")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, record_id, transaction_id, amount, reference_number, date, description,
			source, upload_job_id, raw_original, created_at
		FROM recon.records
		WHERE source = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, model.SourceSystem, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]*model.Record, error) {
	var records []*model.Record
	for rows.Next() {
		rec := &model.Record{}
		var uploadJobID *string
		var rawJSON []byte
		err := rows.Scan(
			&rec.ID, &rec.RecordID, &rec.TransactionID, &rec.Amount, &rec.ReferenceNumber,
			&rec.Date, &rec.Description, &rec.Source, &uploadJobID, &rawJSON, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if uploadJobID != nil {
			rec.UploadJobID = *uploadJobID
		}
		if len(rawJSON) > 0 {
			if err := json.Unmarshal(rawJSON, &rec.RawOriginal); err != nil {
				return nil, fmt.Errorf("error unmarshaling raw original JSON: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

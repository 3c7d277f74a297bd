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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconcilehq/recon/internal/apierror"
	"github.com/reconcilehq/recon/model"
)

func jobColumns() []string {
	return []string{
		"id", "job_id", "file_name", "original_name", "content_hash", "status",
		"total_records", "processed_records", "column_mapping", "error_message",
		"reconciled", "created_at", "completed_at",
	}
}

func sampleMappingJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(model.ColumnMapping{
		TransactionID:   "txn",
		Amount:          "amt",
		ReferenceNumber: "ref",
		Date:            "dt",
	})
	require.NoError(t, err)
	return data
}

func TestCreateIngestionJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	job := &model.IngestionJob{
		JobID:        "job_123",
		FileName:     "upload-abc.csv",
		OriginalName: "march.csv",
		ContentHash:  "deadbeef",
		Status:       model.JobStatusPending,
		CreatedAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO recon.ingestion_jobs").
		WithArgs(job.JobID, job.FileName, job.OriginalName, job.ContentHash, job.Status,
			0, 0, sqlmock.AnyArg(), nil, false, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.CreateIngestionJob(context.Background(), job)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIngestionJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows(jobColumns()).AddRow(
		1, "job_123", "upload-abc.csv", "march.csv", "deadbeef", model.JobStatusCompleted,
		100, 100, sampleMappingJSON(t), nil, false, time.Now(), time.Now(),
	)
	mock.ExpectQuery("SELECT .* FROM recon.ingestion_jobs").
		WithArgs("job_123").
		WillReturnRows(rows)

	job, err := ds.GetIngestionJob(context.Background(), "job_123")
	require.NoError(t, err)
	assert.Equal(t, "job_123", job.JobID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, "txn", job.ColumnMapping.TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIngestionJobNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM recon.ingestion_jobs").
		WithArgs("job_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetIngestionJob(context.Background(), "job_missing")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestGetIngestionJobByHashMissingIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM recon.ingestion_jobs").
		WithArgs("deadbeef").
		WillReturnError(sql.ErrNoRows)

	job, err := ds.GetIngestionJobByHash(context.Background(), "deadbeef")
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestResetJobForReprocessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE recon.ingestion_jobs").
		WithArgs("job_123", sqlmock.AnyArg(), model.JobStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.ResetJobForReprocessing(context.Background(), "job_123", model.ColumnMapping{
		TransactionID:   "txn",
		Amount:          "amt",
		ReferenceNumber: "ref",
		Date:            "dt",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusWithError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	msg := "bulk insert failed"
	mock.ExpectExec("UPDATE recon.ingestion_jobs").
		WithArgs("job_123", model.JobStatusFailed, msg).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateJobStatus(context.Background(), "job_123", model.JobStatusFailed, &msg)
	assert.NoError(t, err)
}

func TestDeleteUploadedRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM recon.records").
		WithArgs("job_123", model.SourceUpload).
		WillReturnResult(sqlmock.NewResult(0, 42))

	err = ds.DeleteUploadedRecords(context.Background(), "job_123")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOutcomes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM recon.reconciliation_outcomes").
		WithArgs("job_123").
		WillReturnResult(sqlmock.NewResult(0, 10))

	err = ds.DeleteOutcomes(context.Background(), "job_123")
	assert.NoError(t, err)
}

func TestCountOutcomesWithStatusFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("job_123", model.OutcomeMatched).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := ds.CountOutcomes(context.Background(), "job_123", model.OutcomeMatched)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

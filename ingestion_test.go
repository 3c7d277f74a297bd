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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reconcilehq/recon/config"
	"github.com/reconcilehq/recon/database/mocks"
	redlock "github.com/reconcilehq/recon/internal/lock"
	"github.com/reconcilehq/recon/model"
)

// memoryCache is a map-backed stand-in for the redis progress cache.
type memoryCache struct {
	mu    sync.Mutex
	items map[string]model.JobProgress
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]model.JobProgress)}
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = *value.(*model.JobProgress)
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if progress, ok := c.items[key]; ok {
		*data.(*model.JobProgress) = progress
	}
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func newIngestionTestRecon(t *testing.T, mockDS *mocks.MockDataSource) (*Recon, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	uploadDir := t.TempDir()
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost"},
		Queue:      config.QueueConfig{IngestionQueue: "new:ingestion", AuditQueue: "new:audit", NumberOfQueues: 4},
		Ingestion:  config.IngestionConfig{BatchSize: 2, UploadDir: uploadDir},
	})

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queue := &Queue{
		Client:    asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}),
		Inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()}),
	}

	return &Recon{
		datasource: mockDS,
		redis:      client,
		queue:      queue,
	}, uploadDir
}

func writeUploadFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testMapping() model.ColumnMapping {
	return model.ColumnMapping{
		TransactionID:   "txn",
		Amount:          "amt",
		ReferenceNumber: "ref",
		Date:            "dt",
	}
}

func TestProcessIngestionCountsRejectedRows(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, uploadDir := newIngestionTestRecon(t, mockDS)

	// Row two has an unparseable amount and is dropped, but progress still
	// counts all three raw rows.
	writeUploadFile(t, uploadDir, "upload.csv", strings.Join([]string{
		"txn,amt,ref,dt",
		"TXN-1,100.50,REF-1,2025-03-01",
		"TXN-2,abc,REF-2,2025-03-01",
		"TXN-3,200,REF-3,2025-03-01",
	}, "\n"))

	mockDS.On("GetIngestionJob", mock.Anything, "job_1").Return(&model.IngestionJob{
		JobID:         "job_1",
		FileName:      "upload.csv",
		Status:        model.JobStatusPending,
		ColumnMapping: testMapping(),
	}, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusProcessing, (*string)(nil)).Return(nil)
	mockDS.On("SetJobTotalRecords", mock.Anything, "job_1", 3).Return(nil)

	var accepted []*model.Record
	mockDS.On("RecordsBulkInsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		accepted = append(accepted, args.Get(1).([]*model.Record)...)
	}).Return(nil)
	mockDS.On("UpdateJobProgress", mock.Anything, "job_1", 2).Return(nil)
	mockDS.On("UpdateJobProgress", mock.Anything, "job_1", 3).Return(nil)
	mockDS.On("MarkJobCompleted", mock.Anything, "job_1", 3).Return(nil)

	err := r.ProcessIngestion(context.Background(), "job_1")
	require.NoError(t, err)

	require.Len(t, accepted, 2)
	assert.Equal(t, "TXN-1", accepted[0].TransactionID)
	assert.Equal(t, "TXN-3", accepted[1].TransactionID)
	assert.Equal(t, model.SourceUpload, accepted[0].Source)
	assert.Equal(t, "job_1", accepted[0].UploadJobID)

	mockDS.AssertExpectations(t)
}

func TestProcessIngestionBulkInsertFailureFailsJob(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, uploadDir := newIngestionTestRecon(t, mockDS)

	writeUploadFile(t, uploadDir, "upload.csv", strings.Join([]string{
		"txn,amt,ref,dt",
		"TXN-1,100,REF-1,2025-03-01",
	}, "\n"))

	mockDS.On("GetIngestionJob", mock.Anything, "job_1").Return(&model.IngestionJob{
		JobID:         "job_1",
		FileName:      "upload.csv",
		Status:        model.JobStatusPending,
		ColumnMapping: testMapping(),
	}, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusProcessing, (*string)(nil)).Return(nil)
	mockDS.On("SetJobTotalRecords", mock.Anything, "job_1", 1).Return(nil)
	mockDS.On("RecordsBulkInsert", mock.Anything, mock.Anything).Return(errors.New("copy failed"))
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusFailed, mock.AnythingOfType("*string")).Return(nil)

	err := r.ProcessIngestion(context.Background(), "job_1")
	require.Error(t, err)

	mockDS.AssertNotCalled(t, "MarkJobCompleted", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestProcessIngestionFailureKeepsProgressView(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, uploadDir := newIngestionTestRecon(t, mockDS)
	r.cache = newMemoryCache()

	// Four rows at batch size two: the first batch commits, the second fails.
	writeUploadFile(t, uploadDir, "upload.csv", strings.Join([]string{
		"txn,amt,ref,dt",
		"TXN-1,100,REF-1,2025-03-01",
		"TXN-2,200,REF-2,2025-03-01",
		"TXN-3,300,REF-3,2025-03-01",
		"TXN-4,400,REF-4,2025-03-01",
	}, "\n"))

	mockDS.On("GetIngestionJob", mock.Anything, "job_1").Return(&model.IngestionJob{
		JobID:         "job_1",
		FileName:      "upload.csv",
		Status:        model.JobStatusPending,
		ColumnMapping: testMapping(),
	}, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusProcessing, (*string)(nil)).Return(nil)
	mockDS.On("SetJobTotalRecords", mock.Anything, "job_1", 4).Return(nil)
	mockDS.On("RecordsBulkInsert", mock.Anything, mock.Anything).Return(nil).Once()
	mockDS.On("UpdateJobProgress", mock.Anything, "job_1", 2).Return(nil)
	mockDS.On("RecordsBulkInsert", mock.Anything, mock.Anything).Return(errors.New("copy failed")).Once()
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusFailed, mock.AnythingOfType("*string")).Return(nil)

	err := r.ProcessIngestion(context.Background(), "job_1")
	require.Error(t, err)

	// The cached view keeps the counters the run already persisted instead of
	// regressing to the job's pre-run zeros.
	progress, err := r.GetJobProgress(context.Background(), "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, progress.Status)
	assert.Equal(t, 4, progress.TotalRecords)
	assert.Equal(t, 2, progress.ProcessedRecords)
	require.NotNil(t, progress.ErrorMessage)

	mockDS.AssertExpectations(t)
}

func TestProcessIngestionUnsupportedFormatFailsJob(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, uploadDir := newIngestionTestRecon(t, mockDS)

	writeUploadFile(t, uploadDir, "upload.pdf", "not a table")

	mockDS.On("GetIngestionJob", mock.Anything, "job_1").Return(&model.IngestionJob{
		JobID:         "job_1",
		FileName:      "upload.pdf",
		Status:        model.JobStatusPending,
		ColumnMapping: testMapping(),
	}, nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusProcessing, (*string)(nil)).Return(nil)
	mockDS.On("UpdateJobStatus", mock.Anything, "job_1", model.JobStatusFailed, mock.AnythingOfType("*string")).Return(nil)

	err := r.ProcessIngestion(context.Background(), "job_1")
	require.Error(t, err)
	mockDS.AssertExpectations(t)
}

func TestCreateIngestionJobIsIdempotentOnContent(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, _ := newIngestionTestRecon(t, mockDS)
	ctx := context.Background()

	content := "txn,amt,ref,dt\nTXN-1,100,REF-1,2025-03-01\n"

	var createdHash string
	mockDS.On("GetIngestionJobByHash", mock.Anything, mock.Anything).Return(nil, nil).Once()
	mockDS.On("CreateIngestionJob", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		createdHash = args.Get(1).(*model.IngestionJob).ContentHash
	}).Return(nil).Once()

	job, duplicate, err := r.CreateIngestionJob(ctx, "upload.csv", strings.NewReader(content), "", "")
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.NotEmpty(t, createdHash)

	// The same bytes come back with the existing job instead of a new one.
	mockDS.On("GetIngestionJobByHash", mock.Anything, createdHash).Return(job, nil).Once()

	again, duplicate, err := r.CreateIngestionJob(ctx, "renamed.csv", strings.NewReader(content), "", "")
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, job.JobID, again.JobID)

	mockDS.AssertExpectations(t)
}

func TestGetJobProgressFallsBackToDatasource(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, _ := newIngestionTestRecon(t, mockDS)

	errMsg := "bulk insert failed"
	mockDS.On("GetIngestionJob", mock.Anything, "job_1").Return(&model.IngestionJob{
		JobID:            "job_1",
		Status:           model.JobStatusFailed,
		TotalRecords:     10,
		ProcessedRecords: 4,
		ErrorMessage:     &errMsg,
	}, nil)

	progress, err := r.GetJobProgress(context.Background(), "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, progress.Status)
	assert.Equal(t, 10, progress.TotalRecords)
	assert.Equal(t, 4, progress.ProcessedRecords)
	assert.InDelta(t, 0.4, progress.Fraction, 0.001)
	require.NotNil(t, progress.ErrorMessage)
}

func TestSubmitMappingRejectsIncompleteMapping(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, _ := newIngestionTestRecon(t, mockDS)

	_, err := r.SubmitMapping(context.Background(), "job_1", model.ColumnMapping{
		TransactionID: "txn",
	}, "", "")
	require.Error(t, err)
	mockDS.AssertNotCalled(t, "ResetJobForReprocessing", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitMappingWaitsForJobLock(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	r, _ := newIngestionTestRecon(t, mockDS)
	ctx := context.Background()

	// Another holder owns the job lock, as an in-flight pipeline run would.
	holder := redlock.NewJobLocker(r.redis, "job_1", "pipeline")
	require.NoError(t, holder.Lock(ctx, time.Minute))

	var released atomic.Bool
	go func() {
		time.Sleep(200 * time.Millisecond)
		released.Store(true)
		if err := holder.Unlock(context.Background()); err != nil {
			t.Error(err)
		}
	}()

	mockDS.On("GetIngestionJob", mock.Anything, "job_1").Return(&model.IngestionJob{
		JobID:  "job_1",
		Status: model.JobStatusCompleted,
	}, nil)
	mockDS.On("DeleteUploadedRecords", mock.Anything, "job_1").Run(func(mock.Arguments) {
		assert.True(t, released.Load(), "purge ran while another holder owned the job lock")
	}).Return(nil)
	mockDS.On("ResetJobForReprocessing", mock.Anything, "job_1", testMapping()).Return(nil)

	_, err := r.SubmitMapping(ctx, "job_1", testMapping(), "", "")
	require.NoError(t, err)

	mockDS.AssertExpectations(t)
}

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
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"

	"github.com/reconcilehq/recon/config"
	redis_db "github.com/reconcilehq/recon/internal/redis-db"
	"github.com/reconcilehq/recon/model"
)

// Queue hands ingestion jobs and audit events to the worker processes.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// IngestionTaskPayload is the payload of one queued ingestion job.
type IngestionTaskPayload struct {
	JobID    string `json:"job_id"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueIngestion queues one ingestion job. The task ID is the job ID, so
// enqueueing the same job twice while a run is pending is a no-op, and the
// queue is picked by hashing the job ID: all work for one job lands on the
// same queue and is processed serially there.
func (q *Queue) EnqueueIngestion(ctx context.Context, payload IngestionTaskPayload) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	queueIndex := hashJobID(payload.JobID) % cfg.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cfg.Queue.IngestionQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(payload.JobID), asynq.Queue(queueName)}
	task := asynq.NewTask(queueName, data, taskOptions...)

	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued ingestion job: %+v", payload.JobID)
	return nil
}

// EnqueueAuditEvent queues one audit event for the append-only sink.
func (q *Queue) EnqueueAuditEvent(event model.AuditEvent) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.AuditQueue)}
	task := asynq.NewTask(cfg.Queue.AuditQueue, data, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// hashJobID returns a consistent hash value for a job ID.
func hashJobID(jobID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(jobID))
	return int(hasher.Sum32())
}

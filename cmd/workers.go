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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/reconcilehq/recon"
	"github.com/reconcilehq/recon/config"
	"github.com/reconcilehq/recon/internal/notification"
	redis_db "github.com/reconcilehq/recon/internal/redis-db"
	"github.com/reconcilehq/recon/model"
)

// processIngestionJob runs the ingestion pipeline for one queued job. Job
// failures land the job in its failed terminal state inside the pipeline, so
// the task itself is acknowledged: requeueing a failed job would rerun a
// pipeline that already reported its outcome.
func (r *reconInstance) processIngestionJob(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("recon.ingestion.worker").Start(ctx, "Process Ingestion Job From Queue")
	defer span.End()

	var payload recon.IngestionTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	if err := r.recon.ProcessIngestion(ctx, payload.JobID); err != nil {
		logrus.WithError(err).WithField("job_id", payload.JobID).Error("ingestion job failed")
		notification.NotifyError(err)
		return nil
	}

	log.Println(" [*] Ingestion Job Processed", payload.JobID)
	return nil
}

// appendAuditEvent writes one queued audit event to the append-only trail.
// Persistence errors are returned so asynq retries delivery.
func (r *reconInstance) appendAuditEvent(ctx context.Context, t *asynq.Task) error {
	var event model.AuditEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logrus.Error(err)
		return err
	}

	if err := r.recon.AppendAuditEvent(ctx, &event); err != nil {
		log.Println("Error appending audit event", err)
		return err
	}

	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.AuditQueue] = 1

	// Concurrency 1 per ingestion queue keeps work for one job serial.
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.IngestionQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(r *reconInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.IngestionQueue, i)
		mux.HandleFunc(queueName, r.processIngestionJob)
	}

	mux.HandleFunc(cfg.Queue.AuditQueue, r.appendAuditEvent)
}

// workerCommands defines the "workers" command to start worker processes
// consuming the ingestion and audit queues.
func workerCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start recon workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(r, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}

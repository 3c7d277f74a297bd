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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/reconcilehq/recon/model"
)

const (
	DEFAULT_BATCH_SIZE = 1000
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"RECON_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"RECON_REDIS_DNS"`
}

type QueueConfig struct {
	IngestionQueue string `json:"ingestion_queue" envconfig:"RECON_QUEUE_INGESTION"`
	AuditQueue     string `json:"audit_queue" envconfig:"RECON_QUEUE_AUDIT"`
	NumberOfQueues int    `json:"number_of_queues" envconfig:"RECON_QUEUE_NUMBER"`
}

type IngestionConfig struct {
	BatchSize int    `json:"batch_size" envconfig:"RECON_INGESTION_BATCH_SIZE"`
	UploadDir string `json:"upload_dir" envconfig:"RECON_UPLOAD_DIR"`
}

// ArchiveConfig enables post-ingestion upload of source files to S3 when a
// bucket is configured.
type ArchiveConfig struct {
	S3Endpoint         string `json:"s3_endpoint" envconfig:"RECON_S3_ENDPOINT"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"RECON_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"RECON_S3_REGION"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"RECON_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"RECON_AWS_SECRET_ACCESS_KEY"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"RECON_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName    string                    `json:"project_name" envconfig:"RECON_PROJECT_NAME"`
	DataSource     DataSourceConfig          `json:"data_source"`
	Redis          RedisConfig               `json:"redis"`
	Queue          QueueConfig               `json:"queue"`
	Ingestion      IngestionConfig           `json:"ingestion"`
	Reconciliation model.ReconciliationRules `json:"reconciliation"`
	Archive        ArchiveConfig             `json:"archive"`
	Notification   Notification              `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("recon", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called recon.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Recon Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Queue.IngestionQueue == "" {
		cnf.Queue.IngestionQueue = "new:ingestion"
	}
	if cnf.Queue.AuditQueue == "" {
		cnf.Queue.AuditQueue = "new:audit"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}

	if cnf.Ingestion.BatchSize <= 0 {
		cnf.Ingestion.BatchSize = DEFAULT_BATCH_SIZE
		log.Printf("Warning: Ingestion batch size not specified. Setting default value: %d", DEFAULT_BATCH_SIZE)
	}
	if cnf.Ingestion.UploadDir == "" {
		cnf.Ingestion.UploadDir = "./uploads"
	}

	// An all-zero rules block means the section was omitted entirely.
	if !cnf.Reconciliation.Duplicate.Enabled && !cnf.Reconciliation.ExactMatch.Enabled && !cnf.Reconciliation.Partial.Enabled {
		cnf.Reconciliation = model.DefaultReconciliationRules()
	}
	if err := cnf.Reconciliation.Validate(); err != nil {
		return err
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if mockConfig.Ingestion.BatchSize <= 0 {
		mockConfig.Ingestion.BatchSize = DEFAULT_BATCH_SIZE
	}
	if !mockConfig.Reconciliation.Duplicate.Enabled && !mockConfig.Reconciliation.ExactMatch.Enabled && !mockConfig.Reconciliation.Partial.Enabled {
		mockConfig.Reconciliation = model.DefaultReconciliationRules()
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}

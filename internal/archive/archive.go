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

// Package archive ships ingested source files to S3 after the pipeline is
// done with them. Archival is best effort and opt-in: without a configured
// bucket the archiver is disabled and every call is a no-op.
package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/reconcilehq/recon/config"
)

type Archiver struct {
	conf config.ArchiveConfig
}

func NewArchiver(conf config.ArchiveConfig) *Archiver {
	return &Archiver{conf: conf}
}

// Enabled reports whether a destination bucket is configured.
func (a *Archiver) Enabled() bool {
	return a.conf.S3BucketName != ""
}

// Upload copies the file at path into the configured bucket under key.
func (a *Archiver) Upload(ctx context.Context, path, key string) error {
	if !a.Enabled() {
		return nil
	}

	sess, err := a.newSession()
	if err != nil {
		return fmt.Errorf("error creating S3 session: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file for archive: %w", err)
	}
	defer file.Close()

	uploader := s3manager.NewUploader(sess)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(a.conf.S3BucketName),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("error uploading archive to S3: %w", err)
	}
	return nil
}

func (a *Archiver) newSession() (*session.Session, error) {
	awsConfig := &aws.Config{
		Region: aws.String(a.conf.S3Region),
	}
	if a.conf.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(a.conf.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if a.conf.AwsAccessKeyId != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(a.conf.AwsAccessKeyId, a.conf.AwsSecretAccessKey, "")
	}
	return session.NewSession(awsConfig)
}

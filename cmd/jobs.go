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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reconcilehq/recon/model"
)

// jobCommands groups the operator-facing job workflow: upload a file, submit
// its column mapping, poll progress, reconcile, and inspect outcomes.
func jobCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "manage ingestion jobs",
	}

	cmd.AddCommand(jobUploadCommand(r))
	cmd.AddCommand(jobMappingCommand(r))
	cmd.AddCommand(jobStatusCommand(r))
	cmd.AddCommand(jobPreviewCommand(r))
	cmd.AddCommand(jobListCommand(r))
	cmd.AddCommand(jobReconcileCommand(r))
	cmd.AddCommand(jobOutcomesCommand(r))
	cmd.AddCommand(jobResolveCommand(r))

	return cmd
}

func jobUploadCommand(r *reconInstance) *cobra.Command {
	var userID, userName string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "upload a transaction file and create an ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			job, duplicate, err := r.recon.CreateIngestionJob(context.Background(), filepath.Base(args[0]), f, userID, userName)
			if err != nil {
				return err
			}
			if duplicate {
				fmt.Printf("File already uploaded, existing job: %s (status %s)\n", job.JobID, job.Status)
				return nil
			}
			fmt.Printf("Created ingestion job: %s\n", job.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "acting user id")
	cmd.Flags().StringVar(&userName, "user-name", "", "acting user name")
	return cmd
}

func jobMappingCommand(r *reconInstance) *cobra.Command {
	var mapping model.ColumnMapping
	var userID, userName string
	cmd := &cobra.Command{
		Use:   "mapping <job-id>",
		Short: "submit a column mapping and queue the job for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := r.recon.SubmitMapping(context.Background(), args[0], mapping, userID, userName)
			if err != nil {
				return err
			}
			fmt.Printf("Job %s queued for ingestion (status %s)\n", job.JobID, job.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&mapping.TransactionID, "transaction-id", "", "column holding the transaction id")
	cmd.Flags().StringVar(&mapping.Amount, "amount", "", "column holding the amount")
	cmd.Flags().StringVar(&mapping.ReferenceNumber, "reference-number", "", "column holding the reference number")
	cmd.Flags().StringVar(&mapping.Date, "date", "", "column holding the date")
	cmd.Flags().StringVar(&mapping.Description, "description", "", "column holding the description (optional)")
	cmd.Flags().StringVar(&userID, "user-id", "", "acting user id")
	cmd.Flags().StringVar(&userName, "user-name", "", "acting user name")
	return cmd
}

func jobStatusCommand(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "report a job's ingestion progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress, err := r.recon.GetJobProgress(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(progress)
		},
	}
	return cmd
}

func jobPreviewCommand(r *reconInstance) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "preview <job-id>",
		Short: "preview the first rows of a job's uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := r.recon.PreviewUpload(context.Background(), args[0], rows)
			if err != nil {
				return err
			}
			return printJSON(preview)
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 10, "number of rows to preview")
	return cmd
}

func jobListCommand(r *reconInstance) *cobra.Command {
	var limit int
	var offset int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list ingestion jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := r.recon.ListJobs(context.Background(), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(jobs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().Int64Var(&offset, "offset", 0, "page offset")
	return cmd
}

func jobReconcileCommand(r *reconInstance) *cobra.Command {
	var userID, userName string
	cmd := &cobra.Command{
		Use:   "reconcile <job-id>",
		Short: "run the matching engine over a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := r.recon.Reconcile(context.Background(), args[0], userID, userName)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "acting user id")
	cmd.Flags().StringVar(&userName, "user-name", "", "acting user name")
	return cmd
}

func jobOutcomesCommand(r *reconInstance) *cobra.Command {
	var status string
	var limit int
	var offset int64
	cmd := &cobra.Command{
		Use:   "outcomes <job-id>",
		Short: "list a job's reconciliation outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes, total, err := r.recon.GetOutcomes(context.Background(), args[0], status, limit, offset)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"total": total, "outcomes": outcomes})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by outcome status")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().Int64Var(&offset, "offset", 0, "page offset")
	return cmd
}

func jobResolveCommand(r *reconInstance) *cobra.Command {
	var userID, userName string
	cmd := &cobra.Command{
		Use:   "resolve <outcome-id>",
		Short: "mark an outcome as manually resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := r.recon.ResolveOutcome(context.Background(), args[0], userID, userName)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "acting user id")
	cmd.Flags().StringVar(&userName, "user-name", "", "acting user name")
	return cmd
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

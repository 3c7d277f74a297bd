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
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/reconcilehq/recon/database"
	"github.com/reconcilehq/recon/model"
)

// seedCommands creates the command for populating the system record set with
// fake reference transactions for local development.
func seedCommands(r *reconInstance) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "seed fake system records for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			db, err := database.NewDataSource(r.cnf)
			if err != nil {
				return err
			}

			for i := 0; i < count; i++ {
				rec := &model.Record{
					RecordID:        model.GenerateUUIDWithSuffix("rec"),
					TransactionID:   fmt.Sprintf("TXN-%06d", i+1),
					Amount:          gofakeit.Price(10, 10000),
					ReferenceNumber: fmt.Sprintf("REF-%06d", i+1),
					Date:            gofakeit.DateRange(time.Now().AddDate(0, -3, 0), time.Now()).UTC(),
					Description:     gofakeit.ProductName(),
					Source:          model.SourceSystem,
					CreatedAt:       time.Now(),
				}
				if err := db.CreateRecord(ctx, rec); err != nil {
					return err
				}
			}

			fmt.Printf("Seeded %d system records\n", count)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 100, "number of system records to create")
	return cmd
}

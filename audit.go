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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reconcilehq/recon/model"
)

// emitAudit queues one audit event. Emission failures are logged and
// swallowed: the audit trail must never roll back the operation it describes.
func (r *Recon) emitAudit(event model.AuditEvent) {
	event.EventID = model.GenerateUUIDWithSuffix("audit")
	event.Timestamp = time.Now()
	if event.Source == "" {
		event.Source = model.AuditSourceSystem
	}

	if err := r.queue.EnqueueAuditEvent(event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"entity_type": event.EntityType,
			"entity_id":   event.EntityID,
			"action":      event.Action,
		}).Error("audit event dropped")
	}
}

// AppendAuditEvent persists one dequeued audit event to the append-only trail.
func (r *Recon) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	return r.datasource.RecordAuditEvent(ctx, event)
}

package database

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"

	"github.com/reconcilehq/recon/model"
)

// RecordAuditEvent appends one audit event. The trail is insert-only: nothing
// in this package updates or deletes audit rows.
func (d Datasource) RecordAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	ctx, span := otel.Tracer("Audit").Start(ctx, "Appending audit event")
	defer span.End()

	oldJSON, err := json.Marshal(event.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(event.NewValue)
	if err != nil {
		return err
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO recon.audit_logs(
			event_id, entity_type, entity_id, action, old_value, new_value,
			user_id, user_name, source, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.EventID, event.EntityType, event.EntityID, event.Action, oldJSON, newJSON,
		event.UserID, event.UserName, event.Source, event.Timestamp,
	)

	return err
}

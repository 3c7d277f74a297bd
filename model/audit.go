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
package model

import "time"

const (
	AuditActionCreate        = "create"
	AuditActionUpload        = "upload"
	AuditActionUpdate        = "update"
	AuditActionReconcile     = "reconcile"
	AuditActionManualResolve = "manual_resolve"

	AuditSourceSystem = "system"
	AuditSourceManual = "manual"
)

// AuditEvent is an append-only trail entry emitted by the pipeline. The core
// only produces these; the sink stores them and never rewrites history.
type AuditEvent struct {
	EventID    string                 `json:"event_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Action     string                 `json:"action"`
	OldValue   map[string]interface{} `json:"old_value,omitempty"`
	NewValue   map[string]interface{} `json:"new_value,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	UserName   string                 `json:"user_name,omitempty"`
	Source     string                 `json:"source"`
	Timestamp  time.Time              `json:"timestamp"`
}

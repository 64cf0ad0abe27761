/*
Copyright 2024 Blnk Finance Authors.

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

package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"go.opentelemetry.io/otel"
)

// RecordAuditLogs inserts audit entries. Entries are never updated.
func (d Datasource) RecordAuditLogs(ctx context.Context, entries ...model.AuditLogEntry) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "RecordAuditLogs")
	defer span.End()

	for _, e := range entries {
		var detail interface{}
		if e.Detail != nil {
			b, err := json.Marshal(e.Detail)
			if err != nil {
				return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode audit detail", err)
			}
			detail = string(b)
		}

		_, err := d.db().ExecContext(ctx, `
			INSERT INTO tally.audit_logs (log_id, action, actor, target_type, target_id, job_id, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.LogID, string(e.Action), e.Actor, e.TargetType, e.TargetID, nullable(e.JobID), detail, e.CreatedAt)
		if err != nil {
			span.RecordError(err)
			return mapError(err, "audit log")
		}
	}
	return nil
}

// ListAuditLogs returns entries of targetType whose target id starts with
// targetPrefix, newest first.
func (d Datasource) ListAuditLogs(ctx context.Context, targetType, targetPrefix string, limit int) ([]model.AuditLogEntry, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "ListAuditLogs")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, `
		SELECT log_id, action, actor, target_type, target_id, job_id, detail, created_at
		FROM tally.audit_logs
		WHERE target_type = $1 AND target_id LIKE $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, targetType, targetPrefix+"%", limit)
	if err != nil {
		return nil, mapError(err, "audit logs")
	}
	defer rows.Close()

	out := []model.AuditLogEntry{}
	for rows.Next() {
		var e model.AuditLogEntry
		var jobID sql.NullString
		var detail []byte
		if err := rows.Scan(&e.LogID, &e.Action, &e.Actor, &e.TargetType, &e.TargetID, &jobID, &detail, &e.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan audit log", err)
		}
		e.JobID = nullString(jobID)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decode audit detail", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over audit logs", err)
	}
	return out, nil
}

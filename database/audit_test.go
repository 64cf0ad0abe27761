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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jerry-enebeli/tally/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAuditLogs(t *testing.T) {
	ds, mock := newMockDatasource(t)
	jobID := "job_1"

	lock := model.NewAuditLogEntry(model.AuditPeriodLock, "alice", model.AuditTargetPeriod, "2024-03", map[string]interface{}{"description": "closing"})
	confirm := model.NewAuditLogEntry(model.AuditUploadConfirm, "alice", model.AuditTargetJob, jobID, nil)
	confirm.JobID = &jobID

	mock.ExpectExec("INSERT INTO tally.audit_logs").
		WithArgs(lock.LogID, "period.lock", "alice", "period", "2024-03", nil, `{"description":"closing"}`, lock.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tally.audit_logs").
		WithArgs(confirm.LogID, "upload.confirm", "alice", "upload_job", "job_1", "job_1", nil, confirm.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.RecordAuditLogs(context.Background(), lock, confirm))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogs(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM tally.audit_logs WHERE target_type = \\$1 AND target_id LIKE \\$2 ORDER BY created_at DESC, id DESC LIMIT \\$3").
		WithArgs("period", "2024-%", 100).
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "action", "actor", "target_type", "target_id", "job_id", "detail", "created_at"}).
			AddRow("audit_2", "period.unlock", "bob", "period", "2024-03", nil, []byte(`{"reason":"fix"}`), now).
			AddRow("audit_1", "period.lock", "alice", "period", "2024-03", nil, nil, now))

	logs, err := ds.ListAuditLogs(context.Background(), model.AuditTargetPeriod, "2024-", 100)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditPeriodUnlock, logs[0].Action)
	assert.Equal(t, "fix", logs[0].Detail["reason"])
	assert.Nil(t, logs[1].Detail)
}

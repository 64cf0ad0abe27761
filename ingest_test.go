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

package tally

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jerry-enebeli/tally/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessUploadJob_Succeeds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.counterparty(t, "Acme Trading")

	detail := env.ingest(t, csvBody(
		csvLine("Acme Trading", "2024-03-05", "S-001", 1000),
		csvLine("Acme Trading", "2024-03-05", "S-002", 1000),
	))
	assert.Equal(t, 100, detail.Progress)
	assert.NotNil(t, detail.StartedAt)
	assert.NotNil(t, detail.CompletedAt)
	assert.Nil(t, detail.ErrorMessage)
	require.Len(t, detail.Rows, 2)
	assert.Equal(t, 0, detail.Rows[0].RowIndex)
	assert.Equal(t, "S-001", detail.Rows[0].RawFields["voucher_no"])

	// a redelivered task finds the job already done
	require.NoError(t, env.tally.ProcessUploadJob(ctx, detail.JobID))
	again, err := env.tally.GetJob(ctx, detail.JobID)
	require.NoError(t, err)
	assert.Len(t, again.Rows, 2)
}

func TestProcessUploadJob_DuplicateWithinUpload(t *testing.T) {
	env := newTestEnv(t)
	env.counterparty(t, "Acme Trading", "ACME")

	detail := env.ingest(t, csvBody(
		csvLine("Acme Trading", "2024-03-05", "S-001", 1000),
		csvLine("acme", "2024-03-05", "S-001", 1000),
		csvLine("Zeta", "2024-03-05", "S-002", 1000),
		csvLine(" zeta ", "2024-03-05", "S-002", 1000),
	))
	assert.Equal(t, model.ResultSummary{Total: 4, New: 1, Unmatched: 1, Error: 2}, *detail.ResultSummary)
	assert.Equal(t, "voucher_no: duplicates row 0 of this upload.", *detail.Rows[1].ErrorMessage())
	assert.Equal(t, "voucher_no: duplicates row 2 of this upload.", *detail.Rows[3].ErrorMessage())
}

func TestProcessUploadJob_ConflictWhenLedgerMovedDuringPass(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acme := env.counterparty(t, "Acme Trading")
	v := env.seedVoucher(t, acme.CounterpartyID, "2024-03-05", "S-001", 1000)

	job := &model.UploadJob{JobID: "job_1", Kind: model.JobKindSales}
	pass, err := newClassifyPass(ctx, env.ds, job, v.Version-1)
	require.NoError(t, err)

	row, err := pass.classify(ctx, ParsedRow{
		Index:            0,
		CounterpartyName: "Acme Trading",
		VoucherNo:        "S-001",
		Entry: &model.VoucherEntry{
			CounterpartyName: "Acme Trading",
			TradeDate:        v.TradeDate,
			VoucherNo:        "S-001",
			SupplyAmount:     v.SupplyAmount,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeConflict{VoucherID: v.VoucherID, Version: v.Version}, row.Outcome)
	assert.Nil(t, row.Diff())
}

func TestProcessUploadJob_FailsWholeJob(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		prepare func(env *testEnv, job *model.UploadJob)
		wantMsg string
	}{
		{
			name:    "header not found",
			body:    "name,amount\nAcme,100\n",
			wantMsg: "header row not found",
		},
		{
			name:    "no data rows",
			body:    csvHeader,
			wantMsg: "no data rows",
		},
		{
			name: "file missing",
			body: csvBody(csvLine("Acme", "2024-03-05", "S-1", 100)),
			prepare: func(env *testEnv, job *model.UploadJob) {
				require.NoError(t, env.files.Delete(context.Background(), job.ObjectKey))
			},
			wantMsg: "uploaded file is unavailable",
		},
		{
			name: "preview write fails",
			body: csvBody(csvLine("Acme", "2024-03-05", "S-1", 100)),
			prepare: func(env *testEnv, _ *model.UploadJob) {
				env.ds.SetFault("InsertPreviewRows", errors.New("disk full"))
			},
			wantMsg: "disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			job, err := env.tally.UploadVouchers(ctx, model.JobKindSales, "f.csv", strings.NewReader(tt.body), "tester")
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(env, job)
			}

			assert.Error(t, env.tally.ProcessUploadJob(ctx, job.JobID))

			detail, err := env.tally.GetJob(ctx, job.JobID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusFailed, detail.Status)
			require.NotNil(t, detail.ErrorMessage)
			assert.Contains(t, *detail.ErrorMessage, tt.wantMsg)
			assert.Empty(t, detail.Rows)

			env.ds.ClearFaults()
			rows, err := env.ds.GetPreviewRows(ctx, job.JobID)
			require.NoError(t, err)
			assert.Empty(t, rows, "a failed job keeps no partial preview")
		})
	}
}

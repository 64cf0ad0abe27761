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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

func previewRowsMock() *sqlmock.Rows {
	return sqlmock.NewRows(previewColumns)
}

func TestPreviewValues_UpdateRow(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	row := model.PreviewRow{
		JobID:            "job_1",
		RowIndex:         4,
		CounterpartyName: "Acme",
		CounterpartyID:   ptr.String("cp_1"),
		ResolvedName:     ptr.String("ACME Corp"),
		TradeDate:        &date,
		VoucherNo:        "S-1",
		Outcome: model.OutcomeUpdate{
			VoucherID:   "vch_1",
			BaseVersion: 12,
			Diff:        []model.FieldDiff{{Field: "supply_amount", OldValue: "1000", NewValue: "1200"}},
		},
		Revision: 2,
	}

	v, err := previewValues(row)
	require.NoError(t, err)
	require.Len(t, v, len(previewColumns))
	assert.Equal(t, "update", v[2])
	assert.Equal(t, "cp_1", v[4])
	assert.Equal(t, "2024-03-05", v[6])
	assert.Equal(t, "{}", v[8])
	assert.Nil(t, v[9])
	assert.JSONEq(t, `[{"field":"supply_amount","old_value":"1000","new_value":"1200"}]`, v[10].(string))
	assert.Nil(t, v[11])
	assert.Equal(t, "vch_1", v[12])
	assert.Equal(t, int64(12), v[13])
	assert.Equal(t, 2, v[15])
}

func TestInsertPreviewRows_Copy(t *testing.T) {
	ds, mock := newMockDatasource(t)
	rows := []model.PreviewRow{
		{JobID: "job_1", RowIndex: 0, CounterpartyName: "Acme", RawFields: map[string]string{"거래처": "Acme"},
			Outcome: model.OutcomeError{Message: "voucher number is required"}},
		{JobID: "job_1", RowIndex: 1, Outcome: model.OutcomeExcluded{Marker: "합계"}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "tally"."preview_rows"`))
	prep.ExpectExec().
		WithArgs("job_1", 0, "error", "Acme", nil, nil, nil, "", `{"거래처":"Acme"}`, nil, nil,
			"voucher number is required", nil, nil, nil, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("job_1", 1, "excluded", "", nil, nil, nil, "", `{}`, nil, nil, nil, nil, nil, "합계", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := ds.WithTx(context.Background(), func(tx IDataSource) error {
		return tx.InsertPreviewRows(context.Background(), rows)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPreviewRows_FailureRollsBack(t *testing.T) {
	ds, mock := newMockDatasource(t)
	rows := []model.PreviewRow{{JobID: "job_1", RowIndex: 0, Outcome: model.OutcomeUnmatched{}}}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`COPY "tally"."preview_rows"`))
	prep.ExpectExec().WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := ds.WithTx(context.Background(), func(tx IDataSource) error {
		return tx.InsertPreviewRows(context.Background(), rows)
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreviewRows_DecodesOutcomes(t *testing.T) {
	ds, mock := newMockDatasource(t)
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	entry := `{"counterparty_name":"Acme","trade_date":"2024-03-05T00:00:00Z","voucher_no":"S-1","item_name":"Bolt",` +
		`"quantity":"10","unit_price":"120","supply_amount":"1200","vat_amount":"120","total_amount":"1320","memo":""}`

	mock.ExpectQuery("FROM tally.preview_rows WHERE job_id = \\$1 ORDER BY row_index").
		WithArgs("job_1").
		WillReturnRows(previewRowsMock().
			AddRow("job_1", 0, "update", "Acme", "cp_1", "ACME Corp", date, "S-1", []byte(`{"거래처":"Acme"}`), []byte(entry),
				[]byte(`[{"field":"supply_amount","old_value":"1000","new_value":"1200"}]`), nil, "vch_1", int64(12), nil, 1).
			AddRow("job_1", 1, "locked", "Acme", "cp_1", "ACME Corp", date, "S-2", []byte(`{}`), []byte(entry),
				nil, nil, nil, nil, "2024-03", 0).
			AddRow("job_1", 2, "error", "", nil, nil, nil, "", []byte(`{}`), nil, nil, "counterparty is required", nil, nil, nil, 0))

	rows, err := ds.GetPreviewRows(context.Background(), "job_1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	update, ok := rows[0].Outcome.(model.OutcomeUpdate)
	require.True(t, ok)
	assert.Equal(t, int64(12), update.BaseVersion)
	assert.Equal(t, "vch_1", update.VoucherID)
	require.Len(t, update.Diff, 1)
	require.NotNil(t, rows[0].Entry)
	assert.True(t, rows[0].Entry.SupplyAmount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, "Acme", rows[0].RawFields["거래처"])
	assert.Equal(t, 1, rows[0].Revision)

	assert.Equal(t, model.OutcomeLocked{YearMonth: "2024-03"}, rows[1].Outcome)
	assert.Nil(t, rows[1].Diff())

	require.NotNil(t, rows[2].ErrorMessage())
	assert.Equal(t, "counterparty is required", *rows[2].ErrorMessage())
	assert.Nil(t, rows[2].TradeDate)
}

func TestGetPreviewRowsByStatus(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("WHERE job_id = \\$1 AND status = ANY\\(\\$2\\) ORDER BY row_index").
		WithArgs("job_1", pq.Array([]string{"new", "update"})).
		WillReturnRows(previewRowsMock().
			AddRow("job_1", 3, "new", "Acme", "cp_1", "ACME Corp", time.Now(), "S-9", []byte(`{}`), nil, nil, nil, nil, nil, nil, 0))

	rows, err := ds.GetPreviewRowsByStatus(context.Background(), "job_1", model.RowStatusNew, model.RowStatusUpdate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.RowStatusNew, rows[0].Status())
}

func TestUpdatePreviewRow_CompareAndSet(t *testing.T) {
	ds, mock := newMockDatasource(t)
	row := model.PreviewRow{JobID: "job_1", RowIndex: 2, Outcome: model.OutcomeNew{}, CounterpartyID: ptr.String("cp_1"), Revision: 0}

	mock.ExpectExec("UPDATE tally.preview_rows SET status = \\$3.* revision = revision \\+ 1 WHERE job_id = \\$1 AND row_index = \\$2 AND revision = \\$16").
		WithArgs("job_1", 2, "new", "", "cp_1", nil, nil, "", "{}", nil, nil, nil, nil, nil, nil, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tally.preview_rows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.UpdatePreviewRow(context.Background(), row)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ds.UpdatePreviewRow(context.Background(), row)
	require.NoError(t, err)
	assert.False(t, ok, "stale revision")
}

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
	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var voucherColumnNames = []string{
	"voucher_id", "kind", "counterparty_id", "trade_date", "voucher_no", "item_name", "quantity", "unit_price",
	"supply_amount", "vat_amount", "total_amount", "memo", "version", "source_job_id", "created_at", "updated_at",
}

func sampleKey() model.NaturalKey {
	return model.NaturalKey{
		Kind:           model.JobKindSales,
		CounterpartyID: "cp_1",
		TradeDate:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		VoucherNo:      "S-1",
	}
}

func TestFindVoucherByNaturalKey(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM tally.vouchers WHERE kind = \\$1 AND counterparty_id = \\$2 AND trade_date = \\$3 AND voucher_no = \\$4").
		WithArgs("sales", "cp_1", "2024-03-05", "S-1").
		WillReturnRows(sqlmock.NewRows(voucherColumnNames).AddRow(
			"vch_1", "sales", "cp_1", time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local), "S-1", "Bolt",
			"10.0000", "100.0000", "1000.00", "100.00", "1100.00", "", int64(7), "job_0", now, now,
		))

	v, err := ds.FindVoucherByNaturalKey(context.Background(), sampleKey())
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(7), v.Version)
	assert.True(t, v.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, v.TotalAmount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, model.YearMonth("2024-03"), v.YearMonth())
	assert.Equal(t, sampleKey(), v.NaturalKey())
}

func TestFindVoucherByNaturalKey_Absent(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("FROM tally.vouchers").
		WillReturnRows(sqlmock.NewRows(voucherColumnNames))

	v, err := ds.FindVoucherByNaturalKey(context.Background(), sampleKey())
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestInsertVoucher(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()
	jobID := "job_1"
	v := &model.Voucher{
		Kind: model.JobKindSales, CounterpartyID: "cp_1", TradeDate: sampleKey().TradeDate, VoucherNo: "S-1",
		ItemName: "Bolt", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100),
		SupplyAmount: decimal.NewFromInt(1000), VatAmount: decimal.NewFromInt(100), TotalAmount: decimal.NewFromInt(1100),
		SourceJobID: &jobID,
	}

	mock.ExpectQuery("INSERT INTO tally.vouchers .* RETURNING version, created_at, updated_at").
		WithArgs(sqlmock.AnyArg(), "sales", "cp_1", "2024-03-05", "S-1", "Bolt", "10", "100", "1000", "100", "1100", "", "job_1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "updated_at"}).AddRow(int64(42), now, now))

	require.NoError(t, ds.InsertVoucher(context.Background(), v))
	assert.Equal(t, int64(42), v.Version)
	assert.Contains(t, v.VoucherID, "vch_")
}

func TestInsertVoucher_DuplicateNaturalKey(t *testing.T) {
	ds, mock := newMockDatasource(t)
	v := &model.Voucher{Kind: model.JobKindSales, CounterpartyID: "cp_1", TradeDate: sampleKey().TradeDate, VoucherNo: "S-1"}

	mock.ExpectQuery("INSERT INTO tally.vouchers").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := ds.InsertVoucher(context.Background(), v)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
	assert.True(t, IsUniqueViolation(err))
}

func TestUpdateVoucherIfVersion(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UTC()
	v := &model.Voucher{VoucherID: "vch_1", ItemName: "Bolt", SupplyAmount: decimal.NewFromInt(1200), TotalAmount: decimal.NewFromInt(1320), VatAmount: decimal.NewFromInt(120)}

	mock.ExpectQuery("UPDATE tally.vouchers SET .*version = nextval\\('tally.voucher_version_seq'\\).* WHERE voucher_id = \\$1 AND version = \\$2 RETURNING version, updated_at").
		WithArgs("vch_1", int64(7), "Bolt", "0", "0", "1200", "120", "1320", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(50), now))

	ok, err := ds.UpdateVoucherIfVersion(context.Background(), v, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(50), v.Version)

	mock.ExpectQuery("UPDATE tally.vouchers").
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))

	ok, err = ds.UpdateVoucherIfVersion(context.Background(), v, 7)
	require.NoError(t, err)
	assert.False(t, ok, "version moved on")
}

func TestCurrentVoucherVersion(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM tally.vouchers").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(99)))

	v, err := ds.CurrentVoucherVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)
}

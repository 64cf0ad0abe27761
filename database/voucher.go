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
	"errors"
	"time"

	"github.com/jerry-enebeli/tally/model"
	"go.opentelemetry.io/otel"
)

const voucherColumns = `voucher_id, kind, counterparty_id, trade_date, voucher_no, item_name, quantity, unit_price,
	supply_amount, vat_amount, total_amount, memo, version, source_job_id, created_at, updated_at`

func scanVoucher(s rowScanner) (*model.Voucher, error) {
	v := &model.Voucher{}
	var sourceJobID sql.NullString
	err := s.Scan(
		&v.VoucherID, &v.Kind, &v.CounterpartyID, &v.TradeDate, &v.VoucherNo, &v.ItemName,
		&v.Quantity, &v.UnitPrice, &v.SupplyAmount, &v.VatAmount, &v.TotalAmount, &v.Memo,
		&v.Version, &sourceJobID, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.TradeDate = time.Date(v.TradeDate.Year(), v.TradeDate.Month(), v.TradeDate.Day(), 0, 0, 0, 0, time.UTC)
	v.SourceJobID = nullString(sourceJobID)
	return v, nil
}

// FindVoucherByNaturalKey returns the voucher stored under key, or nil.
func (d Datasource) FindVoucherByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.Voucher, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "FindVoucherByNaturalKey")
	defer span.End()

	v, err := scanVoucher(d.db().QueryRowContext(ctx, `
		SELECT `+voucherColumns+`
		FROM tally.vouchers
		WHERE kind = $1 AND counterparty_id = $2 AND trade_date = $3 AND voucher_no = $4
	`, key.Kind, key.CounterpartyID, key.TradeDate.Format("2006-01-02"), key.VoucherNo))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "voucher")
	}
	return v, nil
}

// InsertVoucher records a new voucher. The version comes from the shared
// sequence, so it is above every version handed out before.
func (d Datasource) InsertVoucher(ctx context.Context, v *model.Voucher) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "InsertVoucher")
	defer span.End()

	if v.VoucherID == "" {
		v.VoucherID = model.GenerateUUIDWithSuffix("vch")
	}

	err := d.db().QueryRowContext(ctx, `
		INSERT INTO tally.vouchers (voucher_id, kind, counterparty_id, trade_date, voucher_no, item_name,
			quantity, unit_price, supply_amount, vat_amount, total_amount, memo, source_job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING version, created_at, updated_at
	`, v.VoucherID, v.Kind, v.CounterpartyID, v.TradeDate.Format("2006-01-02"), v.VoucherNo, v.ItemName,
		v.Quantity, v.UnitPrice, v.SupplyAmount, v.VatAmount, v.TotalAmount, v.Memo, nullable(v.SourceJobID),
	).Scan(&v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return mapError(err, "voucher")
	}
	return nil
}

// UpdateVoucherIfVersion writes v when the stored version still equals
// baseVersion and stamps the new version on v. It reports false when the
// voucher moved on or no longer exists.
func (d Datasource) UpdateVoucherIfVersion(ctx context.Context, v *model.Voucher, baseVersion int64) (bool, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "UpdateVoucherIfVersion")
	defer span.End()

	err := d.db().QueryRowContext(ctx, `
		UPDATE tally.vouchers
		SET item_name = $3, quantity = $4, unit_price = $5, supply_amount = $6, vat_amount = $7,
			total_amount = $8, memo = $9, source_job_id = $10,
			version = nextval('tally.voucher_version_seq'), updated_at = NOW()
		WHERE voucher_id = $1 AND version = $2
		RETURNING version, updated_at
	`, v.VoucherID, baseVersion, v.ItemName, v.Quantity, v.UnitPrice, v.SupplyAmount, v.VatAmount,
		v.TotalAmount, v.Memo, nullable(v.SourceJobID),
	).Scan(&v.Version, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, mapError(err, "voucher")
	}
	return true, nil
}

// CurrentVoucherVersion returns the highest version present in the ledger.
func (d Datasource) CurrentVoucherVersion(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "CurrentVoucherVersion")
	defer span.End()

	var version int64
	err := d.db().QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM tally.vouchers`).Scan(&version)
	if err != nil {
		return 0, mapError(err, "voucher version")
	}
	return version, nil
}

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
	"fmt"
	"time"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

var previewColumns = []string{
	"job_id", "row_index", "status", "counterparty_name", "counterparty_id", "resolved_name",
	"trade_date", "voucher_no", "raw_fields", "entry", "diff", "error_message",
	"voucher_id", "base_version", "detail", "revision",
}

const previewSelect = `SELECT job_id, row_index, status, counterparty_name, counterparty_id, resolved_name,
	trade_date, voucher_no, raw_fields, entry, diff, error_message,
	voucher_id, base_version, detail, revision
	FROM tally.preview_rows`

// previewValues flattens a row into the column order of previewColumns.
func previewValues(row model.PreviewRow) ([]interface{}, error) {
	cols := model.ColumnsOf(row.Outcome)

	rawFields := row.RawFields
	if rawFields == nil {
		rawFields = map[string]string{}
	}
	rawJSON, err := json.Marshal(rawFields)
	if err != nil {
		return nil, err
	}

	var entryJSON, diffJSON interface{}
	if row.Entry != nil {
		b, err := json.Marshal(row.Entry)
		if err != nil {
			return nil, err
		}
		entryJSON = string(b)
	}
	if cols.Diff != nil {
		b, err := json.Marshal(cols.Diff)
		if err != nil {
			return nil, err
		}
		diffJSON = string(b)
	}

	var tradeDate interface{}
	if row.TradeDate != nil {
		tradeDate = row.TradeDate.Format("2006-01-02")
	}

	return []interface{}{
		row.JobID, row.RowIndex, string(cols.Status), row.CounterpartyName,
		nullable(row.CounterpartyID), nullable(row.ResolvedName), tradeDate, row.VoucherNo,
		string(rawJSON), entryJSON, diffJSON, nullable(cols.ErrorMessage),
		nullable(cols.VoucherID), nullableInt(cols.BaseVersion), nullable(cols.Detail), row.Revision,
	}, nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func scanPreviewRow(s rowScanner) (model.PreviewRow, error) {
	var row model.PreviewRow
	var status string
	var counterpartyID, resolvedName, errMsg, voucherID, detail sql.NullString
	var tradeDate sql.NullTime
	var baseVersion sql.NullInt64
	var rawJSON, entryJSON, diffJSON []byte

	err := s.Scan(
		&row.JobID, &row.RowIndex, &status, &row.CounterpartyName, &counterpartyID, &resolvedName,
		&tradeDate, &row.VoucherNo, &rawJSON, &entryJSON, &diffJSON, &errMsg,
		&voucherID, &baseVersion, &detail, &row.Revision,
	)
	if err != nil {
		return row, err
	}

	cols := model.OutcomeColumns{
		Status:       model.RowStatus(status),
		ErrorMessage: nullString(errMsg),
		VoucherID:    nullString(voucherID),
		Detail:       nullString(detail),
	}
	if baseVersion.Valid {
		v := baseVersion.Int64
		cols.BaseVersion = &v
	}
	if len(diffJSON) > 0 {
		if err := json.Unmarshal(diffJSON, &cols.Diff); err != nil {
			return row, fmt.Errorf("decode diff of row %d: %w", row.RowIndex, err)
		}
	}
	row.Outcome, err = cols.Outcome()
	if err != nil {
		return row, err
	}

	row.CounterpartyID = nullString(counterpartyID)
	row.ResolvedName = nullString(resolvedName)
	if tradeDate.Valid {
		d := time.Date(tradeDate.Time.Year(), tradeDate.Time.Month(), tradeDate.Time.Day(), 0, 0, 0, 0, time.UTC)
		row.TradeDate = &d
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &row.RawFields); err != nil {
			return row, fmt.Errorf("decode raw fields of row %d: %w", row.RowIndex, err)
		}
	}
	if len(entryJSON) > 0 {
		row.Entry = &model.VoucherEntry{}
		if err := json.Unmarshal(entryJSON, row.Entry); err != nil {
			return row, fmt.Errorf("decode entry of row %d: %w", row.RowIndex, err)
		}
	}
	return row, nil
}

// InsertPreviewRows streams the rows of a classification pass with COPY. It
// must run inside WithTx so a failed pass leaves no rows behind.
func (d Datasource) InsertPreviewRows(ctx context.Context, rows []model.PreviewRow) error {
	if d.tx == nil {
		return errNoTx
	}
	ctx, span := otel.Tracer("tally.database").Start(ctx, "InsertPreviewRows")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	stmt, err := d.tx.PrepareContext(ctx, pq.CopyInSchema("tally", "preview_rows", previewColumns...))
	if err != nil {
		return mapError(err, "preview rows")
	}

	for _, row := range rows {
		values, err := previewValues(row)
		if err != nil {
			stmt.Close()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode preview row", err)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			stmt.Close()
			return mapError(err, "preview rows")
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return mapError(err, "preview rows")
	}
	return mapError(stmt.Close(), "preview rows")
}

func (d Datasource) GetPreviewRows(ctx context.Context, jobID string) ([]model.PreviewRow, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetPreviewRows")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, previewSelect+`
		WHERE job_id = $1
		ORDER BY row_index
	`, jobID)
	if err != nil {
		return nil, mapError(err, "preview rows")
	}
	return collectPreviewRows(rows)
}

func (d Datasource) GetPreviewRowsByStatus(ctx context.Context, jobID string, statuses ...model.RowStatus) ([]model.PreviewRow, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetPreviewRowsByStatus")
	defer span.End()

	wanted := make([]string, len(statuses))
	for i, s := range statuses {
		wanted[i] = string(s)
	}

	rows, err := d.db().QueryContext(ctx, previewSelect+`
		WHERE job_id = $1 AND status = ANY($2)
		ORDER BY row_index
	`, jobID, pq.Array(wanted))
	if err != nil {
		return nil, mapError(err, "preview rows")
	}
	return collectPreviewRows(rows)
}

func collectPreviewRows(rows *sql.Rows) ([]model.PreviewRow, error) {
	defer rows.Close()

	out := []model.PreviewRow{}
	for rows.Next() {
		row, err := scanPreviewRow(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan preview row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over preview rows", err)
	}
	return out, nil
}

// UpdatePreviewRow rewrites a row in place when its stored revision still
// equals row.Revision. The stored revision is incremented.
func (d Datasource) UpdatePreviewRow(ctx context.Context, row model.PreviewRow) (bool, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "UpdatePreviewRow")
	defer span.End()

	v, err := previewValues(row)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode preview row", err)
	}

	// v follows previewColumns; job_id and row_index are the key and
	// revision is the compare value.
	res, err := d.db().ExecContext(ctx, `
		UPDATE tally.preview_rows
		SET status = $3, counterparty_name = $4, counterparty_id = $5, resolved_name = $6,
			trade_date = $7, voucher_no = $8, raw_fields = $9, entry = $10, diff = $11,
			error_message = $12, voucher_id = $13, base_version = $14, detail = $15,
			revision = revision + 1
		WHERE job_id = $1 AND row_index = $2 AND revision = $16
	`, v...)
	if err != nil {
		return false, mapError(err, "preview row")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err, "preview row")
	}
	return n == 1, nil
}

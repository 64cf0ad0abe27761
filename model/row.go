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

package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RowStatus is the classification of one preview row. The string values are
// part of the public contract; consumers branch on them.
type RowStatus string

const (
	RowStatusNew       RowStatus = "new"
	RowStatusUpdate    RowStatus = "update"
	RowStatusUnchanged RowStatus = "unchanged"
	RowStatusConflict  RowStatus = "conflict"
	RowStatusLocked    RowStatus = "locked"
	RowStatusUnmatched RowStatus = "unmatched"
	RowStatusError     RowStatus = "error"
	RowStatusExcluded  RowStatus = "excluded"
)

// AllRowStatuses lists every status in summary order.
var AllRowStatuses = []RowStatus{
	RowStatusNew, RowStatusUpdate, RowStatusUnchanged, RowStatusConflict,
	RowStatusLocked, RowStatusUnmatched, RowStatusError, RowStatusExcluded,
}

// ApplicableStatuses are the row statuses confirmation writes to the ledger.
var ApplicableStatuses = []RowStatus{RowStatusNew, RowStatusUpdate}

// FieldDiff is one changed comparable field of an update row.
type FieldDiff struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// RowOutcome is the sealed set of row classifications. Only update carries a
// diff and only error carries a message.
type RowOutcome interface {
	Status() RowStatus
	isRowOutcome()
}

type OutcomeNew struct{}

type OutcomeUpdate struct {
	VoucherID   string
	BaseVersion int64
	Diff        []FieldDiff
}

type OutcomeUnchanged struct {
	VoucherID string
}

// OutcomeConflict marks a row whose voucher moved after the pass snapshot.
type OutcomeConflict struct {
	VoucherID string
	Version   int64
}

type OutcomeLocked struct {
	YearMonth YearMonth
}

type OutcomeUnmatched struct{}

type OutcomeError struct {
	Message string
}

// OutcomeExcluded marks subtotal/total lines; Marker is the text that gave it away.
type OutcomeExcluded struct {
	Marker string
}

func (OutcomeNew) Status() RowStatus       { return RowStatusNew }
func (OutcomeUpdate) Status() RowStatus    { return RowStatusUpdate }
func (OutcomeUnchanged) Status() RowStatus { return RowStatusUnchanged }
func (OutcomeConflict) Status() RowStatus  { return RowStatusConflict }
func (OutcomeLocked) Status() RowStatus    { return RowStatusLocked }
func (OutcomeUnmatched) Status() RowStatus { return RowStatusUnmatched }
func (OutcomeError) Status() RowStatus     { return RowStatusError }
func (OutcomeExcluded) Status() RowStatus  { return RowStatusExcluded }

func (OutcomeNew) isRowOutcome()       {}
func (OutcomeUpdate) isRowOutcome()    {}
func (OutcomeUnchanged) isRowOutcome() {}
func (OutcomeConflict) isRowOutcome()  {}
func (OutcomeLocked) isRowOutcome()    {}
func (OutcomeUnmatched) isRowOutcome() {}
func (OutcomeError) isRowOutcome()     {}
func (OutcomeExcluded) isRowOutcome()  {}

// VoucherEntry is the parsed, structurally valid content of a spreadsheet row.
type VoucherEntry struct {
	CounterpartyName string          `json:"counterparty_name"`
	TradeDate        time.Time       `json:"trade_date"`
	VoucherNo        string          `json:"voucher_no"`
	ItemName         string          `json:"item_name"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	SupplyAmount     decimal.Decimal `json:"supply_amount"`
	VatAmount        decimal.Decimal `json:"vat_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Memo             string          `json:"memo"`
}

// YearMonth returns the period the entry is booked in.
func (e VoucherEntry) YearMonth() YearMonth {
	return YearMonthOf(e.TradeDate)
}

// PreviewRow is the classified, not yet committed form of one spreadsheet line.
type PreviewRow struct {
	JobID            string
	RowIndex         int
	Outcome          RowOutcome
	CounterpartyName string
	CounterpartyID   *string
	ResolvedName     *string
	TradeDate        *time.Time
	VoucherNo        string
	RawFields        map[string]string
	Entry            *VoucherEntry
	Revision         int
}

// Status returns the row's classification.
func (r PreviewRow) Status() RowStatus {
	if r.Outcome == nil {
		return ""
	}
	return r.Outcome.Status()
}

// Diff returns the field differences of an update row and nil otherwise.
func (r PreviewRow) Diff() []FieldDiff {
	if u, ok := r.Outcome.(OutcomeUpdate); ok {
		if u.Diff == nil {
			return []FieldDiff{}
		}
		return u.Diff
	}
	return nil
}

// ErrorMessage returns the validation message of an error row and nil otherwise.
func (r PreviewRow) ErrorMessage() *string {
	if e, ok := r.Outcome.(OutcomeError); ok {
		msg := e.Message
		return &msg
	}
	return nil
}

type previewRowJSON struct {
	JobID            string            `json:"job_id"`
	RowIndex         int               `json:"row_index"`
	Status           RowStatus         `json:"status"`
	CounterpartyName string            `json:"counterparty_name"`
	CounterpartyID   *string           `json:"counterparty_id"`
	ResolvedName     *string           `json:"resolved_name"`
	TradeDate        *string           `json:"trade_date"`
	VoucherNo        string            `json:"voucher_no"`
	YearMonth        *YearMonth        `json:"year_month,omitempty"`
	RawFields        map[string]string `json:"raw_fields"`
	Entry            *VoucherEntry     `json:"entry,omitempty"`
	Diff             []FieldDiff       `json:"diff"`
	Error            *string           `json:"error"`
	Revision         int               `json:"revision"`
}

// MarshalJSON flattens the outcome into the status/diff/error fields consumers read.
func (r PreviewRow) MarshalJSON() ([]byte, error) {
	out := previewRowJSON{
		JobID:            r.JobID,
		RowIndex:         r.RowIndex,
		Status:           r.Status(),
		CounterpartyName: r.CounterpartyName,
		CounterpartyID:   r.CounterpartyID,
		ResolvedName:     r.ResolvedName,
		VoucherNo:        r.VoucherNo,
		RawFields:        r.RawFields,
		Entry:            r.Entry,
		Diff:             r.Diff(),
		Error:            r.ErrorMessage(),
		Revision:         r.Revision,
	}
	if r.TradeDate != nil {
		d := r.TradeDate.Format("2006-01-02")
		out.TradeDate = &d
		ym := YearMonthOf(*r.TradeDate)
		out.YearMonth = &ym
	}
	return json.Marshal(out)
}

// OutcomeColumns is the flat storage form of a RowOutcome.
type OutcomeColumns struct {
	Status       RowStatus
	Diff         []FieldDiff
	ErrorMessage *string
	VoucherID    *string
	BaseVersion  *int64
	Detail       *string
}

// ColumnsOf flattens an outcome for storage.
func ColumnsOf(o RowOutcome) OutcomeColumns {
	cols := OutcomeColumns{Status: o.Status()}
	switch v := o.(type) {
	case OutcomeUpdate:
		cols.Diff = v.Diff
		if cols.Diff == nil {
			cols.Diff = []FieldDiff{}
		}
		cols.VoucherID = &v.VoucherID
		cols.BaseVersion = &v.BaseVersion
	case OutcomeUnchanged:
		cols.VoucherID = &v.VoucherID
	case OutcomeConflict:
		cols.VoucherID = &v.VoucherID
		cols.BaseVersion = &v.Version
	case OutcomeLocked:
		detail := string(v.YearMonth)
		cols.Detail = &detail
	case OutcomeError:
		cols.ErrorMessage = &v.Message
	case OutcomeExcluded:
		cols.Detail = &v.Marker
	}
	return cols
}

// Outcome rebuilds the RowOutcome from stored columns.
func (c OutcomeColumns) Outcome() (RowOutcome, error) {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	i64 := func(p *int64) int64 {
		if p == nil {
			return 0
		}
		return *p
	}

	switch c.Status {
	case RowStatusNew:
		return OutcomeNew{}, nil
	case RowStatusUpdate:
		return OutcomeUpdate{VoucherID: str(c.VoucherID), BaseVersion: i64(c.BaseVersion), Diff: c.Diff}, nil
	case RowStatusUnchanged:
		return OutcomeUnchanged{VoucherID: str(c.VoucherID)}, nil
	case RowStatusConflict:
		return OutcomeConflict{VoucherID: str(c.VoucherID), Version: i64(c.BaseVersion)}, nil
	case RowStatusLocked:
		return OutcomeLocked{YearMonth: YearMonth(str(c.Detail))}, nil
	case RowStatusUnmatched:
		return OutcomeUnmatched{}, nil
	case RowStatusError:
		return OutcomeError{Message: str(c.ErrorMessage)}, nil
	case RowStatusExcluded:
		return OutcomeExcluded{Marker: str(c.Detail)}, nil
	}
	return nil, fmt.Errorf("unknown row status %q", c.Status)
}

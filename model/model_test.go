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
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("job")
	assert.True(t, strings.HasPrefix(id, "job_"))
	assert.Len(t, id, len("job_")+36)
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("job"))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"  ACME Corp ", "acme corp"},
		{"acme\t  corp", "acme corp"},
		{"(주)한빛상사", "(주)한빛상사"},
		{" 한빛   상사 ", "한빛 상사"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeName(tt.in), tt.in)
	}
}

func TestParseYearMonth(t *testing.T) {
	ym, err := ParseYearMonth(" 2024-03 ")
	require.NoError(t, err)
	assert.Equal(t, YearMonth("2024-03"), ym)
	assert.Equal(t, "2024", ym.Year())

	for _, bad := range []string{"2024-13", "2024/03", "202403", ""} {
		_, err := ParseYearMonth(bad)
		assert.Error(t, err, bad)
	}
}

func TestMonthsOfYear(t *testing.T) {
	months := MonthsOfYear(2024)
	require.Len(t, months, 12)
	assert.Equal(t, YearMonth("2024-01"), months[0])
	assert.Equal(t, YearMonth("2024-12"), months[11])
}

func TestJobStatusTransitions(t *testing.T) {
	assert.True(t, JobStatusQueued.CanTransitionTo(JobStatusRunning))
	assert.True(t, JobStatusQueued.CanTransitionTo(JobStatusFailed))
	assert.True(t, JobStatusRunning.CanTransitionTo(JobStatusSucceeded))
	assert.True(t, JobStatusRunning.CanTransitionTo(JobStatusFailed))

	assert.False(t, JobStatusQueued.CanTransitionTo(JobStatusSucceeded))
	assert.False(t, JobStatusRunning.CanTransitionTo(JobStatusQueued))
	for _, terminal := range []JobStatus{JobStatusSucceeded, JobStatusFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed} {
			assert.False(t, terminal.CanTransitionTo(next))
		}
	}
}

func TestUploadJob_Transition(t *testing.T) {
	job := &UploadJob{Status: JobStatusQueued}
	require.NoError(t, job.Transition(JobStatusRunning))
	require.NoError(t, job.Transition(JobStatusSucceeded))

	err := job.Transition(JobStatusRunning)
	assert.EqualError(t, err, "invalid job transition succeeded -> running")
	assert.Equal(t, JobStatusSucceeded, job.Status)
}

func TestUploadJob_SetProgressMonotonic(t *testing.T) {
	job := &UploadJob{Status: JobStatusQueued}
	assert.False(t, job.SetProgress(10), "progress is only tracked while running")

	job.Status = JobStatusRunning
	assert.True(t, job.SetProgress(40))
	assert.False(t, job.SetProgress(20))
	assert.Equal(t, 40, job.Progress)
	assert.True(t, job.SetProgress(150))
	assert.Equal(t, 100, job.Progress)
}

func TestUploadJob_CanConfirm(t *testing.T) {
	assert.True(t, (&UploadJob{Status: JobStatusSucceeded}).CanConfirm())
	assert.False(t, (&UploadJob{Status: JobStatusSucceeded, IsConfirmed: true}).CanConfirm())
	assert.False(t, (&UploadJob{Status: JobStatusRunning}).CanConfirm())
}

func TestSummarizeRows(t *testing.T) {
	rows := []PreviewRow{
		{Outcome: OutcomeNew{}},
		{Outcome: OutcomeNew{}},
		{Outcome: OutcomeUpdate{VoucherID: "v1"}},
		{Outcome: OutcomeLocked{YearMonth: "2024-01"}},
		{Outcome: OutcomeUnmatched{}},
		{Outcome: OutcomeError{Message: "bad"}},
		{Outcome: OutcomeExcluded{Marker: "합계"}},
	}
	s := SummarizeRows(rows)
	assert.Equal(t, ResultSummary{Total: 7, New: 2, Update: 1, Locked: 1, Unmatched: 1, Error: 1, Excluded: 1}, s)

}

func TestPreviewRow_MarshalJSON_DiffOnlyOnUpdate(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	diff := []FieldDiff{{Field: "supply_amount", OldValue: "1000", NewValue: "1200"}}

	cases := []struct {
		outcome   RowOutcome
		wantDiff  bool
		wantError bool
	}{
		{OutcomeNew{}, false, false},
		{OutcomeUpdate{VoucherID: "v1", BaseVersion: 3, Diff: diff}, true, false},
		{OutcomeUnchanged{VoucherID: "v1"}, false, false},
		{OutcomeConflict{VoucherID: "v1", Version: 9}, false, false},
		{OutcomeLocked{YearMonth: "2024-03"}, false, false},
		{OutcomeUnmatched{}, false, false},
		{OutcomeError{Message: "supply_amount: cannot be blank."}, false, true},
		{OutcomeExcluded{Marker: "소계"}, false, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.outcome.Status()), func(t *testing.T) {
			row := PreviewRow{JobID: "job_1", RowIndex: 2, Outcome: tc.outcome, TradeDate: &date, VoucherNo: "S-1"}
			data, err := json.Marshal(row)
			require.NoError(t, err)

			var out map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &out))
			assert.Equal(t, string(tc.outcome.Status()), out["status"])
			assert.Equal(t, "2024-03-05", out["trade_date"])
			assert.Equal(t, tc.wantDiff, out["diff"] != nil)
			assert.Equal(t, tc.wantError, out["error"] != nil)
		})
	}
}

func TestOutcomeColumns_RoundTrip(t *testing.T) {
	outcomes := []RowOutcome{
		OutcomeNew{},
		OutcomeUpdate{VoucherID: "v1", BaseVersion: 4, Diff: []FieldDiff{{Field: "memo", OldValue: "", NewValue: "x"}}},
		OutcomeUnchanged{VoucherID: "v2"},
		OutcomeConflict{VoucherID: "v3", Version: 12},
		OutcomeLocked{YearMonth: "2024-02"},
		OutcomeUnmatched{},
		OutcomeError{Message: "invalid date"},
		OutcomeExcluded{Marker: "total"},
	}
	for _, o := range outcomes {
		back, err := ColumnsOf(o).Outcome()
		require.NoError(t, err)
		assert.Equal(t, o, back)
	}

	_, err := OutcomeColumns{Status: "bogus"}.Outcome()
	assert.Error(t, err)
}

func TestVoucher_ApplyEntry(t *testing.T) {
	v := Voucher{VoucherID: "v1", Kind: JobKindSales, CounterpartyID: "cp_1"}
	entry := VoucherEntry{
		TradeDate:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		VoucherNo:    "S-01",
		ItemName:     "widget",
		SupplyAmount: decimal.NewFromInt(1000),
		VatAmount:    decimal.NewFromInt(100),
		TotalAmount:  decimal.NewFromInt(1100),
	}
	v.ApplyEntry(entry)
	assert.Equal(t, "widget", v.ItemName)
	assert.True(t, v.TotalAmount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, YearMonth("2024-01"), v.YearMonth())
	assert.Equal(t, "sales/cp_1/2024-01-02/S-01", v.NaturalKey().String())
}

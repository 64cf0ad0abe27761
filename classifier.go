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
	"fmt"
	"time"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/model"
)

// classifyPass holds everything a classification pass reads once: the
// counterparty directory, the locked months and the ledger high-water mark.
// Every row of the pass sees the same state.
type classifyPass struct {
	jobID     string
	kind      model.JobKind
	directory *CounterpartyDirectory
	guard     PeriodGuard
	snapshot  int64
	ds        database.IDataSource
	seen      map[string]int
}

func newClassifyPass(ctx context.Context, ds database.IDataSource, job *model.UploadJob, snapshot int64) (*classifyPass, error) {
	directory, err := loadDirectory(ctx, ds)
	if err != nil {
		return nil, err
	}
	guard, err := loadPeriodGuard(ctx, ds)
	if err != nil {
		return nil, err
	}
	return &classifyPass{
		jobID:     job.JobID,
		kind:      job.Kind,
		directory: directory,
		guard:     guard,
		snapshot:  snapshot,
		ds:        ds,
		seen:      map[string]int{},
	}, nil
}

// duplicateKey identifies a row within one upload. Resolved rows use the
// counterparty id so two spellings of one counterparty collide.
func duplicateKey(counterparty string, date time.Time, voucherNo string) string {
	return fmt.Sprintf("%s|%s|%s", counterparty, date.Format("2006-01-02"), voucherNo)
}

// classify assigns exactly one outcome to a parsed row, in precedence order:
// excluded, error, unmatched, then the ledger steps of classifyMatched.
func (p *classifyPass) classify(ctx context.Context, parsed ParsedRow) (model.PreviewRow, error) {
	row := model.PreviewRow{
		JobID:            p.jobID,
		RowIndex:         parsed.Index,
		CounterpartyName: parsed.CounterpartyName,
		TradeDate:        parsed.TradeDate,
		VoucherNo:        parsed.VoucherNo,
		RawFields:        parsed.RawFields,
	}

	if parsed.ExcludedMarker != "" {
		row.Outcome = model.OutcomeExcluded{Marker: parsed.ExcludedMarker}
		return row, nil
	}
	if parsed.Err != "" || parsed.Entry == nil {
		row.Outcome = model.OutcomeError{Message: parsed.Err}
		return row, nil
	}

	entry := *parsed.Entry
	row.Entry = &entry

	cp, matched := p.directory.Resolve(entry.CounterpartyName)
	identity := "name:" + model.NormalizeName(entry.CounterpartyName)
	if matched {
		identity = "cp:" + cp.CounterpartyID
	}
	key := duplicateKey(identity, entry.TradeDate, entry.VoucherNo)
	if first, dup := p.seen[key]; dup {
		row.Entry = nil
		row.Outcome = model.OutcomeError{Message: fmt.Sprintf("voucher_no: duplicates row %d of this upload.", first)}
		return row, nil
	}
	p.seen[key] = row.RowIndex

	if !matched {
		row.Outcome = model.OutcomeUnmatched{}
		return row, nil
	}
	p.resolveTo(&row, cp)
	if err := p.classifyMatched(ctx, &row); err != nil {
		return row, err
	}
	return row, nil
}

func (p *classifyPass) resolveTo(row *model.PreviewRow, cp model.Counterparty) {
	id, name := cp.CounterpartyID, cp.Name
	row.CounterpartyID = &id
	row.ResolvedName = &name
}

// classifyMatched decides between locked, conflict, new, update and
// unchanged for a row whose counterparty is resolved.
func (p *classifyPass) classifyMatched(ctx context.Context, row *model.PreviewRow) error {
	entry := row.Entry
	ym := entry.YearMonth()
	if p.guard.IsLocked(ym) {
		row.Outcome = model.OutcomeLocked{YearMonth: ym}
		return nil
	}

	existing, err := p.ds.FindVoucherByNaturalKey(ctx, model.NaturalKey{
		Kind:           p.kind,
		CounterpartyID: *row.CounterpartyID,
		TradeDate:      entry.TradeDate,
		VoucherNo:      entry.VoucherNo,
	})
	if err != nil {
		return err
	}

	switch {
	case existing == nil:
		row.Outcome = model.OutcomeNew{}
	case existing.Version > p.snapshot:
		row.Outcome = model.OutcomeConflict{VoucherID: existing.VoucherID, Version: existing.Version}
	default:
		diff := DiffVoucher(*existing, *entry)
		if len(diff) == 0 {
			row.Outcome = model.OutcomeUnchanged{VoucherID: existing.VoucherID}
		} else {
			row.Outcome = model.OutcomeUpdate{VoucherID: existing.VoucherID, BaseVersion: existing.Version, Diff: diff}
		}
	}
	return nil
}

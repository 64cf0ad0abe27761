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

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// RematchResult counts the unmatched rows a rematch resolved.
type RematchResult struct {
	RematchedCount      int `json:"rematched_count"`
	StillUnmatchedCount int `json:"still_unmatched_count"`
}

// RematchJob resolves the unmatched rows of a job again, typically after new
// counterparties or aliases were registered. Rows that now resolve are
// classified against the current ledger and lock state and updated in place;
// every other row is left alone. Running it twice without directory changes
// resolves nothing the second time.
func (t *Tally) RematchJob(ctx context.Context, jobID string) (*RematchResult, error) {
	ctx, span := tracer.Start(ctx, "RematchJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID))

	unlock, err := t.lockJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer unlock()

	result := &RematchResult{}
	err = t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
		*result = RematchResult{}
		job, err := checkConfirmable(ctx, tx, jobID)
		if err != nil {
			return err
		}

		rows, err := tx.GetPreviewRows(ctx, jobID)
		if err != nil {
			return err
		}

		snapshot, err := tx.CurrentVoucherVersion(ctx)
		if err != nil {
			return err
		}
		pass, err := newClassifyPass(ctx, tx, job, snapshot)
		if err != nil {
			return err
		}

		// keys already claimed by resolved rows of this upload
		for _, row := range rows {
			if row.CounterpartyID != nil && row.Entry != nil {
				pass.seen[duplicateKey("cp:"+*row.CounterpartyID, row.Entry.TradeDate, row.Entry.VoucherNo)] = row.RowIndex
			}
		}

		for i, row := range rows {
			if row.Status() != model.RowStatusUnmatched || row.Entry == nil {
				continue
			}
			cp, ok := pass.directory.Resolve(row.Entry.CounterpartyName)
			if !ok {
				result.StillUnmatchedCount++
				continue
			}

			pass.resolveTo(&row, cp)
			key := duplicateKey("cp:"+cp.CounterpartyID, row.Entry.TradeDate, row.Entry.VoucherNo)
			if first, dup := pass.seen[key]; dup {
				row.Entry = nil
				row.Outcome = model.OutcomeError{Message: fmt.Sprintf("voucher_no: duplicates row %d of this upload.", first)}
			} else {
				pass.seen[key] = row.RowIndex
				if err := pass.classifyMatched(ctx, &row); err != nil {
					return err
				}
			}

			updated, err := tx.UpdatePreviewRow(ctx, row)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("%w: row %d changed during rematch", ErrJobBusy, row.RowIndex)
			}
			row.Revision++
			rows[i] = row
			result.RematchedCount++
		}

		if result.RematchedCount == 0 {
			return nil
		}
		_, err = tx.UpdateJobSummary(ctx, jobID, model.SummarizeRows(rows))
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"job_id":          jobID,
		"rematched":       result.RematchedCount,
		"still_unmatched": result.StillUnmatchedCount,
	}).Info("upload job rematched")
	return result, nil
}

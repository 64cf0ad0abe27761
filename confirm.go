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
	"fmt"
	"sort"
	"time"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/apierror"
	redlock "github.com/jerry-enebeli/tally/internal/lock"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ConfirmResult counts the rows a confirmation wrote to the ledger.
type ConfirmResult struct {
	AppliedCount int `json:"applied_count"`
	CreatedCount int `json:"created_count"`
	UpdatedCount int `json:"updated_count"`
}

func jobLockKey(jobID string) string {
	return "upload-job:" + jobID
}

// lockJob takes the per-job lock shared by confirm and rematch. A contended
// lock maps to ErrAlreadyConfirmed when the holder has already finished the
// confirmation and to ErrJobBusy otherwise.
func (t *Tally) lockJob(ctx context.Context, jobID string) (func(), error) {
	locker := redlock.NewLocker(t.redis, jobLockKey(jobID), model.GenerateUUIDWithSuffix("holder"))
	if err := locker.Lock(ctx, t.settings.ConfirmLockTTL); err != nil {
		if !errors.Is(err, redlock.ErrLockHeld) {
			return nil, err
		}
		if job, getErr := t.datasource.GetUploadJob(ctx, jobID); getErr == nil && job.IsConfirmed {
			return nil, ErrAlreadyConfirmed
		}
		return nil, ErrJobBusy
	}

	return func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Warnf("failed to release %s: %v", locker.Key(), err)
		}
	}, nil
}

// checkConfirmable re-reads the job under its row lock.
func checkConfirmable(ctx context.Context, tx database.IDataSource, jobID string) (*model.UploadJob, error) {
	job, err := tx.GetUploadJobForUpdate(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsConfirmed {
		return nil, ErrAlreadyConfirmed
	}
	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotReady, job.Status)
	}
	return job, nil
}

// ConfirmJob applies every new and update row of a job to the ledger in one
// transaction and marks the job confirmed. Either all rows are written or none.
//
// The month of every applied row is checked again inside the transaction,
// under a shared advisory lock that CreateLock takes exclusively, so no row
// lands in a month that is locked at commit time.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - jobID string: The job to confirm.
// - actor string: Who confirms the job.
//
// Returns:
// - *ConfirmResult: The number of vouchers created and updated.
// - error: ErrAlreadyConfirmed, ErrJobBusy, ErrJobNotReady, a *PeriodLockedError,
//   ErrVoucherConflict or ErrLedgerWrite.
func (t *Tally) ConfirmJob(ctx context.Context, jobID, actor string) (*ConfirmResult, error) {
	ctx, span := tracer.Start(ctx, "ConfirmJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID))

	unlock, err := t.lockJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer unlock()

	result := &ConfirmResult{}
	err = t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
		*result = ConfirmResult{}
		job, err := checkConfirmable(ctx, tx, jobID)
		if err != nil {
			return err
		}

		rows, err := tx.GetPreviewRowsByStatus(ctx, jobID, model.ApplicableStatuses...)
		if err != nil {
			return fmt.Errorf("%w: preview rows: %v", ErrLedgerWrite, err)
		}
		if err := recheckPeriods(ctx, tx, rows); err != nil {
			return err
		}

		entries := make([]model.AuditLogEntry, 0, len(rows)+1)
		for _, row := range rows {
			entry, err := applyRow(ctx, tx, job, row, actor)
			if err != nil {
				return err
			}
			if row.Status() == model.RowStatusNew {
				result.CreatedCount++
			} else {
				result.UpdatedCount++
			}
			entries = append(entries, entry)
		}
		result.AppliedCount = result.CreatedCount + result.UpdatedCount

		claimed, err := tx.MarkJobConfirmed(ctx, jobID, actor, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
		}
		if !claimed {
			return ErrAlreadyConfirmed
		}

		jobRef := jobID
		confirm := model.NewAuditLogEntry(model.AuditUploadConfirm, actor, model.AuditTargetJob, jobID, map[string]interface{}{
			"applied_count": result.AppliedCount,
			"created_count": result.CreatedCount,
			"updated_count": result.UpdatedCount,
		})
		confirm.JobID = &jobRef
		entries = append(entries, confirm)
		if err := tx.RecordAuditLogs(ctx, entries...); err != nil {
			return fmt.Errorf("%w: audit: %v", ErrLedgerWrite, err)
		}
		return nil
	})
	if err != nil {
		err = asConfirmError(err)
		span.RecordError(err)
		logrus.WithField("job_id", jobID).Warnf("confirm failed: %v", err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"job_id":  jobID,
		"actor":   actor,
		"created": result.CreatedCount,
		"updated": result.UpdatedCount,
	}).Info("upload job confirmed")
	return result, nil
}

// asConfirmError keeps the named confirmation failures and lookup errors as
// they are. Anything else, such as a failed begin or commit, is reported as
// ErrLedgerWrite so callers know the whole confirm may be retried.
func asConfirmError(err error) error {
	for _, named := range []error{ErrAlreadyConfirmed, ErrJobNotReady, ErrPeriodLocked, ErrVoucherConflict, ErrLedgerWrite} {
		if errors.Is(err, named) {
			return err
		}
	}
	if apierror.HasCode(err, apierror.ErrNotFound) || apierror.HasCode(err, apierror.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
}

// recheckPeriods takes the shared guard on every target month and fails
// with the rows that now fall into a locked month.
func recheckPeriods(ctx context.Context, tx database.IDataSource, rows []model.PreviewRow) error {
	seen := map[model.YearMonth]bool{}
	months := []model.YearMonth{}
	for _, row := range rows {
		if row.Entry == nil {
			continue
		}
		ym := row.Entry.YearMonth()
		if !seen[ym] {
			seen[ym] = true
			months = append(months, ym)
		}
	}
	if len(months) == 0 {
		return nil
	}

	if err := tx.AcquirePeriodGuard(ctx, months, false); err != nil {
		return fmt.Errorf("%w: period guard: %v", ErrLedgerWrite, err)
	}
	locked, err := tx.LockedMonths(ctx, months)
	if err != nil {
		return fmt.Errorf("%w: period locks: %v", ErrLedgerWrite, err)
	}
	if len(locked) == 0 {
		return nil
	}

	lockErr := &PeriodLockedError{}
	for ym := range locked {
		lockErr.Months = append(lockErr.Months, ym)
	}
	sort.Slice(lockErr.Months, func(i, j int) bool { return lockErr.Months[i] < lockErr.Months[j] })
	for _, row := range rows {
		if row.Entry != nil && locked[row.Entry.YearMonth()] {
			lockErr.Rows = append(lockErr.Rows, LockedRow{RowIndex: row.RowIndex, YearMonth: row.Entry.YearMonth()})
		}
	}
	return lockErr
}

// applyRow writes one row to the ledger and returns its audit entry.
func applyRow(ctx context.Context, tx database.IDataSource, job *model.UploadJob, row model.PreviewRow, actor string) (model.AuditLogEntry, error) {
	if row.Entry == nil || row.CounterpartyID == nil {
		return model.AuditLogEntry{}, fmt.Errorf("%w: row %d has no resolved entry", ErrLedgerWrite, row.RowIndex)
	}

	jobID := job.JobID
	v := &model.Voucher{
		Kind:           job.Kind,
		CounterpartyID: *row.CounterpartyID,
		SourceJobID:    &jobID,
	}
	v.ApplyEntry(*row.Entry)

	var entry model.AuditLogEntry
	switch outcome := row.Outcome.(type) {
	case model.OutcomeNew:
		if err := tx.InsertVoucher(ctx, v); err != nil {
			if database.IsUniqueViolation(err) {
				return entry, fmt.Errorf("%w: row %d: voucher %s already exists", ErrVoucherConflict, row.RowIndex, v.NaturalKey())
			}
			return entry, fmt.Errorf("%w: row %d: %v", ErrLedgerWrite, row.RowIndex, err)
		}
		entry = model.NewAuditLogEntry(model.AuditVoucherCreate, actor, model.AuditTargetVoucher, v.VoucherID, map[string]interface{}{
			"row_index": row.RowIndex,
			"version":   v.Version,
		})

	case model.OutcomeUpdate:
		v.VoucherID = outcome.VoucherID
		updated, err := tx.UpdateVoucherIfVersion(ctx, v, outcome.BaseVersion)
		if err != nil {
			return entry, fmt.Errorf("%w: row %d: %v", ErrLedgerWrite, row.RowIndex, err)
		}
		if !updated {
			return entry, fmt.Errorf("%w: row %d: voucher %s moved past version %d", ErrVoucherConflict, row.RowIndex, outcome.VoucherID, outcome.BaseVersion)
		}
		entry = model.NewAuditLogEntry(model.AuditVoucherUpdate, actor, model.AuditTargetVoucher, v.VoucherID, map[string]interface{}{
			"row_index":    row.RowIndex,
			"base_version": outcome.BaseVersion,
			"version":      v.Version,
			"diff":         outcome.Diff,
		})

	default:
		return entry, fmt.Errorf("%w: row %d is %s", ErrLedgerWrite, row.RowIndex, row.Status())
	}

	entry.JobID = &jobID
	return entry, nil
}

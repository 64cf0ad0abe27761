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
	"time"

	"github.com/jerry-enebeli/tally/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	uploadJob    // Interface for upload job lifecycle operations
	previewRow   // Interface for classified preview rows
	voucher      // Interface for the voucher ledger
	counterparty // Interface for counterparties and their aliases
	periodLock   // Interface for period locks
	auditLog     // Interface for the audit trail

	// WithTx runs fn in a single read-committed transaction.
	WithTx(ctx context.Context, fn func(IDataSource) error) error
}

// uploadJob defines methods for handling upload jobs. State changes are
// compare-and-set on the current status.
type uploadJob interface {
	CreateUploadJob(ctx context.Context, job *model.UploadJob) error                                // Records a new queued job
	GetUploadJob(ctx context.Context, jobID string) (*model.UploadJob, error)                       // Retrieves a job that is not deleted
	GetUploadJobForUpdate(ctx context.Context, jobID string) (*model.UploadJob, error)              // Retrieves and row-locks a job (transaction only)
	ListUploadJobs(ctx context.Context, limit, offset int) ([]model.UploadJob, error)               // Lists jobs newest first
	StartUploadJob(ctx context.Context, jobID string, snapshotVersion int64) (bool, error)          // queued -> running
	UpdateJobProgress(ctx context.Context, jobID string, progress int) error                        // Raises progress of a running job
	CompleteUploadJob(ctx context.Context, jobID string, summary model.ResultSummary) error         // running -> succeeded
	FailUploadJob(ctx context.Context, jobID string, message string) error                          // queued|running -> failed
	UpdateJobSummary(ctx context.Context, jobID string, summary model.ResultSummary) (int, error)   // Stores a new summary and bumps preview_version
	MarkJobConfirmed(ctx context.Context, jobID, actor string, confirmedAt time.Time) (bool, error) // Claims the one confirmation of a job
	SoftDeleteUploadJobs(ctx context.Context, jobIDs []string) (int64, error)                       // Soft-deletes jobs that are not running

	// GetStuckUploadJobs lists queued or running jobs older than threshold.
	GetStuckUploadJobs(ctx context.Context, threshold time.Duration, limit int) ([]model.UploadJob, error)
}

// previewRow defines methods for the per-job preview table.
type previewRow interface {
	InsertPreviewRows(ctx context.Context, rows []model.PreviewRow) error                                              // Bulk inserts the rows of one pass
	GetPreviewRows(ctx context.Context, jobID string) ([]model.PreviewRow, error)                                      // Retrieves all rows ordered by index
	GetPreviewRowsByStatus(ctx context.Context, jobID string, statuses ...model.RowStatus) ([]model.PreviewRow, error) // Retrieves rows with any of the statuses
	UpdatePreviewRow(ctx context.Context, row model.PreviewRow) (bool, error)                                          // Compare-and-set on revision
}

// voucher defines methods for the voucher ledger.
type voucher interface {
	FindVoucherByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.Voucher, error)     // Returns nil when absent
	InsertVoucher(ctx context.Context, v *model.Voucher) error                                     // Inserts and stamps a fresh version
	UpdateVoucherIfVersion(ctx context.Context, v *model.Voucher, baseVersion int64) (bool, error) // Compare-and-set on version
	CurrentVoucherVersion(ctx context.Context) (int64, error)                                      // Ledger high-water mark
}

// counterparty defines methods for counterparties and aliases.
type counterparty interface {
	ListCounterparties(ctx context.Context) ([]model.Counterparty, error)                           // Lists counterparties with their aliases
	GetCounterparty(ctx context.Context, counterpartyID string) (*model.Counterparty, error)        // Retrieves a counterparty by ID
	FindCounterpartyByName(ctx context.Context, normalizedName string) (*model.Counterparty, error) // Returns nil when absent
	FindAliasOwner(ctx context.Context, normalizedAlias string) (*model.CounterpartyAlias, error)   // Returns nil when absent
	CreateCounterparty(ctx context.Context, cp *model.Counterparty) error                           // Records a new counterparty
	CreateCounterpartyAlias(ctx context.Context, alias *model.CounterpartyAlias) error              // Records a new alias
}

// periodLock defines methods for period locks.
type periodLock interface {
	GetPeriodLock(ctx context.Context, ym model.YearMonth) (*model.PeriodLock, error)             // Returns nil for a never locked month
	ListPeriodLocks(ctx context.Context, year string) ([]model.PeriodLock, error)                 // Lists stored locks of a year
	LockedMonths(ctx context.Context, months []model.YearMonth) (map[model.YearMonth]bool, error) // Locked subset of months, or all locked months when nil
	UpsertPeriodLock(ctx context.Context, lock model.PeriodLock) error                            // Creates or replaces a lock record
	AcquirePeriodGuard(ctx context.Context, months []model.YearMonth, exclusive bool) error       // Transaction scoped advisory locks
}

// auditLog defines methods for the insert-only audit trail.
type auditLog interface {
	RecordAuditLogs(ctx context.Context, entries ...model.AuditLogEntry) error                                    // Inserts entries
	ListAuditLogs(ctx context.Context, targetType, targetPrefix string, limit int) ([]model.AuditLogEntry, error) // Lists entries newest first
}

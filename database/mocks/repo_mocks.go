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

package mocks

import (
	"context"
	"time"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// WithTx runs fn against the mock itself so expectations set on the mock
// apply inside the transaction too.
func (m *MockDataSource) WithTx(ctx context.Context, fn func(database.IDataSource) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

// Upload job methods

func (m *MockDataSource) CreateUploadJob(ctx context.Context, job *model.UploadJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockDataSource) GetUploadJob(ctx context.Context, jobID string) (*model.UploadJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*model.UploadJob)
	return job, args.Error(1)
}

func (m *MockDataSource) GetUploadJobForUpdate(ctx context.Context, jobID string) (*model.UploadJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*model.UploadJob)
	return job, args.Error(1)
}

func (m *MockDataSource) ListUploadJobs(ctx context.Context, limit, offset int) ([]model.UploadJob, error) {
	args := m.Called(ctx, limit, offset)
	jobs, _ := args.Get(0).([]model.UploadJob)
	return jobs, args.Error(1)
}

func (m *MockDataSource) GetStuckUploadJobs(ctx context.Context, threshold time.Duration, limit int) ([]model.UploadJob, error) {
	args := m.Called(ctx, threshold, limit)
	jobs, _ := args.Get(0).([]model.UploadJob)
	return jobs, args.Error(1)
}

func (m *MockDataSource) StartUploadJob(ctx context.Context, jobID string, snapshotVersion int64) (bool, error) {
	args := m.Called(ctx, jobID, snapshotVersion)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	args := m.Called(ctx, jobID, progress)
	return args.Error(0)
}

func (m *MockDataSource) CompleteUploadJob(ctx context.Context, jobID string, summary model.ResultSummary) error {
	args := m.Called(ctx, jobID, summary)
	return args.Error(0)
}

func (m *MockDataSource) FailUploadJob(ctx context.Context, jobID string, message string) error {
	args := m.Called(ctx, jobID, message)
	return args.Error(0)
}

func (m *MockDataSource) UpdateJobSummary(ctx context.Context, jobID string, summary model.ResultSummary) (int, error) {
	args := m.Called(ctx, jobID, summary)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) MarkJobConfirmed(ctx context.Context, jobID, actor string, confirmedAt time.Time) (bool, error) {
	args := m.Called(ctx, jobID, actor, confirmedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SoftDeleteUploadJobs(ctx context.Context, jobIDs []string) (int64, error) {
	args := m.Called(ctx, jobIDs)
	return args.Get(0).(int64), args.Error(1)
}

// Preview row methods

func (m *MockDataSource) InsertPreviewRows(ctx context.Context, rows []model.PreviewRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockDataSource) GetPreviewRows(ctx context.Context, jobID string) ([]model.PreviewRow, error) {
	args := m.Called(ctx, jobID)
	rows, _ := args.Get(0).([]model.PreviewRow)
	return rows, args.Error(1)
}

func (m *MockDataSource) GetPreviewRowsByStatus(ctx context.Context, jobID string, statuses ...model.RowStatus) ([]model.PreviewRow, error) {
	args := m.Called(ctx, jobID, statuses)
	rows, _ := args.Get(0).([]model.PreviewRow)
	return rows, args.Error(1)
}

func (m *MockDataSource) UpdatePreviewRow(ctx context.Context, row model.PreviewRow) (bool, error) {
	args := m.Called(ctx, row)
	return args.Bool(0), args.Error(1)
}

// Voucher methods

func (m *MockDataSource) FindVoucherByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.Voucher, error) {
	args := m.Called(ctx, key)
	v, _ := args.Get(0).(*model.Voucher)
	return v, args.Error(1)
}

func (m *MockDataSource) InsertVoucher(ctx context.Context, v *model.Voucher) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockDataSource) UpdateVoucherIfVersion(ctx context.Context, v *model.Voucher, baseVersion int64) (bool, error) {
	args := m.Called(ctx, v, baseVersion)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CurrentVoucherVersion(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Counterparty methods

func (m *MockDataSource) ListCounterparties(ctx context.Context) ([]model.Counterparty, error) {
	args := m.Called(ctx)
	cps, _ := args.Get(0).([]model.Counterparty)
	return cps, args.Error(1)
}

func (m *MockDataSource) GetCounterparty(ctx context.Context, counterpartyID string) (*model.Counterparty, error) {
	args := m.Called(ctx, counterpartyID)
	cp, _ := args.Get(0).(*model.Counterparty)
	return cp, args.Error(1)
}

func (m *MockDataSource) FindCounterpartyByName(ctx context.Context, normalizedName string) (*model.Counterparty, error) {
	args := m.Called(ctx, normalizedName)
	cp, _ := args.Get(0).(*model.Counterparty)
	return cp, args.Error(1)
}

func (m *MockDataSource) FindAliasOwner(ctx context.Context, normalizedAlias string) (*model.CounterpartyAlias, error) {
	args := m.Called(ctx, normalizedAlias)
	a, _ := args.Get(0).(*model.CounterpartyAlias)
	return a, args.Error(1)
}

func (m *MockDataSource) CreateCounterparty(ctx context.Context, cp *model.Counterparty) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *MockDataSource) CreateCounterpartyAlias(ctx context.Context, alias *model.CounterpartyAlias) error {
	args := m.Called(ctx, alias)
	return args.Error(0)
}

// Period lock methods

func (m *MockDataSource) GetPeriodLock(ctx context.Context, ym model.YearMonth) (*model.PeriodLock, error) {
	args := m.Called(ctx, ym)
	l, _ := args.Get(0).(*model.PeriodLock)
	return l, args.Error(1)
}

func (m *MockDataSource) ListPeriodLocks(ctx context.Context, year string) ([]model.PeriodLock, error) {
	args := m.Called(ctx, year)
	locks, _ := args.Get(0).([]model.PeriodLock)
	return locks, args.Error(1)
}

func (m *MockDataSource) LockedMonths(ctx context.Context, months []model.YearMonth) (map[model.YearMonth]bool, error) {
	args := m.Called(ctx, months)
	locked, _ := args.Get(0).(map[model.YearMonth]bool)
	return locked, args.Error(1)
}

func (m *MockDataSource) UpsertPeriodLock(ctx context.Context, lock model.PeriodLock) error {
	args := m.Called(ctx, lock)
	return args.Error(0)
}

func (m *MockDataSource) AcquirePeriodGuard(ctx context.Context, months []model.YearMonth, exclusive bool) error {
	args := m.Called(ctx, months, exclusive)
	return args.Error(0)
}

// Audit methods

func (m *MockDataSource) RecordAuditLogs(ctx context.Context, entries ...model.AuditLogEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockDataSource) ListAuditLogs(ctx context.Context, targetType, targetPrefix string, limit int) ([]model.AuditLogEntry, error) {
	args := m.Called(ctx, targetType, targetPrefix, limit)
	logs, _ := args.Get(0).([]model.AuditLogEntry)
	return logs, args.Error(1)
}

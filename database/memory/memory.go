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

// Package memory is an in-process IDataSource used by tests and local runs.
// Transactions are serialized by one mutex and roll back by restoring a
// snapshot of the whole store.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
)

var errNoTx = errors.New("memory: operation requires a transaction")

type jobRecord struct {
	job       model.UploadJob
	deletedAt *time.Time
	seq       int
}

type store struct {
	jobs           map[string]*jobRecord
	jobSeq         int
	rows           map[string]map[int]model.PreviewRow
	vouchers       map[string]model.Voucher
	voucherByKey   map[string]string
	versionSeq     int64
	counterparties map[string]model.Counterparty
	cpByName       map[string]string
	aliases        map[string]model.CounterpartyAlias
	locks          map[model.YearMonth]model.PeriodLock
	audit          []model.AuditLogEntry
}

func newStore() *store {
	return &store{
		jobs:           map[string]*jobRecord{},
		rows:           map[string]map[int]model.PreviewRow{},
		vouchers:       map[string]model.Voucher{},
		voucherByKey:   map[string]string{},
		counterparties: map[string]model.Counterparty{},
		cpByName:       map[string]string{},
		aliases:        map[string]model.CounterpartyAlias{},
		locks:          map[model.YearMonth]model.PeriodLock{},
	}
}

func (s *store) clone() *store {
	c := newStore()
	for k, v := range s.jobs {
		rec := *v
		c.jobs[k] = &rec
	}
	c.jobSeq = s.jobSeq
	for job, rows := range s.rows {
		m := make(map[int]model.PreviewRow, len(rows))
		for i, r := range rows {
			m[i] = r
		}
		c.rows[job] = m
	}
	for k, v := range s.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range s.voucherByKey {
		c.voucherByKey[k] = v
	}
	c.versionSeq = s.versionSeq
	for k, v := range s.counterparties {
		c.counterparties[k] = v
	}
	for k, v := range s.cpByName {
		c.cpByName[k] = v
	}
	for k, v := range s.aliases {
		c.aliases[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = v
	}
	c.audit = append([]model.AuditLogEntry(nil), s.audit...)
	return c
}

type shared struct {
	mu     sync.Mutex
	st     *store
	faults sync.Map
}

// DataSource implements database.IDataSource in memory.
type DataSource struct {
	sh   *shared
	inTx bool
}

var _ database.IDataSource = (*DataSource)(nil)

// New returns an empty data source.
func New() *DataSource {
	return &DataSource{sh: &shared{st: newStore()}}
}

// SetFault makes the named method fail with err until ClearFaults is called.
func (d *DataSource) SetFault(method string, err error) {
	d.sh.faults.Store(method, err)
}

// ClearFaults removes every injected failure.
func (d *DataSource) ClearFaults() {
	d.sh.faults.Range(func(k, _ interface{}) bool {
		d.sh.faults.Delete(k)
		return true
	})
}

func (d *DataSource) fault(method string) error {
	if v, ok := d.sh.faults.Load(method); ok {
		return v.(error)
	}
	return nil
}

// with runs fn on the store, taking the lock unless the caller is inside WithTx.
func (d *DataSource) with(fn func(st *store) error) error {
	if d.inTx {
		return fn(d.sh.st)
	}
	d.sh.mu.Lock()
	defer d.sh.mu.Unlock()
	return fn(d.sh.st)
}

func (d *DataSource) WithTx(ctx context.Context, fn func(database.IDataSource) error) error {
	if d.inTx {
		return fn(d)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.fault("WithTx"); err != nil {
		return err
	}

	d.sh.mu.Lock()
	defer d.sh.mu.Unlock()

	snapshot := d.sh.st.clone()
	if err := fn(&DataSource{sh: d.sh, inTx: true}); err != nil {
		d.sh.st = snapshot
		return err
	}
	// "Commit" fails after the work ran, the way a dropped connection would.
	if err := d.fault("Commit"); err != nil {
		d.sh.st = snapshot
		return err
	}
	return nil
}

func notFound(what string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, what+" not found", nil)
}

func conflict(what string) error {
	return apierror.NewAPIError(apierror.ErrConflict, what+" already exists", nil)
}

// Upload jobs

func (d *DataSource) CreateUploadJob(_ context.Context, job *model.UploadJob) error {
	if err := d.fault("CreateUploadJob"); err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	return d.with(func(st *store) error {
		if _, ok := st.jobs[job.JobID]; ok {
			return conflict("upload job")
		}
		st.jobSeq++
		st.jobs[job.JobID] = &jobRecord{job: *job, seq: st.jobSeq}
		return nil
	})
}

func (st *store) liveJob(jobID string) (*jobRecord, bool) {
	rec, ok := st.jobs[jobID]
	if !ok || rec.deletedAt != nil {
		return nil, false
	}
	return rec, true
}

func (d *DataSource) GetUploadJob(_ context.Context, jobID string) (*model.UploadJob, error) {
	if err := d.fault("GetUploadJob"); err != nil {
		return nil, err
	}
	var out *model.UploadJob
	err := d.with(func(st *store) error {
		rec, ok := st.liveJob(jobID)
		if !ok {
			return notFound("upload job")
		}
		job := rec.job
		out = &job
		return nil
	})
	return out, err
}

func (d *DataSource) GetUploadJobForUpdate(ctx context.Context, jobID string) (*model.UploadJob, error) {
	if !d.inTx {
		return nil, errNoTx
	}
	if err := d.fault("GetUploadJobForUpdate"); err != nil {
		return nil, err
	}
	return d.GetUploadJob(ctx, jobID)
}

func (d *DataSource) ListUploadJobs(_ context.Context, limit, offset int) ([]model.UploadJob, error) {
	if err := d.fault("ListUploadJobs"); err != nil {
		return nil, err
	}
	out := []model.UploadJob{}
	err := d.with(func(st *store) error {
		recs := make([]*jobRecord, 0, len(st.jobs))
		for _, rec := range st.jobs {
			if rec.deletedAt == nil {
				recs = append(recs, rec)
			}
		}
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].job.CreatedAt.Equal(recs[j].job.CreatedAt) {
				return recs[i].job.CreatedAt.After(recs[j].job.CreatedAt)
			}
			return recs[i].seq > recs[j].seq
		})
		for i := offset; i < len(recs) && len(out) < limit; i++ {
			out = append(out, recs[i].job)
		}
		return nil
	})
	return out, err
}

func (d *DataSource) GetStuckUploadJobs(_ context.Context, threshold time.Duration, limit int) ([]model.UploadJob, error) {
	if err := d.fault("GetStuckUploadJobs"); err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-threshold)
	out := []model.UploadJob{}
	err := d.with(func(st *store) error {
		recs := make([]*jobRecord, 0)
		for _, rec := range st.jobs {
			if rec.deletedAt != nil {
				continue
			}
			job := rec.job
			switch {
			case job.Status == model.JobStatusQueued && job.CreatedAt.Before(cutoff),
				job.Status == model.JobStatusRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff):
				recs = append(recs, rec)
			}
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
		for i := 0; i < len(recs) && len(out) < limit; i++ {
			out = append(out, recs[i].job)
		}
		return nil
	})
	return out, err
}

func (d *DataSource) StartUploadJob(_ context.Context, jobID string, snapshotVersion int64) (bool, error) {
	if err := d.fault("StartUploadJob"); err != nil {
		return false, err
	}
	started := false
	err := d.with(func(st *store) error {
		rec, ok := st.liveJob(jobID)
		if !ok || rec.job.Status != model.JobStatusQueued {
			return nil
		}
		if err := rec.job.Transition(model.JobStatusRunning); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.job.StartedAt = &now
		rec.job.SnapshotVersion = snapshotVersion
		rec.job.Progress = 0
		started = true
		return nil
	})
	return started, err
}

func (d *DataSource) UpdateJobProgress(_ context.Context, jobID string, progress int) error {
	if err := d.fault("UpdateJobProgress"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		if rec, ok := st.jobs[jobID]; ok {
			rec.job.SetProgress(progress)
		}
		return nil
	})
}

func (d *DataSource) CompleteUploadJob(_ context.Context, jobID string, summary model.ResultSummary) error {
	if err := d.fault("CompleteUploadJob"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		rec, ok := st.jobs[jobID]
		if !ok || rec.job.Status != model.JobStatusRunning {
			return apierror.NewAPIError(apierror.ErrConflict, "upload job "+jobID+" is not running", nil)
		}
		if err := rec.job.Transition(model.JobStatusSucceeded); err != nil {
			return err
		}
		now := time.Now().UTC()
		s := summary
		rec.job.Progress = 100
		rec.job.ResultSummary = &s
		rec.job.CompletedAt = &now
		rec.job.PreviewVersion++
		rec.job.ErrorMessage = nil
		return nil
	})
}

func (d *DataSource) FailUploadJob(ctx context.Context, jobID string, message string) error {
	if err := d.fault("FailUploadJob"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		rec, ok := st.jobs[jobID]
		if !ok || rec.job.Status.IsTerminal() {
			return nil
		}
		if err := rec.job.Transition(model.JobStatusFailed); err != nil {
			return err
		}
		now := time.Now().UTC()
		msg := message
		rec.job.ErrorMessage = &msg
		rec.job.CompletedAt = &now
		return nil
	})
}

func (d *DataSource) UpdateJobSummary(_ context.Context, jobID string, summary model.ResultSummary) (int, error) {
	if err := d.fault("UpdateJobSummary"); err != nil {
		return 0, err
	}
	version := 0
	err := d.with(func(st *store) error {
		rec, ok := st.jobs[jobID]
		if !ok || rec.job.Status != model.JobStatusSucceeded || rec.job.IsConfirmed {
			return notFound("upload job")
		}
		s := summary
		rec.job.ResultSummary = &s
		rec.job.PreviewVersion++
		version = rec.job.PreviewVersion
		return nil
	})
	return version, err
}

func (d *DataSource) MarkJobConfirmed(_ context.Context, jobID, actor string, confirmedAt time.Time) (bool, error) {
	if err := d.fault("MarkJobConfirmed"); err != nil {
		return false, err
	}
	claimed := false
	err := d.with(func(st *store) error {
		rec, ok := st.liveJob(jobID)
		if !ok || !rec.job.CanConfirm() {
			return nil
		}
		at := confirmedAt
		by := actor
		rec.job.IsConfirmed = true
		rec.job.ConfirmedAt = &at
		rec.job.ConfirmedBy = &by
		claimed = true
		return nil
	})
	return claimed, err
}

func (d *DataSource) SoftDeleteUploadJobs(_ context.Context, jobIDs []string) (int64, error) {
	if err := d.fault("SoftDeleteUploadJobs"); err != nil {
		return 0, err
	}
	var n int64
	err := d.with(func(st *store) error {
		now := time.Now().UTC()
		for _, id := range jobIDs {
			rec, ok := st.liveJob(id)
			if !ok || rec.job.Status == model.JobStatusRunning {
				continue
			}
			at := now
			rec.deletedAt = &at
			n++
		}
		return nil
	})
	return n, err
}

// Preview rows

func (d *DataSource) InsertPreviewRows(_ context.Context, rows []model.PreviewRow) error {
	if !d.inTx {
		return errNoTx
	}
	if err := d.fault("InsertPreviewRows"); err != nil {
		return err
	}
	st := d.sh.st
	for _, r := range rows {
		if r.Outcome == nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "preview row without status", nil)
		}
		m, ok := st.rows[r.JobID]
		if !ok {
			m = map[int]model.PreviewRow{}
			st.rows[r.JobID] = m
		}
		if _, dup := m[r.RowIndex]; dup {
			return conflict("preview row")
		}
		m[r.RowIndex] = r
	}
	return nil
}

func (d *DataSource) GetPreviewRows(ctx context.Context, jobID string) ([]model.PreviewRow, error) {
	return d.GetPreviewRowsByStatus(ctx, jobID)
}

// GetPreviewRowsByStatus returns every row when no status is given.
func (d *DataSource) GetPreviewRowsByStatus(_ context.Context, jobID string, statuses ...model.RowStatus) ([]model.PreviewRow, error) {
	if err := d.fault("GetPreviewRows"); err != nil {
		return nil, err
	}
	want := map[model.RowStatus]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	out := []model.PreviewRow{}
	err := d.with(func(st *store) error {
		for _, r := range st.rows[jobID] {
			if len(want) == 0 || want[r.Status()] {
				out = append(out, r)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, err
}

func (d *DataSource) UpdatePreviewRow(_ context.Context, row model.PreviewRow) (bool, error) {
	if err := d.fault("UpdatePreviewRow"); err != nil {
		return false, err
	}
	updated := false
	err := d.with(func(st *store) error {
		current, ok := st.rows[row.JobID][row.RowIndex]
		if !ok || current.Revision != row.Revision {
			return nil
		}
		row.Revision++
		st.rows[row.JobID][row.RowIndex] = row
		updated = true
		return nil
	})
	return updated, err
}

// Vouchers

func (d *DataSource) FindVoucherByNaturalKey(_ context.Context, key model.NaturalKey) (*model.Voucher, error) {
	if err := d.fault("FindVoucherByNaturalKey"); err != nil {
		return nil, err
	}
	var out *model.Voucher
	err := d.with(func(st *store) error {
		if id, ok := st.voucherByKey[key.String()]; ok {
			v := st.vouchers[id]
			out = &v
		}
		return nil
	})
	return out, err
}

func (d *DataSource) InsertVoucher(_ context.Context, v *model.Voucher) error {
	if err := d.fault("InsertVoucher"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		key := v.NaturalKey().String()
		if _, ok := st.voucherByKey[key]; ok {
			return conflict("voucher")
		}
		if v.VoucherID == "" {
			v.VoucherID = model.GenerateUUIDWithSuffix("vch")
		}
		st.versionSeq++
		now := time.Now().UTC()
		v.Version = st.versionSeq
		v.CreatedAt = now
		v.UpdatedAt = now
		st.vouchers[v.VoucherID] = *v
		st.voucherByKey[key] = v.VoucherID
		return nil
	})
}

func (d *DataSource) UpdateVoucherIfVersion(_ context.Context, v *model.Voucher, baseVersion int64) (bool, error) {
	if err := d.fault("UpdateVoucherIfVersion"); err != nil {
		return false, err
	}
	updated := false
	err := d.with(func(st *store) error {
		current, ok := st.vouchers[v.VoucherID]
		if !ok || current.Version != baseVersion {
			return nil
		}
		st.versionSeq++
		current.ItemName = v.ItemName
		current.Quantity = v.Quantity
		current.UnitPrice = v.UnitPrice
		current.SupplyAmount = v.SupplyAmount
		current.VatAmount = v.VatAmount
		current.TotalAmount = v.TotalAmount
		current.Memo = v.Memo
		current.SourceJobID = v.SourceJobID
		current.Version = st.versionSeq
		current.UpdatedAt = time.Now().UTC()
		st.vouchers[v.VoucherID] = current
		v.Version = current.Version
		v.UpdatedAt = current.UpdatedAt
		updated = true
		return nil
	})
	return updated, err
}

func (d *DataSource) CurrentVoucherVersion(_ context.Context) (int64, error) {
	if err := d.fault("CurrentVoucherVersion"); err != nil {
		return 0, err
	}
	var high int64
	err := d.with(func(st *store) error {
		for _, v := range st.vouchers {
			if v.Version > high {
				high = v.Version
			}
		}
		return nil
	})
	return high, err
}

// Vouchers returns a copy of every stored voucher ordered by id.
func (d *DataSource) Vouchers() []model.Voucher {
	out := []model.Voucher{}
	_ = d.with(func(st *store) error {
		for _, v := range st.vouchers {
			out = append(out, v)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].VoucherID < out[j].VoucherID })
	return out
}

// Counterparties

func (st *store) withAliases(cp model.Counterparty) model.Counterparty {
	aliases := []string{}
	for _, a := range st.aliases {
		if a.CounterpartyID == cp.CounterpartyID {
			aliases = append(aliases, a.Alias)
		}
	}
	sort.Strings(aliases)
	cp.Aliases = aliases
	return cp
}

func (d *DataSource) ListCounterparties(_ context.Context) ([]model.Counterparty, error) {
	if err := d.fault("ListCounterparties"); err != nil {
		return nil, err
	}
	out := []model.Counterparty{}
	err := d.with(func(st *store) error {
		for _, cp := range st.counterparties {
			out = append(out, st.withAliases(cp))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (d *DataSource) GetCounterparty(_ context.Context, counterpartyID string) (*model.Counterparty, error) {
	if err := d.fault("GetCounterparty"); err != nil {
		return nil, err
	}
	var out *model.Counterparty
	err := d.with(func(st *store) error {
		cp, ok := st.counterparties[counterpartyID]
		if !ok {
			return notFound("counterparty")
		}
		cp = st.withAliases(cp)
		out = &cp
		return nil
	})
	return out, err
}

func (d *DataSource) FindCounterpartyByName(_ context.Context, normalizedName string) (*model.Counterparty, error) {
	if err := d.fault("FindCounterpartyByName"); err != nil {
		return nil, err
	}
	var out *model.Counterparty
	err := d.with(func(st *store) error {
		if id, ok := st.cpByName[normalizedName]; ok {
			cp := st.withAliases(st.counterparties[id])
			out = &cp
		}
		return nil
	})
	return out, err
}

func (d *DataSource) FindAliasOwner(_ context.Context, normalizedAlias string) (*model.CounterpartyAlias, error) {
	if err := d.fault("FindAliasOwner"); err != nil {
		return nil, err
	}
	var out *model.CounterpartyAlias
	err := d.with(func(st *store) error {
		if a, ok := st.aliases[normalizedAlias]; ok {
			out = &a
		}
		return nil
	})
	return out, err
}

func (d *DataSource) CreateCounterparty(_ context.Context, cp *model.Counterparty) error {
	if err := d.fault("CreateCounterparty"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		norm := model.NormalizeName(cp.Name)
		if _, ok := st.cpByName[norm]; ok {
			return conflict("counterparty")
		}
		if cp.CounterpartyID == "" {
			cp.CounterpartyID = model.GenerateUUIDWithSuffix("cp")
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		stored := *cp
		stored.Aliases = nil
		st.counterparties[cp.CounterpartyID] = stored
		st.cpByName[norm] = cp.CounterpartyID
		return nil
	})
}

func (d *DataSource) CreateCounterpartyAlias(_ context.Context, alias *model.CounterpartyAlias) error {
	if err := d.fault("CreateCounterpartyAlias"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		if _, ok := st.counterparties[alias.CounterpartyID]; !ok {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "counterparty alias references a missing record", nil)
		}
		norm := model.NormalizeName(alias.Alias)
		if _, ok := st.aliases[norm]; ok {
			return conflict("counterparty alias")
		}
		if alias.CreatedAt.IsZero() {
			alias.CreatedAt = time.Now().UTC()
		}
		st.aliases[norm] = *alias
		return nil
	})
}

// Period locks

func (d *DataSource) GetPeriodLock(_ context.Context, ym model.YearMonth) (*model.PeriodLock, error) {
	if err := d.fault("GetPeriodLock"); err != nil {
		return nil, err
	}
	var out *model.PeriodLock
	err := d.with(func(st *store) error {
		if l, ok := st.locks[ym]; ok {
			out = &l
		}
		return nil
	})
	return out, err
}

func (d *DataSource) ListPeriodLocks(_ context.Context, year string) ([]model.PeriodLock, error) {
	if err := d.fault("ListPeriodLocks"); err != nil {
		return nil, err
	}
	out := []model.PeriodLock{}
	err := d.with(func(st *store) error {
		for ym, l := range st.locks {
			if strings.HasPrefix(string(ym), year+"-") {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, err
}

func (d *DataSource) LockedMonths(_ context.Context, months []model.YearMonth) (map[model.YearMonth]bool, error) {
	if err := d.fault("LockedMonths"); err != nil {
		return nil, err
	}
	locked := map[model.YearMonth]bool{}
	err := d.with(func(st *store) error {
		if months == nil {
			for ym, l := range st.locks {
				if l.IsLocked() {
					locked[ym] = true
				}
			}
			return nil
		}
		for _, ym := range months {
			if l, ok := st.locks[ym]; ok && l.IsLocked() {
				locked[ym] = true
			}
		}
		return nil
	})
	return locked, err
}

func (d *DataSource) UpsertPeriodLock(_ context.Context, lock model.PeriodLock) error {
	if err := d.fault("UpsertPeriodLock"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		st.locks[lock.YearMonth] = lock
		return nil
	})
}

// AcquirePeriodGuard needs no work here: every transaction already holds
// the store mutex.
func (d *DataSource) AcquirePeriodGuard(_ context.Context, _ []model.YearMonth, _ bool) error {
	if !d.inTx {
		return errNoTx
	}
	return d.fault("AcquirePeriodGuard")
}

// Audit logs

func (d *DataSource) RecordAuditLogs(_ context.Context, entries ...model.AuditLogEntry) error {
	if err := d.fault("RecordAuditLogs"); err != nil {
		return err
	}
	return d.with(func(st *store) error {
		st.audit = append(st.audit, entries...)
		return nil
	})
}

func (d *DataSource) ListAuditLogs(_ context.Context, targetType, targetPrefix string, limit int) ([]model.AuditLogEntry, error) {
	if err := d.fault("ListAuditLogs"); err != nil {
		return nil, err
	}
	out := []model.AuditLogEntry{}
	err := d.with(func(st *store) error {
		for i := len(st.audit) - 1; i >= 0 && len(out) < limit; i-- {
			e := st.audit[i]
			if e.TargetType == targetType && strings.HasPrefix(e.TargetID, targetPrefix) {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

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
	"regexp"
	"strings"
	"time"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/internal/cache"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const auditLogLimit = 500

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// PeriodGuard answers whether a year-month is closed. It is a read-only
// snapshot; a month with no stored lock is open.
type PeriodGuard struct {
	locked map[model.YearMonth]bool
}

// NewPeriodGuard builds a guard over the given set of locked months.
func NewPeriodGuard(locked map[model.YearMonth]bool) PeriodGuard {
	return PeriodGuard{locked: locked}
}

func (g PeriodGuard) IsLocked(ym model.YearMonth) bool {
	return g.locked[ym]
}

func loadPeriodGuard(ctx context.Context, ds database.IDataSource) (PeriodGuard, error) {
	locked, err := ds.LockedMonths(ctx, nil)
	if err != nil {
		return PeriodGuard{}, err
	}
	return NewPeriodGuard(locked), nil
}

func periodCacheKey(year string) string {
	return "period-locks:" + year
}

func parseYear(year string) (string, error) {
	year = strings.TrimSpace(year)
	if !yearPattern.MatchString(year) {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, "year must be four digits", nil)
	}
	return year, nil
}

// ListLocks returns all twelve months of a year, stored locks merged with
// implicit open months. Results are cached per year until a lock changes.
func (t *Tally) ListLocks(ctx context.Context, year string) ([]model.PeriodLock, error) {
	ctx, span := tracer.Start(ctx, "ListLocks")
	defer span.End()

	year, err := parseYear(year)
	if err != nil {
		return nil, err
	}

	var cached []model.PeriodLock
	if t.cache != nil {
		err := t.cache.Get(ctx, periodCacheKey(year), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logrus.Warnf("period lock cache read failed for %s: %v", year, err)
		}
	}

	stored, err := t.datasource.ListPeriodLocks(ctx, year)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	byMonth := make(map[model.YearMonth]model.PeriodLock, len(stored))
	for _, l := range stored {
		byMonth[l.YearMonth] = l
	}

	y, _ := time.Parse("2006", year)
	locks := make([]model.PeriodLock, 0, 12)
	for _, ym := range model.MonthsOfYear(y.Year()) {
		if l, ok := byMonth[ym]; ok {
			locks = append(locks, l)
		} else {
			locks = append(locks, model.OpenPeriod(ym))
		}
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, periodCacheKey(year), locks, t.settings.PeriodLockTTL); err != nil {
			logrus.Warnf("period lock cache write failed for %s: %v", year, err)
		}
	}
	return locks, nil
}

func (t *Tally) invalidatePeriodCache(ctx context.Context, ym model.YearMonth) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Delete(ctx, periodCacheKey(ym.Year())); err != nil {
		logrus.Errorf("failed to invalidate period lock cache for %s: %v", ym, err)
	}
}

// CreateLock closes a month. It takes the exclusive period guard, so it waits
// for confirmations writing into that month and later ones see the lock.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - yearMonth string: The month to lock, YYYY-MM.
// - description string: Free text shown next to the lock.
// - actor string: Who locks the month.
//
// Returns:
// - *model.PeriodLock: The stored lock.
// - error: CONFLICT when the month is already locked.
func (t *Tally) CreateLock(ctx context.Context, yearMonth, description, actor string) (*model.PeriodLock, error) {
	ctx, span := tracer.Start(ctx, "CreateLock")
	defer span.End()

	ym, err := model.ParseYearMonth(yearMonth)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	span.SetAttributes(attribute.String("year_month", string(ym)))

	var lock model.PeriodLock
	err = t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
		if err := tx.AcquirePeriodGuard(ctx, []model.YearMonth{ym}, true); err != nil {
			return err
		}
		current, err := tx.GetPeriodLock(ctx, ym)
		if err != nil {
			return err
		}
		if current != nil && current.IsLocked() {
			return apierror.NewAPIError(apierror.ErrConflict, "period "+string(ym)+" is already locked", nil)
		}

		now := time.Now().UTC()
		by := actor
		lock = model.PeriodLock{
			YearMonth:   ym,
			Status:      model.LockStatusLocked,
			Description: strings.TrimSpace(description),
			LockedBy:    &by,
			LockedAt:    &now,
		}
		if err := tx.UpsertPeriodLock(ctx, lock); err != nil {
			return err
		}
		return tx.RecordAuditLogs(ctx, model.NewAuditLogEntry(model.AuditPeriodLock, actor, model.AuditTargetPeriod, string(ym),
			map[string]interface{}{"description": lock.Description}))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	t.invalidatePeriodCache(ctx, ym)
	logrus.WithFields(logrus.Fields{"year_month": ym, "actor": actor}).Info("period locked")
	return &lock, nil
}

// ReleaseLock reopens a locked month. A reason is required and kept on the
// lock record and in the audit trail.
func (t *Tally) ReleaseLock(ctx context.Context, yearMonth, reason, actor string) (*model.PeriodLock, error) {
	ctx, span := tracer.Start(ctx, "ReleaseLock")
	defer span.End()

	ym, err := model.ParseYearMonth(yearMonth)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "a release reason is required", nil)
	}

	var lock model.PeriodLock
	err = t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
		if err := tx.AcquirePeriodGuard(ctx, []model.YearMonth{ym}, true); err != nil {
			return err
		}
		current, err := tx.GetPeriodLock(ctx, ym)
		if err != nil {
			return err
		}
		if current == nil || !current.IsLocked() {
			return apierror.NewAPIError(apierror.ErrConflict, "period "+string(ym)+" is not locked", nil)
		}

		now := time.Now().UTC()
		by := actor
		lock = *current
		lock.Status = model.LockStatusOpen
		lock.ReleasedBy = &by
		lock.ReleasedAt = &now
		lock.ReleaseReason = &reason
		if err := tx.UpsertPeriodLock(ctx, lock); err != nil {
			return err
		}
		return tx.RecordAuditLogs(ctx, model.NewAuditLogEntry(model.AuditPeriodUnlock, actor, model.AuditTargetPeriod, string(ym),
			map[string]interface{}{"reason": reason}))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	t.invalidatePeriodCache(ctx, ym)
	logrus.WithFields(logrus.Fields{"year_month": ym, "actor": actor}).Info("period released")
	return &lock, nil
}

// GetLockAuditLogs returns the lock and release history of a year, newest first.
func (t *Tally) GetLockAuditLogs(ctx context.Context, year string) ([]model.AuditLogEntry, error) {
	ctx, span := tracer.Start(ctx, "GetLockAuditLogs", trace.WithAttributes(attribute.String("year", year)))
	defer span.End()

	year, err := parseYear(year)
	if err != nil {
		return nil, err
	}
	return t.datasource.ListAuditLogs(ctx, model.AuditTargetPeriod, year+"-", auditLogLimit)
}

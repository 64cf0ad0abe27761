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
	"errors"
	"sort"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

// periodLockClass namespaces the advisory locks taken on year-months.
const periodLockClass = 7001

func scanPeriodLock(s rowScanner) (*model.PeriodLock, error) {
	l := &model.PeriodLock{}
	var lockedBy, releasedBy, reason sql.NullString
	var lockedAt, releasedAt sql.NullTime
	err := s.Scan(&l.YearMonth, &l.Status, &l.Description, &lockedBy, &lockedAt, &releasedBy, &releasedAt, &reason)
	if err != nil {
		return nil, err
	}
	l.LockedBy = nullString(lockedBy)
	l.LockedAt = nullTime(lockedAt)
	l.ReleasedBy = nullString(releasedBy)
	l.ReleasedAt = nullTime(releasedAt)
	l.ReleaseReason = nullString(reason)
	return l, nil
}

const periodLockColumns = `year_month, status, description, locked_by, locked_at, released_by, released_at, release_reason`

// GetPeriodLock returns the stored lock record of a month, or nil if the month was never locked.
func (d Datasource) GetPeriodLock(ctx context.Context, ym model.YearMonth) (*model.PeriodLock, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetPeriodLock")
	defer span.End()

	l, err := scanPeriodLock(d.db().QueryRowContext(ctx, `
		SELECT `+periodLockColumns+`
		FROM tally.period_locks
		WHERE year_month = $1
	`, string(ym)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "period lock")
	}
	return l, nil
}

func (d Datasource) ListPeriodLocks(ctx context.Context, year string) ([]model.PeriodLock, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "ListPeriodLocks")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, `
		SELECT `+periodLockColumns+`
		FROM tally.period_locks
		WHERE year_month LIKE $1
		ORDER BY year_month
	`, year+"-%")
	if err != nil {
		return nil, mapError(err, "period locks")
	}
	defer rows.Close()

	out := []model.PeriodLock{}
	for rows.Next() {
		l, err := scanPeriodLock(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan period lock", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over period locks", err)
	}
	return out, nil
}

// LockedMonths returns which of months are locked. A nil months slice asks
// for every locked month.
func (d Datasource) LockedMonths(ctx context.Context, months []model.YearMonth) (map[model.YearMonth]bool, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "LockedMonths")
	defer span.End()

	var (
		rows *sql.Rows
		err  error
	)
	if months == nil {
		rows, err = d.db().QueryContext(ctx, `SELECT year_month FROM tally.period_locks WHERE status = 'locked'`)
	} else {
		wanted := make([]string, len(months))
		for i, m := range months {
			wanted[i] = string(m)
		}
		rows, err = d.db().QueryContext(ctx, `
			SELECT year_month FROM tally.period_locks
			WHERE status = 'locked' AND year_month = ANY($1)
		`, pq.Array(wanted))
	}
	if err != nil {
		return nil, mapError(err, "period locks")
	}
	defer rows.Close()

	locked := map[model.YearMonth]bool{}
	for rows.Next() {
		var ym string
		if err := rows.Scan(&ym); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan period lock", err)
		}
		locked[model.YearMonth(ym)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over period locks", err)
	}
	return locked, nil
}

// UpsertPeriodLock creates the lock record of a month or replaces its state.
func (d Datasource) UpsertPeriodLock(ctx context.Context, lock model.PeriodLock) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "UpsertPeriodLock")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO tally.period_locks (`+periodLockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (year_month) DO UPDATE
		SET status = EXCLUDED.status, description = EXCLUDED.description,
			locked_by = EXCLUDED.locked_by, locked_at = EXCLUDED.locked_at,
			released_by = EXCLUDED.released_by, released_at = EXCLUDED.released_at,
			release_reason = EXCLUDED.release_reason
	`, string(lock.YearMonth), string(lock.Status), lock.Description, nullable(lock.LockedBy), lock.LockedAt,
		nullable(lock.ReleasedBy), lock.ReleasedAt, nullable(lock.ReleaseReason))
	return mapError(err, "period lock")
}

// AcquirePeriodGuard takes transaction scoped advisory locks on months in
// sorted order. Committing vouchers takes them shared, changing a lock takes
// them exclusive, so a lock change waits for in-flight commits and the other
// way round.
func (d Datasource) AcquirePeriodGuard(ctx context.Context, months []model.YearMonth, exclusive bool) error {
	if d.tx == nil {
		return errNoTx
	}
	ctx, span := otel.Tracer("tally.database").Start(ctx, "AcquirePeriodGuard")
	defer span.End()

	query := `SELECT pg_advisory_xact_lock_shared($1, hashtext($2))`
	if exclusive {
		query = `SELECT pg_advisory_xact_lock($1, hashtext($2))`
	}

	for _, ym := range sortedUniqueMonths(months) {
		if _, err := d.tx.ExecContext(ctx, query, periodLockClass, string(ym)); err != nil {
			return mapError(err, "period guard")
		}
	}
	return nil
}

func sortedUniqueMonths(months []model.YearMonth) []model.YearMonth {
	seen := make(map[model.YearMonth]bool, len(months))
	out := make([]model.YearMonth, 0, len(months))
	for _, m := range months {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

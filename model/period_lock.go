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

import "time"

type LockStatus string

const (
	LockStatusOpen   LockStatus = "open"
	LockStatusLocked LockStatus = "locked"
)

// PeriodLock closes a year-month to any voucher creation, update or deletion while locked.
// A month without a stored lock is open.
type PeriodLock struct {
	YearMonth     YearMonth  `json:"year_month"`
	Status        LockStatus `json:"status"`
	Description   string     `json:"description,omitempty"`
	LockedBy      *string    `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	ReleasedBy    *string    `json:"released_by,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ReleaseReason *string    `json:"release_reason,omitempty"`
}

func (l PeriodLock) IsLocked() bool {
	return l.Status == LockStatusLocked
}

// OpenPeriod is the implicit lock record of a month that was never locked.
func OpenPeriod(ym YearMonth) PeriodLock {
	return PeriodLock{YearMonth: ym, Status: LockStatusOpen}
}

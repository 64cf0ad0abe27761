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
	"errors"
	"fmt"
	"strings"

	"github.com/jerry-enebeli/tally/model"
)

// Confirmation and rematch failures. Callers branch on them with errors.Is.
var (
	// ErrAlreadyConfirmed means the job was confirmed before; nothing was applied.
	ErrAlreadyConfirmed = errors.New("upload job is already confirmed")
	// ErrJobBusy means another confirm or rematch holds the job; retry later.
	ErrJobBusy = errors.New("upload job is being confirmed or rematched")
	// ErrJobNotReady means the job has not reached succeeded.
	ErrJobNotReady = errors.New("upload job has no preview to act on")
	// ErrPeriodLocked means a target month was locked after classification.
	ErrPeriodLocked = errors.New("period is locked")
	// ErrVoucherConflict means the ledger moved under the preview; re-upload.
	ErrVoucherConflict = errors.New("voucher changed after the preview was built")
	// ErrLedgerWrite is a transient write failure; the whole confirm may be retried.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// LockedRow is a row that could not be applied because its month is locked.
type LockedRow struct {
	RowIndex  int             `json:"row_index"`
	YearMonth model.YearMonth `json:"year_month"`
}

// PeriodLockedError lists the rows that target months locked at commit time.
type PeriodLockedError struct {
	Months []model.YearMonth
	Rows   []LockedRow
}

func (e *PeriodLockedError) Error() string {
	months := make([]string, len(e.Months))
	for i, m := range e.Months {
		months[i] = string(m)
	}
	return fmt.Sprintf("%s: %s (%d rows)", ErrPeriodLocked, strings.Join(months, ", "), len(e.Rows))
}

func (e *PeriodLockedError) Unwrap() error {
	return ErrPeriodLocked
}

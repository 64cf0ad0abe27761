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

import (
	"fmt"
	"time"
)

// JobKind tells which ledger an upload targets.
type JobKind string

const (
	JobKindSales    JobKind = "sales"
	JobKindPurchase JobKind = "purchase"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	return k == JobKindSales || k == JobKindPurchase
}

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusSucceeded, JobStatusFailed},
}

// IsTerminal reports whether no transition leaves s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ResultSummary is the count-by-status rollup of a classification pass.
type ResultSummary struct {
	Total     int `json:"total"`
	New       int `json:"new"`
	Update    int `json:"update"`
	Unchanged int `json:"unchanged"`
	Conflict  int `json:"conflict"`
	Locked    int `json:"locked"`
	Unmatched int `json:"unmatched"`
	Error     int `json:"error"`
	Excluded  int `json:"excluded"`
}

// Add counts one row with the given status.
func (s *ResultSummary) Add(status RowStatus) {
	s.Total++
	switch status {
	case RowStatusNew:
		s.New++
	case RowStatusUpdate:
		s.Update++
	case RowStatusUnchanged:
		s.Unchanged++
	case RowStatusConflict:
		s.Conflict++
	case RowStatusLocked:
		s.Locked++
	case RowStatusUnmatched:
		s.Unmatched++
	case RowStatusError:
		s.Error++
	case RowStatusExcluded:
		s.Excluded++
	}
}

// SummarizeRows builds a ResultSummary from a full row set.
func SummarizeRows(rows []PreviewRow) ResultSummary {
	var s ResultSummary
	for _, row := range rows {
		s.Add(row.Status())
	}
	return s
}

// UploadJob is one uploaded spreadsheet and the state of its processing.
type UploadJob struct {
	JobID           string         `json:"job_id"`
	Kind            JobKind        `json:"kind"`
	Status          JobStatus      `json:"status"`
	Progress        int            `json:"progress"`
	FileName        string         `json:"file_name"`
	ObjectKey       string         `json:"-"`
	ResultSummary   *ResultSummary `json:"result_summary,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	IsConfirmed     bool           `json:"is_confirmed"`
	ConfirmedAt     *time.Time     `json:"confirmed_at,omitempty"`
	ConfirmedBy     *string        `json:"confirmed_by,omitempty"`
	SnapshotVersion int64          `json:"-"`
	PreviewVersion  int            `json:"preview_version"`
	CreatedBy       string         `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Transition moves the job to next, refusing moves the state machine does not allow.
func (j *UploadJob) Transition(next JobStatus) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, next)
	}
	j.Status = next
	return nil
}

// SetProgress records progress while running. It never moves backwards and
// reports whether the stored value changed.
func (j *UploadJob) SetProgress(p int) bool {
	if j.Status != JobStatusRunning {
		return false
	}
	if p > 100 {
		p = 100
	}
	if p <= j.Progress {
		return false
	}
	j.Progress = p
	return true
}

// CanConfirm reports whether the job is in the state confirmation expects.
func (j *UploadJob) CanConfirm() bool {
	return j.Status == JobStatusSucceeded && !j.IsConfirmed
}

// UnmatchedName aggregates the rows of a job that share an unresolved counterparty name.
type UnmatchedName struct {
	Name        string   `json:"name"`
	RowCount    int      `json:"row_count"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// JobDetail is a job with its preview rows.
type JobDetail struct {
	UploadJob
	Rows                    []PreviewRow    `json:"rows"`
	UnmatchedCounterparties []UnmatchedName `json:"unmatched_counterparties"`
}

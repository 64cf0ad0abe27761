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
	"encoding/json"
	"time"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

const jobColumns = `job_id, kind, status, progress, file_name, object_key, result_summary, error_message,
	is_confirmed, confirmed_at, confirmed_by, snapshot_version, preview_version, created_by,
	created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUploadJob(s rowScanner) (*model.UploadJob, error) {
	job := &model.UploadJob{}
	var summary []byte
	var errMsg, confirmedBy sql.NullString
	var confirmedAt, startedAt, completedAt sql.NullTime

	err := s.Scan(
		&job.JobID, &job.Kind, &job.Status, &job.Progress, &job.FileName, &job.ObjectKey,
		&summary, &errMsg, &job.IsConfirmed, &confirmedAt, &confirmedBy,
		&job.SnapshotVersion, &job.PreviewVersion, &job.CreatedBy,
		&job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(summary) > 0 {
		job.ResultSummary = &model.ResultSummary{}
		if err := json.Unmarshal(summary, job.ResultSummary); err != nil {
			return nil, err
		}
	}
	job.ErrorMessage = nullString(errMsg)
	job.ConfirmedBy = nullString(confirmedBy)
	job.ConfirmedAt = nullTime(confirmedAt)
	job.StartedAt = nullTime(startedAt)
	job.CompletedAt = nullTime(completedAt)
	return job, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// CreateUploadJob records a queued job.
func (d Datasource) CreateUploadJob(ctx context.Context, job *model.UploadJob) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "CreateUploadJob")
	defer span.End()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := d.db().ExecContext(ctx, `
		INSERT INTO tally.upload_jobs (job_id, kind, status, progress, file_name, object_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.JobID, job.Kind, job.Status, job.Progress, job.FileName, job.ObjectKey, job.CreatedBy, job.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return mapError(err, "upload job")
	}
	return nil
}

// GetUploadJob returns a job that has not been deleted.
func (d Datasource) GetUploadJob(ctx context.Context, jobID string) (*model.UploadJob, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetUploadJob")
	defer span.End()

	job, err := scanUploadJob(d.db().QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM tally.upload_jobs
		WHERE job_id = $1 AND deleted_at IS NULL
	`, jobID))
	if err != nil {
		return nil, mapError(err, "upload job")
	}
	return job, nil
}

// GetUploadJobForUpdate reads a job and holds its row lock until the
// surrounding transaction ends.
func (d Datasource) GetUploadJobForUpdate(ctx context.Context, jobID string) (*model.UploadJob, error) {
	if d.tx == nil {
		return nil, errNoTx
	}
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetUploadJobForUpdate")
	defer span.End()

	job, err := scanUploadJob(d.tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM tally.upload_jobs
		WHERE job_id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, jobID))
	if err != nil {
		return nil, mapError(err, "upload job")
	}
	return job, nil
}

func (d Datasource) ListUploadJobs(ctx context.Context, limit, offset int) ([]model.UploadJob, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "ListUploadJobs")
	defer span.End()

	rows, err := d.db().QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM tally.upload_jobs
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, job_id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, mapError(err, "upload jobs")
	}
	defer rows.Close()

	jobs := []model.UploadJob{}
	for rows.Next() {
		job, err := scanUploadJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan upload job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over upload jobs", err)
	}
	return jobs, nil
}

// GetStuckUploadJobs returns live jobs that have been queued, or running,
// for longer than threshold, oldest first.
func (d Datasource) GetStuckUploadJobs(ctx context.Context, threshold time.Duration, limit int) ([]model.UploadJob, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "GetStuckUploadJobs")
	defer span.End()

	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := d.db().QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM tally.upload_jobs
		WHERE deleted_at IS NULL
		AND ((status = 'queued' AND created_at < $1) OR (status = 'running' AND started_at < $1))
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		return nil, mapError(err, "upload jobs")
	}
	defer rows.Close()

	jobs := []model.UploadJob{}
	for rows.Next() {
		job, err := scanUploadJob(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan upload job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over upload jobs", err)
	}
	return jobs, nil
}

// StartUploadJob moves a queued job to running and records the ledger
// snapshot the classification pass compares against. It returns false when
// the job was not queued, including when it was deleted in the meantime.
func (d Datasource) StartUploadJob(ctx context.Context, jobID string, snapshotVersion int64) (bool, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "StartUploadJob")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE tally.upload_jobs
		SET status = 'running', started_at = NOW(), snapshot_version = $2, progress = 0
		WHERE job_id = $1 AND status = 'queued' AND deleted_at IS NULL
	`, jobID, snapshotVersion)
	if err != nil {
		return false, mapError(err, "upload job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err, "upload job")
	}
	return n == 1, nil
}

// UpdateJobProgress raises the progress of a running job. Lower values are ignored.
func (d Datasource) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "UpdateJobProgress")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		UPDATE tally.upload_jobs
		SET progress = GREATEST(progress, LEAST($2, 100))
		WHERE job_id = $1 AND status = 'running'
	`, jobID, progress)
	return mapError(err, "upload job")
}

// CompleteUploadJob moves a running job to succeeded with its first summary.
func (d Datasource) CompleteUploadJob(ctx context.Context, jobID string, summary model.ResultSummary) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "CompleteUploadJob")
	defer span.End()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	res, err := d.db().ExecContext(ctx, `
		UPDATE tally.upload_jobs
		SET status = 'succeeded', progress = 100, result_summary = $2, completed_at = NOW(),
			preview_version = preview_version + 1, error_message = NULL
		WHERE job_id = $1 AND status = 'running'
	`, jobID, summaryJSON)
	if err != nil {
		return mapError(err, "upload job")
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return apierror.NewAPIError(apierror.ErrConflict, "upload job "+jobID+" is not running", nil)
	}
	return nil
}

// FailUploadJob moves a queued or running job to failed.
func (d Datasource) FailUploadJob(ctx context.Context, jobID string, message string) error {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "FailUploadJob")
	defer span.End()

	_, err := d.db().ExecContext(ctx, `
		UPDATE tally.upload_jobs
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE job_id = $1 AND status IN ('queued', 'running')
	`, jobID, message)
	return mapError(err, "upload job")
}

// UpdateJobSummary replaces the summary of a succeeded, unconfirmed job and
// returns the new preview version.
func (d Datasource) UpdateJobSummary(ctx context.Context, jobID string, summary model.ResultSummary) (int, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "UpdateJobSummary")
	defer span.End()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, err
	}

	var version int
	err = d.db().QueryRowContext(ctx, `
		UPDATE tally.upload_jobs
		SET result_summary = $2, preview_version = preview_version + 1
		WHERE job_id = $1 AND status = 'succeeded' AND is_confirmed = FALSE
		RETURNING preview_version
	`, jobID, summaryJSON).Scan(&version)
	if err != nil {
		return 0, mapError(err, "upload job")
	}
	return version, nil
}

// MarkJobConfirmed claims the confirmation of a job. Only one caller can
// ever get true for a given job.
func (d Datasource) MarkJobConfirmed(ctx context.Context, jobID, actor string, confirmedAt time.Time) (bool, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "MarkJobConfirmed")
	defer span.End()

	res, err := d.db().ExecContext(ctx, `
		UPDATE tally.upload_jobs
		SET is_confirmed = TRUE, confirmed_at = $2, confirmed_by = $3
		WHERE job_id = $1 AND status = 'succeeded' AND is_confirmed = FALSE AND deleted_at IS NULL
	`, jobID, confirmedAt, actor)
	if err != nil {
		return false, mapError(err, "upload job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err, "upload job")
	}
	return n == 1, nil
}

// SoftDeleteUploadJobs stamps deleted_at on the given jobs, skipping running ones.
func (d Datasource) SoftDeleteUploadJobs(ctx context.Context, jobIDs []string) (int64, error) {
	ctx, span := otel.Tracer("tally.database").Start(ctx, "SoftDeleteUploadJobs")
	defer span.End()

	if len(jobIDs) == 0 {
		return 0, nil
	}

	res, err := d.db().ExecContext(ctx, `
		UPDATE tally.upload_jobs
		SET deleted_at = NOW()
		WHERE job_id = ANY($1) AND status <> 'running' AND deleted_at IS NULL
	`, pq.Array(jobIDs))
	if err != nil {
		return 0, mapError(err, "upload jobs")
	}
	return res.RowsAffected()
}

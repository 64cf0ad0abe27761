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
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// UploadVouchers stores an uploaded spreadsheet, records a queued job and
// schedules its processing. It returns as soon as the job is queued; callers
// poll GetJob for the outcome.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - kind model.JobKind: Whether the file holds sales or purchase vouchers.
// - fileName string: The name of the uploaded file; its extension selects the parser.
// - file io.Reader: The file content.
// - actor string: Who uploaded the file.
//
// Returns:
// - *model.UploadJob: The queued job.
// - error: INVALID_INPUT for a bad kind, an unsupported or oversized file.
func (t *Tally) UploadVouchers(ctx context.Context, kind model.JobKind, fileName string, file io.Reader, actor string) (*model.UploadJob, error) {
	ctx, span := tracer.Start(ctx, "UploadVouchers")
	defer span.End()

	if !kind.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "kind must be sales or purchase", nil)
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if !SupportedFile(fileName) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "only .csv and .xlsx files are accepted", nil)
	}

	limit := t.settings.MaxFileSizeBytes
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("file exceeds %d bytes", limit), nil)
	}
	if len(data) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "file is empty", nil)
	}

	job := &model.UploadJob{
		JobID:     model.GenerateUUIDWithSuffix("job"),
		Kind:      kind,
		Status:    model.JobStatusQueued,
		FileName:  fileName,
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	}
	job.ObjectKey = fmt.Sprintf("uploads/%s%s", job.JobID, strings.ToLower(filepath.Ext(fileName)))
	span.SetAttributes(attribute.String("job_id", job.JobID))

	if err := t.files.Put(ctx, job.ObjectKey, bytes.NewReader(data)); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := t.datasource.CreateUploadJob(ctx, job); err != nil {
		span.RecordError(err)
		if delErr := t.files.Delete(ctx, job.ObjectKey); delErr != nil {
			logrus.Errorf("failed to remove orphaned upload %s: %v", job.ObjectKey, delErr)
		}
		return nil, err
	}

	if err := t.queue.EnqueueIngest(ctx, job.JobID); err != nil {
		span.RecordError(err)
		t.failJob(ctx, job.JobID, fmt.Errorf("could not schedule processing: %w", err))
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "kind": kind, "file": fileName}).Info("upload queued")
	return job, nil
}

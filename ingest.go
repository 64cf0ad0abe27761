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
	"fmt"
	"time"

	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/notification"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	progressParsed     = 10
	progressClassified = 90

	failWriteTimeout = 10 * time.Second
)

// ProcessUploadJob moves a queued job to running, parses its file, classifies
// every row and stores the preview. Rows and the succeeded transition are
// written together, so a failed job never keeps a partial preview.
// A job that is no longer queued, for example because it was deleted or
// already picked up, is skipped without error.
func (t *Tally) ProcessUploadJob(ctx context.Context, jobID string) error {
	ctx, span := tracer.Start(ctx, "ProcessUploadJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID))

	snapshot, err := t.datasource.CurrentVoucherVersion(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	started, err := t.datasource.StartUploadJob(ctx, jobID, snapshot)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !started {
		logrus.WithField("job_id", jobID).Info("upload job is not queued, skipping")
		return nil
	}
	logrus.WithFields(logrus.Fields{"job_id": jobID, "status": model.JobStatusRunning}).Info("upload job started")

	summary, err := t.ingest(ctx, jobID, snapshot)
	if err != nil {
		span.RecordError(err)
		t.failJob(ctx, jobID, err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"job_id": jobID,
		"status": model.JobStatusSucceeded,
		"rows":   summary.Total,
	}).Info("upload job succeeded")
	return nil
}

func (t *Tally) ingest(ctx context.Context, jobID string, snapshot int64) (*model.ResultSummary, error) {
	job, err := t.datasource.GetUploadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	file, err := t.files.Open(ctx, job.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("uploaded file is unavailable: %w", err)
	}
	defer file.Close()

	sheet, err := ParseSpreadsheet(job.FileName, file, ParseOptions{
		HeaderScanRows: t.settings.HeaderScanRows,
		MaxRows:        t.settings.MaxRows,
	})
	if err != nil {
		return nil, err
	}
	t.reportProgress(ctx, jobID, progressParsed)

	pass, err := newClassifyPass(ctx, t.datasource, job, snapshot)
	if err != nil {
		return nil, err
	}

	rows := make([]model.PreviewRow, 0, len(sheet.Rows))
	step := len(sheet.Rows)/10 + 1
	for i, parsed := range sheet.Rows {
		row, err := pass.classify(ctx, parsed)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", parsed.Index, err)
		}
		rows = append(rows, row)
		if (i+1)%step == 0 {
			t.reportProgress(ctx, jobID, progressParsed+(progressClassified-progressParsed)*(i+1)/len(sheet.Rows))
		}
	}

	summary := model.SummarizeRows(rows)
	err = t.datasource.WithTx(ctx, func(tx database.IDataSource) error {
		if err := tx.InsertPreviewRows(ctx, rows); err != nil {
			return err
		}
		return tx.CompleteUploadJob(ctx, jobID, summary)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (t *Tally) reportProgress(ctx context.Context, jobID string, progress int) {
	if err := t.datasource.UpdateJobProgress(ctx, jobID, progress); err != nil {
		logrus.Warnf("failed to record progress for %s: %v", jobID, err)
	}
}

// failJob records a job-level failure and alerts the operators. The write
// outlives the caller's context, which is often the one that just expired.
// A job whose failure cannot be written is left to the recovery processor.
func (t *Tally) failJob(ctx context.Context, jobID string, cause error) {
	logrus.WithFields(logrus.Fields{"job_id": jobID, "status": model.JobStatusFailed}).Errorf("upload job failed: %v", cause)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	if err := t.datasource.FailUploadJob(writeCtx, jobID, cause.Error()); err != nil {
		logrus.Errorf("failed to mark job %s as failed: %v", jobID, err)
	}
	notification.NotifyError(fmt.Errorf("upload job %s failed: %w", jobID, cause))
}

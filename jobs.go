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
	"sort"
	"strings"

	"github.com/jerry-enebeli/tally/internal/apierror"
	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxSuggestions  = 3
)

// ListJobs returns one page of jobs, newest first. Pages start at 1.
func (t *Tally) ListJobs(ctx context.Context, page, pageSize int) ([]model.UploadJob, error) {
	ctx, span := tracer.Start(ctx, "ListJobs")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return t.datasource.ListUploadJobs(ctx, pageSize, (page-1)*pageSize)
}

// GetJob returns a job with its preview rows and the distinct counterparty
// names that did not resolve, each with close existing names to map it to.
func (t *Tally) GetJob(ctx context.Context, jobID string) (*model.JobDetail, error) {
	ctx, span := tracer.Start(ctx, "GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID))

	job, err := t.datasource.GetUploadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	detail := &model.JobDetail{UploadJob: *job, Rows: []model.PreviewRow{}, UnmatchedCounterparties: []model.UnmatchedName{}}
	if job.Status != model.JobStatusSucceeded {
		return detail, nil
	}

	rows, err := t.datasource.GetPreviewRows(ctx, jobID)
	if err != nil {
		return nil, err
	}
	detail.Rows = rows

	unmatched := unmatchedNames(rows)
	if len(unmatched) > 0 && !job.IsConfirmed {
		directory, err := loadDirectory(ctx, t.datasource)
		if err != nil {
			return nil, err
		}
		for i := range unmatched {
			unmatched[i].Suggestions = directory.Suggest(unmatched[i].Name, maxSuggestions)
		}
	}
	detail.UnmatchedCounterparties = unmatched
	return detail, nil
}

// unmatchedNames groups unmatched rows by normalized name, keeping the first
// spelling seen. Most frequent names come first.
func unmatchedNames(rows []model.PreviewRow) []model.UnmatchedName {
	index := map[string]int{}
	out := []model.UnmatchedName{}
	for _, row := range rows {
		if row.Status() != model.RowStatusUnmatched {
			continue
		}
		norm := model.NormalizeName(row.CounterpartyName)
		if i, ok := index[norm]; ok {
			out[i].RowCount++
			continue
		}
		index[norm] = len(out)
		out = append(out, model.UnmatchedName{Name: strings.TrimSpace(row.CounterpartyName), RowCount: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowCount > out[j].RowCount })
	return out
}

// BatchDeleteJobs soft-deletes jobs. Running jobs and unknown ids are skipped.
func (t *Tally) BatchDeleteJobs(ctx context.Context, jobIDs []string) (int64, error) {
	ctx, span := tracer.Start(ctx, "BatchDeleteJobs")
	defer span.End()

	seen := map[string]bool{}
	ids := make([]string, 0, len(jobIDs))
	for _, id := range jobIDs {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, apierror.NewAPIError(apierror.ErrInvalidInput, "job_ids must not be empty", nil)
	}

	deleted, err := t.datasource.SoftDeleteUploadJobs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"requested": len(ids), "deleted": deleted}).Info("upload jobs deleted")
	return deleted, nil
}

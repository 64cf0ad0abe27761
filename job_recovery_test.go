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
	"strings"
	"testing"
	"time"

	"github.com/jerry-enebeli/tally/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverStuckJobs_FailsJobWhoseFailureWasLost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	job, err := env.tally.UploadVouchers(ctx, model.JobKindSales, "f.csv",
		strings.NewReader(csvBody(csvLine("Acme", "2024-03-05", "S-1", 100))), "tester")
	require.NoError(t, err)

	env.ds.SetFault("InsertPreviewRows", errors.New("disk full"))
	env.ds.SetFault("FailUploadJob", errors.New("connection reset"))
	assert.Error(t, env.tally.ProcessUploadJob(ctx, job.JobID))

	got, err := env.tally.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)

	// Redelivery does not pick the job up again.
	env.ds.ClearFaults()
	require.NoError(t, env.tally.ProcessUploadJob(ctx, job.JobID))
	deleted, err := env.tally.BatchDeleteJobs(ctx, []string{job.JobID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	n, err := env.tally.RecoverStuckJobs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a job that only just started is left alone")

	n, err = env.tally.RecoverStuckJobs(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = env.tally.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "stuck in running")

	deleted, err = env.tally.BatchDeleteJobs(ctx, []string{job.JobID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestRecoverStuckJobs_LeavesFinishedJobsAlone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.counterparty(t, "Acme Trading")
	detail := env.ingest(t, csvBody(csvLine("Acme Trading", "2024-03-05", "S-1", 100)))

	n, err := env.tally.RecoverStuckJobs(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := env.tally.GetJob(ctx, detail.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, got.Status)
}

func TestRecoverStuckJobs_ListFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ds.SetFault("GetStuckUploadJobs", errors.New("connection reset"))
	_, err := env.tally.RecoverStuckJobs(context.Background(), time.Hour)
	assert.Error(t, err)
}

func TestFailJobOutlivesCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.tally.UploadVouchers(context.Background(), model.JobKindSales, "f.csv",
		strings.NewReader(csvBody(csvLine("Acme", "2024-03-05", "S-1", 100))), "tester")
	require.NoError(t, err)
	_, err = env.ds.StartUploadJob(context.Background(), job.JobID, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.tally.failJob(ctx, job.JobID, context.Canceled)

	got, err := env.tally.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestStuckJobRecoveryProcessor_StartStop(t *testing.T) {
	env := newTestEnv(t)
	p := NewStuckJobRecoveryProcessor(env.tally)
	assert.Equal(t, time.Hour, p.stuckThreshold)
	assert.Equal(t, time.Minute, p.pollInterval)
	assert.False(t, p.IsRunning())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Start(ctx)
	assert.True(t, p.IsRunning())

	p.Stop()
	assert.False(t, p.IsRunning())
	p.Stop()
}

func TestStuckJobRecoveryProcessor_SweepsOnTick(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.tally.UploadVouchers(context.Background(), model.JobKindSales, "f.csv",
		strings.NewReader(csvBody(csvLine("Acme", "2024-03-05", "S-1", 100))), "tester")
	require.NoError(t, err)

	p := NewStuckJobRecoveryProcessor(env.tally)
	p.pollInterval = 10 * time.Millisecond
	p.stuckThreshold = -time.Minute
	p.Start(context.Background())
	defer p.Stop()

	assert.Eventually(t, func() bool {
		got, err := env.tally.GetJob(context.Background(), job.JobID)
		return err == nil && got.Status == model.JobStatusFailed
	}, time.Second, 10*time.Millisecond)
}

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
	"sync"
	"time"

	"github.com/jerry-enebeli/tally/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	recoveryBatchSize  = 100
	recoveryMaxWorkers = 4
)

// StuckJobRecoveryProcessor periodically fails upload jobs that stayed
// queued or running longer than the configured threshold. Such jobs are left
// behind when a worker dies mid-ingest or cannot record its own failure.
type StuckJobRecoveryProcessor struct {
	tally          *Tally
	batchSize      int
	maxWorkers     int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewStuckJobRecoveryProcessor(t *Tally) *StuckJobRecoveryProcessor {
	return &StuckJobRecoveryProcessor{
		tally:          t,
		batchSize:      recoveryBatchSize,
		maxWorkers:     recoveryMaxWorkers,
		pollInterval:   t.settings.RecoveryInterval,
		stuckThreshold: t.settings.StuckJobThreshold,
		stopCh:         make(chan struct{}),
	}
}

func (p *StuckJobRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Stuck job recovery processor started")
}

func (p *StuckJobRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Stuck job recovery processor stopped")
}

func (p *StuckJobRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *StuckJobRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Stuck job recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Stuck job recovery processor stop signal received")
			return
		case <-ticker.C:
			if _, err := p.recoverWithThreshold(ctx, p.stuckThreshold); err != nil {
				logrus.Errorf("failed to recover stuck upload jobs: %v", err)
			}
		}
	}
}

// RecoverStuckJobs fails every queued or running job older than threshold
// and returns how many it found.
func (t *Tally) RecoverStuckJobs(ctx context.Context, threshold time.Duration) (int, error) {
	return NewStuckJobRecoveryProcessor(t).recoverWithThreshold(ctx, threshold)
}

func (p *StuckJobRecoveryProcessor) recoverWithThreshold(ctx context.Context, threshold time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "RecoverStuckJobs")
	defer span.End()

	jobs, err := p.tally.datasource.GetStuckUploadJobs(ctx, threshold, p.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("stuck_jobs", len(jobs)))
	if len(jobs) == 0 {
		return 0, nil
	}

	logrus.Infof("Processing %d stuck upload jobs with %d workers (threshold=%v)", len(jobs), p.maxWorkers, threshold)

	sem := make(chan struct{}, p.maxWorkers)
	var batchWg sync.WaitGroup
	for _, job := range jobs {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(job model.UploadJob) {
			defer batchWg.Done()
			defer func() { <-sem }()
			p.failStuckJob(ctx, job, threshold)
		}(job)
	}
	batchWg.Wait()
	return len(jobs), nil
}

func (p *StuckJobRecoveryProcessor) failStuckJob(ctx context.Context, job model.UploadJob, threshold time.Duration) {
	stuckIn := job.Status
	if err := job.Transition(model.JobStatusFailed); err != nil {
		logrus.Warnf("skipping stuck job %s: %v", job.JobID, err)
		return
	}
	p.tally.failJob(ctx, job.JobID, fmt.Errorf("job stuck in %s for more than %v", stuckIn, threshold))
}

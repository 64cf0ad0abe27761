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
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jerry-enebeli/tally/config"
	redis_db "github.com/jerry-enebeli/tally/internal/redis-db"
	"github.com/sirupsen/logrus"
)

// IngestQueue schedules the background processing of an upload job.
type IngestQueue interface {
	EnqueueIngest(ctx context.Context, jobID string) error
}

// IngestPayload is the body of an ingest task.
type IngestPayload struct {
	JobID string `json:"job_id"`
}

// Queue represents the asynq queue ingest tasks are sent to.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	name      string
}

// QueueRedisOpt turns the configured redis address into asynq connection options.
func QueueRedisOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the redis address cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opts, err := QueueRedisOpt(conf)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(opts),
		Inspector: asynq.NewInspector(opts),
		name:      conf.Queue.IngestQueue,
	}, nil
}

// EnqueueIngest sends one ingest task per job. The task id is the job id so
// a job is never scheduled twice, and the task is not retried: a file that
// failed to parse once will fail again.
func (q *Queue) EnqueueIngest(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(IngestPayload{JobID: jobID})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(q.name),
		asynq.MaxRetry(0),
	}
	task := asynq.NewTask(q.name, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		logrus.Errorf("failed to enqueue ingest for %s: %v", jobID, err)
		return err
	}
	logrus.Infof(" [*] Successfully enqueued ingest: %s (queue %s)", jobID, info.Queue)
	return nil
}

// HandleIngestTask is the asynq handler for ingest tasks. Failures are
// recorded on the job, so the task itself is never retried.
func (t *Tally) HandleIngestTask(ctx context.Context, task *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid ingest payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := t.ProcessUploadJob(ctx, payload.JobID); err != nil {
		return fmt.Errorf("ingest %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}
	return nil
}

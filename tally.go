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
	"embed"
	"time"

	"github.com/jerry-enebeli/tally/config"
	"github.com/jerry-enebeli/tally/database"
	"github.com/jerry-enebeli/tally/internal/cache"
	"github.com/jerry-enebeli/tally/internal/filestore"
	redis_db "github.com/jerry-enebeli/tally/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tally")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Tally is the upload reconciliation engine. It owns the path from an
// uploaded spreadsheet to confirmed vouchers in the ledger.
type Tally struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	cache      cache.Cache
	files      filestore.Store
	queue      IngestQueue
	settings   Settings
}

// Settings are the tunables the engine reads from configuration.
type Settings struct {
	ConfirmLockTTL   time.Duration
	PeriodLockTTL    time.Duration
	MaxFileSizeBytes int64
	MaxRows          int
	HeaderScanRows   int

	// StuckJobThreshold is how long a job may sit queued or running before
	// the recovery processor fails it.
	StuckJobThreshold time.Duration
	RecoveryInterval  time.Duration
}

// Dependencies are the collaborators of the engine that talk to the outside world.
type Dependencies struct {
	Redis redis.UniversalClient
	Cache cache.Cache
	Files filestore.Store
	Queue IngestQueue
}

// SettingsFromConfig derives engine settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Configuration) Settings {
	return Settings{
		ConfirmLockTTL:   time.Duration(cfg.Confirm.LockTimeoutSec) * time.Second,
		PeriodLockTTL:    time.Duration(cfg.Cache.PeriodLockTTLSec) * time.Second,
		MaxFileSizeBytes: int64(cfg.Upload.MaxFileSizeMB) << 20,
		MaxRows:          cfg.Upload.MaxRows,
		HeaderScanRows:   cfg.Upload.HeaderScanRows,

		StuckJobThreshold: time.Duration(cfg.Queue.StuckJobThresholdSec) * time.Second,
		RecoveryInterval:  time.Duration(cfg.Queue.RecoveryIntervalSec) * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	if s.ConfirmLockTTL <= 0 {
		s.ConfirmLockTTL = 5 * time.Minute
	}
	if s.PeriodLockTTL <= 0 {
		s.PeriodLockTTL = 5 * time.Minute
	}
	if s.MaxFileSizeBytes <= 0 {
		s.MaxFileSizeBytes = 20 << 20
	}
	if s.MaxRows <= 0 {
		s.MaxRows = 20000
	}
	if s.HeaderScanRows <= 0 {
		s.HeaderScanRows = 10
	}
	if s.StuckJobThreshold <= 0 {
		s.StuckJobThreshold = time.Hour
	}
	if s.RecoveryInterval <= 0 {
		s.RecoveryInterval = time.Minute
	}
	return s
}

// NewTally initializes the engine from the loaded configuration: it connects
// to redis, builds the cache on the same client, opens the configured file
// store and the ingest queue.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Tally: A pointer to the newly created Tally instance.
// - error: An error if any of the initialization steps fail.
func NewTally(db database.IDataSource) (*Tally, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	files, err := filestore.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	queue, err := NewQueue(cfg)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Redis: redisClient.Client(),
		Cache: cache.NewCacheWithClient(redisClient.Client()),
		Files: files,
		Queue: queue,
	}
	return New(db, deps, SettingsFromConfig(cfg)), nil
}

// New builds an engine from explicit dependencies. Zero settings fall back to defaults.
func New(db database.IDataSource, deps Dependencies, settings Settings) *Tally {
	return &Tally{
		datasource: db,
		redis:      deps.Redis,
		cache:      deps.Cache,
		files:      deps.Files,
		queue:      deps.Queue,
		settings:   settings.withDefaults(),
	}
}

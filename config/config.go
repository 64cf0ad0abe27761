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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

var ConfigStore atomic.Value

// APIKey is an operator key restricted to a set of "<resource>:<action>" scopes.
type APIKey struct {
	Key    string   `json:"key"`
	Owner  string   `json:"owner"`
	Scopes []string `json:"scopes"`
}

type ServerConfig struct {
	SSL       bool     `json:"ssl" envconfig:"TALLY_SERVER_SSL"`
	Secure    bool     `json:"secure" envconfig:"TALLY_SERVER_SECURE"`
	SecretKey string   `json:"secret_key" envconfig:"TALLY_SERVER_SECRET_KEY"`
	Domain    string   `json:"domain" envconfig:"TALLY_SERVER_SSL_DOMAIN"`
	Email     string   `json:"ssl_email" envconfig:"TALLY_SERVER_SSL_EMAIL"`
	Port      string   `json:"port" envconfig:"TALLY_SERVER_PORT"`
	APIKeys   []APIKey `json:"api_keys" ignored:"true"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"TALLY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"TALLY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"TALLY_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	IngestQueue    string `json:"ingest_queue" envconfig:"TALLY_QUEUE_INGEST_QUEUE"`
	Concurrency    int    `json:"concurrency" envconfig:"TALLY_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"TALLY_QUEUE_MONITORING_PORT"`

	// Jobs queued or running longer than StuckJobThresholdSec are failed by
	// the recovery processor, which polls every RecoveryIntervalSec.
	StuckJobThresholdSec int `json:"stuck_job_threshold_sec" envconfig:"TALLY_QUEUE_STUCK_JOB_THRESHOLD_SEC"`
	RecoveryIntervalSec  int `json:"recovery_interval_sec" envconfig:"TALLY_QUEUE_RECOVERY_INTERVAL_SEC"`
}

type StorageConfig struct {
	Driver             string `json:"driver" envconfig:"TALLY_STORAGE_DRIVER"`
	LocalDir           string `json:"local_dir" envconfig:"TALLY_STORAGE_LOCAL_DIR"`
	S3Bucket           string `json:"s3_bucket" envconfig:"TALLY_STORAGE_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"TALLY_STORAGE_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"TALLY_STORAGE_S3_ENDPOINT"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"TALLY_STORAGE_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"TALLY_STORAGE_AWS_SECRET_ACCESS_KEY"`
}

type UploadConfig struct {
	MaxFileSizeMB  int `json:"max_file_size_mb" envconfig:"TALLY_UPLOAD_MAX_FILE_SIZE_MB"`
	MaxRows        int `json:"max_rows" envconfig:"TALLY_UPLOAD_MAX_ROWS"`
	HeaderScanRows int `json:"header_scan_rows" envconfig:"TALLY_UPLOAD_HEADER_SCAN_ROWS"`
}

type ConfirmConfig struct {
	LockTimeoutSec int `json:"lock_timeout_sec" envconfig:"TALLY_CONFIRM_LOCK_TIMEOUT_SEC"`
}

type CacheConfig struct {
	PeriodLockTTLSec int `json:"period_lock_ttl_sec" envconfig:"TALLY_CACHE_PERIOD_LOCK_TTL_SEC"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"TALLY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"TALLY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"TALLY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"TALLY_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"TALLY_PROJECT_NAME"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Storage         StorageConfig    `json:"storage"`
	Upload          UploadConfig     `json:"upload"`
	Confirm         ConfirmConfig    `json:"confirm"`
	Cache           CacheConfig      `json:"cache"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"TALLY_ENABLE_TELEMETRY"`
	PosthogKey      string           `json:"posthog_key" envconfig:"TALLY_POSTHOG_KEY"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("tally", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called tally.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Tally Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.setQueueDefaults()

	if err := cnf.setStorageDefaults(); err != nil {
		return err
	}

	if cnf.Upload.MaxFileSizeMB <= 0 {
		cnf.Upload.MaxFileSizeMB = 20
	}
	if cnf.Upload.MaxRows <= 0 {
		cnf.Upload.MaxRows = 20000
	}
	if cnf.Upload.HeaderScanRows <= 0 {
		cnf.Upload.HeaderScanRows = 10
	}
	if cnf.Confirm.LockTimeoutSec <= 0 {
		cnf.Confirm.LockTimeoutSec = 300
	}
	if cnf.Cache.PeriodLockTTLSec <= 0 {
		cnf.Cache.PeriodLockTTLSec = 300
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (cnf *Configuration) setQueueDefaults() {
	if cnf.Queue.IngestQueue == "" {
		cnf.Queue.IngestQueue = "upload:ingest"
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}
	if cnf.Queue.StuckJobThresholdSec <= 0 {
		cnf.Queue.StuckJobThresholdSec = 3600
	}
	if cnf.Queue.RecoveryIntervalSec <= 0 {
		cnf.Queue.RecoveryIntervalSec = 60
	}
}

func (cnf *Configuration) setStorageDefaults() error {
	cnf.Storage.Driver = strings.ToLower(strings.TrimSpace(cnf.Storage.Driver))
	switch cnf.Storage.Driver {
	case "":
		cnf.Storage.Driver = StorageDriverLocal
		fallthrough
	case StorageDriverLocal:
		if cnf.Storage.LocalDir == "" {
			cnf.Storage.LocalDir = "./uploads"
		}
	case StorageDriverS3:
		if cnf.Storage.S3Bucket == "" {
			return errors.New("s3 bucket is required when storage driver is s3")
		}
	default:
		return errors.New("storage driver must be local or s3")
	}
	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}

// Copyright 2026 Parsec DB, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package czar

import (
	"os"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is the czar's YAML configuration.
type Config struct {
	Name string `yaml:"name" default:"czar"`

	// ResultDb is the database holding result and message tables.
	ResultDb  string `yaml:"result_db" default:"qservResult"`
	ResultDSN string `yaml:"result_dsn"`
	QMetaDSN  string `yaml:"qmeta_dsn"`

	// ReplicationDSN points at the replication system's database, the
	// source of worker and replica topology.
	ReplicationDSN string `yaml:"replication_dsn"`

	// CssFile is the catalog snapshot the facade loads at startup.
	CssFile string `yaml:"css_file"`

	// HttpPort serves the proxy and worker-callback endpoints.
	HttpPort int `yaml:"http_port" default:"25080"`

	QdispPoolSize            int   `yaml:"qdisp_pool_size" default:"16"`
	QdispMaxPriority         int   `yaml:"qdisp_max_priority" default:"2"`
	QdispVectRunSizes        []int `yaml:"qdisp_vect_run_sizes"`
	QdispVectMinRunningSizes []int `yaml:"qdisp_vect_min_running_sizes"`

	MaxAttempts         int `yaml:"max_attempts" default:"5"`
	AttemptSleepSeconds int `yaml:"attempt_sleep_seconds" default:"5"`
	UberJobMaxChunks    int `yaml:"uber_job_max_chunks" default:"1000"`

	InteractiveChunkLimit int `yaml:"interactive_chunk_limit" default:"10"`
	DefaultScanRating     int `yaml:"default_scan_rating" default:"1"`
	SlowestScanRating     int `yaml:"slowest_scan_rating" default:"3"`

	ResultLimitBytes           uint64 `yaml:"result_limit_bytes" default:"5368709120"`
	SecondsBetweenQMetaUpdates int    `yaml:"seconds_between_qmeta_updates" default:"60"`

	WorkerResponseTimeoutSec int    `yaml:"worker_response_timeout_sec" default:"300"`
	WorkerMaxRetries         uint64 `yaml:"worker_max_retries" default:"2"`

	// NotifyWorkersOnRestart controls the CANCEL_AFTER_RESTART broadcast.
	NotifyWorkersOnRestart bool `yaml:"notify_workers_on_restart" default:"true"`
}

// LoadConfig reads and validates a czar configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading czar config")
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "applying config defaults")
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing czar config")
	}

	if cfg.ResultDSN == "" || cfg.QMetaDSN == "" {
		return nil, errors.New("czar config requires result_dsn and qmeta_dsn")
	}
	return cfg, nil
}

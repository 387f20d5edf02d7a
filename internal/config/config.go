// Copyright 2025 Tom Barlow
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

// Package config holds the runtime's process-level configuration:
// where workflow documents live and how often the trigger engine
// should tick. Process bootstrap beyond this is out of scope; this
// runtime has no profile/workspace/secrets layer to configure.
package config

import (
	"os"
	"strconv"
	"time"
)

// RuntimeConfig configures a single workflowengine process.
type RuntimeConfig struct {
	// WorkflowsDir is scanned at startup for *.jcwf documents.
	WorkflowsDir string
	// TickInterval is how often the trigger engine's Tick is invoked
	// while serving. Cron triggers are evaluated on this timer, not by
	// the OS scheduler.
	TickInterval time.Duration
	// MetricsAddr is the listen address for the Prometheus metrics
	// endpoint while serving. Empty disables the endpoint; metrics are
	// still collected in-process.
	MetricsAddr string
}

// DefaultRuntimeConfig returns the defaults used when no environment
// override is present.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		WorkflowsDir: "workflows",
		TickInterval: time.Second,
	}
}

// FromEnv builds a RuntimeConfig from environment variables, in the
// same WORKFLOWENGINE_*-prefixed style as internal/log.FromEnv:
//   - WORKFLOWENGINE_WORKFLOWS_DIR: directory to load *.jcwf files from
//   - WORKFLOWENGINE_TICK_INTERVAL_MS: trigger engine tick period, in milliseconds
//   - WORKFLOWENGINE_METRICS_ADDR: listen address for /metrics (e.g. ":9464"; empty disables)
func FromEnv() *RuntimeConfig {
	cfg := DefaultRuntimeConfig()

	if dir := os.Getenv("WORKFLOWENGINE_WORKFLOWS_DIR"); dir != "" {
		cfg.WorkflowsDir = dir
	}

	if ms := os.Getenv("WORKFLOWENGINE_TICK_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.TickInterval = time.Duration(n) * time.Millisecond
		}
	}

	if addr := os.Getenv("WORKFLOWENGINE_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	return cfg
}

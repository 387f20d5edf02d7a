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

package main

import (
	"fmt"
	"log/slog"

	"github.com/tombee/workflowengine/internal/config"
	wflog "github.com/tombee/workflowengine/internal/log"
	"github.com/tombee/workflowengine/pkg/registry"
)

func newLogger() *slog.Logger {
	return wflog.New(wflog.FromEnv())
}

// loadRegistry loads every *.jcwf document under dir. registry.LoadDirectory
// keeps going past files that fail to load; any such failure is returned
// here as an error, alongside the registry holding the documents that loaded.
func loadRegistry(dir string, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)
	if err := reg.LoadDirectory(dir); err != nil {
		return reg, fmt.Errorf("loading workflows from %s: %w", dir, err)
	}
	return reg, nil
}

// validateAll runs the validator across every loaded document, logs each
// failure, and reports whether every workflow passed.
func validateAll(reg *registry.Registry, logger *slog.Logger) bool {
	failures := reg.ValidateAll()
	ok := true
	for workflowID, errs := range failures {
		for _, e := range errs {
			logger.Error("validation failed", "workflow_id", workflowID, "error", e)
			ok = false
		}
	}
	return ok
}

func workflowsDirFlag() string {
	return config.FromEnv().WorkflowsDir
}

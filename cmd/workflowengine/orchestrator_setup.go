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
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/tombee/workflowengine/pkg/document"
	"github.com/tombee/workflowengine/pkg/executor"
	"github.com/tombee/workflowengine/pkg/executor/shell"
	"github.com/tombee/workflowengine/pkg/orchestrator"
	"github.com/tombee/workflowengine/pkg/registry"
)

// newConfiguredOrchestrator wires the executor registry (shell is the
// only bundled executor; script, remote-model-call, and internal task
// kinds have no implementation here) and builds an Orchestrator backed
// by reg's lookup. meterProvider may be nil for one-shot commands that
// don't expose metrics.
func newConfiguredOrchestrator(reg *registry.Registry, meterProvider metric.MeterProvider, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	execs := executor.NewRegistry()
	execs.Register(document.TaskShell, shell.New())

	return orchestrator.New(execs, reg.GetWorkflow, meterProvider, logger)
}

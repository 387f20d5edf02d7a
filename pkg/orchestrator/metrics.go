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

package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics bundles the instruments an Orchestrator emits, constructed
// from an injected meter provider rather than the global one.
type metrics struct {
	runsTotal      metric.Int64Counter
	tasksTotal     metric.Int64Counter
	taskDurationMs metric.Float64Histogram
}

func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	meter := provider.Meter("workflowengine/orchestrator")

	runsTotal, err := meter.Int64Counter(
		"workflowengine_runs_total",
		metric.WithDescription("workflow runs started, labeled by terminal state once known"),
	)
	if err != nil {
		return nil, err
	}

	tasksTotal, err := meter.Int64Counter(
		"workflowengine_tasks_total",
		metric.WithDescription("task instances reaching a terminal state, labeled by outcome"),
	)
	if err != nil {
		return nil, err
	}

	taskDurationMs, err := meter.Float64Histogram(
		"workflowengine_task_duration_ms",
		metric.WithDescription("wall-clock duration of a single task attempt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		runsTotal:      runsTotal,
		tasksTotal:     tasksTotal,
		taskDurationMs: taskDurationMs,
	}, nil
}

func (m *metrics) recordRunStart(ctx context.Context, workflowID string) {
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("event", "started"),
	))
}

func (m *metrics) recordRunComplete(ctx context.Context, workflowID, state string) {
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("event", "completed"),
		attribute.String("state", state),
	))
}

func (m *metrics) recordTaskOutcome(ctx context.Context, workflowID, taskID, outcome string, durationMs float64) {
	m.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("task_id", taskID),
		attribute.String("outcome", outcome),
	))
	m.taskDurationMs.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("task_id", taskID),
	))
}

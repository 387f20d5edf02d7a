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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/workflowengine/pkg/dataflow"
	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// executeTaskInstance runs a single task to a terminal state. Executor
// failures are retried with a linear backoff sleep (attempt number *
// LinearBackoffMillis), bounded by RetryPolicy.EffectiveMaxAttempts;
// AttemptCount is updated on every attempt. Failures whose error
// classifies as non-retryable stop immediately, as do dataflow
// resolution failures: inputs that cannot be resolved will not resolve
// on a second try either.
func (o *Orchestrator) executeTaskInstance(ctx context.Context, doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec, state *document.TaskInstanceState) {
	ctx, span := o.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("workflow_id", doc.ID),
		attribute.String("run_id", run.RunID),
		attribute.String("task_id", task.ID),
	))
	defer span.End()

	start := time.Now()

	resolver := dataflow.New(doc, run, o.logger)
	inputs, err := resolver.Resolve(task.ID)
	if err != nil {
		state.Kind = document.TaskFailed
		state.LastError = err.Error()
		state.CompletedAt = time.Now().UnixMilli()
		o.logger.Error("task failed: input resolution", "workflow_id", doc.ID, "run_id", run.RunID, "task_id", task.ID, "error", err)
		o.metrics.recordTaskOutcome(ctx, doc.ID, task.ID, "failed", float64(time.Since(start).Milliseconds()))
		return
	}
	state.InputValues = inputs

	maxAttempts := task.RetryPolicy.EffectiveMaxAttempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		state.AttemptCount = attempt
		if state.StartedAt == 0 {
			state.StartedAt = time.Now().UnixMilli()
		}

		lastErr = o.dispatchExecutor(doc, run, task, state)
		if lastErr == nil {
			if !state.Kind.IsTerminal() {
				state.Kind = document.TaskSucceeded
			}
			break
		}

		if !state.Kind.IsTerminal() {
			state.Kind = document.TaskFailed
		}
		state.LastError = lastErr.Error()

		if attempt == maxAttempts {
			break
		}
		var cls wferrors.Classifier
		if wferrors.As(lastErr, &cls) && !cls.IsRetryable() {
			break
		}

		backoff := time.Duration(attempt*task.RetryPolicy.LinearBackoffMillis) * time.Millisecond
		o.logger.Warn("task attempt failed, retrying", "workflow_id", doc.ID, "run_id", run.RunID, "task_id", task.ID, "attempt", attempt, "backoff_ms", backoff.Milliseconds(), "error", lastErr)
		if backoff > 0 {
			time.Sleep(backoff)
		}
		state.Kind = document.TaskRunning
	}

	state.CompletedAt = time.Now().UnixMilli()

	outcome := "succeeded"
	switch {
	case lastErr != nil:
		outcome = "failed"
		o.logger.Error("task failed", "workflow_id", doc.ID, "run_id", run.RunID, "task_id", task.ID, "attempts", state.AttemptCount, "error", lastErr)
	case state.Kind == document.TaskSkipped:
		outcome = "skipped"
	}
	o.metrics.recordTaskOutcome(ctx, doc.ID, task.ID, outcome, float64(time.Since(start).Milliseconds()))
}

// dispatchExecutor calls the executor registry, bounding the attempt
// with the task's timeout when one is declared. A timed-out executor
// goroutine is left to finish against a private copy of the state, so
// its late writes never race with the caller; no signal is sent to any
// external process it may have spawned.
func (o *Orchestrator) dispatchExecutor(doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec, state *document.TaskInstanceState) error {
	if task.TimeoutMillis <= 0 {
		return o.registry.Execute(doc, run, task, state)
	}

	scratch := cloneState(*state)
	done := make(chan error, 1)
	go func() {
		done <- o.registry.Execute(doc, run, task, &scratch)
	}()

	select {
	case err := <-done:
		*state = scratch
		return err
	case <-time.After(time.Duration(task.TimeoutMillis) * time.Millisecond):
		return &wferrors.ExecutorError{
			Kind:   wferrors.ExecutorTimeout,
			TaskID: task.ID,
			Detail: fmt.Sprintf("attempt exceeded %dms", task.TimeoutMillis),
		}
	}
}

func cloneState(s document.TaskInstanceState) document.TaskInstanceState {
	in := make(map[string]string, len(s.InputValues))
	for k, v := range s.InputValues {
		in[k] = v
	}
	out := make(map[string]string, len(s.OutputValues))
	for k, v := range s.OutputValues {
		out[k] = v
	}
	s.InputValues = in
	s.OutputValues = out
	return s
}

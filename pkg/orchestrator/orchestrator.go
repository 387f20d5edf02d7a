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

// Package orchestrator owns the main scheduling loop: wave-based
// ready-task selection, parallel dispatch within a wave, dataflow
// resolution, freshness-gated skipping, and per-run state accounting.
//
// Dynamic per-item fan-out (document.TaskModePerItem) is accepted by
// the document model and validator but is not expanded here: the
// orchestrator runs a PerItem task exactly like a Single one.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/workflowengine/pkg/dataflow"
	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
	"github.com/tombee/workflowengine/pkg/executor"
	"github.com/tombee/workflowengine/pkg/freshness"
)

// Orchestrator runs workflows to completion. The executor registry and
// the workflow lookup are explicit constructor dependencies; there is
// no package-level handle to either.
type Orchestrator struct {
	registry *executor.Registry
	logger   *slog.Logger

	lookupWorkflow func(id string) (*document.WorkflowDocument, bool)

	lastRunsMu sync.Mutex
	lastRuns   map[string]*document.WorkflowRun

	metrics *metrics
	tracer  trace.Tracer
}

// WorkflowLookup resolves a workflow id to its document, e.g.
// (*registry.Registry).GetWorkflow.
type WorkflowLookup func(id string) (*document.WorkflowDocument, bool)

// New creates an Orchestrator. meterProvider may be nil, in which case
// the global no-op provider is used.
func New(registry *executor.Registry, lookup WorkflowLookup, meterProvider metric.MeterProvider, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	m, err := newMetrics(meterProvider)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		registry:       registry,
		logger:         logger,
		lookupWorkflow: lookup,
		lastRuns:       make(map[string]*document.WorkflowRun),
		metrics:        m,
		tracer:         otel.Tracer("workflowengine/orchestrator"),
	}, nil
}

// LastRun returns the most recent snapshot taken for workflowID, if any.
func (o *Orchestrator) LastRun(workflowID string) (*document.WorkflowRun, bool) {
	o.lastRunsMu.Lock()
	defer o.lastRunsMu.Unlock()
	run, ok := o.lastRuns[workflowID]
	return run, ok
}

// RunWorkflowOnce executes workflowID to completion. An unknown or
// invalid workflow is refused before any run state is allocated. If
// runID is empty, one is generated as workflowID + a uuid suffix.
func (o *Orchestrator) RunWorkflowOnce(ctx context.Context, workflowID, runID string) (*document.WorkflowRun, error) {
	doc, ok := o.lookupWorkflow(workflowID)
	if !ok {
		return nil, &wferrors.SchedulingError{WorkflowID: workflowID, Detail: "workflow not registered"}
	}
	if errs := document.Validate(doc, o.logger); len(errs) > 0 {
		return nil, wferrors.Wrapf(errs[0], "refusing to run workflow %q", workflowID)
	}

	if runID == "" {
		runID = fmt.Sprintf("%s-%s", workflowID, uuid.NewString())
	}

	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("run_id", runID),
	))
	defer span.End()

	run := document.NewWorkflowRun(runID, doc)
	run.State = document.RunRunning
	run.StartedAt = time.Now().UnixMilli()

	o.logger.Info("workflow run started", "workflow_id", workflowID, "run_id", runID)
	o.metrics.recordRunStart(ctx, workflowID)

	o.waveLoop(ctx, doc, run)

	run.CompletedAt = time.Now().UnixMilli()
	if run.State == document.RunRunning {
		if anyFailed(run) {
			run.State = document.RunFailed
		} else {
			run.State = document.RunSucceeded
		}
	}

	o.logger.Info("workflow run finished", "workflow_id", workflowID, "run_id", runID, "state", run.State)
	o.metrics.recordRunComplete(ctx, workflowID, string(run.State))

	o.lastRunsMu.Lock()
	o.lastRuns[workflowID] = run
	o.lastRunsMu.Unlock()

	return run, nil
}

func anyFailed(run *document.WorkflowRun) bool {
	for _, s := range run.TaskStates {
		if s.Kind == document.TaskFailed {
			return true
		}
	}
	return false
}

// waveLoop repeatedly collects and dispatches waves of ready tasks,
// mutating run in place, until every task is terminal or no further
// progress is possible. A stalled run (no ready tasks, no progress,
// non-terminal tasks remaining) marks the run Failed and exits; the
// blocked tasks keep their Pending state so inspection shows they
// never dispatched.
func (o *Orchestrator) waveLoop(ctx context.Context, doc *document.WorkflowDocument, run *document.WorkflowRun) {
	for {
		if run.State == document.RunCancelled {
			return
		}

		ready, progressed := o.collectWave(doc, run)

		if len(ready) == 0 {
			if allTerminal(doc, run) {
				return
			}
			if !progressed {
				if anyFailed(run) {
					o.logger.Warn("run halted: remaining tasks blocked by failed dependencies", "workflow_id", doc.ID, "run_id", run.RunID)
				} else {
					o.logger.Error("scheduling deadlock: no ready tasks but non-terminal tasks remain", "workflow_id", doc.ID, "run_id", run.RunID)
				}
				run.State = document.RunFailed
				return
			}
			continue
		}

		o.dispatchWave(ctx, doc, run, ready)
	}
}

func allTerminal(doc *document.WorkflowDocument, run *document.WorkflowRun) bool {
	for id := range doc.Tasks {
		if !run.TaskStates[id].Kind.IsTerminal() {
			return false
		}
	}
	return true
}

// collectWave advances Skipped tasks in place and returns the ids ready
// to run this wave, plus whether any progress (a skip or a fail) was
// made without dispatching.
func (o *Orchestrator) collectWave(doc *document.WorkflowDocument, run *document.WorkflowRun) ([]string, bool) {
	var ready []string
	progressed := false

	ids := sortedTaskIDs(doc)
	for _, id := range ids {
		state := run.TaskStates[id]
		if state.Kind != document.TaskPending && state.Kind != document.TaskReady {
			continue
		}

		task, ok := doc.Tasks[id]
		if !ok {
			state.Kind = document.TaskFailed
			state.LastError = "task definition missing"
			run.TaskStates[id] = state
			progressed = true
			continue
		}

		blocked := false
		for dep := range task.DependsOn {
			depState := run.TaskStates[dep]
			if depState.Kind != document.TaskSucceeded && depState.Kind != document.TaskSkipped {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}

		if upToDate, outputPaths := o.isUpToDate(doc, run, task); upToDate {
			state.Kind = document.TaskSkipped
			state.OutputValues = mapOutputSlots(task, outputPaths)
			run.TaskStates[id] = state
			progressed = true
			continue
		}

		state.Kind = document.TaskReady
		run.TaskStates[id] = state
		ready = append(ready, id)
	}

	return ready, progressed
}

func sortedTaskIDs(doc *document.WorkflowDocument) []string {
	ids := make([]string, 0, len(doc.Tasks))
	for id := range doc.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// isUpToDate evaluates freshness for task and, when the task is up to
// date, also returns its resolved output paths so the skip can populate
// output values downstream tasks will read. File path templates are
// passed through the dataflow resolver only when they actually contain
// "${inputs." placeholders; plain paths go straight to the checker.
func (o *Orchestrator) isUpToDate(doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec) (bool, []string) {
	inputPaths := resolveFilePaths(doc, run, task, task.FileInputs)
	outputPaths := resolveFilePaths(doc, run, task, task.FileOutputs)
	if inputPaths == nil && len(task.FileInputs) > 0 {
		return false, nil
	}
	if outputPaths == nil && len(task.FileOutputs) > 0 {
		return false, nil
	}

	dependsOn := make([]string, 0, len(task.DependsOn))
	for dep := range task.DependsOn {
		dependsOn = append(dependsOn, dep)
	}

	resolveUpstream := func(taskID string) ([]string, bool) {
		upstream, ok := doc.Tasks[taskID]
		if !ok {
			return nil, false
		}
		paths := resolveFilePaths(doc, run, upstream, upstream.FileOutputs)
		if paths == nil && len(upstream.FileOutputs) > 0 {
			return nil, false
		}
		return paths, true
	}
	resolveDependsOn := func(taskID string) []string {
		upstream, ok := doc.Tasks[taskID]
		if !ok {
			return nil
		}
		deps := make([]string, 0, len(upstream.DependsOn))
		for d := range upstream.DependsOn {
			deps = append(deps, d)
		}
		return deps
	}

	decision := freshness.Check(inputPaths, outputPaths, dependsOn, resolveUpstream, resolveDependsOn)
	return decision.UpToDate, outputPaths
}

// resolveFilePaths expands each template in paths. A nil return (with
// non-empty paths) signals an unresolvable template.
func resolveFilePaths(doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec, paths []string) []string {
	needsResolve := false
	for _, p := range paths {
		if strings.Contains(p, "${inputs.") {
			needsResolve = true
			break
		}
	}
	if !needsResolve {
		return paths
	}

	// Probing freshness is not an error path: an unresolvable template
	// just means "not up to date", so the resolver stays quiet here.
	resolver := dataflow.New(doc, run, slog.New(slog.DiscardHandler))
	resolved, err := resolver.Resolve(task.ID)
	if err != nil {
		return nil
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		expanded, err := expandInputsTemplate(p, resolved)
		if err != nil {
			return nil
		}
		out = append(out, expanded)
	}
	return out
}

func expandInputsTemplate(s string, resolved map[string]string) (string, error) {
	const prefix = "${inputs."
	var b strings.Builder
	rest := s
	for {
		idx := strings.Index(rest, "${")
		if idx == -1 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:idx])
		rest = rest[idx:]
		end := strings.Index(rest, "}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template in %q", s)
		}
		token := rest[:end+1]
		rest = rest[end+1:]
		if !strings.HasPrefix(token, prefix) {
			b.WriteString(token)
			continue
		}
		ref := token[len(prefix) : len(token)-1]
		v, ok := resolved[ref]
		if !ok {
			return "", fmt.Errorf("unknown slot %q in %q", ref, s)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// mapOutputSlots assigns resolved output paths to a skipped task's
// declared output slots: sorted slot names zipped with the paths when
// counts match, a single path broadcast to every slot, the first path
// taken when there is exactly one slot, and nothing assigned when the
// pairing is ambiguous.
func mapOutputSlots(task document.TaskSpec, paths []string) map[string]string {
	slots := make([]string, 0, len(task.Outputs))
	for name := range task.Outputs {
		slots = append(slots, name)
	}
	sort.Strings(slots)

	result := make(map[string]string, len(slots))

	switch {
	case len(slots) == len(paths):
		for i, name := range slots {
			result[name] = paths[i]
		}
	case len(paths) == 1:
		for _, name := range slots {
			result[name] = paths[0]
		}
	case len(slots) == 1:
		if len(paths) > 0 {
			result[slots[0]] = paths[0]
		}
	}

	return result
}

// dispatchWave runs every ready task concurrently and blocks until all
// have completed. Cross-task reads of run state below happen only for
// tasks finished in earlier waves, so the goroutines never race on a
// TaskInstanceState.
func (o *Orchestrator) dispatchWave(ctx context.Context, doc *document.WorkflowDocument, run *document.WorkflowRun, ready []string) {
	for _, id := range ready {
		state := run.TaskStates[id]
		state.Kind = document.TaskRunning
		run.TaskStates[id] = state
	}

	type result struct {
		id    string
		state document.TaskInstanceState
	}

	results := make(chan result, len(ready))
	var wg sync.WaitGroup

	for _, id := range ready {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			task := doc.Tasks[taskID]
			state := run.TaskStates[taskID]
			o.executeTaskInstance(ctx, doc, run, task, &state)
			results <- result{id: taskID, state: state}
		}(id)
	}

	wg.Wait()
	close(results)

	for r := range results {
		run.TaskStates[r.id] = r.state
	}
}

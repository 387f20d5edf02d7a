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

// Package dataflow resolves a task's declared input slots from the
// outputs of upstream tasks wired in by the workflow's dataflow edges,
// then expands "${inputs.X}" template references across the resolved
// values.
package dataflow

import (
	"log/slog"
	"strings"

	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// Resolver resolves task inputs for a single run of a single workflow.
type Resolver struct {
	doc    *document.WorkflowDocument
	run    *document.WorkflowRun
	logger *slog.Logger

	// UseRunContext gates the optional context fallback: when true, a
	// slot with no matching dataflow edge falls back to
	// run.Context[slot] before failing. Defaults to false, so an
	// unwired slot is an error.
	UseRunContext bool
}

// New creates a Resolver over doc and run.
func New(doc *document.WorkflowDocument, run *document.WorkflowRun, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{doc: doc, run: run, logger: logger}
}

// Resolve computes the resolved slot -> string mapping for taskID:
// every declared input slot is filled from its dataflow edge, then a
// second pass expands "${inputs.X}" references between the resolved
// values.
func (r *Resolver) Resolve(taskID string) (map[string]string, error) {
	task, ok := r.doc.Tasks[taskID]
	if !ok {
		return nil, &wferrors.ResolutionError{Kind: wferrors.ResolutionMissingInput, TaskID: taskID, Detail: "task not declared in document"}
	}

	resolved := make(map[string]string, len(task.Inputs))

	for slot := range task.Inputs {
		value, ok, err := r.resolveSlot(taskID, slot)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Error("dataflow resolution failed: no value for input slot", "workflow_id", r.doc.ID, "task_id", taskID, "slot", slot)
			return nil, &wferrors.ResolutionError{Kind: wferrors.ResolutionMissingInput, TaskID: taskID, Slot: slot, Detail: "no dataflow edge targets this slot and no value was produced"}
		}
		resolved[slot] = value
	}

	expanded := make(map[string]string, len(resolved))
	for slot, value := range resolved {
		v, err := r.expandTemplate(taskID, slot, value, resolved)
		if err != nil {
			return nil, err
		}
		expanded[slot] = v
	}

	return expanded, nil
}

// resolveSlot finds the dataflow edge targeting (taskID, slot) and
// reads the upstream task's produced value for it.
func (r *Resolver) resolveSlot(taskID, slot string) (string, bool, error) {
	for _, edge := range r.doc.Dataflows {
		if edge.ToTask != taskID || edge.ToInput != slot {
			continue
		}
		upstream, ok := r.run.TaskStates[edge.FromTask]
		if !ok {
			return "", false, nil
		}
		value, ok := upstream.OutputValues[edge.FromOutput]
		if !ok {
			return "", false, nil
		}
		return value, true, nil
	}

	if r.UseRunContext {
		if v, ok := r.run.Context[slot]; ok {
			return v, true, nil
		}
	}

	return "", false, nil
}

// expandTemplate substitutes "${inputs.X}" occurrences within value
// against the other resolved slots of the same task.
func (r *Resolver) expandTemplate(taskID, slot, value string, resolved map[string]string) (string, error) {
	const prefix = "${inputs."
	var b strings.Builder
	rest := value

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
			return "", &wferrors.ResolutionError{Kind: wferrors.ResolutionMalformedTemplate, TaskID: taskID, Slot: slot, Detail: "unterminated ${...}"}
		}
		token := rest[:end+1]
		rest = rest[end+1:]

		if !strings.HasPrefix(token, prefix) {
			return "", &wferrors.ResolutionError{Kind: wferrors.ResolutionMalformedTemplate, TaskID: taskID, Slot: slot, Detail: "unrecognized template token " + token}
		}
		ref := strings.TrimSuffix(strings.TrimPrefix(token, prefix), "}")
		refValue, ok := resolved[ref]
		if !ok {
			return "", &wferrors.ResolutionError{Kind: wferrors.ResolutionUnknownSlot, TaskID: taskID, Slot: slot, Detail: "reference to unknown slot " + ref}
		}
		b.WriteString(refValue)
	}

	return b.String(), nil
}

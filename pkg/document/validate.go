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

package document

import (
	"fmt"
	"log/slog"

	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// color is the three-state DFS marker used for cycle detection.
type color int

const (
	white color = iota
	gray
	black
)

// Validate runs the cross-reference and cycle checks over doc. It
// returns every ValidationError found, logging each one with workflow
// context via logger; a non-empty return means doc is invalid and
// callers should refuse to run it. Validation never mutates doc or
// removes it from any registry.
func Validate(doc *WorkflowDocument, logger *slog.Logger) []*wferrors.ValidationError {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []*wferrors.ValidationError
	report := func(e *wferrors.ValidationError) {
		logger.Error("workflow validation failed", "workflow_id", e.WorkflowID, "kind", e.Kind, "detail", e.Detail)
		errs = append(errs, e)
	}

	// 1. Trigger id uniqueness + unknown trigger kind rejection + cron params.
	seenTriggerIDs := make(map[string]struct{}, len(doc.Triggers))
	for _, t := range doc.Triggers {
		if _, dup := seenTriggerIDs[t.ID]; dup {
			report(&wferrors.ValidationError{
				Kind:       wferrors.ValidationDuplicateTriggerID,
				WorkflowID: doc.ID,
				Detail:     fmt.Sprintf("trigger id %q declared more than once", t.ID),
			})
		}
		seenTriggerIDs[t.ID] = struct{}{}

		if !t.Kind.IsValid() {
			report(&wferrors.ValidationError{
				Kind:       wferrors.ValidationUnknownTriggerKind,
				WorkflowID: doc.ID,
				Detail:     fmt.Sprintf("trigger %q has unknown kind", t.ID),
			})
		}

		if t.Kind == TriggerCron && (len(t.Params) == 0 || string(t.Params) == "{}" || string(t.Params) == "null") {
			report(&wferrors.ValidationError{
				Kind:       wferrors.ValidationMissingParams,
				WorkflowID: doc.ID,
				Detail:     fmt.Sprintf("cron trigger %q requires non-empty params", t.ID),
			})
		}
	}

	// 2. dependsOn existence.
	for taskID, task := range doc.Tasks {
		for dep := range task.DependsOn {
			if _, ok := doc.Tasks[dep]; !ok {
				report(&wferrors.ValidationError{
					Kind:       wferrors.ValidationUnknownDependency,
					WorkflowID: doc.ID,
					Detail:     fmt.Sprintf("task %q depends on unknown task %q", taskID, dep),
				})
			}
		}
	}

	// 3. Required input slots and all output slots need a non-empty type hint.
	for taskID, task := range doc.Tasks {
		for name, slot := range task.Inputs {
			if slot.Required && slot.TypeHint == "" {
				report(&wferrors.ValidationError{
					Kind:       wferrors.ValidationMissingTypeHint,
					WorkflowID: doc.ID,
					Detail:     fmt.Sprintf("task %q required input slot %q has no type hint", taskID, name),
				})
			}
		}
		for name, slot := range task.Outputs {
			if slot.TypeHint == "" {
				report(&wferrors.ValidationError{
					Kind:       wferrors.ValidationMissingTypeHint,
					WorkflowID: doc.ID,
					Detail:     fmt.Sprintf("task %q output slot %q has no type hint", taskID, name),
				})
			}
		}
	}

	// 4. Dataflow endpoints and slots.
	for i, edge := range doc.Dataflows {
		fromTask, fromOK := doc.Tasks[edge.FromTask]
		if !fromOK {
			report(&wferrors.ValidationError{
				Kind:       wferrors.ValidationUnknownDependency,
				WorkflowID: doc.ID,
				Detail:     fmt.Sprintf("dataflow[%d] references unknown from_task %q", i, edge.FromTask),
			})
		} else if edge.FromOutput != "" {
			if _, ok := fromTask.Outputs[edge.FromOutput]; !ok {
				report(&wferrors.ValidationError{
					Kind:       wferrors.ValidationUnknownSlot,
					WorkflowID: doc.ID,
					Detail:     fmt.Sprintf("dataflow[%d] from_output %q not declared on task %q", i, edge.FromOutput, edge.FromTask),
				})
			}
		}

		toTask, toOK := doc.Tasks[edge.ToTask]
		if !toOK {
			report(&wferrors.ValidationError{
				Kind:       wferrors.ValidationUnknownDependency,
				WorkflowID: doc.ID,
				Detail:     fmt.Sprintf("dataflow[%d] references unknown to_task %q", i, edge.ToTask),
			})
		} else if edge.ToInput != "" {
			if _, ok := toTask.Inputs[edge.ToInput]; !ok {
				report(&wferrors.ValidationError{
					Kind:       wferrors.ValidationUnknownSlot,
					WorkflowID: doc.ID,
					Detail:     fmt.Sprintf("dataflow[%d] to_input %q not declared on task %q", i, edge.ToInput, edge.ToTask),
				})
			}
		}
	}

	// 5. Cycle detection over dependsOn via three-color DFS.
	if cyc := detectCycle(doc); cyc != "" {
		report(&wferrors.ValidationError{
			Kind:       wferrors.ValidationCycle,
			WorkflowID: doc.ID,
			Detail:     cyc,
		})
	}

	return errs
}

// detectCycle returns a human-readable description of the first cycle
// found in doc.Tasks' dependsOn graph, or "" if the graph is acyclic.
func detectCycle(doc *WorkflowDocument) string {
	colors := make(map[string]color, len(doc.Tasks))
	for id := range doc.Tasks {
		colors[id] = white
	}

	var path []string
	var visit func(id string) string
	visit = func(id string) string {
		colors[id] = gray
		path = append(path, id)
		task, ok := doc.Tasks[id]
		if ok {
			for dep := range task.DependsOn {
				switch colors[dep] {
				case white:
					if cyc := visit(dep); cyc != "" {
						return cyc
					}
				case gray:
					return fmt.Sprintf("%s -> %s", joinPath(path), dep)
				}
			}
		}
		path = path[:len(path)-1]
		colors[id] = black
		return ""
	}

	for id := range doc.Tasks {
		if colors[id] == white {
			if cyc := visit(id); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

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

package trigger

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tombee/workflowengine/internal/scheduler"
	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
	"github.com/tombee/workflowengine/pkg/registry"
)

// debounce_ms is clamped to [0, uint32 max].
const maxDebounceMillis = 1<<32 - 1

type cronParams struct {
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
}

type fileWatchParams struct {
	Path       string   `json:"path"`
	Events     []string `json:"events"`
	DebounceMs int      `json:"debounce_ms"`
}

var validFileEvents = map[string]struct{}{
	"created":  {},
	"modified": {},
	"deleted":  {},
}

// Bind iterates every workflow in reg and registers each of its
// triggers into engine. A trigger whose params are invalid or missing
// is logged and skipped; the remaining triggers of the same workflow
// are still registered.
func Bind(reg *registry.Registry, engine *Engine, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, workflowID := range reg.GetWorkflowIds() {
		doc, ok := reg.GetWorkflow(workflowID)
		if !ok {
			continue
		}
		bindWorkflow(doc, engine, logger)
	}
}

func bindWorkflow(doc *document.WorkflowDocument, engine *Engine, logger *slog.Logger) {
	for _, t := range doc.Triggers {
		if t.Kind == document.TriggerStructure {
			logger.Info("structure trigger skipped: dynamic per-item fan-out is not expanded at runtime", "workflow_id", doc.ID, "trigger_id", t.ID)
			continue
		}
		if err := bindOne(doc.ID, t, engine); err != nil {
			logger.Error("trigger not registered", "workflow_id", doc.ID, "trigger_id", t.ID, "error", err)
		}
	}
}

func bindOne(workflowID string, t document.Trigger, engine *Engine) error {
	switch t.Kind {
	case document.TriggerImmediate:
		engine.AddImmediateTrigger(workflowID, t.ID)
		return nil

	case document.TriggerCron:
		var p cronParams
		if err := json.Unmarshal(t.Params, &p); err != nil {
			return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: err}
		}
		if p.Expression == "" {
			return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: errRequiredField("expression")}
		}
		expr, err := scheduler.ParseCron(p.Expression)
		if err != nil {
			return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: err}
		}
		engine.AddCronTrigger(workflowID, t.ID, expr, t.Enabled)
		return nil

	case document.TriggerFileWatch:
		var p fileWatchParams
		if err := json.Unmarshal(t.Params, &p); err != nil {
			return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: err}
		}
		if p.Path == "" {
			return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: errRequiredField("path")}
		}
		events := make([]string, 0, len(p.Events))
		for _, ev := range p.Events {
			if _, ok := validFileEvents[ev]; ok {
				events = append(events, ev)
			}
		}
		if len(events) == 0 {
			return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: errRequiredField("events")}
		}
		debounceMs := p.DebounceMs
		if debounceMs < 0 {
			debounceMs = 0
		}
		if debounceMs > maxDebounceMillis {
			debounceMs = maxDebounceMillis
		}
		engine.AddFileWatchTrigger(workflowID, t.ID, p.Path, events, time.Duration(debounceMs)*time.Millisecond, t.Enabled)
		return nil

	case document.TriggerManual:
		engine.AddManualTrigger(workflowID, t.ID, t.Enabled)
		return nil

	case document.TriggerStructure:
		// Logged as informational by the caller; structure triggers are
		// accepted in documents but never registered.
		return nil

	default:
		return &wferrors.TriggerParamError{WorkflowID: workflowID, TriggerID: t.ID, Cause: errRequiredField("kind")}
	}
}

type fieldError string

func (e fieldError) Error() string { return "missing or invalid field: " + string(e) }

func errRequiredField(name string) error { return fieldError(name) }

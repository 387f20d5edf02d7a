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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// wireRoot, wireTrigger, wireTask, and wireDataflow mirror the on-disk
// JSON shape exactly; the parser decodes into these, then converts
// into the document model.
type wireRoot struct {
	Version  string              `json:"version"`
	ID       string              `json:"id"`
	Label    string              `json:"label"`
	Doc      string              `json:"doc"`
	Triggers []wireTrigger       `json:"triggers"`
	Tasks    map[string]wireTask `json:"tasks"`
	Dataflow []wireDataflow      `json:"dataflow"`
	Defaults json.RawMessage     `json:"defaults"`
}

type wireTrigger struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Enabled bool            `json:"enabled"`
	Params  json.RawMessage `json:"params"`
}

type wireEnvironment struct {
	Name        string                     `json:"name"`
	AssistantID string                     `json:"assistant_id"`
	Variables   map[string]json.RawMessage `json:"variables"`
}

type wireQueueBinding struct {
	SettingsFiles []string `json:"stng_files"`
	TaskFiles     []string `json:"task_files"`
	ContextFiles  []string `json:"cnxt_files"`
}

type wireRetries struct {
	MaxAttempts int `json:"max_attempts"`
	BackoffMs   int `json:"backoff_ms"`
}

type wireSlot struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type wireTask struct {
	ID           string              `json:"id"`
	Type         string              `json:"type"`
	Mode         string              `json:"mode"`
	Label        string              `json:"label"`
	Doc          string              `json:"doc"`
	DependsOn    []string            `json:"depends_on"`
	FileInputs   []string            `json:"file_inputs"`
	FileOutputs  []string            `json:"file_outputs"`
	Environment  wireEnvironment     `json:"environment"`
	QueueBinding wireQueueBinding    `json:"queue_binding"`
	Inputs       map[string]wireSlot `json:"inputs"`
	Outputs      map[string]wireSlot `json:"outputs"`
	TimeoutMs    int                 `json:"timeout_ms"`
	Retries      wireRetries         `json:"retries"`
	Params       json.RawMessage     `json:"params"`
}

type wireDataflow struct {
	FromTask   string          `json:"from_task"`
	FromOutput string          `json:"from_output"`
	ToTask     string          `json:"to_task"`
	ToInput    string          `json:"to_input"`
	Mapping    json.RawMessage `json:"mapping"`
}

var rootKnownKeys = map[string]struct{}{
	"version": {}, "id": {}, "label": {}, "doc": {}, "triggers": {},
	"tasks": {}, "dataflow": {}, "defaults": {},
}

var taskKnownKeys = map[string]struct{}{
	"id": {}, "type": {}, "mode": {}, "label": {}, "doc": {}, "depends_on": {},
	"file_inputs": {}, "file_outputs": {}, "environment": {}, "queue_binding": {},
	"inputs": {}, "outputs": {}, "timeout_ms": {}, "retries": {}, "params": {},
}

var triggerKnownKeys = map[string]struct{}{
	"type": {}, "id": {}, "enabled": {}, "params": {},
}

var dataflowKnownKeys = map[string]struct{}{
	"from_task": {}, "from_output": {}, "to_task": {}, "to_input": {}, "mapping": {},
}

// Parse reads a single workflow document from r and returns its
// in-memory model, or a *wferrors.ParseError if the document must be
// rejected outright. Unknown fields are logged as warnings, not errors.
func Parse(r io.Reader, logger *slog.Logger) (*WorkflowDocument, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &wferrors.ParseError{Kind: wferrors.ParseMalformedValue, Msg: err.Error()}
	}

	var root wireRoot
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&root); err != nil {
		return nil, &wferrors.ParseError{Kind: wferrors.ParseMalformedValue, Msg: err.Error()}
	}

	warnUnknownKeys(logger, raw, "", rootKnownKeys)

	if root.Version == "" {
		return nil, &wferrors.ParseError{Kind: wferrors.ParseMissingField, Path: "version", Msg: "field is required"}
	}
	if root.Version != SupportedVersion {
		return nil, &wferrors.ParseError{Kind: wferrors.ParseIncompatibleVersion, Path: "version", Msg: fmt.Sprintf("expected %s, got %s", SupportedVersion, root.Version)}
	}
	if root.ID == "" {
		return nil, &wferrors.ParseError{Kind: wferrors.ParseMissingField, Path: "id", Msg: "field is required"}
	}
	if root.Tasks == nil {
		return nil, &wferrors.ParseError{Kind: wferrors.ParseMissingField, Path: "tasks", Msg: "field is required"}
	}

	doc := &WorkflowDocument{
		Version:  root.Version,
		ID:       root.ID,
		Label:    root.Label,
		Doc:      root.Doc,
		Defaults: root.Defaults,
		Tasks:    make(map[string]TaskSpec, len(root.Tasks)),
	}

	var rawTasks map[string]json.RawMessage
	_ = json.Unmarshal(rawMessageOf(raw, "tasks"), &rawTasks)

	for key, wt := range root.Tasks {
		if rawTasks != nil {
			warnUnknownKeys(logger, rawTasks[key], fmt.Sprintf("tasks.%s", key), taskKnownKeys)
		}
		id := wt.ID
		if id == "" {
			id = key
		}
		doc.Tasks[key] = convertTask(id, wt, logger)
	}

	var rawTriggers []json.RawMessage
	_ = json.Unmarshal(rawMessageOf(raw, "triggers"), &rawTriggers)

	if len(root.Triggers) == 0 {
		doc.Triggers = []Trigger{{
			Kind:    TriggerImmediate,
			ID:      "auto",
			Enabled: true,
			Params:  json.RawMessage("{}"),
		}}
	} else {
		doc.Triggers = make([]Trigger, 0, len(root.Triggers))
		for i, wt := range root.Triggers {
			if i < len(rawTriggers) {
				warnUnknownKeys(logger, rawTriggers[i], fmt.Sprintf("triggers[%d]", i), triggerKnownKeys)
			}
			doc.Triggers = append(doc.Triggers, convertTrigger(wt, logger))
		}
	}

	var rawDataflow []json.RawMessage
	_ = json.Unmarshal(rawMessageOf(raw, "dataflow"), &rawDataflow)

	doc.Dataflows = make([]DataflowEdge, 0, len(root.Dataflow))
	for i, wd := range root.Dataflow {
		if i < len(rawDataflow) {
			warnUnknownKeys(logger, rawDataflow[i], fmt.Sprintf("dataflow[%d]", i), dataflowKnownKeys)
		}
		doc.Dataflows = append(doc.Dataflows, DataflowEdge{
			FromTask:   wd.FromTask,
			FromOutput: wd.FromOutput,
			ToTask:     wd.ToTask,
			ToInput:    wd.ToInput,
			Mapping:    wd.Mapping,
		})
	}

	return doc, nil
}

// rawMessageOf decodes just the named top-level field from raw as a
// json.RawMessage, for the unknown-key diff pass. Returns nil on error.
func rawMessageOf(raw []byte, field string) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m[field]
}

func warnUnknownKeys(logger *slog.Logger, raw json.RawMessage, path string, known map[string]struct{}) {
	if len(raw) == 0 {
		return
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return
	}
	for k := range m {
		if _, ok := known[k]; !ok {
			logger.Warn("unknown field in workflow document", "path", path, "field", k)
		}
	}
}

func convertTrigger(wt wireTrigger, logger *slog.Logger) Trigger {
	kind := mapTriggerKind(wt.Type)
	if kind == TriggerUnknown {
		logger.Warn("unknown trigger kind, defaulting to unknown", "type", wt.Type, "trigger_id", wt.ID)
	}
	params := wt.Params
	if params == nil {
		params = json.RawMessage("{}")
	}
	return Trigger{Kind: kind, ID: wt.ID, Enabled: wt.Enabled, Params: params}
}

func mapTriggerKind(s string) TriggerKind {
	switch s {
	case "auto", "immediate":
		return TriggerImmediate
	case "cron":
		return TriggerCron
	case "file_watch":
		return TriggerFileWatch
	case "structure":
		return TriggerStructure
	case "manual":
		return TriggerManual
	default:
		return TriggerUnknown
	}
}

func mapTaskKind(s string, logger *slog.Logger, taskID string) TaskKind {
	switch s {
	case "shell":
		return TaskShell
	case "python", "script":
		return TaskScript
	case "ai_call", "remote_model_call":
		return TaskRemoteModelCall
	case "internal":
		return TaskInternal
	default:
		logger.Warn("unknown task kind, defaulting to internal", "type", s, "task_id", taskID)
		return TaskInternal
	}
}

func mapTaskMode(s string, logger *slog.Logger, taskID string) TaskMode {
	switch s {
	case "", "single":
		return TaskModeSingle
	case "per_item":
		return TaskModePerItem
	default:
		logger.Warn("unknown task mode, defaulting to single", "mode", s, "task_id", taskID)
		return TaskModeSingle
	}
}

func convertTask(id string, wt wireTask, logger *slog.Logger) TaskSpec {
	dependsOn := make(map[string]struct{}, len(wt.DependsOn))
	for _, d := range wt.DependsOn {
		dependsOn[d] = struct{}{}
	}

	inputs := make(map[string]SlotSpec, len(wt.Inputs))
	for name, s := range wt.Inputs {
		inputs[name] = SlotSpec{TypeHint: s.Type, Required: s.Required}
	}
	outputs := make(map[string]SlotSpec, len(wt.Outputs))
	for name, s := range wt.Outputs {
		outputs[name] = SlotSpec{TypeHint: s.Type}
	}

	variables := make(map[string]json.RawMessage, len(wt.Environment.Variables))
	for k, v := range wt.Environment.Variables {
		variables[k] = v
	}

	params := wt.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	return TaskSpec{
		ID:          id,
		Kind:        mapTaskKind(wt.Type, logger, id),
		Mode:        mapTaskMode(wt.Mode, logger, id),
		Label:       wt.Label,
		Doc:         wt.Doc,
		DependsOn:   dependsOn,
		FileInputs:  append([]string(nil), wt.FileInputs...),
		FileOutputs: append([]string(nil), wt.FileOutputs...),
		Inputs:      inputs,
		Outputs:     outputs,
		Environment: EnvironmentSpec{
			Name:        wt.Environment.Name,
			AssistantID: wt.Environment.AssistantID,
			Variables:   variables,
		},
		QueueBinding: QueueBinding{
			SettingsFiles: append([]string(nil), wt.QueueBinding.SettingsFiles...),
			TaskFiles:     append([]string(nil), wt.QueueBinding.TaskFiles...),
			ContextFiles:  append([]string(nil), wt.QueueBinding.ContextFiles...),
		},
		TimeoutMillis: wt.TimeoutMs,
		RetryPolicy: RetryPolicy{
			MaxAttempts:         wt.Retries.MaxAttempts,
			LinearBackoffMillis: wt.Retries.BackoffMs,
		},
		Params: params,
	}
}

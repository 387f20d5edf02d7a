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

package dataflow

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func docWithEdge() *document.WorkflowDocument {
	return &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"producer": {ID: "producer", Outputs: map[string]document.SlotSpec{"out": {TypeHint: "string"}}},
			"consumer": {ID: "consumer", Inputs: map[string]document.SlotSpec{"in": {TypeHint: "string", Required: true}}},
		},
		Dataflows: []document.DataflowEdge{
			{FromTask: "producer", FromOutput: "out", ToTask: "consumer", ToInput: "in"},
		},
	}
}

func TestResolve_SimpleEdge(t *testing.T) {
	doc := docWithEdge()
	run := document.NewWorkflowRun("run-1", doc)
	producerState := run.TaskStates["producer"]
	producerState.OutputValues["out"] = "hello"
	run.TaskStates["producer"] = producerState

	r := New(doc, run, discardLogger())
	resolved, err := r.Resolve("consumer")
	require.NoError(t, err)
	assert.Equal(t, "hello", resolved["in"])
}

func TestResolve_FanIn(t *testing.T) {
	doc := &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"p1": {ID: "p1", Outputs: map[string]document.SlotSpec{"x": {TypeHint: "string"}}},
			"p2": {ID: "p2", Outputs: map[string]document.SlotSpec{"y": {TypeHint: "string"}}},
			"c": {ID: "c", Inputs: map[string]document.SlotSpec{
				"x": {TypeHint: "string", Required: true},
				"y": {TypeHint: "string", Required: true},
			}},
		},
		Dataflows: []document.DataflowEdge{
			{FromTask: "p1", FromOutput: "x", ToTask: "c", ToInput: "x"},
			{FromTask: "p2", FromOutput: "y", ToTask: "c", ToInput: "y"},
		},
	}
	run := document.NewWorkflowRun("run-1", doc)
	for task, kv := range map[string][2]string{"p1": {"x", "value-x"}, "p2": {"y", "value-y"}} {
		s := run.TaskStates[task]
		s.OutputValues[kv[0]] = kv[1]
		run.TaskStates[task] = s
	}

	r := New(doc, run, discardLogger())
	resolved, err := r.Resolve("c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "value-x", "y": "value-y"}, resolved)
}

func TestResolve_MissingInputFails(t *testing.T) {
	doc := docWithEdge()
	run := document.NewWorkflowRun("run-1", doc)

	r := New(doc, run, discardLogger())
	_, err := r.Resolve("consumer")
	require.Error(t, err)

	var resErr *wferrors.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, wferrors.ResolutionMissingInput, resErr.Kind)
	assert.Equal(t, "consumer", resErr.TaskID)
	assert.Equal(t, "in", resErr.Slot)
}

func TestResolve_UseRunContextFallback(t *testing.T) {
	doc := &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"consumer": {ID: "consumer", Inputs: map[string]document.SlotSpec{"in": {TypeHint: "string", Required: true}}},
		},
	}
	run := document.NewWorkflowRun("run-1", doc)
	run.Context["in"] = "from-context"

	r := New(doc, run, discardLogger())
	r.UseRunContext = true

	resolved, err := r.Resolve("consumer")
	require.NoError(t, err)
	assert.Equal(t, "from-context", resolved["in"])
}

func TestResolve_ContextFallbackDisabledByDefault(t *testing.T) {
	doc := &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"consumer": {ID: "consumer", Inputs: map[string]document.SlotSpec{"in": {TypeHint: "string", Required: true}}},
		},
	}
	run := document.NewWorkflowRun("run-1", doc)
	run.Context["in"] = "from-context"

	r := New(doc, run, discardLogger())
	_, err := r.Resolve("consumer")
	assert.Error(t, err, "context fallback must be opt-in")
}

func TestResolve_TemplateExpansion(t *testing.T) {
	doc := &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"consumer": {ID: "consumer", Inputs: map[string]document.SlotSpec{
				"base":   {TypeHint: "string"},
				"joined": {TypeHint: "string"},
			}},
		},
	}
	run := document.NewWorkflowRun("run-1", doc)
	run.Context["base"] = "/data"
	run.Context["joined"] = "${inputs.base}/out.txt"

	r := New(doc, run, discardLogger())
	r.UseRunContext = true
	resolved, err := r.Resolve("consumer")
	require.NoError(t, err)
	assert.Equal(t, "/data/out.txt", resolved["joined"])
}

func TestResolve_MalformedTemplateFails(t *testing.T) {
	doc := &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"consumer": {ID: "consumer", Inputs: map[string]document.SlotSpec{"a": {TypeHint: "string"}}},
		},
	}
	run := document.NewWorkflowRun("run-1", doc)
	run.Context["a"] = "${inputs.unterminated"

	r := New(doc, run, discardLogger())
	r.UseRunContext = true
	_, err := r.Resolve("consumer")
	require.Error(t, err)

	var resErr *wferrors.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, wferrors.ResolutionMalformedTemplate, resErr.Kind)
}

func TestResolve_UnknownTemplateSlotFails(t *testing.T) {
	doc := &document.WorkflowDocument{
		ID: "wf",
		Tasks: map[string]document.TaskSpec{
			"consumer": {ID: "consumer", Inputs: map[string]document.SlotSpec{"a": {TypeHint: "string"}}},
		},
	}
	run := document.NewWorkflowRun("run-1", doc)
	run.Context["a"] = "${inputs.ghost}"

	r := New(doc, run, discardLogger())
	r.UseRunContext = true
	_, err := r.Resolve("consumer")
	require.Error(t, err)

	var resErr *wferrors.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, wferrors.ResolutionUnknownSlot, resErr.Kind)
}

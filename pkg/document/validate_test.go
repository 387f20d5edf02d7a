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
	"testing"

	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

func taskDoc(tasks map[string]TaskSpec) *WorkflowDocument {
	return &WorkflowDocument{Version: SupportedVersion, ID: "wf", Tasks: tasks}
}

func TestValidate_CleanDocumentHasNoErrors(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{
		"a": {ID: "a", Kind: TaskShell},
		"b": {ID: "b", Kind: TaskShell, DependsOn: map[string]struct{}{"a": {}}},
	})
	if errs := Validate(doc, discardLogger()); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidate_UnknownDependencyReported(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{
		"a": {ID: "a", Kind: TaskShell, DependsOn: map[string]struct{}{"ghost": {}}},
	})
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationUnknownDependency) {
		t.Errorf("expected ValidationUnknownDependency, got %v", errs)
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{
		"a": {ID: "a", Kind: TaskShell, DependsOn: map[string]struct{}{"b": {}}},
		"b": {ID: "b", Kind: TaskShell, DependsOn: map[string]struct{}{"a": {}}},
	})
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationCycle) {
		t.Errorf("expected ValidationCycle, got %v", errs)
	}
}

func TestValidate_RequiredInputMissingTypeHint(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{
		"a": {ID: "a", Kind: TaskShell, Inputs: map[string]SlotSpec{"in": {Required: true}}},
	})
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationMissingTypeHint) {
		t.Errorf("expected ValidationMissingTypeHint, got %v", errs)
	}
}

func TestValidate_OutputMissingTypeHint(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{
		"a": {ID: "a", Kind: TaskShell, Outputs: map[string]SlotSpec{"out": {}}},
	})
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationMissingTypeHint) {
		t.Errorf("expected ValidationMissingTypeHint, got %v", errs)
	}
}

func TestValidate_DataflowUnknownSlotReported(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{
		"a": {ID: "a", Kind: TaskShell, Outputs: map[string]SlotSpec{"out": {TypeHint: "file"}}},
		"b": {ID: "b", Kind: TaskShell, Inputs: map[string]SlotSpec{"in": {TypeHint: "file"}}},
	})
	doc.Dataflows = []DataflowEdge{{FromTask: "a", FromOutput: "missing", ToTask: "b", ToInput: "in"}}
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationUnknownSlot) {
		t.Errorf("expected ValidationUnknownSlot, got %v", errs)
	}
}

func TestValidate_DuplicateTriggerIDReported(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{"a": {ID: "a", Kind: TaskShell}})
	doc.Triggers = []Trigger{
		{Kind: TriggerManual, ID: "dup", Enabled: true},
		{Kind: TriggerManual, ID: "dup", Enabled: true},
	}
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationDuplicateTriggerID) {
		t.Errorf("expected ValidationDuplicateTriggerID, got %v", errs)
	}
}

func TestValidate_CronTriggerRequiresParams(t *testing.T) {
	doc := taskDoc(map[string]TaskSpec{"a": {ID: "a", Kind: TaskShell}})
	doc.Triggers = []Trigger{{Kind: TriggerCron, ID: "nightly", Enabled: true}}
	errs := Validate(doc, discardLogger())
	if !hasKind(errs, wferrors.ValidationMissingParams) {
		t.Errorf("expected cron trigger without params to be reported, got %v", errs)
	}
}

func hasKind(errs []*wferrors.ValidationError, kind wferrors.ValidationErrorKind) bool {
	for _, e := range errs {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

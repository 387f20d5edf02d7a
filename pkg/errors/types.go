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

package errors

import "fmt"

// ParseErrorKind distinguishes the ways a workflow document can fail to load.
type ParseErrorKind string

const (
	ParseIncompatibleVersion ParseErrorKind = "incompatible_version"
	ParseMissingField        ParseErrorKind = "missing_required_field"
	ParseMalformedValue      ParseErrorKind = "malformed_value"
)

// ParseError represents a document-load failure. The whole document is
// rejected when this error is returned.
type ParseError struct {
	Kind ParseErrorKind
	Path string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse error (%s) at %s: %s", e.Kind, e.Path, e.Msg)
	}
	return fmt.Sprintf("parse error (%s): %s", e.Kind, e.Msg)
}

func (e *ParseError) ErrorType() string { return "parse" }

func (e *ParseError) IsRetryable() bool { return false }

// ValidationErrorKind distinguishes the ways a parsed document can fail validation.
type ValidationErrorKind string

const (
	ValidationUnknownDependency  ValidationErrorKind = "unknown_dependency"
	ValidationUnknownSlot        ValidationErrorKind = "unknown_slot"
	ValidationCycle              ValidationErrorKind = "cycle"
	ValidationDuplicateTriggerID ValidationErrorKind = "duplicate_trigger_id"
	ValidationMissingTypeHint    ValidationErrorKind = "missing_type_hint"
	ValidationUnknownTriggerKind ValidationErrorKind = "unknown_trigger_kind"
	ValidationMissingParams      ValidationErrorKind = "missing_trigger_params"
)

// ValidationError marks a workflow as invalid. Callers SHOULD refuse to run
// a workflow that produced one of these.
type ValidationError struct {
	Kind       ValidationErrorKind
	WorkflowID string
	Detail     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %q invalid (%s): %s", e.WorkflowID, e.Kind, e.Detail)
}

func (e *ValidationError) ErrorType() string { return "validation" }

func (e *ValidationError) IsRetryable() bool { return false }

// TriggerParamError means exactly one trigger failed to register; the rest
// of the workflow's triggers are unaffected.
type TriggerParamError struct {
	WorkflowID string
	TriggerID  string
	Cause      error
}

func (e *TriggerParamError) Error() string {
	return fmt.Sprintf("trigger %q of workflow %q not registered: %v", e.TriggerID, e.WorkflowID, e.Cause)
}

func (e *TriggerParamError) Unwrap() error { return e.Cause }

func (e *TriggerParamError) ErrorType() string { return "trigger_param" }

func (e *TriggerParamError) IsRetryable() bool { return false }

// ResolutionErrorKind distinguishes dataflow-resolution failure modes.
type ResolutionErrorKind string

const (
	ResolutionMissingInput      ResolutionErrorKind = "missing_input"
	ResolutionMalformedTemplate ResolutionErrorKind = "malformed_template"
	ResolutionUnknownSlot       ResolutionErrorKind = "unknown_template_slot"
)

// ResolutionError means a task's inputs could not be resolved; the task is
// Failed and its dependents remain blocked.
type ResolutionError struct {
	Kind   ResolutionErrorKind
	TaskID string
	Slot   string
	Detail string
}

func (e *ResolutionError) Error() string {
	if e.Slot != "" {
		return fmt.Sprintf("resolving task %q slot %q (%s): %s", e.TaskID, e.Slot, e.Kind, e.Detail)
	}
	return fmt.Sprintf("resolving task %q (%s): %s", e.TaskID, e.Kind, e.Detail)
}

func (e *ResolutionError) ErrorType() string { return "resolution" }

func (e *ResolutionError) IsRetryable() bool { return false }

// ExecutorErrorKind distinguishes executor-dispatch failure modes.
type ExecutorErrorKind string

const (
	ExecutorScriptPathRejected ExecutorErrorKind = "script_path_rejected"
	ExecutorUnsafeArgument     ExecutorErrorKind = "unsafe_argument"
	ExecutorNonZeroExit        ExecutorErrorKind = "nonzero_exit"
	ExecutorNoneRegistered     ExecutorErrorKind = "no_executor_registered"
	ExecutorTimeout            ExecutorErrorKind = "timeout"
	ExecutorTemplateError      ExecutorErrorKind = "template_error"
	ExecutorInvalidParams      ExecutorErrorKind = "invalid_params"
)

// ExecutorError means a task Failed during dispatch or execution.
type ExecutorError struct {
	Kind   ExecutorErrorKind
	TaskID string
	Detail string
	Cause  error
}

func (e *ExecutorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task %q failed (%s): %s: %v", e.TaskID, e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("task %q failed (%s): %s", e.TaskID, e.Kind, e.Detail)
}

func (e *ExecutorError) Unwrap() error { return e.Cause }

func (e *ExecutorError) ErrorType() string { return "executor" }

// IsRetryable reports whether another attempt could plausibly succeed.
// Rejections the executor computed from the task declaration itself
// (script path, params, templates, unsafe arguments) will fail the same
// way every time; only runtime outcomes are retryable.
func (e *ExecutorError) IsRetryable() bool {
	switch e.Kind {
	case ExecutorNonZeroExit, ExecutorTimeout:
		return true
	default:
		return false
	}
}

// SchedulingError represents an orchestrator-level failure to make progress,
// e.g. a deadlock caused by a cycle that slipped past validation.
type SchedulingError struct {
	WorkflowID string
	RunID      string
	Detail     string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("run %q of workflow %q stalled: %s", e.RunID, e.WorkflowID, e.Detail)
}

func (e *SchedulingError) ErrorType() string { return "scheduling" }

func (e *SchedulingError) IsRetryable() bool { return false }

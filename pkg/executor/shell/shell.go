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

// Package shell implements the shell task executor: safety prefix
// check, output slot mapping, argument macro defaults, template
// expansion, argument character denylist, and synchronous execution
// of the declared external command.
package shell

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// requiredCommandPrefix is the safety boundary: a shell task may only
// invoke scripts the workflow ships alongside it.
const requiredCommandPrefix = "scripts/"

// unsafeArgumentChars may never appear in an expanded argument.
const unsafeArgumentChars = ";&|><'\"`"

type params struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Executor runs a task by spawning an external command. It satisfies
// executor.Executor.
type Executor struct{}

// New creates a shell Executor.
func New() *Executor { return &Executor{} }

// Execute implements executor.Executor.
func (e *Executor) Execute(doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec, state *document.TaskInstanceState) error {
	var p params
	if err := json.Unmarshal(task.Params, &p); err != nil {
		return fail(state, &wferrors.ExecutorError{Kind: wferrors.ExecutorInvalidParams, TaskID: task.ID, Detail: "params.command/params.args malformed: " + err.Error()})
	}
	if p.Command == "" {
		return fail(state, &wferrors.ExecutorError{Kind: wferrors.ExecutorInvalidParams, TaskID: task.ID, Detail: "params.command is required"})
	}

	// Step 1: safety prefix check.
	if !strings.HasPrefix(p.Command, requiredCommandPrefix) {
		return fail(state, &wferrors.ExecutorError{Kind: wferrors.ExecutorScriptPathRejected, TaskID: task.ID, Detail: fmt.Sprintf("command %q must start with %q", p.Command, requiredCommandPrefix)})
	}

	// Step 2: output slot map.
	outputMap := buildOutputSlotMap(task, state)

	// Step 3: argument macro defaults.
	args := applyArgumentDefaults(p.Args)

	// Step 4: template expansion.
	expanded := make([]string, 0, len(args))
	for _, arg := range args {
		v, err := expandTemplate(arg, task, state)
		if err != nil {
			return fail(state, &wferrors.ExecutorError{Kind: wferrors.ExecutorTemplateError, TaskID: task.ID, Detail: err.Error()})
		}
		expanded = append(expanded, v)
	}

	// Step 5: argument safety.
	for _, v := range expanded {
		if !argumentSafe(v) {
			return fail(state, &wferrors.ExecutorError{Kind: wferrors.ExecutorUnsafeArgument, TaskID: task.ID, Detail: fmt.Sprintf("argument %q contains unsupported characters", v)})
		}
	}

	// Step 6: construct and execute the command line.
	parts := append([]string{p.Command}, expanded...)
	line := strings.Join(parts, " ")

	cmd := exec.Command("sh", "-c", line)
	cmd.Env = buildEnv(task)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fail(state, &wferrors.ExecutorError{Kind: wferrors.ExecutorNonZeroExit, TaskID: task.ID, Detail: strings.TrimSpace(string(out)), Cause: err})
	}

	for slot, path := range outputMap {
		state.OutputValues[slot] = path
	}
	return nil
}

func fail(state *document.TaskInstanceState, err *wferrors.ExecutorError) error {
	state.LastError = err.Error()
	state.Kind = document.TaskFailed
	return err
}

// buildOutputSlotMap implements step 2: zip declared output slots with
// declared file outputs when counts match; otherwise fall back to an
// input slot of the same name if one has a resolved value.
func buildOutputSlotMap(task document.TaskSpec, state *document.TaskInstanceState) map[string]string {
	slots := make([]string, 0, len(task.Outputs))
	for name := range task.Outputs {
		slots = append(slots, name)
	}
	sort.Strings(slots)

	result := make(map[string]string, len(slots))
	if len(slots) == len(task.FileOutputs) {
		for i, name := range slots {
			result[name] = task.FileOutputs[i]
		}
		return result
	}

	for _, name := range slots {
		if v, ok := state.InputValues[name]; ok {
			result[name] = v
		}
	}
	return result
}

func mentionsMacro(args []string, macros ...string) bool {
	for _, a := range args {
		for _, m := range macros {
			if strings.Contains(a, m) {
				return true
			}
		}
	}
	return false
}

// applyArgumentDefaults implements step 3.
func applyArgumentDefaults(args []string) []string {
	out := append([]string(nil), args...)
	if !mentionsInputMacro(out) {
		out = append([]string{"${inputs}"}, out...)
	}
	if !mentionsOutputMacro(out) {
		out = append(out, "${outputs}")
	}
	return out
}

func mentionsInputMacro(args []string) bool {
	if mentionsMacro(args, "${inputs}") {
		return true
	}
	for _, a := range args {
		if strings.Contains(a, "${input[") {
			return true
		}
	}
	return false
}

func mentionsOutputMacro(args []string) bool {
	if mentionsMacro(args, "${outputs}") {
		return true
	}
	for _, a := range args {
		if strings.Contains(a, "${output[") {
			return true
		}
	}
	return false
}

// expandTemplate implements step 4's full template table for a single
// argument; it fails on any unrecognized or unterminated token.
func expandTemplate(arg string, task document.TaskSpec, state *document.TaskInstanceState) (string, error) {
	var b strings.Builder
	rest := arg

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
			return "", fmt.Errorf("unterminated template in argument %q", arg)
		}
		token := rest[:end+1]
		rest = rest[end+1:]

		expanded, err := expandToken(token, task, state)
		if err != nil {
			return "", err
		}
		b.WriteString(expanded)
	}

	return b.String(), nil
}

func expandToken(token string, task document.TaskSpec, state *document.TaskInstanceState) (string, error) {
	switch {
	case token == "${inputs}":
		return strings.Join(task.FileInputs, " "), nil
	case token == "${outputs}":
		return strings.Join(task.FileOutputs, " "), nil
	case strings.HasPrefix(token, "${input[") && strings.HasSuffix(token, "]}"):
		n, err := parseIndex(token, "${input[")
		if err != nil {
			return "", err
		}
		if n < 0 || n >= len(task.FileInputs) {
			return "", fmt.Errorf("input index %d out of range", n)
		}
		return task.FileInputs[n], nil
	case strings.HasPrefix(token, "${output[") && strings.HasSuffix(token, "]}"):
		n, err := parseIndex(token, "${output[")
		if err != nil {
			return "", err
		}
		if n < 0 || n >= len(task.FileOutputs) {
			return "", fmt.Errorf("output index %d out of range", n)
		}
		return task.FileOutputs[n], nil
	case strings.HasPrefix(token, "${slot.") && strings.HasSuffix(token, "}"):
		name := strings.TrimSuffix(strings.TrimPrefix(token, "${slot."), "}")
		v, ok := state.InputValues[name]
		if !ok {
			return "", fmt.Errorf("slot %q has no resolved value", name)
		}
		return v, nil
	case strings.HasPrefix(token, "${env.") && strings.HasSuffix(token, "}"):
		name := strings.TrimSuffix(strings.TrimPrefix(token, "${env."), "}")
		raw, ok := task.Environment.Variables[name]
		if !ok {
			return "", nil
		}
		return rawMessageToString(raw), nil
	default:
		return "", fmt.Errorf("unrecognized template token %q", token)
	}
}

func parseIndex(token, prefix string) (int, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(token, prefix), "]}")
	return strconv.Atoi(inner)
}

func rawMessageToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func argumentSafe(v string) bool {
	for _, r := range v {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return !strings.ContainsAny(v, unsafeArgumentChars)
}

// buildEnv returns the process environment extended with the task's
// declared environment variables; the spawned command inherits both.
func buildEnv(task document.TaskSpec) []string {
	env := os.Environ()
	for name, raw := range task.Environment.Variables {
		env = append(env, name+"="+rawMessageToString(raw))
	}
	return env
}

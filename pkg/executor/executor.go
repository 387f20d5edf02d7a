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

// Package executor defines the pluggable task-executor abstraction and
// a kind-keyed registry. The shell executor is the only bundled
// implementation (see the shell subpackage); script, remote-model-call,
// and internal executors plug in behind the same interface and the
// orchestrator stays agnostic to which are registered.
package executor

import (
	"fmt"

	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// Executor dispatches a single task instance. On failure it returns an
// error and MAY have set taskState.LastError and taskState.Kind to
// document.TaskFailed or document.TaskSkipped; the caller (orchestrator)
// defaults to Failed when an error is returned and no terminal kind was
// set.
type Executor interface {
	Execute(doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec, state *document.TaskInstanceState) error
}

// Registry is a kind-keyed lookup table from TaskKind to Executor.
type Registry struct {
	executors map[document.TaskKind]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[document.TaskKind]Executor)}
}

// Register binds kind to exec, replacing any existing binding.
func (r *Registry) Register(kind document.TaskKind, exec Executor) {
	r.executors[kind] = exec
}

// Execute dispatches task to the executor registered for task.Kind. An
// unregistered kind fails with ExecutorNoneRegistered.
func (r *Registry) Execute(doc *document.WorkflowDocument, run *document.WorkflowRun, task document.TaskSpec, state *document.TaskInstanceState) error {
	exec, ok := r.executors[task.Kind]
	if !ok {
		return &wferrors.ExecutorError{
			Kind:   wferrors.ExecutorNoneRegistered,
			TaskID: task.ID,
			Detail: fmt.Sprintf("no executor registered for kind %q", task.Kind),
		}
	}
	return exec.Execute(doc, run, task, state)
}

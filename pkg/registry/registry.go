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

// Package registry loads workflow documents from a directory and keeps
// them addressable by workflow id for the lifetime of the process.
package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tombee/workflowengine/pkg/document"
	wferrors "github.com/tombee/workflowengine/pkg/errors"
)

// Extension is the conventional workflow document file extension.
const Extension = ".jcwf"

// Registry owns every loaded WorkflowDocument for the process lifetime.
// All other components take borrowed read-only references; only the
// registry may replace a document. Reads are safe for concurrent
// callers once the load phase completes; LoadFile/LoadDirectory take
// an exclusive lock for the duration of the mutation.
type Registry struct {
	mu        sync.RWMutex
	documents map[string]*document.WorkflowDocument
	logger    *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		documents: make(map[string]*document.WorkflowDocument),
		logger:    logger,
	}
}

// LoadDirectory enumerates every file under dir whose extension matches
// Extension and loads each with LoadFile. It returns the first load
// error encountered but continues attempting the remaining files.
func (r *Registry) LoadDirectory(dir string) error {
	var firstErr error
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != Extension {
			return nil
		}
		if loadErr := r.LoadFile(path); loadErr != nil && firstErr == nil {
			firstErr = loadErr
		}
		return nil
	})
	if err != nil {
		return err
	}
	return firstErr
}

// LoadFile parses and registers the workflow document at path. If a
// document with the same id is already registered, it is replaced
// in-place and a reload warning is logged.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := document.Parse(f, r.logger)
	if err != nil {
		r.logger.Error("failed to parse workflow document", "path", path, "error", err)
		return wferrors.Wrapf(err, "parsing workflow %s", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.documents[doc.ID]; exists {
		r.logger.Warn("reloading workflow, replacing existing document", "workflow_id", doc.ID, "path", path)
	}
	r.documents[doc.ID] = doc
	return nil
}

// GetWorkflow returns the document registered under id, or false if none.
func (r *Registry) GetWorkflow(id string) (*document.WorkflowDocument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[id]
	return doc, ok
}

// GetWorkflowIds returns every registered workflow id, sorted for
// deterministic iteration.
func (r *Registry) GetWorkflowIds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.documents))
	for id := range r.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasWorkflow reports whether id is currently registered.
func (r *Registry) HasWorkflow(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.documents[id]
	return ok
}

// ValidateAll runs document.Validate over every registered workflow and
// returns a map of workflow id to its validation errors (only entries
// with at least one error are present).
func (r *Registry) ValidateAll() map[string][]*wferrors.ValidationError {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string][]*wferrors.ValidationError)
	for id, doc := range r.documents {
		if errs := document.Validate(doc, r.logger); len(errs) > 0 {
			results[id] = errs
		}
	}
	return results
}

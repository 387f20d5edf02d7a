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

package registry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validDoc = `{
	"version": "1.0",
	"id": "build",
	"tasks": {"compile": {"type": "shell"}}
}`

const invalidDoc = `{not json`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestRegistry_LoadDirectoryFindsJCWFFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "build.jcwf", validDoc)
	writeFile(t, dir, "README.md", "not a workflow")

	reg := New(discardLogger())
	if err := reg.LoadDirectory(dir); err != nil {
		t.Fatalf("LoadDirectory returned error: %v", err)
	}

	ids := reg.GetWorkflowIds()
	if len(ids) != 1 || ids[0] != "build" {
		t.Errorf("GetWorkflowIds() = %v, want [build]", ids)
	}
	if !reg.HasWorkflow("build") {
		t.Error("expected HasWorkflow(build) to be true")
	}
}

func TestRegistry_LoadDirectoryContinuesPastErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.jcwf", invalidDoc)
	writeFile(t, dir, "good.jcwf", validDoc)

	reg := New(discardLogger())
	err := reg.LoadDirectory(dir)
	if err == nil {
		t.Fatal("expected the first load error to be returned")
	}
	if !reg.HasWorkflow("build") {
		t.Error("expected the valid document to still be loaded despite the other's error")
	}
}

func TestRegistry_LoadFileReplacesExistingDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "build.jcwf", validDoc)

	reg := New(discardLogger())
	if err := reg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}

	updated := `{"version": "1.0", "id": "build", "label": "v2", "tasks": {"compile": {"type": "shell"}}}`
	writeFile(t, dir, "build.jcwf", updated)
	if err := reg.LoadFile(path); err != nil {
		t.Fatalf("second LoadFile returned error: %v", err)
	}

	doc, ok := reg.GetWorkflow("build")
	if !ok {
		t.Fatal("expected workflow build to still be registered")
	}
	if doc.Label != "v2" {
		t.Errorf("Label = %q, want v2", doc.Label)
	}
}

func TestRegistry_ValidateAllReportsOnlyInvalidWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "build.jcwf", validDoc)
	cyclic := `{
		"version": "1.0",
		"id": "cyclic",
		"tasks": {
			"a": {"type": "shell", "depends_on": ["b"]},
			"b": {"type": "shell", "depends_on": ["a"]}
		}
	}`
	writeFile(t, dir, "cyclic.jcwf", cyclic)

	reg := New(discardLogger())
	if err := reg.LoadDirectory(dir); err != nil {
		t.Fatalf("LoadDirectory returned error: %v", err)
	}

	results := reg.ValidateAll()
	if _, ok := results["build"]; ok {
		t.Error("expected no validation errors for build")
	}
	if _, ok := results["cyclic"]; !ok {
		t.Error("expected validation errors for cyclic")
	}
}

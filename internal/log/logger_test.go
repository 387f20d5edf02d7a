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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		wantLevel string
		wantFmt   Format
	}{
		{
			name:      "defaults when no env vars",
			envVars:   map[string]string{},
			wantLevel: "info",
			wantFmt:   FormatJSON,
		},
		{
			name:      "LOG_LEVEL=debug",
			envVars:   map[string]string{"LOG_LEVEL": "debug"},
			wantLevel: "debug",
			wantFmt:   FormatJSON,
		},
		{
			name:      "WORKFLOWENGINE_LOG_LEVEL takes precedence over LOG_LEVEL",
			envVars:   map[string]string{"WORKFLOWENGINE_LOG_LEVEL": "warn", "LOG_LEVEL": "debug"},
			wantLevel: "warn",
			wantFmt:   FormatJSON,
		},
		{
			name:      "WORKFLOWENGINE_DEBUG wins over everything",
			envVars:   map[string]string{"WORKFLOWENGINE_DEBUG": "1", "LOG_LEVEL": "error"},
			wantLevel: "debug",
			wantFmt:   FormatJSON,
		},
		{
			name:      "LOG_FORMAT=text",
			envVars:   map[string]string{"LOG_FORMAT": "text"},
			wantLevel: "info",
			wantFmt:   FormatText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"WORKFLOWENGINE_DEBUG", "WORKFLOWENGINE_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.Format != tt.wantFmt {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.wantFmt)
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("run finished", WorkflowIDKey, "build", RunIDKey, "build-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if entry[WorkflowIDKey] != "build" {
		t.Errorf("entry[%s] = %v, want build", WorkflowIDKey, entry[WorkflowIDKey])
	}
	if entry["msg"] != "run finished" {
		t.Errorf("entry[msg] = %v, want 'run finished'", entry["msg"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info entry should be filtered at warn level, got %s", buf.String())
	}
	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warn entry should be emitted at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithRun(logger, "build", "build-1").Info("task dispatched", Error(errors.New("boom")), Duration("wait", 12))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry[WorkflowIDKey] != "build" || entry[RunIDKey] != "build-1" {
		t.Errorf("missing run context fields in %v", entry)
	}
	if entry["error"] != "boom" {
		t.Errorf("entry[error] = %v, want boom", entry["error"])
	}
	if entry["wait_ms"] != float64(12) {
		t.Errorf("entry[wait_ms] = %v, want 12", entry["wait_ms"])
	}
}

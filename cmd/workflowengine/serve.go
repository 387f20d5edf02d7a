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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/workflowengine/internal/config"
	wflog "github.com/tombee/workflowengine/internal/log"
	"github.com/tombee/workflowengine/internal/tracing"
	"github.com/tombee/workflowengine/internal/trigger"
	"github.com/tombee/workflowengine/internal/trigger/watch"
	"github.com/tombee/workflowengine/pkg/document"
	"github.com/tombee/workflowengine/pkg/orchestrator"
	"github.com/tombee/workflowengine/pkg/registry"
)

func newServeCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind every workflow's triggers and run until interrupted",
		Long: `Serve loads every workflow document, registers its triggers into the
trigger engine, and then ticks the engine on a timer (for cron triggers)
and feeds it filesystem events (for file-watch triggers) until the
process receives an interrupt or termination signal. Immediate
triggers fire once, synchronously, as soon as their workflow is bound.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg := config.FromEnv()
			if dir != "" {
				cfg.WorkflowsDir = dir
			}

			reg, err := loadRegistry(cfg.WorkflowsDir, logger)
			if err != nil {
				return err
			}
			validateAll(reg, logger)

			provider, err := tracing.NewProvider("workflowengine", version)
			if err != nil {
				return err
			}
			defer provider.Shutdown(context.Background())

			orch, err := newConfiguredOrchestrator(reg, provider.MeterProvider(), logger)
			if err != nil {
				return err
			}

			return serve(reg, orch, provider, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to load *.jcwf documents from (default: $WORKFLOWENGINE_WORKFLOWS_DIR or ./workflows)")
	return cmd
}

func serve(reg *registry.Registry, orch *orchestrator.Orchestrator, provider *tracing.Provider, cfg *config.RuntimeConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.MetricsHandler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", wflog.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
	}

	fire := func(workflowID, triggerID string) {
		wfLogger := wflog.WithWorkflow(logger, workflowID)
		wfLogger.Info("trigger fired", wflog.TriggerIDKey, triggerID)
		go func() {
			start := time.Now()
			run, err := orch.RunWorkflowOnce(ctx, workflowID, "")
			if err != nil {
				wfLogger.Error("run failed to start", wflog.TriggerIDKey, triggerID, wflog.Error(err))
				return
			}
			wflog.WithRun(logger, workflowID, run.RunID).Info("run finished",
				"state", run.State, wflog.Duration("run", time.Since(start).Milliseconds()))
		}()
	}

	engine := trigger.New(fire, logger)
	trigger.Bind(reg, engine, logger)

	watcher, err := watch.New(engine, logger)
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()
	for _, path := range fileWatchPaths(reg) {
		if err := watcher.Add(path); err != nil {
			logger.Error("failed to watch path", "path", path, "error", err)
		}
	}
	go watcher.Run()

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	logger.Info("serving", "workflows_dir", cfg.WorkflowsDir, "tick_interval", cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case now := <-ticker.C:
			engine.Tick(now)
		}
	}
}

// fileWatchPaths extracts every distinct path named by a file_watch
// trigger across reg's workflows, so serve can register them with the
// fsnotify-backed watcher without the binder needing to expose its
// internal trigger state.
func fileWatchPaths(reg *registry.Registry) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, workflowID := range reg.GetWorkflowIds() {
		doc, ok := reg.GetWorkflow(workflowID)
		if !ok {
			continue
		}
		for _, t := range doc.Triggers {
			if t.Kind != document.TriggerFileWatch {
				continue
			}
			var p struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(t.Params, &p); err != nil || p.Path == "" {
				continue
			}
			if _, ok := seen[p.Path]; ok {
				continue
			}
			seen[p.Path] = struct{}{}
			paths = append(paths, p.Path)
		}
	}
	return paths
}

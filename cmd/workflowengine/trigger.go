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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/workflowengine/internal/trigger"
	"github.com/tombee/workflowengine/pkg/document"
)

func newTriggerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Operate on a workflow's registered triggers",
	}
	cmd.AddCommand(newTriggerFireCommand())
	return cmd
}

func newTriggerFireCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "fire <workflow-id> <trigger-id>",
		Short: "Fire a manual trigger and run its workflow to completion",
		Args:  cobra.ExactArgs(2),
		Example: `  # Fire the "on-demand" manual trigger of the "nightly-report" workflow
  workflowengine trigger fire nightly-report on-demand`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowID, triggerID := args[0], args[1]

			logger := newLogger()
			reg, err := loadRegistry(dir, logger)
			if err != nil {
				return err
			}
			doc, ok := reg.GetWorkflow(workflowID)
			if !ok {
				return fmt.Errorf("no workflow with id %q", workflowID)
			}
			orch, err := newConfiguredOrchestrator(reg, nil, logger)
			if err != nil {
				return err
			}

			// Only the target workflow's manual triggers are registered:
			// binding everything would also fire every immediate trigger
			// in the directory as a side effect.
			done := make(chan error, 1)
			engine := trigger.New(func(firedWorkflowID, firedTriggerID string) {
				run, err := orch.RunWorkflowOnce(context.Background(), firedWorkflowID, "")
				if err != nil {
					done <- err
					return
				}
				done <- printRun(run)
			}, logger)
			for _, t := range doc.Triggers {
				if t.Kind == document.TriggerManual {
					engine.AddManualTrigger(workflowID, t.ID, t.Enabled)
				}
			}

			if !engine.FireManualTrigger(workflowID, triggerID) {
				return fmt.Errorf("no enabled manual trigger %q on workflow %q", triggerID, workflowID)
			}
			return <-done
		},
	}

	cmd.Flags().StringVar(&dir, "dir", workflowsDirFlag(), "directory to load *.jcwf documents from")
	return cmd
}

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

	"github.com/spf13/cobra"

	"github.com/tombee/workflowengine/pkg/document"
)

func newRunCommand() *cobra.Command {
	var dir, runID string

	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Run a single workflow to completion and print the resulting task states",
		Args:  cobra.ExactArgs(1),
		Example: `  # Run the workflow declared with id "nightly-report"
  workflowengine run nightly-report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			reg, err := loadRegistry(dir, logger)
			if err != nil {
				return err
			}
			if !validateAll(reg, logger) {
				return fmt.Errorf("one or more workflows failed validation")
			}

			orch, err := newConfiguredOrchestrator(reg, nil, logger)
			if err != nil {
				return err
			}

			workflowID := args[0]
			if !reg.HasWorkflow(workflowID) {
				return fmt.Errorf("no workflow with id %q", workflowID)
			}

			run, err := orch.RunWorkflowOnce(context.Background(), workflowID, runID)
			if err != nil {
				return err
			}

			return printRun(run)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", workflowsDirFlag(), "directory to load *.jcwf documents from")
	cmd.Flags().StringVar(&runID, "run-id", "", "explicit run id (default: generated)")
	return cmd
}

func printRun(run *document.WorkflowRun) error {
	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if run.State != document.RunSucceeded {
		return fmt.Errorf("run %s ended in state %s", run.RunID, run.State)
	}
	return nil
}

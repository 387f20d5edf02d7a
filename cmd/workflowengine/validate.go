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
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load every workflow document and report validation errors",
		Example: `  # Validate all *.jcwf files under ./workflows
  workflowengine validate

  # Validate a different directory
  workflowengine validate --dir ./deploy/workflows`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			reg, err := loadRegistry(dir, logger)
			if err != nil {
				return err
			}
			if !validateAll(reg, logger) {
				return fmt.Errorf("one or more workflows failed validation")
			}
			fmt.Printf("%d workflow(s) valid\n", len(reg.GetWorkflowIds()))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", workflowsDirFlag(), "directory to load *.jcwf documents from")
	return cmd
}

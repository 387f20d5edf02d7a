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

// Package freshness implements the make-style up-to-date decision: a
// task may be skipped when every declared output is at least as new as
// every declared input and every transitive upstream output.
package freshness

import (
	"os"
	"time"
)

// UpstreamResolver returns the declared output paths of taskID, or ok
// == false if they cannot be determined (unknown task, for instance).
type UpstreamResolver func(taskID string) (paths []string, ok bool)

// DependsOnResolver returns the immediate dependsOn set of taskID, used
// to walk the transitive predecessor closure during the freshness
// check. An unknown taskID returns nil, which simply ends that branch
// of the walk.
type DependsOnResolver func(taskID string) []string

// Decision is the outcome of a freshness check. It is never an error:
// absence or missingness of a file simply yields "not up to date".
type Decision struct {
	UpToDate bool
}

// Check decides whether a task with the given declared input paths,
// declared output paths, and immediate dependsOn task ids is up to
// date. resolveDependsOn may be nil, in which case only the
// directly-declared dependsOn ids are considered (no further
// transitive walk).
func Check(inputPaths, outputPaths []string, dependsOn []string, resolveUpstream UpstreamResolver, resolveDependsOn DependsOnResolver) Decision {
	// Step 1: no declared outputs => always run.
	if len(outputPaths) == 0 {
		return Decision{UpToDate: false}
	}

	// Step 2: any missing declared input => not up to date.
	var newestInputOrUpstream time.Time
	for _, p := range inputPaths {
		info, err := os.Stat(p)
		if err != nil {
			return Decision{UpToDate: false}
		}
		if info.ModTime().After(newestInputOrUpstream) {
			newestInputOrUpstream = info.ModTime()
		}
	}

	// Step 4: transitively collect mtimes of every upstream output,
	// guarded by a visited set against diamond shapes and (defensively)
	// cycles that slipped past validation.
	visited := make(map[string]struct{})
	var walk func(taskID string) bool
	walk = func(taskID string) bool {
		if _, seen := visited[taskID]; seen {
			return true
		}
		visited[taskID] = struct{}{}

		paths, ok := resolveUpstream(taskID)
		if !ok {
			return false
		}
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				return false
			}
			if info.ModTime().After(newestInputOrUpstream) {
				newestInputOrUpstream = info.ModTime()
			}
		}
		if resolveDependsOn != nil {
			for _, dep := range resolveDependsOn(taskID) {
				if !walk(dep) {
					return false
				}
			}
		}
		return true
	}
	for _, dep := range dependsOn {
		if !walk(dep) {
			return Decision{UpToDate: false}
		}
	}

	// Step 5: any missing/unreadable declared output => not up to date.
	var oldestOutput time.Time
	for i, p := range outputPaths {
		info, err := os.Stat(p)
		if err != nil {
			return Decision{UpToDate: false}
		}
		if i == 0 || info.ModTime().Before(oldestOutput) {
			oldestOutput = info.ModTime()
		}
	}

	// Step 6: "≥" comparison — equality counts as up-to-date.
	return Decision{UpToDate: !oldestOutput.Before(newestInputOrUpstream)}
}

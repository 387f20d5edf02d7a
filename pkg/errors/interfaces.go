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

package errors

// Classifier defines methods for programmatic error handling. Every
// typed error in this package implements it, so retry loops and error
// reporting can branch on category without matching concrete types.
type Classifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// Examples: "parse", "validation", "resolution", "executor"
	ErrorType() string

	// IsRetryable returns true if repeating the failed operation could
	// plausibly succeed. Structural failures (a rejected script path,
	// malformed params, an unresolvable input slot) return false;
	// only runtime executor failures (nonzero exit, timeout) are
	// worth another attempt.
	IsRetryable() bool
}

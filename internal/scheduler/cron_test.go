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

package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every hour", "0 * * * *", false},
		{"every day at midnight", "0 0 * * *", false},
		{"single weekday", "0 9 * * 1", false},
		{"fully wildcard", "* * * * *", false},
		{"invalid - too few fields", "* * *", true},
		{"invalid - too many fields", "* * * * * *", true},
		{"invalid - bad minute", "60 * * * *", true},
		{"invalid - bad hour", "0 25 * * *", true},
		{"invalid - range not supported", "0-5 * * * *", true},
		{"invalid - list not supported", "0,15,30 * * * *", true},
		{"invalid - step not supported", "*/15 * * * *", true},
		{"invalid - alias not supported", "@hourly", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCronExpr_Next(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		from     time.Time
		expected time.Time
	}{
		{
			name:     "every minute - next minute",
			expr:     "* * * * *",
			from:     time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
			expected: time.Date(2025, 1, 15, 10, 31, 0, 0, time.UTC),
		},
		{
			name:     "every hour at minute 0 - next hour",
			expr:     "0 * * * *",
			from:     time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
			expected: time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC),
		},
		{
			name:     "boundary reference equal to fire time rolls to next day",
			expr:     "0 8 * * *",
			from:     time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 1, 16, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "minute before fire time - fires later same day",
			expr:     "5 9 * * *",
			from:     time.Date(2025, 1, 15, 9, 4, 59, 0, time.UTC),
			expected: time.Date(2025, 1, 15, 9, 5, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseCron(tt.expr)
			if err != nil {
				t.Fatalf("ParseCron(%q) failed: %v", tt.expr, err)
			}
			got := expr.Next(tt.from)
			if !got.Equal(tt.expected) {
				t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.expected)
			}
		})
	}
}

func TestCronExpr_InvalidExpressionDisablesTrigger(t *testing.T) {
	expr, err := ParseCron("not a cron expression")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if expr != nil {
		t.Fatal("expected nil expression on parse failure")
	}
}

func TestCronExpr_NilReceiverReturnsReferenceUnchanged(t *testing.T) {
	var expr *CronExpr
	ref := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	if got := expr.Next(ref); !got.Equal(ref) {
		t.Errorf("Next on nil expr = %v, want unchanged reference %v", got, ref)
	}
}

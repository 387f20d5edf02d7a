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

// Package scheduler implements a deliberately restricted 5-field cron
// grammar: each field is either "*" or a single integer literal. Lists,
// ranges, steps, and "@" aliases are not accepted.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one of the five cron fields; wildcard is true for "*".
type field struct {
	wildcard bool
	value    int
}

func (f field) matches(v int) bool {
	return f.wildcard || f.value == v
}

// CronExpr is a parsed cron expression ready to compute fire times from.
type CronExpr struct {
	minute field
	hour   field
	dom    field
	month  field
	dow    field
	valid  bool
}

// maxSearchDays bounds how far into the future Next will search before
// giving up.
const maxSearchDays = 366

// ParseCron parses a classical 5-field cron expression (minute hour
// day-of-month month day-of-week), where each field must be "*" or a
// single integer literal within its valid range.
func ParseCron(expr string) (*CronExpr, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron expression %q must have exactly 5 fields, got %d", expr, len(parts))
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	dom, err := parseField(parts[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day-of-month field: %w", err)
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	dow, err := parseField(parts[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field: %w", err)
	}

	return &CronExpr{minute: minute, hour: hour, dom: dom, month: month, dow: dow, valid: true}, nil
}

func parseField(s string, min, max int) (field, error) {
	if s == "*" {
		return field{wildcard: true}, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return field{}, fmt.Errorf("%q is neither '*' nor an integer literal", s)
	}
	if v < min || v > max {
		return field{}, fmt.Errorf("%d out of range [%d,%d]", v, min, max)
	}
	return field{value: v}, nil
}

// Next returns the earliest instant strictly greater than ref, in
// ref's own location, whose (minute, hour, day-of-month, month,
// day-of-week) matches every non-wildcard field of c. The search
// proceeds in 1-minute increments bounded to maxSearchDays; if no
// match is found (or c failed to parse) the reference instant is
// returned unchanged.
func (c *CronExpr) Next(ref time.Time) time.Time {
	if c == nil || !c.valid {
		return ref
	}

	// Start at the next whole minute strictly after ref.
	t := ref.Truncate(time.Minute).Add(time.Minute)
	limit := ref.AddDate(0, 0, maxSearchDays)

	for !t.After(limit) {
		if c.minute.matches(t.Minute()) &&
			c.hour.matches(t.Hour()) &&
			c.dom.matches(t.Day()) &&
			c.month.matches(int(t.Month())) &&
			c.dow.matches(int(t.Weekday())) {
			return t
		}
		t = t.Add(time.Minute)
	}

	return ref
}

// Valid reports whether c parsed successfully.
func (c *CronExpr) Valid() bool {
	return c != nil && c.valid
}

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

// Package trigger holds the runtime trigger engine: homogeneous
// per-kind stores of trigger instances, firing on Tick, file events,
// or a manual call, each invoking an application-supplied callback.
package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/workflowengine/internal/scheduler"
)

// FireFunc is invoked synchronously whenever a trigger fires. It MUST
// NOT block indefinitely; callers typically enqueue a run request.
type FireFunc func(workflowID, triggerID string)

type immediateTrigger struct {
	workflowID, triggerID string
}

type cronTrigger struct {
	workflowID, triggerID string
	expr                  *scheduler.CronExpr
	enabled               bool
	nextFireTime          time.Time
	initialized           bool
}

type fileWatchTrigger struct {
	workflowID, triggerID string
	path                  string
	events                map[string]struct{}
	debounce              time.Duration
	enabled               bool
	lastFireTime          time.Time
	hasFired              bool
}

type manualTrigger struct {
	workflowID, triggerID string
	enabled               bool
}

// Engine stores each trigger kind in its own homogeneous slice so Tick
// and NotifyFileEvent stay branch-free hot paths instead of dispatching
// through a polymorphic list.
type Engine struct {
	mu sync.Mutex

	immediates []immediateTrigger
	crons      []cronTrigger
	fileWatch  []fileWatchTrigger
	manuals    []manualTrigger

	// pathIndex accelerates NotifyFileEvent dispatch: path -> indices
	// into fileWatch. Rebuilt after any removal.
	pathIndex map[string][]int

	fire   FireFunc
	logger *slog.Logger
}

// New creates an Engine that invokes fire whenever a trigger condition
// is met.
func New(fire FireFunc, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pathIndex: make(map[string][]int),
		fire:      fire,
		logger:    logger,
	}
}

// AddImmediateTrigger fires exactly once, synchronously, at
// registration time. No state is retained afterward.
func (e *Engine) AddImmediateTrigger(workflowID, triggerID string) {
	e.mu.Lock()
	e.immediates = append(e.immediates, immediateTrigger{workflowID, triggerID})
	e.mu.Unlock()
	e.fire(workflowID, triggerID)
}

// AddCronTrigger registers a cron trigger. Its next fire time is
// computed from the reference instant passed to the first Tick call
// (registration alone never fires it); an invalid expr disables the
// trigger permanently.
func (e *Engine) AddCronTrigger(workflowID, triggerID string, expr *scheduler.CronExpr, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.crons = append(e.crons, cronTrigger{
		workflowID: workflowID,
		triggerID:  triggerID,
		expr:       expr,
		enabled:    enabled && expr.Valid(),
	})
}

// AddFileWatchTrigger registers a file-watch trigger on an exact path.
func (e *Engine) AddFileWatchTrigger(workflowID, triggerID, path string, events []string, debounce time.Duration, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	eventSet := make(map[string]struct{}, len(events))
	for _, ev := range events {
		eventSet[ev] = struct{}{}
	}

	idx := len(e.fileWatch)
	e.fileWatch = append(e.fileWatch, fileWatchTrigger{
		workflowID: workflowID,
		triggerID:  triggerID,
		path:       path,
		events:     eventSet,
		debounce:   debounce,
		enabled:    enabled,
	})
	e.pathIndex[path] = append(e.pathIndex[path], idx)
}

// AddManualTrigger registers a trigger that only fires via FireManualTrigger.
func (e *Engine) AddManualTrigger(workflowID, triggerID string, enabled bool) {
	e.mu.Lock()
	e.manuals = append(e.manuals, manualTrigger{workflowID, triggerID, enabled})
	e.mu.Unlock()
}

// Tick fires every enabled, valid cron trigger whose nextFireTime <=
// now, then recomputes nextFireTime from now.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	var toFire []cronTrigger
	for i := range e.crons {
		c := &e.crons[i]
		if !c.enabled {
			continue
		}
		if !c.initialized {
			c.nextFireTime = c.expr.Next(now)
			c.initialized = true
			continue
		}
		if !c.nextFireTime.After(now) {
			toFire = append(toFire, *c)
			c.nextFireTime = c.expr.Next(now)
		}
	}
	e.mu.Unlock()

	for _, c := range toFire {
		e.fire(c.workflowID, c.triggerID)
	}
}

// NotifyFileEvent fires every enabled file-watch trigger registered on
// path whose event set contains kind, subject to debounce: a trigger
// fires iff it has never fired, or now-lastFireTime >= debounce.
func (e *Engine) NotifyFileEvent(path, kind string, now time.Time) {
	e.mu.Lock()
	var toFire []int
	for _, idx := range e.pathIndex[path] {
		fw := &e.fileWatch[idx]
		if !fw.enabled {
			continue
		}
		if _, ok := fw.events[kind]; !ok {
			continue
		}
		if fw.hasFired && now.Sub(fw.lastFireTime) < fw.debounce {
			continue
		}
		fw.lastFireTime = now
		fw.hasFired = true
		toFire = append(toFire, idx)
	}
	var fires []fileWatchTrigger
	for _, idx := range toFire {
		fires = append(fires, e.fileWatch[idx])
	}
	e.mu.Unlock()

	for _, fw := range fires {
		e.fire(fw.workflowID, fw.triggerID)
	}
}

// FireManualTrigger fires the matching enabled manual trigger, if any.
func (e *Engine) FireManualTrigger(workflowID, triggerID string) bool {
	e.mu.Lock()
	found := false
	for _, m := range e.manuals {
		if m.workflowID == workflowID && m.triggerID == triggerID && m.enabled {
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		e.logger.Warn("manual trigger not found or disabled", "workflow_id", workflowID, "trigger_id", triggerID)
		return false
	}
	e.fire(workflowID, triggerID)
	return true
}

// ClearWorkflowTriggers removes every trigger registered for workflowID
// across all kinds and rebuilds the path index.
func (e *Engine) ClearWorkflowTriggers(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.immediates = filterOut(e.immediates, func(t immediateTrigger) bool { return t.workflowID == workflowID })
	e.crons = filterOut(e.crons, func(t cronTrigger) bool { return t.workflowID == workflowID })
	e.manuals = filterOut(e.manuals, func(t manualTrigger) bool { return t.workflowID == workflowID })
	e.fileWatch = filterOut(e.fileWatch, func(t fileWatchTrigger) bool { return t.workflowID == workflowID })

	e.pathIndex = make(map[string][]int, len(e.pathIndex))
	for i, fw := range e.fileWatch {
		e.pathIndex[fw.path] = append(e.pathIndex[fw.path], i)
	}
}

func filterOut[T any](in []T, remove func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if !remove(v) {
			out = append(out, v)
		}
	}
	return out
}

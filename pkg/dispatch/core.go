// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch wires the work-unit pipeline together: the Ready Set,
// the Aborted Store, the Template Store, the memory arbiter, and the
// engine, behind a single Core that the worker pool drives.
package dispatch

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kraklabs/hlid/pkg/aborted"
	"github.com/kraklabs/hlid/pkg/dedup"
	"github.com/kraklabs/hlid/pkg/engine"
	"github.com/kraklabs/hlid/pkg/memory"
	"github.com/kraklabs/hlid/pkg/observer"
	"github.com/kraklabs/hlid/pkg/readyset"
	"github.com/kraklabs/hlid/pkg/template"
	"github.com/kraklabs/hlid/pkg/workunit"
)

// Core is the shared state every worker goroutine reads and mutates: the
// Template Store, the Ready Set, the Aborted Store, the memory arbiter, the
// optional dedup views, the engine, and the giveup log. It never blocks on
// an Observer and never touches OS processes directly; cancellation runs
// through the engine's process registry.
type Core struct {
	cfg *RunConfig

	templates *template.Store
	ready     *readyset.Set
	abortedSt *aborted.Store
	budget    *memory.Budget
	eng       *engine.Engine
	giveup    *GiveupLog
	obs       observer.Observer

	dbView  *dedup.DatabaseView
	outView *dedup.OutputDirView

	logger *slog.Logger

	nthreads int

	unpacking  int32
	abandoned  int64
	terminated int32
	termOnce   sync.Once
}

// NewCore assembles a Core from its already-constructed collaborators.
// dbView and outView may be nil when no persistent database or prior-output
// directory is configured. logger may be nil, in which case it falls back
// to slog.Default().
func NewCore(
	cfg *RunConfig,
	templates *template.Store,
	ready *readyset.Set,
	abortedSt *aborted.Store,
	budget *memory.Budget,
	eng *engine.Engine,
	giveup *GiveupLog,
	obs observer.Observer,
	dbView *dedup.DatabaseView,
	outView *dedup.OutputDirView,
	logger *slog.Logger,
) *Core {
	if obs == nil {
		obs = observer.Null{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		cfg:       cfg,
		templates: templates,
		ready:     ready,
		abortedSt: abortedSt,
		budget:    budget,
		eng:       eng,
		giveup:    giveup,
		obs:       obs,
		dbView:    dbView,
		outView:   outView,
		logger:    logger,
		nthreads:  cfg.NThreads,
	}
}

// LoadComputations is the controller op that reads the input stream into
// the Template Store and announces the load to the Observer. It is also
// the reload entry point a future input-file watch would call.
func (c *Core) LoadComputations(path string, r io.Reader, schema template.Schema) error {
	c.logger.Info("dispatch.templates.load.start", "path", path)
	if err := c.templates.Load(r, schema, c.cfg.MaxPerTemplate); err != nil {
		c.logger.Warn("dispatch.templates.load.failed", "path", path, "err", err)
		return err
	}
	c.logger.Info("dispatch.templates.load.done", "path", path, "templates", c.templates.Size())
	c.obs.LoadedComputations(path)
	return nil
}

// Terminating reports whether Terminate has been called.
func (c *Core) Terminating() bool {
	return atomic.LoadInt32(&c.terminated) != 0
}

// Terminate drains every store and releases every waiter on the memory
// arbiter, then kills any in-flight engine processes. Safe to call more
// than once.
func (c *Core) Terminate() {
	c.termOnce.Do(func() {
		c.logger.Info("dispatch.core.terminate", "kind", KindShutdown.String())
		atomic.StoreInt32(&c.terminated, 1)
		c.ready.Clear()
		c.templates.Clear()
		c.abortedSt.Clear()
		c.budget.Terminate()
		c.eng.TerminateAll()
	})
}

// MarkAsBad moves a unit the engine failed to complete into the Aborted
// Store, bucketed at the memory cap it was attempted under.
func (c *Core) MarkAsBad(u workunit.Unit, capMB int) {
	c.abortedSt.Insert(u, capMB)
}

// Assign implements the assignment protocol in full: compute the batch
// target from the configured batch size and the ready set's current size,
// divide it by nthreads squared for a large-role worker, fill from the Aborted Store
// first (resurrection) and the Ready Set second, then trigger an unpack
// pass if the Ready Set fell below the configured minimum threshold.
// carryOver holds units the caller is already responsible for; they count
// toward the batch target and are returned as the prefix of the result.
func (c *Core) Assign(capMB int, carryOver []workunit.Unit, isLarge bool) []workunit.Unit {
	assigned := make([]workunit.Unit, len(carryOver))
	copy(assigned, carryOver)

	target := c.cfg.ComputationsPerProcess
	if readySize := c.ready.Len(); readySize > 0 {
		if perThread := readySize / c.nthreads; perThread < target {
			target = perThread
		}
	}
	if isLarge {
		target /= c.nthreads * c.nthreads
	}
	if target == 0 && len(carryOver) == 0 {
		target = 1
	}

	toAdd := target - len(assigned)
	if toAdd < 0 {
		toAdd = 0
	}

	resurrected := c.abortedSt.ExtractBelow(capMB, toAdd)
	if len(resurrected) > 0 {
		c.obs.Resurrected(len(resurrected), capMB)
	}
	c.obs.UpdateBadSummary(convertCapCounts(c.abortedSt.Summary()))
	toAdd -= len(resurrected)
	assigned = append(assigned, resurrected...)

	if toAdd > 0 {
		assigned = append(assigned, c.ready.Assign(toAdd)...)
	}

	if len(assigned) > 0 {
		c.obs.Assigned(len(assigned))
	}

	if c.ready.Len() < c.cfg.MinThreshold {
		c.unpackAndDedup()
	}

	return assigned
}

// unpackAndDedup expands queued templates directly into the Ready Set until
// it reaches the configured high-water mark or the Template Store is
// empty, then filters the touched primary keys against the database view
// and the prior-output view. Tracked via the unpacking counter so Finished
// doesn't report done while an unpack pass is still running.
func (c *Core) unpackAndDedup() {
	atomic.AddInt32(&c.unpacking, 1)
	defer atomic.AddInt32(&c.unpacking, -1)

	c.logger.Debug("dispatch.unpack.start", "ready", c.ready.Len(), "templates", c.templates.Size())
	unpacked := 0
	for !c.Terminating() && c.ready.Len() < c.cfg.MinThreshold && !c.templates.Empty() {
		c.obs.Unpacking()
		before := c.ready.Len()
		touched := c.templates.UnpackInto(c.ready, c.cfg.UnpackHighWater)
		unpacked += c.ready.Len() - before
		c.obs.Unpacked(c.ready.Len() - before)

		if len(touched) == 0 {
			break
		}
		if c.dbView != nil {
			if n, err := c.dbView.EliminateInDB(c.ready, touched); err == nil {
				c.obs.RemovedInDB(n)
			} else {
				c.logger.Warn("dispatch.unpack.db_view_failed", "err", err)
			}
		}
		if c.outView != nil {
			if n, err := c.outView.EliminatePrecalculated(c.ready, c.Terminating); err == nil {
				c.obs.RemovedPrecalculated(n)
			} else {
				c.logger.Warn("dispatch.unpack.out_view_failed", "err", err)
			}
		}
	}
	c.logger.Debug("dispatch.unpack.done", "unpacked", unpacked, "ready", c.ready.Len())
}

// Tick runs the Giveup writer's periodic check: any unit whose failure cap
// has reached the configured total memory limit has exhausted every budget
// the arbiter could ever grant it and is written to the Giveup Log. When
// nothing was drained, a progress Tick event is emitted instead.
func (c *Core) Tick() error {
	drained := c.abortedSt.DrainAtOrAbove(c.cfg.TotalMemoryLimit)
	if len(drained) == 0 {
		c.obs.Tick(c.templates.Size(), c.ready.Len(), c.abortedSt.Size(), int(atomic.LoadInt64(&c.abandoned)))
		return nil
	}
	if err := c.giveup.Append(drained, c.cfg.TotalMemoryLimit, c.eng.Version()); err != nil {
		c.logger.Warn("dispatch.giveup.write_failed", "err", err)
		return err
	}
	atomic.AddInt64(&c.abandoned, int64(len(drained)))
	c.logger.Info("dispatch.giveup.appended", "count", len(drained))
	c.obs.AbortedToGiveup(len(drained))
	return nil
}

// DisplayMemory emits a snapshot of the current memory budget state.
func (c *Core) DisplayMemory() {
	c.obs.DisplayMemory(c.budget.TotalLimit(), c.budget.BaseLimit(), c.budget.Allocated(),
		c.budget.TotalLimit()-c.budget.Allocated())
}

// Finished reports whether the run has nothing left to do: the Ready Set,
// the Template Store, and the Aborted Store are all empty and no unpack
// pass is in flight, or termination was requested.
func (c *Core) Finished() bool {
	if c.Terminating() {
		return true
	}
	return c.ready.Empty() &&
		atomic.LoadInt32(&c.unpacking) == 0 &&
		c.templates.Empty() &&
		c.abortedSt.Empty()
}

// LowestEffectiveMemoryLimit reports the memory cap the arbiter's decision
// rule should treat as the current floor: zero while there is still
// fresh work to assign, otherwise the Aborted Store's lowest non-empty
// cap, so a resize never grants less than what the next resurrection
// needs.
func (c *Core) LowestEffectiveMemoryLimit() int {
	if !c.ready.Empty() || !c.templates.Empty() {
		return 0
	}
	return c.abortedSt.LowestNonemptyCap()
}

// Abandoned returns the total number of units written to the Giveup Log so
// far.
func (c *Core) Abandoned() int {
	return int(atomic.LoadInt64(&c.abandoned))
}

// reconcileBatch matches each result line against the batch it was assigned
// from by set-difference (§4.5's reconciliation step): a result line
// satisfies a unit if it equals or is prefixed by that unit's wire form
// followed by ";". When the invocation itself failed (timeout or nonzero
// exit) and units remain unmatched, the first remaining unit in iteration
// order is charged to the Aborted Store at this cap and removed from the
// carry-over; the rest carry over to the worker's next assignment
// unchanged — a clean exit with unmatched lines is not treated as a
// failure, since the engine may legitimately emit fewer records than it
// was asked to compute in a single invocation.
func (c *Core) reconcileBatch(batch []workunit.Unit, results []engine.Result, invokeErr error, capMB int) []workunit.Unit {
	seen := make([]bool, len(batch))
	for _, r := range results {
		idx := matchUnit(batch, seen, r.Line)
		if idx < 0 {
			unknownErr := NewUnknownResultLineError(r.Line)
			c.logger.Warn("dispatch.worker.unknown_result_line", "err", unknownErr)
			continue
		}
		seen[idx] = true
	}

	var remaining []workunit.Unit
	matchedCount := 0
	for i, u := range batch {
		if seen[i] {
			matchedCount++
			continue
		}
		remaining = append(remaining, u)
	}

	if invokeErr != nil && len(remaining) > 0 {
		bad := remaining[0]
		engErr := NewEngineFailureError("invoke engine", invokeErr)
		c.logger.Warn("dispatch.worker.aborted", "unit", bad.String(), "cap_mb", capMB, "err", engErr)
		c.obs.BadComputation(bad, capMB, strings.Contains(invokeErr.Error(), "timed out"))
		c.MarkAsBad(bad, capMB)
		remaining = remaining[1:]
	}

	c.obs.FinishedComputations(matchedCount, capMB)
	return remaining
}

// matchUnit finds the first not-yet-seen unit in batch whose wire form is a
// prefix of line, per the "<unit>;<output columns...>" result record shape.
func matchUnit(batch []workunit.Unit, seen []bool, line string) int {
	for i, u := range batch {
		if seen[i] {
			continue
		}
		prefix := u.String()
		if line == prefix || strings.HasPrefix(line, prefix+";") {
			return i
		}
	}
	return -1
}

func convertCapCounts(in []aborted.CapCount) []observer.CapCount {
	out := make([]observer.CapCount, len(in))
	for i, cc := range in {
		out[i] = observer.CapCount{Cap: cc.Cap, Count: cc.Count}
	}
	return out
}

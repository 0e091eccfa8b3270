// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"

	"github.com/kraklabs/hlid/pkg/memory"
	"github.com/kraklabs/hlid/pkg/workunit"
)

// RunWorker drives one worker's lifetime: acquire a memory cap for role,
// repeatedly assign a batch, invoke the engine, reconcile the results
// against the batch, and carry any leftover units into the next
// inner-loop iteration. The inner loop exits either when the arbiter's
// resize rule says this cap is oversized for what remains
// (LargeThreadCondition) or, for the large role, unconditionally after
// each invocation — the large slot exists to absorb a burst, not to hold
// the budget indefinitely. Terminates when the arbiter returns a zero cap.
func RunWorker(ctx context.Context, core *Core, processID int, role memory.Role) {
	isLarge := role == memory.RoleLarge
	cap := core.budget.Start(role)
	if cap == 0 {
		return
	}
	core.obs.ThreadStarted(cap)

	var carryOver []workunit.Unit
	for {
		var leftover []workunit.Unit
		for {
			if core.Terminating() {
				leftover = nil
				break
			}

			batch := core.Assign(cap, carryOver, isLarge)
			if len(batch) == 0 {
				leftover = nil
				break
			}
			core.obs.ComputationsAdded(len(batch), cap)

			if err := core.eng.WriteBatch(processID, batch); err != nil {
				// The engine never saw the batch: every unit is a leftover
				// for the next iteration rather than a confirmed failure.
				leftover = batch
				break
			}

			results, invokeErr := core.eng.Invoke(ctx, processID, cap)

			lines := make([]string, 0, len(results))
			for _, r := range results {
				lines = append(lines, r.Line)
			}
			_ = core.eng.AppendResults(processID, lines)

			remaining := core.reconcileBatch(batch, results, invokeErr, cap)
			carryOver = remaining
			leftover = remaining

			if isLarge || core.budget.LargeThreadCondition(cap) {
				break
			}
		}
		carryOver = leftover

		core.obs.ThreadStopped(cap)
		next := core.budget.Resize(cap)
		if next == 0 {
			return
		}
		cap = next
		core.obs.ThreadStarted(cap)
	}
}

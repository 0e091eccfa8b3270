// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/hlid/pkg/aborted"
	"github.com/kraklabs/hlid/pkg/engine"
	"github.com/kraklabs/hlid/pkg/memory"
	"github.com/kraklabs/hlid/pkg/readyset"
	"github.com/kraklabs/hlid/pkg/template"
	"github.com/kraklabs/hlid/pkg/workunit"
)

func testCore(t *testing.T, cfg *RunConfig) *Core {
	t.Helper()
	ts := template.NewStore()
	rs := readyset.New()
	as := aborted.New()
	budget := memory.NewBudget(cfg.TotalMemoryLimit, cfg.BaseMemoryLimit, as.LowestNonemptyCap)
	t.Cleanup(budget.Terminate)
	eng := engine.New(engine.Config{
		StagingDir:      t.TempDir(),
		OutputDir:       t.TempDir(),
		OutputExtension: ".out",
	}, nil)
	giveup := NewGiveupLog(t.TempDir() + "/giveup.log")
	return NewCore(cfg, ts, rs, as, budget, eng, giveup, nil, nil, nil, nil)
}

func testConfig() *RunConfig {
	return &RunConfig{
		NThreads:               2,
		TotalMemoryLimit:       1024,
		BaseMemoryLimit:        128,
		ComputationsPerProcess: 8,
		MinThreshold:           0,
		UnpackHighWater:        100,
	}
}

func units(n int) []workunit.Unit {
	out := make([]workunit.Unit, n)
	for i := range out {
		out[i] = workunit.New(1, []string{"v" + string(rune('a'+i))})
	}
	return out
}

// S3: Ready Set has 10 units; engine emits result lines for 7 of them, then
// the invocation itself fails. Reconciliation must complete 7, mark exactly
// one bad (the first remaining in iteration order), and carry over 2.
func TestReconcileBatchMarksFirstRemainingBadOnFailure(t *testing.T) {
	core := testCore(t, testConfig())
	batch := units(10)

	var results []engine.Result
	for _, u := range batch[:7] {
		results = append(results, engine.Result{Line: u.String() + ";done"})
	}

	remaining := core.reconcileBatch(batch, results, errors.New("engine: exited: exit status 1"), 128)

	require.Len(t, remaining, 2)
	require.Equal(t, 1, core.abortedSt.Size())
	extracted := core.abortedSt.ExtractBelow(129, 10)
	require.Len(t, extracted, 1)
	assert.True(t, extracted[0].Equal(batch[7]), "the first remaining unit in iteration order must be the one marked bad")
}

func TestReconcileBatchWithoutInvokeErrorNeverMarksBad(t *testing.T) {
	core := testCore(t, testConfig())
	batch := units(3)
	results := []engine.Result{{Line: batch[0].String()}}

	remaining := core.reconcileBatch(batch, results, nil, 128)

	require.Len(t, remaining, 2)
	assert.True(t, core.abortedSt.Empty())
}

func TestReconcileBatchAllMatchedLeavesNothingToCarry(t *testing.T) {
	core := testCore(t, testConfig())
	batch := units(3)
	var results []engine.Result
	for _, u := range batch {
		results = append(results, engine.Result{Line: u.String() + ";ok"})
	}

	remaining := core.reconcileBatch(batch, results, nil, 128)

	assert.Empty(t, remaining)
	assert.True(t, core.abortedSt.Empty())
}

func TestAssignFillsFromAbortedStoreBeforeReadySet(t *testing.T) {
	cfg := testConfig()
	cfg.ComputationsPerProcess = 4
	core := testCore(t, cfg)

	resurrectable := workunit.New(9, []string{"r"})
	core.abortedSt.Insert(resurrectable, 64)
	for _, u := range units(10) {
		core.ready.Insert(u)
	}

	batch := core.Assign(128, nil, false)

	found := false
	for _, u := range batch {
		if u.Equal(resurrectable) {
			found = true
		}
	}
	assert.True(t, found, "resurrected unit must appear in the assigned batch")
}

func TestAssignForwardProgressGuaranteeWhenTargetIsZero(t *testing.T) {
	cfg := testConfig()
	cfg.ComputationsPerProcess = 8
	cfg.NThreads = 100 // readySize/nthreads rounds to 0
	core := testCore(t, cfg)
	core.ready.Insert(workunit.New(1, []string{"a"}))

	batch := core.Assign(128, nil, false)

	require.Len(t, batch, 1, "a zero target with no carry-over must still assign exactly one unit")
}

func TestAssignHalvesTwiceForLargeRole(t *testing.T) {
	cfg := testConfig()
	cfg.NThreads = 2
	cfg.ComputationsPerProcess = 100
	core := testCore(t, cfg)
	for _, u := range units(50) {
		core.ready.Insert(u)
	}

	batch := core.Assign(512, nil, true)

	// readySize/nthreads = 25, /nthreads^2 (4) = 6
	assert.Len(t, batch, 6)
}

func TestAssignIncludesCarryOverInTarget(t *testing.T) {
	cfg := testConfig()
	cfg.ComputationsPerProcess = 4
	core := testCore(t, cfg)
	for _, u := range units(10) {
		core.ready.Insert(u)
	}
	carryOver := units(2)

	batch := core.Assign(128, carryOver, false)

	assert.Len(t, batch, 4)
	assert.Equal(t, carryOver[0].Key(), batch[0].Key())
	assert.Equal(t, carryOver[1].Key(), batch[1].Key())
}

// S4: aborted at cap=total_limit=128MB; tick must drain them into the
// Giveup Log and leave the Aborted Store empty.
func TestTickDrainsAbortedAtOrAboveTotalLimitIntoGiveupLog(t *testing.T) {
	cfg := testConfig()
	cfg.TotalMemoryLimit = 128
	core := testCore(t, cfg)
	u := workunit.New(3, []string{"x"})
	core.abortedSt.Insert(u, 128)

	err := core.Tick()

	require.NoError(t, err)
	assert.True(t, core.abortedSt.Empty())
	assert.Equal(t, 1, core.Abandoned())
}

func TestTickLeavesBelowCapUnitsInPlace(t *testing.T) {
	cfg := testConfig()
	cfg.TotalMemoryLimit = 256
	core := testCore(t, cfg)
	core.abortedSt.Insert(workunit.New(3, []string{"x"}), 128)

	err := core.Tick()

	require.NoError(t, err)
	assert.Equal(t, 1, core.abortedSt.Size())
	assert.Equal(t, 0, core.Abandoned())
}

func TestFinishedRequiresEveryStoreEmpty(t *testing.T) {
	core := testCore(t, testConfig())
	assert.True(t, core.Finished())

	core.ready.Insert(workunit.New(1, []string{"a"}))
	assert.False(t, core.Finished())
	core.ready.Clear()

	core.abortedSt.Insert(workunit.New(1, []string{"a"}), 128)
	assert.False(t, core.Finished())
}

func TestFinishedIsTrueImmediatelyAfterTerminate(t *testing.T) {
	core := testCore(t, testConfig())
	core.ready.Insert(workunit.New(1, []string{"a"}))
	core.Terminate()
	assert.True(t, core.Finished())
}

func TestLowestEffectiveMemoryLimitIsZeroWithFreshWork(t *testing.T) {
	core := testCore(t, testConfig())
	core.ready.Insert(workunit.New(1, []string{"a"}))
	core.abortedSt.Insert(workunit.New(2, []string{"b"}), 256)
	assert.Equal(t, 0, core.LowestEffectiveMemoryLimit())
}

func TestLowestEffectiveMemoryLimitFallsBackToAbortedLowestCap(t *testing.T) {
	core := testCore(t, testConfig())
	core.abortedSt.Insert(workunit.New(2, []string{"b"}), 256)
	core.abortedSt.Insert(workunit.New(3, []string{"c"}), 128)
	assert.Equal(t, 128, core.LowestEffectiveMemoryLimit())
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/hlid/pkg/memory"
)

func TestStartGrantsBaseLimitWhenRoomAvailable(t *testing.T) {
	b := memory.NewBudget(1024, 128, nil)
	defer b.Terminate()

	cap := b.Start(memory.RoleNormal)
	assert.Equal(t, 128, cap)
	assert.Equal(t, 128, b.Allocated())
}

func TestLargeRoleStartsWithFullRemainingBudget(t *testing.T) {
	b := memory.NewBudget(1024, 128, nil)
	defer b.Terminate()

	cap := b.Start(memory.RoleLarge)
	assert.Equal(t, 1024, cap)
}

func TestLargeRoleClaimsFullBudgetAfterAllReleased(t *testing.T) {
	// S5 from the spec: total=1024 base=128 nthreads=4.
	b := memory.NewBudget(1024, 128, nil)
	defer b.Terminate()

	first := b.Start(memory.RoleNormal) // 128
	second := b.Start(memory.RoleNormal)
	third := b.Start(memory.RoleNormal)
	require.Equal(t, 128, first)
	require.Equal(t, 128, second)
	require.Equal(t, 128, third)
	assert.Equal(t, 384, b.Allocated())

	// Release all three; the large slot should then be able to claim the
	// entire remaining 1024.
	b.Release(first)
	b.Release(second)
	b.Release(third)
	large := b.Start(memory.RoleLarge)
	assert.Equal(t, 1024, large)
}

func TestResizeReacquiresUnderTheSameRule(t *testing.T) {
	b := memory.NewBudget(1024, 128, nil)
	defer b.Terminate()

	cap := b.Start(memory.RoleLarge)
	require.Equal(t, 1024, cap)

	newCap := b.Resize(cap)
	assert.Equal(t, 1024, newCap)
}

func TestMemoryInvariantAllocatedNeverExceedsTotal(t *testing.T) {
	b := memory.NewBudget(512, 64, nil)
	defer b.Terminate()

	var wg sync.WaitGroup
	caps := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caps[i] = b.Start(memory.RoleNormal)
		}(i)
	}
	wg.Wait()

	sum := 0
	for _, c := range caps {
		sum += c
	}
	assert.LessOrEqual(t, sum, 512)
	assert.Equal(t, sum, b.Allocated())
}

func TestTerminateReleasesWaitersWithZero(t *testing.T) {
	b := memory.NewBudget(128, 128, nil)

	// Exhaust the budget so a second Start call must wait.
	first := b.Start(memory.RoleNormal)
	require.Equal(t, 128, first)

	done := make(chan int, 1)
	go func() {
		done <- b.Start(memory.RoleNormal)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Terminate()

	select {
	case cap := <-done:
		assert.Equal(t, 0, cap)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not wake up after Terminate")
	}
}

func TestLargeThreadConditionHoldsWellAboveBaseAndAbortedLowest(t *testing.T) {
	lowest := 10
	b := memory.NewBudget(1024, 64, func() int { return lowest })
	defer b.Terminate()

	assert.True(t, b.LargeThreadCondition(512))
	assert.False(t, b.LargeThreadCondition(64))
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package observer_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/hlid/pkg/observer"
	"github.com/kraklabs/hlid/pkg/workunit"
)

type countingObserver struct {
	ticks int
}

func (c *countingObserver) ComputationsAdded(int, int)              {}
func (c *countingObserver) ThreadStarted(int)                       {}
func (c *countingObserver) ThreadStopped(int)                       {}
func (c *countingObserver) BadComputation(workunit.Unit, int, bool) {}
func (c *countingObserver) FinishedComputations(int, int)           {}
func (c *countingObserver) Unpacking()                              {}
func (c *countingObserver) Unpacked(int)                            {}
func (c *countingObserver) RemovedInDB(int)                         {}
func (c *countingObserver) RemovedPrecalculated(int)                {}
func (c *countingObserver) LoadedComputations(string)                {}
func (c *countingObserver) AbortedToGiveup(int)                      {}
func (c *countingObserver) Resurrected(int, int)                    {}
func (c *countingObserver) Assigned(int)                            {}
func (c *countingObserver) Tick(int, int, int, int)                 { c.ticks++ }
func (c *countingObserver) UpdateBadSummary([]observer.CapCount)    {}
func (c *countingObserver) DisplayMemory(int, int, int, int)        {}

func TestMultiFansOutToEveryObserver(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	multi := observer.Multi{a, b}
	multi.Tick(1, 2, 3, 4)

	assert.Equal(t, 1, a.ticks)
	assert.Equal(t, 1, b.ticks)
}

func TestNullObserverDiscardsEvents(t *testing.T) {
	var o observer.Observer = observer.Null{}
	assert.NotPanics(t, func() {
		o.ComputationsAdded(1, 128)
		o.BadComputation(workunit.New(1, nil), 128, false)
		o.Tick(1, 2, 3, 4)
	})
}

func TestMetricsHandlerServesPrometheusFormat(t *testing.T) {
	m := observer.NewMetrics()
	m.FinishedComputations(5, 128)
	m.AbortedToGiveup(2)
	m.Tick(10, 20, 3, 2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "hlid_computations_completed_total 5")
	assert.Contains(t, body, "hlid_computations_giveup_total 2")
}

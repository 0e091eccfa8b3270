// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package observer

import (
	"fmt"
	"sync"

	"github.com/kraklabs/hlid/internal/ui"
	"github.com/kraklabs/hlid/pkg/workunit"
)

// Stream is the terminal/log presentation of dispatcher events: headers,
// counts, and a running summary line, in the style of the teacher's
// `ui.Header`/`ui.CountText` index-command output. Guarded by its own
// mutex since multiple workers emit events concurrently.
type Stream struct {
	mu        sync.Mutex
	completed int
	aborted   int
	giveups   int
	bar       *ui.Progress
}

// NewStream returns a Stream observer writing to stdout, with a progress
// bar tracking assigned-vs-finished units across the whole run.
func NewStream() *Stream {
	return &Stream{bar: ui.NewProgress(0, "dispatching")}
}

func (s *Stream) ComputationsAdded(n int, capMB int) {
	s.bar.GrowMax(n)
	fmt.Printf("%s %s units at %dMB\n", ui.Label("assigned:"), ui.CountText(n), capMB)
}

func (s *Stream) ThreadStarted(capMB int) {
	fmt.Printf("%s worker started at %dMB\n", ui.DimText("•"), capMB)
}

func (s *Stream) ThreadStopped(capMB int) {
	fmt.Printf("%s worker stopped at %dMB\n", ui.DimText("•"), capMB)
}

func (s *Stream) BadComputation(unit workunit.Unit, capMB int, timeout bool) {
	s.mu.Lock()
	s.aborted++
	s.mu.Unlock()
	s.bar.Add(1)
	reason := "engine failure"
	if timeout {
		reason = "timeout"
	}
	_, _ = ui.Yellow.Printf("aborted: %s at %dMB (%s)\n", unit.String(), capMB, reason)
}

func (s *Stream) FinishedComputations(n int, capMB int) {
	s.mu.Lock()
	s.completed += n
	s.mu.Unlock()
	s.bar.Add(n)
	_, _ = ui.Green.Printf("finished: %s units at %dMB\n", ui.CountText(n), capMB)
}

func (s *Stream) Unpacking() {
	fmt.Println(ui.DimText("unpacking..."))
}

func (s *Stream) Unpacked(n int) {
	fmt.Printf("unpacked %s units\n", ui.CountText(n))
}

func (s *Stream) RemovedInDB(n int) {
	if n > 0 {
		fmt.Printf("%s %s already in database\n", ui.Label("removed:"), ui.CountText(n))
	}
}

func (s *Stream) RemovedPrecalculated(n int) {
	if n > 0 {
		fmt.Printf("%s %s already precalculated\n", ui.Label("removed:"), ui.CountText(n))
	}
}

func (s *Stream) LoadedComputations(path string) {
	ui.Header("Templates Loaded")
	fmt.Printf("%s %s\n", ui.Label("Source:"), path)
}

func (s *Stream) AbortedToGiveup(n int) {
	s.mu.Lock()
	s.giveups += n
	s.mu.Unlock()
	_, _ = ui.Red.Printf("giveup: %s units exhausted their memory budget\n", ui.CountText(n))
}

func (s *Stream) Resurrected(n int, capMB int) {
	fmt.Printf("resurrected %s units at %dMB\n", ui.CountText(n), capMB)
}

func (s *Stream) Assigned(n int) {
	fmt.Printf("%s %s units\n", ui.Label("assigned:"), ui.CountText(n))
}

func (s *Stream) Tick(packed, unpacked, bad, abandoned int) {
	fmt.Printf("%s packed=%s unpacked=%s bad=%s abandoned=%s\n",
		ui.DimText("tick:"), ui.CountText(packed), ui.CountText(unpacked), ui.CountText(bad), ui.CountText(abandoned))
}

func (s *Stream) UpdateBadSummary(summary []CapCount) {
	if len(summary) == 0 {
		return
	}
	ui.SubHeader("Aborted by cap:")
	for _, cc := range summary {
		fmt.Printf("  %dMB: %s\n", cc.Cap, ui.CountText(cc.Count))
	}
}

func (s *Stream) DisplayMemory(limit, base, allocated, free int) {
	fmt.Printf("%s limit=%dMB base=%dMB allocated=%dMB free=%dMB\n",
		ui.Label("memory:"), limit, base, allocated, free)
}

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

// Package observer defines the passive sink for dispatcher progress
// events. The core never waits on an Observer; it is a single capability
// surface that the stream and metrics consumers implement independently,
// replacing the original virtual-hierarchy-per-presentation design.
package observer

import "github.com/kraklabs/hlid/pkg/workunit"

// CapCount pairs a memory cap with a count of aborted units at it, mirrored
// from pkg/aborted to avoid an import cycle between the two packages.
type CapCount struct {
	Cap   int
	Count int
}

// Observer is the event surface the dispatcher core emits to. All methods
// must return quickly: the core never blocks on an observer.
type Observer interface {
	ComputationsAdded(n int, capMB int)
	ThreadStarted(capMB int)
	ThreadStopped(capMB int)
	// BadComputation reports the unit charged for a failed invocation: the
	// first unit, in the batch's assignment order, the engine did not emit.
	BadComputation(unit workunit.Unit, capMB int, timeout bool)
	FinishedComputations(n int, capMB int)
	Unpacking()
	Unpacked(n int)
	RemovedInDB(n int)
	RemovedPrecalculated(n int)
	LoadedComputations(path string)
	AbortedToGiveup(n int)
	Resurrected(n int, capMB int)
	Assigned(n int)
	Tick(packed, unpacked, bad, abandoned int)
	UpdateBadSummary(summary []CapCount)
	DisplayMemory(limit, base, allocated, free int)
}

// Null is an Observer that discards every event, used in tests and as a
// safe default before a real observer is attached.
type Null struct{}

func (Null) ComputationsAdded(int, int)                {}
func (Null) ThreadStarted(int)                         {}
func (Null) ThreadStopped(int)                         {}
func (Null) BadComputation(workunit.Unit, int, bool)   {}
func (Null) FinishedComputations(int, int)             {}
func (Null) Unpacking()                                {}
func (Null) Unpacked(int)                              {}
func (Null) RemovedInDB(int)                           {}
func (Null) RemovedPrecalculated(int)                  {}
func (Null) LoadedComputations(string)                 {}
func (Null) AbortedToGiveup(int)                        {}
func (Null) Resurrected(int, int)                      {}
func (Null) Assigned(int)                              {}
func (Null) Tick(int, int, int, int)                   {}
func (Null) UpdateBadSummary([]CapCount)               {}
func (Null) DisplayMemory(int, int, int, int)          {}

// Multi fans events out to every observer in the list, used when both a
// stream observer and a metrics observer are attached simultaneously.
type Multi []Observer

func (m Multi) ComputationsAdded(n, capMB int) {
	for _, o := range m {
		o.ComputationsAdded(n, capMB)
	}
}
func (m Multi) ThreadStarted(capMB int) {
	for _, o := range m {
		o.ThreadStarted(capMB)
	}
}
func (m Multi) ThreadStopped(capMB int) {
	for _, o := range m {
		o.ThreadStopped(capMB)
	}
}
func (m Multi) BadComputation(unit workunit.Unit, capMB int, timeout bool) {
	for _, o := range m {
		o.BadComputation(unit, capMB, timeout)
	}
}
func (m Multi) FinishedComputations(n, capMB int) {
	for _, o := range m {
		o.FinishedComputations(n, capMB)
	}
}
func (m Multi) Unpacking() {
	for _, o := range m {
		o.Unpacking()
	}
}
func (m Multi) Unpacked(n int) {
	for _, o := range m {
		o.Unpacked(n)
	}
}
func (m Multi) RemovedInDB(n int) {
	for _, o := range m {
		o.RemovedInDB(n)
	}
}
func (m Multi) RemovedPrecalculated(n int) {
	for _, o := range m {
		o.RemovedPrecalculated(n)
	}
}
func (m Multi) LoadedComputations(path string) {
	for _, o := range m {
		o.LoadedComputations(path)
	}
}
func (m Multi) AbortedToGiveup(n int) {
	for _, o := range m {
		o.AbortedToGiveup(n)
	}
}
func (m Multi) Resurrected(n, capMB int) {
	for _, o := range m {
		o.Resurrected(n, capMB)
	}
}
func (m Multi) Assigned(n int) {
	for _, o := range m {
		o.Assigned(n)
	}
}
func (m Multi) Tick(packed, unpacked, bad, abandoned int) {
	for _, o := range m {
		o.Tick(packed, unpacked, bad, abandoned)
	}
}
func (m Multi) UpdateBadSummary(summary []CapCount) {
	for _, o := range m {
		o.UpdateBadSummary(summary)
	}
}
func (m Multi) DisplayMemory(limit, base, allocated, free int) {
	for _, o := range m {
		o.DisplayMemory(limit, base, allocated, free)
	}
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// Progress wraps a terminal progress bar tied to the dispatcher's
// observer events (units assigned and completed), matching the teacher's
// ProgressCallback(current, total, phase) convention.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress creates a progress bar over total units, labeled with phase.
// If stdout is not a terminal, the bar renders as a no-op (progressbar's
// own terminal detection handles that).
func NewProgress(total int, phase string) *Progress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(phase),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100_000_000),
	)
	return &Progress{bar: bar}
}

// Add advances the bar by delta units.
func (p *Progress) Add(delta int) {
	_ = p.bar.Add(delta)
}

// GrowMax extends the bar's total by delta units, for a dispatcher whose
// assignment count is not known until the template store finishes
// unpacking.
func (p *Progress) GrowMax(delta int) {
	_ = p.bar.ChangeMax(int(p.bar.GetMax()) + delta)
}

// Finish marks the bar as complete.
func (p *Progress) Finish() {
	_ = p.bar.Finish()
}

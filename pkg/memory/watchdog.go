// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// WatchOOM polls system free memory every interval and calls onLow once
// free memory drops below thresholdMB, then stops. It runs until ctx is
// canceled or onLow fires. cmd/hlid wires onLow to global termination
// (spec's "free-system-memory below the configured watchdog threshold"
// trigger).
func WatchOOM(ctx context.Context, thresholdMB int, interval time.Duration, logger *slog.Logger, onLow func()) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				if logger != nil {
					logger.Warn("local.memory.watchdog.read_failed", "error", err)
				}
				continue
			}
			freeMB := int(vm.Available / (1024 * 1024))
			if freeMB < thresholdMB {
				if logger != nil {
					logger.Warn("local.memory.watchdog.out_of_memory",
						"free_mb", freeMB, "threshold_mb", thresholdMB)
				}
				onLow()
				return
			}
		}
	}
}

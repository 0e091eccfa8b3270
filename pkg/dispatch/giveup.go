// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kraklabs/hlid/pkg/workunit"
)

// GiveupLog is the append-only "valhalla" record of work units abandoned
// because even the maximum memory cap was insufficient. Lines are ordered
// only by insertion time; the file is never rewritten.
type GiveupLog struct {
	mu   sync.Mutex
	path string
}

// NewGiveupLog returns a log that appends to path, creating parent
// directories as needed.
func NewGiveupLog(path string) *GiveupLog {
	return &GiveupLog{path: path}
}

// Append writes one record per unit: "<primary>;<secondary...>;<final_cap>;<engine_version>".
func (l *GiveupLog) Append(units []workunit.Unit, finalCapMB int, engineVersion string) error {
	if len(units) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return NewFileError("giveup log: create directory", dir, err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return NewFileError("giveup log: open", l.path, err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, u := range units {
		fmt.Fprintf(w, "%s;%d;%s\n", u.String(), finalCapMB, engineVersion)
	}
	if err := w.Flush(); err != nil {
		return NewFileError("giveup log: write", l.path, err)
	}
	return nil
}

// Path returns the log's file path.
func (l *GiveupLog) Path() string {
	return l.path
}

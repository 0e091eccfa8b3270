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

// Package dedup provides read-only views over the persistent result
// database and the prior-run output directory, used to filter
// already-computed work units out of the ready set.
package dedup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kraklabs/hlid/pkg/readyset"
	"github.com/kraklabs/hlid/pkg/workunit"
)

// RecordSchema splits one record line into the work unit it identifies,
// discarding trailing output columns. It is the same kind of external
// collaborator as template.Schema: given a schema definition, it knows how
// many leading fields are secondary inputs versus output columns.
type RecordSchema interface {
	// ParseRecord extracts the secondary key from a line already known to
	// belong to the given primary key (database-file records carry no
	// primary column of their own: it comes from the file name).
	ParseRecord(primary int, line string) (secondary []string, ok bool)

	// ParseOutputRecord extracts the full unit identity from a line in the
	// output directory, which does carry its own primary column.
	ParseOutputRecord(line string) (primary int, secondary []string, ok bool)
}

// DatabaseView is a read-only view over the persistent database directory:
// one file per primary key, named "<n>" for n >= 0 or "m<abs(n)>" for n < 0,
// each line "secondary...;output...".
type DatabaseView struct {
	dir    string
	schema RecordSchema
}

// NewDatabaseView returns a view rooted at dir. dir need not exist yet: a
// lookup for a primary key whose file is absent is simply empty.
func NewDatabaseView(dir string, schema RecordSchema) *DatabaseView {
	return &DatabaseView{dir: dir, schema: schema}
}

// fileName returns the database file name for a primary key, per spec.md's
// "Database directory layout": "<n>" for non-negative, "m<abs>" for negative.
func fileName(primary int) string {
	if primary >= 0 {
		return strconv.Itoa(primary)
	}
	return "m" + strconv.Itoa(-primary)
}

// EliminateInDB removes from ready every unit whose primary key is in
// primaryKeys and whose secondary key matches a record in that primary
// key's database file. Absent files are treated as having no records.
// Returns the number of units removed.
func (v *DatabaseView) EliminateInDB(ready *readyset.Set, primaryKeys map[int]struct{}) (int, error) {
	removed := 0
	for primary := range primaryKeys {
		path := filepath.Join(v.dir, fileName(primary))
		f, err := os.Open(path) //nolint:gosec // G304: path is built from an internal primary key, not user input
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("dedup: open database file %s: %w", path, err)
		}
		n, err := v.eliminateMatchingPrimary(f, ready, primary)
		_ = f.Close()
		removed += n
		if err != nil {
			return removed, fmt.Errorf("dedup: scan database file %s: %w", path, err)
		}
	}
	return removed, nil
}

func (v *DatabaseView) eliminateMatchingPrimary(f *os.File, ready *readyset.Set, primary int) (int, error) {
	removed := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		secondary, ok := v.schema.ParseRecord(primary, line)
		if !ok {
			continue
		}
		if ready.Remove(workunit.New(primary, secondary)) {
			removed++
		}
	}
	return removed, scanner.Err()
}

// OutputDirView is a read-only view over the directory of result files
// deposited by prior runs, used to filter units already computed before
// this invocation started.
type OutputDirView struct {
	dir    string
	schema RecordSchema
}

// NewOutputDirView returns a view rooted at dir.
func NewOutputDirView(dir string, schema RecordSchema) *OutputDirView {
	return &OutputDirView{dir: dir, schema: schema}
}

// EliminatePrecalculated scans every regular file under the output
// directory and removes from ready any unit matching a record line. It
// stops early if terminate reports true. Returns the number of units
// removed.
func (v *OutputDirView) EliminatePrecalculated(ready *readyset.Set, terminate func() bool) (int, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("dedup: read output dir %s: %w", v.dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if terminate != nil && terminate() {
			break
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(v.dir, entry.Name())
		f, err := os.Open(path) //nolint:gosec // G304: path is built from a directory listing, not user input
		if err != nil {
			continue
		}
		n, scanErr := v.eliminateAnyPrimary(f, ready)
		_ = f.Close()
		removed += n
		if scanErr != nil {
			return removed, fmt.Errorf("dedup: scan output file %s: %w", path, scanErr)
		}
	}
	return removed, nil
}

func (v *OutputDirView) eliminateAnyPrimary(f *os.File, ready *readyset.Set) (int, error) {
	removed := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		primary, secondary, ok := v.schema.ParseOutputRecord(line)
		if !ok {
			continue
		}
		if ready.Remove(workunit.New(primary, secondary)) {
			removed++
		}
	}
	return removed, scanner.Err()
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recordschema provides the default semicolon-delimited schema: a
// fixed-arity cut of "primary;secondary1;secondary2;..." records. The
// schema/CSV parser that decides literal-vs-range and column boundaries
// from an arbitrary external schema definition is an assumed collaborator;
// this is the concrete default wired in when no custom schema is
// configured, following the engine's own wire format in spec.md §6
// ("primary;secondary1;secondary2;...") and the database file layout
// ("secondary...;output...").
package recordschema

import (
	"fmt"
	"strconv"
	"strings"
)

// Default splits records at a fixed number of leading secondary fields,
// tolerating any number of trailing output columns.
type Default struct {
	// SecondaryArity is the number of secondary fields every record
	// carries, fixed across the whole input.
	SecondaryArity int
}

// New returns a Default schema with the given secondary field count.
func New(secondaryArity int) Default {
	return Default{SecondaryArity: secondaryArity}
}

// Parse implements template.Schema: splits an input-file record line into
// its primary key and raw secondary field tokens (each a literal or a
// "min..max" range, left for template.ParseField to interpret).
func (d Default) Parse(line string) (int, []string, error) {
	parts := strings.Split(line, ";")
	if len(parts) < 1+d.SecondaryArity {
		return 0, nil, fmt.Errorf("expected primary plus %d secondary fields, got %d columns", d.SecondaryArity, len(parts))
	}
	primary, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid primary key %q: %w", parts[0], err)
	}
	return primary, parts[1 : 1+d.SecondaryArity], nil
}

// ParseRecord implements dedup.RecordSchema for database-directory files:
// the line carries no primary column (it comes from the file name), so
// the first SecondaryArity fields are the secondary key and the rest are
// output columns.
func (d Default) ParseRecord(_ int, line string) ([]string, bool) {
	parts := strings.Split(line, ";")
	if len(parts) < d.SecondaryArity {
		return nil, false
	}
	return parts[:d.SecondaryArity], true
}

// ParseOutputRecord implements dedup.RecordSchema for prior-output files:
// the line carries its own primary column followed by the secondary key
// and then output columns.
func (d Default) ParseOutputRecord(line string) (int, []string, bool) {
	parts := strings.Split(line, ";")
	if len(parts) < 1+d.SecondaryArity {
		return 0, nil, false
	}
	primary, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, false
	}
	return primary, parts[1 : 1+d.SecondaryArity], true
}

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

// Package workunit defines the unit of work dispatched to the engine: a
// primary key paired with an ordered sequence of secondary fields.
package workunit

import (
	"strconv"
	"strings"
)

// Unit is a single concrete input tuple handed to one engine invocation.
// Equality and ordering depend jointly on Primary and Secondary.
type Unit struct {
	Primary   int
	Secondary []string
}

// New builds a Unit, copying secondary so callers can reuse their slice.
func New(primary int, secondary []string) Unit {
	cp := make([]string, len(secondary))
	copy(cp, secondary)
	return Unit{Primary: primary, Secondary: cp}
}

// Key is the comparable identity used by maps and sets: Go structs
// containing a slice aren't comparable, so Unit is keyed by its string
// rendering rather than used directly as a map key.
type Key string

// Key renders the joint identity of the unit into a comparable value.
func (u Unit) Key() Key {
	var b strings.Builder
	b.Grow(16 + len(u.Secondary)*8)
	b.WriteString(strconv.Itoa(u.Primary))
	for _, s := range u.Secondary {
		b.WriteByte(';')
		b.WriteString(s)
	}
	return Key(b.String())
}

// Equal reports whether two units share the same primary and secondary key.
func (u Unit) Equal(other Unit) bool {
	return u.Key() == other.Key()
}

// Less defines the total order: lexicographic on (primary, secondary).
func (u Unit) Less(other Unit) bool {
	if u.Primary != other.Primary {
		return u.Primary < other.Primary
	}
	n := len(u.Secondary)
	if len(other.Secondary) < n {
		n = len(other.Secondary)
	}
	for i := 0; i < n; i++ {
		if u.Secondary[i] != other.Secondary[i] {
			return u.Secondary[i] < other.Secondary[i]
		}
	}
	return len(u.Secondary) < len(other.Secondary)
}

// String renders the unit as "primary;secondary1;secondary2;...", the wire
// form used in data files, result files, and the Giveup Log.
func (u Unit) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(u.Primary))
	for _, s := range u.Secondary {
		b.WriteByte(';')
		b.WriteString(s)
	}
	return b.String()
}

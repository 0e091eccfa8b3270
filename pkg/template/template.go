// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package template

import "github.com/kraklabs/hlid/pkg/workunit"

// Template is a compact Cartesian descriptor: a primary key plus an ordered
// sequence of secondary fields, each a literal or an integer range.
type Template struct {
	Primary   int
	Secondary []Field
}

// New builds a Template from a primary key and ordered secondary fields.
func New(primary int, secondary []Field) Template {
	cp := make([]Field, len(secondary))
	copy(cp, secondary)
	return Template{Primary: primary, Secondary: cp}
}

// Cardinality is the product of each secondary field's cardinality: 1 for a
// literal, hi-lo+1 for a range.
func (t Template) Cardinality() int {
	n := 1
	for _, f := range t.Secondary {
		n *= f.Cardinality()
	}
	return n
}

// largestRangeIndex returns the index of the secondary field with the
// largest range cardinality, or -1 if the template has no range fields.
func (t Template) largestRangeIndex() int {
	best := -1
	bestCard := 0
	for i, f := range t.Secondary {
		if f.IsRange() && f.Cardinality() > bestCard {
			best = i
			bestCard = f.Cardinality()
		}
	}
	return best
}

// Split partitions the template into sub-templates each with cardinality at
// most maxPerTemplate, by dividing the largest range field into roughly
// equal parts. One level suffices in the common case; a part still over
// the cap (the last part, which absorbs the remainder, or any part when
// the other fields alone exceed the cap) is split again the same way. If
// the template has no range field, or its cardinality already satisfies
// the cap, Split returns a single-element slice containing the template
// unchanged.
func (t Template) Split(maxPerTemplate int) []Template {
	card := t.Cardinality()
	if maxPerTemplate <= 0 || card <= maxPerTemplate {
		return []Template{t}
	}
	idx := t.largestRangeIndex()
	if idx < 0 {
		// No splittable field: cardinality cannot be reduced further.
		return []Template{t}
	}
	// Cardinality contributed by every field other than idx.
	others := card / t.Secondary[idx].Cardinality()
	// Choose k so each part's range contributes at most maxPerTemplate/others,
	// rounding up, and split the range field into k parts accordingly.
	perPart := maxPerTemplate / others
	if perPart < 1 {
		perPart = 1
	}
	rangeCard := t.Secondary[idx].Cardinality()
	k := (rangeCard + perPart - 1) / perPart
	if k < 1 {
		k = 1
	}
	parts := t.Secondary[idx].split(k)
	out := make([]Template, 0, len(parts))
	for _, p := range parts {
		secondary := make([]Field, len(t.Secondary))
		copy(secondary, t.Secondary)
		secondary[idx] = p
		out = append(out, Template{Primary: t.Primary, Secondary: secondary}.Split(maxPerTemplate)...)
	}
	return out
}

// Instances materializes every WorkUnit in the Cartesian product of the
// template's secondary fields, in field order (the last field varies
// fastest), mirroring the original engine's recursive expansion.
func (t Template) Instances() []workunit.Unit {
	total := t.Cardinality()
	out := make([]workunit.Unit, 0, total)
	t.expand(make([]string, 0, len(t.Secondary)), 0, &out)
	return out
}

func (t Template) expand(prefix []string, fieldIdx int, out *[]workunit.Unit) {
	if fieldIdx == len(t.Secondary) {
		*out = append(*out, workunit.New(t.Primary, prefix))
		return
	}
	for _, v := range t.Secondary[fieldIdx].Values() {
		t.expand(append(prefix, v), fieldIdx+1, out)
	}
}

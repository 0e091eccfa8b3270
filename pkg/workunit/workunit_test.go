// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package workunit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/hlid/pkg/workunit"
)

func TestEqualDependsOnBothKeys(t *testing.T) {
	a := workunit.New(7, []string{"a", "1"})
	b := workunit.New(7, []string{"a", "1"})
	c := workunit.New(7, []string{"a", "2"})
	d := workunit.New(8, []string{"a", "1"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestLessIsLexicographicOnPrimaryThenSecondary(t *testing.T) {
	a := workunit.New(5, []string{"a"})
	b := workunit.New(6, []string{"a"})
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))

	c := workunit.New(5, []string{"a"})
	d := workunit.New(5, []string{"b"})
	require.True(t, c.Less(d))

	e := workunit.New(5, []string{"a"})
	f := workunit.New(5, []string{"a", "b"})
	require.True(t, e.Less(f))
}

func TestStringIsWireForm(t *testing.T) {
	u := workunit.New(7, []string{"a", "1"})
	assert.Equal(t, "7;a;1", u.String())

	empty := workunit.New(-3, nil)
	assert.Equal(t, "-3", empty.String())
}

func TestNewCopiesSecondary(t *testing.T) {
	src := []string{"a", "b"}
	u := workunit.New(1, src)
	src[0] = "mutated"
	assert.Equal(t, "a", u.Secondary[0])
}

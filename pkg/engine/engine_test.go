// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultStreamLineIsImmediate(t *testing.T) {
	in := "LINE 7;1;result\nLINE 7;2;result\n"
	results := parseResultStream(strings.NewReader(in))
	require.Len(t, results, 2)
	assert.Equal(t, "7;1;result", results[0].Line)
	assert.Equal(t, "7;2;result", results[1].Line)
}

func TestParseResultStreamPartThenOverCommits(t *testing.T) {
	in := "PART 7;1;\nPART partial\nOVER\n"
	results := parseResultStream(strings.NewReader(in))
	require.Len(t, results, 1)
	assert.Equal(t, "7;1;partial", results[0].Line)
}

func TestParseResultStreamIgnoresUnknownLines(t *testing.T) {
	in := "garbage line\nLINE 7;1;ok\n"
	results := parseResultStream(strings.NewReader(in))
	require.Len(t, results, 1)
	assert.Equal(t, "7;1;ok", results[0].Line)
}

func TestParseResultStreamJoinsUnbalancedBraces(t *testing.T) {
	in := "LINE 7;1;{a,\nb,c}\n"
	results := parseResultStream(strings.NewReader(in))
	require.Len(t, results, 1)
	assert.Equal(t, "7;1;{a,\nb,c}", results[0].Line)
}

func TestBuildArgsMatchesInvocationContract(t *testing.T) {
	e := New(Config{
		BinaryPath: "/bin/engine",
		ScriptPath: "/scripts/run.m",
		OutputDir:  "/out",
		ExtraFlags: []string{"--flag1"},
	}, nil)

	args := e.buildArgs(3, 256)
	assert.Equal(t, []string{
		"-b", "megabytes:=256",
		"outputPath:=/out",
		"processId:=3",
		"dataFile:=" + e.StagingPath(3),
		"--flag1",
		"/scripts/run.m",
	}, args)
}

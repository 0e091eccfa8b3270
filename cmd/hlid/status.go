// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/hlid/internal/errors"
	"github.com/kraklabs/hlid/internal/ui"
	"github.com/kraklabs/hlid/pkg/dispatch"
)

// runStatus reports a run's progress from disk without starting the
// dispatcher: giveup log size, output directory file count, and staging
// directory occupancy.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg, err := dispatch.LoadRunConfig(configPath)
	if err != nil {
		errors.FatalError(translateDispatchError(err), globals.JSON)
	}

	giveupLines, giveupErr := countLines(cfg.GiveupLogPath)
	outputFiles := countFiles(cfg.OutputDir)
	stagingFiles := countFiles(cfg.StagingDir)

	if globals.JSON {
		fmt.Printf(
			`{"giveup_lines":%d,"output_files":%d,"staging_files":%d}`+"\n",
			giveupLines, outputFiles, stagingFiles,
		)
		return
	}

	ui.Header("Dispatcher Status")
	fmt.Printf("%s %s\n", ui.Label("Output files:"), ui.CountText(outputFiles))
	fmt.Printf("%s %s\n", ui.Label("Staging files:"), ui.CountText(stagingFiles))
	if giveupErr != nil {
		fmt.Printf("%s %s\n", ui.Label("Giveup log:"), ui.DimText("none yet"))
	} else {
		fmt.Printf("%s %s\n", ui.Label("Giveup log:"), ui.CountText(giveupLines))
	}
}

// countLines returns the number of lines in path, or an error if it does
// not exist yet (a run that never gave up on any unit).
func countLines(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the run config, not untrusted input
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, nil
}

// countFiles returns the number of directory entries under dir, or 0 if
// dir does not exist.
func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

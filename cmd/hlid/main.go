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

// Package main implements the hlid CLI: a memory-budgeted dispatcher that
// feeds batches of work units to an external computation engine.
//
// Usage:
//
//	hlid init              Create .hlid/run.yaml configuration
//	hlid run                Run the dispatcher to completion
//	hlid [--json] status   Show the current run's progress
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/hlid/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags that apply to every subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
	Debug   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .hlid/run.yaml (default: discovered from the working directory)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, ticks)")
		debug       = flag.Bool("debug", false, "Enable debug-level structured logging")
	)

	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `hlid - memory-budgeted computation dispatcher

Usage:
  hlid <command> [options]

Commands:
  init      Create .hlid/run.yaml configuration
  run       Run the dispatcher to completion
  status    Show the current run's progress

Global Options:
  --json          Output in JSON format (for applicable commands)
  --no-color      Disable color output (respects NO_COLOR env var)
  -v, --verbose   Increase verbosity
  -q, --quiet     Suppress progress output
  --debug         Enable debug-level structured logging
  -c, --config    Path to .hlid/run.yaml
  -V, --version   Show version and exit

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("hlid version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
		Debug:   *debug,
	}
	ui.InitColors(globals.NoColor)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(globals)})))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "run":
		runRun(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// logLevel derives the slog level from --debug and the -v/-vv verbosity
// count: --debug or -vv enables debug, -v enables info, otherwise warn.
func logLevel(globals GlobalFlags) slog.Level {
	switch {
	case globals.Debug || globals.Verbose >= 2:
		return slog.LevelDebug
	case globals.Verbose == 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/hlid/internal/errors"
	"github.com/kraklabs/hlid/internal/ui"
	"github.com/kraklabs/hlid/pkg/dispatch"
)

// runInit creates .hlid/run.yaml with the dispatcher's default settings.
//
// Flags:
//   - --force: overwrite an existing configuration file
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	_ = fs.Parse(args)

	dir, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		), globals.JSON)
	}

	path := dispatch.RunConfigPath(dir)
	if _, statErr := os.Stat(path); statErr == nil && !*force {
		errors.FatalError(errors.NewConfigError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists", path),
			"Run 'hlid init --force' to overwrite it",
			nil,
		), globals.JSON)
	}

	cfg := dispatch.DefaultRunConfig()
	if err := dispatch.SaveRunConfig(cfg, path); err != nil {
		errors.FatalError(translateDispatchError(err), globals.JSON)
	}

	if globals.JSON {
		fmt.Printf(`{"created":"%s"}`+"\n", path)
		return
	}
	ui.Header("Configuration Created")
	fmt.Printf("%s %s\n", ui.Label("Path:"), path)
	fmt.Println("Edit it to point at your input file, engine binary, and script before running 'hlid run'.")
}

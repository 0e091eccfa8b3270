// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"errors"
	"os"

	internalerrors "github.com/kraklabs/hlid/internal/errors"
	"github.com/kraklabs/hlid/pkg/dispatch"
	"github.com/kraklabs/hlid/pkg/template"
)

// translateDispatchError turns a *dispatch.Error or *template.ParseError
// into the UserError the rest of the CLI already knows how to print and
// exit on. Any other error (including nil) passes through unchanged, so
// callers can feed it straight to errors.FatalError.
func translateDispatchError(err error) error {
	var perr *template.ParseError
	if errors.As(err, &perr) {
		return internalerrors.NewConfigError(
			"Cannot parse input file",
			perr.Error(),
			"Fix the malformed record and re-run",
			perr,
		)
	}

	var derr *dispatch.Error
	if !errors.As(err, &derr) {
		return err
	}

	switch derr.Kind {
	case dispatch.KindFileError:
		if os.IsPermission(derr.Err) {
			return internalerrors.NewPermissionError(
				"Permission denied",
				derr.Error(),
				"Check the file's ownership and mode",
				derr,
			)
		}
		return internalerrors.NewConfigError(
			"Cannot access a required file",
			derr.Error(),
			"Check the path referenced above and re-run",
			derr,
		)
	case dispatch.KindOutOfMemory:
		return internalerrors.NewInternalError(
			"Out of memory",
			derr.Error(),
			"Lower total_memory_limit_mb or free system memory and re-run",
			derr,
		)
	case dispatch.KindEngineFailure:
		return internalerrors.NewInternalError(
			"Engine invocation failed",
			derr.Error(),
			"Check engine_binary_path and script_path in your configuration",
			derr,
		)
	case dispatch.KindUnknownResultLine, dispatch.KindShutdown:
		return internalerrors.NewInternalError(
			"Unexpected dispatcher error",
			derr.Error(),
			"This is a bug. Please report it.",
			derr,
		)
	default:
		return internalerrors.NewInternalError(
			"Unexpected dispatcher error",
			derr.Error(),
			"This is a bug. Please report it.",
			derr,
		)
	}
}

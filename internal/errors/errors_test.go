// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/hlid/internal/errors"
)

func TestNewConfigErrorCarriesKindAndCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.NewConfigError("Cannot read configuration file", "detail here", "fix it", cause)

	assert.Equal(t, errors.KindConfig, err.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Cannot read configuration file")
	assert.Contains(t, err.Error(), "boom")
}

func TestUserErrorWithoutCauseOmitsColon(t *testing.T) {
	err := errors.NewInternalError("Cannot encode configuration", "marshal failed", "", nil)
	assert.Equal(t, "Cannot encode configuration: marshal failed", err.Error())
}

// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package recordschema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/hlid/pkg/recordschema"
)

func TestParseSplitsPrimaryAndFixedAritySecondary(t *testing.T) {
	s := recordschema.New(2)

	primary, secondary, err := s.Parse("7;1..3;literal")

	require.NoError(t, err)
	assert.Equal(t, 7, primary)
	assert.Equal(t, []string{"1..3", "literal"}, secondary)
}

func TestParseRejectsTooFewColumns(t *testing.T) {
	s := recordschema.New(2)
	_, _, err := s.Parse("7;only-one")
	assert.Error(t, err)
}

func TestParseRecordDropsOutputColumns(t *testing.T) {
	s := recordschema.New(1)
	secondary, ok := s.ParseRecord(7, "1;result-payload;more-output")
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, secondary)
}

func TestParseOutputRecordExtractsFullIdentity(t *testing.T) {
	s := recordschema.New(2)
	primary, secondary, ok := s.ParseOutputRecord("7;1;a;result-payload")
	require.True(t, ok)
	assert.Equal(t, 7, primary)
	assert.Equal(t, []string{"1", "a"}, secondary)
}

// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedKnobs(t *testing.T) {
	cfg := Default()
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, 1000, cfg.PollBatch)
	require.Equal(t, uint32(10000), cfg.HashSlots)
}

func TestFromEnvOverlaysSetVariables(t *testing.T) {
	t.Setenv(envPollInterval, "250ms")
	t.Setenv(envPollBatch, "50")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, 50, cfg.PollBatch)
	require.Equal(t, 256, cfg.MaxSubscribers) // untouched, still default
}

func TestFromEnvRejectsMalformedValue(t *testing.T) {
	t.Setenv(envPollBatch, "not-a-number")

	_, err := FromEnv()
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, envPollBatch, pe.Var)
}

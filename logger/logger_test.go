package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLoggerBeforeInitialize(t *testing.T) {
	// Package-level helpers must not panic before Initialize
	require.NotPanics(t, func() {
		Infow("pre-init message", "key", "value")
		Debugw("pre-init debug")
	})
}

func TestInitialize(t *testing.T) {
	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
	assert.NotNil(t, Logger)

	require.NoError(t, Initialize(false))
	assert.False(t, JSONOutput)
}

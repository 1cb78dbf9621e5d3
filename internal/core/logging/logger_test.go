package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestComponent(t *testing.T) {
	buf := captureGlobal(t)

	logger := Component("push")
	logger.Info().Msg("test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "push", entry["cmp"])
	assert.Equal(t, "test message", entry["message"])
}

func TestForUser(t *testing.T) {
	buf := captureGlobal(t)

	logger := ForUser("notify", "student-1")
	logger.Warn().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "notify", entry["cmp"])
	assert.Equal(t, "student-1", entry["user_id"])
}

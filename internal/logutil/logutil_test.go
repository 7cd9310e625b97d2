package logutil

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)
	logger.Log(context.Background(), LevelTrace, "kernel compiled", "name", "exp_f32")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "name=exp_f32")
	assert.Contains(t, buf.String(), "logutil_test.go")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

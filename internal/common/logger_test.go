package common

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLoggerSetsDefault(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	SetupLogger(slog.LevelWarn, "json")

	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelWarn))
}

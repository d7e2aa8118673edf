package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asystentai/backend/pkg/logger"
)

func TestNewJSONLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.New(logger.Config{Format: logger.FormatJSON}, "billing-api", logger.WithOutput(&buf))

	l.Info("ledger credited", slog.Int64("amount", 5000))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ledger credited", record["msg"])
	assert.Equal(t, "billing-api", record["service"])
	assert.EqualValues(t, 5000, record["amount"])
}

func TestNewTextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.New(logger.Config{Format: logger.FormatText}, "billing-api", logger.WithOutput(&buf))

	l.Info("hello")
	assert.True(t, strings.Contains(buf.String(), "msg=hello"))
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logger.New(logger.Config{Level: slog.LevelWarn, Format: logger.FormatJSON}, "", logger.WithOutput(&buf))

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("visible")
	assert.NotEmpty(t, buf.String())
}

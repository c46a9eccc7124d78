package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	New("debug", "json", &buf).Debug("resizing", "axis", 2)
	assert.Contains(t, buf.String(), `"msg":"resizing"`)
	assert.Contains(t, buf.String(), `"axis":2`)

	buf.Reset()
	New("warn", "text", &buf).Info("hidden")
	assert.Empty(t, buf.String())

	New("warn", "text", &buf).Warn("shown")
	assert.True(t, strings.Contains(buf.String(), "msg=shown"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard()
	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

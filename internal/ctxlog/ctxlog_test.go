// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Debug("listing fetched", "entries", 3)

	assert.Contains(t, buf.String(), "listing fetched")
	assert.Contains(t, buf.String(), "entries=3")
}

func TestFromContextDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestNewFiltersDebugWhenQuiet(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Debug("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

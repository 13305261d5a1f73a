package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("close failed") }

type okCloser struct{ closed bool }

func (c *okCloser) Close() error {
	c.closed = true
	return nil
}

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestWithLoggerFromContext(t *testing.T) {
	logger, _ := newBufferLogger()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContextDefaultsWhenUnset(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestLogOperation(t *testing.T) {
	logger, buf := newBufferLogger()

	LogOperation(logger, "feed_fetched", slog.String("source", "feed.zip"), slog.Int("bytes", 42))

	out := buf.String()
	assert.Contains(t, out, "feed_fetched")
	assert.Contains(t, out, "source=feed.zip")
	assert.Contains(t, out, "bytes=42")
}

func TestLogOperationNilLogger(t *testing.T) {
	// Should fall back to the default logger without panicking
	LogOperation(nil, "noop")
}

func TestLogError(t *testing.T) {
	logger, buf := newBufferLogger()

	LogError(logger, "fetch failed", errors.New("connection refused"), slog.String("source", "url"))

	out := buf.String()
	assert.Contains(t, out, "fetch failed")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "level=ERROR")
}

func TestSafeCloseWithLogging(t *testing.T) {
	logger, buf := newBufferLogger()

	closer := &okCloser{}
	SafeCloseWithLogging(closer, logger, "file")
	assert.True(t, closer.closed)
	assert.Empty(t, buf.String(), "clean close should not log")

	SafeCloseWithLogging(failingCloser{}, logger, "file")
	assert.Contains(t, buf.String(), "failed to close resource")
	assert.Contains(t, buf.String(), "resource=file")
}

func TestSafeCloseWithLoggingNil(t *testing.T) {
	require.NotPanics(t, func() {
		SafeCloseWithLogging(nil, nil, "nothing")
	})
}

func TestSafeRollbackWithLoggingNil(t *testing.T) {
	require.NotPanics(t, func() {
		SafeRollbackWithLogging(nil, nil, "store")
	})
}

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/mem0mcp/internal/memstub"
)

type brokenCounter struct{}

func (brokenCounter) Len() (int, error) { return 0, errors.New("database is closed") }

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogShutdownCountsRecords(t *testing.T) {
	backend, err := memstub.New(memstub.Options{})
	require.NoError(t, err)
	defer backend.Close()

	var buf bytes.Buffer
	logShutdown(bufferLogger(&buf), backend)
	assert.Contains(t, buf.String(), "Shutdown complete")
	assert.Contains(t, buf.String(), "records_discarded=0")
}

func TestLogShutdownReportsCountFailure(t *testing.T) {
	var buf bytes.Buffer
	logShutdown(bufferLogger(&buf), brokenCounter{})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "database is closed")
	assert.Contains(t, out, "Shutdown complete")
	assert.NotContains(t, out, "records_discarded")
}

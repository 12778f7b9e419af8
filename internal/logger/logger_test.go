package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(int(slog.LevelInfo), &buf)

	l.Debug("hidden")
	l.Info("shown", "store", "ks.bin")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "store=ks.bin")
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(0, &buf).With("component", "keystore")

	l.Info("opened")

	assert.Contains(t, buf.String(), "component=keystore")
}

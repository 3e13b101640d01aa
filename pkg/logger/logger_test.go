package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	tests := []struct{ in, want string }{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"warning", "warn"},
		{"Error", "error"},
		{"", "info"},
		{"nonsense", "info"},
	}
	for _, tc := range tests {
		Init(tc.in)
		assert.Equal(t, tc.want, LevelString(), "Init(%q)", tc.in)
	}
	Init("info")
}

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(level)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init("info")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "warn")
	Debugf("debug-msg")
	Infof("info-msg")
	Println("println-msg")
	Warnf("warn-msg %d", 1)
	Errorf("error-msg")

	out := buf.String()
	assert.NotContains(t, out, "debug-msg")
	assert.NotContains(t, out, "info-msg")
	assert.NotContains(t, out, "println-msg")
	assert.Contains(t, out, "warn-msg 1")
	assert.Contains(t, out, "error-msg")
}

func TestWithFieldsIncludesFields(t *testing.T) {
	buf := capture(t, "info")
	WithFields(Fields{"doc": "d-1", "action": "forward"}).Info("transition applied")
	out := buf.String()
	require.Contains(t, out, "doc=d-1")
	require.Contains(t, out, "action=forward")
}

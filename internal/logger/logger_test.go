package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			New(Config{Level: tt.level, Output: &buf})
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	cl := Component(l, "engine")
	cl.Info().Int("markers", 3).Msg("computed")

	out := buf.String()
	assert.Contains(t, out, `"component":"engine"`)
	assert.Contains(t, out, `"markers":3`)
	assert.Contains(t, out, `"message":"computed"`)
}

func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Pretty: true, Output: &buf})

	l.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

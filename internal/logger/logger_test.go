package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Debug().Msg("hidden")
	l.Info().Str("run_id", "abc").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "run_id=abc")

	buf.Reset()
	vl := New(&buf, true)
	vl.Debug().Msg("verbose")
	assert.Contains(t, buf.String(), "verbose")
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	jl := NewWithWriter(&buf)
	jl.Info().Str("phase", "FETCHING").Msg("run")
	assert.Contains(t, buf.String(), `"phase":"FETCHING"`)
	assert.Contains(t, buf.String(), `"message":"run"`)
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), NewWithWriter(&buf))
	l := FromContext(ctx)
	l.Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")

	nop := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, nop.GetLevel())
}

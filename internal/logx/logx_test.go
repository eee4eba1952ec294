package logx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNop_DisabledAtEveryLevel(t *testing.T) {
	l := Nop()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	assert.NotNil(t, OrNop(nil))
}

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "json", &buf)
	l.Info("hidden")
	l.Warn("shown", "node", "/gbuffer")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"node":"/gbuffer"`)

	buf.Reset()
	New("debug", "text", &buf).Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
}

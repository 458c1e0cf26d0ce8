package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactMasksSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.Info("sending plan", "assignment_id", "a1", "client_phone", "+5511999999999", "portal_token", "abc")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "a1", fields["assignment_id"])
		assert.Equal(t, "[REDACTED]", fields["client_phone"])
		assert.Equal(t, "[REDACTED]", fields["portal_token"])
	}
}

func TestRedactLeavesOddTrailingValue(t *testing.T) {
	out := redact([]interface{}{"step", "render", "dangling"})
	assert.Equal(t, []interface{}{"step", "render", "dangling"}, out)
}

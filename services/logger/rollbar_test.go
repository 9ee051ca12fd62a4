package logsvc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

func TestRollbarLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	conf := testConfig()
	logger := NewRollbarLogger(zap.New(obs), conf)

	usr := user.User{ID: 7, Username: "marketing1", Email: "m1@example.com"}
	errBoom := errors.New("boom")
	logger.Error("creating lead", errBoom, map[string]interface{}{"lead_id": 3}, usr)
	logger.Info("server started")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "creating lead", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, int64(7), ctx["user_id"])
	assert.Equal(t, "marketing1", ctx["username"])
	assert.Equal(t, map[string]interface{}{"lead_id": 3}, ctx["data"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Empty(t, entries[1].ContextMap())
}

func TestNewZapLogger(t *testing.T) {
	conf := testConfig()
	conf.Debug = true
	zl, err := NewZapLogger(conf)
	require.NoError(t, err)
	assert.True(t, zl.Core().Enabled(zapcore.DebugLevel))

	conf.Debug = false
	zl, err = NewZapLogger(conf)
	require.NoError(t, err)
	assert.False(t, zl.Core().Enabled(zapcore.DebugLevel))
}

func testConfig() *core.Config {
	return core.NewTestConfig()
}

package logger

import (
	"testing"

	"smallbiznis-tenancy/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewReplacesGlobals(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log, err := New(ConfigParams{Cfg: &config.Config{AppEnv: "production", AppName: "tenancy"}})
	require.NoError(t, err)
	require.Same(t, log, zap.L())
}

func TestNewDevelopmentWithoutConfig(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log, err := New(ConfigParams{})
	require.NoError(t, err)
	require.NotNil(t, log)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "postgres", cfg.Database.Type)
	require.True(t, cfg.Tenant.AutoCreateSchema)
	require.Equal(t, "public", cfg.Tenant.PublicSchema)
	require.Equal(t, 1, cfg.Lifecycle.SweepHour)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, 10, cfg.Worker.Concurrency)
	require.Equal(t, []string{"1.1.1.1:53", "8.8.8.8:53"}, cfg.DNS.Resolvers)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("TIMEZONE", "Asia/Jakarta")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "Asia/Jakarta", cfg.Location().String())
}

func TestLoadConfigInvalidSweepTime(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIFECYCLE_SWEEP_HOUR", "25")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	require.Equal(t, time.UTC, (*Config)(nil).Location())
	require.Equal(t, time.UTC, (&Config{Timezone: "Mars/Olympus"}).Location())
}

package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("AGENTGUILD_API_KEY", "secret")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", env.Env)
	assert.Equal(t, "3100", env.HTTPPort)
	assert.Equal(t, 41000, env.PortMin)
	assert.Equal(t, 41999, env.PortMax)
	assert.Equal(t, 10*time.Second, env.StopGracePeriod)
	assert.Equal(t, 2, env.MaxConcurrentPerAgent)
	assert.Equal(t, "memory", env.StoreType)
	assert.Empty(t, env.RedisEnv.URL)
	assert.Equal(t, slog.LevelDebug, env.SlogLevel())
}

func TestLoadEnv_RequiresAPIKey(t *testing.T) {
	t.Setenv("AGENTGUILD_API_KEY", "")
	require.NoError(t, os.Unsetenv("AGENTGUILD_API_KEY"))
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestLoadEnv_RejectsInvertedPortRange(t *testing.T) {
	t.Setenv("AGENTGUILD_API_KEY", "secret")
	t.Setenv("AGENTGUILD_RUNTIME_PORT_MIN", "5000")
	t.Setenv("AGENTGUILD_RUNTIME_PORT_MAX", "4000")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestSchedulerEnv_Location(t *testing.T) {
	e := &SchedulerEnv{Timezone: "UTC"}
	assert.Equal(t, time.UTC, e.Location())

	e = &SchedulerEnv{Timezone: "Not/AZone"}
	assert.Equal(t, time.Local, e.Location())
}

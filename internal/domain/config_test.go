package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/domain"
)

func TestConfigIntervals_Defaults(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	assert.Equal(t, 300*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Second, cfg.MetricsInterval())
	assert.Equal(t, 10*time.Second, cfg.IdleThreshold())
}

func TestConfigIntervals_InvalidFallsBack(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	cfg.Daemon.PollIntervalMS = -5
	cfg.Daemon.IdleThresholdSecs = 0
	assert.Equal(t, 300*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 10*time.Second, cfg.IdleThreshold())
}

func TestResolveAgent_Named(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	cfg.Agents["claude"] = domain.Agent{Command: "claude", Args: []string{"--continue"}}

	agent, err := cfg.ResolveAgent("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", agent.Command)
	assert.Equal(t, []string{"--continue"}, agent.Args)
}

func TestResolveAgent_DefaultFallback(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	cfg.DefaultAgent = "codex"
	cfg.Agents["codex"] = domain.Agent{Command: "codex"}

	agent, err := cfg.ResolveAgent("")
	require.NoError(t, err)
	assert.Equal(t, "codex", agent.Command)
}

func TestResolveAgent_UnknownRunsAsBareCommand(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	agent, err := cfg.ResolveAgent("some-binary")
	require.NoError(t, err)
	assert.Equal(t, "some-binary", agent.Command)
}

func TestResolveAgent_NoneConfigured(t *testing.T) {
	cfg := domain.NewDefaultConfig()
	_, err := cfg.ResolveAgent("")
	assert.ErrorIs(t, err, domain.ErrNoAgent)
}

package domain

import "time"

// Config is the merged application configuration.
type Config struct {
	Agents       map[string]Agent `toml:"agents"`
	DefaultAgent string           `toml:"default_agent"`
	Daemon       DaemonConfig     `toml:"daemon"`
	Log          LogConfig        `toml:"log"`
}

// Agent holds per-agent settings from [agents.<name>] sections.
type Agent struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// DaemonConfig holds daemon tunables from the [daemon] section.
// The poll and idle values were revised more than once in production use;
// they are configuration, not constants.
type DaemonConfig struct {
	SocketPath        string `toml:"socket_path"`
	TmuxSocketPath    string `toml:"tmux_socket_path"`
	PollIntervalMS    int    `toml:"poll_interval_ms"`
	MetricsIntervalMS int    `toml:"metrics_interval_ms"`
	IdleThresholdSecs int    `toml:"idle_threshold_secs"`
}

// LogConfig holds logging settings from the [log] section.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Default daemon tunables.
const (
	DefaultPollIntervalMS    = 300
	DefaultMetricsIntervalMS = 1000
	DefaultIdleThresholdSecs = 10
)

// NewDefaultConfig returns a configuration with all defaults applied.
func NewDefaultConfig() *Config {
	return &Config{
		Agents: map[string]Agent{},
		Daemon: DaemonConfig{
			PollIntervalMS:    DefaultPollIntervalMS,
			MetricsIntervalMS: DefaultMetricsIntervalMS,
			IdleThresholdSecs: DefaultIdleThresholdSecs,
		},
		Log: LogConfig{Level: "info"},
	}
}

// PollInterval returns the session/status poll interval.
func (c *Config) PollInterval() time.Duration {
	ms := c.Daemon.PollIntervalMS
	if ms <= 0 {
		ms = DefaultPollIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// MetricsInterval returns the metrics recompute interval. Metrics shell
// out to git and are more expensive than the session poll.
func (c *Config) MetricsInterval() time.Duration {
	ms := c.Daemon.MetricsIntervalMS
	if ms <= 0 {
		ms = DefaultMetricsIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// IdleThreshold returns the inactivity duration after which a live
// session is reclassified from Running to Idle.
func (c *Config) IdleThreshold() time.Duration {
	secs := c.Daemon.IdleThresholdSecs
	if secs <= 0 {
		secs = DefaultIdleThresholdSecs
	}
	return time.Duration(secs) * time.Second
}

// ResolveAgent returns the agent configuration for a task, falling back
// to the configured default agent. Returns ErrNoAgent when neither the
// task nor the config names one.
func (c *Config) ResolveAgent(name string) (Agent, error) {
	if name == "" {
		name = c.DefaultAgent
	}
	if name == "" {
		return Agent{}, ErrNoAgent
	}
	agent, ok := c.Agents[name]
	if !ok {
		// Unknown names run as bare commands; this keeps one-off agents
		// usable without a config section.
		return Agent{Command: name}, nil
	}
	if agent.Command == "" {
		agent.Command = name
	}
	return agent, nil
}

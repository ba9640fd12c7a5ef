// Package config loads and merges TOML configuration and resolves the
// runtime socket paths.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/agentry-dev/agentry/internal/domain"
)

// Ensure Loader implements domain.ConfigLoader.
var _ domain.ConfigLoader = (*Loader)(nil)

// Loader loads configuration from TOML files.
// Precedence: defaults <- global config <- repository config.
type Loader struct {
	repoRoot      string // repository root, "" when outside a repo
	globalConfDir string // e.g. ~/.config/agentry
}

// NewLoader creates a loader for a repository. repoRoot may be empty
// for commands that run outside any project.
func NewLoader(repoRoot string) *Loader {
	return &Loader{
		repoRoot:      repoRoot,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewLoaderWithGlobalDir creates a loader with a custom global config
// directory. This is useful for testing.
func NewLoaderWithGlobalDir(repoRoot, globalConfDir string) *Loader {
	return &Loader{
		repoRoot:      repoRoot,
		globalConfDir: globalConfDir,
	}
}

func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "agentry")
}

// Load returns the merged configuration.
func (l *Loader) Load() (*domain.Config, error) {
	base := domain.NewDefaultConfig()

	if l.globalConfDir != "" {
		globalPath := filepath.Join(l.globalConfDir, domain.ConfigFileName)
		if err := mergeFile(base, globalPath); err != nil {
			return nil, err
		}
	}
	if l.repoRoot != "" {
		if err := mergeFile(base, domain.RepoConfigPath(l.repoRoot)); err != nil {
			return nil, err
		}
	}
	return base, nil
}

// mergeFile overlays one TOML file onto cfg. A missing file is fine.
func mergeFile(cfg *domain.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var overlay domain.Config
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if overlay.DefaultAgent != "" {
		cfg.DefaultAgent = overlay.DefaultAgent
	}
	for name, agent := range overlay.Agents {
		cfg.Agents[name] = agent
	}
	if overlay.Daemon.SocketPath != "" {
		cfg.Daemon.SocketPath = overlay.Daemon.SocketPath
	}
	if overlay.Daemon.TmuxSocketPath != "" {
		cfg.Daemon.TmuxSocketPath = overlay.Daemon.TmuxSocketPath
	}
	if overlay.Daemon.PollIntervalMS > 0 {
		cfg.Daemon.PollIntervalMS = overlay.Daemon.PollIntervalMS
	}
	if overlay.Daemon.MetricsIntervalMS > 0 {
		cfg.Daemon.MetricsIntervalMS = overlay.Daemon.MetricsIntervalMS
	}
	if overlay.Daemon.IdleThresholdSecs > 0 {
		cfg.Daemon.IdleThresholdSecs = overlay.Daemon.IdleThresholdSecs
	}
	if overlay.Log.Level != "" {
		cfg.Log.Level = overlay.Log.Level
	}
	return nil
}

// ResolveSocketPath picks the daemon control socket path.
// Precedence: AGENTRY_SOCKET_PATH env, config, runtime directory.
func ResolveSocketPath(cfg *domain.Config) (string, error) {
	if p := os.Getenv("AGENTRY_SOCKET_PATH"); p != "" {
		return p, nil
	}
	if cfg != nil && cfg.Daemon.SocketPath != "" {
		return cfg.Daemon.SocketPath, nil
	}
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentry.sock"), nil
}

// ResolveTmuxSocketPath picks the dedicated tmux server socket path.
// Precedence mirrors ResolveSocketPath with its own env override.
func ResolveTmuxSocketPath(cfg *domain.Config) (string, error) {
	if p := os.Getenv("AGENTRY_TMUX_SOCKET_PATH"); p != "" {
		return p, nil
	}
	if cfg != nil && cfg.Daemon.TmuxSocketPath != "" {
		return cfg.Daemon.TmuxSocketPath, nil
	}
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentry-tmux.sock"), nil
}

// runtimeDir returns a private per-user directory for sockets,
// preferring XDG_RUNTIME_DIR and falling back to ~/.local/run.
func runtimeDir() (string, error) {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		dir := filepath.Join(d, "agentry")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create runtime dir: %w", err)
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	dir := filepath.Join(home, ".local", "run", "agentry")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create runtime dir: %w", err)
	}
	return dir, nil
}

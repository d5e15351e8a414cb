package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvDevices overrides the devices directive from the config file.
const EnvDevices = "DISKPARK_DEVICES"

// History configures the optional spin event journal.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config holds every knob the daemon and CLI need.
type Config struct {
	// Devices is the directive string: per-device flag sets plus defaults
	// for drives discovered at runtime.
	Devices string `toml:"devices"`

	// TickSeconds is the sampling interval. Zero derives it from the
	// smallest configured idle timeout (one tenth, at least one second).
	TickSeconds int `toml:"tick_seconds"`

	// RescanSeconds is the device membership rescan interval.
	RescanSeconds int `toml:"rescan_seconds"`

	LogDir    string `toml:"log_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// LockPath is the flock file guarding against a second daemon instance.
	LockPath string `toml:"lock_path"`

	History History `toml:"history"`
}

// Default returns the repository defaults before file and environment
// overrides.
func Default() Config {
	return Config{
		RescanSeconds: 60,
		LogLevel:      "info",
		LogFormat:     "console",
		LockPath:      filepath.Join(os.TempDir(), "diskparkd.lock"),
		History: History{
			Path: "~/.local/share/diskpark/history.db",
		},
	}
}

// DefaultConfigPath returns ~/.config/diskpark/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "diskpark", "config.toml"), nil
}

// Sample returns the embedded sample configuration file contents.
func Sample() string {
	return sampleConfig
}

// Load reads configuration from path, or from the default location when path
// is empty. It reports the resolved path and whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
		resolved = defaultPath
	} else {
		expanded, err := ExpandPath(resolved)
		if err != nil {
			return nil, "", false, err
		}
		resolved = expanded
	}

	cfg := Default()
	exists := true
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return nil, resolved, false, fmt.Errorf("read config %s: %w", resolved, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, true, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvDevices)); env != "" {
		cfg.Devices = env
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolved, exists, err
	}
	return &cfg, resolved, exists, nil
}

func (c *Config) normalize() error {
	if c.RescanSeconds <= 0 {
		c.RescanSeconds = Default().RescanSeconds
	}
	if c.TickSeconds < 0 {
		return fmt.Errorf("tick_seconds must not be negative (got %d)", c.TickSeconds)
	}
	for _, p := range []*string{&c.LogDir, &c.LockPath, &c.History.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	if c.LockPath == "" {
		c.LockPath = Default().LockPath
	}
	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.enabled requires history.path")
	}
	return nil
}

// TickInterval returns the configured sampling interval, zero when it should
// be derived from the directive.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// RescanInterval returns the membership rescan interval.
func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.RescanSeconds) * time.Second
}

// ExpandPath resolves a leading tilde against the current home directory.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || !strings.HasPrefix(trimmed, "~") {
		return trimmed, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	if trimmed == "~" {
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		return filepath.Join(home, trimmed[2:]), nil
	}
	return "", fmt.Errorf("unsupported home reference in %q", path)
}

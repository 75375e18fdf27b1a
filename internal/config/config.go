// Package config loads launcher settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultBinDir       = "hamclock_bin"
	defaultMaxLines     = 5000
	defaultPollInterval = 100 * time.Millisecond
	defaultStopTimeout  = 5 * time.Second
	defaultListen       = ":8080"
	defaultLiveURL      = "http://localhost:8081/live.html"
	defaultLogLevel     = "info"

	// Dir is the directory name searched for config.toml, under the
	// home and working directories.
	Dir = ".hamlaunch"
)

var defaultBinaries = []string{
	"hamclock-web-800x480",
	"hamclock-web-1600x960",
	"hamclock-web-2400x1440",
	"hamclock-web-3200x1920",
}

// Config stores runtime settings loaded from TOML files.
type Config struct {
	BinDir       string
	Binaries     []string
	Args         []string
	MaxLines     int
	PollInterval time.Duration
	StopTimeout  time.Duration
	Listen       string
	LiveURL      string
	LogLevel     string

	// ConsoleLog, when set, receives a copy of all displayed output.
	ConsoleLog string
}

type fileConfig struct {
	BinDir       *string   `toml:"bin_dir"`
	Binaries     *[]string `toml:"binaries"`
	Args         *[]string `toml:"args"`
	MaxLines     *int      `toml:"max_lines"`
	PollInterval *string   `toml:"poll_interval"`
	StopTimeout  *string   `toml:"stop_timeout"`
	Listen       *string   `toml:"listen"`
	LiveURL      *string   `toml:"live_url"`
	LogLevel     *string   `toml:"log_level"`
	ConsoleLog   *string   `toml:"console_log"`
}

// Load reads config from ~/.hamlaunch/config.toml, overlays a project-local
// .hamlaunch/config.toml and finally explicit, if not empty. Missing default
// files are skipped; a missing explicit file is an error.
func Load(explicit string) (*Config, error) {
	cfg := Defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, Dir, "config.toml"),
		filepath.Join(workingDir, Dir, "config.toml"),
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path, false); err != nil {
			return nil, err
		}
	}

	if explicit != "" {
		if err := overlayFromFile(&cfg, explicit, true); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Defaults returns the settings used when no file overrides them.
func Defaults() Config {
	return Config{
		BinDir:       defaultBinDir,
		Binaries:     append([]string(nil), defaultBinaries...),
		Args:         []string{"-o"},
		MaxLines:     defaultMaxLines,
		PollInterval: defaultPollInterval,
		StopTimeout:  defaultStopTimeout,
		Listen:       defaultListen,
		LiveURL:      defaultLiveURL,
		LogLevel:     defaultLogLevel,
	}
}

func overlayFromFile(cfg *Config, path string, required bool) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	md, err := toml.DecodeFile(path, &decoded)
	if err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse %s in %q: unsupported key", undecoded[0], path)
	}

	if err := applyScalarOverrides(cfg, decoded, path); err != nil {
		return err
	}

	return applyDurationOverrides(cfg, decoded, path)
}

func applyScalarOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.BinDir != nil {
		cfg.BinDir = strings.TrimSpace(*decoded.BinDir)
	}
	if decoded.Binaries != nil {
		if len(*decoded.Binaries) == 0 {
			return fmt.Errorf("parse binaries in %q: must not be empty", path)
		}
		cfg.Binaries = *decoded.Binaries
	}
	if decoded.Args != nil {
		cfg.Args = *decoded.Args
	}
	if decoded.MaxLines != nil {
		if *decoded.MaxLines <= 0 {
			return fmt.Errorf("parse max_lines in %q: must be positive", path)
		}
		cfg.MaxLines = *decoded.MaxLines
	}
	if decoded.Listen != nil {
		cfg.Listen = strings.TrimSpace(*decoded.Listen)
	}
	if decoded.LiveURL != nil {
		cfg.LiveURL = strings.TrimSpace(*decoded.LiveURL)
	}
	if decoded.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*decoded.LogLevel))
	}
	if decoded.ConsoleLog != nil {
		cfg.ConsoleLog = strings.TrimSpace(*decoded.ConsoleLog)
	}
	return nil
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.PollInterval != nil {
		value, err := parseDuration(*decoded.PollInterval, "poll_interval", path)
		if err != nil {
			return err
		}
		cfg.PollInterval = value
	}
	if decoded.StopTimeout != nil {
		value, err := parseDuration(*decoded.StopTimeout, "stop_timeout", path)
		if err != nil {
			return err
		}
		cfg.StopTimeout = value
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s in %q: must be positive", key, path)
	}
	return parsed, nil
}

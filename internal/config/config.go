// Package config loads redstringd's configuration from (in increasing
// priority) a YAML file, then environment variables, following the
// teacher's layering convention.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is redstringd's full configuration surface.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Git         GitConfig         `yaml:"git"`
	Log         LogConfig         `yaml:"log"`
}

// DeviceConfig overrides the facts internal/device.Compute would
// otherwise infer, for running redstringd on hosts with no browser to
// report touch/mobile/screen facts.
type DeviceConfig struct {
	Touch         bool `yaml:"touch"`
	Mobile        bool `yaml:"mobile"`
	Tablet        bool `yaml:"tablet"`
	ScreenWidth   int  `yaml:"screen_width"`
	HasSavePicker bool `yaml:"has_save_picker"`
}

// CoordinatorConfig overrides the save coordinator's default priority
// delay table (spec §4.4).
type CoordinatorConfig struct {
	ImmediateLocalDelay time.Duration `yaml:"immediate_local_delay"`
	HighLocalDelay      time.Duration `yaml:"high_local_delay"`
	HighGitDelay        time.Duration `yaml:"high_git_delay"`
	NormalLocalDelay    time.Duration `yaml:"normal_local_delay"`
	NormalGitDelay      time.Duration `yaml:"normal_git_delay"`
	LowLocalDelay       time.Duration `yaml:"low_local_delay"`
	LowGitDelay         time.Duration `yaml:"low_git_delay"`
	MaxQueueEntries     int           `yaml:"max_queue_entries"`
}

// GitConfig selects and configures the Git authentication strategy used
// by internal/storage/gitrepo.
type GitConfig struct {
	AuthMethod     string `yaml:"auth_method"` // "oauth" | "app"
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// LogConfig controls redstringd's own logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file or
// environment override is present.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			HasSavePicker: true,
			ScreenWidth:   1920,
		},
		Coordinator: CoordinatorConfig{
			ImmediateLocalDelay: 0,
			HighLocalDelay:      2 * time.Second,
			HighGitDelay:        5 * time.Second,
			NormalLocalDelay:    5 * time.Second,
			NormalGitDelay:      15 * time.Second,
			LowLocalDelay:       10 * time.Second,
			LowGitDelay:         60 * time.Second,
			MaxQueueEntries:     50,
		},
		Git: GitConfig{
			AuthMethod: "oauth",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if authMethod := getenv("REDSTRING_GIT_AUTH_METHOD"); authMethod != "" {
		cfg.Git.AuthMethod = authMethod
	}
	if keyPath := getenv("REDSTRING_GIT_PRIVATE_KEY_PATH"); keyPath != "" {
		cfg.Git.PrivateKeyPath = keyPath
	}
	if level := getenv("REDSTRING_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "redstringd", "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "redstringd", "config.yaml")
}

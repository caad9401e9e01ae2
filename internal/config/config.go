package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDriver   = "sqlite"
	DefaultDSN      = "alldone.db"
	DefaultLogLevel = "info"
	DefaultPort     = 7171
)

// Config represents the application configuration.
type Config struct {
	Database     DatabaseConfig `yaml:"database"`
	SnapshotFile string         `yaml:"snapshot_file"`
	Workspace    string         `yaml:"workspace"`
	LogLevel     string         `yaml:"log_level"`
	Claude       ClaudeConfig   `yaml:"claude"`
	Viewer       ViewerConfig   `yaml:"viewer"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

type ClaudeConfig struct {
	Model string `yaml:"model"`
}

type ViewerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when no file or environment
// overrides exist.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the config file at path, or the first file found in the search
// path when path is empty, then applies ALLDONE_* environment overrides and
// defaults. A missing file is not an error unless path was given explicitly.
func Load(path string) (*Config, error) {
	config := &Config{}

	file := path
	if file == "" {
		file = findConfig()
	}
	if file != "" {
		data, err := os.ReadFile(file)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", file, err)
			}
		case path != "" || !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, nil
}

// findConfig returns the first existing file among ./alldone.yaml and the
// user config directory.
func findConfig() string {
	candidates := []string{"alldone.yaml"}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		candidates = append(candidates, filepath.Join(configHome, "alldone", "config.yaml"))
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "alldone", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func (c *Config) applyEnv() error {
	setEnv(&c.Database.Driver, "ALLDONE_DB_DRIVER")
	setEnv(&c.Database.DSN, "ALLDONE_DSN")
	setEnv(&c.SnapshotFile, "ALLDONE_SNAPSHOT_FILE")
	setEnv(&c.Workspace, "ALLDONE_WORKSPACE")
	setEnv(&c.LogLevel, "ALLDONE_LOG_LEVEL")
	setEnv(&c.Claude.Model, "ALLDONE_CLAUDE_MODEL")

	if v := os.Getenv("ALLDONE_VIEWER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ALLDONE_VIEWER_PORT: %w", err)
		}
		c.Viewer.Port = port
	}
	return nil
}

func setEnv(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// applyDefaults fills in missing configuration with defaults.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == DefaultDriver {
		c.Database.DSN = DefaultDSN
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Viewer.Port == 0 {
		c.Viewer.Port = DefaultPort
	}
}

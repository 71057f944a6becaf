package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig  `yaml:"server"`
	Communities []string      `yaml:"communities"`
	Sync        SyncConfig    `yaml:"sync"`
	Output      OutputConfig  `yaml:"output"`
	State       StateConfig   `yaml:"state"`
	Logging     LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
}

type SyncConfig struct {
	MaxPage                int `yaml:"max_page"`
	ListLimit              int `yaml:"list_limit"`
	IntervalHours          int `yaml:"interval_hours"`
	RequestIntervalSeconds int `yaml:"request_interval_seconds"`
	MinimumPostAgeHours    int `yaml:"minimum_post_age_hours"`
}

func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

func (c SyncConfig) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalSeconds) * time.Second
}

func (c SyncConfig) MinimumPostAge() time.Duration {
	return time.Duration(c.MinimumPostAgeHours) * time.Hour
}

type OutputConfig struct {
	Dir          string `yaml:"dir"`
	RequestsFile string `yaml:"requests_file"`
}

// RequestsPath resolves the requests audit file against the output
// directory unless an absolute path was configured.
func (c OutputConfig) RequestsPath() string {
	if filepath.IsAbs(c.RequestsFile) {
		return c.RequestsFile
	}
	return filepath.Join(c.Dir, c.RequestsFile)
}

type StateConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Sync.MaxPage == 0 {
		cfg.Sync.MaxPage = 2
	}
	if cfg.Sync.ListLimit == 0 {
		cfg.Sync.ListLimit = 50
	}
	if cfg.Sync.IntervalHours == 0 {
		cfg.Sync.IntervalHours = 12
	}
	if cfg.Sync.RequestIntervalSeconds == 0 {
		cfg.Sync.RequestIntervalSeconds = 20
	}
	if cfg.Sync.MinimumPostAgeHours == 0 {
		cfg.Sync.MinimumPostAgeHours = 24
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	} else {
		cfg.Output.Dir = expandPath(cfg.Output.Dir)
	}
	if cfg.Output.RequestsFile == "" {
		cfg.Output.RequestsFile = "requests.jsonl"
	}
	if cfg.State.Path == "" {
		home, _ := os.UserHomeDir()
		cfg.State.Path = filepath.Join(home, ".lemmy-harvester", "synced.db")
	} else {
		cfg.State.Path = expandPath(cfg.State.Path)
	}
	if cfg.Logging.Path != "" {
		cfg.Logging.Path = expandPath(cfg.Logging.Path)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if len(c.Communities) == 0 {
		return fmt.Errorf("at least one community must be configured")
	}
	for _, community := range c.Communities {
		if community == "" {
			return fmt.Errorf("communities list contains an empty entry")
		}
	}
	return nil
}

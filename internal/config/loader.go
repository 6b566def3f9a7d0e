package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the AdGuard Home admin interface default.
	DefaultPort = 3000

	// DefaultPollIntervalSeconds is the polling cadence when unset.
	DefaultPollIntervalSeconds = 30

	// MinPollIntervalSeconds is enforced here at load time; the
	// coordinator itself never re-validates.
	MinPollIntervalSeconds = 10

	// DefaultQueryLogLimit is the query log page size when unset.
	DefaultQueryLogLimit = 100

	// Query log page size bounds, enforced at load time.
	MinQueryLogLimit = 1
	MaxQueryLogLimit = 10000

	// DefaultIconFillColor matches the standard icon-set blue.
	DefaultIconFillColor = "#44739e"

	// DefaultListenPort is the local API server port.
	DefaultListenPort = 8067
)

// Instance describes one AdGuard Home server to monitor.
type Instance struct {
	ID                  string `yaml:"id"`
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	Username            string `yaml:"username"`
	Password            string `yaml:"password"`
	TLS                 bool   `yaml:"tls"`
	VerifyTLS           *bool  `yaml:"verify_tls"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	QueryLogLimit       int    `yaml:"query_log_limit"`
}

// PollInterval returns the configured interval as a duration.
func (i Instance) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalSeconds) * time.Second
}

// SkipTLSVerify reports whether certificate verification is disabled.
func (i Instance) SkipTLSVerify() bool {
	return i.VerifyTLS != nil && !*i.VerifyTLS
}

// Config is the top-level configuration file structure.
type Config struct {
	ListenPort    int        `yaml:"listen_port"`
	IconFillColor string     `yaml:"icon_fill_color"`
	Instances     []Instance `yaml:"instances"`
}

// Load reads and validates the configuration file. Defaults are applied
// before validation, so a minimal file with just id and host per instance
// is valid.
func Load(path string, logger *zap.Logger) (*Config, error) {
	logger.Debug("Loading configuration", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.Int("instances", len(cfg.Instances)),
		zap.Int("listen_port", cfg.ListenPort))
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenPort == 0 {
		c.ListenPort = DefaultListenPort
	}
	if c.IconFillColor == "" {
		c.IconFillColor = DefaultIconFillColor
	}
	for idx := range c.Instances {
		inst := &c.Instances[idx]
		if inst.Port == 0 {
			inst.Port = DefaultPort
		}
		if inst.PollIntervalSeconds == 0 {
			inst.PollIntervalSeconds = DefaultPollIntervalSeconds
		}
		if inst.QueryLogLimit == 0 {
			inst.QueryLogLimit = DefaultQueryLogLimit
		}
	}
}

func (c *Config) validate() error {
	if len(c.Instances) == 0 {
		return fmt.Errorf("config must define at least one instance")
	}

	seen := make(map[string]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if inst.ID == "" {
			return fmt.Errorf("instance id is required")
		}
		if seen[inst.ID] {
			return fmt.Errorf("duplicate instance id %q", inst.ID)
		}
		seen[inst.ID] = true

		if inst.Host == "" {
			return fmt.Errorf("instance %q: host is required", inst.ID)
		}
		if inst.Port < 1 || inst.Port > 65535 {
			return fmt.Errorf("instance %q: port %d out of range", inst.ID, inst.Port)
		}
		if inst.PollIntervalSeconds < MinPollIntervalSeconds {
			return fmt.Errorf("instance %q: poll interval %ds below minimum %ds",
				inst.ID, inst.PollIntervalSeconds, MinPollIntervalSeconds)
		}
		if inst.QueryLogLimit < MinQueryLogLimit || inst.QueryLogLimit > MaxQueryLogLimit {
			return fmt.Errorf("instance %q: query log limit %d outside %d-%d",
				inst.ID, inst.QueryLogLimit, MinQueryLogLimit, MaxQueryLogLimit)
		}
		if (inst.Username == "") != (inst.Password == "") {
			return fmt.Errorf("instance %q: username and password must be set together", inst.ID)
		}
	}
	return nil
}

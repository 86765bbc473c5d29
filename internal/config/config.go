package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models plinkage.yml.
type Config struct {
	Engagement struct {
		// MinRate is the lowest hourly rate accepted on an engagement.
		MinRate float64 `yaml:"min_rate"`
		// MaxTimeFrameDays caps the engagement time frame independently of
		// the project duration.
		MaxTimeFrameDays int `yaml:"max_time_frame_days"`
	} `yaml:"engagement"`
	Resignation struct {
		// MaxReasonLength bounds the free-text resignation reason.
		MaxReasonLength int `yaml:"max_reason_length"`
	} `yaml:"resignation"`
	Rating struct {
		Min float64 `yaml:"min"`
		Max float64 `yaml:"max"`
	} `yaml:"rating"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with plk config init", Path(workspace))
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engagement.MinRate < 0 {
		return fmt.Errorf("config.engagement.min_rate must not be negative")
	}
	if c.Engagement.MaxTimeFrameDays < 0 {
		return fmt.Errorf("config.engagement.max_time_frame_days must not be negative")
	}
	if c.Resignation.MaxReasonLength <= 0 {
		return fmt.Errorf("config.resignation.max_reason_length must be positive")
	}
	if c.Rating.Min >= c.Rating.Max {
		return fmt.Errorf("config.rating.min must be below config.rating.max")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "plinkage.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `engagement:
  min_rate: 0
  max_time_frame_days: 0

resignation:
  max_reason_length: 500

rating:
  min: 1
  max: 5

webhooks: []
`

// Package config loads node and tracker settings from YAML, the environment
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when it exists and no other path is given.
const DefaultPath = "peer-share.yaml"

type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Tracker TrackerConfig `yaml:"tracker"`
	Log     LogConfig     `yaml:"log"`
}

// NodeConfig holds the timings of the node's protocol.
type NodeConfig struct {
	TrackerURL   string   `yaml:"tracker_url" validate:"required,url"`
	CatalogDSN   string   `yaml:"catalog_dsn"`
	DownloadDir  string   `yaml:"download_dir"`
	STUNServers  []string `yaml:"stun_servers" validate:"dive,required"`
	ChannelLabel string   `yaml:"channel_label" validate:"required"`

	ReconnectDelay     time.Duration `yaml:"reconnect_delay" validate:"gt=0"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" validate:"gt=0"`
	RefreshDelay       time.Duration `yaml:"refresh_delay" validate:"gte=0"`
	RequestTimeout     time.Duration `yaml:"request_timeout" validate:"gt=0"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout" validate:"gt=0"`
	ResponderDelay     time.Duration `yaml:"responder_delay" validate:"gte=0"`
	FallbackInterval   time.Duration `yaml:"fallback_interval" validate:"gt=0"`
	FallbackMaxStep    float64       `yaml:"fallback_max_step" validate:"gt=0,lte=100"`
}

type TrackerConfig struct {
	Address           string        `yaml:"address" validate:"required"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" validate:"gt=0"`
	MaxMessageSize    int64         `yaml:"max_message_size" validate:"gt=0"`
	RateLimit         float64       `yaml:"rate_limit" validate:"gte=0"`
	RateBurst         int           `yaml:"rate_burst" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

func Default() *Config {
	return &Config{
		Node: NodeConfig{
			TrackerURL:         "ws://localhost:8000/ws",
			CatalogDSN:         "",
			DownloadDir:        "downloads",
			ChannelLabel:       "fileTransfer",
			ReconnectDelay:     3 * time.Second,
			HeartbeatInterval:  30 * time.Second,
			RefreshDelay:       500 * time.Millisecond,
			RequestTimeout:     5 * time.Second,
			NegotiationTimeout: 15 * time.Second,
			ResponderDelay:     time.Second,
			FallbackInterval:   300 * time.Millisecond,
			FallbackMaxStep:    10,
		},
		Tracker: TrackerConfig{
			Address:           ":8000",
			HeartbeatInterval: 30 * time.Second,
			MaxMessageSize:    64 * 1024,
			RateLimit:         50,
			RateBurst:         100,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func applyEnvironmentOverrides(config *Config) error {
	if v := os.Getenv("PEERSHARE_TRACKER_URL"); v != "" {
		config.Node.TrackerURL = v
	}
	if v := os.Getenv("PEERSHARE_CATALOG_DSN"); v != "" {
		config.Node.CatalogDSN = v
	}
	if v := os.Getenv("PEERSHARE_DOWNLOAD_DIR"); v != "" {
		config.Node.DownloadDir = v
	}
	if v := os.Getenv("PEERSHARE_STUN_SERVERS"); v != "" {
		config.Node.STUNServers = strings.Split(v, ",")
	}
	if v := os.Getenv("PEERSHARE_NEGOTIATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PEERSHARE_NEGOTIATION_TIMEOUT: %w", err)
		}
		config.Node.NegotiationTimeout = d
	}
	if v := os.Getenv("PEERSHARE_TRACKER_ADDRESS"); v != "" {
		config.Tracker.Address = v
	}
	if v := os.Getenv("PEERSHARE_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PEERSHARE_RATE_LIMIT: %w", err)
		}
		config.Tracker.RateLimit = f
	}
	if v := os.Getenv("PEERSHARE_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("PEERSHARE_LOG_FORMAT"); v != "" {
		config.Log.Format = v
	}
	return nil
}

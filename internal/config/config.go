package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/youmna-rabie/socket-relay/internal/types"
)

// PathEnv names the optional YAML config file.
const PathEnv = "RELAY_CONFIG"

// ErrMissingToken is returned when no socket-mode credential is configured.
var ErrMissingToken = errors.New("SLACK_SOCKET_TOKEN is not set")

// Config is the relay configuration. It is built once at startup and only
// read afterwards.
type Config struct {
	Socket   SocketConfig   `yaml:"socket"`
	Targets  TargetsConfig  `yaml:"targets"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Admin    AdminConfig    `yaml:"admin"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SocketConfig holds the real-time connection settings.
type SocketConfig struct {
	Token          string        `yaml:"token"`
	OpenURL        string        `yaml:"open_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// TargetConfig describes one webhook slot. An empty URL leaves the slot
// unconfigured.
type TargetConfig struct {
	URL                string        `yaml:"url"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// TargetsConfig holds the four routing slots.
type TargetsConfig struct {
	CommandProd TargetConfig `yaml:"cmd_prod"`
	CommandDev  TargetConfig `yaml:"cmd_dev"`
	Prod        TargetConfig `yaml:"prod"`
	Dev         TargetConfig `yaml:"dev"`
}

// DeliveryConfig holds outbound delivery settings.
type DeliveryConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxInFlight int           `yaml:"max_in_flight"`
	Fallthrough bool          `yaml:"fallthrough"`
}

// AdminConfig holds the optional admin HTTP listener. Empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig sizes the in-memory recent-dispatch log.
type StoreConfig struct {
	Capacity int `yaml:"capacity"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// slot binds a TargetsConfig field to its environment key and routing tags.
type slot struct {
	env   string
	name  string
	tag   types.Env
	route types.Route
	field func(*TargetsConfig) *TargetConfig
}

var slots = []slot{
	{"WEBHOOK_URL_CMD_PROD", "cmd-prod", types.EnvProd, types.RouteCommand, func(t *TargetsConfig) *TargetConfig { return &t.CommandProd }},
	{"WEBHOOK_URL_CMD_DEV", "cmd-dev", types.EnvDev, types.RouteCommand, func(t *TargetsConfig) *TargetConfig { return &t.CommandDev }},
	{"WEBHOOK_URL_PROD", "prod", types.EnvProd, types.RouteCallback, func(t *TargetsConfig) *TargetConfig { return &t.Prod }},
	{"WEBHOOK_URL_DEV", "dev", types.EnvDev, types.RouteCallback, func(t *TargetsConfig) *TargetConfig { return &t.Dev }},
}

func defaults() Config {
	return Config{
		Socket: SocketConfig{
			OpenURL:        "https://slack.com/api/apps.connections.open",
			ReconnectDelay: 5 * time.Second,
		},
		Delivery: DeliveryConfig{
			Timeout:     10 * time.Second,
			MaxInFlight: 64,
			Fallthrough: true,
		},
		Store: StoreConfig{
			Capacity: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables, which always win.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		cfg.expandEnv()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnv replaces ${VAR} references in secret-bearing fields so tokens
// and webhook URLs can stay out of the YAML file.
func (c *Config) expandEnv() {
	c.Socket.Token = os.ExpandEnv(c.Socket.Token)
	for _, s := range slots {
		t := s.field(&c.Targets)
		t.URL = os.ExpandEnv(t.URL)
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SLACK_SOCKET_TOKEN"); v != "" {
		c.Socket.Token = v
	}
	if v := os.Getenv("SLACK_CONNECTIONS_OPEN_URL"); v != "" {
		c.Socket.OpenURL = v
	}

	for _, s := range slots {
		t := s.field(&c.Targets)
		if v := os.Getenv(s.env); v != "" {
			t.URL = v
		}
		if v := os.Getenv(s.env + "_INSECURE"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s_INSECURE: %w", s.env, err)
			}
			t.InsecureSkipVerify = b
		}
		if v := os.Getenv(s.env + "_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s_TIMEOUT: %w", s.env, err)
			}
			t.Timeout = d
		}
	}

	if v := os.Getenv("WEBHOOK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_TIMEOUT: %w", err)
		}
		c.Delivery.Timeout = d
	}
	if v := os.Getenv("RELAY_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_MAX_IN_FLIGHT: %w", err)
		}
		c.Delivery.MaxInFlight = n
	}
	if v := os.Getenv("RELAY_CMD_FALLTHROUGH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELAY_CMD_FALLTHROUGH: %w", err)
		}
		c.Delivery.Fallthrough = b
	}
	if v := os.Getenv("RELAY_ADMIN_ADDR"); v != "" {
		c.Admin.Addr = v
	}
	if v := os.Getenv("RELAY_HISTORY_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_HISTORY_SIZE: %w", err)
		}
		c.Store.Capacity = n
	}
	if v := os.Getenv("RELAY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// validate checks required fields and value constraints.
func (c *Config) validate() error {
	if c.Socket.Token == "" {
		return ErrMissingToken
	}
	if err := checkURL(c.Socket.OpenURL); err != nil {
		return fmt.Errorf("socket.open_url: %w", err)
	}
	if c.Socket.ReconnectDelay <= 0 {
		return fmt.Errorf("socket.reconnect_delay must be positive")
	}
	for _, s := range slots {
		t := s.field(&c.Targets)
		if t.URL == "" {
			continue
		}
		if err := checkURL(t.URL); err != nil {
			return fmt.Errorf("%s: %w", s.env, err)
		}
		if t.Timeout < 0 {
			return fmt.Errorf("%s_TIMEOUT must be non-negative", s.env)
		}
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery.timeout must be positive")
	}
	if c.Delivery.MaxInFlight < 1 {
		return fmt.Errorf("delivery.max_in_flight must be at least 1, got %d", c.Delivery.MaxInFlight)
	}
	if c.Store.Capacity < 1 {
		return fmt.Errorf("store.capacity must be at least 1, got %d", c.Store.Capacity)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// DeliveryTargets returns the routing slots in the order command-prod,
// command-dev, callback-prod, callback-dev. Unconfigured slots are nil.
func (c *Config) DeliveryTargets() (cmdProd, cmdDev, prod, dev *types.Target) {
	out := make([]*types.Target, len(slots))
	for i, s := range slots {
		t := s.field(&c.Targets)
		if t.URL == "" {
			continue
		}
		timeout := t.Timeout
		if timeout == 0 {
			timeout = c.Delivery.Timeout
		}
		out[i] = &types.Target{
			Name:               s.name,
			URL:                t.URL,
			Env:                s.tag,
			Route:              s.route,
			Timeout:            timeout,
			InsecureSkipVerify: t.InsecureSkipVerify,
		}
	}
	return out[0], out[1], out[2], out[3]
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverLocal = "local"
	DriverREST  = "rest"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Session   SessionConfig   `yaml:"session"`
	Directory DirectoryConfig `yaml:"directory"`
	Briefing  BriefingConfig  `yaml:"briefing"`
	StateDir  string          `yaml:"state_dir"`
	Log       LogConfig       `yaml:"log"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type GatewayConfig struct {
	URL               string        `yaml:"url"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SecureOrigin      bool          `yaml:"secure_origin"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

type SessionConfig struct {
	LogoutAfter   time.Duration `yaml:"logout_after"`
	ActionHold    time.Duration `yaml:"action_hold"`
	AuthErrorHold time.Duration `yaml:"auth_error_hold"`
	// Zero keeps a data-source error on screen until an explicit logout.
	ProviderErrorHold time.Duration `yaml:"provider_error_hold"`
	ProviderTimeout   time.Duration `yaml:"provider_timeout"`
	BriefingTimeout   time.Duration `yaml:"briefing_timeout"`
}

type DirectoryConfig struct {
	Driver     string        `yaml:"driver"`
	DataDir    string        `yaml:"data_dir"`  // local: badger directory, empty for in-memory
	SeedFile   string        `yaml:"seed_file"` // local: imported into an empty store
	APIBaseURL string        `yaml:"api_base_url"`
	APIToken   string        `yaml:"api_token"`
	APITimeout time.Duration `yaml:"api_timeout"`
}

// BriefingConfig enables the Azure OpenAI daily briefing. It stays off
// unless both Endpoint and Deployment are set and the key variable is
// present in the environment.
type BriefingConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxTokens  int32  `yaml:"max_tokens"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

type SimulatorConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Gateway: GatewayConfig{
			URL:               "ws://localhost:1880/ws/rfid",
			ReconnectInterval: 5 * time.Second,
			PingInterval:      30 * time.Second,
			PongTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Session: SessionConfig{
			LogoutAfter:       15 * time.Second,
			ActionHold:        3 * time.Second,
			AuthErrorHold:     3 * time.Second,
			ProviderErrorHold: 3 * time.Second,
			ProviderTimeout:   10 * time.Second,
			BriefingTimeout:   20 * time.Second,
		},
		Directory: DirectoryConfig{
			Driver:     DriverLocal,
			APITimeout: 10 * time.Second,
		},
		Briefing: BriefingConfig{
			APIKeyEnv: "AZURE_OPENAI_API_KEY",
			MaxTokens: 200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"gateway.reconnect_interval", c.Gateway.ReconnectInterval},
		{"gateway.ping_interval", c.Gateway.PingInterval},
		{"gateway.pong_timeout", c.Gateway.PongTimeout},
		{"gateway.write_timeout", c.Gateway.WriteTimeout},
		{"session.logout_after", c.Session.LogoutAfter},
		{"session.action_hold", c.Session.ActionHold},
		{"session.auth_error_hold", c.Session.AuthErrorHold},
		{"session.provider_timeout", c.Session.ProviderTimeout},
		{"session.briefing_timeout", c.Session.BriefingTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.d)
		}
	}
	if c.Session.ProviderErrorHold < 0 {
		return fmt.Errorf("session.provider_error_hold must not be negative, got %s", c.Session.ProviderErrorHold)
	}
	if c.Gateway.PongTimeout <= c.Gateway.PingInterval {
		return fmt.Errorf("gateway.pong_timeout (%s) must exceed gateway.ping_interval (%s)", c.Gateway.PongTimeout, c.Gateway.PingInterval)
	}

	switch c.Directory.Driver {
	case DriverLocal:
	case DriverREST:
		if c.Directory.APIBaseURL == "" {
			return errors.New("directory.api_base_url is required for the rest driver")
		}
		if c.Directory.APITimeout <= 0 {
			return fmt.Errorf("directory.api_timeout must be positive, got %s", c.Directory.APITimeout)
		}
	default:
		return fmt.Errorf("unknown directory.driver %q", c.Directory.Driver)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// BriefingEnabled reports whether enough is configured to try Azure
// OpenAI. The key itself is read from the environment at startup.
func (c *Config) BriefingEnabled() bool {
	return c.Briefing.Endpoint != "" && c.Briefing.Deployment != ""
}

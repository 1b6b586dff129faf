// Package config provides configuration management for the StdHuman bridge.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the bridge.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Decision DecisionConfig `mapstructure:"decision"`
	Mission  MissionConfig  `mapstructure:"mission"`
	NATS     NATSConfig     `mapstructure:"nats"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TelegramConfig holds Telegram Bot API configuration.
type TelegramConfig struct {
	BotToken         string  `mapstructure:"botToken"`
	OperatorUsername string  `mapstructure:"operatorUsername"` // must start with '@'
	APIBaseURL       string  `mapstructure:"apiBaseUrl"`
	PollInterval     float64 `mapstructure:"pollInterval"` // in seconds
	SendTimeout      int     `mapstructure:"sendTimeout"`  // in seconds
	DataDir          string  `mapstructure:"dataDir"`      // pairing state files
}

// DecisionConfig holds human decision coordination configuration.
type DecisionConfig struct {
	Timeout int `mapstructure:"timeout"` // default wait for an answer, in seconds
}

// MissionConfig holds mission bookkeeping configuration.
type MissionConfig struct {
	// DBPath is the SQLite file for mission history. Empty means in-memory only.
	DBPath string `mapstructure:"dbPath"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// MCPConfig holds the embedded MCP server configuration.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// PollIntervalDuration returns the Telegram poll interval as a time.Duration.
func (t *TelegramConfig) PollIntervalDuration() time.Duration {
	return time.Duration(t.PollInterval * float64(time.Second))
}

// SendTimeoutDuration returns the outbound send timeout as a time.Duration.
func (t *TelegramConfig) SendTimeoutDuration() time.Duration {
	return time.Duration(t.SendTimeout) * time.Second
}

// TimeoutDuration returns the default decision timeout as a time.Duration.
func (d *DecisionConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("STDHUMAN_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18081)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Telegram defaults
	v.SetDefault("telegram.botToken", "")
	v.SetDefault("telegram.operatorUsername", "")
	v.SetDefault("telegram.apiBaseUrl", "https://api.telegram.org")
	v.SetDefault("telegram.pollInterval", 5.0)
	v.SetDefault("telegram.sendTimeout", 5)
	v.SetDefault("telegram.dataDir", ".stdhuman")

	// Decision defaults - an hour matches a human answering at their own pace
	v.SetDefault("decision.timeout", 3600)

	// Mission defaults - empty DBPath means in-memory history only
	v.SetDefault("mission.dbPath", "")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "stdhuman")
	v.SetDefault("nats.maxReconnects", 10)

	// MCP defaults
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 19090)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix STDHUMAN_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/stdhuman/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STDHUMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for env vars whose names do not follow from the
	// camelCase config keys.
	_ = v.BindEnv("telegram.botToken", "TELEGRAM_BOT_TOKEN", "STDHUMAN_TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.operatorUsername", "DEV_TELEGRAM_USERNAME", "STDHUMAN_TELEGRAM_OPERATOR_USERNAME")
	_ = v.BindEnv("telegram.apiBaseUrl", "STDHUMAN_TELEGRAM_API_BASE_URL")
	_ = v.BindEnv("mission.dbPath", "STDHUMAN_MISSION_DB_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/stdhuman/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	// Telegram is optional (the bridge can run without a paired operator),
	// but when an operator username is set it must carry the '@' prefix so
	// authorization compares the same form Telegram reports.
	if cfg.Telegram.OperatorUsername != "" && !strings.HasPrefix(strings.TrimSpace(cfg.Telegram.OperatorUsername), "@") {
		errs = append(errs, "telegram.operatorUsername must start with '@'")
	}
	if cfg.Telegram.PollInterval <= 0 {
		errs = append(errs, "telegram.pollInterval must be positive")
	}
	if cfg.Telegram.SendTimeout <= 0 {
		errs = append(errs, "telegram.sendTimeout must be positive")
	}

	if cfg.Decision.Timeout <= 0 {
		errs = append(errs, "decision.timeout must be positive")
	}

	if cfg.MCP.Enabled && (cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

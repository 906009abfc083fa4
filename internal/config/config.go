package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"httpd/internal/paths"
)

// CurrentVersion is the config schema version written by Save
const CurrentVersion = 1

// ConfigFileName is the base name searched for when no explicit file is given
const ConfigFileName = "httpd"

// Config represents the complete server configuration
type Config struct {
	Version int `json:"version" toml:"version" mapstructure:"version"`

	// Directory is the base directory for file routes; empty disables them
	Directory string `json:"directory" toml:"directory" mapstructure:"directory"`

	Server  ServerConfig  `json:"server" toml:"server" mapstructure:"server"`
	Files   FilesConfig   `json:"files" toml:"files" mapstructure:"files"`
	Logging LoggingConfig `json:"logging" toml:"logging" mapstructure:"logging"`
}

// ServerConfig contains listener and connection settings
type ServerConfig struct {
	Host string `json:"host" toml:"host" mapstructure:"host"`
	Port int    `json:"port" toml:"port" mapstructure:"port"`

	// MaxConnections bounds concurrently served connections; 0 means unbounded
	MaxConnections int `json:"maxConnections" toml:"maxConnections" mapstructure:"maxConnections"`
	// QueueTimeoutMs is how long an accepted connection waits for a free slot
	QueueTimeoutMs int `json:"queueTimeoutMs" toml:"queueTimeoutMs" mapstructure:"queueTimeoutMs"`
	// RetryAfterSeconds is sent with 503 responses to rejected connections
	RetryAfterSeconds int `json:"retryAfterSeconds" toml:"retryAfterSeconds" mapstructure:"retryAfterSeconds"`

	// IdleTimeoutMs closes a keep-alive connection with no new request; 0 waits forever
	IdleTimeoutMs     int `json:"idleTimeoutMs" toml:"idleTimeoutMs" mapstructure:"idleTimeoutMs"`
	ReadBufferSize    int `json:"readBufferSize" toml:"readBufferSize" mapstructure:"readBufferSize"`
	MaxRequestBytes   int `json:"maxRequestBytes" toml:"maxRequestBytes" mapstructure:"maxRequestBytes"`
	ShutdownTimeoutMs int `json:"shutdownTimeoutMs" toml:"shutdownTimeoutMs" mapstructure:"shutdownTimeoutMs"`
}

// FilesConfig contains file route settings
type FilesConfig struct {
	// Confine refuses names that resolve outside Directory
	Confine bool `json:"confine" toml:"confine" mapstructure:"confine"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" toml:"format" mapstructure:"format"`
	Level      string `json:"level" toml:"level" mapstructure:"level"`
	File       string `json:"file" toml:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" toml:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" toml:"maxBackups" mapstructure:"maxBackups"`
}

// Addr returns the host:port listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:   CurrentVersion,
		Directory: "",
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              4221,
			MaxConnections:    0,
			QueueTimeoutMs:    0,
			RetryAfterSeconds: 1,
			IdleTimeoutMs:     0,
			ReadBufferSize:    1024,
			MaxRequestBytes:   1 << 20,
			ShutdownTimeoutMs: 10000,
		},
		Files: FilesConfig{
			Confine: false,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxBackups: 3,
		},
	}
}

// EnvOverride describes an environment variable bound to a config key
type EnvOverride struct {
	EnvVar      string `json:"envVar"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

// SupportedEnvOverrides lists every environment variable LoadConfig honors
var SupportedEnvOverrides = []EnvOverride{
	{EnvVar: "HTTPD_DIRECTORY", Key: "directory", Description: "Base directory for /files routes"},
	{EnvVar: "HTTPD_HOST", Key: "server.host", Description: "Listen host"},
	{EnvVar: "HTTPD_PORT", Key: "server.port", Description: "Listen port"},
	{EnvVar: "HTTPD_MAX_CONNECTIONS", Key: "server.maxConnections", Description: "Concurrent connection limit (0 = unbounded)"},
	{EnvVar: "HTTPD_QUEUE_TIMEOUT_MS", Key: "server.queueTimeoutMs", Description: "Admission wait before rejecting"},
	{EnvVar: "HTTPD_IDLE_TIMEOUT_MS", Key: "server.idleTimeoutMs", Description: "Keep-alive idle timeout (0 = none)"},
	{EnvVar: "HTTPD_FILES_CONFINE", Key: "files.confine", Description: "Refuse file names outside the directory"},
	{EnvVar: "HTTPD_LOG_FORMAT", Key: "logging.format", Description: "Log format (human, json)"},
	{EnvVar: "HTTPD_LOG_LEVEL", Key: "logging.level", Description: "Log level (debug, info, warn, error)"},
	{EnvVar: "HTTPD_LOG_FILE", Key: "logging.file", Description: "Also write logs to this file"},
}

// LoadConfig loads configuration with precedence env > file > defaults.
// An explicit path must exist; otherwise httpd.toml is searched for in the
// working directory and the user home (~/.httpd). It returns the file used, or "".
func LoadConfig(path string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	for _, o := range SupportedEnvOverrides {
		if err := v.BindEnv(o.Key, o.EnvVar); err != nil {
			return nil, "", err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := paths.GetHome(); err == nil {
			v.AddConfigPath(home)
		}
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}

	return &cfg, v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("directory", d.Directory)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.maxConnections", d.Server.MaxConnections)
	v.SetDefault("server.queueTimeoutMs", d.Server.QueueTimeoutMs)
	v.SetDefault("server.retryAfterSeconds", d.Server.RetryAfterSeconds)
	v.SetDefault("server.idleTimeoutMs", d.Server.IdleTimeoutMs)
	v.SetDefault("server.readBufferSize", d.Server.ReadBufferSize)
	v.SetDefault("server.maxRequestBytes", d.Server.MaxRequestBytes)
	v.SetDefault("server.shutdownTimeoutMs", d.Server.ShutdownTimeoutMs)

	v.SetDefault("files.confine", d.Files.Confine)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// Save writes the configuration as TOML to path, creating parent directories
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported version %d", c.Version)}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("port %d out of range", c.Server.Port)}
	}

	nonNegative := map[string]int{
		"server.maxConnections":    c.Server.MaxConnections,
		"server.queueTimeoutMs":    c.Server.QueueTimeoutMs,
		"server.retryAfterSeconds": c.Server.RetryAfterSeconds,
		"server.idleTimeoutMs":     c.Server.IdleTimeoutMs,
		"server.shutdownTimeoutMs": c.Server.ShutdownTimeoutMs,
		"logging.maxBackups":       c.Logging.MaxBackups,
	}
	for field, value := range nonNegative {
		if value < 0 {
			return &ConfigError{Field: field, Message: "must not be negative"}
		}
	}

	if c.Server.ReadBufferSize <= 0 {
		return &ConfigError{Field: "server.readBufferSize", Message: "must be positive"}
	}
	if c.Server.MaxRequestBytes < c.Server.ReadBufferSize {
		return &ConfigError{Field: "server.maxRequestBytes", Message: "must be at least readBufferSize"}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// Package config loads and validates the mem0mcp configuration.
//
// A Config is built once at startup and treated as immutable afterwards; it is
// passed explicitly to the memory client and the tool server.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/localrivet/configurator"

	"github.com/localrivet/mem0mcp/internal/errortypes"
)

// Config represents the mem0mcp configuration
type Config struct {
	// Transport selects how MCP clients reach the server.
	Transport struct {
		// Mode is "stdio" or "sse".
		Mode string `json:"mode" env:"TRANSPORT"`

		// Host is the interface to bind in sse mode.
		Host string `json:"host" env:"HOST" default:"0.0.0.0"`

		// Port is the port to listen on in sse mode.
		Port int `json:"port" env:"PORT" default:"8050"`
	} `json:"transport"`

	// Mem0 contains the hosted memory API settings.
	Mem0 struct {
		// APIKey is the bearer credential for the hosted API.
		APIKey string `json:"api_key" env:"MEM0_API_KEY"`

		// BaseURL is the API root, e.g. https://api.mem0.ai.
		BaseURL string `json:"base_url" env:"MEM0_BASE_URL" default:"https://api.mem0.ai" validate:"required"`

		// DefaultUserID is used when a tool call omits user_id.
		DefaultUserID string `json:"default_user_id" env:"DEFAULT_USER_ID" default:"user" validate:"required"`
	} `json:"mem0"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level to display ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" default:"info" validate:"required"`

		// Format is the log format to use ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT" default:"text"`
	} `json:"logging"`
}

// Default configuration values
const (
	DefaultConfigFilename = ".mem0mcpconfig"
	DefaultEnvFilename    = ".env"
	EnvPrefix             = "MEM0MCP"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8050
	DefaultBaseURL        = "https://api.mem0.ai"
	DefaultUserID         = "user"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// NewConfig creates a new Config instance with default values.
// The transport mode and API key have no defaults.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Transport.Host = DefaultHost
	cfg.Transport.Port = DefaultPort
	cfg.Mem0.BaseURL = DefaultBaseURL
	cfg.Mem0.DefaultUserID = DefaultUserID
	cfg.Logging.Level = DefaultLogLevel
	cfg.Logging.Format = DefaultLogFormat
	return cfg
}

// Overrides carries values from the command line. Zero values are ignored.
type Overrides struct {
	Transport string
	Host      string
	Port      int
	LogLevel  string
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path of a JSON config file. A missing file is skipped unless RequireFile is set.
	Path string

	// RequireFile turns a missing Path into a ConfigError.
	RequireFile bool

	// Overrides are applied last.
	Overrides Overrides

	// LookupEnv resolves the conventional environment names. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Logger receives loading diagnostics. Defaults to a stderr text logger.
	Logger *slog.Logger
}

// Load builds a validated Config. Precedence, lowest first: defaults, config
// file, MEM0MCP_-prefixed environment, conventional environment names,
// command-line overrides.
func Load(opts LoadOptions) (*Config, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := NewConfig()

	configPath := opts.Path
	if configPath == "" || configPath == DefaultConfigFilename {
		if foundPath, err := configurator.FindConfigFile(DefaultConfigFilename); err == nil {
			configPath = foundPath
			log.Debug("Found config file", "path", foundPath)
		}
	}

	loader := configurator.New(log).
		WithProvider(configurator.NewDefaultProvider())

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info("Loading configuration", "path", configPath)
			loader = loader.WithProvider(configurator.NewFileProvider(configPath))
		} else if opts.RequireFile {
			return nil, errortypes.ConfigError(err, "config file not readable").
				WithField("path", opts.Path)
		}
	}

	loader = loader.
		WithProvider(configurator.NewEnvProvider(EnvPrefix)).
		WithValidator(configurator.NewDefaultValidator())

	if err := loader.Load(context.Background(), cfg); err != nil {
		return nil, errortypes.ConfigError(err, "failed to load configuration")
	}

	if err := cfg.applyEnvironment(lookup); err != nil {
		return nil, err
	}
	cfg.apply(opts.Overrides)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultEnvFilename}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errortypes.ConfigError(err, "failed to load env file").WithField("path", p)
		}
	}
	return nil
}

// applyEnvironment reads the unprefixed variable names existing deployments use.
func (c *Config) applyEnvironment(lookup func(string) (string, bool)) error {
	if v, ok := lookup("TRANSPORT"); ok {
		c.Transport.Mode = v
	}
	if v, ok := lookup("HOST"); ok && v != "" {
		c.Transport.Host = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errortypes.ConfigError(err, "PORT must be an integer").WithField("value", v)
		}
		c.Transport.Port = port
	}
	if v, ok := lookup("MEM0_API_KEY"); ok {
		c.Mem0.APIKey = v
	}
	if v, ok := lookup("MEM0_BASE_URL"); ok && v != "" {
		c.Mem0.BaseURL = v
	}
	if v, ok := lookup("DEFAULT_USER_ID"); ok {
		c.Mem0.DefaultUserID = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Logging.Format = v
	}
	return nil
}

func (c *Config) apply(o Overrides) {
	if o.Transport != "" {
		c.Transport.Mode = o.Transport
	}
	if o.Host != "" {
		c.Transport.Host = o.Host
	}
	if o.Port != 0 {
		c.Transport.Port = o.Port
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}

func (c *Config) normalize() {
	c.Transport.Mode = strings.ToLower(strings.TrimSpace(c.Transport.Mode))
	c.Transport.Host = strings.TrimSpace(c.Transport.Host)
	c.Mem0.APIKey = strings.TrimSpace(c.Mem0.APIKey)
	c.Mem0.BaseURL = strings.TrimRight(strings.TrimSpace(c.Mem0.BaseURL), "/")
	c.Mem0.DefaultUserID = strings.TrimSpace(c.Mem0.DefaultUserID)
}

// Validate reports the first missing or invalid required setting as a ConfigError.
func (c *Config) Validate() error {
	if _, err := c.ResolveTransport(); err != nil {
		return err
	}
	if c.Mem0.APIKey == "" {
		return errortypes.ConfigError(errors.New("MEM0_API_KEY is not set"), "missing remote API key")
	}
	u, err := url.Parse(c.Mem0.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("%q is not an absolute http(s) URL", c.Mem0.BaseURL)
		}
		return errortypes.ConfigError(err, "invalid remote base URL").WithField("base_url", c.Mem0.BaseURL)
	}
	if c.Mem0.DefaultUserID == "" {
		return errortypes.ConfigError(errors.New("DEFAULT_USER_ID is empty"), "missing default user identifier")
	}
	return nil
}

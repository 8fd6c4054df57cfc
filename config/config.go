// Package config loads dispatcher configuration from an optional YAML
// file plus the environment. Secrets normally live in the environment
// (or a .env file next to the binary); the YAML file carries endpoint
// and model settings that are safe to commit.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"llmdispatch/internal/credential"
	"llmdispatch/internal/dispatch"
)

// DefaultPath is the config file consulted when none is given.
const DefaultPath = "llmdispatch.yaml"

// Config is the file schema.
type Config struct {
	Serve ServeConfig `yaml:"serve"`

	// PollTimeout bounds async job polling, in Go duration syntax.
	PollTimeout string `yaml:"poll_timeout"`

	// Models pins a model per provider ID.
	Models map[string]string `yaml:"models"`

	// Endpoints declares OpenAI-compatible endpoints beyond the builtin
	// providers.
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`

	// Fallback routes every unknown provider ID to one OpenAI-compatible
	// endpoint. Disabled when base_url is empty.
	Fallback EndpointConfig `yaml:"fallback"`

	// Credentials overrides environment lookups by variable name. Meant
	// for development setups, not production secrets.
	Credentials map[string]string `yaml:"credentials"`
}

// ServeConfig holds the HTTP facade settings.
type ServeConfig struct {
	Addr          string `yaml:"addr"`
	MasterKey     string `yaml:"master_key"`
	Metrics       bool   `yaml:"metrics"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// EndpointConfig is one generic OpenAI-compatible endpoint.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// Load reads the configuration. A .env file in the working directory is
// applied to the environment first; a missing config file is not an
// error, a malformed one is.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return applyEnv(Default()), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if _, err := cfg.PollBudget(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

// applyEnv lets a few environment variables override file settings, for
// container deployments where editing the file is awkward.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("LLMDISPATCH_ADDR"); v != "" {
		cfg.Serve.Addr = v
	}
	if v := os.Getenv("LLMDISPATCH_MASTER_KEY"); v != "" {
		cfg.Serve.MasterKey = v
	}
	return cfg
}

// PollBudget parses the configured poll timeout. Zero means the
// dispatcher default applies.
func (c *Config) PollBudget() (time.Duration, error) {
	if c.PollTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.PollTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_timeout %q: %w", c.PollTimeout, err)
	}
	return d, nil
}

// Resolver builds the secret source: file credentials first, then the
// process environment.
func (c *Config) Resolver() credential.Resolver {
	if len(c.Credentials) == 0 {
		return credential.EnvResolver{}
	}
	return credential.Chain{
		credential.MapResolver(c.Credentials),
		credential.EnvResolver{},
	}
}

// FallbackEndpoint converts the fallback entry into dispatcher options.
func (c *Config) FallbackEndpoint() dispatch.GenericEndpoint {
	return dispatch.GenericEndpoint{
		BaseURL: c.Fallback.BaseURL,
		APIKey:  c.Fallback.APIKey,
		Model:   c.Fallback.Model,
	}
}

// Generics converts the endpoint entries into dispatcher options.
func (c *Config) Generics() map[string]dispatch.GenericEndpoint {
	if len(c.Endpoints) == 0 {
		return nil
	}
	out := make(map[string]dispatch.GenericEndpoint, len(c.Endpoints))
	for id, e := range c.Endpoints {
		out[id] = dispatch.GenericEndpoint{
			BaseURL: e.BaseURL,
			APIKey:  e.APIKey,
			Model:   e.Model,
		}
	}
	return out
}

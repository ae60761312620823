package config

import (
	"fmt"
	"time"
)

// ConfigBuilder provides a fluent interface for building configurations in
// code, mostly for embedding and tests.
//
// Usage:
//
//	config, err := NewConfigBuilder().
//	    WithServer("localhost", 8080).
//	    WithStore(StoreConfig{Name: "app", File: "app.json", Watch: true}).
//	    WithRoute("user", `^/users/(?P<id>[0-9]+)$`).
//	    Build()
type ConfigBuilder struct {
	config     *Config
	validators []ValidatorFunc
}

// ValidatorFunc represents a configuration validation function
type ValidatorFunc func(*Config) error

// NewConfigBuilder creates a new configuration builder with defaults applied.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: &Config{
			Server: ServerConfig{Port: DefaultPort, Host: DefaultHost},
			Repository: RepositoryConfig{
				Timeout:  DefaultTimeout,
				LocalDir: DefaultLocalRepository,
			},
			I18n: I18nConfig{
				DefaultLanguage: DefaultLanguage,
				Supported:       []string{DefaultLanguage},
			},
			Watch: WatchConfig{Debounce: DefaultDebounce},
			Log:   LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		},
	}
}

// WithServer sets the listen address.
func (cb *ConfigBuilder) WithServer(host string, port int) *ConfigBuilder {
	cb.config.Server.Host = host
	cb.config.Server.Port = port
	return cb
}

// WithAllowedOrigins sets the WebSocket origins accepted besides same-host.
func (cb *ConfigBuilder) WithAllowedOrigins(origins ...string) *ConfigBuilder {
	cb.config.Server.AllowedOrigins = origins
	return cb
}

// WithStore appends a store declaration.
func (cb *ConfigBuilder) WithStore(store StoreConfig) *ConfigBuilder {
	cb.config.Stores = append(cb.config.Stores, store)
	return cb
}

// WithRoute appends a named route.
func (cb *ConfigBuilder) WithRoute(name, pattern string) *ConfigBuilder {
	cb.config.Routes = append(cb.config.Routes, RouteConfig{Name: name, Pattern: pattern})
	return cb
}

// WithRepository configures the REST backend.
func (cb *ConfigBuilder) WithRepository(baseURL string, timeout time.Duration) *ConfigBuilder {
	cb.config.Repository.BaseURL = baseURL
	if timeout > 0 {
		cb.config.Repository.Timeout = timeout
	}
	return cb
}

// WithLanguages sets the default and supported languages.
func (cb *ConfigBuilder) WithLanguages(defaultLanguage string, supported ...string) *ConfigBuilder {
	cb.config.I18n.DefaultLanguage = defaultLanguage
	cb.config.I18n.Supported = append([]string{defaultLanguage}, supported...)
	return cb
}

// WithLog sets logging options.
func (cb *ConfigBuilder) WithLog(level, format string) *ConfigBuilder {
	cb.config.Log.Level = level
	cb.config.Log.Format = format
	return cb
}

// AddValidator adds a custom validation function
func (cb *ConfigBuilder) AddValidator(validator ValidatorFunc) *ConfigBuilder {
	cb.validators = append(cb.validators, validator)
	return cb
}

// Build validates and returns the configuration.
func (cb *ConfigBuilder) Build() (*Config, error) {
	for _, validator := range cb.validators {
		if err := validator(cb.config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	if err := Validate(cb.config); err != nil {
		return nil, err
	}

	return cb.config, nil
}

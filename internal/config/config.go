// Package config provides configuration management for reactive using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the REACTIVE_ prefix, defaults and validation. It describes
// the HTTP server, the named stores served by it, the route table, the
// repository backends, translation settings, file watching and logging.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/reactive/internal/errors"
)

// FileName is the default configuration file looked up in the working
// directory.
const FileName = ".reactive.yml"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Stores     []StoreConfig    `mapstructure:"stores" yaml:"stores"`
	Routes     []RouteConfig    `mapstructure:"routes" yaml:"routes"`
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository"`
	I18n       I18nConfig       `mapstructure:"i18n" yaml:"i18n"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// StoreConfig declares one named observable store. A store is seeded from
// Initial, then from File when set; Watch keeps it in sync with File.
type StoreConfig struct {
	Name    string         `mapstructure:"name" yaml:"name"`
	File    string         `mapstructure:"file" yaml:"file"`
	Watch   bool           `mapstructure:"watch" yaml:"watch"`
	Initial map[string]any `mapstructure:"initial" yaml:"initial"`
}

// RouteConfig maps a route name to a regular expression matched against URL
// paths. Routes are tried in declaration order.
type RouteConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

type RepositoryConfig struct {
	BaseURL  string            `mapstructure:"base_url" yaml:"base_url"`
	Timeout  time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Headers  map[string]string `mapstructure:"headers" yaml:"headers"`
	LocalDir string            `mapstructure:"local_dir" yaml:"local_dir"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language" yaml:"default_language"`
	Supported       []string `mapstructure:"supported" yaml:"supported"`
	MessagesDir     string   `mapstructure:"messages_dir" yaml:"messages_dir"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

// Defaults.
const (
	DefaultPort            = 8080
	DefaultHost            = "localhost"
	DefaultTimeout         = 10 * time.Second
	DefaultDebounce        = 300 * time.Millisecond
	DefaultLanguage        = "en"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultLocalRepository = ".reactive/data"
)

// Built-in stores. Names starting with "_" are reserved for them.
const (
	LocationStore = "_location"
	LanguageStore = "_language"
)

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, applies defaults and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// Viper leaves slices set through flags or env as a single string.
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("i18n.supported") && len(config.I18n.Supported) == 0 {
		config.I18n.Supported = v.GetStringSlice("i18n.supported")
	}

	applyDefaults(&config, v)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config, v *viper.Viper) {
	if !v.IsSet("server.port") && config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Repository.Timeout <= 0 {
		config.Repository.Timeout = DefaultTimeout
	}
	if config.Repository.LocalDir == "" {
		config.Repository.LocalDir = DefaultLocalRepository
	}
	if config.I18n.DefaultLanguage == "" {
		config.I18n.DefaultLanguage = DefaultLanguage
	}
	if len(config.I18n.Supported) == 0 {
		config.I18n.Supported = []string{config.I18n.DefaultLanguage}
	}
	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = DefaultDebounce
	}
	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

// Store returns the configuration of the named store.
func (c *Config) Store(name string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return StoreConfig{}, false
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

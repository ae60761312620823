package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/reactive/internal/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, config *Config)
	}{
		{
			name: "defaults",
			setup: func() {
				viper.Reset()
			},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, DefaultPort, config.Server.Port)
				assert.Equal(t, DefaultHost, config.Server.Host)
				assert.Equal(t, DefaultDebounce, config.Watch.Debounce)
				assert.Equal(t, DefaultTimeout, config.Repository.Timeout)
				assert.Equal(t, []string{"en"}, config.I18n.Supported)
				assert.Equal(t, "info", config.Log.Level)
				assert.Equal(t, "localhost:8080", config.Address())
			},
		},
		{
			name: "explicit port zero is kept",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", 0)
			},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, 0, config.Server.Port)
			},
		},
		{
			name: "stores and routes",
			setup: func() {
				viper.Reset()
				viper.Set("stores", []map[string]any{
					{"name": "app", "file": "data/app.json", "watch": true},
					{"name": "session", "initial": map[string]any{"user": "guest"}},
				})
				viper.Set("routes", []map[string]any{
					{"name": "home", "pattern": "^/$"},
					{"name": "user", "pattern": `^/users/(?P<id>[0-9]+)$`},
				})
				viper.Set("watch.debounce", "50ms")
			},
			check: func(t *testing.T, config *Config) {
				require.Len(t, config.Stores, 2)
				app, ok := config.Store("app")
				require.True(t, ok)
				assert.True(t, app.Watch)
				session, _ := config.Store("session")
				assert.Equal(t, "guest", session.Initial["user"])
				_, ok = config.Store("missing")
				assert.False(t, ok)

				require.Len(t, config.Routes, 2)
				assert.Equal(t, "user", config.Routes[1].Name)
				assert.Equal(t, 50*time.Millisecond, config.Watch.Debounce)
			},
		},
		{
			name: "comma separated origins from env style values",
			setup: func() {
				viper.Reset()
				viper.Set("server.allowed_origins", "http://a.test,http://b.test")
			},
			check: func(t *testing.T, config *Config) {
				assert.Len(t, config.Server.AllowedOrigins, 2)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "invalid route regex",
			setup: func() {
				viper.Reset()
				viper.Set("routes", []map[string]any{{"name": "bad", "pattern": "("}})
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			config, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			tt.check(t, config)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `
server:
  host: 0.0.0.0
  port: 9090
  allowed_origins:
    - http://localhost:3000
stores:
  - name: app
    file: app.yaml
    watch: true
routes:
  - name: article
    pattern: ^/articles/(?P<slug>[a-z-]+)$
repository:
  base_url: https://api.example.com
  timeout: 2s
  headers:
    Authorization: Bearer x
i18n:
  default_language: de
  supported: [de, en-GB]
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", config.Address())
	assert.Equal(t, []string{"http://localhost:3000"}, config.Server.AllowedOrigins)
	assert.Equal(t, 2*time.Second, config.Repository.Timeout)
	assert.Equal(t, "Bearer x", config.Repository.Headers["authorization"])
	assert.Equal(t, []string{"de", "en-GB"}, config.I18n.Supported)
	assert.Equal(t, "json", config.Log.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ConfigBuilder)
		field  string
	}{
		{"port out of range", func(b *ConfigBuilder) { b.WithServer("localhost", 70000) }, "server.port"},
		{"dangerous host", func(b *ConfigBuilder) { b.WithServer("local;rm", 80) }, "server.host"},
		{"bad origin", func(b *ConfigBuilder) { b.WithAllowedOrigins("not a url") }, "server.allowed_origins"},
		{"unnamed store", func(b *ConfigBuilder) { b.WithStore(StoreConfig{}) }, "stores[0].name"},
		{"bad store name", func(b *ConfigBuilder) { b.WithStore(StoreConfig{Name: "a/b"}) }, "stores[0].name"},
		{"reserved store name", func(b *ConfigBuilder) { b.WithStore(StoreConfig{Name: LocationStore}) }, "stores[0].name"},
		{"duplicate store", func(b *ConfigBuilder) {
			b.WithStore(StoreConfig{Name: "a"}).WithStore(StoreConfig{Name: "a"})
		}, "stores[1].name"},
		{"store path traversal", func(b *ConfigBuilder) {
			b.WithStore(StoreConfig{Name: "a", File: "../secret.json"})
		}, "stores[0].file"},
		{"watch without file", func(b *ConfigBuilder) { b.WithStore(StoreConfig{Name: "a", Watch: true}) }, "stores[0].watch"},
		{"duplicate route", func(b *ConfigBuilder) { b.WithRoute("a", "^/$").WithRoute("a", "^/x$") }, "routes[1].name"},
		{"bad route pattern", func(b *ConfigBuilder) { b.WithRoute("a", "[") }, "routes[0].pattern"},
		{"relative base url", func(b *ConfigBuilder) { b.WithRepository("/api", 0) }, "repository.base_url"},
		{"bad language", func(b *ConfigBuilder) { b.WithLanguages("not_a_language_tag!") }, "i18n.default_language"},
		{"bad log level", func(b *ConfigBuilder) { b.WithLog("loud", "text") }, "log.level"},
		{"bad log format", func(b *ConfigBuilder) { b.WithLog("info", "xml") }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewConfigBuilder()
			tt.modify(b)

			_, err := b.Build()
			require.Error(t, err)

			var re *errors.ReactiveError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, errors.ErrCodeValidationFailed, re.Code)
			assert.Contains(t, re.Context, tt.field)
		})
	}
}

func TestConfigBuilder(t *testing.T) {
	config, err := NewConfigBuilder().
		WithServer("127.0.0.1", 0).
		WithStore(StoreConfig{Name: "app", File: "app.json", Watch: true}).
		WithRoute("user", `^/users/(?P<id>[0-9]+)$`).
		WithRepository("http://localhost:9000", time.Second).
		WithLanguages("en", "fr").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", config.Address())
	assert.Equal(t, []string{"en", "fr"}, config.I18n.Supported)
	assert.Equal(t, time.Second, config.Repository.Timeout)

	_, err = NewConfigBuilder().
		AddValidator(func(c *Config) error {
			if len(c.Stores) == 0 {
				return errors.NewConfigError(errors.ErrCodeConfigInvalid, "at least one store required")
			}
			return nil
		}).
		Build()
	assert.Error(t, err)
}

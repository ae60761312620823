package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
)

var (
	dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	storeNameRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Validate checks configuration values for security and correctness. All
// problems are reported together as a single ERR_VALIDATION_FAILED error.
func Validate(config *Config) error {
	var vec errors.ValidationErrorCollection

	validateServerConfig(&config.Server, &vec)
	validateStores(config.Stores, &vec)
	validateRoutes(config.Routes, &vec)
	validateRepositoryConfig(&config.Repository, &vec)
	validateI18nConfig(&config.I18n, &vec)
	validateLogConfig(&config.Log, &vec)

	if vec.HasErrors() {
		return vec.ToReactiveError()
	}
	return nil
}

func validateServerConfig(config *ServerConfig, vec *errors.ValidationErrorCollection) {
	// 0 lets the system pick a port, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		vec.AddField("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"use a port between 1024 and 65535")
	}

	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			vec.AddField("server.host", config.Host, "host contains dangerous character: "+char)
			break
		}
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			vec.AddField("server.allowed_origins", origin, "origin must be scheme://host[:port] or *")
		}
	}
}

func validateStores(stores []StoreConfig, vec *errors.ValidationErrorCollection) {
	seen := make(map[string]bool, len(stores))
	for i, store := range stores {
		field := fmt.Sprintf("stores[%d]", i)
		switch {
		case store.Name == "":
			vec.AddField(field+".name", store.Name, "store name is required")
		case !storeNameRe.MatchString(store.Name):
			vec.AddField(field+".name", store.Name, "store name may only contain letters, digits, - and _")
		case strings.HasPrefix(store.Name, "_"):
			vec.AddField(field+".name", store.Name, "store names starting with _ are reserved",
				"rename the store; "+LocationStore+" and "+LanguageStore+" are built in")
		case seen[store.Name]:
			vec.AddField(field+".name", store.Name, "duplicate store name")
		}
		seen[store.Name] = true

		if store.File != "" {
			if err := validatePath(store.File); err != nil {
				vec.AddField(field+".file", store.File, err.Error())
			}
		} else if store.Watch {
			vec.AddField(field+".watch", store.Watch, "watch requires a file")
		}
	}
}

func validateRoutes(routes []RouteConfig, vec *errors.ValidationErrorCollection) {
	seen := make(map[string]bool, len(routes))
	for i, route := range routes {
		field := fmt.Sprintf("routes[%d]", i)
		if route.Name == "" {
			vec.AddField(field+".name", route.Name, "route name is required")
		} else if seen[route.Name] {
			vec.AddField(field+".name", route.Name, "duplicate route name")
		}
		seen[route.Name] = true

		if _, err := regexp.Compile(route.Pattern); err != nil {
			vec.AddField(field+".pattern", route.Pattern, "invalid regular expression: "+err.Error(),
				"named groups such as (?P<id>[0-9]+) become route params")
		}
	}
}

func validateRepositoryConfig(config *RepositoryConfig, vec *errors.ValidationErrorCollection) {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			vec.AddField("repository.base_url", config.BaseURL, "base_url must be an absolute http(s) URL")
		}
	}
	if config.LocalDir != "" {
		if err := validatePath(config.LocalDir); err != nil {
			vec.AddField("repository.local_dir", config.LocalDir, err.Error())
		}
	}
}

func validateI18nConfig(config *I18nConfig, vec *errors.ValidationErrorCollection) {
	if _, err := language.Parse(config.DefaultLanguage); err != nil {
		vec.AddField("i18n.default_language", config.DefaultLanguage, "not a BCP 47 language tag")
	}
	for _, tag := range config.Supported {
		if _, err := language.Parse(tag); err != nil {
			vec.AddField("i18n.supported", tag, "not a BCP 47 language tag")
		}
	}
	if config.MessagesDir != "" {
		if err := validatePath(config.MessagesDir); err != nil {
			vec.AddField("i18n.messages_dir", config.MessagesDir, err.Error())
		}
	}
}

func validateLogConfig(config *LogConfig, vec *errors.ValidationErrorCollection) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		vec.AddField("log.level", config.Level, err.Error(), "use debug, info, warn or error")
	}
	if config.Format != "text" && config.Format != "json" {
		vec.AddField("log.format", config.Format, "format must be text or json")
	}
	if config.Dir != "" {
		if err := validatePath(config.Dir); err != nil {
			vec.AddField("log.dir", config.Dir, err.Error())
		}
	}
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	for _, char := range dangerousChars[:len(dangerousChars)-1] {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

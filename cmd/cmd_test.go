package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/repository"
	"github.com/conneroisu/reactive/internal/router"
	"github.com/conneroisu/reactive/internal/types"
	"github.com/conneroisu/reactive/internal/version"
)

// executeCommand runs the root command with args and a fresh viper and flag
// state, returning what it wrote to stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	cfgFile = ""
	output = formatText
	translateLang = ""
	versionShort = false
	watchStore = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".reactive.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const routesConfig = `
routes:
  - name: user
    pattern: ^/users/(?P<id>\d+)$
  - name: post
    pattern: ^/posts/(\d+)$
`

func TestRouteCommand(t *testing.T) {
	path := writeConfig(t, routesConfig)

	out, err := executeCommand(t, "--config", path, "route", "/users/42?tab=posts#top")
	require.NoError(t, err)
	assert.Contains(t, out, "Route: user")
	assert.Contains(t, out, "Param: id=42")
	assert.Contains(t, out, "Query: tab=posts")
	assert.Contains(t, out, "Hash:  top")

	out, err = executeCommand(t, "--config", path, "route", "/posts/7", "-o", "json")
	require.NoError(t, err)
	var m router.Match
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "post", m.Name)
	assert.Equal(t, map[string]string{"1": "7"}, m.Params)

	_, err = executeCommand(t, "--config", path, "route", "/nowhere")
	assert.Error(t, err)

	_, err = executeCommand(t, "--config", path, "route", "/users/1", "-o", "xml")
	assert.Error(t, err)
}

func TestTranslateCommand(t *testing.T) {
	messages := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(messages, "en.yaml"), []byte("greeting: Hello, {name}!\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(messages, "de.yaml"), []byte("greeting: Hallo, {name}!\n"), 0o644))
	path := writeConfig(t, "i18n:\n  default_language: en\n  messages_dir: "+messages+"\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default language", []string{"translate", "greeting", "name=Ada"}, "Hello, Ada!\n"},
		{"explicit language", []string{"translate", "greeting", "name=Ada", "--lang", "de"}, "Hallo, Ada!\n"},
		{"regional language", []string{"translate", "greeting", "name=Bo", "--lang", "de-AT"}, "Hallo, Bo!\n"},
		{"missing key", []string{"translate", "nope"}, "nope\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, append([]string{"--config", path}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	out, err := executeCommand(t, "--config", path, "translate", "greeting", "name=Ada", "--lang", "de", "-o", "yaml")
	require.NoError(t, err)
	var got translation
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, translation{Key: "greeting", Language: "de", Text: "Hallo, Ada!"}, got)

	_, err = executeCommand(t, "--config", path, "translate", "greeting", "broken")
	assert.Error(t, err)
}

func TestRepoCommands(t *testing.T) {
	dir := t.TempDir()
	repo, err := repository.NewLocalRepository(dir, "todos", nil)
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), repository.Record{"id": "1", "title": "write tests"})
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), repository.Record{"id": "2", "title": "ship"})
	require.NoError(t, err)

	path := writeConfig(t, "repository:\n  local_dir: "+dir+"\n")

	out, err := executeCommand(t, "--config", path, "repo", "list", "todos")
	require.NoError(t, err)
	assert.Contains(t, out, "1\t{\"title\":\"write tests\"}")
	assert.Contains(t, out, "2 record(s)")

	out, err = executeCommand(t, "--config", path, "repo", "get", "todos", "2", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2","title":"ship"}`, out)

	out, err = executeCommand(t, "--config", path, "repo", "delete", "todos", "2")
	require.NoError(t, err)
	assert.Equal(t, "Deleted todos/2\n", out)

	_, err = executeCommand(t, "--config", path, "repo", "get", "todos", "2")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.GetVersion()+"\n", out)

	out, err = executeCommand(t, "version", "-o", "json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetVersion(), info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"title":"one","items":[1,2]}`), 0o644))

	cfg := &config.Config{
		Stores: []config.StoreConfig{
			{Name: "app", File: file, Watch: true},
			{Name: "prefs", Initial: map[string]any{"theme": "light"}},
		},
		Routes:     []config.RouteConfig{{Name: "home", Pattern: "^/$"}},
		Repository: config.RepositoryConfig{LocalDir: filepath.Join(dir, "data")},
		I18n:       config.I18nConfig{DefaultLanguage: "en", Supported: []string{"en", "fr"}},
		Watch:      config.WatchConfig{Debounce: 20 * time.Millisecond},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{config.LanguageStore, config.LocationStore, "app", "prefs"}, a.stores.Names())
	assert.Equal(t, []string{"en", "fr"}, a.translator.Languages())
	assert.Equal(t, []string{"prefs"}, a.persister.Tracked())

	assert.Equal(t, "fr", a.translator.SetLanguage("fr"))
	language, err := a.stores.Snapshot(config.LanguageStore)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"language": "fr"}, language)

	_, err = a.router.Navigate("/")
	require.NoError(t, err)
	location, err := a.stores.Snapshot(config.LocationStore)
	require.NoError(t, err)
	assert.Equal(t, "home", location.(map[string]any)["name"])

	fw, err := a.watchFiles(ctx)
	require.NoError(t, err)
	require.NotNil(t, fw)
	defer fw.Stop()

	require.NoError(t, os.WriteFile(file, []byte(`{"title":"two"}`), 0o644))
	require.Eventually(t, func() bool {
		snapshot, err := a.stores.Snapshot("app")
		return err == nil && assert.ObjectsAreEqual(map[string]any{"title": "two"}, snapshot)
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, a.persister.Flush(ctx))
	saved, err := os.ReadFile(filepath.Join(dir, "data", storeCollection+".yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "theme: light")
}

func TestNewApp_BadStoreFile(t *testing.T) {
	cfg := &config.Config{
		Stores: []config.StoreConfig{{Name: "app", File: filepath.Join(t.TempDir(), "missing.json")}},
		I18n:   config.I18nConfig{DefaultLanguage: "en"},
	}
	_, err := newApp(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestPrintEvent(t *testing.T) {
	color.NoColor = true
	at := time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC)

	tests := []struct {
		name   string
		format outputFormat
		event  types.ChangeEvent
		want   string
	}{
		{"set", formatText, types.ChangeEvent{Path: ".user.name", Kind: types.ChangeSet, Previous: "Ada"},
			"14:05:09 SET    app.user.name \"Ada\"\n"},
		{"new key", formatText, types.ChangeEvent{Path: ".count", Kind: types.ChangeSet},
			"14:05:09 SET    app.count\n"},
		{"add", formatText, types.ChangeEvent{Path: ".items", Kind: types.ChangeAdd, Elements: []any{3}},
			"14:05:09 ADD    app.items [3]\n"},
		{"sort", formatText, types.ChangeEvent{Path: ".items", Kind: types.ChangeSort},
			"14:05:09 SORT   app.items\n"},
		{"json", formatJSON, types.ChangeEvent{Path: ".a", Kind: types.ChangeDelete, Previous: 1},
			`{"store":"app","event":{"path":".a","kind":"DELETE","previous":1},"timestamp":"2024-03-07T14:05:09Z"}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printEvent(&buf, tt.format, types.StoreEvent{Store: "app", Event: tt.event, Timestamp: at}))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrintEvents_FromObservable(t *testing.T) {
	color.NoColor = true
	events := make(chan types.StoreEvent, 4)

	obs := observable.New(map[string]any{"items": []any{}})
	obs.AddEventListener(types.EventChange, observable.NewListener(func(e types.ChangeEvent) {
		events <- types.StoreEvent{Store: "app", Event: e}
	}))
	obs.Get("items").(*observable.Array).Push(1, 2)
	obs.Set("title", "x")
	close(events)

	var buf bytes.Buffer
	require.NoError(t, printEvents(context.Background(), &buf, formatText, events))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ADD    app.items [1,2]")
	assert.Contains(t, lines[1], "SET    app.title")
}

func TestReportError(t *testing.T) {
	path := writeConfig(t, "log:\n  level: loud\n")

	_, err := executeCommand(t, "--config", path, "route", "/")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))

	var buf bytes.Buffer
	reportError(&buf, err)
	assert.True(t, strings.HasPrefix(buf.String(), "Error: "), buf.String())
	assert.Contains(t, buf.String(), "Suggestions:")
	assert.Contains(t, buf.String(), "log.level: use debug, info, warn or error")

	_, err = executeCommand(t, "--config", writeConfig(t, routesConfig), "route", "/nowhere")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestOutputFormat(t *testing.T) {
	var f outputFormat
	for _, valid := range []string{"text", "json", "yaml"} {
		require.NoError(t, f.Set(valid))
		assert.Equal(t, valid, f.String())
	}
	assert.Error(t, f.Set("xml"))
	assert.Equal(t, "format", f.Type())
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"name=Ada", "expr=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada", "expr": "a=b", "empty": ""}, params)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}

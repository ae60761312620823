// Package i18n translates message keys with {name} interpolation and
// localizes numbers, currencies and dates. Translators and localizers are
// plain values passed to whoever needs them; there is no process-wide
// registry.
package i18n

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// Translator holds message catalogs per language and the current language.
type Translator struct {
	mu       sync.RWMutex
	catalogs map[language.Tag]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
	current  language.Tag

	setMu     sync.Mutex
	state     *observable.Observable
	publisher Publisher
	storeName string
	logger    logging.Logger
}

// Publisher owns named observables and serializes writes to them, as the
// store registry does.
type Publisher interface {
	Register(name string, obs *observable.Observable) error
	Update(name string, fn func(*observable.Observable) error) error
}

// NewTranslator creates a translator whose fallback and initial language is
// defaultLanguage.
func NewTranslator(defaultLanguage string, logger logging.Logger) (*Translator, error) {
	tag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid default language "+defaultLanguage)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	t := &Translator{
		catalogs: map[language.Tag]map[string]string{tag: {}},
		fallback: tag,
		current:  tag,
		state:    observable.New(map[string]any{"language": tag.String()}),
		logger:   logger.WithComponent("i18n"),
	}
	t.rebuild()
	return t, nil
}

// rebuild refreshes the matcher; the fallback language is always first.
func (t *Translator) rebuild() {
	tags := []language.Tag{t.fallback}
	var others []language.Tag
	for tag := range t.catalogs {
		if tag != t.fallback {
			others = append(others, tag)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].String() < others[j].String() })
	t.tags = append(tags, others...)
	t.matcher = language.NewMatcher(t.tags)
}

// AddMessages merges messages into the catalog of lang. Nested maps are
// flattened into dotted keys.
func (t *Translator) AddMessages(lang string, messages map[string]any) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid language "+lang)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	catalog, ok := t.catalogs[tag]
	if !ok {
		catalog = make(map[string]string)
		t.catalogs[tag] = catalog
	}
	flatten("", messages, catalog)
	if !ok {
		t.rebuild()
	}
	return nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]any:
			flatten(key, child, out)
		case string:
			out[key] = child
		default:
			out[key] = fmt.Sprint(child)
		}
	}
}

// LoadDir loads every <lang>.yaml, <lang>.yml and <lang>.json file of dir.
// JSON is a subset of YAML, so both go through the YAML decoder.
func (t *Translator) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading messages directory "+dir)
	}

	var errs []error
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml" && ext != ".json") {
			continue
		}
		lang := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		path := filepath.Join(dir, entry.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading "+path))
			continue
		}
		var messages map[string]any
		if err := yaml.Unmarshal(raw, &messages); err != nil {
			errs = append(errs, errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid messages file "+path))
			continue
		}
		if err := t.AddMessages(lang, messages); err != nil {
			errs = append(errs, err)
			continue
		}
		t.logger.Debug(context.Background(), "Loaded messages", "language", lang, "file", path, "count", len(messages))
	}
	return errors.CombineErrors(errs...)
}

// Languages lists the languages with a catalog, fallback first.
func (t *Translator) Languages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.tags))
	for i, tag := range t.tags {
		out[i] = tag.String()
	}
	return out
}

// Negotiate picks the best supported language for a list of preferences,
// each a tag or an Accept-Language header value.
func (t *Translator) Negotiate(preferences ...string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.negotiate(preferences...).String()
}

func (t *Translator) negotiate(preferences ...string) language.Tag {
	var desired []language.Tag
	for _, p := range preferences {
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		desired = append(desired, tags...)
	}
	if len(desired) == 0 {
		return t.fallback
	}
	_, index, confidence := t.matcher.Match(desired...)
	if confidence == language.No {
		return t.fallback
	}
	return t.tags[index]
}

// SetLanguage switches the current language to the best match for lang and
// returns it. The state observable's "language" field follows.
func (t *Translator) SetLanguage(lang string) string {
	t.setMu.Lock()
	defer t.setMu.Unlock()

	t.mu.Lock()
	t.current = t.negotiate(lang)
	current := t.current.String()
	t.mu.Unlock()

	write := func(o *observable.Observable) error {
		o.Set("language", current)
		return nil
	}
	if t.publisher == nil {
		_ = write(t.state)
	} else if err := t.publisher.Update(t.storeName, write); err != nil {
		t.logger.Warn(context.Background(), err, "Publishing language failed", "store", t.storeName)
	}
	return current
}

// Publish registers the language state with p under name, so language
// changes reach the watchers of p. Later changes write through p.Update.
func (t *Translator) Publish(p Publisher, name string) error {
	t.setMu.Lock()
	defer t.setMu.Unlock()

	if t.publisher != nil {
		return errors.NewValidationError(errors.ErrCodeStoreExists, "language already published as "+t.storeName)
	}
	if err := p.Register(name, t.state); err != nil {
		return err
	}
	t.publisher, t.storeName = p, name
	return nil
}

// Language returns the current language.
func (t *Translator) Language() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.String()
}

// State returns an observable with a single "language" field that changes
// with SetLanguage. Once published, the state belongs to the publisher.
func (t *Translator) State() *observable.Observable {
	return t.state
}

// Translate looks key up in the current language.
func (t *Translator) Translate(key string, params map[string]any) string {
	t.mu.RLock()
	lang := t.current
	t.mu.RUnlock()
	return t.translate(lang, key, params)
}

// TranslateIn looks key up in the best match for lang.
func (t *Translator) TranslateIn(lang, key string, params map[string]any) string {
	t.mu.RLock()
	tag := t.negotiate(lang)
	t.mu.RUnlock()
	return t.translate(tag, key, params)
}

// translate falls back from the language to its base language, then to the
// fallback language, then to the key itself.
func (t *Translator) translate(tag language.Tag, key string, params map[string]any) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	candidates := []language.Tag{tag}
	if base, _ := tag.Base(); base.String() != tag.String() {
		if b, err := language.Parse(base.String()); err == nil {
			candidates = append(candidates, b)
		}
	}
	candidates = append(candidates, t.fallback)

	for _, c := range candidates {
		if msg, ok := t.catalogs[c][key]; ok {
			return Interpolate(msg, params)
		}
	}
	return Interpolate(key, params)
}

// Interpolate replaces {name} placeholders with params. Placeholders without
// a parameter are kept verbatim.
func Interpolate(message string, params map[string]any) string {
	if len(params) == 0 {
		return message
	}
	return placeholder.ReplaceAllStringFunc(message, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := params[name]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

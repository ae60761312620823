package bind

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/i18n"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/router"
)

// Binder resolves directives against its collaborators. Any collaborator
// may be nil; directives needing a missing one fail.
type Binder struct {
	stores     *registry.StoreRegistry
	translator *i18n.Translator
	router     *router.Router
	logger     logging.Logger

	mu         sync.Mutex
	localizers map[string]*i18n.Localizer
}

// NewBinder creates a Binder.
func NewBinder(stores *registry.StoreRegistry, translator *i18n.Translator, r *router.Router, logger logging.Logger) *Binder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Binder{
		stores:     stores,
		translator: translator,
		router:     r,
		logger:     logger.WithComponent("bind"),
		localizers: make(map[string]*i18n.Localizer),
	}
}

// Bond writes an element value into the store field ref points at.
func (b *Binder) Bond(ref string, value any) error {
	if b.stores == nil {
		return missing("store registry")
	}
	store, path, err := ParseRef(ref)
	if err != nil {
		return err
	}
	return b.stores.Update(store, func(o *observable.Observable) error {
		if path == "" {
			props, ok := value.(map[string]any)
			if !ok {
				return errors.ErrInvalidPath(ref)
			}
			o.Reset(props)
			return nil
		}
		return o.SetPath(path, value)
	})
}

// Read returns a plain copy of the store field ref points at.
func (b *Binder) Read(ref string) (any, error) {
	if b.stores == nil {
		return nil, missing("store registry")
	}
	store, path, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	var out any
	err = b.stores.View(store, func(o *observable.Observable) error {
		v, err := o.GetPath(path)
		if err != nil {
			return err
		}
		if n, ok := v.(observable.Node); ok {
			v = n.Snapshot()
		}
		out = v
		return nil
	})
	return out, err
}

// Translate resolves a message key in lang, or in the current language when
// lang is empty.
func (b *Binder) Translate(key, lang string, params map[string]any) (string, error) {
	if b.translator == nil {
		return "", missing("translator")
	}
	if lang == "" {
		return b.translator.Translate(key, params), nil
	}
	return b.translator.TranslateIn(lang, key, params), nil
}

// Localize formats value according to format:
//
//	number[:decimals]  percent  currency:CODE  date[:short|time|iso]  title
func (b *Binder) Localize(format string, value any, lang string) (string, error) {
	l, err := b.localizer(lang)
	if err != nil {
		return "", err
	}

	kind, arg, _ := strings.Cut(format, ":")
	switch kind {
	case "number":
		decimals := -1
		if arg != "" {
			if decimals, err = strconv.Atoi(arg); err != nil {
				return "", badFormat(format)
			}
		}
		f, err := toFloat(value)
		if err != nil {
			return "", err
		}
		return l.Number(f, decimals), nil
	case "percent":
		f, err := toFloat(value)
		if err != nil {
			return "", err
		}
		return l.Percent(f), nil
	case "currency":
		f, err := toFloat(value)
		if err != nil {
			return "", err
		}
		return l.Currency(arg, f)
	case "date":
		t, err := toTime(value)
		if err != nil {
			return "", err
		}
		style := i18n.DateShort
		switch arg {
		case "", "short":
		case "time":
			style = i18n.DateTime
		case "iso":
			style = i18n.DateISO
		default:
			return "", badFormat(format)
		}
		return l.Date(t, style), nil
	case "title":
		return l.Title(fmt.Sprint(value)), nil
	}
	return "", badFormat(format)
}

// Navigate routes url and returns the match.
func (b *Binder) Navigate(url string) (*router.Match, error) {
	if b.router == nil {
		return nil, missing("router")
	}
	return b.router.Navigate(url)
}

// Resolve computes the rendered text of a directive. Navigate directives
// resolve to their URL once it matches a route.
func (b *Binder) Resolve(d Directive) (string, error) {
	switch d.Kind {
	case KindBond:
		v, err := b.Read(d.Value)
		if err != nil {
			return "", err
		}
		return Stringify(v), nil
	case KindTranslate:
		return b.Translate(d.Value, d.Lang, paramsAny(d.Params))
	case KindLocalize:
		return b.Localize(d.Value, d.Input, d.Lang)
	case KindNavigate:
		if b.router == nil {
			return "", missing("router")
		}
		if _, err := b.router.Match(d.Value); err != nil {
			return "", err
		}
		return d.Value, nil
	}
	return "", errors.NewValidationError(errors.ErrCodeValidationFailed, "unknown directive "+string(d.Kind))
}

// Render fills every directive of the fragment read from r and writes the
// result to w. Bonds and translations replace the element content or set the
// bond property attribute; navigate directives set href. A directive that
// fails to resolve is left untouched and reported in the combined error.
func (b *Binder) Render(r io.Reader, w io.Writer) error {
	nodes, err := parseFragment(r)
	if err != nil {
		return err
	}

	var directives []Directive
	for _, n := range nodes {
		collect(n, &directives)
	}

	var errs []error
	for _, d := range directives {
		text, err := b.Resolve(d)
		if err != nil {
			b.logger.Debug(context.Background(), "Directive not resolved",
				"kind", string(d.Kind), "value", d.Value, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		switch {
		case d.Kind == KindNavigate:
			setAttr(d.node, "href", text)
		case d.Kind == KindBond && d.Property != defaultProperty:
			setAttr(d.node, d.Property, text)
		default:
			setText(d.node, text)
		}
	}

	for _, n := range nodes {
		if err := html.Render(w, n); err != nil {
			return errors.WrapIO(err, errors.ErrCodeInternalError, "rendering HTML")
		}
	}
	return errors.CombineErrors(errs...)
}

func (b *Binder) localizer(lang string) (*i18n.Localizer, error) {
	if lang == "" {
		if b.translator == nil {
			return nil, missing("translator")
		}
		lang = b.translator.Language()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.localizers[lang]; ok {
		return l, nil
	}
	l, err := i18n.NewLocalizer(lang)
	if err != nil {
		return nil, err
	}
	b.localizers[lang] = l
	return l, nil
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Stringify renders a value as element text: strings verbatim, nil as the
// empty string, everything else as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "not a number: "+t)
		}
		return f, nil
	}
	return 0, errors.NewValidationError(errors.ErrCodeValidationFailed, fmt.Sprintf("not a number: %v", v))
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, errors.NewValidationError(errors.ErrCodeValidationFailed, "not a date: "+t)
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	}
	return time.Time{}, errors.NewValidationError(errors.ErrCodeValidationFailed, fmt.Sprintf("not a date: %v", v))
}

func badFormat(format string) error {
	return errors.NewValidationError(errors.ErrCodeValidationFailed, "unknown localize format "+format).
		WithContext("format", format)
}

func missing(what string) error {
	return errors.NewInternalError(errors.ErrCodeInternalError, "binder has no "+what, nil)
}

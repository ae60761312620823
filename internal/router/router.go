// Package router matches URLs against a table of named regular-expression
// routes and publishes the current location into an observable.
package router

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
)

// Route is a named pattern matched against the URL path.
type Route struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match is the result of matching a URL.
//
// Params holds the pattern's capture groups: named groups under their name
// and unnamed groups under their 1-based index. Query keeps the first value
// of each query parameter.
type Match struct {
	Name   string            `json:"name"`
	URL    string            `json:"url"`
	Path   string            `json:"path"`
	Params map[string]string `json:"params"`
	Query  map[string]string `json:"query"`
	Hash   string            `json:"hash"`
}

// Publisher owns named observables and serializes writes to them, as the
// store registry does.
type Publisher interface {
	Register(name string, obs *observable.Observable) error
	Update(name string, fn func(*observable.Observable) error) error
}

// Router holds an ordered route table. The first matching route wins.
type Router struct {
	mu     sync.RWMutex
	routes []Route

	navMu     sync.Mutex
	state     *observable.Observable
	publisher Publisher
	storeName string
	logger    logging.Logger
}

// New compiles the configured routes in order.
func New(routes []config.RouteConfig, logger logging.Logger) (*Router, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Router{
		state: observable.New(map[string]any{
			"name":   "",
			"url":    "",
			"path":   "",
			"params": map[string]any{},
			"query":  map[string]any{},
			"hash":   "",
		}),
		logger: logger.WithComponent("router"),
	}
	for _, rc := range routes {
		if err := r.Add(rc.Name, rc.Pattern); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a route. Patterns are not anchored implicitly.
func (r *Router) Add(name, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeRoute, errors.ErrCodeRouteInvalid, "invalid route pattern").
			WithContext("route", name).
			WithContext("pattern", pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.routes {
		if existing.Name == name {
			return errors.NewRouteError(errors.ErrCodeRouteInvalid, "duplicate route: "+name).
				WithContext("route", name)
		}
	}
	r.routes = append(r.routes, Route{Name: name, Pattern: re})
	return nil
}

// Routes returns a copy of the route table.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Route(nil), r.routes...)
}

// Match finds the first route whose pattern matches the path of rawURL.
func (r *Router) Match(rawURL string) (*Match, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRoute, errors.ErrCodeRouteInvalid, "invalid URL").
			WithContext("url", rawURL)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.routes {
		groups := route.Pattern.FindStringSubmatch(path)
		if groups == nil {
			continue
		}

		params := make(map[string]string)
		names := route.Pattern.SubexpNames()
		for i := 1; i < len(groups); i++ {
			if names[i] != "" {
				params[names[i]] = groups[i]
			} else {
				params[strconv.Itoa(i)] = groups[i]
			}
		}

		query := make(map[string]string)
		for key, values := range u.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		return &Match{
			Name:   route.Name,
			URL:    rawURL,
			Path:   path,
			Params: params,
			Query:  query,
			Hash:   u.Fragment,
		}, nil
	}

	return nil, errors.ErrRouteNotFound(rawURL)
}

// Navigate matches rawURL and writes the result into the state observable.
// Only fields that changed emit events. An unmatched URL clears the route
// name and parameters but still records the URL.
func (r *Router) Navigate(rawURL string) (*Match, error) {
	r.navMu.Lock()
	defer r.navMu.Unlock()

	m, err := r.Match(rawURL)
	if err != nil {
		r.logger.Debug(context.Background(), "Navigation did not match a route", "url", rawURL)
		r.publish(&Match{URL: rawURL})
		return nil, err
	}

	r.logger.Debug(context.Background(), "Navigated", "url", rawURL, "route", m.Name)
	r.publish(m)
	return m, nil
}

func (r *Router) publish(m *Match) {
	write := func(o *observable.Observable) error {
		o.Set("name", m.Name)
		o.Set("url", m.URL)
		o.Set("path", m.Path)
		resetMap(o, "params", m.Params)
		resetMap(o, "query", m.Query)
		o.Set("hash", m.Hash)
		return nil
	}
	if r.publisher == nil {
		_ = write(r.state)
		return
	}
	if err := r.publisher.Update(r.storeName, write); err != nil {
		r.logger.Warn(context.Background(), err, "Publishing location failed", "store", r.storeName)
	}
}

// Publish registers the location state with p under name, so navigation
// changes reach the watchers of p. Later navigations write through
// p.Update and the state must then be read through p as well.
func (r *Router) Publish(p Publisher, name string) error {
	r.navMu.Lock()
	defer r.navMu.Unlock()

	if r.publisher != nil {
		return errors.NewValidationError(errors.ErrCodeStoreExists, "location already published as "+r.storeName)
	}
	if err := p.Register(name, r.state); err != nil {
		return err
	}
	r.publisher, r.storeName = p, name
	return nil
}

// State returns the observable holding the current location: name, url,
// path, params, query and hash. Listen to it for navigation changes;
// listeners run while Navigate holds its lock and must not call Navigate.
// Once published, the state belongs to the publisher.
func (r *Router) State() *observable.Observable {
	return r.state
}

// resetMap replaces the object at key with m, or sets it when a client
// replaced the published state with something else.
func resetMap(o *observable.Observable, key string, m map[string]string) {
	if obj, ok := o.Get(key).(*observable.Object); ok {
		obj.Reset(toAny(m))
		return
	}
	o.Set(key, toAny(m))
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

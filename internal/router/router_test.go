package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/types"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New([]config.RouteConfig{
		{Name: "home", Pattern: `^/$`},
		{Name: "user", Pattern: `^/users/(?P<id>\d+)$`},
		{Name: "file", Pattern: `^/files/([a-z]+)/(.+)$`},
		{Name: "catchall", Pattern: `^/docs`},
	}, nil)
	require.NoError(t, err)
	return r
}

func TestRouter_Match(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name string
		url  string
		want *Match
	}{
		{
			name: "root",
			url:  "https://example.com",
			want: &Match{Name: "home", URL: "https://example.com", Path: "/", Params: map[string]string{}, Query: map[string]string{}},
		},
		{
			name: "named group with query and hash",
			url:  "/users/42?tab=posts&tab=ignored&sort=new#top",
			want: &Match{
				Name:   "user",
				URL:    "/users/42?tab=posts&tab=ignored&sort=new#top",
				Path:   "/users/42",
				Params: map[string]string{"id": "42"},
				Query:  map[string]string{"tab": "posts", "sort": "new"},
				Hash:   "top",
			},
		},
		{
			name: "unnamed groups by index",
			url:  "/files/img/a/b.png",
			want: &Match{
				Name:   "file",
				URL:    "/files/img/a/b.png",
				Path:   "/files/img/a/b.png",
				Params: map[string]string{"1": "img", "2": "a/b.png"},
				Query:  map[string]string{},
			},
		},
		{
			name: "unanchored prefix",
			url:  "/docs/intro",
			want: &Match{Name: "catchall", URL: "/docs/intro", Path: "/docs/intro", Params: map[string]string{}, Query: map[string]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Match(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_MatchErrors(t *testing.T) {
	r := newTestRouter(t)

	_, err := r.Match("/users/abc")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.HasType(err, errors.ErrorTypeRoute))

	_, err = r.Match("http://[::1")
	var re *errors.ReactiveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errors.ErrCodeRouteInvalid, re.Code)
}

func TestRouter_Add(t *testing.T) {
	r := newTestRouter(t)

	err := r.Add("broken", `(`)
	var re *errors.ReactiveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errors.ErrCodeRouteInvalid, re.Code)
	assert.Equal(t, "broken", re.Context["route"])

	assert.Error(t, r.Add("home", `^/home$`))

	require.NoError(t, r.Add("about", `^/about$`))
	routes := r.Routes()
	require.Len(t, routes, 5)
	assert.Equal(t, "about", routes[4].Name)

	_, err = New([]config.RouteConfig{{Name: "x", Pattern: `[`}}, nil)
	assert.Error(t, err)
}

func TestRouter_Navigate(t *testing.T) {
	r := newTestRouter(t)

	var events []types.ChangeEvent
	r.State().AddEventListener(types.EventChange, observable.NewListener(func(e types.ChangeEvent) {
		events = append(events, e)
	}))

	_, err := r.Navigate("/users/1?tab=a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":   "user",
		"url":    "/users/1?tab=a",
		"path":   "/users/1",
		"params": map[string]any{"id": "1"},
		"query":  map[string]any{"tab": "a"},
		"hash":   "",
	}, r.State().Snapshot())

	events = nil
	_, err = r.Navigate("/users/2?tab=a")
	require.NoError(t, err)

	paths := make([]string, len(events))
	for i, e := range events {
		paths[i] = e.Path
	}
	assert.Equal(t, []string{".url", ".path", ".params.id"}, paths)

	events = nil
	_, err = r.Navigate("/nowhere")
	require.Error(t, err)
	snap := r.State().Snapshot().(map[string]any)
	assert.Equal(t, "", snap["name"])
	assert.Equal(t, "/nowhere", snap["url"])
	assert.Equal(t, map[string]any{}, snap["params"])

	var deleted []string
	for _, e := range events {
		if e.Kind == types.ChangeDelete {
			deleted = append(deleted, e.Path)
		}
	}
	assert.ElementsMatch(t, []string{".params.id", ".query.tab"}, deleted)
}

func TestRouter_Publish(t *testing.T) {
	r := newTestRouter(t)
	stores := registry.NewStoreRegistry()
	require.NoError(t, r.Publish(stores, "location"))
	assert.True(t, stores.Has("location"))
	assert.Error(t, r.Publish(stores, "again"))

	events := stores.Watch()
	defer stores.UnWatch(events)

	_, err := r.Navigate("/users/7")
	require.NoError(t, err)

	var paths []string
	for len(events) > 0 {
		e := <-events
		assert.Equal(t, "location", e.Store)
		paths = append(paths, e.Event.Path)
	}
	assert.Equal(t, []string{".name", ".url", ".path", ".params.id"}, paths)

	snap, err := stores.Snapshot("location")
	require.NoError(t, err)
	assert.Equal(t, "user", snap.(map[string]any)["name"])

	require.NoError(t, stores.Update("location", func(o *observable.Observable) error {
		o.Reset(map[string]any{"params": "gone"})
		return nil
	}))
	_, err = r.Navigate("/users/8")
	require.NoError(t, err)
	snap, err = stores.Snapshot("location")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "8"}, snap.(map[string]any)["params"])
	assert.Equal(t, map[string]any{}, snap.(map[string]any)["query"])

	other := newTestRouter(t)
	assert.True(t, errors.HasType(other.Publish(stores, "location"), errors.ErrorTypeValidation))
}

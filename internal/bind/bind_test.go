package bind

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/i18n"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/router"
)

func newTestBinder(t *testing.T) (*Binder, *registry.StoreRegistry) {
	t.Helper()

	stores := registry.NewStoreRegistry()
	require.NoError(t, stores.Create("app", map[string]any{
		"user":  map[string]any{"name": "Ada", "age": 36},
		"tags":  []any{"a", "b"},
		"price": 1234.5,
	}))

	tr, err := i18n.NewTranslator("en", nil)
	require.NoError(t, err)
	require.NoError(t, tr.AddMessages("en", map[string]any{"hello": "Hello, {name}!"}))
	require.NoError(t, tr.AddMessages("de", map[string]any{"hello": "Hallo, {name}!"}))

	r, err := router.New([]config.RouteConfig{{Name: "user", Pattern: `^/users/(?P<id>\d+)$`}}, nil)
	require.NoError(t, err)

	return NewBinder(stores, tr, r, nil), stores
}

func TestScan(t *testing.T) {
	fragment := `
<div id="profile">
  <span id="name" data-bond="app.user.name">placeholder</span>
  <input data-bond="app.user.age" data-bond-property="value">
  <h1 data-translate="hello" data-param-name="Ada" data-lang="de"></h1>
  <p data-localize="number:2" data-value="1234.5"></p>
  <a data-navigate="/users/1">profile</a>
  <b data-bond="app.tags" data-translate="both"></b>
</div>`

	directives, err := Scan(strings.NewReader(fragment))
	require.NoError(t, err)
	require.Len(t, directives, 7)

	assert.Equal(t, KindBond, directives[0].Kind)
	assert.Equal(t, "span", directives[0].Element)
	assert.Equal(t, "name", directives[0].ID)
	assert.Equal(t, "app.user.name", directives[0].Value)
	assert.Equal(t, "text", directives[0].Property)

	assert.Equal(t, "value", directives[1].Property)

	assert.Equal(t, KindTranslate, directives[2].Kind)
	assert.Equal(t, map[string]string{"name": "Ada"}, directives[2].Params)
	assert.Equal(t, "de", directives[2].Lang)

	assert.Equal(t, KindLocalize, directives[3].Kind)
	assert.Equal(t, "1234.5", directives[3].Input)

	assert.Equal(t, KindNavigate, directives[4].Kind)
	assert.Equal(t, "a", directives[4].Element)

	assert.Equal(t, KindBond, directives[5].Kind)
	assert.Equal(t, KindTranslate, directives[6].Kind)
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref     string
		store   string
		path    string
		wantErr bool
	}{
		{ref: "app", store: "app", path: ""},
		{ref: "app.user.name", store: "app", path: ".user.name"},
		{ref: " app.tags.0 ", store: "app", path: ".tags.0"},
		{ref: "", wantErr: true},
		{ref: ".user", wantErr: true},
		{ref: "app.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			store, path, err := ParseRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.store, store)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestBinder_BondAndRead(t *testing.T) {
	b, stores := newTestBinder(t)

	events := stores.Watch()
	defer stores.UnWatch(events)

	require.NoError(t, b.Bond("app.user.name", "Grace"))
	e := <-events
	assert.Equal(t, ".user.name", e.Event.Path)
	assert.Equal(t, "Ada", e.Event.Previous)

	v, err := b.Read("app.user")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Grace", "age": 36}, v)

	require.NoError(t, b.Bond("app", map[string]any{"only": true}))
	v, err = b.Read("app")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"only": true}, v)

	assert.Error(t, b.Bond("app", "not an object"))
	assert.True(t, errors.IsNotFound(b.Bond("missing.x", 1)))
	_, err = b.Read("app.nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestBinder_Localize(t *testing.T) {
	b, _ := newTestBinder(t)

	tests := []struct {
		format  string
		value   any
		lang    string
		want    string
		wantErr bool
	}{
		{format: "number:2", value: 1234.5, want: "1,234.50"},
		{format: "number:2", value: "1234.5", lang: "de", want: "1.234,50"},
		{format: "number", value: 42, want: "42"},
		{format: "percent", value: 0.5, want: "50%"},
		{format: "date", value: "2024-03-07", want: "03/07/2024"},
		{format: "date:iso", value: "2024-03-07T10:00:00Z", lang: "de", want: "2024-03-07"},
		{format: "date:time", value: time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC), lang: "de", want: "07.03.2024 09:30"},
		{format: "title", value: "hello world", want: "Hello World"},
		{format: "number:x", value: 1, wantErr: true},
		{format: "number", value: "abc", wantErr: true},
		{format: "date:long", value: "2024-03-07", wantErr: true},
		{format: "date", value: "yesterday", wantErr: true},
		{format: "currency:???", value: 1, wantErr: true},
		{format: "shout", value: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := b.Localize(tt.format, tt.value, tt.lang)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBinder_Render(t *testing.T) {
	b, _ := newTestBinder(t)

	fragment := `<span data-bond="app.user.name">old</span>` +
		`<input data-bond="app.user.age" data-bond-property="value" value="0">` +
		`<h1 data-translate="hello" data-param-name="Bo" data-lang="de"></h1>` +
		`<p data-localize="number:1" data-value="2.26"></p>` +
		`<a data-navigate="/users/7">me</a>`

	var out bytes.Buffer
	require.NoError(t, b.Render(strings.NewReader(fragment), &out))

	html := out.String()
	assert.Contains(t, html, `<span data-bond="app.user.name">Ada</span>`)
	assert.Contains(t, html, `value="36"`)
	assert.Contains(t, html, `>Hallo, Bo!</h1>`)
	assert.Contains(t, html, `>2.3</p>`)
	assert.Contains(t, html, `href="/users/7"`)
}

func TestBinder_RenderReportsFailures(t *testing.T) {
	b, _ := newTestBinder(t)

	fragment := `<span data-bond="app.missing">keep</span><a data-navigate="/nowhere">x</a><i data-bond="app.tags"></i>`

	var out bytes.Buffer
	err := b.Render(strings.NewReader(fragment), &out)
	require.Error(t, err)

	html := out.String()
	assert.Contains(t, html, `<span data-bond="app.missing">keep</span>`)
	assert.NotContains(t, html, "href")
	assert.Contains(t, html, `[&#34;a&#34;,&#34;b&#34;]`)
}

func TestBinder_MissingCollaborators(t *testing.T) {
	b := NewBinder(nil, nil, nil, nil)

	assert.Error(t, b.Bond("app.x", 1))
	_, err := b.Read("app.x")
	assert.Error(t, err)
	_, err = b.Translate("k", "", nil)
	assert.Error(t, err)
	_, err = b.Localize("number", 1, "")
	assert.Error(t, err)
	_, err = b.Navigate("/")
	assert.Error(t, err)

	got, err := b.Localize("number", 1000, "en")
	require.NoError(t, err)
	assert.Equal(t, "1,000", got)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "x", Stringify("x"))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
}

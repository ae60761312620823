package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/i18n"
	"github.com/conneroisu/reactive/internal/registry"
	"github.com/conneroisu/reactive/internal/router"
	ws "github.com/conneroisu/reactive/internal/websocket"
)

const allowedOrigin = "http://allowed.test"

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	stores := registry.NewStoreRegistry()
	require.NoError(t, stores.Create("app", map[string]any{
		"user": map[string]any{"name": "Ada"},
		"tags": []any{"a", "b"},
	}))
	require.NoError(t, stores.Create("list", []any{1, 2}))

	tr, err := i18n.NewTranslator("en", nil)
	require.NoError(t, err)
	require.NoError(t, tr.AddMessages("en", map[string]any{"hello": "Hello, {name}!"}))
	require.NoError(t, tr.AddMessages("de", map[string]any{"hello": "Hallo, {name}!"}))

	r, err := router.New([]config.RouteConfig{{Name: "user", Pattern: `^/users/(?P<id>\d+)$`}}, nil)
	require.NoError(t, err)

	cfg := &config.Config{Server: config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           config.DefaultPort,
		AllowedOrigins: []string{allowedOrigin},
	}}
	s, err := New(cfg, Deps{Stores: stores, Translator: tr, Router: r})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func do(t *testing.T, s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Deps{Stores: registry.NewStoreRegistry()})
	assert.Error(t, err)

	_, err = New(&config.Config{}, Deps{})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","stores":2,"clients":0}`, w.Body.String())
}

func TestHandleStores(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodGet, "/api/stores", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var infos []StoreInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	assert.Equal(t, []StoreInfo{
		{Name: "app", Kind: "object", Size: 2},
		{Name: "list", Kind: "array", Size: 2},
	}, infos)
}

func TestHandleStore(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodGet, "/api/stores/app", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":{"name":"Ada"},"tags":["a","b"]}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/stores/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), errors.ErrCodeStoreNotFound)
}

func TestHandleReplaceStore(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		want   string
	}{
		{"replace object", "/api/stores/app", `{"user":{"name":"Bo"}}`, http.StatusOK, `{"user":{"name":"Bo"}}`},
		{"replace array", "/api/stores/list", `[3]`, http.StatusOK, `[3]`},
		{"create store", "/api/stores/fresh", `{"a":1}`, http.StatusCreated, `{"a":1}`},
		{"root mismatch", "/api/stores/list", `{"a":1}`, http.StatusBadRequest, ""},
		{"scalar document", "/api/stores/app", `42`, http.StatusBadRequest, ""},
		{"invalid json", "/api/stores/app", `{`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPut, tt.target, "application/json", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandlePatchStore(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		status      int
		want        string
	}{
		{
			name:        "merge patch deletes nulls",
			target:      "/api/stores/app",
			contentType: contentTypeMergePatch,
			body:        `{"user":{"name":"Grace","age":36},"tags":null}`,
			status:      http.StatusOK,
			want:        `{"user":{"name":"Grace","age":36}}`,
		},
		{
			name:        "plain json is a merge patch",
			target:      "/api/stores/app",
			contentType: "application/json; charset=utf-8",
			body:        `{"theme":{"dark":true,"font":null}}`,
			status:      http.StatusOK,
			want:        `{"user":{"name":"Ada"},"tags":["a","b"],"theme":{"dark":true}}`,
		},
		{
			name:        "array merge by index",
			target:      "/api/stores/list",
			contentType: contentTypeMergePatch,
			body:        `[9]`,
			status:      http.StatusOK,
			want:        `[9,2]`,
		},
		{
			name:        "json patch",
			target:      "/api/stores/app",
			contentType: contentTypeJSONPatch,
			body:        `[{"op":"add","path":"/user/age","value":36},{"op":"remove","path":"/tags/0"}]`,
			status:      http.StatusOK,
			want:        `{"user":{"name":"Ada","age":36},"tags":["b"]}`,
		},
		{
			name:        "json patch test failure",
			target:      "/api/stores/app",
			contentType: contentTypeJSONPatch,
			body:        `[{"op":"test","path":"/user/name","value":"Bo"}]`,
			status:      http.StatusBadRequest,
		},
		{
			name:        "malformed json patch",
			target:      "/api/stores/app",
			contentType: contentTypeJSONPatch,
			body:        `{"op":"add"}`,
			status:      http.StatusBadRequest,
		},
		{
			name:        "object patch on array",
			target:      "/api/stores/list",
			contentType: contentTypeMergePatch,
			body:        `{"a":1}`,
			status:      http.StatusBadRequest,
		},
		{
			name:        "unsupported media type",
			target:      "/api/stores/app",
			contentType: "text/plain",
			body:        `{}`,
			status:      http.StatusBadRequest,
		},
		{
			name:        "missing store",
			target:      "/api/stores/missing",
			contentType: contentTypeMergePatch,
			body:        `{}`,
			status:      http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			w := do(t, s, http.MethodPatch, tt.target, tt.contentType, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandlePatchStore_ErrorDetails(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodPatch, "/api/stores/app", "text/plain", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrCodeValidationFailed, resp.Code)
	assert.Equal(t, "text/plain", resp.Details["content_type"])
	assert.Equal(t, true, resp.Details["recoverable"])
}

func TestHandlePatchStore_EmitsEvents(t *testing.T) {
	s := setupTestServer(t)

	events := s.stores.Watch()
	defer s.stores.UnWatch(events)

	w := do(t, s, http.MethodPatch, "/api/stores/app", contentTypeMergePatch, `{"user":{"name":"Grace"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case e := <-events:
		assert.Equal(t, "app", e.Store)
		assert.Equal(t, ".user.name", e.Event.Path)
		assert.Equal(t, "Ada", e.Event.Previous)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}
}

func TestHandleApply(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodPost, "/api/stores/app/set", "application/json", `{"path":".user.name","value":"Bo"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodPost, "/api/stores/app/set", "application/json", `{"op":"delete","path":".tags"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, "/api/stores/app", "", "")
	assert.JSONEq(t, `{"user":{"name":"Bo"}}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/api/stores/app/set", "application/json", `{"op":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/stores/missing/set", "application/json", `{"path":".a","value":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/api/stores/list/set", "application/json", `{"path":".99999999999","value":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/api/stores/list", "", "")
	assert.JSONEq(t, `[1,2]`, w.Body.String())
}

func TestHandleRender(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodPost, "/api/render", "text/html",
		`<span data-bond="app.user.name"></span><a data-navigate="/users/3">me</a>`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<span data-bond="app.user.name">Ada</span>`)
	assert.Contains(t, w.Body.String(), `href="/users/3"`)
	assert.Empty(t, w.Header().Get("X-Render-Errors"))

	w = do(t, s, http.MethodPost, "/api/render", "text/html", `<b data-bond="app.nope">keep</b>`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "keep")
	assert.NotEmpty(t, w.Header().Get("X-Render-Errors"))
}

func TestHandleNavigate(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodPost, "/api/navigate", "application/json", `{"url":"/users/42?tab=posts#top"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var m router.Match
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "user", m.Name)
	assert.Equal(t, "42", m.Params["id"])
	assert.Equal(t, "posts", m.Query["tab"])
	assert.Equal(t, "top", m.Hash)
	assert.Equal(t, "user", s.router.State().Get("name"))

	w = do(t, s, http.MethodPost, "/api/navigate", "application/json", `{"url":"/nowhere"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleTranslate(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		accept string
		want   TranslateResponse
	}{
		{"query language", "/api/translate/hello?lang=de&name=Bo", "",
			TranslateResponse{Key: "hello", Language: "de", Text: "Hallo, Bo!"}},
		{"accept language", "/api/translate/hello?name=Ada", "fr;q=0.9,de;q=0.8",
			TranslateResponse{Key: "hello", Language: "de", Text: "Hallo, Ada!"}},
		{"default language", "/api/translate/hello?name=Ada", "",
			TranslateResponse{Key: "hello", Language: "en", Text: "Hello, Ada!"}},
		{"missing key", "/api/translate/unknown", "",
			TranslateResponse{Key: "unknown", Language: "en", Text: "unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)

			var got TranslateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleTranslate_NoTranslator(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: config.DefaultPort}}
	s, err := New(cfg, Deps{Stores: registry.NewStoreRegistry()})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	w := do(t, s, http.MethodGet, "/api/translate/hello", "", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleIndex(t *testing.T) {
	s := setupTestServer(t)

	w := do(t, s, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "<!doctype html>"), body)
	assert.Contains(t, body, "<small>object, 2</small>")
	assert.Contains(t, body, "<small>array, 2</small>")
	assert.Contains(t, body, `<a href="/api/stores/app">app</a>`)
	assert.Contains(t, body, "<code>de</code>")

	w = do(t, s, http.MethodGet, "/unknown", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMiddleware(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantCORS   string
	}{
		{"preflight allowed", http.MethodOptions, allowedOrigin, http.StatusNoContent, allowedOrigin},
		{"preflight denied", http.MethodOptions, "http://evil.test", http.StatusNoContent, ""},
		{"get allowed", http.MethodGet, allowedOrigin, http.StatusOK, allowedOrigin},
		{"same origin", http.MethodGet, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/stores", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCORS, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"store missing", errors.ErrStoreNotFound("x"), http.StatusNotFound},
		{"record missing", errors.ErrRecordNotFound("x"), http.StatusNotFound},
		{"store exists", errors.ErrStoreExists("x"), http.StatusConflict},
		{"validation", errors.NewValidationError(errors.ErrCodeValidationFailed, "bad"), http.StatusBadRequest},
		{"route", errors.NewRouteError(errors.ErrCodeRouteInvalid, "bad"), http.StatusBadRequest},
		{"config", errors.NewConfigError(errors.ErrCodeConfigInvalid, "off"), http.StatusNotImplemented},
		{"network", errors.NewNetworkError(errors.ErrCodeRequestFailed, "down", nil), http.StatusBadGateway},
		{"internal", errors.NewInternalError(errors.ErrCodeInternalError, "boom", nil), http.StatusInternalServerError},
		{"plain", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWebSocketFeed(t *testing.T) {
	s := setupTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	for _, store := range []string{"app", "list"} {
		var msg ws.Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		assert.Equal(t, ws.MessageSnapshot, msg.Type)
		assert.Equal(t, store, msg.Store)
	}

	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/api/stores/app", strings.NewReader(`{"user":{"name":"Grace"}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentTypeMergePatch)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg ws.Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, ws.MessageChange, msg.Type)
	assert.Equal(t, "app", msg.Store)
	require.NotNil(t, msg.Event)
	assert.Equal(t, ".user.name", msg.Event.Path)
}

func TestShutdown(t *testing.T) {
	s := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, s.Hub().IsShutdown())
	assert.Error(t, s.Start(ctx))
}

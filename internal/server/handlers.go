package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"sort"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/websocket"
)

const (
	contentTypeJSON       = "application/json"
	contentTypeMergePatch = "application/merge-patch+json"
	contentTypeJSONPatch  = "application/json-patch+json"
)

// StoreInfo describes a store in the store listing.
type StoreInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Size int    `json:"size"`
}

// NavigateRequest is the body of POST /api/navigate.
type NavigateRequest struct {
	URL string `json:"url"`
}

// TranslateResponse is the body returned by GET /api/translate/{key}.
type TranslateResponse struct {
	Key      string `json:"key"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"stores":  s.stores.Count(),
		"clients": s.hub.ConnectedClients(),
	})
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.storeInfos())
}

func (s *Server) storeInfos() []StoreInfo {
	infos := make([]StoreInfo, 0, s.stores.Count())
	for _, name := range s.stores.Names() {
		_ = s.stores.View(name, func(o *observable.Observable) error {
			info := StoreInfo{Name: name, Kind: "object", Size: len(o.Keys())}
			if arr, ok := o.Array(); ok {
				info.Kind = "array"
				info.Size = arr.Len()
			}
			infos = append(infos, info)
			return nil
		})
	}
	return infos
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	raw, err := s.storeJSON(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRaw(w, http.StatusOK, raw)
}

// handleReplaceStore replaces the whole store document, creating the store
// when it does not exist yet.
func (s *Server) handleReplaceStore(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var doc any
	if err := s.decodeBody(w, r, &doc); err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !s.stores.Has(name) {
		if err := s.stores.Create(name, doc); err != nil {
			s.writeError(w, r, err)
			return
		}
		status = http.StatusCreated
	} else if err := s.stores.Update(name, func(o *observable.Observable) error {
		return replace(o, doc)
	}); err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, err := s.storeJSON(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRaw(w, status, raw)
}

// handlePatchStore applies an RFC 6902 JSON patch or an RFC 7386 merge patch.
// A plain application/json body is treated as a merge patch.
func (s *Server) handlePatchStore(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch mediaType {
	case contentTypeJSONPatch:
		err = s.applyJSONPatch(name, body)
	case contentTypeMergePatch, contentTypeJSON, "":
		err = s.applyMergePatch(name, body)
	default:
		err = errors.NewValidationError(errors.ErrCodeValidationFailed, "unsupported patch type "+mediaType).
			WithContext("content_type", mediaType)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, err := s.storeJSON(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRaw(w, http.StatusOK, raw)
}

func (s *Server) applyJSONPatch(name string, body []byte) error {
	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		return errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid JSON patch")
	}
	return s.stores.Update(name, func(o *observable.Observable) error {
		current, err := o.MarshalJSON()
		if err != nil {
			return err
		}
		patched, err := patch.Apply(current)
		if err != nil {
			return errors.WrapValidation(err, errors.ErrCodeValidationFailed, "applying JSON patch")
		}
		var doc any
		if err := json.Unmarshal(patched, &doc); err != nil {
			return errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "patched document")
		}
		return replace(o, doc)
	})
}

func (s *Server) applyMergePatch(name string, body []byte) error {
	var patch any
	if err := json.Unmarshal(body, &patch); err != nil {
		return errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid merge patch")
	}
	return s.stores.Update(name, func(o *observable.Observable) error {
		switch p := patch.(type) {
		case map[string]any:
			obj, ok := o.Object()
			if !ok {
				return errors.NewValidationError(errors.ErrCodeValidationFailed, "object patch on an array store").WithStore(name)
			}
			mergePatch(obj, p)
			return nil
		case []any:
			arr, ok := o.Array()
			if !ok {
				return errors.NewValidationError(errors.ErrCodeValidationFailed, "array patch on an object store").WithStore(name)
			}
			arr.Merge(p)
			return nil
		}
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "merge patch must be an object or array").WithStore(name)
	})
}

// handleApply applies one set, delete or merge operation, the same message a
// WebSocket client sends.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var msg websocket.ClientMessage
	if err := s.decodeBody(w, r, &msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg.Store = r.PathValue("name")
	if msg.Op == "" {
		msg.Op = websocket.OpSet
	}
	if err := websocket.Apply(s.stores, msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRender fills the directives of the posted HTML fragment. Directives
// that cannot be resolved are left as they are and reported in the
// X-Render-Errors header.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var out bytes.Buffer
	if err := s.binder.Render(bytes.NewReader(body), &out); err != nil {
		if out.Len() == 0 {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("X-Render-Errors", logging.SanitizeForLog(err.Error()))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	match, err := s.binder.Navigate(req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, match)
}

// handleTranslate resolves a message key. The language comes from the lang
// query parameter or the Accept-Language header; the remaining query
// parameters are interpolated.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		s.writeError(w, r, errors.NewConfigError(errors.ErrCodeConfigInvalid, "translations are not configured"))
		return
	}

	key := r.PathValue("key")
	query := r.URL.Query()
	lang := query.Get("lang")
	if lang == "" {
		lang = s.translator.Negotiate(r.Header.Get("Accept-Language"))
	}
	query.Del("lang")

	params := make(map[string]any, len(query))
	for name := range query {
		params[name] = query.Get(name)
	}

	text, err := s.binder.Translate(key, lang, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TranslateResponse{Key: key, Language: lang, Text: text})
}

func (s *Server) storeJSON(name string) ([]byte, error) {
	var raw []byte
	err := s.stores.View(name, func(o *observable.Observable) error {
		var err error
		raw, err = o.MarshalJSON()
		return err
	})
	return raw, err
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "reading request body")
	}
	return body, nil
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid JSON body")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeRaw(w, status, data)
}

func (s *Server) writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.errs.Handle(r.Context(), err)
	} else {
		s.logger.Debug(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "error", err.Error())
	}

	resp := errorResponse{Error: err.Error()}
	if re, ok := errors.AsReactive(err); ok {
		resp.Code = re.Code
		if status < http.StatusInternalServerError {
			resp.Details = errors.GetErrorContext(re)
		}
	}
	data, _ := json.Marshal(resp)
	s.writeRaw(w, status, data)
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	re, ok := errors.AsReactive(err)
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case !ok:
		return http.StatusInternalServerError
	case re.Code == errors.ErrCodeStoreExists:
		return http.StatusConflict
	}
	switch re.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeRoute:
		return http.StatusBadRequest
	case errors.ErrorTypeConfig:
		return http.StatusNotImplemented
	case errors.ErrorTypeNetwork, errors.ErrorTypeRepository:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// replace swaps the store document for doc: objects through Reset, arrays by
// splicing in the new items.
func replace(o *observable.Observable, doc any) error {
	switch d := doc.(type) {
	case map[string]any:
		if _, ok := o.Object(); !ok {
			return errors.NewValidationError(errors.ErrCodeValidationFailed, "cannot replace an array store with an object")
		}
		o.Reset(d)
		return nil
	case []any:
		arr, ok := o.Array()
		if !ok {
			return errors.NewValidationError(errors.ErrCodeValidationFailed, "cannot replace an object store with an array")
		}
		arr.Splice(0, arr.Len(), d...)
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeValidationFailed, "store document must be an object or array")
}

// mergePatch merges patch into obj. Null members delete the key, nested
// objects merge recursively and everything else goes through the engine's
// Merge.
func mergePatch(obj *observable.Object, patch map[string]any) {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rest := make(map[string]any)
	for _, k := range keys {
		switch v := patch[k].(type) {
		case nil:
			obj.Delete(k)
		case map[string]any:
			if child, ok := obj.Get(k).(*observable.Object); ok {
				mergePatch(child, v)
				continue
			}
			rest[k] = stripNulls(v)
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		obj.Merge(rest)
	}
}

func stripNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
		case map[string]any:
			out[k] = stripNulls(t)
		default:
			out[k] = v
		}
	}
	return out
}

package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/registry"
)

// StoreSync loads files into registry stores and reloads them when their
// files change.
type StoreSync struct {
	stores *registry.StoreRegistry
	logger logging.Logger

	mutex sync.RWMutex
	files map[string]string // cleaned file path -> store name
}

// NewStoreSync creates a StoreSync writing into stores.
func NewStoreSync(stores *registry.StoreRegistry, logger logging.Logger) *StoreSync {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StoreSync{
		stores: stores,
		logger: logger.WithComponent("store-sync"),
		files:  make(map[string]string),
	}
}

// Track binds file to store and performs the initial load. The store is
// created when it is not registered yet.
func (s *StoreSync) Track(store, file string) error {
	clean, err := validatePath(file)
	if err != nil {
		return err
	}

	if s.stores.Has(store) {
		err = s.Reload(store, clean)
	} else {
		var data any
		if data, err = LoadFile(clean); err == nil {
			err = s.stores.Create(store, data)
		}
	}
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.files[clean] = store
	s.mutex.Unlock()

	s.logger.Debug(context.Background(), "Tracking store file", "store", store, "file", clean)
	return nil
}

// Files returns the tracked files in sorted order.
func (s *StoreSync) Files() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	files := make([]string, 0, len(s.files))
	for f := range s.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Directories returns the parent directories of the tracked files. Watching
// directories rather than files survives editors that replace files on save.
func (s *StoreSync) Directories() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range s.Files() {
		dir := filepath.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Filter accepts only tracked files; use it as a FileFilter.
func (s *StoreSync) Filter(path string) bool {
	_, ok := s.storeFor(path)
	return ok
}

func (s *StoreSync) storeFor(path string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	store, ok := s.files[filepath.Clean(path)]
	return store, ok
}

// HandleChanges reloads the stores whose files were created or modified. It
// has the ChangeHandler signature.
func (s *StoreSync) HandleChanges(events []ChangeEvent) error {
	var errs []error
	for _, event := range events {
		store, ok := s.storeFor(event.Path)
		if !ok {
			continue
		}
		switch event.Type {
		case EventTypeCreated, EventTypeModified:
			if err := s.Reload(store, event.Path); err != nil {
				errs = append(errs, err)
			}
		default:
			s.logger.Info(context.Background(), "Store file removed, keeping last state",
				"store", store, "file", event.Path, "event", event.Type.String())
		}
	}
	return errors.CombineErrors(errs...)
}

// Reload decodes file and merges it into store. Top-level keys missing from
// the file are deleted so the store mirrors the document.
func (s *StoreSync) Reload(store, file string) error {
	perf := logging.StartOperation(s.logger, "reload_store")

	data, err := LoadFile(file)
	if err != nil {
		perf.EndWithError(context.Background(), err, "store", store)
		return errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeDecodeFailed, "reloading store from "+file).
			WithStore(store)
	}

	err = s.stores.Update(store, func(o *observable.Observable) error {
		return Apply(o, data)
	})
	if err != nil {
		perf.EndWithError(context.Background(), err, "store", store)
		return err
	}

	perf.End(context.Background(), "store", store, "file", file)
	return nil
}

// Apply merges a decoded document into o and removes the keys of o that
// document no longer has. For array roots the array is truncated to the
// document's length.
func Apply(o *observable.Observable, document any) error {
	switch doc := document.(type) {
	case map[string]any:
		if _, ok := o.Object(); !ok {
			return errors.NewValidationError(errors.ErrCodeDecodeFailed, "document is an object but the store root is an array")
		}
		o.Merge(doc)
		for _, key := range o.Keys() {
			if _, keep := doc[key]; !keep {
				o.Delete(key)
			}
		}
	case []any:
		arr, ok := o.Array()
		if !ok {
			return errors.NewValidationError(errors.ErrCodeDecodeFailed, "document is an array but the store root is an object")
		}
		arr.Merge(doc)
		if extra := arr.Len() - len(doc); extra > 0 {
			arr.Splice(len(doc), extra)
		}
	default:
		return errors.NewValidationError(errors.ErrCodeDecodeFailed, "document root must be an object or array")
	}
	return nil
}

// LoadFile reads a JSON or YAML document. The format follows the file
// extension; unknown extensions are tried as JSON, then YAML.
func LoadFile(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading "+path)
	}
	return Decode(raw, filepath.Ext(path))
}

// Decode parses a JSON or YAML document into plain maps and slices.
func Decode(raw []byte, ext string) (any, error) {
	var doc any
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid JSON document")
		}
		return doc, nil
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.WrapValidation(err, errors.ErrCodeDecodeFailed, "invalid YAML document")
		}
		return normalize(doc), nil
	}

	if err := json.Unmarshal(raw, &doc); err == nil {
		return doc, nil
	}
	return Decode(raw, ".yaml")
}

// normalize converts YAML maps with non-string keys into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	}
	return v
}

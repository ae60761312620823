// Package registry keeps the named observable stores of a process and fans
// their change events out to watchers.
//
// Observables are single-owner and unsynchronized, so every access from
// concurrent code goes through the registry: Update runs a mutation under the
// write lock and View a read under the read lock. Change events produced by
// an Update are delivered to every watcher channel before Update returns.
package registry

import (
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/observable"
	"github.com/conneroisu/reactive/internal/types"
)

// WatcherBuffer is the capacity of channels returned by Watch. Events are
// dropped for a watcher whose buffer is full.
const WatcherBuffer = 100

// StoreRegistry manages all named stores
type StoreRegistry struct {
	stores   map[string]*store
	mutex    sync.RWMutex
	watchers []chan types.StoreEvent
}

type store struct {
	obs      *observable.Observable
	listener *observable.FuncListener
}

// NewStoreRegistry creates a new store registry
func NewStoreRegistry() *StoreRegistry {
	return &StoreRegistry{
		stores:   make(map[string]*store),
		watchers: make([]chan types.StoreEvent, 0),
	}
}

// Register adds obs under name. The registry takes ownership: after Register
// the observable must only be touched through Update and View.
func (r *StoreRegistry) Register(name string, obs *observable.Observable) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.stores[name]; exists {
		return errors.ErrStoreExists(name)
	}

	s := &store{obs: obs}
	// Mutations only happen inside Update, which already holds the lock.
	s.listener = observable.NewListener(func(e types.ChangeEvent) {
		r.notify(types.StoreEvent{Store: name, Event: detach(e), Timestamp: time.Now()})
	})
	obs.AddEventListener(types.EventChange, s.listener)
	r.stores[name] = s
	return nil
}

// Create wraps initial in a new observable and registers it.
func (r *StoreRegistry) Create(name string, initial any) error {
	return r.Register(name, observable.New(initial))
}

// Remove unregisters a store. Its observable stops reporting to watchers.
func (r *StoreRegistry) Remove(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, exists := r.stores[name]
	if !exists {
		return errors.ErrStoreNotFound(name)
	}
	s.obs.RemoveEventListener(types.EventChange, s.listener)
	delete(r.stores, name)
	return nil
}

// Update runs fn with exclusive access to the named store.
func (r *StoreRegistry) Update(name string, fn func(*observable.Observable) error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, exists := r.stores[name]
	if !exists {
		return errors.ErrStoreNotFound(name)
	}
	if err := fn(s.obs); err != nil {
		var re *errors.ReactiveError
		if stderrors.As(err, &re) {
			return re.WithStore(name)
		}
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeValidationFailed, "update failed").
			WithStore(name)
	}
	return nil
}

// View runs fn with shared access to the named store. fn must not mutate.
func (r *StoreRegistry) View(name string, fn func(*observable.Observable) error) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, exists := r.stores[name]
	if !exists {
		return errors.ErrStoreNotFound(name)
	}
	return fn(s.obs)
}

// Snapshot returns a deep plain copy of the named store.
func (r *StoreRegistry) Snapshot(name string) (any, error) {
	var snap any
	err := r.View(name, func(o *observable.Observable) error {
		snap = o.Snapshot()
		return nil
	})
	return snap, err
}

// Has reports whether name is registered.
func (r *StoreRegistry) Has(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.stores[name]
	return exists
}

// Names returns the registered store names in sorted order.
func (r *StoreRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered stores
func (r *StoreRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.stores)
}

// Watch returns a channel that receives the change events of every store.
func (r *StoreRegistry) Watch() <-chan types.StoreEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan types.StoreEvent, WatcherBuffer)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *StoreRegistry) UnWatch(ch <-chan types.StoreEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify must be called with the write lock held.
func (r *StoreRegistry) notify(event types.StoreEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// detach replaces handles in e with snapshots so the event can leave the
// lock and be read by other goroutines.
func detach(e types.ChangeEvent) types.ChangeEvent {
	e.Previous = plain(e.Previous)
	e.Elements = plain(e.Elements)
	return e
}

func plain(v any) any {
	switch x := v.(type) {
	case observable.Node:
		return x.Snapshot()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

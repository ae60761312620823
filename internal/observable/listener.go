package observable

import (
	"reflect"

	"github.com/conneroisu/reactive/internal/types"
)

// Listener receives dispatched events.
type Listener interface {
	HandleEvent(event types.ChangeEvent)
}

// FuncListener adapts a function to Listener. Use NewListener so the
// resulting *FuncListener can be compared and later removed.
type FuncListener struct {
	fn func(types.ChangeEvent)
}

// NewListener wraps fn in a removable Listener.
func NewListener(fn func(types.ChangeEvent)) *FuncListener {
	return &FuncListener{fn: fn}
}

// HandleEvent calls the wrapped function.
func (f *FuncListener) HandleEvent(event types.ChangeEvent) {
	if f.fn != nil {
		f.fn(event)
	}
}

type listenerEntry struct {
	listener Listener
	removed  bool
}

// AddEventListener registers l for eventType. Registering the same listener
// for the same type twice has no effect. Listeners whose dynamic type is not
// comparable are never considered duplicates.
func (o *Observable) AddEventListener(eventType string, l Listener) {
	if l == nil {
		return
	}
	for _, e := range o.listeners[eventType] {
		if sameListener(e.listener, l) {
			return
		}
	}
	o.listeners[eventType] = append(o.listeners[eventType], &listenerEntry{listener: l})
}

// RemoveEventListener unregisters l. Removing a listener that is not
// registered is a no-op. A listener removed while an event is being
// dispatched is not called for the rest of that dispatch.
func (o *Observable) RemoveEventListener(eventType string, l Listener) {
	entries := o.listeners[eventType]
	for i, e := range entries {
		if sameListener(e.listener, l) {
			e.removed = true
			next := make([]*listenerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			if len(next) == 0 {
				delete(o.listeners, eventType)
			} else {
				o.listeners[eventType] = next
			}
			return
		}
	}
}

// DispatchEvent synchronously calls every listener registered for eventType
// at the time of the call, in registration order.
func (o *Observable) DispatchEvent(eventType string, event types.ChangeEvent) {
	entries := o.listeners[eventType]
	if len(entries) == 0 {
		return
	}
	snapshot := make([]*listenerEntry, len(entries))
	copy(snapshot, entries)
	for _, e := range snapshot {
		if !e.removed {
			e.listener.HandleEvent(event)
		}
	}
}

// ListenerCount returns the number of listeners registered for eventType.
func (o *Observable) ListenerCount(eventType string) int {
	return len(o.listeners[eventType])
}

func sameListener(a, b Listener) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

package types

import "time"

// ChangeKind identifies the kind of mutation a ChangeEvent reports.
type ChangeKind string

const (
	ChangeSet    ChangeKind = "SET"
	ChangeDelete ChangeKind = "DELETE"
	ChangeAdd    ChangeKind = "ADD"
	ChangeRemove ChangeKind = "REMOVE"
	ChangeSort   ChangeKind = "SORT"
)

// EventChange is the event type observables dispatch ChangeEvents under.
const EventChange = "change"

// ChangeEvent is the notification dispatched for every tracked mutation of an
// observable.
type ChangeEvent struct {
	// Path locates the mutated field relative to the observable root, e.g.
	// ".object.name". Array mutators report the array's own path.
	Path string `json:"path"`
	// Kind is the kind of mutation.
	Kind ChangeKind `json:"kind"`
	// Previous holds the value before a SET or DELETE. Nil for a SET of a
	// new key and for ADD, REMOVE and SORT.
	Previous any `json:"previous,omitempty"`
	// Elements holds the added or removed elements for ADD and REMOVE.
	// Pop and Shift report the removed value itself rather than a slice.
	Elements any `json:"elements,omitempty"`
}

// StoreEvent is a ChangeEvent raised by a named store, used for real-time
// notifications to watchers like the change feed and the CLI.
type StoreEvent struct {
	// Store is the name of the store that changed
	Store string `json:"store"`
	// Event is the change itself
	Event ChangeEvent `json:"event"`
	// Timestamp records when the event occurred for ordering and filtering
	Timestamp time.Time `json:"timestamp"`
}

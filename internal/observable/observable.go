package observable

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/types"
)

// Observable is a data container instrumented to emit a types.ChangeEvent for
// every tracked mutation.
//
// All wrapped objects and arrays live in one arena owned by the Observable.
// Nodes refer to each other by arena index, so shared and cyclic references
// need no special handling and the whole arena is released with the
// Observable.
//
// An Observable is not safe for concurrent use. Listeners run synchronously
// inside the mutating call and may mutate the same or another observable; a
// listener that triggers unbounded mutation chains will overflow the stack.
type Observable struct {
	nodes     []*node
	listeners map[string][]*listenerEntry
}

// Node is implemented by the *Object and *Array handles of an Observable.
type Node interface {
	// Path locates the node relative to the observable root.
	Path() string
	// Owner returns the Observable that dispatches the node's events.
	Owner() *Observable
	// Snapshot returns a deep plain copy of the node.
	Snapshot() any

	json.Marshaler
	nodeID() nodeID
}

// New wraps initial in an Observable. A map[string]any root yields an object
// observable and a []any root an array observable. Handles from another
// Observable are deep-copied. Any other value is converted through its JSON
// form; values that do not encode to an object or array, and nil, produce an
// empty object.
func New(initial any) *Observable {
	o := &Observable{listeners: make(map[string][]*listenerEntry)}

	switch v := initial.(type) {
	case map[string]any, []any:
		if eligible(v) {
			o.wrap(v, "", make(processed))
		}
	case *Object, *Array:
		if eligible(v) {
			o.wrap(v.(Node).Snapshot(), "", make(processed))
		}
	case nil:
	default:
		if data, err := json.Marshal(v); err == nil {
			var decoded any
			if json.Unmarshal(data, &decoded) == nil && eligible(decoded) {
				o.wrap(decoded, "", make(processed))
			}
		}
	}

	if len(o.nodes) == 0 {
		o.newNode(kindObject, "")
	}
	return o
}

// FromJSON decodes data and wraps the result.
func FromJSON(data []byte) (*Observable, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeDecodeFailed, "invalid JSON document").
			WithContext("error", err.Error())
	}
	if !eligible(decoded) {
		return nil, errors.NewValidationError(errors.ErrCodeDecodeFailed, "document root must be an object or array")
	}
	return New(decoded), nil
}

// Root returns the handle of the root node.
func (o *Observable) Root() Node {
	return o.nodes[0].handle
}

// Object returns the root as an object, if it is one.
func (o *Observable) Object() (*Object, bool) {
	obj, ok := o.nodes[0].handle.(*Object)
	return obj, ok
}

// Array returns the root as an array, if it is one.
func (o *Observable) Array() (*Array, bool) {
	arr, ok := o.nodes[0].handle.(*Array)
	return arr, ok
}

// Get reads a root property. For array roots key is an index.
func (o *Observable) Get(key string) any {
	v, _ := o.get(0, key)
	return v
}

// Has reports whether the root has key.
func (o *Observable) Has(key string) bool {
	_, ok := o.get(0, key)
	return ok
}

// Set assigns a root property, see Object.Set.
func (o *Observable) Set(key string, value any) {
	o.set(0, key, value)
}

// Delete removes a root property, see Object.Delete.
func (o *Observable) Delete(key string) {
	o.del(0, key)
}

// Keys returns the enumerable keys of the root.
func (o *Observable) Keys() []string {
	return o.keys(0)
}

// Assign shallow-merges properties into the root.
func (o *Observable) Assign(properties map[string]any) {
	o.assign(0, properties)
}

// Reset replaces the root's properties with properties: keys missing from
// properties are deleted, then the rest are assigned.
func (o *Observable) Reset(properties map[string]any) {
	o.reset(0, properties)
}

// Merge deep-merges source into the root.
func (o *Observable) Merge(source any) {
	o.merge(0, source, make(map[mergeVisit]bool))
}

// ToJSON returns a shallow plain copy of the root: map[string]any for object
// roots, []any for array roots. Nested nodes are kept as handles.
func (o *Observable) ToJSON() any {
	switch h := o.Root().(type) {
	case *Object:
		return h.ToJSON()
	case *Array:
		return h.ToJSON()
	}
	return nil
}

// Snapshot returns a deep plain copy of the whole tree.
func (o *Observable) Snapshot() any {
	return o.Root().Snapshot()
}

// MarshalJSON encodes the whole tree. Cyclic trees fail with ERR_CYCLIC_VALUE.
func (o *Observable) MarshalJSON() ([]byte, error) {
	return o.Root().MarshalJSON()
}

// GetPath resolves a path such as ".user.name" or "user.name" from the root.
// The empty path resolves to the root handle.
func (o *Observable) GetPath(path string) (any, error) {
	keys, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var current any = o.Root()
	for _, key := range keys {
		n, ok := current.(Node)
		if !ok {
			return nil, errors.ErrPathNotFound(path)
		}
		v, exists := o.get(n.nodeID(), key)
		if !exists {
			return nil, errors.ErrPathNotFound(path)
		}
		current = v
	}
	return current, nil
}

// SetPath assigns value at path. Every segment but the last must resolve to
// an object or array.
func (o *Observable) SetPath(path string, value any) error {
	parent, key, err := o.resolveParent(path)
	if err != nil {
		return err
	}
	if n := o.nodes[parent]; n.kind == kindArray {
		if i, ok := parseIndex(key); !ok || !n.reachable(i) {
			return errors.ErrInvalidPath(path)
		}
	}
	o.set(parent, key, value)
	return nil
}

// DeletePath removes the property at path.
func (o *Observable) DeletePath(path string) error {
	parent, key, err := o.resolveParent(path)
	if err != nil {
		return err
	}
	o.del(parent, key)
	return nil
}

func (o *Observable) resolveParent(path string) (nodeID, string, error) {
	keys, err := splitPath(path)
	if err != nil {
		return 0, "", err
	}
	if len(keys) == 0 {
		return 0, "", errors.ErrInvalidPath(path)
	}
	id := nodeID(0)
	for _, key := range keys[:len(keys)-1] {
		v, exists := o.get(id, key)
		if !exists {
			return 0, "", errors.ErrPathNotFound(path)
		}
		n, ok := v.(Node)
		if !ok {
			return 0, "", errors.ErrPathNotFound(path)
		}
		id = n.nodeID()
	}
	return id, keys[len(keys)-1], nil
}

func splitPath(path string) ([]string, error) {
	trimmed := strings.TrimPrefix(path, Separator)
	if trimmed == "" {
		return nil, nil
	}
	keys := strings.Split(trimmed, Separator)
	for _, k := range keys {
		if k == "" {
			return nil, errors.ErrInvalidPath(path)
		}
	}
	return keys, nil
}

// get reads key from node id. Object reads fall back to hidden and accessor
// properties.
func (o *Observable) get(id nodeID, key string) (any, bool) {
	n := o.nodes[id]
	switch n.kind {
	case kindArray:
		i, ok := parseIndex(key)
		if !ok || i >= len(n.items) {
			return nil, false
		}
		if _, isHole := n.items[i].(holeT); isHole {
			return nil, false
		}
		return o.external(n.items[i]), true
	default:
		if v, ok := n.fields[key]; ok {
			return o.external(v), true
		}
		if v, ok := n.hidden[key]; ok {
			return v, true
		}
		if acc, ok := n.accessors[key]; ok {
			if acc.Get == nil {
				return nil, true
			}
			return acc.Get(n.handle.(*Object)), true
		}
		return nil, false
	}
}

// set is the set trap shared by every handle.
func (o *Observable) set(id nodeID, key string, value any) {
	n := o.nodes[id]
	if n.kind == kindArray {
		i, ok := parseIndex(key)
		if !ok {
			return
		}
		o.setIndex(n, i, value)
		return
	}

	if acc, ok := n.accessors[key]; ok {
		if acc.Set != nil {
			acc.Set(n.handle.(*Object), value)
		}
		return
	}
	if _, ok := n.hidden[key]; ok {
		n.hidden[key] = value
		return
	}

	current, exists := n.fields[key]
	var previous any
	if exists {
		previous = o.external(current)
		if IsEqual(previous, value) {
			return
		}
	}

	path := n.path + Separator + key
	n.setField(key, o.wrap(value, path, make(processed)))
	o.emit(types.ChangeEvent{Path: path, Kind: types.ChangeSet, Previous: previous})
}

func (o *Observable) setIndex(n *node, i int, value any) {
	if !n.reachable(i) {
		return
	}
	var previous any
	if i < len(n.items) {
		if _, isHole := n.items[i].(holeT); !isHole {
			previous = o.external(n.items[i])
			if IsEqual(previous, value) {
				return
			}
		}
	}

	path := n.path + Separator + strconv.Itoa(i)
	stored := o.wrap(value, path, make(processed))
	for len(n.items) <= i {
		n.items = append(n.items, hole)
	}
	n.items[i] = stored
	o.emit(types.ChangeEvent{Path: path, Kind: types.ChangeSet, Previous: previous})
}

// del is the delete trap shared by every handle.
func (o *Observable) del(id nodeID, key string) {
	n := o.nodes[id]
	if n.kind == kindArray {
		i, ok := parseIndex(key)
		if !ok || i >= len(n.items) {
			return
		}
		if _, isHole := n.items[i].(holeT); isHole {
			return
		}
		previous := o.external(n.items[i])
		n.items[i] = hole
		o.emit(types.ChangeEvent{
			Path:     n.path + Separator + key,
			Kind:     types.ChangeDelete,
			Previous: previous,
		})
		return
	}

	if _, ok := n.accessors[key]; ok {
		delete(n.accessors, key)
		return
	}
	if _, ok := n.hidden[key]; ok {
		delete(n.hidden, key)
		return
	}
	current, exists := n.fields[key]
	if !exists {
		return
	}
	previous := o.external(current)
	n.deleteField(key)
	o.emit(types.ChangeEvent{
		Path:     n.path + Separator + key,
		Kind:     types.ChangeDelete,
		Previous: previous,
	})
}

func (o *Observable) keys(id nodeID) []string {
	n := o.nodes[id]
	if n.kind == kindArray {
		keys := make([]string, 0, len(n.items))
		for i, item := range n.items {
			if _, isHole := item.(holeT); !isHole {
				keys = append(keys, strconv.Itoa(i))
			}
		}
		return keys
	}
	keys := make([]string, len(n.keys))
	copy(keys, n.keys)
	return keys
}

func (o *Observable) emit(event types.ChangeEvent) {
	o.DispatchEvent(types.EventChange, event)
}

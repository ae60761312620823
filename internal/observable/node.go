package observable

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Separator joins the keys of a path, e.g. ".object.name".
const Separator = "."

// MaxArrayGap is how many holes a single indexed write may add past the end
// of an array. Writes further out are dropped, and SetPath rejects them.
const MaxArrayGap = 1024

// nodeID indexes a node in its Observable's arena.
type nodeID int

type nodeKind uint8

const (
	kindObject nodeKind = iota
	kindArray
)

// ref is how a node is stored inside another node's slots.
type ref nodeID

// holeT marks an array slot emptied by Delete.
type holeT struct{}

var hole = holeT{}

// node is one arena slot: a wrapped object or array plus its bookkeeping.
type node struct {
	id   nodeID
	kind nodeKind
	path string

	// object slots, enumerable keys in insertion order
	keys      []string
	fields    map[string]any
	hidden    map[string]any
	accessors map[string]Accessor
	symbols   map[*Symbol]any

	// array slots
	items []any

	// handle is the single *Object or *Array wrapper for this node.
	handle Node
}

func (n *node) setField(key string, value any) {
	if _, exists := n.fields[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = value
}

func (n *node) deleteField(key string) {
	if _, exists := n.fields[key]; !exists {
		return
	}
	delete(n.fields, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i:i], n.keys[i+1:]...)
			break
		}
	}
}

// children calls fn for every node reference held in an enumerable slot.
func (n *node) children(fn func(key string, id nodeID)) {
	switch n.kind {
	case kindObject:
		for _, k := range n.keys {
			if r, ok := n.fields[k].(ref); ok {
				fn(k, nodeID(r))
			}
		}
	case kindArray:
		for i, item := range n.items {
			if r, ok := item.(ref); ok {
				fn(strconv.Itoa(i), nodeID(r))
			}
		}
	}
}

func (o *Observable) newNode(kind nodeKind, path string) *node {
	n := &node{
		id:   nodeID(len(o.nodes)),
		kind: kind,
		path: path,
	}
	switch kind {
	case kindObject:
		n.fields = make(map[string]any)
		n.handle = &Object{obs: o, id: n.id}
	case kindArray:
		n.items = make([]any, 0)
		n.handle = &Array{obs: o, id: n.id}
	}
	o.nodes = append(o.nodes, n)
	return n
}

func (o *Observable) node(id nodeID) *node {
	return o.nodes[id]
}

// external converts a stored slot value to what callers see.
func (o *Observable) external(v any) any {
	switch s := v.(type) {
	case ref:
		return o.nodes[s].handle
	case holeT:
		return nil
	}
	return v
}

// containerKey identifies a raw map or slice by its backing storage.
type containerKey struct {
	ptr   uintptr
	len   int
	slice bool
}

// processed tracks raw containers already absorbed during one wrap pass.
type processed map[containerKey]nodeID

// wrap returns the stored form of value placed at path. Eligible containers
// (map[string]any, []any and handles) become node references; everything
// else is stored as-is.
func (o *Observable) wrap(value any, path string, seen processed) any {
	switch v := value.(type) {
	case *Object:
		if v == nil {
			return nil
		}
		if v.obs == o {
			o.relocate(v.id, path, make(map[nodeID]bool))
			return ref(v.id)
		}
		return o.wrap(v.Snapshot(), path, seen)
	case *Array:
		if v == nil {
			return nil
		}
		if v.obs == o {
			o.relocate(v.id, path, make(map[nodeID]bool))
			return ref(v.id)
		}
		return o.wrap(v.Snapshot(), path, seen)
	case map[string]any:
		if v == nil {
			return nil
		}
		key := containerKey{ptr: reflect.ValueOf(v).Pointer()}
		if id, ok := seen[key]; ok {
			return ref(id)
		}
		n := o.newNode(kindObject, path)
		seen[key] = n.id
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.setField(k, o.wrap(v[k], path+Separator+k, seen))
		}
		return ref(n.id)
	case []any:
		if v == nil {
			return nil
		}
		key := containerKey{len: len(v), slice: true}
		if len(v) > 0 {
			key.ptr = reflect.ValueOf(v).Pointer()
			if id, ok := seen[key]; ok {
				return ref(id)
			}
		}
		n := o.newNode(kindArray, path)
		if key.ptr != 0 {
			seen[key] = n.id
		}
		n.items = make([]any, len(v))
		for i, item := range v {
			n.items[i] = o.wrap(item, path+Separator+strconv.Itoa(i), seen)
		}
		return ref(n.id)
	}
	return value
}

// relocate moves a node and the subtree below it to path.
func (o *Observable) relocate(id nodeID, path string, visited map[nodeID]bool) {
	if visited[id] {
		return
	}
	visited[id] = true

	n := o.nodes[id]
	n.path = path
	n.children(func(key string, child nodeID) {
		o.relocate(child, path+Separator+key, visited)
	})
}

// reindex renumbers element paths after a mutator shifted array slots.
// Only elements still living directly in this array are moved.
func (o *Observable) reindex(n *node) {
	prefix := n.path + Separator
	for i, item := range n.items {
		r, ok := item.(ref)
		if !ok {
			continue
		}
		child := o.nodes[r]
		want := prefix + strconv.Itoa(i)
		if child.path == want || !isIndexPath(child.path, prefix) {
			continue
		}
		o.relocate(nodeID(r), want, make(map[nodeID]bool))
	}
}

func isIndexPath(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	_, err := strconv.Atoi(path[len(prefix):])
	return err == nil
}

// eligible reports whether v would be wrapped into a node.
func eligible(v any) bool {
	switch c := v.(type) {
	case *Object:
		return c != nil
	case *Array:
		return c != nil
	case map[string]any:
		return c != nil
	case []any:
		return c != nil
	}
	return false
}

// reachable reports whether index i of array node n can be written.
func (n *node) reachable(i int) bool {
	return i >= 0 && i-len(n.items) <= MaxArrayGap
}

// sameShape reports whether v merges into n key by key: objects into
// objects, arrays into arrays.
func sameShape(n Node, v any) bool {
	switch v.(type) {
	case map[string]any, *Object:
		_, ok := n.(*Object)
		return ok
	case []any, *Array:
		_, ok := n.(*Array)
		return ok
	}
	return false
}

// CanMerge reports whether source can be merged into target without losing
// entries: both must be objects or both arrays.
func CanMerge(target Node, source any) bool {
	return eligible(source) && sameShape(target, source)
}

// parseIndex parses a canonical non-negative array index.
func parseIndex(key string) (int, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return i, true
}

package observable

import (
	"sort"
	"strconv"

	"github.com/conneroisu/reactive/internal/types"
)

// Array is the handle of a wrapped array node. Push, Pop, Shift, Unshift,
// Splice and Sort are the watched mutators; every other method is a plain,
// untracked read.
type Array struct {
	obs *Observable
	id  nodeID
}

func (arr *Array) nodeID() nodeID { return arr.id }

func (arr *Array) node() *node { return arr.obs.nodes[arr.id] }

// Path returns the array's location relative to the observable root.
func (arr *Array) Path() string { return arr.node().path }

// Owner returns the Observable that dispatches this array's events.
func (arr *Array) Owner() *Observable { return arr.obs }

// Len returns the array length, holes included.
func (arr *Array) Len() int { return len(arr.node().items) }

// At returns the element at i, or nil when i is out of range or a hole.
func (arr *Array) At(i int) any {
	n := arr.node()
	if i < 0 || i >= len(n.items) {
		return nil
	}
	return arr.obs.external(n.items[i])
}

// Values returns a copy of the elements.
func (arr *Array) Values() []any {
	n := arr.node()
	out := make([]any, len(n.items))
	for i, item := range n.items {
		out[i] = arr.obs.external(item)
	}
	return out
}

// IndexOf returns the first index holding v under strict equality, or -1.
func (arr *Array) IndexOf(v any) int {
	for i, item := range arr.Values() {
		if strictEqual(item, v) {
			return i
		}
	}
	return -1
}

// Map returns fn applied to every element.
func (arr *Array) Map(fn func(v any, i int) any) []any {
	values := arr.Values()
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = fn(v, i)
	}
	return out
}

// Filter returns the elements fn accepts.
func (arr *Array) Filter(fn func(v any, i int) bool) []any {
	var out []any
	for i, v := range arr.Values() {
		if fn(v, i) {
			out = append(out, v)
		}
	}
	return out
}

// Set assigns the element at i, extending the array with holes when i is
// past the end. Dispatches SET with path ".<array>.<i>".
func (arr *Array) Set(i int, value any) {
	if i < 0 {
		return
	}
	arr.obs.setIndex(arr.node(), i, value)
}

// Delete empties slot i, leaving a hole, and dispatches DELETE.
func (arr *Array) Delete(i int) {
	if i < 0 {
		return
	}
	arr.obs.del(arr.id, strconv.Itoa(i))
}

// Push appends values and dispatches one ADD carrying values. It returns the
// new length.
func (arr *Array) Push(values ...any) int {
	o, n := arr.obs, arr.node()
	start := len(n.items)
	for i, v := range values {
		n.items = append(n.items, o.wrap(v, n.path+Separator+strconv.Itoa(start+i), make(processed)))
	}
	o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeAdd, Elements: cloneArgs(values)})
	return len(n.items)
}

// Pop removes the last element and dispatches one REMOVE carrying that
// element. Popping an empty array dispatches REMOVE with nil.
func (arr *Array) Pop() any {
	o, n := arr.obs, arr.node()
	var removed any
	if len(n.items) > 0 {
		last := len(n.items) - 1
		removed = o.external(n.items[last])
		n.items[last] = nil
		n.items = n.items[:last]
	}
	o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeRemove, Elements: removed})
	return removed
}

// Shift removes the first element and dispatches one REMOVE carrying it.
func (arr *Array) Shift() any {
	o, n := arr.obs, arr.node()
	var removed any
	if len(n.items) > 0 {
		removed = o.external(n.items[0])
		n.items = append(n.items[:0:0], n.items[1:]...)
		o.reindex(n)
	}
	o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeRemove, Elements: removed})
	return removed
}

// Unshift prepends values and dispatches one ADD carrying values. It returns
// the new length.
func (arr *Array) Unshift(values ...any) int {
	o, n := arr.obs, arr.node()
	head := make([]any, len(values), len(values)+len(n.items))
	for i, v := range values {
		head[i] = o.wrap(v, n.path+Separator+strconv.Itoa(i), make(processed))
	}
	n.items = append(head, n.items...)
	o.reindex(n)
	o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeAdd, Elements: cloneArgs(values)})
	return len(n.items)
}

// Splice removes deleteCount elements starting at start and inserts items in
// their place. A negative start counts from the end; both arguments are
// clamped to the array bounds. It dispatches REMOVE with the removed
// elements, then ADD with items when any were given, and returns the removed
// elements.
func (arr *Array) Splice(start, deleteCount int, items ...any) []any {
	o, n := arr.obs, arr.node()
	length := len(n.items)

	if start < 0 {
		start = max(length+start, 0)
	} else if start > length {
		start = length
	}
	deleteCount = min(max(deleteCount, 0), length-start)

	removed := make([]any, deleteCount)
	for i := range deleteCount {
		removed[i] = o.external(n.items[start+i])
	}

	inserted := make([]any, len(items))
	for i, v := range items {
		inserted[i] = o.wrap(v, n.path+Separator+strconv.Itoa(start+i), make(processed))
	}

	next := make([]any, 0, length-deleteCount+len(items))
	next = append(next, n.items[:start]...)
	next = append(next, inserted...)
	next = append(next, n.items[start+deleteCount:]...)
	n.items = next
	o.reindex(n)

	o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeRemove, Elements: removed})
	if len(items) > 0 {
		o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeAdd, Elements: cloneArgs(items)})
	}
	return removed
}

// Sort sorts the array in place and dispatches one SORT. cmp follows
// slices.SortFunc conventions; a nil cmp orders elements by their string
// form, holes last.
func (arr *Array) Sort(cmp func(a, b any) int) *Array {
	o, n := arr.obs, arr.node()

	var present, holes []any
	for _, item := range n.items {
		if _, isHole := item.(holeT); isHole {
			holes = append(holes, item)
			continue
		}
		present = append(present, item)
	}

	less := func(i, j int) bool {
		a, b := o.external(present[i]), o.external(present[j])
		if cmp != nil {
			return cmp(a, b) < 0
		}
		return defaultCompare(a, b) < 0
	}
	sort.SliceStable(present, less)

	n.items = append(present, holes...)
	o.reindex(n)
	o.emit(types.ChangeEvent{Path: n.path, Kind: types.ChangeSort})
	return arr
}

// Merge deep-merges source into the array by index.
func (arr *Array) Merge(source any) {
	arr.obs.merge(arr.id, source, make(map[mergeVisit]bool))
}

// ToJSON returns a shallow copy of the elements. Nested objects and arrays
// stay handles.
func (arr *Array) ToJSON() []any {
	return arr.Values()
}

// Snapshot returns a deep plain copy of the array.
func (arr *Array) Snapshot() any {
	return arr.obs.snapshot(arr.id, make(map[nodeID]any))
}

// MarshalJSON encodes the array deeply.
func (arr *Array) MarshalJSON() ([]byte, error) {
	return arr.obs.marshal(arr.id)
}

func cloneArgs(values []any) []any {
	out := make([]any, len(values))
	copy(out, values)
	return out
}

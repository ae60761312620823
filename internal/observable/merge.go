package observable

import (
	"sort"
	"strconv"
)

// mergeVisit guards merge against cyclic sources.
type mergeVisit struct {
	target nodeID
	source uintptr
}

func (o *Observable) assign(id nodeID, properties map[string]any) {
	for _, k := range sortedKeys(properties) {
		o.set(id, k, properties[k])
	}
}

func (o *Observable) reset(id nodeID, properties map[string]any) {
	for _, k := range o.keys(id) {
		if _, keep := properties[k]; !keep {
			o.del(id, k)
		}
	}
	o.assign(id, properties)
}

// merge writes source into node id key by key, recursing wherever the
// existing and the incoming value are both objects or both arrays. Arrays
// merge by index, extending the target when the source is longer. A source
// of the other shape than node id is ignored.
func (o *Observable) merge(id nodeID, source any, visits map[mergeVisit]bool) {
	if !sameShape(o.nodes[id].handle, source) {
		return
	}
	if ptr := identity(source); ptr != 0 {
		visit := mergeVisit{target: id, source: ptr}
		if visits[visit] {
			return
		}
		visits[visit] = true
	}

	if n, ok := source.(Node); ok && n.Owner() == o && n.nodeID() == id {
		return
	}

	keys, values := sourceEntries(source)
	for i, k := range keys {
		o.mergeKey(id, k, values[i], visits)
	}
}

func (o *Observable) mergeKey(id nodeID, key string, incoming any, visits map[mergeVisit]bool) {
	existing, exists := o.get(id, key)
	if exists && eligible(incoming) {
		if child, ok := existing.(Node); ok && child.Owner() == o && sameShape(child, incoming) {
			o.merge(child.nodeID(), incoming, visits)
			return
		}
	}
	o.set(id, key, incoming)
}

// sourceEntries lists the enumerable entries of a merge source in a stable
// order: sorted keys for maps, insertion order for objects, index order for
// arrays.
func sourceEntries(source any) ([]string, []any) {
	switch s := source.(type) {
	case map[string]any:
		keys := sortedKeys(s)
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = s[k]
		}
		return keys, values
	case *Object:
		if s == nil {
			return nil, nil
		}
		keys := s.Keys()
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = s.Get(k)
		}
		return keys, values
	case []any:
		return indexEntries(s)
	case *Array:
		if s == nil {
			return nil, nil
		}
		return indexEntries(s.Values())
	}
	return nil, nil
}

func indexEntries(values []any) ([]string, []any) {
	keys := make([]string, len(values))
	for i := range values {
		keys[i] = strconv.Itoa(i)
	}
	return keys, values
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

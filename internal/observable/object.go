package observable

// Object is the handle of a wrapped object node. An Object is obtained from
// an Observable, never constructed directly, and the same node always yields
// the same *Object.
type Object struct {
	obs *Observable
	id  nodeID
}

// Accessor describes a computed, non-enumerable property. Set receives the
// owning handle so the writes it performs are tracked like any other.
type Accessor struct {
	Get func(obj *Object) any
	Set func(obj *Object, value any)
}

// Symbol is a unique property key. Symbol-keyed properties are never
// tracked or enumerated.
type Symbol struct {
	description string
}

// NewSymbol creates a new unique symbol.
func NewSymbol(description string) *Symbol {
	return &Symbol{description: description}
}

// String returns the symbol's description.
func (s *Symbol) String() string {
	return "Symbol(" + s.description + ")"
}

func (obj *Object) nodeID() nodeID { return obj.id }

func (obj *Object) node() *node { return obj.obs.nodes[obj.id] }

// Path returns the object's location relative to the observable root.
func (obj *Object) Path() string { return obj.node().path }

// Owner returns the Observable that dispatches this object's events.
func (obj *Object) Owner() *Observable { return obj.obs }

// Get returns the value of key. Nested objects and arrays are returned as
// handles.
func (obj *Object) Get(key string) any {
	v, _ := obj.obs.get(obj.id, key)
	return v
}

// Lookup returns the value of key and whether it exists.
func (obj *Object) Lookup(key string) (any, bool) {
	return obj.obs.get(obj.id, key)
}

// Has reports whether key exists, enumerable or not.
func (obj *Object) Has(key string) bool {
	_, ok := obj.obs.get(obj.id, key)
	return ok
}

// Keys returns the enumerable keys in insertion order.
func (obj *Object) Keys() []string {
	return obj.obs.keys(obj.id)
}

// Len returns the number of enumerable keys.
func (obj *Object) Len() int {
	return len(obj.node().keys)
}

// Set assigns value to key and dispatches a SET event, unless key is a
// hidden or accessor property (passed through untracked) or value is deeply
// equal to the current value (accepted silently). Objects and arrays are
// wrapped; handles of this observable are reused and moved to key.
func (obj *Object) Set(key string, value any) {
	obj.obs.set(obj.id, key, value)
}

// Delete removes key and dispatches a DELETE event. Missing keys are
// ignored; hidden and accessor properties are removed silently.
func (obj *Object) Delete(key string) {
	obj.obs.del(obj.id, key)
}

// DefineHidden defines a non-enumerable property. It is readable through
// Get but excluded from Keys and serialization, and writes to it are never
// tracked.
func (obj *Object) DefineHidden(key string, value any) {
	n := obj.node()
	n.deleteField(key)
	delete(n.accessors, key)
	if n.hidden == nil {
		n.hidden = make(map[string]any)
	}
	n.hidden[key] = value
}

// DefineAccessor defines a non-enumerable computed property.
func (obj *Object) DefineAccessor(key string, accessor Accessor) {
	n := obj.node()
	n.deleteField(key)
	delete(n.hidden, key)
	if n.accessors == nil {
		n.accessors = make(map[string]Accessor)
	}
	n.accessors[key] = accessor
}

// GetSymbol reads a symbol-keyed property.
func (obj *Object) GetSymbol(sym *Symbol) (any, bool) {
	v, ok := obj.node().symbols[sym]
	return v, ok
}

// SetSymbol writes a symbol-keyed property without tracking.
func (obj *Object) SetSymbol(sym *Symbol, value any) {
	n := obj.node()
	if n.symbols == nil {
		n.symbols = make(map[*Symbol]any)
	}
	n.symbols[sym] = value
}

// DeleteSymbol removes a symbol-keyed property without tracking.
func (obj *Object) DeleteSymbol(sym *Symbol) {
	delete(obj.node().symbols, sym)
}

// Assign shallow-merges properties, one Set per key in sorted key order.
func (obj *Object) Assign(properties map[string]any) {
	obj.obs.assign(obj.id, properties)
}

// Reset deletes every enumerable key missing from properties, then assigns
// properties.
func (obj *Object) Reset(properties map[string]any) {
	obj.obs.reset(obj.id, properties)
}

// Merge deep-merges source (a map, slice or handle) into the object.
func (obj *Object) Merge(source any) {
	obj.obs.merge(obj.id, source, make(map[mergeVisit]bool))
}

// ToJSON returns a shallow copy of the enumerable properties. Nested objects
// and arrays stay handles.
func (obj *Object) ToJSON() map[string]any {
	n := obj.node()
	out := make(map[string]any, len(n.keys))
	for _, k := range n.keys {
		out[k] = obj.obs.external(n.fields[k])
	}
	return out
}

// Snapshot returns a deep plain copy built from map[string]any and []any.
// Shared and cyclic references are preserved.
func (obj *Object) Snapshot() any {
	return obj.obs.snapshot(obj.id, make(map[nodeID]any))
}

// MarshalJSON encodes the object deeply, keys in insertion order.
func (obj *Object) MarshalJSON() ([]byte, error) {
	return obj.obs.marshal(obj.id)
}

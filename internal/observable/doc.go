// Package observable implements the reactive observable engine: data
// containers that emit a types.ChangeEvent for every tracked mutation.
//
// An Observable wraps a map[string]any or []any tree. Every nested object and
// array becomes a node in an arena owned by the Observable and is exposed
// through a handle (*Object or *Array) that intercepts writes:
//
//	o := observable.New(map[string]any{"answer": 42})
//	o.AddEventListener(types.EventChange, observable.NewListener(func(e types.ChangeEvent) {
//		fmt.Println(e.Kind, e.Path, e.Previous) // SET .answer 42
//	}))
//	o.Set("answer", 1)
//
// Each node records its path from the root (".object.name"). Assigning a
// handle to a second location reuses the node and moves its path, so events
// always report the most recent location. Cyclic input terminates because
// nodes refer to each other by arena index.
//
// Array handles watch Push, Pop, Shift, Unshift, Splice and Sort. Time
// values, regular expressions, typed maps and slices, and structs are stored
// as opaque values and never deep-observed.
package observable

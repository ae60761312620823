package observable

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/conneroisu/reactive/internal/errors"
)

// snapshot deep-copies node id into plain maps and slices. memo maps nodes
// already copied so shared and cyclic references stay shared.
func (o *Observable) snapshot(id nodeID, memo map[nodeID]any) any {
	if v, ok := memo[id]; ok {
		return v
	}
	n := o.nodes[id]
	if n.kind == kindArray {
		out := make([]any, len(n.items))
		memo[id] = out
		for i, item := range n.items {
			out[i] = o.plain(item, memo)
		}
		return out
	}
	out := make(map[string]any, len(n.keys))
	memo[id] = out
	for _, k := range n.keys {
		out[k] = o.plain(n.fields[k], memo)
	}
	return out
}

func (o *Observable) plain(v any, memo map[nodeID]any) any {
	switch s := v.(type) {
	case ref:
		return o.snapshot(nodeID(s), memo)
	case holeT:
		return nil
	}
	return v
}

// marshal encodes node id as JSON, failing on cycles.
func (o *Observable) marshal(id nodeID) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.encode(&buf, id, make(map[nodeID]bool)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Observable) encode(buf *bytes.Buffer, id nodeID, stack map[nodeID]bool) error {
	n := o.nodes[id]
	if stack[id] {
		return errors.ErrCyclicValue(n.path)
	}
	stack[id] = true
	defer delete(stack, id)

	if n.kind == kindArray {
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := o.encodeValue(buf, item, stack); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}

	buf.WriteByte('{')
	for i, k := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := o.encodeValue(buf, n.fields[k], stack); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (o *Observable) encodeValue(buf *bytes.Buffer, v any, stack map[nodeID]bool) error {
	switch s := v.(type) {
	case ref:
		return o.encode(buf, nodeID(s), stack)
	case holeT:
		buf.WriteString("null")
		return nil
	}
	if f, ok := toFloat(v); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		buf.WriteString("null")
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

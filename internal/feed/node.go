package feed

import (
	"encoding/json"
	"io"
	"math"
)

// Node is a read-only view over a decoded JSON value (map[string]interface{},
// []interface{}, json.Number, float64, string, bool or nil).
//
// Lookups never fail: a missing key or a value of the wrong shape yields an
// empty Node, and leaf reads on an empty Node return a missing Value.
type Node struct {
	v interface{}
}

// NewNode wraps a decoded JSON value.
func NewNode(v interface{}) Node {
	return Node{v: v}
}

// Raw returns the wrapped value.
func (n Node) Raw() interface{} {
	return n.v
}

// Exists reports whether the node holds a non-null value.
func (n Node) Exists() bool {
	return n.v != nil
}

// IsObject reports whether the node holds a JSON object.
func (n Node) IsObject() bool {
	_, ok := n.v.(map[string]interface{})
	return ok
}

// IsArray reports whether the node holds a JSON array.
func (n Node) IsArray() bool {
	_, ok := n.v.([]interface{})
	return ok
}

// Has reports whether the node is an object containing key, even if the
// value stored under key is null.
func (n Node) Has(key string) bool {
	m, ok := n.v.(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// Get walks the path of object keys.
func (n Node) Get(path ...string) Node {
	cur := n.v
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return Node{}
		}
		cur = m[key]
	}
	return Node{v: cur}
}

// Items returns the elements of an array node, or nil.
func (n Node) Items() []Node {
	arr, ok := n.v.([]interface{})
	if !ok {
		return nil
	}
	items := make([]Node, len(arr))
	for i, item := range arr {
		items[i] = Node{v: item}
	}
	return items
}

// String reads a string leaf. Numbers are passed through in their decoded
// textual form.
func (n Node) String() Value[string] {
	switch val := n.v.(type) {
	case string:
		return Some(val)
	case json.Number:
		return Some(val.String())
	}
	return Value[string]{}
}

// Int reads an integral number leaf. Non-integral numbers are missing.
func (n Node) Int() Value[int64] {
	switch val := n.v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Some(i)
		}
		if f, err := val.Float64(); err == nil && f == math.Trunc(f) {
			return Some(int64(f))
		}
	case float64:
		if val == math.Trunc(val) {
			return Some(int64(val))
		}
	case int:
		return Some(int64(val))
	case int64:
		return Some(val)
	}
	return Value[int64]{}
}

// Float reads a number leaf.
func (n Node) Float() Value[float64] {
	switch val := n.v.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return Some(f)
		}
	case float64:
		return Some(val)
	case int:
		return Some(float64(val))
	case int64:
		return Some(float64(val))
	}
	return Value[float64]{}
}

// Bool reads a boolean leaf.
func (n Node) Bool() Value[bool] {
	if b, ok := n.v.(bool); ok {
		return Some(b)
	}
	return Value[bool]{}
}

// Decode parses a JSON document keeping numbers as json.Number, so values
// reach the flattener exactly as the API sent them.
func Decode(r io.Reader) (interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

package workflow

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// Field resolves a dotted path against the node: "name", "id", "type",
// "typeVersion", "position", "webhookId", "parameters.<key>[.<key>...]", or
// any preserved extra key.
func (n *Node) Field(path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	switch head {
	case "name":
		return n.Name, !nested
	case "id":
		return n.ID, !nested && n.ID != ""
	case "type":
		return n.Type, !nested
	case "webhookId":
		return n.WebhookID, !nested && n.WebhookID != ""
	case "typeVersion":
		return n.TypeVersion, !nested && n.TypeVersion != ""
	case "position":
		return n.Position, !nested && n.Position != nil
	case "parameters":
		if !nested {
			return n.Parameters, n.Parameters != nil
		}
		return lookup(n.Parameters, rest)
	}

	raw, ok := n.Extra[head]
	if !ok {
		return nil, false
	}
	var v any
	if err := decodeNumbers(raw, &v); err != nil {
		return nil, false
	}
	if !nested {
		return v, true
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(m, rest)
}

// SetParameter sets parameters.<path>, creating intermediate objects.
func (n *Node) SetParameter(path string, value any) {
	if n.Parameters == nil {
		n.Parameters = make(map[string]any)
	}
	m := n.Parameters
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		child, ok := m[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[key] = child
		}
		m = child
	}
	m[keys[len(keys)-1]] = value
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ValuesEqual compares two JSON-compatible values by their JSON meaning, so
// int(1700), float64(1700) and json.Number("1700") are equal.
func ValuesEqual(a, b any) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(ca, cb)
}

func canonical(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Node keys the model owns. Everything else goes to Node.Extra.
var nodeKeys = map[string]bool{
	"id": true, "name": true, "type": true, "typeVersion": true,
	"position": true, "parameters": true, "webhookId": true,
}

// UnmarshalJSON decodes a node, keeping unknown keys verbatim.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*n = Node{}
	for key, value := range raw {
		var err error
		switch key {
		case "id":
			err = json.Unmarshal(value, &n.ID)
		case "name":
			err = json.Unmarshal(value, &n.Name)
		case "type":
			err = json.Unmarshal(value, &n.Type)
		case "typeVersion":
			err = json.Unmarshal(value, &n.TypeVersion)
		case "position":
			err = json.Unmarshal(value, &n.Position)
		case "webhookId":
			err = json.Unmarshal(value, &n.WebhookID)
		case "parameters":
			n.Parameters, err = decodeObject(value)
		default:
			if n.Extra == nil {
				n.Extra = make(map[string]json.RawMessage)
			}
			n.Extra[key] = compactRaw(value)
		}
		if err != nil {
			return fmt.Errorf("node field %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON writes known fields over the preserved extras. Empty optional
// fields are omitted so absent keys stay absent.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Extra)+len(nodeKeys))
	for key, value := range n.Extra {
		out[key] = value
	}
	out["name"] = n.Name
	out["type"] = n.Type
	if n.ID != "" {
		out["id"] = n.ID
	}
	if n.TypeVersion != "" {
		out["typeVersion"] = n.TypeVersion
	}
	if n.Position != nil {
		out["position"] = n.Position
	}
	if n.Parameters != nil {
		out["parameters"] = n.Parameters
	}
	if n.WebhookID != "" {
		out["webhookId"] = n.WebhookID
	}
	return encode(out, "")
}

// Parse decodes a workflow document. Input that is not JSON, or lacks a
// nodes array or connections object, yields a *ParseError.
func Parse(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &ParseError{Cause: err}
	}

	rawNodes, ok := top["nodes"]
	if !ok || !isJSONArray(rawNodes) {
		return nil, &ParseError{Cause: errors.New(`missing "nodes" array`)}
	}
	rawConns, ok := top["connections"]
	if !ok || !isJSONObject(rawConns) {
		return nil, &ParseError{Cause: errors.New(`missing "connections" object`)}
	}

	doc := &Document{}
	if err := json.Unmarshal(rawNodes, &doc.Nodes); err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("nodes: %w", err)}
	}
	for i, n := range doc.Nodes {
		if n == nil {
			return nil, &ParseError{Cause: fmt.Errorf("nodes[%d] is null", i)}
		}
	}
	if err := json.Unmarshal(rawConns, &doc.Connections); err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("connections: %w", err)}
	}
	if doc.Connections == nil {
		doc.Connections = Connections{}
	}

	delete(top, "nodes")
	delete(top, "connections")
	if len(top) > 0 {
		doc.Extra = make(map[string]json.RawMessage, len(top))
		for key, value := range top {
			doc.Extra[key] = compactRaw(value)
		}
	}
	return doc, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Cause: err}
	}
	doc, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Marshal encodes the document with two-space indentation and no HTML
// escaping, followed by a newline.
func (d *Document) Marshal() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for key, value := range d.Extra {
		out[key] = value
	}
	nodes := d.Nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	conns := d.Connections
	if conns == nil {
		conns = Connections{}
	}
	out["nodes"] = nodes
	out["connections"] = conns

	data, err := encode(out, "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes the document to path. The write goes through a temporary file
// in the same directory followed by a rename, so readers never observe a
// half-written document.
func Save(doc *Document, path string) error {
	data, err := doc.Marshal()
	if err != nil {
		return &WriteError{Path: path, Op: "marshal", Cause: err}
	}
	return WriteFile(path, data)
}

// WriteFile atomically replaces path with data, keeping the permissions of
// an existing file.
func WriteFile(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Op: "create", Cause: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return &WriteError{Path: path, Op: "write", Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &WriteError{Path: path, Op: "sync", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &WriteError{Path: path, Op: "close", Cause: err}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return &WriteError{Path: path, Op: "chmod", Cause: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &WriteError{Path: path, Op: "rename", Cause: err}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() (*Document, error) {
	data, err := d.Marshal()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func decodeObject(data []byte) (map[string]any, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// compactRaw copies raw with insignificant whitespace removed, so preserved
// fields compare equal regardless of the indentation they were read with.
func compactRaw(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return json.RawMessage(buf.Bytes())
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() (*Node, error) {
	data, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out Node
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &out, nil
}

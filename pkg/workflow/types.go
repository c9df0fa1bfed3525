// Package workflow models n8n-style workflow documents: an ordered node list
// plus a connection map keyed by source node name. Fields the model does not
// know about are carried as raw JSON so a load/save cycle leaves them intact.
package workflow

import (
	"encoding/json"
	"sort"
	"strings"
)

const (
	// ChannelMain is the default connection channel.
	ChannelMain = "main"

	TypeStickyNote = "n8n-nodes-base.stickyNote"
	TypeWebhook    = "n8n-nodes-base.webhook"

	annotationSuffix = ".stickyNote"
)

// Document is a workflow graph. Nodes keep document order.
type Document struct {
	Nodes       []*Node
	Connections Connections

	// Extra holds top-level keys other than nodes/connections
	// (name, settings, pinData, meta, ...).
	Extra map[string]json.RawMessage
}

// Node is one workflow step. Parameters are decoded with json.Number so
// numeric values keep their original text.
type Node struct {
	ID          string
	Name        string
	Type        string
	TypeVersion json.Number
	Position    []float64
	Parameters  map[string]any
	WebhookID   string

	Extra map[string]json.RawMessage
}

// IsAnnotation reports whether the node is a sticky note.
func (n *Node) IsAnnotation() bool {
	return strings.HasSuffix(n.Type, annotationSuffix)
}

// IsTrigger reports whether the node is a webhook entry point.
func (n *Node) IsTrigger() bool {
	return n.Type == TypeWebhook
}

// Edge points at an input slot of a target node.
type Edge struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Slot is one output of a source node. A nil slot is written as null.
type Slot []Edge

// Connection maps a channel name (usually "main") to output slots.
type Connection map[string][]Slot

// Connections maps source node name to its outgoing connection.
type Connections map[string]Connection

// Targets returns the target names reachable from source across every
// channel and slot, in order. Channels are visited main-first, then sorted.
func (c Connections) Targets(source string) []string {
	conn, ok := c[source]
	if !ok {
		return nil
	}
	var out []string
	for _, channel := range conn.channels() {
		for _, slot := range conn[channel] {
			for _, e := range slot {
				out = append(out, e.Node)
			}
		}
	}
	return out
}

func (c Connection) channels() []string {
	names := make([]string, 0, len(c))
	if _, ok := c[ChannelMain]; ok {
		names = append(names, ChannelMain)
	}
	rest := make([]string, 0, len(c))
	for k := range c {
		if k != ChannelMain {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// NodeByName returns the first node named name and its index, or nil, -1.
func (d *Document) NodeByName(name string) (*Node, int) {
	for i, n := range d.Nodes {
		if n.Name == name {
			return n, i
		}
	}
	return nil, -1
}

// NodeByID returns the first node with the given id.
func (d *Document) NodeByID(id string) (*Node, int) {
	if id == "" {
		return nil, -1
	}
	for i, n := range d.Nodes {
		if n.ID == id {
			return n, i
		}
	}
	return nil, -1
}

// HasNode reports whether a node named name exists.
func (d *Document) HasNode(name string) bool {
	_, i := d.NodeByName(name)
	return i >= 0
}

// CountNamed returns how many nodes carry name.
func (d *Document) CountNamed(name string) int {
	count := 0
	for _, n := range d.Nodes {
		if n.Name == name {
			count++
		}
	}
	return count
}

// Package patch applies structural edits to a workflow document in memory.
//
// Every operation is total: it either mutates the document or leaves it
// untouched and returns an error describing why. A *workflow.NotFoundError
// means the target was absent, which callers normally treat as an
// already-applied edit. Nothing is persisted here; see workflow.Save.
package patch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

var (
	// ErrUnchanged means the edit would not modify the document.
	ErrUnchanged = errors.New("already up to date")
	// ErrNoCodeParameter means a code sync target has no jsCode parameter.
	ErrNoCodeParameter = errors.New("node has no jsCode parameter")
)

// Warning is returned by an operation that completed but left the document
// in a state worth reporting, such as a connection from a missing node.
type Warning struct {
	Msg string
}

func (w *Warning) Error() string { return w.Msg }

// FieldUpdates are applied to a node alongside a rename. Parameter keys may
// be dotted ("options.rawBody").
type FieldUpdates struct {
	Parameters map[string]any
	WebhookID  *string
	Position   []float64
}

// Target is one edge destination.
type Target struct {
	Node  string
	Type  string // defaults to "main"
	Index int
}

func (t Target) edge() workflow.Edge {
	typ := t.Type
	if typ == "" {
		typ = workflow.ChannelMain
	}
	return workflow.Edge{Node: t.Node, Type: typ, Index: t.Index}
}

// AnnotationSpec describes a sticky note to append.
type AnnotationSpec struct {
	Name     string
	Content  string
	Position []float64
	Width    int
	Height   int
	Color    int
}

// RenameNode renames the first node named oldName and applies updates to
// it. Connection entries keyed by oldName are not migrated.
func RenameNode(doc *workflow.Document, oldName, newName string, updates FieldUpdates) error {
	node, _ := doc.NodeByName(oldName)
	if node == nil {
		return workflow.NotFound("node", oldName)
	}

	node.Name = newName
	for key, value := range updates.Parameters {
		node.SetParameter(key, value)
	}
	if updates.WebhookID != nil {
		node.WebhookID = *updates.WebhookID
	}
	if updates.Position != nil {
		node.Position = append([]float64(nil), updates.Position...)
	}
	return nil
}

// RemoveOptions controls RemoveNode.
type RemoveOptions struct {
	// PruneInbound also deletes edges elsewhere that target the node.
	PruneInbound bool
}

// RemoveNode deletes the first node named name and the connection entry
// keyed by name. When neither exists it returns a NotFoundError; calling it
// again on the same document is therefore a harmless no-op.
func RemoveNode(doc *workflow.Document, name string, opts RemoveOptions) error {
	_, idx := doc.NodeByName(name)
	_, hasEntry := doc.Connections[name]
	if idx < 0 && !hasEntry {
		return workflow.NotFound("node", name)
	}

	if idx >= 0 {
		doc.Nodes = append(doc.Nodes[:idx], doc.Nodes[idx+1:]...)
	}
	delete(doc.Connections, name)

	// Only prune when no other node still answers to the name.
	if opts.PruneInbound && !doc.HasNode(name) {
		PruneInbound(doc, name)
	}
	return nil
}

// PruneInbound removes every edge targeting name and returns how many were
// removed. Slots are kept so output indexes of other edges do not shift.
func PruneInbound(doc *workflow.Document, name string) int {
	removed := 0
	for _, conn := range doc.Connections {
		for channel, slots := range conn {
			for i, slot := range slots {
				if slot == nil {
					continue
				}
				kept := slot[:0]
				for _, e := range slot {
					if e.Node == name {
						removed++
						continue
					}
					kept = append(kept, e)
				}
				slots[i] = kept
			}
			conn[channel] = slots
		}
	}
	return removed
}

// AddOptions controls AddNode.
type AddOptions struct {
	// Strict rejects a name that is already taken.
	Strict bool
	// SkipExisting turns a taken name into ErrUnchanged so re-runs do not
	// append a second copy.
	SkipExisting bool
}

// AddNode appends node. A missing id is filled with a fresh UUID.
func AddNode(doc *workflow.Document, node *workflow.Node, opts AddOptions) error {
	if node == nil || node.Name == "" {
		return errors.New("add node: name is required")
	}
	if doc.HasNode(node.Name) {
		switch {
		case opts.SkipExisting:
			return ErrUnchanged
		case opts.Strict:
			return &workflow.DuplicateNameError{Name: node.Name}
		}
	}
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	doc.Nodes = append(doc.Nodes, node)
	return nil
}

// SetConnection replaces the connection entry of source with a single main
// output slot holding targets. A missing source node yields a *Warning,
// but the entry is still written.
func SetConnection(doc *workflow.Document, source string, targets []Target) error {
	slot := make(workflow.Slot, 0, len(targets))
	for _, t := range targets {
		slot = append(slot, t.edge())
	}
	if doc.Connections == nil {
		doc.Connections = workflow.Connections{}
	}
	doc.Connections[source] = workflow.Connection{
		workflow.ChannelMain: []workflow.Slot{slot},
	}

	if !doc.HasNode(source) {
		return &Warning{Msg: fmt.Sprintf("connection source %q has no node", source)}
	}
	return nil
}

// RemoveConnection deletes the connection entry keyed by source.
func RemoveConnection(doc *workflow.Document, source string) error {
	if _, ok := doc.Connections[source]; !ok {
		return workflow.NotFound("connection", source)
	}
	delete(doc.Connections, source)
	return nil
}

// AddEdge adds an edge from source's output slot to target on the main
// channel, creating the entry and any missing slots. An identical existing
// edge yields ErrUnchanged.
func AddEdge(doc *workflow.Document, source string, slot int, target Target) error {
	if slot < 0 {
		return fmt.Errorf("add edge: negative output slot %d", slot)
	}
	edge := target.edge()
	if conn, ok := doc.Connections[source]; ok {
		if slots := conn[workflow.ChannelMain]; slot < len(slots) {
			for _, e := range slots[slot] {
				if e == edge {
					return ErrUnchanged
				}
			}
		}
	}

	if doc.Connections == nil {
		doc.Connections = workflow.Connections{}
	}
	// A null entry in the file decodes to a nil Connection.
	conn := doc.Connections[source]
	if conn == nil {
		conn = workflow.Connection{}
		doc.Connections[source] = conn
	}
	slots := conn[workflow.ChannelMain]
	for len(slots) <= slot {
		slots = append(slots, workflow.Slot{})
	}
	slots[slot] = append(slots[slot], edge)
	conn[workflow.ChannelMain] = slots

	if !doc.HasNode(source) {
		return &Warning{Msg: fmt.Sprintf("connection source %q has no node", source)}
	}
	return nil
}

// RemoveEdge deletes every edge from source to target across all channels
// and slots.
func RemoveEdge(doc *workflow.Document, source, target string) error {
	conn, ok := doc.Connections[source]
	if !ok {
		return workflow.NotFound("edge", source+" -> "+target)
	}
	removed := 0
	for channel, slots := range conn {
		for i, slot := range slots {
			kept := slot[:0]
			for _, e := range slot {
				if e.Node == target {
					removed++
					continue
				}
				kept = append(kept, e)
			}
			if slot != nil {
				slots[i] = kept
			}
		}
		conn[channel] = slots
	}
	if removed == 0 {
		return workflow.NotFound("edge", source+" -> "+target)
	}
	return nil
}

// UpdateAnnotation merges fields into the parameters of the first annotation
// node accepted by match. With no match the document is left unchanged.
func UpdateAnnotation(doc *workflow.Document, match Predicate, fields map[string]any) error {
	for _, n := range doc.Nodes {
		if n.IsAnnotation() && match.Match(n) {
			for key, value := range fields {
				n.SetParameter(key, value)
			}
			return nil
		}
	}
	return workflow.NotFound("annotation", match.String())
}

// UpdateAnnotationAt is UpdateAnnotation with a Selector: id first, then
// name, then position.
func UpdateAnnotationAt(doc *workflow.Document, sel workflow.Selector, fields map[string]any) error {
	node := doc.Find(sel, (*workflow.Node).IsAnnotation)
	if node == nil {
		return workflow.NotFound("annotation", sel.String())
	}
	for key, value := range fields {
		node.SetParameter(key, value)
	}
	return nil
}

// AppendAnnotations appends one sticky note per spec, each with a fresh
// UUID. Names are not checked for uniqueness.
func AppendAnnotations(doc *workflow.Document, specs []AnnotationSpec) []*workflow.Node {
	added := make([]*workflow.Node, 0, len(specs))
	for _, spec := range specs {
		node := &workflow.Node{
			ID:          uuid.New().String(),
			Name:        spec.Name,
			Type:        workflow.TypeStickyNote,
			TypeVersion: "1",
			Position:    append([]float64(nil), spec.Position...),
			Parameters: map[string]any{
				"content": spec.Content,
				"width":   spec.Width,
				"height":  spec.Height,
				"color":   spec.Color,
			},
		}
		doc.Nodes = append(doc.Nodes, node)
		added = append(added, node)
	}
	return added
}

// SyncCode replaces parameters.jsCode of the node named name.
func SyncCode(doc *workflow.Document, name, code string) error {
	node, _ := doc.NodeByName(name)
	if node == nil {
		return workflow.NotFound("node", name)
	}
	current, ok := node.Parameters["jsCode"]
	if !ok {
		return ErrNoCodeParameter
	}
	if s, isString := current.(string); isString && s == code {
		return ErrUnchanged
	}
	node.Parameters["jsCode"] = code
	return nil
}

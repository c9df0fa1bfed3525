package patch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dd0wney/flowpatch/pkg/verify"
	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// Policy carries run-wide switches that edits and the engine honour.
type Policy struct {
	// Strict makes duplicate node names fatal.
	Strict bool
	// AbortOnNotFound stops the run at the first missing target.
	AbortOnNotFound bool
	// PruneInbound removes edges into deleted nodes for every removal.
	PruneInbound bool
}

// Edit is one step of a patch. Expect describes the state the edit should
// leave behind; it is called after Apply so edits can report generated ids.
type Edit interface {
	Op() string
	String() string
	Apply(doc *workflow.Document, p Policy) error
	Expect() []verify.Check
}

// Expectations builds the checklist for edits, in order, followed by the
// global integrity check.
func Expectations(edits []Edit) *verify.Checklist {
	list := verify.NewChecklist()
	for _, e := range edits {
		list.Add(e.Expect()...)
	}
	list.Add(verify.NoDanglingReferences{})
	return list
}

// RenameNodeEdit renames a node and updates its fields.
type RenameNodeEdit struct {
	From    string
	To      string
	Updates FieldUpdates
}

func (e *RenameNodeEdit) Op() string { return "rename_node" }

func (e *RenameNodeEdit) String() string {
	return fmt.Sprintf("rename %q -> %q", e.From, e.To)
}

func (e *RenameNodeEdit) Apply(doc *workflow.Document, p Policy) error {
	if p.Strict && e.To != e.From && doc.HasNode(e.To) && doc.HasNode(e.From) {
		return &workflow.DuplicateNameError{Name: e.To}
	}
	return RenameNode(doc, e.From, e.To, e.Updates)
}

func (e *RenameNodeEdit) Expect() []verify.Check {
	var checks []verify.Check
	if e.From != e.To {
		checks = append(checks, verify.NodeAbsent{Name: e.From})
	}
	checks = append(checks, verify.NodePresent{Name: e.To})
	for _, key := range sortedKeys(e.Updates.Parameters) {
		checks = append(checks, verify.FieldEquals{Node: e.To, Field: "parameters." + key, Value: e.Updates.Parameters[key]})
	}
	if e.Updates.WebhookID != nil {
		checks = append(checks, verify.FieldEquals{Node: e.To, Field: "webhookId", Value: *e.Updates.WebhookID})
	}
	if e.Updates.Position != nil {
		checks = append(checks, verify.FieldEquals{Node: e.To, Field: "position", Value: e.Updates.Position})
	}
	return checks
}

// RemoveNodeEdit removes a node and its outgoing connections.
type RemoveNodeEdit struct {
	Name         string
	PruneInbound bool

	applied bool
	pruned  bool
}

func (e *RemoveNodeEdit) Op() string     { return "remove_node" }
func (e *RemoveNodeEdit) String() string { return fmt.Sprintf("remove %q", e.Name) }

func (e *RemoveNodeEdit) Apply(doc *workflow.Document, p Policy) error {
	prune := e.PruneInbound || p.PruneInbound
	err := RemoveNode(doc, e.Name, RemoveOptions{PruneInbound: prune})
	e.applied = true
	e.pruned = err == nil && prune && !doc.HasNode(e.Name)
	return err
}

// Expect adds InboundAbsent when inbound edges were pruned, or before Apply
// when the edit itself asks for pruning.
func (e *RemoveNodeEdit) Expect() []verify.Check {
	checks := []verify.Check{
		verify.NodeAbsent{Name: e.Name},
		verify.ConnectionAbsent{Source: e.Name},
	}
	if e.pruned || (!e.applied && e.PruneInbound) {
		checks = append(checks, verify.InboundAbsent{Node: e.Name})
	}
	return checks
}

// AddNodeEdit appends a fully specified node. The node is copied on every
// Apply, so one edit can run against several documents.
type AddNodeEdit struct {
	Node         *workflow.Node
	SkipExisting bool
}

func (e *AddNodeEdit) Op() string     { return "add_node" }
func (e *AddNodeEdit) String() string { return fmt.Sprintf("add %q (%s)", e.Node.Name, e.Node.Type) }

func (e *AddNodeEdit) Apply(doc *workflow.Document, p Policy) error {
	node, err := e.Node.Clone()
	if err != nil {
		return fmt.Errorf("copy node %q: %w", e.Node.Name, err)
	}
	return AddNode(doc, node, AddOptions{Strict: p.Strict, SkipExisting: e.SkipExisting})
}

func (e *AddNodeEdit) Expect() []verify.Check {
	checks := []verify.Check{
		verify.NodePresent{Name: e.Node.Name},
		verify.FieldEquals{Node: e.Node.Name, Field: "type", Value: e.Node.Type},
	}
	if e.Node.WebhookID != "" {
		checks = append(checks, verify.FieldEquals{Node: e.Node.Name, Field: "webhookId", Value: e.Node.WebhookID})
	}
	if path, ok := e.Node.Parameters["path"]; ok && e.Node.IsTrigger() {
		checks = append(checks, verify.FieldEquals{Node: e.Node.Name, Field: "parameters.path", Value: path})
	}
	return checks
}

// SetConnectionEdit overwrites the connection entry of Source.
type SetConnectionEdit struct {
	Source  string
	Targets []Target
}

func (e *SetConnectionEdit) Op() string { return "set_connection" }

func (e *SetConnectionEdit) String() string {
	return fmt.Sprintf("connect %q -> %v", e.Source, targetNames(e.Targets))
}

func (e *SetConnectionEdit) Apply(doc *workflow.Document, _ Policy) error {
	return SetConnection(doc, e.Source, e.Targets)
}

func (e *SetConnectionEdit) Expect() []verify.Check {
	return []verify.Check{verify.ConnectionTargets{Source: e.Source, Targets: targetNames(e.Targets)}}
}

// RemoveConnectionEdit drops the connection entry of Source.
type RemoveConnectionEdit struct {
	Source string
}

func (e *RemoveConnectionEdit) Op() string     { return "remove_connection" }
func (e *RemoveConnectionEdit) String() string { return fmt.Sprintf("disconnect %q", e.Source) }

func (e *RemoveConnectionEdit) Apply(doc *workflow.Document, _ Policy) error {
	return RemoveConnection(doc, e.Source)
}

func (e *RemoveConnectionEdit) Expect() []verify.Check {
	return []verify.Check{verify.ConnectionAbsent{Source: e.Source}}
}

// AddEdgeEdit adds one edge without touching the others.
type AddEdgeEdit struct {
	Source string
	Slot   int
	Target Target
}

func (e *AddEdgeEdit) Op() string { return "add_edge" }

func (e *AddEdgeEdit) String() string {
	return fmt.Sprintf("add edge %q[%d] -> %q", e.Source, e.Slot, e.Target.Node)
}

func (e *AddEdgeEdit) Apply(doc *workflow.Document, _ Policy) error {
	return AddEdge(doc, e.Source, e.Slot, e.Target)
}

func (e *AddEdgeEdit) Expect() []verify.Check {
	return []verify.Check{verify.EdgePresent{Source: e.Source, Target: e.Target.Node}}
}

// RemoveEdgeEdit removes every edge from Source to Target.
type RemoveEdgeEdit struct {
	Source string
	Target string
}

func (e *RemoveEdgeEdit) Op() string     { return "remove_edge" }
func (e *RemoveEdgeEdit) String() string { return fmt.Sprintf("remove edge %q -> %q", e.Source, e.Target) }

func (e *RemoveEdgeEdit) Apply(doc *workflow.Document, _ Policy) error {
	return RemoveEdge(doc, e.Source, e.Target)
}

func (e *RemoveEdgeEdit) Expect() []verify.Check {
	return []verify.Check{verify.EdgeAbsent{Source: e.Source, Target: e.Target}}
}

// UpdateAnnotationEdit merges Fields into a sticky note's parameters.
type UpdateAnnotationEdit struct {
	Match  workflow.Selector
	Fields map[string]any
}

func (e *UpdateAnnotationEdit) Op() string     { return "update_annotation" }
func (e *UpdateAnnotationEdit) String() string { return fmt.Sprintf("update annotation [%s]", e.Match) }

func (e *UpdateAnnotationEdit) Apply(doc *workflow.Document, _ Policy) error {
	if e.Match.Empty() {
		return errors.New("update annotation: empty selector")
	}
	return UpdateAnnotationAt(doc, e.Match, e.Fields)
}

func (e *UpdateAnnotationEdit) Expect() []verify.Check {
	var checks []verify.Check
	for _, key := range sortedKeys(e.Fields) {
		checks = append(checks, verify.SelectedField{Selector: e.Match, Field: "parameters." + key, Value: e.Fields[key], Annotation: true})
	}
	return checks
}

// AppendAnnotationsEdit appends new sticky notes.
type AppendAnnotationsEdit struct {
	Specs []AnnotationSpec

	added []*workflow.Node
}

func (e *AppendAnnotationsEdit) Op() string { return "append_annotations" }

func (e *AppendAnnotationsEdit) String() string {
	return fmt.Sprintf("append %d annotation(s)", len(e.Specs))
}

func (e *AppendAnnotationsEdit) Apply(doc *workflow.Document, _ Policy) error {
	e.added = AppendAnnotations(doc, e.Specs)
	return nil
}

// Expect checks generated ids once applied, names otherwise.
func (e *AppendAnnotationsEdit) Expect() []verify.Check {
	var checks []verify.Check
	if len(e.added) == 0 {
		for _, spec := range e.Specs {
			checks = append(checks, verify.NodePresent{Name: spec.Name})
		}
		return checks
	}
	for _, n := range e.added {
		checks = append(checks, verify.SelectedField{
			Selector:   workflow.Selector{ID: n.ID},
			Field:      "parameters.content",
			Value:      n.Parameters["content"],
			Annotation: true,
		})
	}
	return checks
}

// Added returns the nodes created by the last Apply.
func (e *AppendAnnotationsEdit) Added() []*workflow.Node {
	return e.added
}

// SyncCodeEdit copies source code into a code node's jsCode parameter.
type SyncCodeEdit struct {
	Node   string
	Code   string
	Origin string // where the code came from, for messages

	skipped bool
}

func (e *SyncCodeEdit) Op() string { return "sync_code" }

func (e *SyncCodeEdit) String() string {
	if e.Origin != "" {
		return fmt.Sprintf("sync %q <- %s", e.Node, e.Origin)
	}
	return fmt.Sprintf("sync %q", e.Node)
}

func (e *SyncCodeEdit) Apply(doc *workflow.Document, _ Policy) error {
	err := SyncCode(doc, e.Node, e.Code)
	e.skipped = errors.Is(err, ErrNoCodeParameter) || workflow.IsNotFound(err)
	return err
}

// Expect is empty when the node could not take code, since nothing was
// meant to change.
func (e *SyncCodeEdit) Expect() []verify.Check {
	if e.skipped {
		return nil
	}
	return []verify.Check{verify.FieldEquals{Node: e.Node, Field: "parameters.jsCode", Value: e.Code}}
}

func targetNames(targets []Target) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Node
	}
	return names
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

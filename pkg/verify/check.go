// Package verify re-derives facts from a workflow document and compares them
// with an expected-state checklist. Mismatches are collected, never raised.
package verify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Finding records one evaluated check. Expected and Actual are only filled
// for failures.
type Finding struct {
	Check    string `json:"check"`
	Status   Status `json:"status"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Check is a single expected fact about a document.
type Check interface {
	// Key identifies the subject. A later check with the same key replaces
	// an earlier one in a Checklist.
	Key() string
	Describe() string
	Evaluate(doc *workflow.Document) Finding
}

func pass(c Check) Finding {
	return Finding{Check: c.Describe(), Status: StatusPass}
}

func fail(c Check, expected, actual string) Finding {
	return Finding{Check: c.Describe(), Status: StatusFail, Expected: expected, Actual: actual}
}

func nodeKey(name string) string { return "node:" + name }

// NodePresent expects at least one node named Name.
type NodePresent struct{ Name string }

func (c NodePresent) Key() string      { return nodeKey(c.Name) }
func (c NodePresent) Describe() string { return fmt.Sprintf("node %q present", c.Name) }

func (c NodePresent) Evaluate(doc *workflow.Document) Finding {
	if doc.HasNode(c.Name) {
		return pass(c)
	}
	return fail(c, "present", "absent")
}

// NodeAbsent expects no node named Name.
type NodeAbsent struct{ Name string }

func (c NodeAbsent) Key() string      { return nodeKey(c.Name) }
func (c NodeAbsent) Describe() string { return fmt.Sprintf("node %q absent", c.Name) }

func (c NodeAbsent) Evaluate(doc *workflow.Document) Finding {
	if n := doc.CountNamed(c.Name); n > 0 {
		return fail(c, "absent", fmt.Sprintf("%d node(s)", n))
	}
	return pass(c)
}

// ConnectionTargets expects the entry keyed by Source to reach exactly
// Targets, in order, across all output slots.
type ConnectionTargets struct {
	Source  string
	Targets []string
}

func (c ConnectionTargets) Key() string { return "connection:" + c.Source }

func (c ConnectionTargets) Describe() string {
	return fmt.Sprintf("connections from %q -> %s", c.Source, formatList(c.Targets))
}

func (c ConnectionTargets) Evaluate(doc *workflow.Document) Finding {
	if _, ok := doc.Connections[c.Source]; !ok {
		return fail(c, formatList(c.Targets), "no connection entry")
	}
	got := doc.Connections.Targets(c.Source)
	if !equalStrings(got, c.Targets) {
		return fail(c, formatList(c.Targets), formatList(got))
	}
	return pass(c)
}

// ConnectionAbsent expects no connection entry keyed by Source.
type ConnectionAbsent struct{ Source string }

func (c ConnectionAbsent) Key() string      { return "connection:" + c.Source }
func (c ConnectionAbsent) Describe() string { return fmt.Sprintf("no connections from %q", c.Source) }

func (c ConnectionAbsent) Evaluate(doc *workflow.Document) Finding {
	if _, ok := doc.Connections[c.Source]; ok {
		return fail(c, "absent", formatList(doc.Connections.Targets(c.Source)))
	}
	return pass(c)
}

// FieldEquals expects the first node named Node to hold Value at Field, a
// dotted path such as "parameters.path" or "webhookId".
type FieldEquals struct {
	Node  string
	Field string
	Value any
}

func (c FieldEquals) Key() string { return nodeKey(c.Node) + "/field:" + c.Field }

func (c FieldEquals) Describe() string {
	return fmt.Sprintf("node %q %s = %s", c.Node, c.Field, formatValue(c.Value))
}

func (c FieldEquals) Evaluate(doc *workflow.Document) Finding {
	node, _ := doc.NodeByName(c.Node)
	if node == nil {
		return fail(c, formatValue(c.Value), "node absent")
	}
	got, ok := node.Field(c.Field)
	if !ok {
		return fail(c, formatValue(c.Value), "field absent")
	}
	if !workflow.ValuesEqual(got, c.Value) {
		return fail(c, formatValue(c.Value), formatValue(got))
	}
	return pass(c)
}

// NodeCount expects the document to hold exactly Count nodes.
type NodeCount struct{ Count int }

func (c NodeCount) Key() string      { return "node_count" }
func (c NodeCount) Describe() string { return fmt.Sprintf("%d nodes", c.Count) }

func (c NodeCount) Evaluate(doc *workflow.Document) Finding {
	if len(doc.Nodes) != c.Count {
		return fail(c, fmt.Sprint(c.Count), fmt.Sprint(len(doc.Nodes)))
	}
	return pass(c)
}

// NoDanglingReferences expects no duplicate names, no connection entry keyed
// by a missing node and no edge targeting a missing node.
type NoDanglingReferences struct{}

func (NoDanglingReferences) Key() string      { return "integrity" }
func (NoDanglingReferences) Describe() string { return "no dangling references" }

func (c NoDanglingReferences) Evaluate(doc *workflow.Document) Finding {
	issues := doc.Integrity()
	if len(issues) == 0 {
		return pass(c)
	}
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return fail(c, "none", strings.Join(parts, "; "))
}

func formatList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	const max = 80
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EdgePresent expects an edge from Source to Target in any output slot.
type EdgePresent struct {
	Source string
	Target string
}

func (c EdgePresent) Key() string      { return "connection:" + c.Source + "/edge:" + c.Target }
func (c EdgePresent) Describe() string { return fmt.Sprintf("edge %q -> %q present", c.Source, c.Target) }

func (c EdgePresent) Evaluate(doc *workflow.Document) Finding {
	for _, t := range doc.Connections.Targets(c.Source) {
		if t == c.Target {
			return pass(c)
		}
	}
	return fail(c, "present", formatList(doc.Connections.Targets(c.Source)))
}

// EdgeAbsent expects no edge from Source to Target.
type EdgeAbsent struct {
	Source string
	Target string
}

func (c EdgeAbsent) Key() string      { return "connection:" + c.Source + "/edge:" + c.Target }
func (c EdgeAbsent) Describe() string { return fmt.Sprintf("edge %q -> %q absent", c.Source, c.Target) }

func (c EdgeAbsent) Evaluate(doc *workflow.Document) Finding {
	for _, t := range doc.Connections.Targets(c.Source) {
		if t == c.Target {
			return fail(c, "absent", "present")
		}
	}
	return pass(c)
}

// SelectedField expects the node found by Selector to hold Value at Field.
// It is used where names are not unique. With Annotation set only sticky
// notes are considered, matching how annotation edits select their node.
type SelectedField struct {
	Selector   workflow.Selector
	Field      string
	Value      any
	Annotation bool
}

func (c SelectedField) Key() string {
	prefix := "select:"
	if c.Annotation {
		prefix = "annotation:"
	}
	return prefix + c.Selector.String() + "/field:" + c.Field
}

func (c SelectedField) Describe() string {
	kind := "node"
	if c.Annotation {
		kind = "annotation"
	}
	return fmt.Sprintf("%s [%s] %s = %s", kind, c.Selector, c.Field, formatValue(c.Value))
}

func (c SelectedField) Evaluate(doc *workflow.Document) Finding {
	var filter func(*workflow.Node) bool
	if c.Annotation {
		filter = (*workflow.Node).IsAnnotation
	}
	node := doc.Find(c.Selector, filter)
	if node == nil {
		return fail(c, formatValue(c.Value), "no matching node")
	}
	got, ok := node.Field(c.Field)
	if !ok {
		return fail(c, formatValue(c.Value), "field absent")
	}
	if !workflow.ValuesEqual(got, c.Value) {
		return fail(c, formatValue(c.Value), formatValue(got))
	}
	return pass(c)
}

// InboundAbsent expects no edge anywhere to target Node.
type InboundAbsent struct{ Node string }

func (c InboundAbsent) Key() string      { return "inbound:" + c.Node }
func (c InboundAbsent) Describe() string { return fmt.Sprintf("no edges into %q", c.Node) }

func (c InboundAbsent) Evaluate(doc *workflow.Document) Finding {
	sources := make([]string, 0, len(doc.Connections))
	for source := range doc.Connections {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var from []string
	for _, source := range sources {
		for _, t := range doc.Connections.Targets(source) {
			if t == c.Node {
				from = append(from, source)
				break
			}
		}
	}
	if len(from) > 0 {
		return fail(c, "none", "edges from "+formatList(from))
	}
	return pass(c)
}

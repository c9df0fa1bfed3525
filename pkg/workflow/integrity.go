package workflow

import (
	"fmt"
	"sort"
)

// IssueKind classifies a referential integrity problem.
type IssueKind string

const (
	IssueDuplicateName  IssueKind = "duplicate_name"
	IssueDanglingSource IssueKind = "dangling_source"
	IssueDanglingTarget IssueKind = "dangling_target"
)

// Issue is one integrity problem found in a document.
type Issue struct {
	Kind   IssueKind
	Node   string // duplicated name, or connection source
	Target string // only for dangling targets
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueDuplicateName:
		return fmt.Sprintf("node name %q is used more than once", i.Node)
	case IssueDanglingSource:
		return fmt.Sprintf("connection source %q has no node", i.Node)
	case IssueDanglingTarget:
		return fmt.Sprintf("edge %q -> %q targets a missing node", i.Node, i.Target)
	}
	return string(i.Kind)
}

// Integrity lists duplicate names, connection entries keyed by a missing
// node, and edges pointing at missing nodes. Order is deterministic.
// Annotation nodes are excluded from the duplicate check since nothing
// references them by name.
func (d *Document) Integrity() []Issue {
	var issues []Issue

	names := make(map[string]int, len(d.Nodes))
	for _, n := range d.Nodes {
		names[n.Name]++
	}
	seenDup := make(map[string]bool)
	for _, n := range d.Nodes {
		if n.IsAnnotation() || names[n.Name] < 2 || seenDup[n.Name] {
			continue
		}
		seenDup[n.Name] = true
		issues = append(issues, Issue{Kind: IssueDuplicateName, Node: n.Name})
	}

	sources := make([]string, 0, len(d.Connections))
	for source := range d.Connections {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		if names[source] == 0 {
			issues = append(issues, Issue{Kind: IssueDanglingSource, Node: source})
		}
		seen := make(map[string]bool)
		for _, target := range d.Connections.Targets(source) {
			if names[target] == 0 && !seen[target] {
				seen[target] = true
				issues = append(issues, Issue{Kind: IssueDanglingTarget, Node: source, Target: target})
			}
		}
	}
	return issues
}

package workflow

import (
	"fmt"
	"strings"
)

// Selector locates a node by stable id, then by name, then by position.
// Position matching only exists for legacy documents whose target nodes
// carry no usable id or name.
type Selector struct {
	ID       string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Position []float64 `json:"position,omitempty" yaml:"position,omitempty"`
}

// Empty reports whether the selector has no criteria.
func (s Selector) Empty() bool {
	return s.ID == "" && s.Name == "" && len(s.Position) == 0
}

func (s Selector) String() string {
	var parts []string
	if s.ID != "" {
		parts = append(parts, "id="+s.ID)
	}
	if s.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%q", s.Name))
	}
	if len(s.Position) > 0 {
		parts = append(parts, fmt.Sprintf("position=%v", s.Position))
	}
	if len(parts) == 0 {
		return "<any>"
	}
	return strings.Join(parts, " ")
}

// Find returns the first node accepted by filter (nil accepts all) that the
// selector matches. Each criterion is tried over the whole document before
// falling back to the next one.
func (d *Document) Find(s Selector, filter func(*Node) bool) *Node {
	accept := func(n *Node) bool { return filter == nil || filter(n) }

	if s.ID != "" {
		for _, n := range d.Nodes {
			if n.ID == s.ID && accept(n) {
				return n
			}
		}
	}
	if s.Name != "" {
		for _, n := range d.Nodes {
			if n.Name == s.Name && accept(n) {
				return n
			}
		}
	}
	if len(s.Position) > 0 {
		for _, n := range d.Nodes {
			if SamePosition(n.Position, s.Position) && accept(n) {
				return n
			}
		}
	}
	return nil
}

// SamePosition compares two coordinates exactly.
func SamePosition(a, b []float64) bool {
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

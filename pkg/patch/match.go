package patch

import (
	"fmt"
	"strings"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// Predicate selects nodes. It carries a description so not-found errors can
// say what was looked for.
type Predicate struct {
	fn   func(n *workflow.Node) bool
	desc string
}

// Where wraps an arbitrary function as a predicate.
func Where(desc string, fn func(n *workflow.Node) bool) Predicate {
	return Predicate{fn: fn, desc: desc}
}

// Match reports whether n is selected. The zero Predicate matches nothing.
func (p Predicate) Match(n *workflow.Node) bool {
	return p.fn != nil && p.fn(n)
}

func (p Predicate) String() string {
	if p.desc == "" {
		return "<predicate>"
	}
	return p.desc
}

// ByID matches the node with the given stable id.
func ByID(id string) Predicate {
	return Where("id="+id, func(n *workflow.Node) bool { return n.ID == id })
}

// ByName matches nodes named name.
func ByName(name string) Predicate {
	return Where(fmt.Sprintf("name=%q", name), func(n *workflow.Node) bool { return n.Name == name })
}

// ByPosition matches nodes at exactly (x, y). Prefer ByID: positions change
// whenever the canvas is rearranged.
func ByPosition(x, y float64) Predicate {
	want := []float64{x, y}
	return Where(fmt.Sprintf("position=%v", want), func(n *workflow.Node) bool {
		return workflow.SamePosition(n.Position, want)
	})
}

// ByType matches nodes of the given type.
func ByType(typ string) Predicate {
	return Where("type="+typ, func(n *workflow.Node) bool { return n.Type == typ })
}

// All matches nodes accepted by every predicate.
func All(preds ...Predicate) Predicate {
	descs := make([]string, len(preds))
	for i, p := range preds {
		descs[i] = p.String()
	}
	return Where(strings.Join(descs, " "), func(n *workflow.Node) bool {
		for _, p := range preds {
			if !p.Match(n) {
				return false
			}
		}
		return true
	})
}

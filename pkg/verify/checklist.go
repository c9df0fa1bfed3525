package verify

import "strings"

// Checklist is an ordered set of checks keyed by subject. Adding a check for
// a subject already present replaces the earlier check in place. Adding a
// check that settles a whole subject (NodeAbsent, ConnectionTargets,
// ConnectionAbsent) drops the finer checks recorded under it.
//
// Edge checks refine a connection: a ConnectionTargets check for the same
// source is split into one EdgePresent per target, and an EdgePresent
// retires a ConnectionAbsent. InboundAbsent removes its node from every
// expected target list until a later check expects an edge into it again.
type Checklist struct {
	checks []Check
}

// NewChecklist builds a checklist from checks, in order.
func NewChecklist(checks ...Check) *Checklist {
	c := &Checklist{}
	c.Add(checks...)
	return c
}

// Add appends checks, replacing any with the same key.
func (c *Checklist) Add(checks ...Check) {
	for _, check := range checks {
		key := check.Key()
		switch ch := check.(type) {
		case NodeAbsent, ConnectionAbsent:
			c.dropPrefix(key + "/")
		case ConnectionTargets:
			c.dropPrefix(key + "/")
			for _, t := range ch.Targets {
				c.dropKey(InboundAbsent{Node: t}.Key())
			}
		case EdgePresent:
			c.splitConnection(ch.Source, true)
			c.dropKey(InboundAbsent{Node: ch.Target}.Key())
		case EdgeAbsent:
			c.splitConnection(ch.Source, false)
		case InboundAbsent:
			c.pruneTarget(ch.Node)
		}

		replaced := false
		for i, existing := range c.checks {
			if existing.Key() == key {
				c.checks[i] = check
				replaced = true
				break
			}
		}
		if !replaced {
			c.checks = append(c.checks, check)
		}
	}
}

// Merge adds every check of other.
func (c *Checklist) Merge(other *Checklist) {
	if other == nil {
		return
	}
	c.Add(other.checks...)
}

func (c *Checklist) dropPrefix(prefix string) {
	kept := c.checks[:0]
	for _, check := range c.checks {
		if !strings.HasPrefix(check.Key(), prefix) {
			kept = append(kept, check)
		}
	}
	c.checks = kept
}

func (c *Checklist) dropKey(key string) {
	for i, check := range c.checks {
		if check.Key() == key {
			c.checks = append(c.checks[:i], c.checks[i+1:]...)
			return
		}
	}
}

// splitConnection replaces the whole-entry check of source with per-edge
// checks. An added edge also invalidates ConnectionAbsent.
func (c *Checklist) splitConnection(source string, adding bool) {
	key := ConnectionTargets{Source: source}.Key()
	for i, existing := range c.checks {
		if existing.Key() != key {
			continue
		}
		var edges []Check
		switch ex := existing.(type) {
		case ConnectionTargets:
			seen := make(map[string]bool, len(ex.Targets))
			for _, t := range ex.Targets {
				if !seen[t] {
					seen[t] = true
					edges = append(edges, EdgePresent{Source: source, Target: t})
				}
			}
		case ConnectionAbsent:
			if !adding {
				return
			}
		}
		rest := append(edges, c.checks[i+1:]...)
		c.checks = append(c.checks[:i], rest...)
		return
	}
}

// pruneTarget drops node from expected targets once its inbound edges are
// gone.
func (c *Checklist) pruneTarget(node string) {
	kept := c.checks[:0]
	for _, check := range c.checks {
		switch ch := check.(type) {
		case ConnectionTargets:
			targets := make([]string, 0, len(ch.Targets))
			for _, t := range ch.Targets {
				if t != node {
					targets = append(targets, t)
				}
			}
			check = ConnectionTargets{Source: ch.Source, Targets: targets}
		case EdgePresent:
			if ch.Target == node {
				continue
			}
		}
		kept = append(kept, check)
	}
	c.checks = kept
}

// Checks returns the checks in order.
func (c *Checklist) Checks() []Check {
	out := make([]Check, len(c.checks))
	copy(out, c.checks)
	return out
}

func (c *Checklist) Len() int { return len(c.checks) }

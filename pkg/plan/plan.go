// Package plan reads declarative patch plans. A plan is a YAML file listing
// edits in order plus optional explicit checks:
//
//	version: 1
//	edits:
//	  - op: rename_node
//	    from: Webhook Trigger
//	    to: "Phase 1: Discovery"
//	checks:
//	  - node_count: 42
//
// Paths inside a plan (sync_code files) are relative to the plan file.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/flowpatch/pkg/patch"
	"github.com/dd0wney/flowpatch/pkg/validation"
	"github.com/dd0wney/flowpatch/pkg/verify"
)

// ErrInvalid is matched by every plan decoding or validation error.
var ErrInvalid = errors.New("invalid plan")

// Error describes a problem in a plan file. Step is 1-based and zero for
// problems outside the edit list.
type Error struct {
	Path string
	Step int
	Line int
	Err  error
}

func (e *Error) Error() string {
	where := e.Path
	if where == "" {
		where = "plan"
	}
	switch {
	case e.Step > 0 && e.Line > 0:
		return fmt.Sprintf("%s: edit %d (line %d): %v", where, e.Step, e.Line, e.Err)
	case e.Step > 0:
		return fmt.Sprintf("%s: edit %d: %v", where, e.Step, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s: line %d: %v", where, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrInvalid }

// Plan is a decoded plan file.
type Plan struct {
	Version     int         `yaml:"version" validate:"omitempty,eq=1"`
	Description string      `yaml:"description"`
	Steps       []Step      `yaml:"edits" validate:"required,min=1"`
	Checks      []CheckSpec `yaml:"checks"`

	path    string
	baseDir string
}

// Load reads and validates the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data, filepath.Dir(path))
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	p.path = path
	return p, nil
}

// Parse decodes and validates a plan. Relative file references resolve
// against baseDir.
func Parse(data []byte, baseDir string) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Err: errors.New("empty plan")}
		}
		var pe *Error
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &Error{Err: err}
	}
	if err := validation.Struct(&p); err != nil {
		return nil, &Error{Err: err}
	}
	for i, step := range p.Steps {
		if err := step.validate(); err != nil {
			return nil, &Error{Step: i + 1, Line: step.Line, Err: err}
		}
	}
	for i, c := range p.Checks {
		if _, err := c.check(); err != nil {
			return nil, &Error{Err: fmt.Errorf("check %d: %w", i+1, err)}
		}
	}
	p.baseDir = baseDir
	return &p, nil
}

// Path returns the file the plan was loaded from, if any.
func (p *Plan) Path() string {
	return p.path
}

// Edits builds the plan's edits. Each call returns fresh values, so edits
// from one call must not be shared between engine runs.
func (p *Plan) Edits() ([]patch.Edit, error) {
	edits := make([]patch.Edit, 0, len(p.Steps))
	for i, step := range p.Steps {
		edit, err := step.spec.edit(p.baseDir)
		if err != nil {
			return nil, &Error{Path: p.path, Step: i + 1, Line: step.Line, Err: err}
		}
		edits = append(edits, edit)
	}
	return edits, nil
}

// Checklist returns the expectations derived from edits followed by the
// plan's explicit checks. Pass the edits that were applied so generated ids
// are checked.
func (p *Plan) Checklist(edits []patch.Edit) *verify.Checklist {
	list := patch.Expectations(edits)
	for _, c := range p.Checks {
		check, err := c.check()
		if err != nil {
			// Parse already rejected malformed checks.
			continue
		}
		list.Add(check)
	}
	return list
}

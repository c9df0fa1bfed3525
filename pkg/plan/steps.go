package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/flowpatch/pkg/patch"
	"github.com/dd0wney/flowpatch/pkg/validation"
	"github.com/dd0wney/flowpatch/pkg/verify"
	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// Default sticky note size, matching what the editor creates.
const (
	defaultNoteWidth  = 240
	defaultNoteHeight = 160
)

type stepSpec interface {
	edit(baseDir string) (patch.Edit, error)
}

var stepTypes = map[string]func() stepSpec{
	"rename_node":        func() stepSpec { return &renameSpec{} },
	"remove_node":        func() stepSpec { return &removeNodeSpec{} },
	"add_node":           func() stepSpec { return &addNodeSpec{} },
	"set_connection":     func() stepSpec { return &setConnectionSpec{} },
	"remove_connection":  func() stepSpec { return &removeConnectionSpec{} },
	"add_edge":           func() stepSpec { return &addEdgeSpec{} },
	"remove_edge":        func() stepSpec { return &removeEdgeSpec{} },
	"update_annotation":  func() stepSpec { return &updateAnnotationSpec{} },
	"append_annotations": func() stepSpec { return &appendAnnotationsSpec{} },
	"sync_code":          func() stepSpec { return &syncCodeSpec{} },
}

// Ops returns the supported op names, sorted.
func Ops() []string {
	ops := make([]string, 0, len(stepTypes))
	for op := range stepTypes {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Step is one entry of the edit list.
type Step struct {
	Op   string
	Line int

	spec stepSpec
}

// UnmarshalYAML decodes the op-specific fields of a step. Unknown keys are
// rejected so typos do not silently turn into no-ops.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Op string `yaml:"op"`
	}
	if err := value.Decode(&head); err != nil {
		return &Error{Line: value.Line, Err: err}
	}
	if head.Op == "" {
		return &Error{Line: value.Line, Err: errors.New("op: field is required")}
	}
	factory, ok := stepTypes[head.Op]
	if !ok {
		return &Error{Line: value.Line, Err: fmt.Errorf("unknown op %q (want one of %s)", head.Op, strings.Join(Ops(), ", "))}
	}

	raw, err := yaml.Marshal(value)
	if err != nil {
		return &Error{Line: value.Line, Err: err}
	}
	spec := factory()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(spec); err != nil {
		return &Error{Line: value.Line, Err: fmt.Errorf("%s: %w", head.Op, err)}
	}

	s.Op = head.Op
	s.Line = value.Line
	s.spec = spec
	return nil
}

func (s Step) validate() error {
	if s.spec == nil {
		return errors.New("empty edit")
	}
	if err := validation.Struct(s.spec); err != nil {
		return fmt.Errorf("%s: %w", s.Op, err)
	}
	if v, ok := s.spec.(interface{ check() error }); ok {
		if err := v.check(); err != nil {
			return fmt.Errorf("%s: %w", s.Op, err)
		}
	}
	return nil
}

// header is the op key shared by every step.
type header struct {
	Op string `yaml:"op"`
}

type targetSpec struct {
	Node  string `yaml:"node" validate:"required,nodename"`
	Type  string `yaml:"type"`
	Index int    `yaml:"index" validate:"gte=0"`
}

func (t targetSpec) target() patch.Target {
	return patch.Target{Node: t.Node, Type: t.Type, Index: t.Index}
}

type renameSpec struct {
	header     `yaml:",inline"`
	From       string         `yaml:"from" validate:"required,nodename"`
	To         string         `yaml:"to" validate:"required,nodename"`
	Parameters map[string]any `yaml:"parameters"`
	WebhookID  *string        `yaml:"webhook_id"`
	Position   []float64      `yaml:"position" validate:"omitempty,position"`
}

func (s *renameSpec) check() error {
	for key := range s.Parameters {
		if err := validation.ValidateFieldPath(key); err != nil {
			return fmt.Errorf("parameters: %w", err)
		}
	}
	return nil
}

func (s *renameSpec) edit(string) (patch.Edit, error) {
	return &patch.RenameNodeEdit{
		From: s.From,
		To:   s.To,
		Updates: patch.FieldUpdates{
			Parameters: s.Parameters,
			WebhookID:  s.WebhookID,
			Position:   s.Position,
		},
	}, nil
}

type removeNodeSpec struct {
	header       `yaml:",inline"`
	Name         string `yaml:"name" validate:"required,nodename"`
	PruneInbound bool   `yaml:"prune_inbound"`
}

func (s *removeNodeSpec) edit(string) (patch.Edit, error) {
	return &patch.RemoveNodeEdit{Name: s.Name, PruneInbound: s.PruneInbound}, nil
}

type nodeSpec struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name" validate:"required,nodename"`
	Type        string         `yaml:"type" validate:"required,nodetype"`
	TypeVersion string         `yaml:"type_version" validate:"omitempty,numeric"`
	Position    []float64      `yaml:"position" validate:"omitempty,position"`
	Parameters  map[string]any `yaml:"parameters"`
	WebhookID   string         `yaml:"webhook_id"`
	// Extra holds further top-level node keys such as credentials.
	Extra map[string]any `yaml:"extra"`
}

func (s *nodeSpec) node() (*workflow.Node, error) {
	n := &workflow.Node{
		ID:          s.ID,
		Name:        s.Name,
		Type:        s.Type,
		TypeVersion: json.Number(s.TypeVersion),
		Position:    s.Position,
		Parameters:  s.Parameters,
		WebhookID:   s.WebhookID,
	}
	if n.Parameters == nil {
		n.Parameters = map[string]any{}
	}
	if len(s.Extra) > 0 {
		n.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for key, value := range s.Extra {
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("extra %s: %w", key, err)
			}
			n.Extra[key] = raw
		}
	}
	// Round trip through the codec so parameter numbers and extras take
	// the same shape as a loaded document.
	return n.Clone()
}

type addNodeSpec struct {
	header       `yaml:",inline"`
	Node         nodeSpec `yaml:"node"`
	SkipExisting *bool    `yaml:"skip_existing"`
}

func (s *addNodeSpec) edit(string) (patch.Edit, error) {
	node, err := s.Node.node()
	if err != nil {
		return nil, err
	}
	// Plans are meant to be re-run, so an existing node is skipped unless
	// the plan says otherwise.
	skip := true
	if s.SkipExisting != nil {
		skip = *s.SkipExisting
	}
	return &patch.AddNodeEdit{Node: node, SkipExisting: skip}, nil
}

type setConnectionSpec struct {
	header  `yaml:",inline"`
	Source  string       `yaml:"source" validate:"required,nodename"`
	Targets []targetSpec `yaml:"targets" validate:"required,min=1,dive"`
}

func (s *setConnectionSpec) edit(string) (patch.Edit, error) {
	targets := make([]patch.Target, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = t.target()
	}
	return &patch.SetConnectionEdit{Source: s.Source, Targets: targets}, nil
}

type removeConnectionSpec struct {
	header `yaml:",inline"`
	Source string `yaml:"source" validate:"required,nodename"`
}

func (s *removeConnectionSpec) edit(string) (patch.Edit, error) {
	return &patch.RemoveConnectionEdit{Source: s.Source}, nil
}

type addEdgeSpec struct {
	header `yaml:",inline"`
	Source string     `yaml:"source" validate:"required,nodename"`
	Slot   int        `yaml:"slot" validate:"gte=0"`
	Target targetSpec `yaml:"target"`
}

func (s *addEdgeSpec) edit(string) (patch.Edit, error) {
	return &patch.AddEdgeEdit{Source: s.Source, Slot: s.Slot, Target: s.Target.target()}, nil
}

type removeEdgeSpec struct {
	header `yaml:",inline"`
	Source string `yaml:"source" validate:"required,nodename"`
	Target string `yaml:"target" validate:"required,nodename"`
}

func (s *removeEdgeSpec) edit(string) (patch.Edit, error) {
	return &patch.RemoveEdgeEdit{Source: s.Source, Target: s.Target}, nil
}

type updateAnnotationSpec struct {
	header `yaml:",inline"`
	Match  workflow.Selector `yaml:"match"`
	Fields map[string]any    `yaml:"fields" validate:"required,min=1"`
}

func (s *updateAnnotationSpec) check() error {
	if s.Match.Empty() {
		return errors.New("match: needs id, name or position")
	}
	if len(s.Match.Position) > 0 {
		if err := validation.ValidatePosition(s.Match.Position); err != nil {
			return fmt.Errorf("match.position: %w", err)
		}
	}
	for key := range s.Fields {
		if err := validation.ValidateFieldPath(key); err != nil {
			return fmt.Errorf("fields: %w", err)
		}
	}
	return nil
}

func (s *updateAnnotationSpec) edit(string) (patch.Edit, error) {
	return &patch.UpdateAnnotationEdit{Match: s.Match, Fields: s.Fields}, nil
}

type annotationSpec struct {
	Name     string    `yaml:"name" validate:"required,nodename"`
	Content  string    `yaml:"content"`
	Position []float64 `yaml:"position" validate:"required,position"`
	Width    int       `yaml:"width" validate:"gte=0"`
	Height   int       `yaml:"height" validate:"gte=0"`
	Color    int       `yaml:"color" validate:"gte=0,max=7"`
}

type appendAnnotationsSpec struct {
	header      `yaml:",inline"`
	Annotations []annotationSpec `yaml:"annotations" validate:"required,min=1,dive"`
}

func (s *appendAnnotationsSpec) edit(string) (patch.Edit, error) {
	specs := make([]patch.AnnotationSpec, len(s.Annotations))
	for i, a := range s.Annotations {
		specs[i] = patch.AnnotationSpec{
			Name:     a.Name,
			Content:  a.Content,
			Position: a.Position,
			Width:    validation.DefaultOr(a.Width, defaultNoteWidth),
			Height:   validation.DefaultOr(a.Height, defaultNoteHeight),
			Color:    a.Color,
		}
	}
	return &patch.AppendAnnotationsEdit{Specs: specs}, nil
}

type syncCodeSpec struct {
	header `yaml:",inline"`
	Node   string `yaml:"node" validate:"required,nodename"`
	File   string `yaml:"file" validate:"required"`
}

func (s *syncCodeSpec) edit(baseDir string) (patch.Edit, error) {
	path := s.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	code, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &missingFileEdit{node: s.Node, path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read code file: %w", err)
	}
	return &patch.SyncCodeEdit{Node: s.Node, Code: string(code), Origin: s.File}, nil
}

// missingFileEdit stands in for a code sync whose source file is gone. It
// is skipped like any other missing target.
type missingFileEdit struct {
	node string
	path string
}

func (e *missingFileEdit) Op() string     { return "sync_code" }
func (e *missingFileEdit) String() string { return fmt.Sprintf("sync %q <- %s", e.node, e.path) }

func (e *missingFileEdit) Apply(*workflow.Document, patch.Policy) error {
	return workflow.NotFound("code file", e.path)
}

func (e *missingFileEdit) Expect() []verify.Check { return nil }

package plan

import (
	"errors"
	"fmt"

	"github.com/dd0wney/flowpatch/pkg/validation"
	"github.com/dd0wney/flowpatch/pkg/verify"
	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// CheckSpec is one explicit check. Exactly one key must be set.
type CheckSpec struct {
	NodePresent       string             `yaml:"node_present"`
	NodeAbsent        string             `yaml:"node_absent"`
	ConnectionTargets *connectionTargets `yaml:"connection_targets"`
	ConnectionAbsent  string             `yaml:"connection_absent"`
	EdgePresent       *edgeRef           `yaml:"edge_present"`
	EdgeAbsent        *edgeRef           `yaml:"edge_absent"`
	FieldEquals       *fieldEquals       `yaml:"field_equals"`
	AnnotationField   *annotationField   `yaml:"annotation_field"`
	NodeCount         *int               `yaml:"node_count"`
	NoDangling        bool               `yaml:"no_dangling"`
}

type connectionTargets struct {
	Source  string   `yaml:"source" validate:"required,nodename"`
	Targets []string `yaml:"targets"`
}

type edgeRef struct {
	Source string `yaml:"source" validate:"required,nodename"`
	Target string `yaml:"target" validate:"required,nodename"`
}

type fieldEquals struct {
	Node  string `yaml:"node" validate:"required,nodename"`
	Field string `yaml:"field" validate:"required,fieldpath"`
	Value any    `yaml:"value"`
}

type annotationField struct {
	Match workflow.Selector `yaml:"match"`
	Field string            `yaml:"field" validate:"required,fieldpath"`
	Value any               `yaml:"value"`
}

// check converts the spec into a verify.Check.
func (c CheckSpec) check() (verify.Check, error) {
	var (
		found []verify.Check
		err   error
	)
	add := func(check verify.Check, v any) {
		if v != nil && err == nil {
			err = validation.Struct(v)
		}
		found = append(found, check)
	}

	if c.NodePresent != "" {
		add(verify.NodePresent{Name: c.NodePresent}, nil)
	}
	if c.NodeAbsent != "" {
		add(verify.NodeAbsent{Name: c.NodeAbsent}, nil)
	}
	if c.ConnectionTargets != nil {
		add(verify.ConnectionTargets{Source: c.ConnectionTargets.Source, Targets: c.ConnectionTargets.Targets}, c.ConnectionTargets)
	}
	if c.ConnectionAbsent != "" {
		add(verify.ConnectionAbsent{Source: c.ConnectionAbsent}, nil)
	}
	if c.EdgePresent != nil {
		add(verify.EdgePresent{Source: c.EdgePresent.Source, Target: c.EdgePresent.Target}, c.EdgePresent)
	}
	if c.EdgeAbsent != nil {
		add(verify.EdgeAbsent{Source: c.EdgeAbsent.Source, Target: c.EdgeAbsent.Target}, c.EdgeAbsent)
	}
	if c.FieldEquals != nil {
		add(verify.FieldEquals{Node: c.FieldEquals.Node, Field: c.FieldEquals.Field, Value: c.FieldEquals.Value}, c.FieldEquals)
	}
	if c.AnnotationField != nil {
		if c.AnnotationField.Match.Empty() {
			err = errors.New("annotation_field.match: needs id, name or position")
		}
		add(verify.SelectedField{Selector: c.AnnotationField.Match, Field: c.AnnotationField.Field, Value: c.AnnotationField.Value, Annotation: true}, c.AnnotationField)
	}
	if c.NodeCount != nil {
		if *c.NodeCount < 0 {
			err = fmt.Errorf("node_count: must be non-negative, got %d", *c.NodeCount)
		}
		add(verify.NodeCount{Count: *c.NodeCount}, nil)
	}
	if c.NoDangling {
		add(verify.NoDanglingReferences{}, nil)
	}

	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, errors.New("no check key set")
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%d check keys set, want exactly one", len(found))
	}
}

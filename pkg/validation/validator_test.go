package validation

import (
	"math"
	"strings"
	"testing"
)

type testNode struct {
	Name     string    `yaml:"name" validate:"required,nodename"`
	Type     string    `yaml:"type" validate:"required,nodetype"`
	Position []float64 `yaml:"position" validate:"omitempty,position"`
}

type testStep struct {
	Op    string    `yaml:"op" validate:"required,oneof=rename remove"`
	Field string    `yaml:"field" validate:"omitempty,fieldpath"`
	Node  *testNode `yaml:"node" validate:"omitempty"`
	Slot  int       `yaml:"slot" validate:"gte=0"`
}

// TestStruct tests struct tag validation and error formatting
func TestStruct(t *testing.T) {
	tests := []struct {
		name        string
		step        testStep
		expectError bool
		errorField  string
	}{
		{
			name:        "Valid step",
			step:        testStep{Op: "rename", Field: "parameters.path"},
			expectError: false,
		},
		{
			name: "Valid nested node",
			step: testStep{
				Op:   "remove",
				Node: &testNode{Name: "Phase 1: Discovery", Type: "n8n-nodes-base.webhook", Position: []float64{-6752, 304}},
			},
			expectError: false,
		},
		{
			name:        "Missing op - invalid",
			step:        testStep{},
			expectError: true,
			errorField:  "op: field is required",
		},
		{
			name:        "Unknown op - invalid",
			step:        testStep{Op: "explode"},
			expectError: true,
			errorField:  "op: must be one of [rename remove]",
		},
		{
			name:        "Bad field path - invalid",
			step:        testStep{Op: "rename", Field: "parameters..path"},
			expectError: true,
			errorField:  "field:",
		},
		{
			name:        "Negative slot - invalid",
			step:        testStep{Op: "rename", Slot: -1},
			expectError: true,
			errorField:  "slot: must be greater than or equal to 0",
		},
		{
			name:        "Nested name whitespace - invalid",
			step:        testStep{Op: "rename", Node: &testNode{Name: " Merge", Type: "n8n-nodes-base.code"}},
			expectError: true,
			errorField:  "node.name:",
		},
		{
			name:        "Nested bad type - invalid",
			step:        testStep{Op: "rename", Node: &testNode{Name: "Merge", Type: "code"}},
			expectError: true,
			errorField:  "node.type:",
		},
		{
			name:        "Nested bad position - invalid",
			step:        testStep{Op: "rename", Node: &testNode{Name: "Merge", Type: "n8n-nodes-base.code", Position: []float64{1}}},
			expectError: true,
			errorField:  "node.position:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.step)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorField) {
					t.Errorf("Expected error containing %q, got: %v", tt.errorField, err)
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestStructNil(t *testing.T) {
	if err := Struct(nil); err == nil {
		t.Error("Expected error for nil value")
	}
}

// TestValidateNodeName tests node name validation
func TestValidateNodeName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{"Simple", "Merge", false},
		{"Punctuation and spaces", "Phase 1: Discovery", false},
		{"Unicode", "Análisis de vídeo", false},
		{"Empty", "", true},
		{"Leading space", " Merge", true},
		{"Trailing space", "Merge ", true},
		{"Newline", "Phase\n2", true},
		{"Too long", strings.Repeat("a", MaxNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeName(tt.input)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error for %q, got: %v", tt.input, err)
			}
		})
	}
}

// TestValidateNodeType tests node type validation
func TestValidateNodeType(t *testing.T) {
	tests := []struct {
		input       string
		expectError bool
	}{
		{"n8n-nodes-base.webhook", false},
		{"n8n-nodes-base.stickyNote", false},
		{"@n8n/n8n-nodes-langchain.agent", false},
		{"", true},
		{"webhook", true},
		{"n8n-nodes-base.", true},
		{"n8n nodes.webhook", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateNodeType(tt.input)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error for %q, got: %v", tt.input, err)
			}
		})
	}
}

func TestValidatePosition(t *testing.T) {
	if err := ValidatePosition([]float64{-6832, -64}); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if err := ValidatePosition(nil); err == nil {
		t.Error("Expected error for empty position")
	}
	if err := ValidatePosition([]float64{1, 2, 3}); err == nil {
		t.Error("Expected error for 3 coordinates")
	}
	if err := ValidatePosition([]float64{math.NaN(), 0}); err == nil {
		t.Error("Expected error for NaN coordinate")
	}
}

func TestValidateFieldPath(t *testing.T) {
	tests := []struct {
		input       string
		expectError bool
	}{
		{"webhookId", false},
		{"parameters.path", false},
		{"parameters.options.rawBody", false},
		{"", true},
		{"parameters.", true},
		{".path", true},
		{"parameters.1abc", true},
		{strings.Repeat("a.", MaxFieldDepth) + "a", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateFieldPath(tt.input)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error for %q, got: %v", tt.input, err)
			}
		})
	}
}

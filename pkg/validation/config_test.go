package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigValidator_Required(t *testing.T) {
	cv := NewConfigValidator("TestConfig")
	cv.Required("Name", "")

	if !cv.HasErrors() {
		t.Error("Expected error for empty required field")
	}

	cv2 := NewConfigValidator("TestConfig")
	cv2.Required("Name", "value")

	if cv2.HasErrors() {
		t.Error("Expected no error for non-empty required field")
	}
}

func TestConfigValidator_RangeInt(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, false},
		{5, false},
		{10, false},
		{-1, true},
		{11, true},
	}

	for _, tt := range tests {
		cv := NewConfigValidator("Config")
		cv.RangeInt("Keep", tt.value, 0, 10)
		if cv.HasErrors() != tt.wantErr {
			t.Errorf("RangeInt(%d) HasErrors = %v, want %v", tt.value, cv.HasErrors(), tt.wantErr)
		}
	}
}

func TestConfigValidator_OneOf(t *testing.T) {
	cv := NewConfigValidator("Config")
	cv.OneOf("ReportFormat", "yaml", []string{"text", "json"})

	if !cv.HasErrors() {
		t.Fatal("Expected error for value outside allowed set")
	}
	if !strings.Contains(cv.Errors()[0].Error(), `"yaml"`) {
		t.Errorf("Error should quote the bad value, got: %v", cv.Errors()[0])
	}

	cv2 := NewConfigValidator("Config")
	cv2.OneOf("ReportFormat", "json", []string{"text", "json"})
	if cv2.HasErrors() {
		t.Error("Expected no error for allowed value")
	}
}

func TestConfigValidator_Custom(t *testing.T) {
	sentinel := errors.New("bad level")

	cv := NewConfigValidator("Config")
	cv.Custom("LogLevel", func() error { return sentinel })

	if !errors.Is(cv.Validate(), sentinel) {
		t.Errorf("Custom error should be wrapped, got: %v", cv.Validate())
	}
}

func TestConfigValidator_When(t *testing.T) {
	cv := NewConfigValidator("Config")
	cv.When(false, func(v *ConfigValidator) { v.Required("MetricsFile", "") })
	if cv.HasErrors() {
		t.Error("Validations should be skipped when condition is false")
	}

	cv.When(true, func(v *ConfigValidator) { v.Required("MetricsFile", "") })
	if !cv.HasErrors() {
		t.Error("Validations should run when condition is true")
	}
}

func TestConfigValidator_CollectsAllErrors(t *testing.T) {
	cv := NewConfigValidator("Config").
		Required("Plan", "").
		OneOf("ReportFormat", "xml", []string{"text", "json"}).
		RangeInt("Keep", -3, 0, 10)

	if len(cv.Errors()) != 3 {
		t.Fatalf("Expected 3 errors, got %d", len(cv.Errors()))
	}

	err := cv.Validate()
	if err == nil {
		t.Fatal("Expected combined error")
	}
	for _, want := range []string{"3 errors", "Config.Plan", "Config.ReportFormat", "Config.Keep"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Combined error missing %q: %v", want, err)
		}
	}
}

func TestConfigValidator_NoErrors(t *testing.T) {
	cv := NewConfigValidator("Config").Required("Plan", "plan.yaml")
	if err := cv.Validate(); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

type testConfig struct{ valid bool }

func (c *testConfig) Validate() error {
	if !c.valid {
		return errors.New("invalid")
	}
	return nil
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Error("Expected error for nil config")
	}
	if err := ValidateConfig(&testConfig{valid: true}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := ValidateConfig(&testConfig{}); err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestDefaultOr(t *testing.T) {
	if got := DefaultOr("", "text"); got != "text" {
		t.Errorf("DefaultOr(\"\", text) = %q", got)
	}
	if got := DefaultOr("json", "text"); got != "json" {
		t.Errorf("DefaultOr(json, text) = %q", got)
	}
	if got := DefaultOr(0, 5); got != 5 {
		t.Errorf("DefaultOr(0, 5) = %d", got)
	}
}

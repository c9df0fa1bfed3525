package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Validation constants
	MaxNameLength = 256
	MaxFieldDepth = 8

	// Regular expressions
	nodeTypePattern  = regexp.MustCompile(`^@?[a-zA-Z0-9_-]+(/[a-zA-Z0-9_-]+)?\.[a-zA-Z0-9_]+$`)
	fieldPartPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
)

func init() {
	validate = validator.New()

	// Report yaml keys rather than Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister("nodename", func(fl validator.FieldLevel) bool {
		return ValidateNodeName(fl.Field().String()) == nil
	})
	mustRegister("nodetype", func(fl validator.FieldLevel) bool {
		return ValidateNodeType(fl.Field().String()) == nil
	})
	mustRegister("fieldpath", func(fl validator.FieldLevel) bool {
		return ValidateFieldPath(fl.Field().String()) == nil
	})
	mustRegister("position", func(fl validator.FieldLevel) bool {
		p, ok := fl.Field().Interface().([]float64)
		return ok && ValidatePosition(p) == nil
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates v using its struct tags and returns the first failure in
// a user-friendly form.
func Struct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateNodeName validates a node name. Names are matched exactly, so
// surrounding whitespace is almost always a typo.
func ValidateNodeName(name string) error {
	if name == "" {
		return errors.New("node name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("node name exceeds maximum length of %d characters", MaxNameLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("node name %q has leading or trailing whitespace", name)
	}
	if strings.ContainsAny(name, "\n\r\t") {
		return fmt.Errorf("node name %q contains control characters", name)
	}
	return nil
}

// ValidateNodeType validates a namespaced node type such as
// "n8n-nodes-base.webhook" or "@n8n/n8n-nodes-langchain.agent".
func ValidateNodeType(typ string) error {
	if typ == "" {
		return errors.New("node type cannot be empty")
	}
	if !nodeTypePattern.MatchString(typ) {
		return fmt.Errorf("node type '%s' is invalid (expected package.name)", typ)
	}
	return nil
}

// ValidatePosition validates a canvas coordinate.
func ValidatePosition(p []float64) error {
	if len(p) != 2 {
		return fmt.Errorf("position must have 2 coordinates, got %d", len(p))
	}
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("position coordinates must be finite")
		}
	}
	return nil
}

// ValidateFieldPath validates a dotted field path such as "parameters.path".
func ValidateFieldPath(path string) error {
	if path == "" {
		return errors.New("field path cannot be empty")
	}
	parts := strings.Split(path, ".")
	if len(parts) > MaxFieldDepth {
		return fmt.Errorf("field path '%s' is deeper than %d levels", path, MaxFieldDepth)
	}
	for _, part := range parts {
		if !fieldPartPattern.MatchString(part) {
			return fmt.Errorf("field path '%s' has invalid segment '%s'", path, part)
		}
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := fieldName(e)
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "required_without":
			return fmt.Errorf("%s: field is required when %s is not set", field, param)
		case "excluded_with":
			return fmt.Errorf("%s: cannot be combined with %s", field, param)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gte":
			return fmt.Errorf("%s: must be greater than or equal to %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "eq":
			return fmt.Errorf("%s: must equal %s", field, param)
		case "nodename":
			return fmt.Errorf("%s: %v", field, ValidateNodeName(e.Value().(string)))
		case "nodetype":
			return fmt.Errorf("%s: %v", field, ValidateNodeType(e.Value().(string)))
		case "fieldpath":
			return fmt.Errorf("%s: %v", field, ValidateFieldPath(e.Value().(string)))
		case "position":
			return fmt.Errorf("%s: must be an [x, y] pair of finite numbers", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}

// fieldName drops the root struct from the namespace, so nested failures
// read "node.name" rather than "Step.node.name".
func fieldName(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

package schema

import (
	"fmt"

	"github.com/Ramsey-B/sage/pkg/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validating an input row
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator validates incoming rows against a table schema. Validation runs
// before any matching or I/O: a row that fails here never reaches the
// resolution pipeline.
type Validator struct {
	fields []models.FieldDescriptor
}

// NewValidator creates a validator from a table schema.
func NewValidator(schema *models.TableSchema) (*Validator, error) {
	fields, err := schema.FieldList()
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema fields: %w", err)
	}
	return &Validator{fields: fields}, nil
}

// Validate checks one input row against the schema: the primary name must be
// present, required attribute fields must be present, and every supplied
// attribute must match its declared type. Audit fields are auto-populated
// downstream and are rejected when supplied by the caller.
func (v *Validator) Validate(input models.ResolutionInput) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []ValidationError{}}

	fail := func(field, message string) {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Field: field, Message: message})
	}

	primarySeen := false
	for _, f := range v.fields {
		switch f.Role {
		case models.FieldRolePrimary:
			primarySeen = true
			if input.Name == "" {
				fail(f.Name, "required field is missing")
			}
		case models.FieldRoleAudit:
			if _, exists := input.Attributes[f.Name]; exists {
				fail(f.Name, "audit field is auto-populated and must not be supplied")
			}
		default:
			value, exists := input.Attributes[f.Name]
			if !exists || value == nil {
				if f.Required {
					fail(f.Name, "required field is missing")
				}
				continue
			}
			if msg, ok := checkType(value, f.Type); !ok {
				fail(f.Name, msg)
			}
		}
	}

	if !primarySeen && input.Name == "" {
		fail("name", "required field is missing")
	}

	return result
}

// checkType verifies a JSON-decoded value against the declared field type.
func checkType(value any, fieldType models.FieldType) (string, bool) {
	switch fieldType {
	case models.FieldTypeName, models.FieldTypeText:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string, got %s", typeName(value)), false
		}
	case models.FieldTypeNumber:
		if !isNumber(value) {
			return fmt.Sprintf("expected number, got %s", typeName(value)), false
		}
	case models.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %s", typeName(value)), false
		}
	case models.FieldTypeYear:
		year, ok := asWholeNumber(value)
		if !ok {
			return fmt.Sprintf("expected year, got %s", typeName(value)), false
		}
		if year < 1000 || year > 9999 {
			return fmt.Sprintf("year %d out of range", year), false
		}
	}
	return "", true
}

// ValidateDescriptors sanity-checks a field descriptor set at schema
// registration time: exactly one primary field, unique field names, and known
// types and roles.
func ValidateDescriptors(fields []models.FieldDescriptor) error {
	if len(fields) == 0 {
		return fmt.Errorf("schema must declare at least one field")
	}

	seen := make(map[string]struct{}, len(fields))
	primaries := 0
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("field name must not be empty")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Type {
		case models.FieldTypeName, models.FieldTypeText, models.FieldTypeNumber,
			models.FieldTypeBoolean, models.FieldTypeYear:
		default:
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}

		switch f.Role {
		case models.FieldRolePrimary:
			primaries++
			if f.Type != models.FieldTypeName {
				return fmt.Errorf("primary field %q must have type %q", f.Name, models.FieldTypeName)
			}
		case models.FieldRoleDuplicateKey, models.FieldRoleAudit, models.FieldRoleAttribute:
		default:
			return fmt.Errorf("field %q has unknown role %q", f.Name, f.Role)
		}
	}

	if primaries != 1 {
		return fmt.Errorf("schema must declare exactly one primary field, got %d", primaries)
	}
	return nil
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int64, int32:
		return true
	}
	return false
}

func asWholeNumber(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	}
	return 0, false
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, float32, int, int64, int32:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}

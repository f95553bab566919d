package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
)

func gearingSchema(t *testing.T) *models.TableSchema {
	t.Helper()
	fields, err := json.Marshal([]models.FieldDescriptor{
		{Name: "name", Type: models.FieldTypeName, Required: true, Role: models.FieldRolePrimary},
		{Name: "instrument", Type: models.FieldTypeText, Required: true, Role: models.FieldRoleDuplicateKey},
		{Name: "multiplier", Type: models.FieldTypeNumber, Required: true, Role: models.FieldRoleDuplicateKey},
		{Name: "active", Type: models.FieldTypeBoolean, Role: models.FieldRoleAttribute},
		{Name: "vintage", Type: models.FieldTypeYear, Role: models.FieldRoleAttribute},
		{Name: "created_year", Type: models.FieldTypeYear, Role: models.FieldRoleAudit},
	})
	require.NoError(t, err)
	return &models.TableSchema{ID: "ts-1", Name: "gearing", Fields: fields}
}

func TestValidator_ValidRow(t *testing.T) {
	validator, err := NewValidator(gearingSchema(t))
	require.NoError(t, err)

	result := validator.Validate(models.ResolutionInput{
		Name: "Long 2x",
		Attributes: map[string]any{
			"instrument": "equity",
			"multiplier": 2.0,
			"active":     true,
			"vintage":    float64(2021),
		},
	})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidator_MissingPrimaryName(t *testing.T) {
	validator, err := NewValidator(gearingSchema(t))
	require.NoError(t, err)

	result := validator.Validate(models.ResolutionInput{
		Attributes: map[string]any{"instrument": "equity", "multiplier": 2.0},
	})
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "name", result.Errors[0].Field)
}

func TestValidator_MissingRequiredAttribute(t *testing.T) {
	validator, err := NewValidator(gearingSchema(t))
	require.NoError(t, err)

	result := validator.Validate(models.ResolutionInput{
		Name:       "Long 2x",
		Attributes: map[string]any{"instrument": "equity"},
	})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "multiplier", result.Errors[0].Field)
}

func TestValidator_TypeMismatches(t *testing.T) {
	validator, err := NewValidator(gearingSchema(t))
	require.NoError(t, err)

	tests := []struct {
		name  string
		attrs map[string]any
		field string
	}{
		{"number as string", map[string]any{"instrument": "equity", "multiplier": "2"}, "multiplier"},
		{"boolean as string", map[string]any{"instrument": "equity", "multiplier": 2.0, "active": "yes"}, "active"},
		{"fractional year", map[string]any{"instrument": "equity", "multiplier": 2.0, "vintage": 2021.5}, "vintage"},
		{"year out of range", map[string]any{"instrument": "equity", "multiplier": 2.0, "vintage": float64(99)}, "vintage"},
		{"text as number", map[string]any{"instrument": 7.0, "multiplier": 2.0}, "instrument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.Validate(models.ResolutionInput{Name: "Long 2x", Attributes: tt.attrs})
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.field, result.Errors[0].Field)
		})
	}
}

func TestValidator_AuditFieldRejected(t *testing.T) {
	validator, err := NewValidator(gearingSchema(t))
	require.NoError(t, err)

	result := validator.Validate(models.ResolutionInput{
		Name: "Long 2x",
		Attributes: map[string]any{
			"instrument":   "equity",
			"multiplier":   2.0,
			"created_year": float64(2024),
		},
	})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "created_year", result.Errors[0].Field)
}

func TestValidateDescriptors(t *testing.T) {
	valid := []models.FieldDescriptor{
		{Name: "name", Type: models.FieldTypeName, Role: models.FieldRolePrimary},
		{Name: "country", Type: models.FieldTypeText, Role: models.FieldRoleAttribute},
	}
	assert.NoError(t, ValidateDescriptors(valid))

	t.Run("empty set", func(t *testing.T) {
		assert.Error(t, ValidateDescriptors(nil))
	})

	t.Run("no primary", func(t *testing.T) {
		fields := []models.FieldDescriptor{
			{Name: "country", Type: models.FieldTypeText, Role: models.FieldRoleAttribute},
		}
		assert.Error(t, ValidateDescriptors(fields))
	})

	t.Run("two primaries", func(t *testing.T) {
		fields := []models.FieldDescriptor{
			{Name: "a", Type: models.FieldTypeName, Role: models.FieldRolePrimary},
			{Name: "b", Type: models.FieldTypeName, Role: models.FieldRolePrimary},
		}
		assert.Error(t, ValidateDescriptors(fields))
	})

	t.Run("duplicate field name", func(t *testing.T) {
		fields := []models.FieldDescriptor{
			{Name: "name", Type: models.FieldTypeName, Role: models.FieldRolePrimary},
			{Name: "name", Type: models.FieldTypeText, Role: models.FieldRoleAttribute},
		}
		assert.Error(t, ValidateDescriptors(fields))
	})

	t.Run("primary must be a name field", func(t *testing.T) {
		fields := []models.FieldDescriptor{
			{Name: "name", Type: models.FieldTypeNumber, Role: models.FieldRolePrimary},
		}
		assert.Error(t, ValidateDescriptors(fields))
	})

	t.Run("unknown type", func(t *testing.T) {
		fields := []models.FieldDescriptor{
			{Name: "name", Type: models.FieldTypeName, Role: models.FieldRolePrimary},
			{Name: "blob", Type: "binary", Role: models.FieldRoleAttribute},
		}
		assert.Error(t, ValidateDescriptors(fields))
	})
}

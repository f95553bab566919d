package models

import (
	"encoding/json"
	"time"
)

// FieldType is the semantic type of a reference-table field. Name-like fields
// get full text normalization before comparison; everything else is compared
// after a plain lowercase/trim.
type FieldType string

const (
	FieldTypeName    FieldType = "name"    // institution/country style names
	FieldTypeText    FieldType = "text"    // free-form strings, classification tags
	FieldTypeNumber  FieldType = "number"  // numeric attributes
	FieldTypeBoolean FieldType = "boolean" // flags
	FieldTypeYear    FieldType = "year"    // four-digit years
)

// FieldRole describes how a field participates in resolution.
type FieldRole string

const (
	FieldRolePrimary      FieldRole = "primary"       // the canonical name field; exactly one per table
	FieldRoleDuplicateKey FieldRole = "duplicate_key" // participates in the compound duplicate check
	FieldRoleAudit        FieldRole = "audit"         // auto-populated creation metadata
	FieldRoleAttribute    FieldRole = "attribute"     // carried through, not matched on
)

// FieldDescriptor describes a single field of a reference table.
type FieldDescriptor struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Role     FieldRole `json:"role"`
}

// TableSchema is the closed configuration of one reference table. Behavior is
// selected by field roles, never by field-name pattern matching.
type TableSchema struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Fields    json.RawMessage `json:"fields" db:"fields"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`

	// decoded lazily from Fields; populated by FieldList
	fieldList []FieldDescriptor
}

// FieldList decodes and caches the ordered field descriptors.
func (s *TableSchema) FieldList() ([]FieldDescriptor, error) {
	if s.fieldList != nil {
		return s.fieldList, nil
	}
	var fields []FieldDescriptor
	if err := json.Unmarshal(s.Fields, &fields); err != nil {
		return nil, err
	}
	s.fieldList = fields
	return fields, nil
}

// PrimaryField returns the table's primary name field, if declared.
func (s *TableSchema) PrimaryField() (FieldDescriptor, bool) {
	fields, err := s.FieldList()
	if err != nil {
		return FieldDescriptor{}, false
	}
	for _, f := range fields {
		if f.Role == FieldRolePrimary {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// DuplicateKeyFields returns the ordered duplicate-key fields consumed by the
// compound duplicate check. An empty slice disables the check for this table.
func (s *TableSchema) DuplicateKeyFields() []FieldDescriptor {
	fields, err := s.FieldList()
	if err != nil {
		return nil
	}
	var keys []FieldDescriptor
	for _, f := range fields {
		if f.Role == FieldRoleDuplicateKey {
			keys = append(keys, f)
		}
	}
	return keys
}

// CreateTableSchemaRequest is the request to register a reference table.
type CreateTableSchemaRequest struct {
	Name   string            `json:"name" validate:"required"`
	Fields []FieldDescriptor `json:"fields" validate:"required,min=1,dive"`
}

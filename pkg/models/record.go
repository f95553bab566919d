package models

import (
	"encoding/json"
	"time"
)

// CanonicalRecord is a row in a reference table. Records are append-only:
// corrections flow through new standardization mappings, never through updates.
type CanonicalRecord struct {
	Table      string          `json:"table" db:"table_name"`
	ID         int64           `json:"id" db:"record_id"`
	Name       string          `json:"name" db:"name"`
	ShortName  *string         `json:"short_name,omitempty" db:"short_name"`
	Attributes json.RawMessage `json:"attributes,omitempty" db:"attributes"`
	CreatedBy  string          `json:"created_by" db:"created_by"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// AttributeMap decodes the record's free-form attributes. A nil or empty
// attributes column decodes to an empty map.
func (r *CanonicalRecord) AttributeMap() (map[string]any, error) {
	if len(r.Attributes) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Attributes, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReferenceEntry is the materialized view of one canonical record used by the
// matching pipeline: just the names and the id, refreshed with the snapshot.
type ReferenceEntry struct {
	ID        int64
	Name      string
	ShortName string
}

// RecordListResponse is the response for listing canonical records
type RecordListResponse struct {
	Items      []CanonicalRecord `json:"items"`
	TotalCount int               `json:"total_count"`
}

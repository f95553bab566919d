package models

import "time"

// StandardizationMapping records a human-confirmed (original → canonical)
// correspondence. Original names are normalized before storage. Mappings are
// never deleted; a bad mapping is corrected by a newer one.
type StandardizationMapping struct {
	Table         string    `json:"table" db:"table_name"`
	ID            int64     `json:"id" db:"mapping_id"`
	OriginalName  string    `json:"original_name" db:"original_name"`
	CanonicalName string    `json:"canonical_name" db:"canonical_name"`
	CanonicalID   *int64    `json:"canonical_id,omitempty" db:"canonical_id"`
	Justification *string   `json:"justification,omitempty" db:"justification"`
	CreatedBy     string    `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// StandardizationDecisionRow is one row of a bulk standardization export. The
// file round-trips: re-importing the same rows applies the same decisions.
type StandardizationDecisionRow struct {
	OriginalName   string   `json:"original_name"`
	CandidateName  string   `json:"candidate_name"`
	CandidateID    *int64   `json:"candidate_id,omitempty"`
	Score          float64  `json:"score"`
	ConfirmInclude *bool    `json:"confirm_include,omitempty"` // nil = unmarked
	Justification  *string  `json:"justification,omitempty"`
}

// CreateMappingRequest is the request to create a standardization mapping.
type CreateMappingRequest struct {
	OriginalName  string  `json:"original_name" validate:"required"`
	CanonicalName string  `json:"canonical_name" validate:"required"`
	CanonicalID   *int64  `json:"canonical_id,omitempty"`
	Justification *string `json:"justification,omitempty"`
}

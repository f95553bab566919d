package models

import (
	"fmt"
	"time"
)

// ResolutionState is a terminal or suspended state of the resolution workflow.
// Duplicates and ambiguity are states, not errors.
type ResolutionState string

const (
	StateAlreadyExists  ResolutionState = "already_exists"
	StatePendingReview  ResolutionState = "pending_review"
	StateMappingCreated ResolutionState = "mapping_created"
	StateInserted       ResolutionState = "inserted"
	StateFailed         ResolutionState = "failed"

	// StateReadyToInsert only appears in the read-only evaluation phase of a
	// bulk run: no duplicate was found and the row will be written when the
	// batch commits.
	StateReadyToInsert ResolutionState = "ready_to_insert"
)

// MatchSource identifies which check produced a hit.
type MatchSource string

const (
	MatchSourceExactName       MatchSource = "exact_name"
	MatchSourceShortName       MatchSource = "short_name"
	MatchSourceSuffixVariant   MatchSource = "suffix_variant"
	MatchSourceStandardization MatchSource = "standardization"
	MatchSourceCompoundKey     MatchSource = "compound_key"
)

// MatchCandidate is an ephemeral scored candidate produced during a query.
// Candidates live in the session until the human decision and are never
// persisted.
type MatchCandidate struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	RecordID int64   `json:"record_id"`
}

// MatchReference describes the existing record an input collided with.
type MatchReference struct {
	Name     string      `json:"name"`
	RecordID int64       `json:"record_id"`
	Source   MatchSource `json:"source"`
}

// ResolutionInput is one incoming name plus its form-supplied attributes.
type ResolutionInput struct {
	Name       string         `json:"name" validate:"required"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Actor      string         `json:"actor,omitempty"`

	// Optional hierarchy intent: attach the new record as a child of either an
	// existing record or another row in the same batch.
	Parent *ParentRef `json:"parent,omitempty"`
}

// ParentRef points at a hierarchy parent: an existing record by id, or a
// sibling batch row by index (resolved after that row's insert completes).
type ParentRef struct {
	RecordID  *int64  `json:"record_id,omitempty"`
	RowIndex  *int    `json:"row_index,omitempty"`
	Ownership float64 `json:"ownership"`
}

// Validate checks the parent reference before any matching or I/O. inBatch
// reports whether the input belongs to a bulk run; sibling row references are
// only meaningful there.
func (p *ParentRef) Validate(inBatch bool) error {
	if p.RecordID == nil && p.RowIndex == nil {
		return fmt.Errorf("parent reference requires a record_id or a row_index")
	}
	if p.RecordID != nil && p.RowIndex != nil {
		return fmt.Errorf("parent reference cannot carry both a record_id and a row_index")
	}
	if p.RecordID != nil && *p.RecordID <= 0 {
		return fmt.Errorf("parent record_id must be positive, got %d", *p.RecordID)
	}
	if p.RowIndex != nil {
		if !inBatch {
			return fmt.Errorf("parent row_index is only valid inside a batch")
		}
		if *p.RowIndex < 0 {
			return fmt.Errorf("parent row_index must not be negative, got %d", *p.RowIndex)
		}
	}
	if p.Ownership < 0 || p.Ownership > 1 {
		return fmt.Errorf("ownership must be within [0,1], got %v", p.Ownership)
	}
	return nil
}

// Outcome is the structured result of resolving one input.
type Outcome struct {
	State           ResolutionState  `json:"state"`
	Input           string           `json:"input"`
	NormalizedInput string           `json:"normalized_input"`
	Match           *MatchReference  `json:"match,omitempty"`
	Candidates      []MatchCandidate `json:"candidates,omitempty"`
	PendingID       string           `json:"pending_id,omitempty"`
	Record          *CanonicalRecord `json:"record,omitempty"`
	Mapping         *StandardizationMapping `json:"mapping,omitempty"`

	// Populated only in StateFailed: a human-readable reason plus the
	// underlying diagnostic for operators.
	Reason     string `json:"reason,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// DecisionKind is the human reviewer's verdict on a pending item.
type DecisionKind string

const (
	DecisionConfirmMatch DecisionKind = "confirm_match" // keep: map input to the chosen candidate
	DecisionRejectAll    DecisionKind = "reject_all"    // different: proceed to insert
)

// Decision resolves one pending review item.
type Decision struct {
	Kind          DecisionKind `json:"kind" validate:"required,oneof=confirm_match reject_all"`
	CandidateName string       `json:"candidate_name,omitempty"`
	Justification *string      `json:"justification,omitempty"`
}

// PendingItem is a suspended resolution awaiting a human decision. The
// candidate list, scores, and normalized input are retained so the decision
// never re-derives them.
type PendingItem struct {
	ID              string           `json:"id"`
	RowIndex        int              `json:"row_index"` // -1 outside bulk flows
	Input           ResolutionInput  `json:"input"`
	NormalizedInput string           `json:"normalized_input"`
	Candidates      []MatchCandidate `json:"candidates"`
	CreatedAt       time.Time        `json:"created_at"`
}

// BatchSummary aggregates per-row outcomes of a bulk run. Pending and Ready
// are only non-zero after the read-only evaluation phase; a commit converts
// them into the terminal counts.
type BatchSummary struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Mapped   int `json:"mapped"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Pending  int `json:"pending"`
	Ready    int `json:"ready"`
}

// BatchResult reports a bulk run: one outcome per input row, in input order,
// plus the aggregate summary. One row's failure never aborts its siblings.
type BatchResult struct {
	Outcomes []Outcome    `json:"outcomes"`
	Summary  BatchSummary `json:"summary"`
}

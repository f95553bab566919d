package models

import (
	"fmt"
	"time"
)

// ControlThreshold is the ownership fraction above which a parent is
// considered controlling.
const ControlThreshold = 0.5

// HierarchyEdge is a directed parent→child relationship between two canonical
// records, weighted by an ownership fraction. Edges are created only after
// both endpoints exist as records.
type HierarchyEdge struct {
	ID        string    `json:"id" db:"id"`
	Table     string    `json:"table" db:"table_name"`
	ParentID  int64     `json:"parent_id" db:"parent_id"`
	ChildID   int64     `json:"child_id" db:"child_id"`
	Ownership float64   `json:"ownership" db:"ownership"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsControlling reports whether the parent's stake exceeds the control
// threshold.
func (e *HierarchyEdge) IsControlling() bool {
	return e.Ownership > ControlThreshold
}

// Validate checks the edge invariants before any I/O.
func (e *HierarchyEdge) Validate() error {
	if e.ParentID == 0 || e.ChildID == 0 {
		return fmt.Errorf("hierarchy edge requires both parent and child record ids")
	}
	if e.ParentID == e.ChildID {
		return fmt.Errorf("hierarchy edge cannot relate a record to itself")
	}
	if e.Ownership < 0 || e.Ownership > 1 {
		return fmt.Errorf("ownership must be within [0,1], got %v", e.Ownership)
	}
	return nil
}

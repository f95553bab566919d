// Package tablestore defines the storage contracts the resolution pipeline
// consumes. The canonical reference tables are shared, externally-owned
// resources: implementations never get exclusive write access, so callers
// must treat unique violations on insert as recoverable.
package tablestore

import (
	"context"
	"errors"

	"github.com/Ramsey-B/sage/pkg/models"
)

// ErrUniqueViolation marks an insert rejected because another writer already
// holds the id or name. Callers refresh their snapshot and re-resolve.
var ErrUniqueViolation = errors.New("unique constraint violation")

// RecordStore is the canonical-record surface consumed by resolution.
type RecordStore interface {
	// List returns every record of one logical table.
	List(ctx context.Context, table string) ([]models.CanonicalRecord, error)
	// Entries returns the (id, name, short_name) view used for matching.
	Entries(ctx context.Context, table string) ([]models.ReferenceEntry, error)
	// NextID allocates max existing id + 1 for the table.
	NextID(ctx context.Context, table string) (int64, error)
	// Insert persists a record with its pre-allocated id.
	Insert(ctx context.Context, record *models.CanonicalRecord) error
}

// MappingStore is the standardization-mapping surface consumed by the mapper.
type MappingStore interface {
	List(ctx context.Context, table string) ([]models.StandardizationMapping, error)
	GetByOriginal(ctx context.Context, table string, originalName string) (*models.StandardizationMapping, error)
	ExistsCanonical(ctx context.Context, table string, canonicalName string) (bool, error)
	NextID(ctx context.Context, table string) (int64, error)
	Insert(ctx context.Context, mapping *models.StandardizationMapping) error
}

// EdgeStore is the hierarchy-edge surface consumed by resolution and the
// hierarchy service.
type EdgeStore interface {
	Create(ctx context.Context, edge *models.HierarchyEdge) (*models.HierarchyEdge, error)
	ListByParent(ctx context.Context, table string, parentID int64) ([]models.HierarchyEdge, error)
	ListByChild(ctx context.Context, table string, childID int64) ([]models.HierarchyEdge, error)
}

// Package standardization persists name mappings: human-confirmed
// (original → canonical) correspondences keyed by normalized original name.
package standardization

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// MappingRepository defines the interface for standardization mapping operations
type MappingRepository interface {
	List(ctx context.Context, table string) ([]models.StandardizationMapping, error)
	GetByOriginal(ctx context.Context, table string, originalName string) (*models.StandardizationMapping, error)
	ExistsCanonical(ctx context.Context, table string, canonicalName string) (bool, error)
	NextID(ctx context.Context, table string) (int64, error)
	Insert(ctx context.Context, mapping *models.StandardizationMapping) error
}

// Repository implements MappingRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new standardization mapping repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "standardization_mappings"

var mappingColumns = []string{"table_name", "mapping_id", "original_name", "canonical_name", "canonical_id", "justification", "created_by", "created_at"}

// List returns every mapping of one logical table, oldest first.
func (r *Repository) List(ctx context.Context, table string) ([]models.StandardizationMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(mappingColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("table_name", table))
	sb.OrderBy("mapping_id ASC")

	query, args := sb.Build()

	var mappings []models.StandardizationMapping
	if err := r.db.SelectContext(ctx, &mappings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list standardization mappings")
		return nil, fmt.Errorf("failed to list standardization mappings: %w", err)
	}

	return mappings, nil
}

// GetByOriginal looks up a mapping by its original name, case-insensitively
// over the normalized form.
func (r *Repository) GetByOriginal(ctx context.Context, table string, originalName string) (*models.StandardizationMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.GetByOriginal")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(mappingColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("table_name", table),
		sb.Equal("LOWER(original_name)", normalize.Key(originalName)),
	)

	query, args := sb.Build()

	var mapping models.StandardizationMapping
	err := r.db.GetContext(ctx, &mapping, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get standardization mapping")
		return nil, fmt.Errorf("failed to get standardization mapping: %w", err)
	}

	return &mapping, nil
}

// ExistsCanonical reports whether canonicalName already appears as the target
// of any mapping in the table.
func (r *Repository) ExistsCanonical(ctx context.Context, table string, canonicalName string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.ExistsCanonical")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(tableName)
	sb.Where(
		sb.Equal("table_name", table),
		sb.Equal("LOWER(canonical_name)", normalize.Key(canonicalName)),
	)

	query, args := sb.Build()

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to check canonical name")
		return false, fmt.Errorf("failed to check canonical name: %w", err)
	}

	return count > 0, nil
}

// NextID allocates the next mapping id for a logical table, with the same
// max-query-then-scan fallback as record id allocation.
func (r *Repository) NextID(ctx context.Context, table string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.NextID")
	defer span.End()

	var maxID sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(mapping_id) FROM %s WHERE table_name = $1", tableName)
	err := r.db.GetContext(ctx, &maxID, query, table)
	if err == nil {
		if !maxID.Valid {
			return 1, nil
		}
		return maxID.Int64 + 1, nil
	}

	r.logger.WithContext(ctx).WithError(err).Warn("max id query failed, falling back to full scan")

	var ids []int64
	scanQuery := fmt.Sprintf("SELECT mapping_id FROM %s WHERE table_name = $1", tableName)
	if err := r.db.SelectContext(ctx, &ids, scanQuery, table); err != nil {
		return 0, fmt.Errorf("failed to allocate next mapping id: %w", err)
	}

	var max int64
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

// Insert persists a new mapping row.
func (r *Repository) Insert(ctx context.Context, mapping *models.StandardizationMapping) error {
	ctx, span := tracing.StartSpan(ctx, "MappingRepository.Insert")
	defer span.End()

	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(mappingColumns...)
	sb.Values(mapping.Table, mapping.ID, mapping.OriginalName, mapping.CanonicalName,
		mapping.CanonicalID, mapping.Justification, mapping.CreatedBy, mapping.CreatedAt)
	// Two reviewers confirming the same original concurrently race on the
	// unique original-name index; the mapper treats an existing mapping as a
	// no-op success, so the losing write should too.
	sb.OnConflictDoNothing("table_name", "lower(original_name)")

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to insert standardization mapping")
		return fmt.Errorf("failed to insert standardization mapping: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"table":      mapping.Table,
		"mapping_id": mapping.ID,
		"original":   mapping.OriginalName,
		"canonical":  mapping.CanonicalName,
	}).Info("created standardization mapping")

	return nil
}

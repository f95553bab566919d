// Package hierarchy persists parent/child ownership edges between canonical
// records of the same table.
package hierarchy

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// EdgeRepository defines the interface for hierarchy edge operations
type EdgeRepository interface {
	Create(ctx context.Context, edge *models.HierarchyEdge) (*models.HierarchyEdge, error)
	List(ctx context.Context, table string) ([]models.HierarchyEdge, error)
	ListByParent(ctx context.Context, table string, parentID int64) ([]models.HierarchyEdge, error)
	ListByChild(ctx context.Context, table string, childID int64) ([]models.HierarchyEdge, error)
}

// Repository implements EdgeRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new hierarchy edge repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "hierarchy_edges"

var edgeColumns = []string{"id", "table_name", "parent_id", "child_id", "ownership", "created_by", "created_at"}

// Create validates and persists an ownership edge.
func (r *Repository) Create(ctx context.Context, edge *models.HierarchyEdge) (*models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "EdgeRepository.Create")
	defer span.End()

	if err := edge.Validate(); err != nil {
		return nil, err
	}

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(edgeColumns...)
	sb.Values(edge.ID, edge.Table, edge.ParentID, edge.ChildID, edge.Ownership, edge.CreatedBy, edge.CreatedAt)

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create hierarchy edge")
		return nil, fmt.Errorf("failed to create hierarchy edge: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"table":     edge.Table,
		"parent_id": edge.ParentID,
		"child_id":  edge.ChildID,
		"ownership": edge.Ownership,
	}).Info("created hierarchy edge")

	return edge, nil
}

// List returns every edge of one logical table.
func (r *Repository) List(ctx context.Context, table string) ([]models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "EdgeRepository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(edgeColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("table_name", table))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()

	var edges []models.HierarchyEdge
	if err := r.db.SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list hierarchy edges")
		return nil, fmt.Errorf("failed to list hierarchy edges: %w", err)
	}

	return edges, nil
}

// ListByParent returns the edges where the given record is the parent.
func (r *Repository) ListByParent(ctx context.Context, table string, parentID int64) ([]models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "EdgeRepository.ListByParent")
	defer span.End()

	return r.list(ctx, table, "parent_id", parentID)
}

// ListByChild returns the edges where the given record is the child.
func (r *Repository) ListByChild(ctx context.Context, table string, childID int64) ([]models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "EdgeRepository.ListByChild")
	defer span.End()

	return r.list(ctx, table, "child_id", childID)
}

func (r *Repository) list(ctx context.Context, table, column string, id int64) ([]models.HierarchyEdge, error) {
	sb := database.NewSelectBuilder()
	sb.Select(edgeColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("table_name", table),
		sb.Equal(column, id),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()

	var edges []models.HierarchyEdge
	if err := r.db.SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list hierarchy edges")
		return nil, fmt.Errorf("failed to list hierarchy edges: %w", err)
	}

	return edges, nil
}

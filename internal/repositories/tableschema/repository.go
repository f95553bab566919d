// Package tableschema persists reference-table configurations.
package tableschema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/schema"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// TableSchemaRepository defines the interface for table schema operations
type TableSchemaRepository interface {
	Create(ctx context.Context, req models.CreateTableSchemaRequest) (*models.TableSchema, error)
	GetByID(ctx context.Context, id string) (*models.TableSchema, error)
	GetByName(ctx context.Context, name string) (*models.TableSchema, error)
	List(ctx context.Context) ([]models.TableSchema, error)
	Update(ctx context.Context, id string, fields []models.FieldDescriptor) (*models.TableSchema, error)
}

// Repository implements TableSchemaRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new table schema repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "table_schemas"

var schemaColumns = []string{"id", "name", "fields", "created_at", "updated_at"}

// Create registers a new reference table. The field descriptor set is sanity
// checked before any write.
func (r *Repository) Create(ctx context.Context, req models.CreateTableSchemaRequest) (*models.TableSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "TableSchemaRepository.Create")
	defer span.End()

	if err := schema.ValidateDescriptors(req.Fields); err != nil {
		return nil, fmt.Errorf("invalid schema fields: %w", err)
	}

	fieldsJSON, err := json.Marshal(req.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema fields: %w", err)
	}

	now := time.Now()
	id := uuid.New().String()

	sb := database.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(schemaColumns...)
	sb.Values(id, req.Name, fieldsJSON, now, now)

	query, args := sb.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create table schema")
		return nil, fmt.Errorf("failed to create table schema: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   id,
		"name": req.Name,
	}).Info("created table schema")

	return r.GetByID(ctx, id)
}

// GetByID gets a table schema by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.TableSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "TableSchemaRepository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(schemaColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var ts models.TableSchema
	err := r.db.GetContext(ctx, &ts, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get table schema by ID")
		return nil, fmt.Errorf("failed to get table schema: %w", err)
	}

	return &ts, nil
}

// GetByName gets a table schema by its table name
func (r *Repository) GetByName(ctx context.Context, name string) (*models.TableSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "TableSchemaRepository.GetByName")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(schemaColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()

	var ts models.TableSchema
	err := r.db.GetContext(ctx, &ts, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get table schema by name")
		return nil, fmt.Errorf("failed to get table schema: %w", err)
	}

	return &ts, nil
}

// List lists all registered table schemas
func (r *Repository) List(ctx context.Context) ([]models.TableSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "TableSchemaRepository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(schemaColumns...)
	sb.From(tableName)
	sb.OrderBy("name ASC")

	query, args := sb.Build()

	var items []models.TableSchema
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list table schemas")
		return nil, fmt.Errorf("failed to list table schemas: %w", err)
	}

	return items, nil
}

// Update replaces a schema's field descriptors.
func (r *Repository) Update(ctx context.Context, id string, fields []models.FieldDescriptor) (*models.TableSchema, error) {
	ctx, span := tracing.StartSpan(ctx, "TableSchemaRepository.Update")
	defer span.End()

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if err := schema.ValidateDescriptors(fields); err != nil {
		return nil, fmt.Errorf("invalid schema fields: %w", err)
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema fields: %w", err)
	}

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("fields", fieldsJSON),
		ub.Assign("updated_at", time.Now()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to update table schema")
		return nil, fmt.Errorf("failed to update table schema: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            id,
		"rows_affected": rowsAffected,
	}).Info("updated table schema")

	return r.GetByID(ctx, id)
}

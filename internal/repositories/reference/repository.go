// Package reference persists canonical records. All reference tables share
// one physical table partitioned by table_name; record ids are contiguous
// integer sequences per logical table, allocated by reading the current max.
package reference

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tablestore"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// ReferenceRepository defines the interface for canonical record operations
type ReferenceRepository interface {
	List(ctx context.Context, table string) ([]models.CanonicalRecord, error)
	Entries(ctx context.Context, table string) ([]models.ReferenceEntry, error)
	GetByID(ctx context.Context, table string, id int64) (*models.CanonicalRecord, error)
	NextID(ctx context.Context, table string) (int64, error)
	Insert(ctx context.Context, record *models.CanonicalRecord) error
	Count(ctx context.Context, table string) (int, error)
}

// Repository implements ReferenceRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new reference repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "canonical_records"

var recordColumns = []string{"table_name", "record_id", "name", "short_name", "attributes", "created_by", "created_at"}

// List returns every record of one logical table.
func (r *Repository) List(ctx context.Context, table string) ([]models.CanonicalRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("table_name", table))
	sb.OrderBy("record_id ASC")

	query, args := sb.Build()

	var records []models.CanonicalRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list canonical records")
		return nil, fmt.Errorf("failed to list canonical records: %w", err)
	}

	return records, nil
}

// Entries returns the materialized (id, name, short_name) view consumed by
// the matching pipeline.
func (r *Repository) Entries(ctx context.Context, table string) ([]models.ReferenceEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.Entries")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("record_id", "name", "COALESCE(short_name, '') AS short_name")
	sb.From(tableName)
	sb.Where(sb.Equal("table_name", table))
	sb.OrderBy("record_id ASC")

	query, args := sb.Build()

	var rows []struct {
		RecordID  int64  `db:"record_id"`
		Name      string `db:"name"`
		ShortName string `db:"short_name"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list reference entries")
		return nil, fmt.Errorf("failed to list reference entries: %w", err)
	}

	entries := make([]models.ReferenceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.ReferenceEntry{
			ID:        row.RecordID,
			Name:      row.Name,
			ShortName: row.ShortName,
		})
	}
	return entries, nil
}

// GetByID gets a record by its per-table id
func (r *Repository) GetByID(ctx context.Context, table string, id int64) (*models.CanonicalRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("table_name", table),
		sb.Equal("record_id", id),
	)

	query, args := sb.Build()

	var record models.CanonicalRecord
	err := r.db.GetContext(ctx, &record, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get canonical record")
		return nil, fmt.Errorf("failed to get canonical record: %w", err)
	}

	return &record, nil
}

// NextID allocates the next record id for a logical table: max existing id
// plus one. Prefers an indexed MAX query; falls back to a full scan when the
// aggregate fails, since the backing store may not support it.
func (r *Repository) NextID(ctx context.Context, table string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.NextID")
	defer span.End()

	var maxID sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(record_id) FROM %s WHERE table_name = $1", tableName)
	err := r.db.GetContext(ctx, &maxID, query, table)
	if err == nil {
		if !maxID.Valid {
			return 1, nil
		}
		return maxID.Int64 + 1, nil
	}

	r.logger.WithContext(ctx).WithError(err).Warn("max id query failed, falling back to full scan")

	var ids []int64
	scanQuery := fmt.Sprintf("SELECT record_id FROM %s WHERE table_name = $1", tableName)
	if err := r.db.SelectContext(ctx, &ids, scanQuery, table); err != nil {
		return 0, fmt.Errorf("failed to allocate next id: %w", err)
	}

	var max int64
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

// Insert persists a new canonical record with its pre-allocated id. A unique
// violation means another writer won the id or the name; callers should
// refresh their snapshot and re-resolve rather than treat it as fatal.
func (r *Repository) Insert(ctx context.Context, record *models.CanonicalRecord) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.Insert")
	defer span.End()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	sb := database.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(recordColumns...)
	sb.Values(record.Table, record.ID, record.Name, record.ShortName, record.Attributes, record.CreatedBy, record.CreatedAt)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("insert rejected for %q: %w", record.Name, tablestore.ErrUniqueViolation)
		}
		// Alternative write path: the builder-produced statement can trip on
		// driver quirks; retry once with a plain statement before giving up.
		r.logger.WithContext(ctx).WithError(err).Warn("insert failed, retrying via fallback write path")
		if fallbackErr := r.insertFallback(ctx, record); fallbackErr != nil {
			r.logger.WithContext(ctx).WithError(fallbackErr).Error("failed to insert canonical record")
			return fmt.Errorf("failed to insert canonical record: %w", fallbackErr)
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"table":     record.Table,
		"record_id": record.ID,
		"name":      record.Name,
	}).Info("inserted canonical record")

	return nil
}

func (r *Repository) insertFallback(ctx context.Context, record *models.CanonicalRecord) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (table_name, record_id, name, short_name, attributes, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		tableName,
	)
	_, err := r.db.ExecContext(ctx, query,
		record.Table, record.ID, record.Name, record.ShortName, record.Attributes, record.CreatedBy, record.CreatedAt)
	return err
}

// Count returns the number of records in one logical table.
func (r *Repository) Count(ctx context.Context, table string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.Count")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(tableName)
	sb.Where(sb.Equal("table_name", table))

	query, args := sb.Build()

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count canonical records")
		return 0, fmt.Errorf("failed to count canonical records: %w", err)
	}

	return count, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// SchemaGetter interface for fetching table schemas
type SchemaGetter interface {
	GetByName(ctx context.Context, name string) (*models.TableSchema, error)
}

// ValidationService provides schema validation for incoming rows
type ValidationService struct {
	schemaGetter SchemaGetter
	logger       ectologger.Logger
	cache        sync.Map // map[name:updatedAt]*Validator
}

// NewValidationService creates a new validation service
func NewValidationService(getter SchemaGetter, logger ectologger.Logger) *ValidationService {
	return &ValidationService{
		schemaGetter: getter,
		logger:       logger,
	}
}

// ValidateInput validates one input row against its table's schema.
func (s *ValidationService) ValidateInput(ctx context.Context, table string, input models.ResolutionInput) (ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ValidationService.ValidateInput")
	defer span.End()

	ts, err := s.schemaGetter.GetByName(ctx, table)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to get table schema: %w", err)
	}
	if ts == nil {
		return ValidationResult{}, fmt.Errorf("table schema %q not found", table)
	}

	validator, err := s.getValidator(ts)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to create validator: %w", err)
	}

	result := validator.Validate(input)

	if !result.Valid {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"table":  table,
			"errors": len(result.Errors),
		}).Debug("input row validation failed")
	}

	return result, nil
}

// getValidator returns a cached validator or creates a new one. Cache entries
// are keyed by the schema's update timestamp, so a schema change naturally
// rotates the validator.
func (s *ValidationService) getValidator(ts *models.TableSchema) (*Validator, error) {
	cacheKey := fmt.Sprintf("%s:%d", ts.Name, ts.UpdatedAt.UnixNano())

	if cached, ok := s.cache.Load(cacheKey); ok {
		return cached.(*Validator), nil
	}

	validator, err := NewValidator(ts)
	if err != nil {
		return nil, err
	}

	s.cache.Store(cacheKey, validator)
	return validator, nil
}

// InvalidateCache drops all cached validators for a table.
func (s *ValidationService) InvalidateCache(table string) {
	prefix := table + ":"
	s.cache.Range(func(key, value any) bool {
		keyStr := key.(string)
		if len(keyStr) >= len(prefix) && keyStr[:len(prefix)] == prefix {
			s.cache.Delete(key)
		}
		return true
	})
}

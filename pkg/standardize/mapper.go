// Package standardize maintains the name-mapping layer: once a human
// confirms that an incoming spelling refers to an existing canonical record,
// the correspondence is persisted and every later occurrence of that spelling
// resolves without review.
package standardize

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
	"github.com/Ramsey-B/sage/pkg/tablestore"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// maxChainLength bounds transitive resolution. Chains longer than this are
// treated as data corruption, not followed further.
const maxChainLength = 10

// Mapper resolves and creates standardization mappings.
type Mapper struct {
	store  tablestore.MappingStore
	logger ectologger.Logger
}

// NewMapper creates a new mapper over a mapping store.
func NewMapper(store tablestore.MappingStore, logger ectologger.Logger) *Mapper {
	return &Mapper{
		store:  store,
		logger: logger,
	}
}

// Resolve follows mappings from originalName to the end of the chain: if A
// maps to B and B maps to C, resolving A yields C. A visited set stops on
// cycles, returning the last mapping reached before the repeat. Returns nil
// when no mapping exists for the input.
func (m *Mapper) Resolve(ctx context.Context, table string, originalName string) (*models.StandardizationMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "Mapper.Resolve")
	defer span.End()

	visited := map[string]struct{}{normalize.Key(originalName): {}}

	var last *models.StandardizationMapping
	current := originalName
	for i := 0; i < maxChainLength; i++ {
		mapping, err := m.store.GetByOriginal(ctx, table, current)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve mapping: %w", err)
		}
		if mapping == nil {
			return last, nil
		}

		last = mapping
		nextKey := normalize.Key(mapping.CanonicalName)
		if _, seen := visited[nextKey]; seen {
			m.logger.WithContext(ctx).WithFields(map[string]any{
				"table":    table,
				"original": originalName,
			}).Warn("mapping chain contains a cycle")
			return last, nil
		}
		visited[nextKey] = struct{}{}
		current = mapping.CanonicalName
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"table":    table,
		"original": originalName,
	}).Warn("mapping chain exceeded max length")
	return last, nil
}

// CreateMapping persists a new (original → canonical) mapping. Idempotent by
// original name: when a mapping for the original already exists the call is a
// no-op success returning the existing row. A mapping whose resolution chain
// would lead back to its own original is rejected before any write.
func (m *Mapper) CreateMapping(ctx context.Context, table string, req models.CreateMappingRequest, actor string) (*models.StandardizationMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "Mapper.CreateMapping")
	defer span.End()

	original := normalize.Normalize(req.OriginalName)
	canonical := normalize.Normalize(req.CanonicalName)
	if original == "" || canonical == "" {
		return nil, fmt.Errorf("mapping requires both an original and a canonical name")
	}
	if normalize.Key(original) == normalize.Key(canonical) {
		return nil, fmt.Errorf("mapping cannot relate a name to itself")
	}

	existing, err := m.store.GetByOriginal(ctx, table, original)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing mapping: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	if err := m.checkCycle(ctx, table, original, canonical); err != nil {
		return nil, err
	}

	justification := req.Justification
	viaExisting, err := m.store.ExistsCanonical(ctx, table, canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to check canonical name: %w", err)
	}
	if viaExisting {
		note := "via existing standardization"
		if justification != nil && *justification != "" {
			note = *justification + " (via existing standardization)"
		}
		justification = &note
	}

	id, err := m.store.NextID(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate mapping id: %w", err)
	}

	mapping := &models.StandardizationMapping{
		Table:         table,
		ID:            id,
		OriginalName:  original,
		CanonicalName: canonical,
		CanonicalID:   req.CanonicalID,
		Justification: justification,
		CreatedBy:     actor,
	}

	if err := m.store.Insert(ctx, mapping); err != nil {
		return nil, fmt.Errorf("failed to persist mapping: %w", err)
	}

	return mapping, nil
}

// checkCycle walks the chain starting at canonical and fails if it reaches
// original.
func (m *Mapper) checkCycle(ctx context.Context, table, original, canonical string) error {
	originalKey := normalize.Key(original)
	current := canonical
	for i := 0; i < maxChainLength; i++ {
		if normalize.Key(current) == originalKey {
			return fmt.Errorf("mapping %q -> %q would create a cycle", original, canonical)
		}
		mapping, err := m.store.GetByOriginal(ctx, table, current)
		if err != nil {
			return fmt.Errorf("failed to check mapping chain: %w", err)
		}
		if mapping == nil {
			return nil
		}
		current = mapping.CanonicalName
	}
	return nil
}

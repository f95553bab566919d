package tablestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
)

// Memory is an in-process table store. It enforces the same uniqueness rules
// as the SQL store (per-table record id and normalized name) and supports
// injected write failures, so workflow code can be exercised against it
// without a database.
type Memory struct {
	mu       sync.Mutex
	records  map[string][]models.CanonicalRecord
	mappings map[string][]models.StandardizationMapping
	edges    map[string][]models.HierarchyEdge

	// failInserts makes the next N record inserts fail with a synthetic
	// write error (not a unique violation).
	failInserts int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string][]models.CanonicalRecord),
		mappings: make(map[string][]models.StandardizationMapping),
		edges:    make(map[string][]models.HierarchyEdge),
	}
}

// FailNextInserts makes the next n record inserts fail.
func (m *Memory) FailNextInserts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInserts = n
}

// List returns every record of one logical table.
func (m *Memory) List(_ context.Context, table string) ([]models.CanonicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CanonicalRecord, len(m.records[table]))
	copy(out, m.records[table])
	return out, nil
}

// Entries returns the matching view of one logical table.
func (m *Memory) Entries(_ context.Context, table string) ([]models.ReferenceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]models.ReferenceEntry, 0, len(m.records[table]))
	for _, r := range m.records[table] {
		short := ""
		if r.ShortName != nil {
			short = *r.ShortName
		}
		entries = append(entries, models.ReferenceEntry{ID: r.ID, Name: r.Name, ShortName: short})
	}
	return entries, nil
}

// NextID allocates max existing record id + 1.
func (m *Memory) NextID(_ context.Context, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextRecordIDLocked(table), nil
}

func (m *Memory) nextRecordIDLocked(table string) int64 {
	var max int64
	for _, r := range m.records[table] {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}

// Insert persists a record, enforcing id and normalized-name uniqueness.
func (m *Memory) Insert(_ context.Context, record *models.CanonicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInserts > 0 {
		m.failInserts--
		return fmt.Errorf("synthetic write failure for %q", record.Name)
	}

	key := normalize.Key(record.Name)
	for _, existing := range m.records[record.Table] {
		if existing.ID == record.ID {
			return fmt.Errorf("record id %d already taken in %q: %w", record.ID, record.Table, ErrUniqueViolation)
		}
		if normalize.Key(existing.Name) == key {
			return fmt.Errorf("record name %q already present in %q: %w", record.Name, record.Table, ErrUniqueViolation)
		}
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records[record.Table] = append(m.records[record.Table], *record)
	return nil
}

// Mappings returns a MappingStore view over the same data. Method sets of
// RecordStore and MappingStore overlap (List, NextID, Insert), so the mapping
// surface lives on a separate view type.
func (m *Memory) Mappings() MappingStore {
	return &memoryMappings{m}
}

type memoryMappings struct {
	store *Memory
}

func (v *memoryMappings) List(_ context.Context, table string) ([]models.StandardizationMapping, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	out := make([]models.StandardizationMapping, len(v.store.mappings[table]))
	copy(out, v.store.mappings[table])
	return out, nil
}

func (v *memoryMappings) GetByOriginal(_ context.Context, table string, originalName string) (*models.StandardizationMapping, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	key := normalize.Key(originalName)
	for _, mp := range v.store.mappings[table] {
		if normalize.Key(mp.OriginalName) == key {
			found := mp
			return &found, nil
		}
	}
	return nil, nil
}

func (v *memoryMappings) ExistsCanonical(_ context.Context, table string, canonicalName string) (bool, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	key := normalize.Key(canonicalName)
	for _, mp := range v.store.mappings[table] {
		if normalize.Key(mp.CanonicalName) == key {
			return true, nil
		}
	}
	return false, nil
}

func (v *memoryMappings) NextID(_ context.Context, table string) (int64, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	var max int64
	for _, mp := range v.store.mappings[table] {
		if mp.ID > max {
			max = mp.ID
		}
	}
	return max + 1, nil
}

func (v *memoryMappings) Insert(_ context.Context, mapping *models.StandardizationMapping) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}
	v.store.mappings[mapping.Table] = append(v.store.mappings[mapping.Table], *mapping)
	return nil
}

// Edges returns an EdgeStore view over the same data.
func (m *Memory) Edges() EdgeStore {
	return &memoryEdges{m}
}

type memoryEdges struct {
	store *Memory
}

func (v *memoryEdges) Create(_ context.Context, edge *models.HierarchyEdge) (*models.HierarchyEdge, error) {
	if err := edge.Validate(); err != nil {
		return nil, err
	}

	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	v.store.edges[edge.Table] = append(v.store.edges[edge.Table], *edge)
	return edge, nil
}

func (v *memoryEdges) ListByParent(_ context.Context, table string, parentID int64) ([]models.HierarchyEdge, error) {
	return v.list(table, func(e models.HierarchyEdge) bool { return e.ParentID == parentID })
}

func (v *memoryEdges) ListByChild(_ context.Context, table string, childID int64) ([]models.HierarchyEdge, error) {
	return v.list(table, func(e models.HierarchyEdge) bool { return e.ChildID == childID })
}

func (v *memoryEdges) list(table string, keep func(models.HierarchyEdge) bool) ([]models.HierarchyEdge, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	var out []models.HierarchyEdge
	for _, e := range v.store.edges[table] {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Package resolution ties normalization, matching, standardization, and the
// table store together into the entity-resolution workflow. Every resolution
// runs inside a Session, which pins one immutable snapshot of the reference
// set: the fitted match index is built once per snapshot version and reused
// across queries, and pending review items survive until a human decides.
package resolution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/fingerprint"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tablestore"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// SchemaSource supplies table schemas. A nil source disables schema-driven
// behavior (validation, compound duplicate keys) for sessions on that table.
type SchemaSource interface {
	GetByName(ctx context.Context, name string) (*models.TableSchema, error)
}

// Session pins one version of a table's reference set. The snapshot, fitted
// matcher, and schema never change for the life of the session except through
// an explicit Refresh; pending items and recorded decisions accumulate as
// resolutions suspend and resume.
type Session struct {
	ID        string
	Table     string
	CreatedAt time.Time

	mu        sync.Mutex
	version   string
	entries   []models.ReferenceEntry
	records   []models.CanonicalRecord
	matcher   *matching.Matcher
	schema    *models.TableSchema
	pending   map[string]*models.PendingItem
	order     []string
	decisions map[string]models.Decision
	batch     *batchState
}

// Version returns the snapshot fingerprint the session is pinned to.
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Pending returns the session's unresolved review items in creation order.
func (s *Session) Pending() []models.PendingItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.PendingItem, 0, len(s.order))
	for _, id := range s.order {
		if item, ok := s.pending[id]; ok {
			items = append(items, *item)
		}
	}
	return items
}

// PendingItem returns one review item by id.
func (s *Session) PendingItem(id string) (*models.PendingItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.pending[id]
	if !ok {
		return nil, false
	}
	copied := *item
	return &copied, true
}

func (s *Session) addPending(item *models.PendingItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[item.ID] = item
	s.order = append(s.order, item.ID)
}

func (s *Session) removePending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	delete(s.decisions, id)
}

// SessionManager owns the live sessions and builds their snapshots.
type SessionManager struct {
	store   tablestore.RecordStore
	schemas SchemaSource
	logger  ectologger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a session manager over a record store.
func NewSessionManager(store tablestore.RecordStore, schemas SchemaSource, logger ectologger.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		schemas:  schemas,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for one table: loads the reference snapshot, fits
// the match index, and registers the session for later lookup.
func (m *SessionManager) Open(ctx context.Context, table string) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "SessionManager.Open")
	defer span.End()

	s := &Session{
		ID:        uuid.New().String(),
		Table:     table,
		CreatedAt: time.Now(),
		pending:   make(map[string]*models.PendingItem),
		decisions: make(map[string]models.Decision),
	}

	if err := m.load(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": s.ID,
		"table":      table,
		"records":    len(s.entries),
	}).Info("opened resolution session")

	return s, nil
}

// Get looks up a live session by id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close discards a session. Abandoning a session before its batch commit has
// no side effects; everything it held was in memory.
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Refresh reloads the session's snapshot and refits the matcher. Pending
// items and recorded decisions are kept; they were derived from the older
// snapshot and remain valid for human judgment.
func (m *SessionManager) Refresh(ctx context.Context, s *Session) error {
	ctx, span := tracing.StartSpan(ctx, "SessionManager.Refresh")
	defer span.End()

	return m.load(ctx, s)
}

func (m *SessionManager) load(ctx context.Context, s *Session) error {
	entries, err := m.store.Entries(ctx, s.Table)
	if err != nil {
		return fmt.Errorf("failed to load reference snapshot: %w", err)
	}
	records, err := m.store.List(ctx, s.Table)
	if err != nil {
		return fmt.Errorf("failed to load reference records: %w", err)
	}

	var ts *models.TableSchema
	if m.schemas != nil {
		ts, err = m.schemas.GetByName(ctx, s.Table)
		if err != nil {
			return fmt.Errorf("failed to load table schema: %w", err)
		}
	}

	version := fingerprint.Snapshot(entries)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.matcher != nil && !fingerprint.HasChanged(s.version, version) {
		// Snapshot unchanged: keep the fitted matcher.
		s.records = records
		s.schema = ts
		return nil
	}

	s.version = version
	s.entries = entries
	s.records = records
	s.schema = ts
	s.matcher = matching.New(entries)
	return nil
}

package resolution

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/standardize"
	"github.com/Ramsey-B/sage/pkg/tablestore"
)

const testTable = "institutions"

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type staticSchemas struct {
	schema *models.TableSchema
}

func (s staticSchemas) GetByName(_ context.Context, _ string) (*models.TableSchema, error) {
	return s.schema, nil
}

type harness struct {
	mem    *tablestore.Memory
	mapper *standardize.Mapper
	orch   *Orchestrator
}

func newHarness(t *testing.T, schemas SchemaSource) *harness {
	t.Helper()

	mem := tablestore.NewMemory()
	logger := noopLogger()
	sessions := NewSessionManager(mem, schemas, logger)
	mapper := standardize.NewMapper(mem.Mappings(), logger)
	orch := NewOrchestrator(sessions, mem, mem.Edges(), mapper, nil, nil, logger, DefaultConfig())
	return &harness{mem: mem, mapper: mapper, orch: orch}
}

func (h *harness) open(t *testing.T) *Session {
	t.Helper()
	s, err := h.orch.Sessions().Open(context.Background(), testTable)
	require.NoError(t, err)
	return s
}

func (h *harness) seed(t *testing.T, id int64, name string) {
	t.Helper()
	err := h.mem.Insert(context.Background(), &models.CanonicalRecord{
		Table:     testTable,
		ID:        id,
		Name:      name,
		CreatedBy: "seed",
	})
	require.NoError(t, err)
}

func (h *harness) recordCount(t *testing.T) int {
	t.Helper()
	records, err := h.mem.List(context.Background(), testTable)
	require.NoError(t, err)
	return len(records)
}

func (h *harness) mappingCount(t *testing.T) int {
	t.Helper()
	mappings, err := h.mem.Mappings().List(context.Background(), testTable)
	require.NoError(t, err)
	return len(mappings)
}

func TestResolveExactMatch(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "World Bank")
	s := h.open(t)

	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "  WORLD BANK "})
	require.NoError(t, err)

	assert.Equal(t, models.StateAlreadyExists, outcome.State)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, "World Bank", outcome.Match.Name)
	assert.Equal(t, int64(1), outcome.Match.RecordID)
	assert.Equal(t, models.MatchSourceExactName, outcome.Match.Source)
	assert.Equal(t, 1, h.recordCount(t))
	assert.Equal(t, 0, h.mappingCount(t))
}

func TestResolveInsertsWithSequentialIDs(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	names := []string{"World Bank", "Zenith Partners", "Quantum Shipping"}
	for i, name := range names {
		outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: name, Actor: "tester"})
		require.NoError(t, err)
		require.Equal(t, models.StateInserted, outcome.State, "name %q", name)
		require.NotNil(t, outcome.Record)
		assert.Equal(t, int64(i+1), outcome.Record.ID)
		assert.Equal(t, "tester", outcome.Record.CreatedBy)
	}
	assert.Equal(t, 3, h.recordCount(t))
}

func TestResolveFuzzyGoesToReview(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Petroquim")
	s := h.open(t)

	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "Petroquim SA"})
	require.NoError(t, err)

	assert.Equal(t, models.StatePendingReview, outcome.State)
	assert.NotEmpty(t, outcome.PendingID)
	require.NotEmpty(t, outcome.Candidates)
	assert.Equal(t, "Petroquim", outcome.Candidates[0].Name)
	assert.GreaterOrEqual(t, outcome.Candidates[0].Score, DefaultConfig().ReviewThreshold)

	// Nothing is written while the review is open.
	assert.Equal(t, 1, h.recordCount(t))
	assert.Equal(t, 0, h.mappingCount(t))
	require.Len(t, s.Pending(), 1)
	assert.Equal(t, outcome.PendingID, s.Pending()[0].ID)
}

func TestDecideConfirmCreatesMapping(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Petroquim")
	s := h.open(t)

	pending, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "Petroquim SA", Actor: "reviewer"})
	require.NoError(t, err)
	require.Equal(t, models.StatePendingReview, pending.State)

	why := "same Chilean entity"
	outcome, err := h.orch.Decide(context.Background(), s, pending.PendingID, models.Decision{
		Kind:          models.DecisionConfirmMatch,
		CandidateName: "Petroquim",
		Justification: &why,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateMappingCreated, outcome.State)
	require.NotNil(t, outcome.Mapping)
	assert.Equal(t, "Petroquim SA", outcome.Mapping.OriginalName)
	assert.Equal(t, "Petroquim", outcome.Mapping.CanonicalName)
	require.NotNil(t, outcome.Mapping.CanonicalID)
	assert.Equal(t, int64(1), *outcome.Mapping.CanonicalID)
	assert.Equal(t, "reviewer", outcome.Mapping.CreatedBy)

	// The confirm created a mapping, never a record.
	assert.Equal(t, 1, h.recordCount(t))
	assert.Equal(t, 1, h.mappingCount(t))
	assert.Empty(t, s.Pending())

	// The same spelling now resolves without review.
	again, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "petroquim sa"})
	require.NoError(t, err)
	assert.Equal(t, models.StateAlreadyExists, again.State)
	require.NotNil(t, again.Match)
	assert.Equal(t, models.MatchSourceStandardization, again.Match.Source)
	assert.Equal(t, "Petroquim", again.Match.Name)
}

func TestDecideRejectAllInserts(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Petroquim")
	s := h.open(t)

	pending, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "Petroquim SA"})
	require.NoError(t, err)
	require.Equal(t, models.StatePendingReview, pending.State)

	outcome, err := h.orch.Decide(context.Background(), s, pending.PendingID, models.Decision{Kind: models.DecisionRejectAll})
	require.NoError(t, err)

	assert.Equal(t, models.StateInserted, outcome.State)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, int64(2), outcome.Record.ID)
	assert.Equal(t, "Petroquim SA", outcome.Record.Name)
	assert.Equal(t, 2, h.recordCount(t))
	assert.Equal(t, 0, h.mappingCount(t))
	assert.Empty(t, s.Pending())
}

func TestDecideRejectsUnknownCandidate(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Petroquim")
	s := h.open(t)

	pending, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "Petroquim SA"})
	require.NoError(t, err)

	_, err = h.orch.Decide(context.Background(), s, pending.PendingID, models.Decision{
		Kind:          models.DecisionConfirmMatch,
		CandidateName: "Acme Corp",
	})
	assert.Error(t, err)

	_, err = h.orch.Decide(context.Background(), s, "no-such-item", models.Decision{Kind: models.DecisionRejectAll})
	assert.Error(t, err)
}

func TestResolveViaStandardizationChain(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 7, "World Bank")

	_, err := h.mapper.CreateMapping(context.Background(), testTable, models.CreateMappingRequest{
		OriginalName:  "IBRD",
		CanonicalName: "World Bank",
		CanonicalID:   ptr(int64(7)),
	}, "reviewer")
	require.NoError(t, err)

	s := h.open(t)
	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "ibrd"})
	require.NoError(t, err)

	assert.Equal(t, models.StateAlreadyExists, outcome.State)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, models.MatchSourceStandardization, outcome.Match.Source)
	assert.Equal(t, "World Bank", outcome.Match.Name)
	assert.Equal(t, int64(7), outcome.Match.RecordID)
	assert.Equal(t, 1, h.recordCount(t))
}

func TestResolveCompoundDuplicate(t *testing.T) {
	fields, err := json.Marshal([]models.FieldDescriptor{
		{Name: "name", Type: models.FieldTypeName, Required: true, Role: models.FieldRolePrimary},
		{Name: "instrument", Type: models.FieldTypeText, Required: true, Role: models.FieldRoleDuplicateKey},
		{Name: "currency", Type: models.FieldTypeText, Required: true, Role: models.FieldRoleDuplicateKey},
	})
	require.NoError(t, err)
	schema := &models.TableSchema{ID: "ts-1", Name: testTable, Fields: fields}

	h := newHarness(t, staticSchemas{schema: schema})
	attrs, err := json.Marshal(map[string]any{"instrument": "Total Return Swap", "currency": "USD"})
	require.NoError(t, err)
	require.NoError(t, h.mem.Insert(context.Background(), &models.CanonicalRecord{
		Table:      testTable,
		ID:         1,
		Name:       "Gearing Alpha",
		Attributes: attrs,
		CreatedBy:  "seed",
	}))
	s := h.open(t)

	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{
		Name:       "Leverage Vehicle Nine",
		Attributes: map[string]any{"instrument": "total return swap", "currency": " usd "},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateAlreadyExists, outcome.State)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, models.MatchSourceCompoundKey, outcome.Match.Source)
	assert.Equal(t, "Gearing Alpha", outcome.Match.Name)
	assert.Equal(t, 1, h.recordCount(t))

	// A missing key field disables the check: the row inserts normally.
	partial, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{
		Name:       "Leverage Vehicle Nine",
		Attributes: map[string]any{"instrument": "total return swap"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateInserted, partial.State)
}

func TestResolveCollisionReresolvesAgainstFreshSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	// A concurrent writer lands after the session pinned its snapshot.
	h.seed(t, 1, "World Bank")

	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "World Bank"})
	require.NoError(t, err)

	assert.Equal(t, models.StateAlreadyExists, outcome.State)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, int64(1), outcome.Match.RecordID)
	assert.Equal(t, 1, h.recordCount(t))
}

func TestResolveEmptyNameFails(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{Name: "  ?! "})
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, outcome.State)
	assert.NotEmpty(t, outcome.Reason)
	assert.Equal(t, 0, h.recordCount(t))
}

func TestResolveAttachesParentEdge(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Global Parent Holdings")
	s := h.open(t)

	parentID := int64(1)
	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{
		Name:   "Zenith Partners",
		Parent: &models.ParentRef{RecordID: &parentID, Ownership: 0.6},
	})
	require.NoError(t, err)
	require.Equal(t, models.StateInserted, outcome.State)
	assert.Empty(t, outcome.Diagnostic)

	edges, err := h.mem.Edges().ListByParent(context.Background(), testTable, 1)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, outcome.Record.ID, edges[0].ChildID)
	assert.InDelta(t, 0.6, edges[0].Ownership, 1e-9)
	assert.True(t, edges[0].IsControlling())
}

func TestResolveRejectsInvalidParentBeforeInsert(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Global Parent Holdings")
	s := h.open(t)

	outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{
		Name:   "Zenith Partners",
		Parent: &models.ParentRef{RecordID: ptr(int64(1)), Ownership: 1.5},
	})
	require.NoError(t, err)

	// The bad ownership fails the row up front: no record, no edge.
	assert.Equal(t, models.StateFailed, outcome.State)
	assert.Contains(t, outcome.Diagnostic, "ownership must be within [0,1]")
	assert.Equal(t, 1, h.recordCount(t))
	edges, err := h.mem.Edges().ListByParent(context.Background(), testTable, 1)
	require.NoError(t, err)
	assert.Empty(t, edges)

	// An empty parent reference and a sibling row index are equally invalid
	// outside a batch.
	for _, parent := range []*models.ParentRef{
		{Ownership: 0.5},
		{RowIndex: ptr(0), Ownership: 0.5},
		{RecordID: ptr(int64(1)), RowIndex: ptr(0), Ownership: 0.5},
	} {
		outcome, err := h.orch.Resolve(context.Background(), s, models.ResolutionInput{
			Name:   "Zenith Partners",
			Parent: parent,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StateFailed, outcome.State)
	}
	assert.Equal(t, 1, h.recordCount(t))
}

func TestSuggestRanksSimilarNames(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "Acme Corp")
	h.seed(t, 2, "Acme Corporation")
	h.seed(t, 3, "Zenith Partners")
	s := h.open(t)

	candidates := h.orch.Suggest(context.Background(), s, "Acme Corpp")
	require.NotEmpty(t, candidates)
	assert.LessOrEqual(t, len(candidates), 5)
	assert.Contains(t, []string{"Acme Corp", "Acme Corporation"}, candidates[0].Name)
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
}

func ptr[T any](v T) *T {
	return &v
}

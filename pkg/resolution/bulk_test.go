package resolution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
)

func TestEvaluateBatchFlagsSiblingDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	result, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Acme Corporation"},
		{Name: "Acme Corporatoin"},
		{Name: "Zenith Partners"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 2, result.Summary.Pending)
	assert.Equal(t, 1, result.Summary.Ready)

	assert.Equal(t, models.StatePendingReview, result.Outcomes[0].State)
	assert.Equal(t, models.StatePendingReview, result.Outcomes[1].State)
	assert.Equal(t, models.StateReadyToInsert, result.Outcomes[2].State)

	// Sibling candidates reference uncommitted rows: no record id yet.
	require.NotEmpty(t, result.Outcomes[0].Candidates)
	assert.Equal(t, "Acme Corporatoin", result.Outcomes[0].Candidates[0].Name)
	assert.Zero(t, result.Outcomes[0].Candidates[0].RecordID)

	// Evaluation is read-only.
	assert.Equal(t, 0, h.recordCount(t))
}

func TestEvaluateBatchAndCommitMixedRows(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1, "World Bank")
	s := h.open(t)

	evaluated, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "world bank"},
		{Name: "Zenith Partners"},
		{Name: "  ?! "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, evaluated.Summary.Existing)
	assert.Equal(t, 1, evaluated.Summary.Ready)
	assert.Equal(t, 1, evaluated.Summary.Failed)
	assert.Equal(t, 1, h.recordCount(t))

	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, committed.Summary.Existing)
	assert.Equal(t, 1, committed.Summary.Inserted)
	assert.Equal(t, 1, committed.Summary.Failed)
	assert.Equal(t, models.StateAlreadyExists, committed.Outcomes[0].State)
	assert.Equal(t, models.StateInserted, committed.Outcomes[1].State)
	assert.Equal(t, models.StateFailed, committed.Outcomes[2].State)
	assert.Equal(t, 2, h.recordCount(t))
}

func TestCommitAppliesRecordedDecisions(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	_, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Acme Corporation", Actor: "reviewer"},
		{Name: "Acme Corporatoin", Actor: "reviewer"},
	})
	require.NoError(t, err)

	items := s.Pending()
	require.Len(t, items, 2)
	require.Equal(t, 0, items[0].RowIndex)
	require.Equal(t, 1, items[1].RowIndex)

	// Batch-row decisions are recorded, not applied.
	recorded, err := h.orch.Decide(context.Background(), s, items[0].ID, models.Decision{Kind: models.DecisionRejectAll})
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingReview, recorded.State)
	assert.Contains(t, recorded.Reason, "batch commits")
	assert.Equal(t, 0, h.recordCount(t))

	_, err = h.orch.Decide(context.Background(), s, items[1].ID, models.Decision{
		Kind:          models.DecisionConfirmMatch,
		CandidateName: "Acme Corporation",
	})
	require.NoError(t, err)

	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, committed.Summary.Inserted)
	assert.Equal(t, 1, committed.Summary.Mapped)
	assert.Equal(t, models.StateInserted, committed.Outcomes[0].State)
	assert.Equal(t, models.StateMappingCreated, committed.Outcomes[1].State)

	assert.Equal(t, 1, h.recordCount(t))
	require.Equal(t, 1, h.mappingCount(t))
	mappings, err := h.mem.Mappings().List(context.Background(), testTable)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corporatoin", mappings[0].OriginalName)
	assert.Equal(t, "Acme Corporation", mappings[0].CanonicalName)
	// The confirmed sibling had no record id at decision time.
	assert.Nil(t, mappings[0].CanonicalID)

	assert.Empty(t, s.Pending())
}

func TestCommitSkipsUndecidedRowsAndDetachesThem(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	_, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Acme Corporation"},
		{Name: "Acme Corporatoin"},
	})
	require.NoError(t, err)

	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 2, committed.Summary.Skipped)
	assert.Equal(t, 0, h.recordCount(t))
	for _, outcome := range committed.Outcomes {
		assert.Equal(t, models.StatePendingReview, outcome.State)
		assert.Contains(t, outcome.Reason, "awaiting")
	}

	// Detached from the committed batch: later decisions apply immediately.
	items := s.Pending()
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, -1, item.RowIndex)
	}
	outcome, err := h.orch.Decide(context.Background(), s, items[0].ID, models.Decision{Kind: models.DecisionRejectAll})
	require.NoError(t, err)
	assert.Equal(t, models.StateInserted, outcome.State)
	assert.Equal(t, 1, h.recordCount(t))
}

func TestCommitCollapsesIdenticalSiblings(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	evaluated, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Acme Corp"},
		{Name: "ACME CORP"},
	})
	require.NoError(t, err)

	// Identical names are not fuzzy siblings; the collision surfaces at
	// commit through the store's uniqueness guarantee.
	assert.Equal(t, 2, evaluated.Summary.Ready)

	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, committed.Summary.Inserted)
	assert.Equal(t, 1, committed.Summary.Existing)
	assert.Equal(t, models.StateInserted, committed.Outcomes[0].State)
	assert.Equal(t, models.StateAlreadyExists, committed.Outcomes[1].State)
	require.NotNil(t, committed.Outcomes[1].Match)
	assert.Equal(t, committed.Outcomes[0].Record.ID, committed.Outcomes[1].Match.RecordID)
	assert.Equal(t, 1, h.recordCount(t))
}

func TestCommitIsolatesRowFailures(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	_, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Alpha Omega Trust"},
		{Name: "Zenith Partners"},
	})
	require.NoError(t, err)

	h.mem.FailNextInserts(1)
	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, committed.Summary.Failed)
	assert.Equal(t, 1, committed.Summary.Inserted)
	assert.Equal(t, models.StateFailed, committed.Outcomes[0].State)
	assert.Equal(t, models.StateInserted, committed.Outcomes[1].State)
	assert.Equal(t, 1, h.recordCount(t))
}

func TestCommitCreatesDeferredEdges(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	_, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Global Parent Holdings"},
		{Name: "Zenith Partners", Parent: &models.ParentRef{RowIndex: ptr(0), Ownership: 0.8}},
	})
	require.NoError(t, err)

	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 2, committed.Summary.Inserted)

	parentID := committed.Outcomes[0].Record.ID
	edges, err := h.mem.Edges().ListByParent(context.Background(), testTable, parentID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, committed.Outcomes[1].Record.ID, edges[0].ChildID)
	assert.InDelta(t, 0.8, edges[0].Ownership, 1e-9)
}

func TestSiblingCheckUsesBlockingThreshold(t *testing.T) {
	h := newHarness(t, nil)

	cfg := DefaultConfig()
	cfg.BlockingThreshold = 0.99
	strict := NewOrchestrator(h.orch.sessions, h.mem, h.mem.Edges(), h.mapper, nil, nil, noopLogger(), cfg)
	s := h.open(t)

	// A single transposition scores well above the default blocking
	// threshold but below 0.99: the strict knob lets both rows through.
	result, err := strict.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Acme Corporation"},
		{Name: "Acme Corporatoin"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Ready)
	assert.Equal(t, 0, result.Summary.Pending)
}

func TestEvaluateBatchRejectsInvalidParent(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	evaluated, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Global Parent Holdings"},
		{Name: "Zenith Partners", Parent: &models.ParentRef{RowIndex: ptr(0), Ownership: 1.5}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, evaluated.Summary.Ready)
	assert.Equal(t, 1, evaluated.Summary.Failed)
	assert.Equal(t, models.StateFailed, evaluated.Outcomes[1].State)
	assert.Contains(t, evaluated.Outcomes[1].Diagnostic, "ownership must be within [0,1]")

	// The failed row stays out of the commit: no record, no edge.
	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, committed.Summary.Inserted)
	assert.Equal(t, 1, committed.Summary.Failed)
	assert.Equal(t, 1, h.recordCount(t))

	parentID := committed.Outcomes[0].Record.ID
	edges, err := h.mem.Edges().ListByParent(context.Background(), testTable, parentID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestCommitWithoutEvaluateErrors(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	_, err := h.orch.CommitBatch(context.Background(), s)
	assert.Error(t, err)
}

func TestExportImportDecisionsRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	_, err := h.orch.EvaluateBatch(context.Background(), s, []models.ResolutionInput{
		{Name: "Acme Corporation"},
		{Name: "Acme Corporatoin"},
	})
	require.NoError(t, err)

	rows := h.orch.ExportDecisions(s)
	require.Len(t, rows, 2)

	// Row for the first original is marked different; the other stays
	// unmarked and defaults to confirming its best candidate.
	for i := range rows {
		if rows[i].OriginalName == "Acme Corporation" {
			rows[i].ConfirmInclude = ptr(false)
		}
	}

	outcomes, err := h.orch.ImportDecisions(context.Background(), s, rows)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.Equal(t, models.StatePendingReview, outcome.State)
	}

	committed, err := h.orch.CommitBatch(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, committed.Summary.Inserted)
	assert.Equal(t, 1, committed.Summary.Mapped)
	assert.Equal(t, 1, h.recordCount(t))
	assert.Equal(t, 1, h.mappingCount(t))
}

func TestImportDecisionsUnknownOriginal(t *testing.T) {
	h := newHarness(t, nil)
	s := h.open(t)

	outcomes, err := h.orch.ImportDecisions(context.Background(), s, []models.StandardizationDecisionRow{
		{OriginalName: "Nobody Here", CandidateName: "Whatever", Score: 0.9},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StateFailed, outcomes[0].State)
}

package resolution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// batchState holds the read-only evaluation of a bulk run until it commits
// or the session is abandoned.
type batchState struct {
	inputs  []models.ResolutionInput
	classes []rowClass
}

// EvaluateBatch classifies every row against the session's pinned snapshot
// without writing anything. All rows see the same reference set: a row never
// matches against a sibling row from the same batch, so two in-batch
// duplicates both surface for review instead of racing each other. The
// evaluation replaces any previous uncommitted batch on the session.
func (o *Orchestrator) EvaluateBatch(ctx context.Context, s *Session, inputs []models.ResolutionInput) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.EvaluateBatch")
	defer span.End()

	batch := &batchState{
		inputs:  inputs,
		classes: make([]rowClass, len(inputs)),
	}

	result := &models.BatchResult{
		Outcomes: make([]models.Outcome, len(inputs)),
		Summary:  models.BatchSummary{Total: len(inputs)},
	}

	for i, input := range inputs {
		batch.classes[i] = o.classify(ctx, s, input, i)
	}

	o.flagSiblingDuplicates(ctx, s, batch)

	for i := range batch.classes {
		rc := batch.classes[i]
		result.Outcomes[i] = rc.outcome

		switch rc.outcome.State {
		case models.StateAlreadyExists:
			result.Summary.Existing++
		case models.StatePendingReview:
			result.Summary.Pending++
		case models.StateReadyToInsert:
			result.Summary.Ready++
		case models.StateFailed:
			result.Summary.Failed++
		}
	}

	s.mu.Lock()
	s.batch = batch
	s.mu.Unlock()

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"table":   s.Table,
		"total":   result.Summary.Total,
		"pending": result.Summary.Pending,
		"ready":   result.Summary.Ready,
	}).Info("evaluated bulk batch")

	return result, nil
}

// flagSiblingDuplicates runs the in-batch duplicate check: rows that cleared
// the snapshot checks are fuzzy-compared against the other rows of the same
// batch, so two near-identical rows in one file both surface for review
// instead of silently becoming two records. The check uses the strict
// blocking threshold rather than the interactive one. Sibling candidates
// carry no record id; the referenced row has not been inserted yet.
func (o *Orchestrator) flagSiblingDuplicates(ctx context.Context, s *Session, batch *batchState) {
	entries := make([]models.ReferenceEntry, 0, len(batch.classes))
	for i := range batch.classes {
		if batch.classes[i].normalized == "" {
			continue
		}
		entries = append(entries, models.ReferenceEntry{
			ID:   int64(i + 1),
			Name: batch.classes[i].normalized,
		})
	}
	if len(entries) < 2 {
		return
	}

	siblings := matching.New(entries)

	for i := range batch.classes {
		rc := &batch.classes[i]
		if rc.outcome.State != models.StateReadyToInsert {
			continue
		}

		found := safeFindSimilar(siblings, rc.normalized, o.cfg.BlockingThreshold)
		candidates := make([]models.MatchCandidate, 0, len(found))
		for _, c := range found {
			if c.RecordID == int64(i+1) {
				continue
			}
			candidates = append(candidates, models.MatchCandidate{Name: c.Name, Score: c.Score})
		}
		if len(candidates) == 0 {
			continue
		}

		item := &models.PendingItem{
			ID:              uuid.New().String(),
			RowIndex:        i,
			Input:           batch.inputs[i],
			NormalizedInput: rc.normalized,
			Candidates:      candidates,
			CreatedAt:       time.Now(),
		}
		s.addPending(item)
		if o.events != nil {
			o.events.ReviewPending(ctx, s.Table, item)
		}
		rc.outcome = pendingOutcome(item)
	}
}

// CommitBatch performs the write phase of the current batch: inserts for
// clean rows and rejected matches, mappings for confirmed matches, then
// hierarchy edges once every referenced row has a known id. Rows still
// awaiting a decision are skipped and stay pending. One row's write failure
// never aborts its siblings.
func (o *Orchestrator) CommitBatch(ctx context.Context, s *Session) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.CommitBatch")
	defer span.End()

	s.mu.Lock()
	batch := s.batch
	s.mu.Unlock()
	if batch == nil {
		return nil, fmt.Errorf("session has no evaluated batch to commit")
	}

	result := &models.BatchResult{
		Outcomes: make([]models.Outcome, len(batch.inputs)),
		Summary:  models.BatchSummary{Total: len(batch.inputs)},
	}

	for i := range batch.inputs {
		outcome := o.commitRow(ctx, s, batch, i)
		result.Outcomes[i] = outcome

		switch outcome.State {
		case models.StateInserted:
			result.Summary.Inserted++
		case models.StateMappingCreated:
			result.Summary.Mapped++
		case models.StateAlreadyExists:
			result.Summary.Existing++
		case models.StateFailed:
			result.Summary.Failed++
		case models.StatePendingReview:
			result.Summary.Skipped++
		}
	}

	o.createDeferredEdges(ctx, s, batch, result)
	o.finishBatch(s, batch)

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"table":    s.Table,
		"inserted": result.Summary.Inserted,
		"mapped":   result.Summary.Mapped,
		"existing": result.Summary.Existing,
		"failed":   result.Summary.Failed,
		"skipped":  result.Summary.Skipped,
	}).Info("committed bulk batch")

	return result, nil
}

func (o *Orchestrator) commitRow(ctx context.Context, s *Session, batch *batchState, i int) models.Outcome {
	rc := batch.classes[i]
	input := batch.inputs[i]

	switch rc.outcome.State {
	case models.StateFailed, models.StateAlreadyExists:
		return rc.outcome

	case models.StateReadyToInsert:
		return o.insertRow(ctx, s, input, rc.normalized, true)

	case models.StatePendingReview:
		s.mu.Lock()
		decision, decided := s.decisions[rc.outcome.PendingID]
		s.mu.Unlock()
		if !decided {
			out := rc.outcome
			out.Reason = "awaiting a review decision"
			return out
		}

		item, ok := s.PendingItem(rc.outcome.PendingID)
		if !ok {
			return failedOutcome(input.Name, rc.normalized, "pending item vanished before commit", nil)
		}
		defer s.removePending(item.ID)

		if decision.Kind == models.DecisionRejectAll {
			return o.insertRow(ctx, s, input, rc.normalized, true)
		}

		var chosen *models.MatchCandidate
		for ci := range item.Candidates {
			if item.Candidates[ci].Name == decision.CandidateName {
				chosen = &item.Candidates[ci]
				break
			}
		}
		if chosen == nil {
			return failedOutcome(input.Name, rc.normalized,
				fmt.Sprintf("recorded candidate %q is no longer among the surfaced candidates", decision.CandidateName), nil)
		}
		outcome, _ := o.applyConfirm(ctx, s, item, chosen, decision.Justification)
		return outcome

	default:
		return rc.outcome
	}
}

// createDeferredEdges runs after every row's write so each referenced sibling
// row has its allocated id. Edges use those ids directly rather than
// re-fetching the reference set by name, which would be slow and racy for
// rows inserted moments ago.
func (o *Orchestrator) createDeferredEdges(ctx context.Context, s *Session, batch *batchState, result *models.BatchResult) {
	if o.edges == nil {
		return
	}

	for i := range batch.inputs {
		parent := batch.inputs[i].Parent
		if parent == nil {
			continue
		}
		child := result.Outcomes[i]
		if child.State != models.StateInserted {
			continue
		}

		parentID, ok := o.resolveParentID(parent, result)
		if !ok {
			result.Outcomes[i].Diagnostic = "record inserted but its hierarchy parent row did not produce a record id"
			continue
		}

		ref := models.ParentRef{RecordID: &parentID, Ownership: parent.Ownership}
		o.createParentEdge(ctx, s, &ref, child.Record.ID, actorOf(batch.inputs[i]), &result.Outcomes[i])
	}
}

// resolveParentID finds the parent record id: directly supplied, or from a
// sibling row's committed outcome.
func (o *Orchestrator) resolveParentID(parent *models.ParentRef, result *models.BatchResult) (int64, bool) {
	if parent.RecordID != nil {
		return *parent.RecordID, true
	}
	if parent.RowIndex == nil || *parent.RowIndex < 0 || *parent.RowIndex >= len(result.Outcomes) {
		return 0, false
	}

	ref := result.Outcomes[*parent.RowIndex]
	switch ref.State {
	case models.StateInserted:
		return ref.Record.ID, true
	case models.StateAlreadyExists, models.StateMappingCreated:
		if ref.Match != nil && ref.Match.RecordID != 0 {
			return ref.Match.RecordID, true
		}
	}
	return 0, false
}

// finishBatch clears the committed batch. Rows left pending detach from the
// batch so later decisions apply immediately instead of waiting for a commit
// that will never come.
func (o *Orchestrator) finishBatch(s *Session, batch *batchState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rc := range batch.classes {
		if rc.outcome.State == models.StatePendingReview {
			if item, ok := s.pending[rc.outcome.PendingID]; ok {
				item.RowIndex = -1
			}
		}
	}
	if s.batch == batch {
		s.batch = nil
	}
}

// ExportDecisions renders the session's pending items as a review table: one
// row per (original, candidate) pair with the score and an empty decision
// column. The file round-trips through ImportDecisions.
func (o *Orchestrator) ExportDecisions(s *Session) []models.StandardizationDecisionRow {
	var rows []models.StandardizationDecisionRow
	for _, item := range s.Pending() {
		for _, c := range item.Candidates {
			id := c.RecordID
			rows = append(rows, models.StandardizationDecisionRow{
				OriginalName:  item.NormalizedInput,
				CandidateName: c.Name,
				CandidateID:   &id,
				Score:         c.Score,
			})
		}
	}
	return rows
}

// ImportDecisions applies a bulk-reviewed decision file: rows are grouped by
// original name and converted into confirm/reject decisions. A row marked
// true confirms that candidate; an original whose rows are all explicitly
// false rejects every candidate; unmarked rows default to confirming the
// highest-scoring candidate, mirroring the long-standing bulk-review policy.
func (o *Orchestrator) ImportDecisions(ctx context.Context, s *Session, rows []models.StandardizationDecisionRow) ([]models.Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.ImportDecisions")
	defer span.End()

	grouped := make(map[string][]models.StandardizationDecisionRow)
	var order []string
	for _, row := range rows {
		key := normalize.Key(row.OriginalName)
		if key == "" {
			continue
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}

	var outcomes []models.Outcome
	for _, key := range order {
		item, ok := o.findPendingByOriginal(s, key)
		if !ok {
			outcomes = append(outcomes, failedOutcome(grouped[key][0].OriginalName, "",
				"no pending review item matches this original name", nil))
			continue
		}

		decision := decideFromRows(grouped[key])
		outcome, err := o.Decide(ctx, s, item.ID, decision)
		if err != nil {
			outcomes = append(outcomes, failedOutcome(item.Input.Name, item.NormalizedInput,
				"could not apply the imported decision", err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (o *Orchestrator) findPendingByOriginal(s *Session, originalKey string) (*models.PendingItem, bool) {
	for _, item := range s.Pending() {
		if normalize.Key(item.NormalizedInput) == originalKey {
			found := item
			return &found, true
		}
	}
	return nil, false
}

// decideFromRows reduces one original's decision rows to a single decision.
func decideFromRows(rows []models.StandardizationDecisionRow) models.Decision {
	allMarkedFalse := true
	var best *models.StandardizationDecisionRow
	for i := range rows {
		row := &rows[i]
		if row.ConfirmInclude == nil {
			allMarkedFalse = false
			if best == nil || row.Score > best.Score {
				best = row
			}
			continue
		}
		if *row.ConfirmInclude {
			return models.Decision{
				Kind:          models.DecisionConfirmMatch,
				CandidateName: row.CandidateName,
				Justification: row.Justification,
			}
		}
	}

	if allMarkedFalse {
		return models.Decision{Kind: models.DecisionRejectAll}
	}

	// Unmarked rows default to confirm.
	return models.Decision{
		Kind:          models.DecisionConfirmMatch,
		CandidateName: best.CandidateName,
		Justification: best.Justification,
	}
}

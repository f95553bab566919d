package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/extractor"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
	"github.com/Ramsey-B/sage/pkg/schema"
	"github.com/Ramsey-B/sage/pkg/standardize"
	"github.com/Ramsey-B/sage/pkg/tablestore"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// InputValidator checks an input row against its table's schema before any
// matching or I/O happens.
type InputValidator interface {
	ValidateInput(ctx context.Context, table string, input models.ResolutionInput) (schema.ValidationResult, error)
}

// EventSink receives lifecycle notifications. Emission is fire-and-forget:
// event failures never fail the resolution that produced them.
type EventSink interface {
	RecordCreated(ctx context.Context, record *models.CanonicalRecord)
	MappingCreated(ctx context.Context, mapping *models.StandardizationMapping)
	ReviewPending(ctx context.Context, table string, item *models.PendingItem)
	EdgeCreated(ctx context.Context, edge *models.HierarchyEdge)
}

// Config tunes the orchestrator.
type Config struct {
	// ReviewThreshold is the fuzzy score at or above which candidates are
	// surfaced for human review.
	ReviewThreshold float64
	// BlockingThreshold is the stricter score used for in-batch sibling
	// duplicate blocking. One file often carries legitimately similar
	// distinct names, so siblings block each other only when near-certain.
	BlockingThreshold float64
	// ShortNameLength is the display budget for generated short names.
	ShortNameLength int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ReviewThreshold:   matching.DefaultReviewThreshold,
		BlockingThreshold: matching.DefaultBlockingThreshold,
		ShortNameLength:   normalize.DefaultShortNameLength,
	}
}

// Orchestrator walks each incoming name through the resolution state machine:
// normalize, exact check, compound duplicate check, fuzzy check, then either
// suspension for review or insert. Duplicates and ambiguity are structured
// outcomes, never errors.
type Orchestrator struct {
	sessions  *SessionManager
	store     tablestore.RecordStore
	edges     tablestore.EdgeStore
	mapper    *standardize.Mapper
	validator InputValidator
	extract   *extractor.Extractor
	events    EventSink
	logger    ectologger.Logger
	cfg       Config
}

// NewOrchestrator wires the resolution pipeline. validator and events may be
// nil to disable schema validation and event emission.
func NewOrchestrator(
	sessions *SessionManager,
	store tablestore.RecordStore,
	edges tablestore.EdgeStore,
	mapper *standardize.Mapper,
	validator InputValidator,
	events EventSink,
	logger ectologger.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = matching.DefaultReviewThreshold
	}
	if cfg.BlockingThreshold <= 0 {
		cfg.BlockingThreshold = matching.DefaultBlockingThreshold
	}
	if cfg.ShortNameLength <= 0 {
		cfg.ShortNameLength = normalize.DefaultShortNameLength
	}
	return &Orchestrator{
		sessions:  sessions,
		store:     store,
		edges:     edges,
		mapper:    mapper,
		validator: validator,
		extract:   extractor.New(),
		events:    events,
		logger:    logger,
		cfg:       cfg,
	}
}

// Sessions exposes the session manager.
func (o *Orchestrator) Sessions() *SessionManager {
	return o.sessions
}

// Resolve runs one input through the full state machine inside a session.
// Terminal states are AlreadyExists, MappingCreated, Inserted, or Failed;
// PendingReview suspends the input in the session until Decide is called.
func (o *Orchestrator) Resolve(ctx context.Context, s *Session, input models.ResolutionInput) (models.Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.Resolve")
	defer span.End()

	rc := o.classify(ctx, s, input, -1)
	if rc.outcome.State != models.StateReadyToInsert {
		return rc.outcome, nil
	}

	outcome := o.insertRow(ctx, s, input, rc.normalized, true)
	if outcome.State == models.StateInserted && input.Parent != nil && input.Parent.RecordID != nil {
		o.createParentEdge(ctx, s, input.Parent, outcome.Record.ID, actorOf(input), &outcome)
	}
	return outcome, nil
}

// Suggest returns the top ranked similar names for interactive display,
// regardless of threshold.
func (o *Orchestrator) Suggest(ctx context.Context, s *Session, name string) []models.MatchCandidate {
	_, span := tracing.StartSpan(ctx, "Orchestrator.Suggest")
	defer span.End()

	matcher, _, _ := s.snapshot()
	return safeTopCandidates(matcher, name)
}

// Decide resolves a pending review item. For items raised by single
// resolutions the decision applies immediately; for batch rows the decision
// is recorded and applied when the batch commits.
func (o *Orchestrator) Decide(ctx context.Context, s *Session, pendingID string, decision models.Decision) (models.Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.Decide")
	defer span.End()

	item, ok := s.PendingItem(pendingID)
	if !ok {
		return models.Outcome{}, fmt.Errorf("pending item %q not found", pendingID)
	}

	var chosen *models.MatchCandidate
	switch decision.Kind {
	case models.DecisionConfirmMatch:
		for i := range item.Candidates {
			if item.Candidates[i].Name == decision.CandidateName {
				chosen = &item.Candidates[i]
				break
			}
		}
		if chosen == nil {
			return models.Outcome{}, fmt.Errorf("candidate %q is not among the surfaced candidates", decision.CandidateName)
		}
	case models.DecisionRejectAll:
	default:
		return models.Outcome{}, fmt.Errorf("unknown decision kind %q", decision.Kind)
	}

	if item.RowIndex >= 0 {
		s.mu.Lock()
		s.decisions[pendingID] = decision
		s.mu.Unlock()
		out := pendingOutcome(item)
		out.Reason = "decision recorded; it applies when the batch commits"
		return out, nil
	}

	defer s.removePending(pendingID)

	if decision.Kind == models.DecisionRejectAll {
		outcome := o.insertRow(ctx, s, item.Input, item.NormalizedInput, true)
		if outcome.State == models.StateInserted && item.Input.Parent != nil && item.Input.Parent.RecordID != nil {
			o.createParentEdge(ctx, s, item.Input.Parent, outcome.Record.ID, actorOf(item.Input), &outcome)
		}
		return outcome, nil
	}

	return o.applyConfirm(ctx, s, item, chosen, decision.Justification)
}

// applyConfirm turns a confirmed candidate into a standardization mapping.
// No new canonical record is created.
func (o *Orchestrator) applyConfirm(ctx context.Context, s *Session, item *models.PendingItem, chosen *models.MatchCandidate, justification *string) (models.Outcome, error) {
	req := models.CreateMappingRequest{
		OriginalName:  item.NormalizedInput,
		CanonicalName: chosen.Name,
		Justification: justification,
	}
	// Sibling candidates from an uncommitted batch carry no record id yet.
	if chosen.RecordID != 0 {
		req.CanonicalID = &chosen.RecordID
	}
	mapping, err := o.mapper.CreateMapping(ctx, s.Table, req, actorOf(item.Input))
	if err != nil {
		return failedOutcome(item.Input.Name, item.NormalizedInput,
			"could not persist the confirmed match", err), nil
	}

	if o.events != nil {
		o.events.MappingCreated(ctx, mapping)
	}

	return models.Outcome{
		State:           models.StateMappingCreated,
		Input:           item.Input.Name,
		NormalizedInput: item.NormalizedInput,
		Match: &models.MatchReference{
			Name:     chosen.Name,
			RecordID: chosen.RecordID,
			Source:   models.MatchSourceStandardization,
		},
		Mapping: mapping,
	}, nil
}

// rowClass is the outcome of the read-only half of the state machine.
type rowClass struct {
	outcome    models.Outcome
	normalized string
}

// classify runs Normalize → ExactCheck → CompoundDuplicateCheck → FuzzyCheck
// without writing anything. rowIndex is -1 outside bulk flows.
func (o *Orchestrator) classify(ctx context.Context, s *Session, input models.ResolutionInput, rowIndex int) rowClass {
	matcher, records, tableSchema := s.snapshot()

	// A malformed parent reference fails the row before anything is written:
	// an insert without its edge would be a half-applied hierarchy intent.
	if input.Parent != nil {
		if err := input.Parent.Validate(rowIndex >= 0); err != nil {
			return rowClass{outcome: failedOutcome(input.Name, "", "the parent reference failed validation", err)}
		}
	}

	if o.validator != nil && tableSchema != nil {
		result, err := o.validator.ValidateInput(ctx, s.Table, input)
		if err != nil {
			return rowClass{outcome: failedOutcome(input.Name, "", "could not validate the input row", err)}
		}
		if !result.Valid {
			return rowClass{outcome: validationOutcome(input.Name, result)}
		}
	}

	normalized := normalize.Normalize(input.Name)
	if normalized == "" {
		return rowClass{outcome: failedOutcome(input.Name, "", "name is empty after normalization", nil)}
	}

	// ExactCheck: live records first, then the standardization layer.
	if match, ok := matcher.FindExact(normalized); ok {
		return rowClass{
			normalized: normalized,
			outcome: models.Outcome{
				State:           models.StateAlreadyExists,
				Input:           input.Name,
				NormalizedInput: normalized,
				Match:           match,
			},
		}
	}

	mapping, err := o.mapper.Resolve(ctx, s.Table, normalized)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Warn("standardization lookup failed, continuing without it")
	} else if mapping != nil {
		match := &models.MatchReference{
			Name:   mapping.CanonicalName,
			Source: models.MatchSourceStandardization,
		}
		if mapping.CanonicalID != nil {
			match.RecordID = *mapping.CanonicalID
		}
		return rowClass{
			normalized: normalized,
			outcome: models.Outcome{
				State:           models.StateAlreadyExists,
				Input:           input.Name,
				NormalizedInput: normalized,
				Match:           match,
			},
		}
	}

	if match := o.compoundCheck(ctx, tableSchema, records, input); match != nil {
		return rowClass{
			normalized: normalized,
			outcome: models.Outcome{
				State:           models.StateAlreadyExists,
				Input:           input.Name,
				NormalizedInput: normalized,
				Match:           match,
			},
		}
	}

	candidates := safeFindSimilar(matcher, normalized, o.cfg.ReviewThreshold)
	if len(candidates) > 0 {
		item := &models.PendingItem{
			ID:              uuid.New().String(),
			RowIndex:        rowIndex,
			Input:           input,
			NormalizedInput: normalized,
			Candidates:      candidates,
			CreatedAt:       time.Now(),
		}
		s.addPending(item)
		if o.events != nil {
			o.events.ReviewPending(ctx, s.Table, item)
		}
		return rowClass{normalized: normalized, outcome: pendingOutcome(item)}
	}

	return rowClass{
		normalized: normalized,
		outcome: models.Outcome{
			State:           models.StateReadyToInsert,
			Input:           input.Name,
			NormalizedInput: normalized,
		},
	}
}

// compoundCheck looks for an existing row matching the input on every
// configured duplicate-key field at once. It only runs when the input has all
// key fields non-empty. Name-like fields compare on the normalized key;
// everything else compares lowercased and trimmed.
func (o *Orchestrator) compoundCheck(ctx context.Context, tableSchema *models.TableSchema, records []models.CanonicalRecord, input models.ResolutionInput) *models.MatchReference {
	if tableSchema == nil {
		return nil
	}
	keyFields := tableSchema.DuplicateKeyFields()
	if len(keyFields) == 0 {
		return nil
	}

	inputValues := make([]string, len(keyFields))
	for i, f := range keyFields {
		value, err := o.extract.ExtractString(input.Attributes, f.Name)
		if err != nil || value == nil || strings.TrimSpace(*value) == "" {
			return nil
		}
		inputValues[i] = compareValue(*value, f.Type)
	}

	for ri := range records {
		attrs, err := records[ri].AttributeMap()
		if err != nil {
			continue
		}
		matched := true
		for i, f := range keyFields {
			value, err := o.extract.ExtractString(attrs, f.Name)
			if err != nil || value == nil || compareValue(*value, f.Type) != inputValues[i] {
				matched = false
				break
			}
		}
		if matched {
			return &models.MatchReference{
				Name:     records[ri].Name,
				RecordID: records[ri].ID,
				Source:   models.MatchSourceCompoundKey,
			}
		}
	}
	return nil
}

// insertRow allocates the next id and persists a new canonical record. When
// allowReresolve is set, a unique violation triggers one snapshot refresh and
// re-resolution: another writer may have inserted the same name concurrently.
func (o *Orchestrator) insertRow(ctx context.Context, s *Session, input models.ResolutionInput, normalized string, allowReresolve bool) models.Outcome {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.insertRow")
	defer span.End()

	id, err := o.store.NextID(ctx, s.Table)
	if err != nil {
		return failedOutcome(input.Name, normalized, "could not allocate a record id", err)
	}

	record, err := o.buildRecord(s, input, normalized, id)
	if err != nil {
		return failedOutcome(input.Name, normalized, "could not assemble the record", err)
	}

	err = o.store.Insert(ctx, record)
	if err != nil {
		if errors.Is(err, tablestore.ErrUniqueViolation) && allowReresolve {
			return o.reresolveAfterCollision(ctx, s, input, normalized)
		}
		return failedOutcome(input.Name, normalized, "the table store rejected the insert", err)
	}

	if o.events != nil {
		o.events.RecordCreated(ctx, record)
	}

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"table":     s.Table,
		"record_id": record.ID,
		"name":      record.Name,
	}).Info("resolved input to a new canonical record")

	return models.Outcome{
		State:           models.StateInserted,
		Input:           input.Name,
		NormalizedInput: normalized,
		Record:          record,
	}
}

// reresolveAfterCollision handles the shared-store race: the snapshot was
// stale and someone else inserted a colliding row. Refresh once and walk the
// read-only checks again; if the name now exists that is the answer,
// otherwise retry the insert with a fresh id.
func (o *Orchestrator) reresolveAfterCollision(ctx context.Context, s *Session, input models.ResolutionInput, normalized string) models.Outcome {
	o.logger.WithContext(ctx).WithFields(map[string]any{
		"table": s.Table,
		"name":  normalized,
	}).Warn("insert collided with a concurrent writer, refreshing snapshot")

	if err := o.sessions.Refresh(ctx, s); err != nil {
		return failedOutcome(input.Name, normalized, "could not refresh the reference snapshot after a collision", err)
	}

	matcher, _, _ := s.snapshot()
	if match, ok := matcher.FindExact(normalized); ok {
		return models.Outcome{
			State:           models.StateAlreadyExists,
			Input:           input.Name,
			NormalizedInput: normalized,
			Match:           match,
		}
	}

	return o.insertRow(ctx, s, input, normalized, false)
}

// buildRecord assembles the canonical record: normalized name, generated
// short name, caller attributes, and schema-declared audit metadata.
func (o *Orchestrator) buildRecord(s *Session, input models.ResolutionInput, normalized string, id int64) (*models.CanonicalRecord, error) {
	_, _, tableSchema := s.snapshot()
	actor := actorOf(input)

	attrs := make(map[string]any, len(input.Attributes)+2)
	for k, v := range input.Attributes {
		attrs[k] = v
	}
	if tableSchema != nil {
		if fields, err := tableSchema.FieldList(); err == nil {
			for _, f := range fields {
				if f.Role != models.FieldRoleAudit {
					continue
				}
				switch f.Type {
				case models.FieldTypeYear:
					attrs[f.Name] = time.Now().Year()
				case models.FieldTypeName, models.FieldTypeText:
					attrs[f.Name] = actor
				}
			}
		}
	}

	var attrJSON json.RawMessage
	if len(attrs) > 0 {
		encoded, err := json.Marshal(attrs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attributes: %w", err)
		}
		attrJSON = encoded
	}

	var shortName *string
	if generated := normalize.GenerateShortName(normalized, o.cfg.ShortNameLength); generated != "" && generated != normalized {
		shortName = &generated
	}

	return &models.CanonicalRecord{
		Table:      s.Table,
		ID:         id,
		Name:       normalized,
		ShortName:  shortName,
		Attributes: attrJSON,
		CreatedBy:  actor,
	}, nil
}

// createParentEdge attaches a freshly inserted record under an existing
// parent. Edge failures do not demote the insert outcome; they surface as a
// diagnostic.
func (o *Orchestrator) createParentEdge(ctx context.Context, s *Session, parent *models.ParentRef, childID int64, actor string, outcome *models.Outcome) {
	if o.edges == nil {
		return
	}
	edge := &models.HierarchyEdge{
		Table:     s.Table,
		ParentID:  *parent.RecordID,
		ChildID:   childID,
		Ownership: parent.Ownership,
		CreatedBy: actor,
	}
	created, err := o.edges.Create(ctx, edge)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("failed to create hierarchy edge")
		outcome.Diagnostic = fmt.Sprintf("record inserted but hierarchy edge failed: %v", err)
		return
	}
	if o.events != nil {
		o.events.EdgeCreated(ctx, created)
	}
}

// snapshot returns the session's pinned matcher, records, and schema.
func (s *Session) snapshot() (*matching.Matcher, []models.CanonicalRecord, *models.TableSchema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matcher, s.records, s.schema
}

func safeFindSimilar(matcher *matching.Matcher, query string, threshold float64) (out []models.MatchCandidate) {
	// A broken index yields no candidates, never a crash: a missed duplicate
	// is recoverable, an aborted workflow is not.
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	return matcher.FindSimilar(query, threshold)
}

func safeTopCandidates(matcher *matching.Matcher, query string) (out []models.MatchCandidate) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	return matcher.TopCandidates(query)
}

func compareValue(value string, fieldType models.FieldType) string {
	if fieldType == models.FieldTypeName {
		return normalize.Key(value)
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func actorOf(input models.ResolutionInput) string {
	if input.Actor != "" {
		return input.Actor
	}
	return "system"
}

func pendingOutcome(item *models.PendingItem) models.Outcome {
	return models.Outcome{
		State:           models.StatePendingReview,
		Input:           item.Input.Name,
		NormalizedInput: item.NormalizedInput,
		Candidates:      item.Candidates,
		PendingID:       item.ID,
	}
}

func failedOutcome(input, normalized, reason string, err error) models.Outcome {
	out := models.Outcome{
		State:           models.StateFailed,
		Input:           input,
		NormalizedInput: normalized,
		Reason:          reason,
	}
	if err != nil {
		out.Diagnostic = err.Error()
	}
	return out
}

func validationOutcome(input string, result schema.ValidationResult) models.Outcome {
	parts := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return models.Outcome{
		State:      models.StateFailed,
		Input:      input,
		Reason:     "the input row failed validation",
		Diagnostic: strings.Join(parts, "; "),
	}
}

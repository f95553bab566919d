// Package events emits resolution lifecycle events. The emitter satisfies the
// orchestrator's sink: emission is fire-and-forget and a broker outage never
// fails the resolution that produced the event.
package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/sage/pkg/tracing"

	"github.com/Ramsey-B/sage/pkg/fingerprint"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
)

// SchemaVersion is the current event payload version
const SchemaVersion = "1.0"

// Event types on the resolution stream.
const (
	TypeRecordCreated  = "record.created"
	TypeMappingCreated = "mapping.created"
	TypeReviewPending  = "review.pending"
	TypeEdgeCreated    = "hierarchy.edge.created"
)

// Publisher is the broker surface the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, event *kafka.Event) error
}

// Emitter publishes resolution lifecycle events to Kafka
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// RecordCreated emits a record.created event. The payload carries the
// attribute fingerprint so consumers can detect payload changes without
// diffing the attributes themselves.
func (e *Emitter) RecordCreated(ctx context.Context, record *models.CanonicalRecord) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RecordCreated")
	defer span.End()

	fp, err := fingerprint.AttributesFromJSON(record.Attributes)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("could not fingerprint record attributes")
	}

	e.publish(ctx, &kafka.Event{
		EventType: TypeRecordCreated,
		Table:     record.Table,
		Key:       strconv.FormatInt(record.ID, 10),
		Payload:   recordPayload(record, fp),
	})
}

// MappingCreated emits a mapping.created event
func (e *Emitter) MappingCreated(ctx context.Context, mapping *models.StandardizationMapping) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MappingCreated")
	defer span.End()

	e.publish(ctx, &kafka.Event{
		EventType: TypeMappingCreated,
		Table:     mapping.Table,
		Key:       strconv.FormatInt(mapping.ID, 10),
		Payload:   payload(mapping),
	})
}

// ReviewPending emits a review.pending event so reviewers can be notified.
// The payload carries the candidates and scores but not the session id;
// consumers reach pending items through the API.
func (e *Emitter) ReviewPending(ctx context.Context, table string, item *models.PendingItem) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ReviewPending")
	defer span.End()

	e.publish(ctx, &kafka.Event{
		EventType: TypeReviewPending,
		Table:     table,
		Key:       item.ID,
		Payload:   payload(item),
	})
}

// EdgeCreated emits a hierarchy.edge.created event
func (e *Emitter) EdgeCreated(ctx context.Context, edge *models.HierarchyEdge) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EdgeCreated")
	defer span.End()

	e.publish(ctx, &kafka.Event{
		EventType: TypeEdgeCreated,
		Table:     edge.Table,
		Key:       edge.ID,
		Payload:   payload(edge),
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.Event) {
	if err := e.producer.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"table":      event.Table,
		}).Error("Failed to emit lifecycle event")
	}
}

func payload(v any) json.RawMessage {
	data, err := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"data":           v,
	})
	if err != nil {
		return nil
	}
	return data
}

func recordPayload(record *models.CanonicalRecord, fp string) json.RawMessage {
	data, err := json.Marshal(map[string]any{
		"schema_version":         SchemaVersion,
		"data":                   record,
		"attributes_fingerprint": fp,
	})
	if err != nil {
		return nil
	}
	return data
}

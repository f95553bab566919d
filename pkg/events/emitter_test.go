package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/fingerprint"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type capturePublisher struct {
	events []*kafka.Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, event *kafka.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func TestRecordCreatedCarriesAttributeFingerprint(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewEmitter(pub, noopLogger())

	attrs, err := json.Marshal(map[string]any{"country": "CL", "sector": "energy"})
	require.NoError(t, err)
	emitter.RecordCreated(context.Background(), &models.CanonicalRecord{
		Table:      "institutions",
		ID:         42,
		Name:       "Petroquim",
		Attributes: attrs,
	})

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, TypeRecordCreated, event.EventType)
	assert.Equal(t, "institutions", event.Table)
	assert.Equal(t, "42", event.Key)

	var body struct {
		SchemaVersion         string `json:"schema_version"`
		AttributesFingerprint string `json:"attributes_fingerprint"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &body))
	assert.Equal(t, SchemaVersion, body.SchemaVersion)
	assert.Equal(t, fingerprint.Attributes(map[string]any{"sector": "energy", "country": "CL"}), body.AttributesFingerprint)
}

func TestRecordCreatedWithoutAttributes(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewEmitter(pub, noopLogger())

	emitter.RecordCreated(context.Background(), &models.CanonicalRecord{
		Table: "institutions",
		ID:    7,
		Name:  "World Bank",
	})

	require.Len(t, pub.events, 1)
	var body struct {
		AttributesFingerprint string `json:"attributes_fingerprint"`
	}
	require.NoError(t, json.Unmarshal(pub.events[0].Payload, &body))
	assert.Equal(t, fingerprint.Attributes(nil), body.AttributesFingerprint)
}

func TestEmitterSwallowsPublishFailures(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	emitter := NewEmitter(pub, noopLogger())

	// A broker outage must never panic or bubble up to the resolution.
	emitter.MappingCreated(context.Background(), &models.StandardizationMapping{Table: "institutions", ID: 1})
	assert.Empty(t, pub.events)
}

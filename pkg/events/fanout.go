package events

import (
	"context"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/resolution"
)

// Fanout delivers each lifecycle event to every configured sink. Sinks are
// independent: the graph mirror still runs when the broker is down.
type Fanout struct {
	sinks []resolution.EventSink
}

// NewFanout combines multiple sinks into one. Nil sinks are skipped.
func NewFanout(sinks ...resolution.EventSink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) RecordCreated(ctx context.Context, record *models.CanonicalRecord) {
	for _, s := range f.sinks {
		s.RecordCreated(ctx, record)
	}
}

func (f *Fanout) MappingCreated(ctx context.Context, mapping *models.StandardizationMapping) {
	for _, s := range f.sinks {
		s.MappingCreated(ctx, mapping)
	}
}

func (f *Fanout) ReviewPending(ctx context.Context, table string, item *models.PendingItem) {
	for _, s := range f.sinks {
		s.ReviewPending(ctx, table, item)
	}
}

func (f *Fanout) EdgeCreated(ctx context.Context, edge *models.HierarchyEdge) {
	for _, s := range f.sinks {
		s.EdgeCreated(ctx, edge)
	}
}

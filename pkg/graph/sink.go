package graph

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/models"
)

// Sink mirrors resolution write events into the graph database. Mirroring is
// best-effort: the relational store is authoritative and a mirror failure
// must never fail the resolution that produced the event.
type Sink struct {
	nodes  *NodeService
	edges  *EdgeService
	logger ectologger.Logger
}

// NewSink creates a graph mirror sink over a client
func NewSink(client *Client, logger ectologger.Logger) *Sink {
	return &Sink{
		nodes:  NewNodeService(client, logger),
		edges:  NewEdgeService(client, logger),
		logger: logger,
	}
}

// RecordCreated mirrors a new canonical record as a node
func (s *Sink) RecordCreated(ctx context.Context, record *models.CanonicalRecord) {
	if err := s.nodes.CreateOrUpdate(ctx, record); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("graph mirror skipped a record")
	}
}

// MappingCreated is not mirrored; mappings are a naming concern, not topology
func (s *Sink) MappingCreated(_ context.Context, _ *models.StandardizationMapping) {}

// ReviewPending is not mirrored; pending items never leave the session
func (s *Sink) ReviewPending(_ context.Context, _ string, _ *models.PendingItem) {}

// EdgeCreated mirrors a new ownership edge
func (s *Sink) EdgeCreated(ctx context.Context, edge *models.HierarchyEdge) {
	if err := s.edges.CreateOrUpdate(ctx, edge); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("graph mirror skipped an ownership edge")
	}
}

// Backfill rebuilds one table's mirror from the authoritative store. Nodes go
// first so every edge finds both endpoints, each side in a single batched
// transaction. Events mirrored while the backfill runs are idempotent merges,
// so the two paths never conflict.
func (s *Sink) Backfill(ctx context.Context, records []models.CanonicalRecord, edges []models.HierarchyEdge) error {
	nodes := make([]*models.CanonicalRecord, len(records))
	for i := range records {
		nodes[i] = &records[i]
	}
	if err := s.nodes.BatchCreateOrUpdate(ctx, nodes); err != nil {
		return err
	}

	rels := make([]*models.HierarchyEdge, len(edges))
	for i := range edges {
		rels[i] = &edges[i]
	}
	return s.edges.BatchCreateOrUpdate(ctx, rels)
}

package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/sage/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/sage/pkg/models"
)

// EdgeService mirrors ownership edges between record nodes. Edges are typed
// OWNS and carry the ownership fraction plus the derived controlling flag.
type EdgeService struct {
	client *Client
	logger ectologger.Logger
}

// NewEdgeService creates a new edge service
func NewEdgeService(client *Client, logger ectologger.Logger) *EdgeService {
	return &EdgeService{
		client: client,
		logger: logger,
	}
}

// CreateOrUpdate mirrors one ownership edge into the graph. Both endpoint
// nodes must already be mirrored; a missing endpoint makes the MATCH produce
// nothing and the write reports an error.
func (s *EdgeService) CreateOrUpdate(ctx context.Context, edge *models.HierarchyEdge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.CreateOrUpdate")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"table":     edge.Table,
		"edge_id":   edge.ID,
		"parent_id": edge.ParentID,
		"child_id":  edge.ChildID,
	})

	label := sanitizeLabel(edge.Table)
	cypher := fmt.Sprintf(`
		MATCH (parent:%s {record_id: $parent_id})
		MATCH (child:%s {record_id: $child_id})
		MERGE (parent)-[o:OWNS {id: $edge_id}]->(child)
		SET o += $props
		RETURN o
	`, label, label)

	res, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"parent_id": edge.ParentID,
			"child_id":  edge.ChildID,
			"edge_id":   edge.ID,
			"props":     edgeProps(edge),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to mirror ownership edge into graph")
		return fmt.Errorf("failed to mirror ownership edge into graph: %w", err)
	}
	if summary, ok := res.(neo4j.ResultSummary); ok {
		if summary.Counters().RelationshipsCreated() == 0 && summary.Counters().PropertiesSet() == 0 {
			log.Warn("Ownership edge write touched nothing; endpoint node missing from mirror")
		}
	}

	log.Debug("Mirrored ownership edge into graph")
	return nil
}

// BatchCreateOrUpdate mirrors multiple edges in a single transaction
func (s *EdgeService) BatchCreateOrUpdate(ctx context.Context, edges []*models.HierarchyEdge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.BatchCreateOrUpdate")
	defer span.End()

	if len(edges) == 0 {
		return nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(edges),
	})

	byTable := make(map[string][]*models.HierarchyEdge)
	for _, e := range edges {
		byTable[e.Table] = append(byTable[e.Table], e)
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for table, tableEdges := range byTable {
			batchData := make([]map[string]any, len(tableEdges))
			for i, edge := range tableEdges {
				batchData[i] = map[string]any{
					"edge_id":   edge.ID,
					"parent_id": edge.ParentID,
					"child_id":  edge.ChildID,
					"props":     edgeProps(edge),
				}
			}

			label := sanitizeLabel(table)
			cypher := fmt.Sprintf(`
				UNWIND $batch AS data
				MATCH (parent:%s {record_id: data.parent_id})
				MATCH (child:%s {record_id: data.child_id})
				MERGE (parent)-[o:OWNS {id: data.edge_id}]->(child)
				SET o += data.props
			`, label, label)

			_, err := tx.Run(ctx, cypher, map[string]any{"batch": batchData})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to batch mirror ownership edges into graph")
		return fmt.Errorf("failed to batch mirror ownership edges: %w", err)
	}

	log.Debug("Batch mirrored ownership edges into graph")
	return nil
}

// ListByParent returns the edge properties of every edge under a parent node
func (s *EdgeService) ListByParent(ctx context.Context, table string, parentID int64) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.ListByParent")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (parent:%s {record_id: $parent_id})-[o:OWNS]->(child)
		RETURN o, child.record_id AS child_id, child.name AS child_name
	`, sanitizeLabel(table))

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"parent_id": parentID,
		})
		if err != nil {
			return nil, err
		}

		var edges []map[string]any
		for result.Next(ctx) {
			record := result.Record()
			relNode, _ := record.Get("o")
			childID, _ := record.Get("child_id")
			childName, _ := record.Get("child_name")

			o := relNode.(neo4j.Relationship)
			edge := map[string]any{
				"id":         o.Props["id"],
				"child_id":   childID,
				"child_name": childName,
				"properties": o.Props,
			}
			edges = append(edges, edge)
		}
		return edges, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list ownership edges from graph: %w", err)
	}

	return result.([]map[string]any), nil
}

func edgeProps(edge *models.HierarchyEdge) map[string]any {
	return map[string]any{
		"id":          edge.ID,
		"table":       edge.Table,
		"ownership":   edge.Ownership,
		"controlling": edge.IsControlling(),
		"created_by":  edge.CreatedBy,
		"created_at":  edge.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/sage/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// QueryService runs hierarchy traversals over the mirrored ownership graph
type QueryService struct {
	client *Client
	logger ectologger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{
		client: client,
		logger: logger,
	}
}

// QueryResult represents the result of a graph query
type QueryResult struct {
	Nodes         []NodeResult `json:"nodes,omitempty"`
	Relationships []RelResult  `json:"relationships,omitempty"`
	Rows          []any        `json:"rows,omitempty"`
}

// NodeResult represents a node from query results
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelResult represents a relationship from query results
type RelResult struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartNode  string         `json:"start_node"`
	EndNode    string         `json:"end_node"`
	Properties map[string]any `json:"properties"`
}

// ExecuteQuery runs a read-only Cypher query
func (s *QueryService) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ExecuteQuery")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"query_len": len(cypher),
	})

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		qr := &QueryResult{
			Nodes:         make([]NodeResult, 0),
			Relationships: make([]RelResult, 0),
			Rows:          make([]any, 0),
		}

		seenNodes := make(map[string]bool)
		seenRels := make(map[string]bool)

		for result.Next(ctx) {
			record := result.Record()
			row := make(map[string]any)

			for _, key := range record.Keys {
				val, _ := record.Get(key)
				row[key] = extractValue(val, qr, seenNodes, seenRels)
			}

			qr.Rows = append(qr.Rows, row)
		}

		return qr, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to execute graph query")
		return nil, fmt.Errorf("failed to execute graph query: %w", err)
	}

	return result.(*QueryResult), nil
}

// Subtree returns everything a record owns, directly or indirectly, down to
// maxDepth hops.
func (s *QueryService) Subtree(ctx context.Context, table string, recordID int64, maxDepth int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.Subtree")
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = 10
	}

	cypher := fmt.Sprintf(`
		MATCH (root:%s {record_id: $record_id})
		MATCH p = (root)-[:OWNS*1..%d]->(descendant)
		RETURN p
	`, sanitizeLabel(table), maxDepth)

	return s.ExecuteQuery(ctx, cypher, map[string]any{
		"record_id": recordID,
	})
}

// Ancestors returns every record that owns the given record, directly or
// indirectly, up to maxDepth hops.
func (s *QueryService) Ancestors(ctx context.Context, table string, recordID int64, maxDepth int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.Ancestors")
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = 10
	}

	cypher := fmt.Sprintf(`
		MATCH (child:%s {record_id: $record_id})
		MATCH p = (ancestor)-[:OWNS*1..%d]->(child)
		RETURN p
	`, sanitizeLabel(table), maxDepth)

	return s.ExecuteQuery(ctx, cypher, map[string]any{
		"record_id": recordID,
	})
}

// ControllingOwners walks only controlling stakes upward: the chain of
// parents whose ownership exceeds the control threshold.
func (s *QueryService) ControllingOwners(ctx context.Context, table string, recordID int64, maxDepth int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ControllingOwners")
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = 10
	}

	cypher := fmt.Sprintf(`
		MATCH (child:%s {record_id: $record_id})
		MATCH p = (ancestor)-[o:OWNS*1..%d]->(child)
		WHERE ALL(rel IN relationships(p) WHERE rel.controlling = true)
		RETURN DISTINCT ancestor
	`, sanitizeLabel(table), maxDepth)

	return s.ExecuteQuery(ctx, cypher, map[string]any{
		"record_id": recordID,
	})
}

// extractValue converts neo4j types to standard Go types
func extractValue(val any, qr *QueryResult, seenNodes, seenRels map[string]bool) any {
	if val == nil {
		return nil
	}

	switch v := val.(type) {
	case neo4j.Node:
		id := fmt.Sprintf("%v", v.Props["record_id"])
		if !seenNodes[id] {
			seenNodes[id] = true
			qr.Nodes = append(qr.Nodes, NodeResult{
				ID:         id,
				Labels:     v.Labels,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Relationship:
		id := fmt.Sprintf("%v", v.Props["id"])
		if !seenRels[id] {
			seenRels[id] = true
			qr.Relationships = append(qr.Relationships, RelResult{
				ID:         id,
				Type:       v.Type,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Path:
		for _, node := range v.Nodes {
			extractValue(node, qr, seenNodes, seenRels)
		}
		for _, rel := range v.Relationships {
			extractValue(rel, qr, seenNodes, seenRels)
		}
		return map[string]any{
			"node_count": len(v.Nodes),
			"rel_count":  len(v.Relationships),
		}

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = extractValue(item, qr, seenNodes, seenRels)
		}
		return result

	default:
		return v
	}
}

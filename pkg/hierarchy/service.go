// Package hierarchy exposes ownership-structure queries over stored edges.
// Edges are written by the resolution workflow; this service answers who owns
// what once they exist.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/graph"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tablestore"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// DefaultMaxDepth bounds tree traversals.
const DefaultMaxDepth = 10

// TreeNode is one record's position in an ownership tree.
type TreeNode struct {
	RecordID    int64       `json:"record_id"`
	Ownership   float64     `json:"ownership"`
	Controlling bool        `json:"controlling"`
	Children    []*TreeNode `json:"children,omitempty"`
}

// Service answers hierarchy queries from the edge store, optionally
// delegating deep traversals to the graph mirror.
type Service struct {
	store  tablestore.EdgeStore
	query  *graph.QueryService
	logger ectologger.Logger
}

// NewService creates a hierarchy service. query may be nil when no graph
// mirror is configured; traversals then run against the edge store.
func NewService(store tablestore.EdgeStore, query *graph.QueryService, logger ectologger.Logger) *Service {
	return &Service{
		store:  store,
		query:  query,
		logger: logger,
	}
}

// ListChildren returns the direct ownership edges under a record.
func (s *Service) ListChildren(ctx context.Context, table string, parentID int64) ([]models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.ListChildren")
	defer span.End()

	return s.store.ListByParent(ctx, table, parentID)
}

// ListParents returns the direct ownership edges above a record.
func (s *Service) ListParents(ctx context.Context, table string, childID int64) ([]models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.ListParents")
	defer span.End()

	return s.store.ListByChild(ctx, table, childID)
}

// Tree builds the ownership tree rooted at a record, walking stored edges
// breadth-first down to maxDepth. A record reached twice keeps its first
// position; ownership data with cycles still yields a finite tree.
func (s *Service) Tree(ctx context.Context, table string, rootID int64, maxDepth int) (*TreeNode, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.Tree")
	defer span.End()

	if maxDepth <= 0 || maxDepth > DefaultMaxDepth {
		maxDepth = DefaultMaxDepth
	}

	root := &TreeNode{RecordID: rootID, Ownership: 1}
	visited := map[int64]struct{}{rootID: {}}

	type frame struct {
		node  *TreeNode
		depth int
	}
	queue := []frame{{node: root, depth: 0}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= maxDepth {
			continue
		}

		edges, err := s.store.ListByParent(ctx, table, f.node.RecordID)
		if err != nil {
			return nil, fmt.Errorf("failed to walk ownership tree: %w", err)
		}

		for _, edge := range edges {
			if _, seen := visited[edge.ChildID]; seen {
				s.logger.WithContext(ctx).WithFields(map[string]any{
					"table":     table,
					"record_id": edge.ChildID,
				}).Warn("record appears more than once in the ownership tree")
				continue
			}
			visited[edge.ChildID] = struct{}{}

			child := &TreeNode{
				RecordID:    edge.ChildID,
				Ownership:   edge.Ownership,
				Controlling: edge.IsControlling(),
			}
			f.node.Children = append(f.node.Children, child)
			queue = append(queue, frame{node: child, depth: f.depth + 1})
		}
	}

	return root, nil
}

// ControllingParent returns the direct parent holding a controlling stake in
// the record, or nil when no single parent controls it.
func (s *Service) ControllingParent(ctx context.Context, table string, childID int64) (*models.HierarchyEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.ControllingParent")
	defer span.End()

	edges, err := s.store.ListByChild(ctx, table, childID)
	if err != nil {
		return nil, err
	}
	for i := range edges {
		if edges[i].IsControlling() {
			found := edges[i]
			return &found, nil
		}
	}
	return nil, nil
}

// Subtree runs a deep descendant traversal on the graph mirror. It requires
// a configured mirror; the store-backed Tree covers deployments without one.
func (s *Service) Subtree(ctx context.Context, table string, rootID int64, maxDepth int) (*graph.QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.Subtree")
	defer span.End()

	if s.query == nil {
		return nil, fmt.Errorf("no graph mirror configured for deep traversal")
	}
	return s.query.Subtree(ctx, table, rootID, maxDepth)
}

// Ancestors runs a deep upward traversal on the graph mirror: every record
// that owns the given record, directly or indirectly.
func (s *Service) Ancestors(ctx context.Context, table string, childID int64, maxDepth int) (*graph.QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.Ancestors")
	defer span.End()

	if s.query == nil {
		return nil, fmt.Errorf("no graph mirror configured for deep traversal")
	}
	return s.query.Ancestors(ctx, table, childID, maxDepth)
}

// ControllingOwners walks controlling stakes upward on the graph mirror: the
// chain of owners whose stake exceeds the control threshold at every hop.
// ControllingParent answers the single-hop question from the edge store.
func (s *Service) ControllingOwners(ctx context.Context, table string, childID int64, maxDepth int) (*graph.QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "hierarchy.Service.ControllingOwners")
	defer span.End()

	if s.query == nil {
		return nil, fmt.Errorf("no graph mirror configured for deep traversal")
	}
	return s.query.ControllingOwners(ctx, table, childID, maxDepth)
}

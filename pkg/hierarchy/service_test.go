package hierarchy

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tablestore"
)

const table = "institutions"

func newService(t *testing.T) (*Service, tablestore.EdgeStore) {
	t.Helper()
	edges := tablestore.NewMemory().Edges()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(edges, nil, logger), edges
}

func addEdge(t *testing.T, store tablestore.EdgeStore, parent, child int64, ownership float64) {
	t.Helper()
	_, err := store.Create(context.Background(), &models.HierarchyEdge{
		Table:     table,
		ParentID:  parent,
		ChildID:   child,
		Ownership: ownership,
		CreatedBy: "tester",
	})
	require.NoError(t, err)
}

func TestListChildrenAndParents(t *testing.T) {
	svc, store := newService(t)
	addEdge(t, store, 1, 2, 0.8)
	addEdge(t, store, 1, 3, 0.3)
	addEdge(t, store, 4, 2, 0.2)

	children, err := svc.ListChildren(context.Background(), table, 1)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	parents, err := svc.ListParents(context.Background(), table, 2)
	require.NoError(t, err)
	assert.Len(t, parents, 2)
}

func TestTreeWalksDescendants(t *testing.T) {
	svc, store := newService(t)
	addEdge(t, store, 1, 2, 0.8)
	addEdge(t, store, 1, 3, 0.4)
	addEdge(t, store, 2, 4, 0.51)

	tree, err := svc.Tree(context.Background(), table, 1, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(1), tree.RecordID)
	require.Len(t, tree.Children, 2)

	var two *TreeNode
	for _, c := range tree.Children {
		if c.RecordID == 2 {
			two = c
		}
	}
	require.NotNil(t, two)
	assert.True(t, two.Controlling)
	require.Len(t, two.Children, 1)
	assert.Equal(t, int64(4), two.Children[0].RecordID)
	assert.True(t, two.Children[0].Controlling)
}

func TestTreeDepthLimit(t *testing.T) {
	svc, store := newService(t)
	addEdge(t, store, 1, 2, 0.9)
	addEdge(t, store, 2, 3, 0.9)
	addEdge(t, store, 3, 4, 0.9)

	tree, err := svc.Tree(context.Background(), table, 1, 2)
	require.NoError(t, err)

	require.Len(t, tree.Children, 1)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Empty(t, tree.Children[0].Children[0].Children)
}

func TestTreeSurvivesCycles(t *testing.T) {
	svc, store := newService(t)
	addEdge(t, store, 1, 2, 0.9)
	addEdge(t, store, 2, 1, 0.9)

	tree, err := svc.Tree(context.Background(), table, 1, 5)
	require.NoError(t, err)

	require.Len(t, tree.Children, 1)
	assert.Equal(t, int64(2), tree.Children[0].RecordID)
	assert.Empty(t, tree.Children[0].Children)
}

func TestControllingParent(t *testing.T) {
	svc, store := newService(t)
	addEdge(t, store, 1, 3, 0.45)
	addEdge(t, store, 2, 3, 0.55)

	edge, err := svc.ControllingParent(context.Background(), table, 3)
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, int64(2), edge.ParentID)

	// Exactly at the threshold is not controlling.
	addEdge(t, store, 5, 6, 0.5)
	none, err := svc.ControllingParent(context.Background(), table, 6)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDeepTraversalsRequireMirror(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Subtree(context.Background(), table, 1, 3)
	assert.Error(t, err)

	_, err = svc.Ancestors(context.Background(), table, 1, 3)
	assert.Error(t, err)

	_, err = svc.ControllingOwners(context.Background(), table, 1, 3)
	assert.Error(t, err)
}

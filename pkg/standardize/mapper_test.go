package standardize

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tablestore"
)

func newTestMapper() *Mapper {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewMapper(tablestore.NewMemory().Mappings(), logger)
}

func TestResolve_NoMapping(t *testing.T) {
	m := newTestMapper()

	mapping, err := m.Resolve(context.Background(), "institutions", "Unknown Name")
	require.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestCreateMapping_AndResolve(t *testing.T) {
	m := newTestMapper()
	ctx := context.Background()

	created, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "petroquim",
		CanonicalName: "Petroquim SA",
	}, "reviewer")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "reviewer", created.CreatedBy)

	resolved, err := m.Resolve(ctx, "institutions", "Petroquim")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "Petroquim SA", resolved.CanonicalName)
}

func TestCreateMapping_Idempotent(t *testing.T) {
	m := newTestMapper()
	ctx := context.Background()

	first, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "petroquim",
		CanonicalName: "Petroquim SA",
	}, "reviewer")
	require.NoError(t, err)

	second, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "Petroquim",
		CanonicalName: "Some Other Name",
	}, "reviewer")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Petroquim SA", second.CanonicalName)

	all, err := m.store.List(ctx, "institutions")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateMapping_CaseInsensitiveResolution(t *testing.T) {
	m := newTestMapper()
	ctx := context.Background()

	_, err := m.CreateMapping(ctx, "countries", models.CreateMappingRequest{
		OriginalName:  "U.S.A.",
		CanonicalName: "United States",
	}, "reviewer")
	require.NoError(t, err)

	resolved, err := m.Resolve(ctx, "countries", "u.s.a.")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "United States", resolved.CanonicalName)
}

func TestResolve_FollowsChain(t *testing.T) {
	m := newTestMapper()
	ctx := context.Background()

	_, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "Alpha",
		CanonicalName: "Beta",
	}, "reviewer")
	require.NoError(t, err)

	_, err = m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "Beta",
		CanonicalName: "Gamma",
	}, "reviewer")
	require.NoError(t, err)

	resolved, err := m.Resolve(ctx, "institutions", "Alpha")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "Gamma", resolved.CanonicalName)
}

func TestCreateMapping_RejectsCycle(t *testing.T) {
	m := newTestMapper()
	ctx := context.Background()

	_, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "Alpha",
		CanonicalName: "Beta",
	}, "reviewer")
	require.NoError(t, err)

	_, err = m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "Beta",
		CanonicalName: "Alpha",
	}, "reviewer")
	assert.Error(t, err)
}

func TestCreateMapping_RejectsSelfMapping(t *testing.T) {
	m := newTestMapper()

	_, err := m.CreateMapping(context.Background(), "institutions", models.CreateMappingRequest{
		OriginalName:  "Acme Corp",
		CanonicalName: "acme corp",
	}, "reviewer")
	assert.Error(t, err)
}

func TestCreateMapping_ViaExistingProvenance(t *testing.T) {
	m := newTestMapper()
	ctx := context.Background()

	_, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "petroquim",
		CanonicalName: "Petroquim SA",
	}, "reviewer")
	require.NoError(t, err)

	// Second original pointing at a canonical that is already a mapping
	// target records the provenance.
	second, err := m.CreateMapping(ctx, "institutions", models.CreateMappingRequest{
		OriginalName:  "petroquim s.a.",
		CanonicalName: "Petroquim SA",
	}, "reviewer")
	require.NoError(t, err)
	require.NotNil(t, second.Justification)
	assert.Contains(t, *second.Justification, "via existing standardization")
}

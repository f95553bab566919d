package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_EmptyInput(t *testing.T) {
	ix := Fit(nil)
	require.NotNil(t, ix)
	assert.Equal(t, 0, ix.Len())
	assert.Nil(t, ix.Query("anything", 5))
}

func TestQuery_EmptyText(t *testing.T) {
	ix := Fit([]string{"Acme Corp"})
	assert.Nil(t, ix.Query("", 5))
	assert.Nil(t, ix.Query("   ", 5))
}

func TestQuery_IdenticalNameScoresHighest(t *testing.T) {
	ix := Fit([]string{"Acme Corporation", "Globex Industries", "Initech Systems"})

	results := ix.Query("Acme Corporation", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "Acme Corporation", results[0].Name)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestQuery_NearMatchRanksAboveUnrelated(t *testing.T) {
	ix := Fit([]string{
		"International Business Machines",
		"Internal Revenue Service",
		"Acme Widgets",
	})

	results := ix.Query("Intl Business Machines", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "International Business Machines", results[0].Name)
	for _, r := range results {
		assert.NotEqual(t, "Acme Widgets", r.Name)
	}
}

func TestQuery_FloorDropsNoise(t *testing.T) {
	ix := Fit([]string{"Acme Corporation", "Zzyzx Quarry Operations"})

	results := ix.Query("Acme Corporation", 5)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, scoreFloor)
	}
}

func TestQuery_TopKLimit(t *testing.T) {
	names := []string{
		"Acme Corp",
		"Acme Corporation",
		"Acme Holdings",
		"Acme Industries",
		"Acme Partners",
		"Acme Ventures",
	}
	ix := Fit(names)

	results := ix.Query("Acme", 3)
	assert.LessOrEqual(t, len(results), 3)
}

func TestQuery_CaseAndAccentInsensitive(t *testing.T) {
	ix := Fit([]string{"Café Müller GmbH"})

	results := ix.Query("cafe muller gmbh", 1)
	require.Len(t, results, 1)
	assert.Equal(t, "Café Müller GmbH", results[0].Name)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestQuery_DeterministicOrdering(t *testing.T) {
	ix := Fit([]string{"Beta Corp", "Alpha Corp"})

	first := ix.Query("Gamma Corp", 5)
	second := ix.Query("Gamma Corp", 5)
	assert.Equal(t, first, second)
}

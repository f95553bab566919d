package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
)

func testEntries() []models.ReferenceEntry {
	return []models.ReferenceEntry{
		{ID: 1, Name: "Acme Corp", ShortName: "Acme"},
		{ID: 2, Name: "Globex Industries Ltd", ShortName: "Globex"},
		{ID: 3, Name: "Petroquim SA"},
		{ID: 4, Name: "International Business Machines", ShortName: "IBM"},
	}
}

func TestFindExact_CanonicalName(t *testing.T) {
	m := New(testEntries())

	match, ok := m.FindExact("acme corp")
	require.True(t, ok)
	assert.Equal(t, int64(1), match.RecordID)
	assert.Equal(t, models.MatchSourceExactName, match.Source)
}

func TestFindExact_TrailingPeriodSuffix(t *testing.T) {
	m := New(testEntries())

	// "Corp." and "Corp" reduce to the same stem through the suffix check.
	match, ok := m.FindExact("Acme Corp.")
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", match.Name)
}

func TestFindExact_ShortName(t *testing.T) {
	m := New(testEntries())

	match, ok := m.FindExact("IBM")
	require.True(t, ok)
	assert.Equal(t, int64(4), match.RecordID)
	assert.Equal(t, models.MatchSourceShortName, match.Source)
}

func TestFindExact_SuffixVariant(t *testing.T) {
	m := New(testEntries())

	// Bare stem against a suffixed reference.
	match, ok := m.FindExact("Globex Industries")
	require.True(t, ok)
	assert.Equal(t, int64(2), match.RecordID)
	assert.Equal(t, models.MatchSourceSuffixVariant, match.Source)
}

func TestFindExact_CountrySuffixDoesNotCollapse(t *testing.T) {
	m := New(testEntries())

	// "SA" is outside the exact equivalence set: the variant must surface as
	// a fuzzy candidate, not an exact hit.
	_, ok := m.FindExact("Petroquim")
	assert.False(t, ok)

	candidates := m.FindSimilar("petroquim", DefaultReviewThreshold)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "Petroquim SA", candidates[0].Name)
	assert.GreaterOrEqual(t, candidates[0].Score, DefaultReviewThreshold)
}

func TestFindExact_Miss(t *testing.T) {
	m := New(testEntries())

	_, ok := m.FindExact("Completely Unrelated Name")
	assert.False(t, ok)
}

func TestFindSimilar_ExcludesExactMatch(t *testing.T) {
	m := New(testEntries())

	for _, c := range m.FindSimilar("Acme Corp", 0) {
		assert.NotEqual(t, "Acme Corp", c.Name)
	}
}

func TestFindSimilar_SuffixStemLift(t *testing.T) {
	m := New([]models.ReferenceEntry{
		{ID: 1, Name: "Acme Incorporated"},
		{ID: 2, Name: "Zenith Partners"},
	})

	candidates := m.FindSimilar("Acme Inc", DefaultBlockingThreshold)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "Acme Incorporated", candidates[0].Name)
	assert.GreaterOrEqual(t, candidates[0].Score, suffixVariantScore)
}

func TestFindSimilar_ThresholdMonotonicity(t *testing.T) {
	m := New(testEntries())

	loose := m.FindSimilar("Globex Industreis Ltd", 0.5)
	strict := m.FindSimilar("Globex Industreis Ltd", 0.9)
	assert.LessOrEqual(t, len(strict), len(loose))
}

func TestTopCandidates_IgnoresThreshold(t *testing.T) {
	entries := []models.ReferenceEntry{
		{ID: 1, Name: "Alpha Holdings"},
		{ID: 2, Name: "Alpine Holdings"},
		{ID: 3, Name: "Alphabet Holdings"},
		{ID: 4, Name: "Altona Holdings"},
		{ID: 5, Name: "Albany Holdings"},
		{ID: 6, Name: "Almaty Holdings"},
	}
	m := New(entries)

	candidates := m.TopCandidates("Alpha Holding")
	assert.NotEmpty(t, candidates)
	assert.LessOrEqual(t, len(candidates), DefaultTopCandidates)
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
}

func TestFindSimilar_EmptyQuery(t *testing.T) {
	m := New(testEntries())
	assert.Empty(t, m.FindSimilar("", 0))
	assert.Empty(t, m.TopCandidates("   "))
}

func TestFindSimilar_TypoTolerance(t *testing.T) {
	m := New(testEntries())

	candidates := m.FindSimilar("Internation Business Machines", DefaultReviewThreshold)
	require.NotEmpty(t, candidates)
	assert.Equal(t, int64(4), candidates[0].RecordID)
}

// Package matching implements entity matching over a reference name set: an
// O(1) exact lookup layer (name, short name, and legal-suffix variants) and a
// fuzzy layer that re-ranks the similarity index's recall shortlist with a
// typo-tolerant string metric.
package matching

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
	"github.com/Ramsey-B/sage/pkg/similarity"
)

const (
	// DefaultReviewThreshold is the moderate threshold used for interactive
	// surfacing of fuzzy candidates.
	DefaultReviewThreshold = 0.70

	// DefaultBlockingThreshold is the stricter threshold used by flows that
	// want strict duplicate blocking.
	DefaultBlockingThreshold = 0.85

	// shortlistSize is how many recall candidates the similarity index feeds
	// into the re-ranking metric.
	shortlistSize = 50

	// DefaultTopCandidates is how many ranked candidates the interactive
	// "show me similar names" surface returns regardless of threshold.
	DefaultTopCandidates = 5

	// suffixVariantScore is assigned when two names are equal after legal
	// suffix stripping; it lifts likely-same pairs above borderline metric
	// scores so a human always sees them.
	suffixVariantScore = 0.95

	jaroWinklerBoost  = 0.7
	jaroWinklerPrefix = 4
)

// Matcher holds the lookup structures for one version of the reference set.
// Build it once per snapshot and reuse it across queries; it is immutable
// after construction and safe for concurrent readers.
type Matcher struct {
	exact   *ExactIndex
	index   *similarity.Index
	entries map[string]models.ReferenceEntry
}

// New fits a matcher over the given reference entries.
func New(entries []models.ReferenceEntry) *Matcher {
	names := make([]string, 0, len(entries))
	byName := make(map[string]models.ReferenceEntry, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		names = append(names, e.Name)
		if _, ok := byName[e.Name]; !ok {
			byName[e.Name] = e
		}
	}

	return &Matcher{
		exact:   NewExactIndex(entries),
		index:   similarity.Fit(names),
		entries: byName,
	}
}

// FindExact reports whether name collides with an existing reference entry
// after normalization, checking canonical names, short names, and
// suffix-stripped variants in that order.
func (m *Matcher) FindExact(name string) (*models.MatchReference, bool) {
	return m.exact.Lookup(name)
}

// FindSimilar returns fuzzy candidates for query scoring at or above
// threshold, descending. The query's own normalized-exact match is excluded;
// exact hits are reported by FindExact, never as fuzzy suggestions.
func (m *Matcher) FindSimilar(query string, threshold float64) []models.MatchCandidate {
	ranked := m.rank(query)
	out := make([]models.MatchCandidate, 0, len(ranked))
	for _, c := range ranked {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// TopCandidates returns the top ranked candidates for query regardless of
// threshold, for human judgment.
func (m *Matcher) TopCandidates(query string) []models.MatchCandidate {
	ranked := m.rank(query)
	if len(ranked) > DefaultTopCandidates {
		ranked = ranked[:DefaultTopCandidates]
	}
	return ranked
}

// rank runs the recall stage, drops the exact match, and re-scores the
// shortlist. If the re-ranking metric fails the recall cosine scores are kept
// as-is rather than aborting the whole query.
func (m *Matcher) rank(query string) []models.MatchCandidate {
	queryKey := normalize.Key(query)
	if queryKey == "" {
		return nil
	}

	shortlist := m.index.Query(query, shortlistSize)
	out := make([]models.MatchCandidate, 0, len(shortlist))
	for _, s := range shortlist {
		entry, ok := m.entries[s.Name]
		if !ok {
			continue
		}
		candidateKey := normalize.Key(s.Name)
		if candidateKey == queryKey {
			continue
		}

		score, err := scorePair(queryKey, candidateKey)
		if err != nil {
			score = s.Score
		}
		out = append(out, models.MatchCandidate{
			Name:     s.Name,
			Score:    score,
			RecordID: entry.ID,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// scorePair blends Jaro-Winkler with a Levenshtein ratio over normalized
// keys, then applies the suffix-variant lift when both sides reduce to the
// same stem after legal suffix stripping.
func scorePair(a, b string) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("similarity metric panicked: %v", r)
		}
	}()

	score = smetrics.JaroWinkler(a, b, jaroWinklerBoost, jaroWinklerPrefix)

	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest > 0 {
		ratio := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
		if ratio > score {
			score = ratio
		}
	}

	if sa, sb := normalize.StripAnySuffix(a), normalize.StripAnySuffix(b); sa != "" && sa == sb {
		if suffixVariantScore > score {
			score = suffixVariantScore
		}
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

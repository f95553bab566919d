// Package similarity implements the candidate-recall stage of matching: a
// character n-gram vector index over a reference name list. Fitting is the
// expensive one-time cost; queries are cheap cosine scans. Scores from this
// package narrow the field, they are never the final authority on match
// quality.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/Ramsey-B/sage/pkg/normalize"
)

const (
	minGram = 2
	maxGram = 4

	// scoreFloor drops noise candidates before they reach the re-ranker.
	scoreFloor = 0.1

	// boundary marks word edges so edge n-grams weigh differently from
	// interior ones.
	boundary = '\x01'
)

// Scored is one indexed name with its cosine similarity to a query.
type Scored struct {
	Name  string
	Score float64
}

// Index is a fitted n-gram weighted-frequency representation of a reference
// name list. Build it once per reference-set version and reuse it across
// queries; fitting is O(N·len), querying is O(N) cheap dot products.
type Index struct {
	names   []string
	vectors []map[string]float64
	docFreq map[string]int
}

// Fit builds an index over the given names. Names are normalized and
// lowercased before vectorization. An empty input produces an empty index
// whose queries return no candidates.
func Fit(names []string) *Index {
	ix := &Index{
		docFreq: make(map[string]int),
	}

	grams := make([]map[string]int, 0, len(names))
	for _, name := range names {
		key := normalize.Key(name)
		if key == "" {
			continue
		}
		g := ngrams(key)
		for gram := range g {
			ix.docFreq[gram]++
		}
		ix.names = append(ix.names, name)
		grams = append(grams, g)
	}

	ix.vectors = make([]map[string]float64, len(grams))
	for i, g := range grams {
		ix.vectors[i] = ix.vectorize(g)
	}

	return ix
}

// Len returns the number of indexed names.
func (ix *Index) Len() int {
	return len(ix.names)
}

// Query scores text against every indexed name and returns up to topK
// candidates by descending cosine similarity, dropping scores below the
// recall floor.
func (ix *Index) Query(text string, topK int) []Scored {
	if ix == nil || len(ix.names) == 0 || topK <= 0 {
		return nil
	}
	key := normalize.Key(text)
	if key == "" {
		return nil
	}

	queryVec := ix.vectorize(ngrams(key))
	if len(queryVec) == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(ix.names))
	for i, vec := range ix.vectors {
		score := dot(queryVec, vec)
		if score < scoreFloor {
			continue
		}
		scored = append(scored, Scored{Name: ix.names[i], Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Name < scored[j].Name
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// vectorize turns gram counts into an L2-normalized TF-IDF weight vector.
// Grams never seen at fit time still contribute through the smoothed IDF, so
// a query cannot divide by zero on unseen input.
func (ix *Index) vectorize(grams map[string]int) map[string]float64 {
	if len(grams) == 0 {
		return nil
	}

	total := 0
	for _, c := range grams {
		total += c
	}

	n := float64(len(ix.vectors))
	if n == 0 {
		n = float64(len(ix.names))
	}

	vec := make(map[string]float64, len(grams))
	var sumSq float64
	for gram, count := range grams {
		tf := float64(count) / float64(total)
		idf := 1 + math.Log((1+n)/(1+float64(ix.docFreq[gram])))
		w := tf * idf
		vec[gram] = w
		sumSq += w * w
	}

	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return nil
	}
	for gram := range vec {
		vec[gram] /= norm
	}
	return vec
}

// dot computes the cosine similarity of two L2-normalized vectors.
func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for gram, wa := range a {
		if wb, ok := b[gram]; ok {
			sum += wa * wb
		}
	}
	return sum
}

// ngrams extracts word-boundary-aware character n-grams (n in [minGram,
// maxGram]) from a normalized key.
func ngrams(key string) map[string]int {
	grams := make(map[string]int)
	for _, word := range strings.Fields(key) {
		runes := make([]rune, 0, len(word)+2)
		runes = append(runes, boundary)
		runes = append(runes, []rune(word)...)
		runes = append(runes, boundary)

		for n := minGram; n <= maxGram; n++ {
			if len(runes) < n {
				break
			}
			for i := 0; i+n <= len(runes); i++ {
				grams[string(runes[i:i+n])]++
			}
		}
	}
	return grams
}

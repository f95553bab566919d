package matching

import (
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalize"
)

// ExactIndex is a precomputed lookup from normalized names to reference
// entries. Beyond plain equality it matches against short names and against
// suffix-stripped variants of both sides, so "Acme" and "Acme LLC" collide
// even though their raw strings differ.
type ExactIndex struct {
	byName     map[string]models.ReferenceEntry
	byShort    map[string]models.ReferenceEntry
	byStripped map[string]models.ReferenceEntry
}

// NewExactIndex builds the lookup maps. On key collisions the first entry
// wins; a reference set with duplicate normalized names is already corrupt
// and the index does not try to repair it.
func NewExactIndex(entries []models.ReferenceEntry) *ExactIndex {
	ix := &ExactIndex{
		byName:     make(map[string]models.ReferenceEntry, len(entries)),
		byShort:    make(map[string]models.ReferenceEntry),
		byStripped: make(map[string]models.ReferenceEntry),
	}

	for _, e := range entries {
		key := normalize.Key(e.Name)
		if key == "" {
			continue
		}
		if _, ok := ix.byName[key]; !ok {
			ix.byName[key] = e
		}
		if shortKey := normalize.Key(e.ShortName); shortKey != "" && shortKey != key {
			if _, ok := ix.byShort[shortKey]; !ok {
				ix.byShort[shortKey] = e
			}
		}
		if stripped := normalize.StripSuffix(e.Name); stripped != "" {
			if _, ok := ix.byStripped[stripped]; !ok {
				ix.byStripped[stripped] = e
			}
		}
	}

	return ix
}

// Lookup resolves name against the reference set. Checks run most-specific
// first: canonical name, then short name, then suffix-stripped variants in
// either direction.
func (ix *ExactIndex) Lookup(name string) (*models.MatchReference, bool) {
	key := normalize.Key(name)
	if key == "" {
		return nil, false
	}

	if e, ok := ix.byName[key]; ok {
		return ref(e, models.MatchSourceExactName), true
	}
	if e, ok := ix.byShort[key]; ok {
		return ref(e, models.MatchSourceShortName), true
	}

	// Query carries a recognized suffix: compare its stem against both the
	// plain names and the stripped variants of suffixed references.
	if stripped := normalize.StripSuffix(name); stripped != "" {
		if e, ok := ix.byName[stripped]; ok {
			return ref(e, models.MatchSourceSuffixVariant), true
		}
		if e, ok := ix.byStripped[stripped]; ok {
			return ref(e, models.MatchSourceSuffixVariant), true
		}
	}

	// Query has no suffix but a reference does: "Acme" against "Acme LLC".
	if e, ok := ix.byStripped[key]; ok {
		return ref(e, models.MatchSourceSuffixVariant), true
	}

	return nil, false
}

func ref(e models.ReferenceEntry, source models.MatchSource) *models.MatchReference {
	return &models.MatchReference{
		Name:     e.Name,
		RecordID: e.ID,
		Source:   source,
	}
}

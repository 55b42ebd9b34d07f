package merge

import (
	"maps"
	"slices"
	"sort"
)

// Accumulator collects lookup results for a single run. It is owned by one run and is
// not safe for concurrent use.
type Accumulator struct {
	hits   map[string]map[string]*Entity
	failed map[string]bool

	Queries       int
	FailedQueries int
	Hits          int
	Dropped       int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		hits:   make(map[string]map[string]*Entity),
		failed: make(map[string]bool),
	}
}

// Add records the entities a property returned for a batch. Hits for values outside
// the batch are dropped and counted in Dropped. It returns the number of hits kept.
func (a *Accumulator) Add(property string, batch []string, result map[string][]Entity) int {
	a.Queries++
	inBatch := make(map[string]bool, len(batch))
	for _, v := range batch {
		inBatch[v] = true
	}

	kept := 0
	for value, ents := range result {
		if !inBatch[value] {
			a.Dropped += len(ents)
			continue
		}
		byQID := a.hits[value]
		if byQID == nil {
			byQID = make(map[string]*Entity)
			a.hits[value] = byQID
		}
		for _, e := range ents {
			if e.QID == "" {
				a.Dropped++
				continue
			}
			kept++
			cur, ok := byQID[e.QID]
			if !ok {
				cur = &Entity{QID: e.QID, Descriptions: map[string]string{}, Labels: map[string]string{}}
				byQID[e.QID] = cur
			}
			mergeText(cur.Descriptions, e.Descriptions)
			mergeText(cur.Labels, e.Labels)
			if !slices.Contains(cur.Properties, property) {
				cur.Properties = append(cur.Properties, property)
			}
		}
	}
	a.Hits += kept
	return kept
}

func mergeText(dst, src map[string]string) {
	for lang, text := range src {
		if _, ok := dst[lang]; !ok && text != "" {
			dst[lang] = text
		}
	}
}

// Fail marks every value of a batch as failed for the rest of the run.
func (a *Accumulator) Fail(batch []string) {
	a.Queries++
	a.FailedQueries++
	for _, v := range batch {
		a.failed[v] = true
	}
}

// Failed reports whether a query covering value exhausted its attempts.
func (a *Accumulator) Failed(value string) bool {
	return a.failed[value]
}

// Entities returns the distinct entities found for value, ordered by QID.
func (a *Accumulator) Entities(value string) []Entity {
	byQID := a.hits[value]
	if len(byQID) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(byQID))
	for _, qid := range slices.Sorted(maps.Keys(byQID)) {
		e := byQID[qid]
		props := slices.Clone(e.Properties)
		sort.Strings(props)
		out = append(out, Entity{
			QID:          e.QID,
			Descriptions: maps.Clone(e.Descriptions),
			Labels:       maps.Clone(e.Labels),
			Properties:   props,
		})
	}
	return out
}

package merge

import (
	"strings"
)

type Status string

const (
	StatusMatched    Status = "matched"
	StatusUnresolved Status = "unresolved"
	StatusAmbiguous  Status = "ambiguous"
)

// Reason explains a Resolution.
type Reason string

const (
	ReasonNoIdentifier      Reason = "no_identifier"
	ReasonInvalidIdentifier Reason = "invalid_identifier"
	ReasonNoHits            Reason = "no_hits"
	ReasonLookupFailed      Reason = "lookup_failed"
	ReasonSingleHit         Reason = "single_hit"
	ReasonDisambiguated     Reason = "disambiguated"
	ReasonNoHint            Reason = "no_hint"
	ReasonHintUnmatched     Reason = "hint_unmatched"
	ReasonHintMultiple      Reason = "hint_multiple"
)

// Resolution is the decision for one identifier value (and hint). QID is set only
// when Status is StatusMatched.
type Resolution struct {
	Status Status
	QID    string
	// Candidates holds the distinct QIDs considered, sorted.
	Candidates []string
	Reason     Reason
}

// Disambiguator decides whether an entity carries a row's hint.
type Disambiguator interface {
	Name() string
	Match(hint string, e Entity) bool
}

// ExtTokenDisambiguator matches entities whose description or label in one of
// Languages contains the [EXT:<hint>] marker. An empty Languages searches every
// language.
type ExtTokenDisambiguator struct {
	Languages []string
}

func (ExtTokenDisambiguator) Name() string { return "ext_token" }

func (d ExtTokenDisambiguator) Match(hint string, e Entity) bool {
	if hint == "" {
		return false
	}
	tag := ExtTag(hint)
	texts := func(m map[string]string) []string {
		if len(d.Languages) == 0 {
			out := make([]string, 0, len(m))
			for _, v := range m {
				out = append(out, v)
			}
			return out
		}
		out := make([]string, 0, len(d.Languages))
		for _, lang := range d.Languages {
			if v, ok := m[lang]; ok {
				out = append(out, v)
			}
		}
		return out
	}
	for _, s := range append(texts(e.Descriptions), texts(e.Labels)...) {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}

// Resolve decides a value from the entities found for it. entities must hold distinct
// QIDs. failed reports that a query covering the value exhausted its attempts, in
// which case the value stays unresolved whatever other properties returned.
func Resolve(entities []Entity, failed bool, hint string, d Disambiguator) Resolution {
	qids := make([]string, 0, len(entities))
	for _, e := range entities {
		qids = append(qids, e.QID)
	}
	res := Resolution{Candidates: qids}

	switch {
	case failed:
		res.Status, res.Reason = StatusUnresolved, ReasonLookupFailed
		return res
	case len(entities) == 0:
		res.Status, res.Reason = StatusUnresolved, ReasonNoHits
		return res
	case len(entities) == 1:
		res.Status, res.Reason, res.QID = StatusMatched, ReasonSingleHit, entities[0].QID
		return res
	}

	res.Status = StatusAmbiguous
	if hint == "" || d == nil {
		res.Reason = ReasonNoHint
		return res
	}
	var matched []string
	for _, e := range entities {
		if d.Match(hint, e) {
			matched = append(matched, e.QID)
		}
	}
	switch len(matched) {
	case 0:
		res.Reason = ReasonHintUnmatched
	case 1:
		res.Status, res.Reason, res.QID = StatusMatched, ReasonDisambiguated, matched[0]
	default:
		res.Reason = ReasonHintMultiple
	}
	return res
}

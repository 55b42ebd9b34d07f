package wdqs

import (
	"encoding/json"
	"regexp"

	"github.com/cockroachdb/errors"

	"github.com/openenergytransition/qidmerge/internal/merge"
)

type term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Lang  string `json:"xml:lang"`
}

type selectResponse struct {
	Results struct {
		Bindings []map[string]term `json:"bindings"`
	} `json:"results"`
}

var entityURIRe = regexp.MustCompile(`^https?://[^/]+/entity/(Q[1-9][0-9]*)$`)

// QIDFromURI extracts the QID of an entity URI, or "" when uri is not one.
func QIDFromURI(uri string) string {
	m := entityURIRe.FindStringSubmatch(uri)
	if m == nil {
		return ""
	}
	return m[1]
}

// parseResults groups SELECT bindings by ?code. Bindings whose ?item is not an entity
// URI or whose ?code is not one of values are dropped and counted.
func parseResults(body []byte, values []string) (map[string][]merge.Entity, int, error) {
	var resp selectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, errors.Wrap(err, "decode sparql results")
	}

	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}

	type key struct{ code, qid string }
	byKey := make(map[key]*merge.Entity)
	var order []key
	dropped := 0
	for _, b := range resp.Results.Bindings {
		code := b["code"].Value
		qid := QIDFromURI(b["item"].Value)
		if qid == "" || !want[code] {
			dropped++
			continue
		}
		k := key{code: code, qid: qid}
		e, ok := byKey[k]
		if !ok {
			e = &merge.Entity{QID: qid, Descriptions: map[string]string{}, Labels: map[string]string{}}
			byKey[k] = e
			order = append(order, k)
		}
		if d, ok := b["desc"]; ok && d.Value != "" {
			if _, seen := e.Descriptions[d.Lang]; !seen {
				e.Descriptions[d.Lang] = d.Value
			}
		}
		if l, ok := b["label"]; ok && l.Value != "" {
			if _, seen := e.Labels[l.Lang]; !seen {
				e.Labels[l.Lang] = l.Value
			}
		}
	}

	out := make(map[string][]merge.Entity)
	for _, k := range order {
		out[k.code] = append(out[k.code], *byKey[k])
	}
	return out, dropped, nil
}

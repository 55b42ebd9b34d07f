package merge

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/schema"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/table"
)

// Candidate is the identifier picked for one row.
type Candidate struct {
	// Row is the position of the row in the input table.
	Row    int
	Column string
	Value  string
	// Hint is the disambiguation token for the row, or "" when the dataset carries no
	// hint columns.
	Hint string
}

// Key identifies rows that share one resolution.
type Key struct {
	Value string
	Hint  string
}

func (c Candidate) Key() Key {
	return Key{Value: c.Value, Hint: c.Hint}
}

// Extractor picks identifier candidates from rows of a resolved dataset.
type Extractor struct {
	contract schema.DatasetContract
}

func NewExtractor(contract schema.DatasetContract) Extractor {
	return Extractor{contract: contract}
}

// Extract walks the identifier columns in priority order and returns the first
// non-blank value. ok is false when the row has no identifier.
func (e Extractor) Extract(r table.Row) (c Candidate, ok bool) {
	for _, f := range e.contract.Identifiers {
		v := strings.TrimSpace(cell(r, f.Index))
		if v == "" {
			continue
		}
		c = Candidate{Row: r.Index, Column: f.Name, Value: v}
		if e.contract.HasHints() {
			c.Hint = ExtToken(cell(r, e.contract.FeatureID.Index), cell(r, e.contract.Geometry.Index))
		}
		return c, true
	}
	return Candidate{Row: r.Index}, false
}

func cell(r table.Row, i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

const coordsTokenRunes = 256

// ExtToken derives the 12 hex character token embedded as [EXT:<token>] in entity
// descriptions published for a feature.
func ExtToken(featureID, coords string) string {
	if rs := []rune(coords); len(rs) > coordsTokenRunes {
		coords = string(rs[:coordsTokenRunes])
	}
	sum := sha1.Sum([]byte(featureID + "|" + coords))
	return hex.EncodeToString(sum[:])[:12]
}

// ExtTag is the marker carrying token inside a description or label.
func ExtTag(token string) string {
	return "[EXT:" + token + "]"
}

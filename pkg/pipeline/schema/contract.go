package schema

import (
	"strings"
)

// Field is a header column the merge stage reads or writes.
type Field struct {
	Name  string
	Index int
}

// Spec names the columns a dataset is expected to carry.
type Spec struct {
	Candidates      []string
	OutputColumn    string
	ExistingColumn  string
	FeatureIDColumn string
	GeometryColumn  string
}

// DatasetContract is the resolved view of a header against a Spec.
type DatasetContract struct {
	// Identifiers holds the candidate columns present in the header, in priority order.
	Identifiers []Field
	Existing    *Field
	FeatureID   *Field
	Geometry    *Field
	Output      *Field
}

// Resolve matches the header against spec using exact names only.
func Resolve(header []string, spec Spec) DatasetContract {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	lookup := func(name string) *Field {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		i, ok := index[name]
		if !ok {
			return nil
		}
		return &Field{Name: name, Index: i}
	}

	var c DatasetContract
	seen := make(map[string]bool, len(spec.Candidates))
	for _, cand := range spec.Candidates {
		if seen[cand] {
			continue
		}
		seen[cand] = true
		if f := lookup(cand); f != nil {
			c.Identifiers = append(c.Identifiers, *f)
		}
	}
	c.Output = lookup(spec.OutputColumn)
	existing := spec.ExistingColumn
	if strings.TrimSpace(existing) == "" {
		existing = spec.OutputColumn
	}
	c.Existing = lookup(existing)
	c.FeatureID = lookup(spec.FeatureIDColumn)
	c.Geometry = lookup(spec.GeometryColumn)
	return c
}

// HasHints reports whether rows can carry a disambiguation hint: both the feature id and
// geometry columns must be present.
func (c DatasetContract) HasHints() bool {
	return c.FeatureID != nil && c.Geometry != nil
}

// OutputInsertAt returns where a missing output column should be placed: right after
// the highest-priority identifier column present, or at the end when there is none.
func (c DatasetContract) OutputInsertAt(width int) int {
	if c.Output != nil {
		return c.Output.Index
	}
	if len(c.Identifiers) == 0 {
		return width
	}
	return c.Identifiers[0].Index + 1
}

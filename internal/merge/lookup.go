// Package merge reconciles dataset rows against external entities found through a
// Lookup and writes the resolved identifiers back into the rows.
package merge

import (
	"context"
	"regexp"

	"github.com/cockroachdb/errors"
)

var propertyRe = regexp.MustCompile(`^P[1-9][0-9]*$`)

// ValidateProperty checks that p is a property id such as P528.
func ValidateProperty(p string) error {
	if !propertyRe.MatchString(p) {
		return errors.Newf("invalid property %q: want P followed by digits", p)
	}
	return nil
}

// Query asks which entities have Property equal to any of Values. Languages selects
// the descriptions and labels returned with each entity.
type Query struct {
	Property  string
	Values    []string
	Languages []string
}

// Entity is an external entity returned for a queried value.
type Entity struct {
	QID          string
	Descriptions map[string]string
	Labels       map[string]string
	// Properties lists the matching properties that produced this entity.
	Properties []string
}

// Lookup answers one Query. The result maps queried values to their entities; values
// without hits may be missing from the map.
type Lookup interface {
	Lookup(ctx context.Context, q Query) (map[string][]Entity, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, q Query) (map[string][]Entity, error)

func (f LookupFunc) Lookup(ctx context.Context, q Query) (map[string][]Entity, error) {
	return f(ctx, q)
}

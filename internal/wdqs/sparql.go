package wdqs

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/language"

	"github.com/openenergytransition/qidmerge/internal/merge"
)

var languageRe = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]+)*$`)

// ValidateLanguage checks that tag is a lowercase BCP 47 tag usable in a LANG() filter.
func ValidateLanguage(tag string) error {
	if !languageRe.MatchString(tag) {
		return errors.Newf("invalid language %q: want a lowercase BCP 47 tag such as es or pt-br", tag)
	}
	if _, err := language.Parse(tag); err != nil {
		return errors.Wrapf(err, "invalid language %q", tag)
	}
	return nil
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

// EscapeLiteral quotes v as a SPARQL string literal. Values rejected by
// merge.ValidateIdentifier must not reach it.
func EscapeLiteral(v string) string {
	return `"` + literalEscaper.Replace(v) + `"`
}

// BuildQuery renders the SELECT for one batch of values and one property. Every input
// is validated first, so a returned query is always well formed.
func BuildQuery(q merge.Query) (string, error) {
	if err := merge.ValidateProperty(q.Property); err != nil {
		return "", err
	}
	if len(q.Values) == 0 {
		return "", errors.New("query has no values")
	}
	for _, l := range q.Languages {
		if err := ValidateLanguage(l); err != nil {
			return "", err
		}
	}

	lits := make([]string, 0, len(q.Values))
	for _, v := range q.Values {
		if err := merge.ValidateIdentifier(v); err != nil {
			return "", err
		}
		lits = append(lits, EscapeLiteral(v))
	}

	var b strings.Builder
	b.WriteString("SELECT ?item ?code ?desc ?label WHERE {\n")
	fmt.Fprintf(&b, "  VALUES ?code { %s }\n", strings.Join(lits, " "))
	fmt.Fprintf(&b, "  ?item wdt:%s ?code .\n", q.Property)
	if len(q.Languages) > 0 {
		langs := make([]string, 0, len(q.Languages))
		for _, l := range q.Languages {
			langs = append(langs, `"`+l+`"`)
		}
		in := strings.Join(langs, ", ")
		fmt.Fprintf(&b, "  OPTIONAL { ?item schema:description ?desc . FILTER(LANG(?desc) IN (%s)) }\n", in)
		fmt.Fprintf(&b, "  OPTIONAL { ?item rdfs:label ?label . FILTER(LANG(?label) IN (%s)) }\n", in)
	}
	b.WriteString("}\n")
	return b.String(), nil
}

package merge

import (
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// ErrInvalidIdentifier marks identifier values that cannot be sent to the lookup
// service as a quoted literal.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// ValidateIdentifier rejects values that a string-literal escaper cannot represent
// unambiguously: invalid UTF-8, control characters other than the ones with a short
// escape (\n \r \t \b \f), and a backslash introducing a \u or \U codepoint escape.
func ValidateIdentifier(v string) error {
	if !utf8.ValidString(v) {
		return errors.Wrapf(ErrInvalidIdentifier, "%q is not valid UTF-8", v)
	}
	for i, r := range v {
		switch r {
		case '\n', '\r', '\t', '\b', '\f':
			continue
		case '\\':
			if i+1 < len(v) && (v[i+1] == 'u' || v[i+1] == 'U') {
				return errors.Wrapf(ErrInvalidIdentifier, "%q contains a codepoint escape", v)
			}
			continue
		}
		if unicode.IsControl(r) {
			return errors.Wrapf(ErrInvalidIdentifier, "%q contains control character %U", v, r)
		}
	}
	return nil
}

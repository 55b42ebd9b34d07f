package config

import (
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/openenergytransition/qidmerge/internal/merge"
	"github.com/openenergytransition/qidmerge/internal/wdqs"
)

// ErrInvalidConfig marks configuration errors. They abort a run before any query.
var ErrInvalidConfig = errors.New("invalid configuration")

func invalid(err error, hint string) error {
	err = errors.Mark(err, ErrInvalidConfig)
	if hint != "" {
		err = errors.WithHint(err, hint)
	}
	return err
}

// IsInvalid reports whether err is a configuration error.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// Validate checks every setting the engine and client depend on.
func (c *Config) Validate() error {
	if len(c.MatchProps) == 0 {
		return invalid(errors.New("wikidata_match_props is empty"), "list at least one property, e.g. [P528]")
	}
	for _, p := range c.MatchProps {
		if err := merge.ValidateProperty(p); err != nil {
			return invalid(err, "properties look like P528")
		}
	}
	if len(c.CodeCandidates) == 0 {
		return invalid(errors.New("code_candidates is empty"), "list the identifier columns in priority order")
	}
	for _, l := range c.Languages {
		if err := wdqs.ValidateLanguage(l); err != nil {
			return invalid(err, "use lowercase language codes such as es or en")
		}
	}
	if c.BatchSize < 1 {
		return invalid(errors.Newf("batch_size must be at least 1 (got %d)", c.BatchSize), "")
	}
	if c.Retries < 1 {
		return invalid(errors.Newf("retries must be at least 1 (got %d)", c.Retries), "retries counts attempts, first try included")
	}
	if c.Throttle < 0 {
		return invalid(errors.Newf("throttle must not be negative (got %g)", c.Throttle), "")
	}
	if c.Backoff < 1 {
		return invalid(errors.Newf("backoff must be at least 1 (got %g)", c.Backoff), "backoff is the exponential base, e.g. 1.6")
	}
	if c.BackoffUnit < 0 || c.BackoffMax < 0 {
		return invalid(errors.New("backoff_unit and backoff_max must not be negative"), "")
	}
	if c.RequestTimeout <= 0 {
		return invalid(errors.Newf("request_timeout must be positive (got %g)", c.RequestTimeout), "")
	}
	if c.UserAgent == "" {
		return invalid(errors.New("user_agent is empty"), "the query service requires a descriptive User-Agent with contact details")
	}
	if c.OutputColumn == "" {
		return invalid(errors.New("output_column is empty"), "")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(errors.Newf("endpoint %q is not an http(s) URL", c.Endpoint), "")
	}
	return nil
}

// Package config resolves the merge configuration from defaults, a YAML file with an
// optional per-dataset overlay, QIDMERGE_ environment variables and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/openenergytransition/qidmerge/internal/version"
	"github.com/openenergytransition/qidmerge/internal/wdqs"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/schema"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/worker"
)

// Defaults.
const (
	DefaultBatchSize      = 75
	DefaultThrottle       = 3.0
	DefaultRetries        = 5
	DefaultBackoff        = 1.6
	DefaultBackoffUnit    = 1.0
	DefaultBackoffMax     = 120.0
	DefaultRequestTimeout = 90.0
	DefaultOutputColumn   = "wikidata"
	DefaultFeatureID      = "_feature_id"
	DefaultCoords         = "_coords_json"
	DefaultLanguage       = "es"
	contact               = "mailto:info@openenergytransition.org"
)

var (
	DefaultMatchProps     = []string{"P528"}
	DefaultCodeCandidates = []string{"Codigo", "codigo", "id_circuito", "Code", "code", "ID", "id"}
)

// DefaultUserAgent identifies the tool and its operator to the query service.
func DefaultUserAgent() string {
	return fmt.Sprintf("OET-wikidata-qid-generator/merge-%s (%s)", version.Current, contact)
}

// Config holds the merge settings. Durations are in seconds, as in the YAML file.
type Config struct {
	MatchProps     []string `koanf:"wikidata_match_props"`
	CodeCandidates []string `koanf:"code_candidates"`
	BatchSize      int      `koanf:"batch_size"`
	Throttle       float64  `koanf:"throttle"`
	// Retries is the maximum number of attempts per query.
	Retries     int     `koanf:"retries"`
	Backoff     float64 `koanf:"backoff"`
	BackoffUnit float64 `koanf:"backoff_unit"`
	BackoffMax  float64 `koanf:"backoff_max"`

	Languages []string `koanf:"languages"`
	// Language is the single-language form; Languages wins when both are set.
	Language string `koanf:"language"`

	UserAgent      string  `koanf:"user_agent"`
	Endpoint       string  `koanf:"endpoint"`
	RequestTimeout float64 `koanf:"request_timeout"`
	CAPath         string  `koanf:"ca_path"`

	Overwrite       bool   `koanf:"overwrite"`
	OutputColumn    string `koanf:"output_column"`
	ExistingColumn  string `koanf:"existing_column"`
	FeatureIDColumn string `koanf:"feature_id_column"`
	CoordsColumn    string `koanf:"coords_column"`

	BOM      bool `koanf:"bom"`
	FailFast bool `koanf:"fail_fast"`

	// Dataset is the overlay applied on top of the wikidata_merge section, if any.
	Dataset string `koanf:"-"`
	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

func defaults() map[string]any {
	return map[string]any{
		"wikidata_match_props": DefaultMatchProps,
		"code_candidates":      DefaultCodeCandidates,
		"batch_size":           DefaultBatchSize,
		"throttle":             DefaultThrottle,
		"retries":              DefaultRetries,
		"backoff":              DefaultBackoff,
		"backoff_unit":         DefaultBackoffUnit,
		"backoff_max":          DefaultBackoffMax,
		"user_agent":           DefaultUserAgent(),
		"endpoint":             wdqs.DefaultEndpoint,
		"request_timeout":      DefaultRequestTimeout,
		"overwrite":            false,
		"output_column":        DefaultOutputColumn,
		"existing_column":      "",
		"feature_id_column":    DefaultFeatureID,
		"coords_column":        DefaultCoords,
		"bom":                  true,
		"fail_fast":            false,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ColumnSpec names the dataset columns the merge reads and writes.
func (c *Config) ColumnSpec() schema.Spec {
	return schema.Spec{
		Candidates:      c.CodeCandidates,
		OutputColumn:    c.OutputColumn,
		ExistingColumn:  c.ExistingColumn,
		FeatureIDColumn: c.FeatureIDColumn,
		GeometryColumn:  c.CoordsColumn,
	}
}

// WorkerOptions maps the retry and throttle settings onto the query runner.
func (c *Config) WorkerOptions() worker.Options {
	policy := worker.FailurePolicyPartialOutput
	if c.FailFast {
		policy = worker.FailurePolicyFailFast
	}
	return worker.Options{
		MaxAttempts:       c.Retries,
		RequestTimeout:    seconds(c.RequestTimeout),
		Throttle:          seconds(c.Throttle),
		FailurePolicy:     policy,
		BackoffUnit:       seconds(c.BackoffUnit),
		BackoffBase:       c.Backoff,
		BackoffMax:        seconds(c.BackoffMax),
		BackoffJitterFrac: 0.1,
	}
}

// ClientConfig is the query service client configuration.
func (c *Config) ClientConfig() wdqs.Config {
	return wdqs.Config{
		Endpoint:  c.Endpoint,
		UserAgent: c.UserAgent,
		CAPath:    c.CAPath,
		Timeout:   seconds(c.RequestTimeout),
	}
}

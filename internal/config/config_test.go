package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openenergytransition/qidmerge/internal/config"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/worker"
)

const sampleYAML = `
wikidata_merge:
  wikidata_match_props: [P528, P712]
  batch_size: 50
  throttle: 1.5
  language: en
  user_agent: "test-agent/1 (mailto:ops@example.org)"
datasets:
  colombia_lines:
    code_candidates: [id_circuito, Codigo]
    languages: [es, en]
    existing_column: qid
  peru_substations:
    overwrite: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "harmonize_config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("merge", pflag.ContinueOnError)
	fs.String("input", "", "")
	fs.String("code-col", "", "")
	fs.StringSlice("props", nil, "")
	fs.StringSlice("lang", nil, "")
	fs.Int("batch-size", 0, "")
	fs.Float64("throttle", 0, "")
	fs.Int("retries", 0, "")
	fs.Bool("overwrite", false, "")
	fs.Bool("no-bom", false, "")
	fs.Bool("fail-fast", false, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"P528"}, cfg.MatchProps)
	assert.Equal(t, []string{"Codigo", "codigo", "id_circuito", "Code", "code", "ID", "id"}, cfg.CodeCandidates)
	assert.Equal(t, 75, cfg.BatchSize)
	assert.Equal(t, 3.0, cfg.Throttle)
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, 1.6, cfg.Backoff)
	assert.Equal(t, []string{"es"}, cfg.Languages)
	assert.Equal(t, config.DefaultUserAgent(), cfg.UserAgent)
	assert.Contains(t, cfg.UserAgent, "mailto:info@openenergytransition.org")
	assert.Equal(t, "https://query.wikidata.org/sparql", cfg.Endpoint)
	assert.Equal(t, "wikidata", cfg.OutputColumn)
	assert.Equal(t, "_feature_id", cfg.FeatureIDColumn)
	assert.Equal(t, "_coords_json", cfg.CoordsColumn)
	assert.False(t, cfg.Overwrite)
	assert.True(t, cfg.BOM)

	w := cfg.WorkerOptions()
	assert.Equal(t, 5, w.MaxAttempts)
	assert.Equal(t, 3*time.Second, w.Throttle)
	assert.Equal(t, 90*time.Second, w.RequestTimeout)
	assert.Equal(t, time.Second, w.BackoffUnit)
	assert.Equal(t, 1.6, w.BackoffBase)
	assert.Equal(t, worker.FailurePolicyPartialOutput, w.FailurePolicy)
}

func TestLoad_FileAndDatasetOverlay(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	cfg, err := config.Load(config.LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"P528", "P712"}, cfg.MatchProps)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, []string{"en"}, cfg.Languages, "language is a single-language alias")
	assert.Equal(t, 5, cfg.Retries, "unset keys keep defaults")

	cfg, err = config.Load(config.LoadOptions{File: path, Dataset: "colombia_lines"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id_circuito", "Codigo"}, cfg.CodeCandidates)
	assert.Equal(t, []string{"es", "en"}, cfg.Languages)
	assert.Equal(t, "qid", cfg.ColumnSpec().ExistingColumn)
	assert.Equal(t, 50, cfg.BatchSize, "global section still applies")
	assert.Equal(t, "colombia_lines", cfg.Dataset)

	cfg, err = config.Load(config.LoadOptions{File: path, Dataset: "peru_substations"})
	require.NoError(t, err)
	assert.True(t, cfg.Overwrite)
}

func TestLoad_UnknownDataset(t *testing.T) {
	_, err := config.Load(config.LoadOptions{File: writeConfig(t, sampleYAML), Dataset: "chile"})
	require.Error(t, err)
	assert.True(t, config.IsInvalid(err))
	assert.Contains(t, errors.FlattenHints(err), "colombia_lines")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("QIDMERGE_BATCH_SIZE", "10")
	t.Setenv("QIDMERGE_WIKIDATA_MATCH_PROPS", "P1,P2")

	cfg, err := config.Load(config.LoadOptions{File: writeConfig(t, sampleYAML)})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, []string{"P1", "P2"}, cfg.MatchProps)
}

func TestLoad_EnvLists(t *testing.T) {
	t.Setenv("QIDMERGE_CODE_CANDIDATES", "id_circuito, Codigo")
	t.Setenv("QIDMERGE_LANGUAGES", "es,en")
	t.Setenv("QIDMERGE_LANGUAGE", "fr")

	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id_circuito", "Codigo"}, cfg.CodeCandidates)
	assert.Equal(t, []string{"es", "en"}, cfg.Languages, "languages wins over language")
}

func TestLoad_LanguageAliasPerLayer(t *testing.T) {
	const body = `
wikidata_merge:
  languages: [es, en]
datasets:
  peru_lines:
    language: fr
`
	path := writeConfig(t, body)

	cfg, err := config.Load(config.LoadOptions{File: path, Dataset: "peru_lines"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fr"}, cfg.Languages, "overlay language replaces base languages")

	t.Setenv("QIDMERGE_LANGUAGE", "pt")
	cfg, err = config.Load(config.LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"pt"}, cfg.Languages, "env language replaces file languages")
	assert.Equal(t, "pt", cfg.Language)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	t.Setenv("QIDMERGE_BATCH_SIZE", "10")
	fs := newFlags()
	require.NoError(t, fs.Parse([]string{
		"--input", "in.csv",
		"--code-col", "id_circuito",
		"--props", "P528,P999",
		"--lang", "pt-br",
		"--batch-size", "5",
		"--no-bom",
		"--fail-fast",
	}))

	cfg, err := config.Load(config.LoadOptions{File: writeConfig(t, sampleYAML), Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, []string{"id_circuito", "Codigo", "codigo", "Code", "code", "ID", "id"}, cfg.CodeCandidates,
		"the override leads and the configured candidates remain as fallbacks")
	assert.Equal(t, []string{"P528", "P999"}, cfg.MatchProps)
	assert.Equal(t, []string{"pt-br"}, cfg.Languages)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 1.5, cfg.Throttle, "unset flags do not clobber the file")
	assert.False(t, cfg.BOM)
	assert.Equal(t, worker.FailurePolicyFailFast, cfg.WorkerOptions().FailurePolicy)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad property", yaml: "wikidata_match_props: [P528, 'P1 } UNION {']"},
		{name: "empty properties", yaml: "wikidata_match_props: []"},
		{name: "empty candidates", yaml: "code_candidates: ['  ']"},
		{name: "bad language", yaml: `languages: ['es") || ("']`},
		{name: "zero batch", yaml: "batch_size: 0"},
		{name: "zero retries", yaml: "retries: 0"},
		{name: "shrinking backoff", yaml: "backoff: 0.5"},
		{name: "blank user agent", yaml: "user_agent: ' '"},
		{name: "bad endpoint", yaml: "endpoint: 'ftp://example.org'"},
		{name: "wrong type", yaml: "batch_size: lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "wikidata_merge:\n  "+tt.yaml+"\n")
			_, err := config.Load(config.LoadOptions{File: path})
			require.Error(t, err)
			assert.True(t, config.IsInvalid(err), "%v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(config.LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.True(t, config.IsInvalid(err))
}

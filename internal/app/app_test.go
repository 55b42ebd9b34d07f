package app_test

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openenergytransition/qidmerge/internal/app"
	"github.com/openenergytransition/qidmerge/internal/config"
	"github.com/openenergytransition/qidmerge/internal/mockwdqs"
	localio "github.com/openenergytransition/qidmerge/pkg/pipeline/io/local"
)

const inputCSV = "TRAMO,Codigo,Un\nNorte,ABC-123,220\nSur,DUP-1,115\nEste,MISSING-1,34.5\nOeste,,13.8\n"

func fixture() mockwdqs.Fixture {
	return mockwdqs.Fixture{
		"P528": {
			"ABC-123": {{QID: "Q1000", Descriptions: map[string]string{"es": "Línea Norte"}}},
			"DUP-1":   {{QID: "Q10"}, {QID: "Q20"}},
		},
	}
}

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)
	cfg.Endpoint = endpoint
	cfg.Throttle = 0
	cfg.Retries = 3
	cfg.BackoffUnit = 0.001
	cfg.BackoffMax = 0.01
	cfg.RequestTimeout = 5
	return cfg
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "lineas.csv")
	require.NoError(t, os.WriteFile(p, []byte(inputCSV), 0o644))
	return p
}

func TestRunLocal_AgainstMockService(t *testing.T) {
	mock := mockwdqs.New(fixture())
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	dir := t.TempDir()
	in := writeInput(t, dir)
	out := filepath.Join(dir, "out", "lineas_qid.csv")
	rep := filepath.Join(dir, "runs.db")
	var stdout bytes.Buffer

	outcome, err := app.RunLocal(context.Background(), app.Options{
		Input:  in,
		Output: out,
		Report: rep,
		Config: testConfig(t, srv.URL+"/sparql"),
		Logger: zaptest.NewLogger(t),
		Stdout: &stdout,
	})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.RunID)

	s := outcome.Result.Summary
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 1, s.WithQID)
	assert.Equal(t, 1, s.Ambiguous)
	assert.Equal(t, 2, s.Unresolved)

	got, err := localio.CSVFile{Path: out}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TRAMO", "Codigo", "wikidata", "Un"}, got.Columns)
	assert.Equal(t, "Q1000", got.Get(got.Rows[0], "wikidata"))
	assert.Equal(t, "", got.Get(got.Rows[1], "wikidata"))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\xef\xbb\xbf")), "output carries a BOM by default")

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"ABC-123", "DUP-1", "MISSING-1"}, calls[0].Values)
	assert.Contains(t, calls[0].UserAgent, "mailto:")

	assert.Contains(t, stdout.String(), "with_qid")

	db, err := sql.Open("sqlite", rep)
	require.NoError(t, err)
	defer db.Close()
	var runID string
	require.NoError(t, db.QueryRow(`SELECT run_id FROM match_runs`).Scan(&runID))
	assert.Equal(t, outcome.RunID, runID)
}

func TestRunLocal_RetriesThroughServerErrors(t *testing.T) {
	mock := mockwdqs.New(fixture())
	mock.FailNext(2, http.StatusServiceUnavailable)
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	outcome, err := app.RunLocal(context.Background(), app.Options{
		Input:  writeInput(t, dir),
		Output: out,
		Config: testConfig(t, srv.URL+"/sparql"),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 3)
	assert.Equal(t, 0, outcome.Result.Summary.FailedQueries)
	assert.Equal(t, 1, outcome.Result.Summary.WithQID)
}

func TestRunLocal_ExhaustedRetriesLeaveRowsUnresolved(t *testing.T) {
	mock := mockwdqs.New(fixture())
	mock.FailNext(3, http.StatusBadGateway)
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	outcome, err := app.RunLocal(context.Background(), app.Options{
		Input:  writeInput(t, dir),
		Output: out,
		Config: testConfig(t, srv.URL+"/sparql"),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	s := outcome.Result.Summary
	assert.Equal(t, 1, s.FailedQueries)
	assert.Equal(t, 0, s.WithQID)
	assert.Equal(t, 0, s.Ambiguous)
	assert.Equal(t, 4, s.Unresolved)
	_, err = os.Stat(out)
	assert.NoError(t, err, "partial output is still written")
}

func TestRunLocal_FailFastWritesNothing(t *testing.T) {
	mock := mockwdqs.New(fixture())
	mock.FailNext(1, http.StatusBadRequest)
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	cfg := testConfig(t, srv.URL+"/sparql")
	cfg.FailFast = true
	_, err := app.RunLocal(context.Background(), app.Options{
		Input:  writeInput(t, dir),
		Output: out,
		Report: filepath.Join(dir, "report.csv"),
		Config: cfg,
		Logger: zaptest.NewLogger(t),
	})
	require.Error(t, err)
	assert.Len(t, mock.Calls(), 1, "client errors are not retried")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the input remains")
}

func TestRunLocal_MissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := app.RunLocal(context.Background(), app.Options{
		Input:  filepath.Join(dir, "nope.csv"),
		Output: filepath.Join(dir, "out.csv"),
		Config: testConfig(t, "http://127.0.0.1:1/sparql"),
		Logger: zaptest.NewLogger(t),
	})
	require.Error(t, err)
}

func TestRenderConfig(t *testing.T) {
	var buf bytes.Buffer
	app.RenderConfig(&buf, testConfig(t, "https://example.org/sparql"))
	assert.Contains(t, buf.String(), "wikidata_match_props")
	assert.Contains(t, buf.String(), "P528")
	assert.Contains(t, buf.String(), "https://example.org/sparql")
}

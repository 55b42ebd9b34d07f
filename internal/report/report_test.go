package report_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/openenergytransition/qidmerge/internal/merge"
	"github.com/openenergytransition/qidmerge/internal/report"
)

func sampleReport() report.Report {
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return report.Report{
		RunID:      "7f1c7a5e-5d0c-4d4e-9d8e-2b1b6f7f0a11",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Input:      "lineas.csv",
		Output:     "lineas_qid.csv",
		Dataset:    "colombia_lines",
		Properties: []string{"P528"},
		Summary:    merge.Summary{Rows: 3, WithQID: 1, Unresolved: 1, Ambiguous: 1, Matched: 1},
		Decisions: []merge.Decision{
			{
				Row: 0, Column: "Codigo", Value: "ABC-123",
				Resolution: merge.Resolution{Status: merge.StatusMatched, QID: "Q1000", Candidates: []string{"Q1000"}, Reason: merge.ReasonSingleHit},
				Written:    "Q1000",
			},
			{
				Row: 1, Column: "Codigo", Value: "DUP-1",
				Resolution: merge.Resolution{Status: merge.StatusAmbiguous, Candidates: []string{"Q10", "Q20"}, Reason: merge.ReasonNoHint},
			},
			{
				Row:        2,
				Resolution: merge.Resolution{Status: merge.StatusUnresolved, Reason: merge.ReasonNoIdentifier},
			},
		},
	}
}

func TestFormatFor(t *testing.T) {
	for path, want := range map[string]report.Format{
		"r.csv":       report.FormatCSV,
		"r.YAML":      report.FormatYAML,
		"r.yml":       report.FormatYAML,
		"runs.db":     report.FormatSQLite,
		"runs.sqlite": report.FormatSQLite,
	} {
		got, err := report.FormatFor(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := report.FormatFor("r.json")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, sampleReport()))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "status", recs[0][4])
	assert.Equal(t, []string{"0", "Codigo", "ABC-123", "", "matched", "single_hit", "Q1000", "Q1000", "", "Q1000", "false"}, recs[1])
	assert.Equal(t, "Q10;Q20", recs[2][7])
	assert.Equal(t, "no_identifier", recs[3][5])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteYAML(&buf, sampleReport()))

	var doc struct {
		RunID   string         `yaml:"run_id"`
		Summary map[string]int `yaml:"summary"`
		Rows    []struct {
			Status     string   `yaml:"status"`
			Candidates []string `yaml:"candidates"`
		} `yaml:"decisions"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "7f1c7a5e-5d0c-4d4e-9d8e-2b1b6f7f0a11", doc.RunID)
	assert.Equal(t, 3, doc.Summary["rows"])
	assert.Equal(t, 1, doc.Summary["ambiguous"])
	require.Len(t, doc.Rows, 3)
	assert.Equal(t, []string{"Q10", "Q20"}, doc.Rows[1].Candidates)
}

func TestWriteSQL_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := sampleReport()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS match_runs")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS match_decisions")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_match_decisions_value")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO match_runs")).
		WithArgs(r.RunID, "2026-03-02T10:00:00Z", "2026-03-02T10:00:42Z", "lineas.csv", "lineas_qid.csv", "colombia_lines", "P528",
			3, 1, 1, 1, 1, 0, 0, 0, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO match_decisions"))
	prep.ExpectExec().
		WithArgs(r.RunID, 0, "Codigo", "ABC-123", "", "matched", "single_hit", "Q1000", "Q1000", "", "Q1000", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(r.RunID, 1, "Codigo", "DUP-1", "", "ambiguous", "no_hint", "", "Q10;Q20", "", "", 0).
		WillReturnResult(sqlmock.NewResult(2, 1))
	prep.ExpectExec().
		WithArgs(r.RunID, 2, "", "", "", "unresolved", "no_identifier", "", "", "", "", 0).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	require.NoError(t, report.WriteSQL(context.Background(), db, r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSQL_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = report.WriteSQL(context.Background(), db, sampleReport())
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_SQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "runs.db")
	ctx := context.Background()

	first := sampleReport()
	require.NoError(t, report.Write(ctx, path, first))
	second := sampleReport()
	second.RunID = "second-run"
	require.NoError(t, report.Write(ctx, path, second))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var runs, decisions, ambiguous int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM match_runs`).Scan(&runs))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM match_decisions`).Scan(&decisions))
	require.NoError(t, db.QueryRow(`SELECT ambiguous FROM match_runs WHERE run_id = ?`, "second-run").Scan(&ambiguous))
	assert.Equal(t, 2, runs)
	assert.Equal(t, 6, decisions)
	assert.Equal(t, 1, ambiguous)

	var qid string
	require.NoError(t, db.QueryRow(
		`SELECT qid FROM match_decisions WHERE run_id = ? AND value = ?`, first.RunID, "ABC-123",
	).Scan(&qid))
	assert.Equal(t, "Q1000", qid)
}

func TestWrite_FileFormats(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	for _, name := range []string{"report.csv", "report.yaml"} {
		p := filepath.Join(dir, name)
		require.NoError(t, report.Write(ctx, p, sampleReport()))
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Contains(t, string(b), "ABC-123")
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.Error(t, report.Write(ctx, filepath.Join(dir, "report.txt"), sampleReport()))
}

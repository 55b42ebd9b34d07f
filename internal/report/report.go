// Package report writes the per-row audit trail of a merge run as CSV, YAML or SQLite.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/openenergytransition/qidmerge/internal/merge"
)

// Report is one run's audit record.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Input      string
	Output     string
	Dataset    string
	Properties []string
	Summary    merge.Summary
	Decisions  []merge.Decision
}

// Format is a report file format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatYAML   Format = "yaml"
	FormatSQLite Format = "sqlite"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", errors.Newf("unsupported report extension %q (want .csv, .yaml, .yml, .db or .sqlite)", filepath.Ext(path))
}

// Write stores r at path in the format its extension names. CSV and YAML reports
// replace the file; SQLite reports append a run to the database.
func Write(ctx context.Context, path string, r Report) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatSQLite:
		return WriteSQLite(ctx, path, r)
	case FormatYAML:
		return writeFileAtomic(path, func(w io.Writer) error { return WriteYAML(w, r) })
	default:
		return writeFileAtomic(path, func(w io.Writer) error { return WriteCSV(w, r) })
	}
}

var csvHeader = []string{
	"row", "column", "value", "hint", "status", "reason", "qid", "candidates", "existing", "written", "conflict",
}

// WriteCSV writes one line per row decision.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range r.Decisions {
		if err := cw.Write([]string{
			strconv.Itoa(d.Row),
			d.Column,
			d.Value,
			d.Hint,
			string(d.Status),
			string(d.Reason),
			d.QID,
			strings.Join(d.Candidates, ";"),
			d.Existing,
			d.Written,
			strconv.FormatBool(d.Conflict),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type yamlSummary struct {
	Rows          int `yaml:"rows"`
	WithQID       int `yaml:"with_qid"`
	Unresolved    int `yaml:"unresolved"`
	Ambiguous     int `yaml:"ambiguous"`
	Matched       int `yaml:"matched"`
	NoIdentifier  int `yaml:"no_identifier"`
	Preexisting   int `yaml:"preexisting"`
	Conflicts     int `yaml:"conflicts"`
	FailedQueries int `yaml:"failed_queries"`
}

type yamlDecision struct {
	Row        int      `yaml:"row"`
	Column     string   `yaml:"column,omitempty"`
	Value      string   `yaml:"value,omitempty"`
	Hint       string   `yaml:"hint,omitempty"`
	Status     string   `yaml:"status"`
	Reason     string   `yaml:"reason"`
	QID        string   `yaml:"qid,omitempty"`
	Candidates []string `yaml:"candidates,omitempty"`
	Existing   string   `yaml:"existing,omitempty"`
	Written    string   `yaml:"written,omitempty"`
	Conflict   bool     `yaml:"conflict,omitempty"`
}

type yamlReport struct {
	RunID      string         `yaml:"run_id"`
	StartedAt  time.Time      `yaml:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at"`
	Input      string         `yaml:"input,omitempty"`
	Output     string         `yaml:"output,omitempty"`
	Dataset    string         `yaml:"dataset,omitempty"`
	Properties []string       `yaml:"properties"`
	Summary    yamlSummary    `yaml:"summary"`
	Decisions  []yamlDecision `yaml:"decisions"`
}

func summaryFields(s merge.Summary) yamlSummary {
	return yamlSummary{
		Rows:          s.Rows,
		WithQID:       s.WithQID,
		Unresolved:    s.Unresolved,
		Ambiguous:     s.Ambiguous,
		Matched:       s.Matched,
		NoIdentifier:  s.NoIdentifier,
		Preexisting:   s.Preexisting,
		Conflicts:     s.Conflicts,
		FailedQueries: s.FailedQueries,
	}
}

// WriteYAML writes the run header, summary and decisions as one YAML document.
func WriteYAML(w io.Writer, r Report) error {
	doc := yamlReport{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Input:      r.Input,
		Output:     r.Output,
		Dataset:    r.Dataset,
		Properties: r.Properties,
		Summary:    summaryFields(r.Summary),
		Decisions:  make([]yamlDecision, 0, len(r.Decisions)),
	}
	for _, d := range r.Decisions {
		doc.Decisions = append(doc.Decisions, yamlDecision{
			Row:        d.Row,
			Column:     d.Column,
			Value:      d.Value,
			Hint:       d.Hint,
			Status:     string(d.Status),
			Reason:     string(d.Reason),
			QID:        d.QID,
			Candidates: d.Candidates,
			Existing:   d.Existing,
			Written:    d.Written,
			Conflict:   d.Conflict,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode yaml report")
	}
	return enc.Close()
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/openenergytransition/qidmerge/internal/config"
	"github.com/openenergytransition/qidmerge/internal/merge"
)

// RenderSummary writes the run counters as a table.
func RenderSummary(w io.Writer, s merge.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("merge summary")
	tw.AppendHeader(table.Row{"metric", "rows"})
	tw.AppendRows([]table.Row{
		{"rows", s.Rows},
		{"with_qid", s.WithQID},
		{"matched", s.Matched},
		{"unresolved", s.Unresolved},
		{"ambiguous", s.Ambiguous},
		{"no_identifier", s.NoIdentifier},
		{"preexisting", s.Preexisting},
		{"conflicts", s.Conflicts},
		{"failed_queries", s.FailedQueries},
	})
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// RenderConfig writes the resolved configuration as a key/value table.
func RenderConfig(w io.Writer, c *config.Config) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"key", "value"})
	for _, kv := range [][2]string{
		{"config_file", c.File},
		{"dataset", c.Dataset},
		{"wikidata_match_props", strings.Join(c.MatchProps, ", ")},
		{"code_candidates", strings.Join(c.CodeCandidates, ", ")},
		{"languages", strings.Join(c.Languages, ", ")},
		{"batch_size", fmt.Sprint(c.BatchSize)},
		{"throttle", fmt.Sprintf("%gs", c.Throttle)},
		{"retries", fmt.Sprint(c.Retries)},
		{"backoff", fmt.Sprintf("%g (unit %gs, max %gs)", c.Backoff, c.BackoffUnit, c.BackoffMax)},
		{"request_timeout", fmt.Sprintf("%gs", c.RequestTimeout)},
		{"endpoint", c.Endpoint},
		{"user_agent", c.UserAgent},
		{"ca_path", c.CAPath},
		{"output_column", c.OutputColumn},
		{"existing_column", c.ExistingColumn},
		{"feature_id_column", c.FeatureIDColumn},
		{"coords_column", c.CoordsColumn},
		{"overwrite", fmt.Sprint(c.Overwrite)},
		{"bom", fmt.Sprint(c.BOM)},
		{"fail_fast", fmt.Sprint(c.FailFast)},
	} {
		tw.AppendRow(table.Row{kv[0], kv[1]})
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

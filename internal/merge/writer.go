package merge

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/schema"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/table"
)

// Decision is the audit record for one row.
type Decision struct {
	Row    int
	Column string
	Value  string
	Hint   string
	Resolution
	// Existing is the identifier the row carried before the merge.
	Existing string
	// Written is the value left in the output column.
	Written  string
	Conflict bool
}

// Summary aggregates a run.
type Summary struct {
	Rows       int
	WithQID    int
	Unresolved int
	Ambiguous  int

	// Matched counts rows whose identifier resolved to one entity, whether or not the
	// QID was written.
	Matched       int
	NoIdentifier  int
	Preexisting   int
	Conflicts     int
	FailedQueries int
}

// WriterOptions controls how resolved identifiers land in the output column.
type WriterOptions struct {
	OutputColumn string
	// Overwrite replaces a pre-existing identifier with a newly matched one.
	Overwrite bool
}

// Write copies t, adds the output column when missing, and fills it from decisions,
// which must hold one entry per row in table order. Only the output column changes.
// Decisions are updated in place with Existing, Written and Conflict.
func Write(t *table.Table, contract schema.DatasetContract, decisions []Decision, opts WriterOptions) (*table.Table, Summary, error) {
	if len(decisions) != len(t.Rows) {
		return nil, Summary{}, errors.Newf("merge: %d decisions for %d rows", len(decisions), len(t.Rows))
	}
	if strings.TrimSpace(opts.OutputColumn) == "" {
		return nil, Summary{}, errors.New("merge: output column is empty")
	}

	out := t.Clone()
	out.InsertColumn(opts.OutputColumn, contract.OutputInsertAt(len(t.Columns)))

	var sum Summary
	sum.Rows = len(out.Rows)
	for i := range out.Rows {
		d := &decisions[i]
		prior := ""
		if contract.Existing != nil {
			prior = strings.TrimSpace(t.Get(t.Rows[i], contract.Existing.Name))
		}
		if prior == "" {
			prior = strings.TrimSpace(out.Get(out.Rows[i], opts.OutputColumn))
		}
		d.Existing = prior

		written := prior
		if d.Status == StatusMatched {
			if prior != "" && prior != d.QID {
				d.Conflict = true
				sum.Conflicts++
			}
			if prior == "" || opts.Overwrite {
				written = d.QID
			}
		}
		d.Written = written
		if err := out.Set(i, opts.OutputColumn, written); err != nil {
			return nil, Summary{}, err
		}

		if prior != "" {
			sum.Preexisting++
		}
		if written != "" {
			sum.WithQID++
		}
		switch d.Status {
		case StatusMatched:
			sum.Matched++
		case StatusUnresolved:
			sum.Unresolved++
			if d.Reason == ReasonNoIdentifier {
				sum.NoIdentifier++
			}
		case StatusAmbiguous:
			sum.Ambiguous++
		}
	}
	return out, sum, nil
}

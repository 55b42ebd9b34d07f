package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/table"
)

// ReadTable reads a CSV with a header row. A UTF-8 byte order mark is stripped and
// header names are trimmed.
func ReadTable(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = table.NormalizeHeader(header)

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		records = append(records, rec)
	}
	return table.New(header, records)
}

// WriteTable writes t as CSV, optionally prefixed with a UTF-8 byte order mark.
func WriteTable(w io.Writer, t *table.Table, bom bool) error {
	if !bom {
		return writeCSV(w, t)
	}
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	if err := writeCSV(tw, t); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

func writeCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := cw.Write(r.Values); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFile is a dataset stored as a local CSV file.
type CSVFile struct {
	Path string
	// BOM prefixes written files with a UTF-8 byte order mark.
	BOM bool
}

// Load reads the file into a table.
func (f CSVFile) Load(_ context.Context) (*table.Table, error) {
	in, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	t, err := ReadTable(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return t, nil
}

// Store writes t next to the destination first and renames it into place, so the
// destination is either untouched or complete.
func (f CSVFile) Store(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := WriteTable(tmp, t, f.BOM); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.Path)
}

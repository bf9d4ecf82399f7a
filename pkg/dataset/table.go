package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/pkg/errors"
)

const (
	dirMode = 0755
	utf8BOM = "\ufeff"
)

// missingValues are the cell contents read as "no value".
var missingValues = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissing reports whether a cell holds no value.
func IsMissing(s string) bool {
	return missingValues[strings.TrimSpace(s)]
}

// Table is an in-memory, string-typed tabular file.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable returns a table over the given header and rows. Rows are not copied.
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{
		Columns: columns,
		Rows:    rows,
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, ok := t.index[c]; !ok {
			t.index[c] = i
		}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of column name or -1.
func (t *Table) Index(name string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the table has column name.
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Column returns a copy of the values of column name.
func (t *Table) Column(name string) ([]string, error) {
	i := t.Index(name)
	if i < 0 {
		return nil, errs.DataQuality("missing column: %s", name)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Equal reports whether both tables have the same header and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !slices.Equal(t.Columns, o.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Rows {
		if !slices.Equal(t.Rows[i], o.Rows[i]) {
			return false
		}
	}
	return true
}

// Without returns the table minus the named columns. Names the table does
// not have are ignored.
func (t *Table) Without(columns ...string) *Table {
	drop := make(map[int]bool, len(columns))
	for _, c := range columns {
		if i := t.Index(c); i >= 0 {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return t
	}

	keep := make([]int, 0, len(t.Columns)-len(drop))
	cols := make([]string, 0, len(t.Columns)-len(drop))
	for i, c := range t.Columns {
		if !drop[i] {
			keep = append(keep, i)
			cols = append(cols, c)
		}
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		rows[r] = out
	}
	return NewTable(cols, rows)
}

// DropMissing returns the rows with a value in every one of the named columns.
func (t *Table) DropMissing(columns ...string) (*Table, error) {
	idx := make([]int, 0, len(columns))
	for _, c := range columns {
		i := t.Index(c)
		if i < 0 {
			return nil, errs.DataQuality("missing column: %s", c)
		}
		idx = append(idx, i)
	}

	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if !anyMissing(row, idx) {
			rows = append(rows, row)
		}
	}
	return NewTable(slices.Clone(t.Columns), rows), nil
}

func anyMissing(row []string, idx []int) bool {
	for _, i := range idx {
		if IsMissing(row[i]) {
			return true
		}
	}
	return false
}

// ReadCSV loads a CSV file with a header row.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening table: %s", path)
	}
	defer f.Close()

	t, err := ReadCSVFrom(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading table: %s", path)
	}
	return t, nil
}

// ReadCSVFrom loads CSV content with a header row. Every record must have
// as many fields as the header.
func ReadCSVFrom(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errs.DataQuality("table has no header")
	}
	if err != nil {
		return nil, errs.DataQuality("malformed header: %v", err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		cols[i] = strings.TrimSpace(h)
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.DataQuality("malformed record: %v", err)
		}
		rows = append(rows, rec)
	}

	return NewTable(cols, rows), nil
}

// WriteCSV writes the table to path, creating parent directories. The write
// is not atomic.
func (t *Table) WriteCSV(path string) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return errors.Wrapf(err, "error creating dir for: %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating table: %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = errors.Wrapf(cerr, "error closing table: %s", path)
		}
	}()

	return t.WriteCSVTo(f)
}

// WriteCSVTo writes the header and rows as CSV.
func (t *Table) WriteCSVTo(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, "error writing header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "error writing rows")
	}
	return nil
}

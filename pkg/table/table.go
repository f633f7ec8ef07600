// Package table reads and writes the delimiter-separated index tables that the
// pipeline stages exchange. Every field is kept as a string, so zero-padded
// identifiers and UIDs survive a round trip unchanged.
package table

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// DefaultDelimiter separates fields in every emitted table
const DefaultDelimiter = ';'

// Table is a header row plus string-typed data rows. Short rows are padded
// with empty fields when read.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New creates an empty table with the given header
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds a row; it is padded or truncated to the header width
func (t *Table) Append(row []string) {
	out := make([]string, len(t.Columns))
	copy(out, row)
	t.Rows = append(t.Rows, out)
}

// Len is the number of data rows
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether column name exists
func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Pick returns the first candidate that names an existing column, or ""
func (t *Table) Pick(candidates ...string) string {
	for _, c := range candidates {
		if t.Has(c) {
			return c
		}
	}
	return ""
}

// Get returns the value of column name in row i, or "" if the column is absent
func (t *Table) Get(i int, name string) string {
	idx := t.Index(name)
	if idx < 0 {
		return ""
	}
	return t.Rows[i][idx]
}

// Column returns a copy of every value of column name
func (t *Table) Column(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// TrimColumnNames strips surrounding whitespace from every header name
func (t *Table) TrimColumnNames() {
	for i, c := range t.Columns {
		t.Columns[i] = strings.TrimSpace(c)
	}
}

// Delimiter converts a configured delimiter string into a rune
func Delimiter(s string) (rune, error) {
	if s == "" {
		return DefaultDelimiter, nil
	}
	if s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, errors.Errorf("invalid delimiter %q: must be a single character", s)
	}
	return r, nil
}

// Decode parses a table from r
func Decode(r io.Reader, delim rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("table has no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	// Files written by spreadsheet tools often start with a UTF-8 BOM
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := New(header...)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading row %d", t.Len()+1)
		}
		t.Append(row)
	}
	return t, nil
}

// Encode writes the header and every row to w
func Encode(w io.Writer, t *Table, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, "writing header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "writing rows")
	}
	return nil
}

// Read loads a table from path
func Read(path string, delim rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening table %s", path)
	}
	defer f.Close()

	t, err := Decode(f, delim)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing table %s", path)
	}
	return t, nil
}

// Write stores t at path, creating parent directories as needed
func Write(path string, t *Table, delim rune) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating table %s", path)
	}
	if err := Encode(f, t, delim); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing table %s", path)
	}
	return errors.Wrapf(f.Close(), "closing table %s", path)
}

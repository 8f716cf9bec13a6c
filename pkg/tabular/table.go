// Package tabular holds the in-memory representation of an uploaded dataset:
// a typed, immutable table built from parsed rows, and a snapshot store that
// lets readers work on a stable reference while re-uploads swap tables out.
package tabular

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the runtime type of a single cell.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindTime
	KindString
)

// Value is one table cell. Exactly one of Num/Time/Str is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind
	Num  float64
	Time time.Time
	Str  string
}

// timeLayouts are the date formats recognized during parsing, most
// specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01",
}

// nullTokens are raw strings treated as missing values.
var nullTokens = map[string]bool{
	"": true, "null": true, "NULL": true, "Null": true,
	"n/a": true, "N/A": true, "na": true, "NA": true, "-": true,
}

// ParseValue converts a raw cell into a typed Value.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if nullTokens[s] {
		return Value{Kind: KindNull}
	}
	// Numbers may carry thousands separators.
	numeric := strings.ReplaceAll(s, ",", "")
	if f, err := strconv.ParseFloat(numeric, 64); err == nil {
		return Value{Kind: KindNumber, Num: f}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Value{Kind: KindTime, Time: t}
		}
	}
	return Value{Kind: KindString, Str: s}
}

// String renders the cell for display and distinct-value sampling.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindTime:
		return v.Time.Format("2006-01-02")
	default:
		return v.Str
	}
}

// Native returns the cell as a JSON-friendly Go value.
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindNumber:
		return v.Num
	case KindTime:
		return v.Time.Format("2006-01-02")
	default:
		return v.Str
	}
}

// Table is an immutable in-memory dataset. It is fully built before being
// published to the Store and never mutated afterward, so concurrent readers
// need no locking.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// FromRecords builds a Table from a header and raw rows. Rows whose length
// does not match the header are skipped; rows and columns that are entirely
// null are dropped, matching upload-cleanup behavior.
func FromRecords(header []string, records [][]string) (*Table, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}

	parsed := make([][]Value, 0, len(records))
	for _, rec := range records {
		if len(rec) != len(header) {
			continue
		}
		row := make([]Value, len(rec))
		empty := true
		for i, raw := range rec {
			row[i] = ParseValue(raw)
			if row[i].Kind != KindNull {
				empty = false
			}
		}
		if !empty {
			parsed = append(parsed, row)
		}
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("table has no data rows")
	}

	// Drop columns that are null in every surviving row.
	keep := make([]int, 0, len(header))
	for c := range header {
		for _, row := range parsed {
			if row[c].Kind != KindNull {
				keep = append(keep, c)
				break
			}
		}
	}

	columns := make([]string, len(keep))
	index := make(map[string]int, len(keep))
	for i, c := range keep {
		name := strings.TrimSpace(header[c])
		columns[i] = name
		index[strings.ToLower(name)] = i
	}

	rows := make([][]Value, len(parsed))
	for r, row := range parsed {
		out := make([]Value, len(keep))
		for i, c := range keep {
			out[i] = row[c]
		}
		rows[r] = out
	}

	return &Table{columns: columns, index: index, rows: rows}, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string { return t.columns }

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.columns) }

// ColumnIndex resolves a column name case-insensitively.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// At returns the cell at row r, column c.
func (t *Table) At(r, c int) Value { return t.rows[r][c] }

// Row returns the cells of row r. Callers must not modify the slice.
func (t *Table) Row(r int) []Value { return t.rows[r] }

// NumericColumn returns all non-null numeric values of the named column in
// row order.
func (t *Table) NumericColumn(name string) []float64 {
	c, ok := t.ColumnIndex(name)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(t.rows))
	for _, row := range t.rows {
		if row[c].Kind == KindNumber {
			out = append(out, row[c].Num)
		}
	}
	return out
}

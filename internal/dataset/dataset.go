package dataset

import (
	"fmt"
	"strconv"
	"time"
)

// ColumnType is the semantic type of a column, established once during
// cleaning and never re-inferred afterwards.
type ColumnType string

const (
	Numeric     ColumnType = "numeric"
	Categorical ColumnType = "categorical"
	Datetime    ColumnType = "datetime"
	Text        ColumnType = "text"
)

// Frame is a raw table as uploaded: headers plus string cells.
type Frame struct {
	Headers []string
	Rows    [][]string
}

// NumRows returns the number of data rows.
func (f *Frame) NumRows() int {
	return len(f.Rows)
}

// Cell returns the raw cell value, tolerating ragged rows.
func (f *Frame) Cell(row, col int) string {
	if row < 0 || row >= len(f.Rows) {
		return ""
	}
	r := f.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Column is a tagged variant: exactly one of the value slices is populated
// according to Type. Missing marks cells that carried no usable value.
type Column struct {
	Name    string
	Type    ColumnType
	Numbers []float64   // Numeric
	Times   []time.Time // Datetime
	Labels  []string    // Categorical and Text
	Missing []bool
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	return len(c.Missing)
}

// CellString renders cell i in a canonical string form. Missing cells
// render as the empty string.
func (c *Column) CellString(i int) string {
	if i < 0 || i >= len(c.Missing) || c.Missing[i] {
		return ""
	}
	switch c.Type {
	case Numeric:
		return strconv.FormatFloat(c.Numbers[i], 'g', -1, 64)
	case Datetime:
		return c.Times[i].Format("2006-01-02T15:04:05Z07:00")
	default:
		return c.Labels[i]
	}
}

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.Missing {
		if m {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() Column {
	out := Column{Name: c.Name, Type: c.Type}
	out.Numbers = append([]float64(nil), c.Numbers...)
	out.Times = append([]time.Time(nil), c.Times...)
	out.Labels = append([]string(nil), c.Labels...)
	out.Missing = append([]bool(nil), c.Missing...)
	return out
}

// Table is an ordered collection of typed columns. Invariants: column names
// are unique and every column has the same length.
type Table struct {
	Columns []Column
}

// NumRows returns the row count (identical across columns).
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// NumColumns returns the column count.
func (t *Table) NumColumns() int {
	return len(t.Columns)
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i := range t.Columns {
		names[i] = t.Columns[i].Name
	}
	return names
}

// NumericColumns returns the names of numeric columns in order.
func (t *Table) NumericColumns() []string {
	var names []string
	for i := range t.Columns {
		if t.Columns[i].Type == Numeric {
			names = append(names, t.Columns[i].Name)
		}
	}
	return names
}

// AddColumn appends a column, enforcing the table invariants.
func (t *Table) AddColumn(c Column) error {
	if _, ok := t.Column(c.Name); ok {
		return fmt.Errorf("column %q already exists", c.Name)
	}
	if len(t.Columns) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.NumRows())
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for i := range t.Columns {
		out.Columns[i] = t.Columns[i].Clone()
	}
	return out
}

// SelectRows returns a new table containing only the rows whose indices are
// marked true in keep. keep must have NumRows entries.
func (t *Table) SelectRows(keep []bool) *Table {
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for ci := range t.Columns {
		src := &t.Columns[ci]
		dst := Column{Name: src.Name, Type: src.Type}
		for ri := 0; ri < src.Len(); ri++ {
			if !keep[ri] {
				continue
			}
			dst.Missing = append(dst.Missing, src.Missing[ri])
			switch src.Type {
			case Numeric:
				dst.Numbers = append(dst.Numbers, src.Numbers[ri])
			case Datetime:
				dst.Times = append(dst.Times, src.Times[ri])
			default:
				dst.Labels = append(dst.Labels, src.Labels[ri])
			}
		}
		out.Columns[ci] = dst
	}
	return out
}

// ToFrame renders the table back to raw string form, for export and for
// feeding a cleaned table through the cleaning engine again.
func (t *Table) ToFrame() *Frame {
	f := &Frame{Headers: t.ColumnNames()}
	rows := t.NumRows()
	for ri := 0; ri < rows; ri++ {
		row := make([]string, len(t.Columns))
		for ci := range t.Columns {
			row[ci] = t.Columns[ci].CellString(ri)
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

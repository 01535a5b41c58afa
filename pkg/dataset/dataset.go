package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"
)

// ColumnType is the logical type of every non-null cell in a column.
type ColumnType string

const (
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeString ColumnType = "string"
	TypeBool   ColumnType = "bool"
)

func (t ColumnType) Valid() bool {
	switch t {
	case TypeInt, TypeFloat, TypeString, TypeBool:
		return true
	}
	return false
}

func (t ColumnType) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

var (
	ErrNoColumns       = errors.New("dataset has no columns")
	ErrDuplicateColumn = errors.New("duplicate column name")
	ErrRowWidth        = errors.New("row width does not match column count")
	ErrCellType        = errors.New("cell value does not match column type")
	ErrColumnType      = errors.New("unknown column type")
)

// Column describes one named, typed column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is an immutable in-memory table. Cells are nil, int64, float64,
// string or bool depending on the column type. Every accessor returns copies,
// so a Dataset handed to another component can never be changed under it.
type Dataset struct {
	columns []Column
	index   map[string]int
	rows    [][]any
}

// New validates and normalizes the given columns and rows into a Dataset.
// Integer cells in float columns are widened; integral floats in int columns
// are narrowed. The inputs are copied.
func New(columns []Column, rows [][]any) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	cols := make([]Column, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if !c.Type.Valid() {
			return nil, fmt.Errorf("column %q: %w: %q", c.Name, ErrColumnType, c.Type)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		index[c.Name] = i
		cols[i] = c
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("row %d: %w (got %d, want %d)", r, ErrRowWidth, len(row), len(cols))
		}
		cells := make([]any, len(row))
		for c, v := range row {
			cell, err := normalizeCell(cols[c].Type, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, cols[c].Name, err)
			}
			cells[c] = cell
		}
		out[r] = cells
	}

	return &Dataset{columns: cols, index: index, rows: out}, nil
}

// MustNew is New for fixtures and tests; it panics on invalid input.
func MustNew(columns []Column, rows [][]any) *Dataset {
	d, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Dataset) NumRows() int    { return len(d.rows) }
func (d *Dataset) NumColumns() int { return len(d.columns) }

func (d *Dataset) Columns() []Column {
	out := make([]Column, len(d.columns))
	copy(out, d.columns)
	return out
}

func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	return -1
}

func (d *Dataset) Row(i int) []any {
	out := make([]any, len(d.rows[i]))
	copy(out, d.rows[i])
	return out
}

func (d *Dataset) Value(row, col int) any {
	return d.rows[row][col]
}

// Column returns a copy of the cells of column i in row order.
func (d *Dataset) Column(i int) []any {
	out := make([]any, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out
}

// Head returns a new Dataset holding the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.rows) {
		n = len(d.rows)
	}
	// rows are never mutated, sharing the row slices is safe
	return &Dataset{columns: d.Columns(), index: d.index, rows: d.rows[:n:n]}
}

// Equal reports whether both datasets have the same columns, types and cells
// in the same order.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.columns) != len(o.columns) || len(d.rows) != len(o.rows) {
		return false
	}
	for i := range d.columns {
		if d.columns[i] != o.columns[i] {
			return false
		}
	}
	for r := range d.rows {
		for c := range d.rows[r] {
			if !cellEqual(d.rows[r][c], o.rows[r][c]) {
				return false
			}
		}
	}
	return true
}

func cellEqual(a, b any) bool {
	fa, okA := a.(float64)
	fb, okB := b.(float64)
	if okA && okB && math.IsNaN(fa) && math.IsNaN(fb) {
		return true
	}
	return a == b
}

// String renders the dataset as an aligned text table, like a dataframe print.
func (d *Dataset) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\t"+strings.Join(d.ColumnNames(), "\t"))
	for r, row := range d.rows {
		cells := make([]string, len(row))
		for c, v := range row {
			cells[c] = FormatCell(v)
		}
		fmt.Fprintf(w, "%d\t%s\n", r, strings.Join(cells, "\t"))
	}
	w.Flush()
	return sb.String()
}

// FormatCell renders a single cell the way CSV export writes it.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}

func normalizeCell(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case float64:
			if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
				return int64(x), nil
			}
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n, nil
			}
			if f, err := x.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				return int64(f), nil
			}
		}
	case TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, nil
			}
		}
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case TypeBool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s", ErrCellType, v, t)
}

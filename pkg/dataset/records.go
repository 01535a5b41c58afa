package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Records is the wire form of a Dataset: rows of named fields plus the column
// order and types needed to rebuild the exact same table.
type Records struct {
	Columns     []string         `json:"columns"`
	ColumnTypes []ColumnType     `json:"column_types,omitempty"`
	Rows        []map[string]any `json:"dataframe"`
}

// Records serializes the dataset into rows of named fields.
func (d *Dataset) Records() Records {
	rec := Records{
		Columns:     d.ColumnNames(),
		ColumnTypes: make([]ColumnType, len(d.columns)),
		Rows:        make([]map[string]any, len(d.rows)),
	}
	for i, c := range d.columns {
		rec.ColumnTypes[i] = c.Type
	}
	for r, row := range d.rows {
		m := make(map[string]any, len(row))
		for c, v := range row {
			m[d.columns[c].Name] = v
		}
		rec.Rows[r] = m
	}
	return rec
}

// FromRecords rebuilds a Dataset from its wire form. When column types are
// missing they are inferred from the values.
func FromRecords(rec Records) (*Dataset, error) {
	if len(rec.ColumnTypes) != 0 && len(rec.ColumnTypes) != len(rec.Columns) {
		return nil, fmt.Errorf("records: %d column types for %d columns", len(rec.ColumnTypes), len(rec.Columns))
	}

	rows := make([][]any, len(rec.Rows))
	for r, m := range rec.Rows {
		row := make([]any, len(rec.Columns))
		for c, name := range rec.Columns {
			row[c] = m[name]
		}
		rows[r] = row
	}

	cols := make([]Column, len(rec.Columns))
	for c, name := range rec.Columns {
		t := TypeString
		if len(rec.ColumnTypes) != 0 {
			t = rec.ColumnTypes[c]
		} else {
			values := make([]any, len(rows))
			for r := range rows {
				values[r] = rows[r][c]
			}
			t = InferType(values)
		}
		cols[c] = Column{Name: name, Type: t}
	}

	return New(cols, rows)
}

func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Records())
}

// UnmarshalJSON decodes numbers with full precision so int64 cells survive.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Records
	if err := dec.Decode(&rec); err != nil {
		return err
	}
	out, err := FromRecords(rec)
	if err != nil {
		return err
	}
	*d = *out
	return nil
}

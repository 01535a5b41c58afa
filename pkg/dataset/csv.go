package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrEmptyInput = errors.New("input has no header row")

// ReadCSV parses CSV text with a header row into a typed Dataset. Column types
// are inferred from the cells; empty cells become nulls.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		records = append(records, row)
	}

	return FromStrings(header, records)
}

// WriteCSV writes the dataset as CSV with a header row. Nulls are empty cells.
func WriteCSV(w io.Writer, d *Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(d.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, d.NumColumns())
	for _, row := range d.rows {
		for c, v := range row {
			record[c] = FormatCell(v)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// FromStrings builds a Dataset from a header and rows of raw text, the shared
// path for every text-based source. Short rows are padded with nulls.
func FromStrings(header []string, records [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, ErrEmptyInput
	}
	names := headerNames(header)

	for i, row := range records {
		if len(row) > len(names) {
			return nil, fmt.Errorf("row %d: %w (got %d, want %d)", i+1, ErrRowWidth, len(row), len(names))
		}
	}

	cols := make([]Column, len(names))
	cells := make([]string, len(records))
	for c, name := range names {
		for r, row := range records {
			if c < len(row) {
				cells[r] = row[c]
			} else {
				cells[r] = ""
			}
		}
		cols[c] = Column{Name: name, Type: inferStrings(cells)}
	}

	rows := make([][]any, len(records))
	for r, row := range records {
		out := make([]any, len(cols))
		for c := range cols {
			if c < len(row) {
				out[c] = parseCell(cols[c].Type, row[c])
			}
		}
		rows[r] = out
	}

	return New(cols, rows)
}

// headerNames cleans header cells: blanks become "Unnamed: i", repeats get a
// ".n" suffix.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	repeats := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for used[name] {
			repeats[h]++
			name = fmt.Sprintf("%s.%d", h, repeats[h])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

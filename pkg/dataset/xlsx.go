package dataset

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "data"

// ReadXLSX loads the first non-empty sheet of a workbook. The first row is the
// header; cell text goes through the same inference as CSV.
func ReadXLSX(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		return FromStrings(rows[0], rows[1:])
	}
	return nil, ErrEmptyInput
}

// WriteXLSX writes the dataset to a single-sheet workbook, keeping numeric and
// boolean cells typed.
func WriteXLSX(w io.Writer, d *Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	header := make([]any, d.NumColumns())
	for i, name := range d.ColumnNames() {
		header[i] = name
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return err
	}

	for r, row := range d.rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		copy(values, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}

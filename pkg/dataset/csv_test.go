package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV_InfersTypes(t *testing.T) {
	input := "region,revenue,cost,active,note\n" +
		"north,120.5,100,true,first\n" +
		"south,80,90,False,\n" +
		"east,,30,,3\n"

	d, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []Column{
		{Name: "region", Type: TypeString},
		{Name: "revenue", Type: TypeFloat},
		{Name: "cost", Type: TypeInt},
		{Name: "active", Type: TypeBool},
		{Name: "note", Type: TypeString},
	}, d.Columns())
	assert.Equal(t, 3, d.NumRows())
	assert.Equal(t, 80.0, d.Value(1, 1))
	assert.Equal(t, false, d.Value(1, 3))
	assert.Nil(t, d.Value(2, 1))
	assert.Nil(t, d.Value(2, 3))
	assert.Nil(t, d.Value(1, 4))
	assert.Equal(t, "3", d.Value(2, 4))
}

func TestReadCSV_HeaderCleanup(t *testing.T) {
	input := "\ufeffa,a,,a\n1,2,3,4\n"

	d, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2", "a.2"}, d.ColumnNames())
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "", wantErr: ErrEmptyInput},
		{name: "row wider than header", input: "a,b\n1,2,3\n", wantErr: ErrRowWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadCSV_ShortRowsArePadded(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("a,b\n1\n2,x\n"))
	require.NoError(t, err)

	assert.Nil(t, d.Value(0, 1))
	assert.Equal(t, "x", d.Value(1, 1))
}

func TestCSV_WriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, salesFixture()))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.True(t, salesFixture().Equal(back), "got:\n%s", back)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "ID")
	f.SetCellValue("Sheet1", "B1", "Name")
	f.SetCellValue("Sheet1", "C1", "Score")
	f.SetCellValue("Sheet1", "A2", 1)
	f.SetCellValue("Sheet1", "B2", "Alice")
	f.SetCellValue("Sheet1", "C2", 9.5)
	f.SetCellValue("Sheet1", "A3", 2)
	f.SetCellValue("Sheet1", "B3", "Bob")

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	d, err := ReadXLSX(&buf)
	require.NoError(t, err)

	assert.Equal(t, []Column{
		{Name: "ID", Type: TypeInt},
		{Name: "Name", Type: TypeString},
		{Name: "Score", Type: TypeFloat},
	}, d.Columns())
	assert.Equal(t, int64(2), d.Value(1, 0))
	assert.Nil(t, d.Value(1, 2))
}

func TestXLSX_WriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, salesFixture()))

	back, err := ReadXLSX(&buf)
	require.NoError(t, err)

	assert.Equal(t, salesFixture().ColumnNames(), back.ColumnNames())
	assert.Equal(t, 3, back.NumRows())
	assert.Equal(t, "south", back.Value(1, 0))
	assert.Equal(t, int64(30), back.Value(2, 2))
}

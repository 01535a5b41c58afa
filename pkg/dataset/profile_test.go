package dataset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProfile(t *testing.T) {
	d := MustNew(
		[]Column{
			{Name: "city", Type: TypeString},
			{Name: "temp", Type: TypeFloat},
			{Name: "visits", Type: TypeInt},
			{Name: "empty", Type: TypeInt},
		},
		[][]any{
			{"a", 1.0, 10, nil},
			{"b", 2.0, 20, nil},
			{"a", 1.0, 10, nil},
			{nil, 4.0, 40, nil},
		},
	)

	p := BuildProfile(d)

	assert.Equal(t, 4, p.Summary.Rows)
	assert.Equal(t, 4, p.Summary.Columns)
	assert.Equal(t, 1, p.Summary.DuplicateRows)
	assert.Contains(t, p.Summary.MemoryUsage, "MB")

	require.Len(t, p.Columns, 4)
	assert.Equal(t, ColumnDetail{Column: "city", NonNull: 3, Null: 1, Type: TypeString}, p.Columns[0])
	assert.Equal(t, ColumnDetail{Column: "empty", NonNull: 0, Null: 4, Type: TypeInt}, p.Columns[3])

	assert.NotContains(t, p.Numeric, "city")
	assert.NotContains(t, p.Numeric, "empty")

	temp := p.Numeric["temp"]
	assert.Equal(t, 4, temp.Count)
	assert.Equal(t, 2.0, temp.Mean)
	assert.Equal(t, 1.41, temp.Std)
	assert.Equal(t, 1.0, temp.Min)
	assert.Equal(t, 1.0, temp.P25)
	assert.Equal(t, 1.5, temp.P50)
	assert.Equal(t, 2.5, temp.P75)
	assert.Equal(t, 4.0, temp.Max)
}

func TestBuildProfile_SingleValueHasZeroStd(t *testing.T) {
	d := MustNew([]Column{{Name: "x", Type: TypeInt}}, [][]any{{5}})

	s := BuildProfile(d).Numeric["x"]
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 0.0, s.Std)
	assert.Equal(t, 5.0, s.P50)
}

func TestProfile_JSONKeys(t *testing.T) {
	raw, err := json.Marshal(BuildProfile(salesFixture()))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "dataset_summary")
	assert.Contains(t, m, "column_details")
	assert.Contains(t, m, "numeric_summary")

	numeric := m["numeric_summary"].(map[string]any)
	assert.Contains(t, numeric["revenue"], "25%")
}

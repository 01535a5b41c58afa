package dataset

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type genRow struct {
	ID     int64
	Score  float64
	Label  string
	Flag   bool
	NullAt int
}

func genRows() gopter.Gen {
	row := gopter.CombineGens(
		gen.Int64(),
		gen.Float64Range(-1e9, 1e9),
		gen.AlphaString(),
		gen.Bool(),
		gen.IntRange(0, 4),
	).Map(func(vals []interface{}) genRow {
		return genRow{
			ID:     vals[0].(int64),
			Score:  vals[1].(float64),
			Label:  vals[2].(string),
			Flag:   vals[3].(bool),
			NullAt: vals[4].(int),
		}
	})
	return gen.SliceOf(row, reflect.TypeOf(genRow{}))
}

func buildFromGenerated(rows []genRow) *Dataset {
	cells := make([][]any, len(rows))
	for i, r := range rows {
		cells[i] = []any{r.ID, r.Score, r.Label, r.Flag}
		if r.NullAt < 4 {
			cells[i][r.NullAt] = nil
		}
	}
	return MustNew([]Column{
		{Name: "id", Type: TypeInt},
		{Name: "score", Type: TypeFloat},
		{Name: "label", Type: TypeString},
		{Name: "flag", Type: TypeBool},
	}, cells)
}

func TestProperty_RecordsRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("records then rebuild yields the same dataset", prop.ForAll(
		func(rows []genRow) bool {
			d := buildFromGenerated(rows)
			back, err := FromRecords(d.Records())
			return err == nil && d.Equal(back)
		},
		genRows(),
	))

	properties.Property("json encode then decode yields the same dataset", prop.ForAll(
		func(rows []genRow) bool {
			d := buildFromGenerated(rows)
			raw, err := json.Marshal(d)
			if err != nil {
				return false
			}
			var back Dataset
			if err := json.Unmarshal(raw, &back); err != nil {
				return false
			}
			return d.Equal(&back)
		},
		genRows(),
	))

	properties.TestingRun(t)
}

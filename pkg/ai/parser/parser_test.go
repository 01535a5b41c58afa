package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "json fence",
			input: "Here you go:\n```json\n{\"a\": 1}\n```\nthanks",
			want:  `{"a": 1}`,
		},
		{
			name:  "json fence preferred over generic",
			input: "```sql\nSELECT 1\n```\n```json\n{\"a\": 2}\n```",
			want:  `{"a": 2}`,
		},
		{
			name:  "generic fence",
			input: "```\n{\"a\": 3}\n```",
			want:  `{"a": 3}`,
		},
		{
			name:  "object inside prose",
			input: `Sure! {"a": "x}y", "b": {"c": 1}} hope it helps`,
			want:  `{"a": "x}y", "b": {"c": 1}}`,
		},
		{
			name:  "bare text",
			input: "  greeting \n",
			want:  "greeting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.input))
		})
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare label", input: "code_generation", want: LabelCodeGeneration},
		{name: "upper case with newline", input: "GREETING\n", want: LabelGreeting},
		{name: "quoted with period", input: `"suggestion".`, want: LabelSuggestion},
		{name: "spaced words", input: "Code Generation", want: LabelCodeGeneration},
		{name: "json object", input: "```json\n{\"classification\": \"suggestion\"}\n```", want: LabelSuggestion},
		{name: "label in sentence", input: "The category is: greeting.", want: LabelGreeting},
		{name: "two labels", input: "either greeting or suggestion", wantErr: true},
		{name: "unknown", input: "analysis", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrParse)
				var pe *ParseError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, ContextClassification, pe.Context)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGeneration(t *testing.T) {
	input := "```json\n" + `{
		"type": "code",
		"code": "CREATE TABLE result_df AS SELECT region, SUM(net_revenue) AS net_revenue FROM df GROUP BY region;",
		"explanation": "Total net revenue per region.",
		"charts": [
			{"type": "bar", "x_column": "region", "y_column": "net_revenue"},
			{"type": "PIE", "names_column": "region", "values_column": "net_revenue"},
			{"type": "bar", "x_column": "region"},
			{"type": "heatmap", "x_column": "a", "y_column": "b"},
			"not a chart"
		]
	}` + "\n```"

	gen, err := ParseGeneration(input)
	require.NoError(t, err)

	assert.Contains(t, gen.Code, "GROUP BY region")
	assert.Equal(t, "Total net revenue per region.", gen.Explanation)
	assert.Equal(t, []ChartSpec{
		{Type: "bar", XColumn: "region", YColumn: "net_revenue"},
		{Type: "pie", NamesColumn: "region", ValuesColumn: "net_revenue"},
	}, gen.Charts)
}

func TestParseGeneration_SingleChartField(t *testing.T) {
	gen, err := ParseGeneration(`{"code": "CREATE VIEW result_df AS SELECT * FROM df;", "chart": {"type": "line", "x_column": "d", "y_column": "v"}}`)
	require.NoError(t, err)
	assert.Equal(t, []ChartSpec{{Type: "line", XColumn: "d", YColumn: "v"}}, gen.Charts)
}

func TestParseGeneration_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "I cannot help with that."},
		{name: "truncated json", input: "```json\n{\"code\": \"SELECT\n```"},
		{name: "missing code", input: `{"explanation": "nothing"}`},
		{name: "empty code", input: `{"code": "   "}`},
		{name: "code wrong type", input: `{"code": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGeneration(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, ContextGeneration, pe.Context)
			assert.NotEmpty(t, pe.Reason)
		})
	}
}

func TestParseSuggestions(t *testing.T) {
	input := "```json\n" + `{
		"type": "suggestions",
		"suggestions": [
			{"query": "Show top 5 products by units_sold", "explanation": "Most units sold."},
			{"query": "Show top 5 products by net_revenue", "explanation": "Most revenue."}
		]
	}` + "\n```"

	got, err := ParseSuggestions(input)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Show top 5 products by units_sold", got[0].Query)
	assert.Equal(t, "Most revenue.", got[1].Explanation)
}

func TestParseSuggestions_Errors(t *testing.T) {
	for _, input := range []string{
		`{"suggestions": []}`,
		`{"suggestions": [{"query": "only one"}]}`,
		`{"other": 1}`,
		`{"suggestions": [{"explanation": "no query"}]}`,
		`not json at all`,
	} {
		_, err := ParseSuggestions(input)
		assert.ErrorIs(t, err, ErrParse, input)
	}
}

func TestParseInsight(t *testing.T) {
	got, err := ParseInsight(`Result: {"insight": "North leads by 50%.", "follow_up_query": "Break down North by category"}`)
	require.NoError(t, err)
	assert.Equal(t, Insight{Insight: "North leads by 50%.", FollowUpQuery: "Break down North by category"}, got)

	_, err = ParseInsight(`{"follow_up_query": "x"}`)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseError_SnippetIsBounded(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}

	_, err := ParseGeneration(string(long))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.LessOrEqual(t, len(pe.Snippet), snippetLen+3)
}

func TestParsers_AreDeterministic(t *testing.T) {
	input := `{"code": "CREATE TABLE result_df AS SELECT 1 AS a;", "charts": [{"type": "bar", "x_column": "a", "y_column": "a"}]}`

	first, err1 := ParseGeneration(input)
	second, err2 := ParseGeneration(input)

	assert.Equal(t, err1, err2)
	assert.Equal(t, first, second)
}

package parser

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Classification labels a model may answer with.
const (
	LabelCodeGeneration = "code_generation"
	LabelSuggestion     = "suggestion"
	LabelGreeting       = "greeting"
)

var labels = []string{LabelCodeGeneration, LabelSuggestion, LabelGreeting}

// ChartSpec describes one visualization over the result dataset.
type ChartSpec struct {
	Type         string `json:"type"`
	XColumn      string `json:"x_column,omitempty"`
	YColumn      string `json:"y_column,omitempty"`
	NamesColumn  string `json:"names_column,omitempty"`
	ValuesColumn string `json:"values_column,omitempty"`
	ColorColumn  string `json:"color_column,omitempty"`
}

// Valid reports whether the chart has a known type and the columns that type needs.
func (c ChartSpec) Valid() bool {
	switch c.Type {
	case "bar", "line", "scatter":
		return c.XColumn != "" && c.YColumn != ""
	case "pie":
		return c.NamesColumn != "" && c.ValuesColumn != ""
	}
	return false
}

// Columns lists every column the chart references.
func (c ChartSpec) Columns() []string {
	var out []string
	for _, col := range []string{c.XColumn, c.YColumn, c.NamesColumn, c.ValuesColumn, c.ColorColumn} {
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

type Generation struct {
	Code        string      `json:"code"`
	Explanation string      `json:"explanation"`
	Charts      []ChartSpec `json:"charts"`
}

type Suggestion struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

type Insight struct {
	Insight       string `json:"insight"`
	FollowUpQuery string `json:"follow_up_query"`
}

// ParseClassification accepts a bare label, in any case and wrapped in quotes
// or punctuation, or an object with a "classification" field.
func ParseClassification(text string) (string, error) {
	payload := ExtractJSON(text)
	if strings.HasPrefix(payload, "{") {
		var obj struct {
			Classification string `json:"classification"`
		}
		if err := json.Unmarshal([]byte(payload), &obj); err == nil && obj.Classification != "" {
			payload = obj.Classification
		}
	}

	candidate := normalizeLabel(payload)
	for _, l := range labels {
		if candidate == l {
			return l, nil
		}
	}

	// a single known label somewhere in a short answer, e.g. "Category: greeting."
	var found []string
	words := strings.FieldsFunc(strings.ToLower(payload), func(r rune) bool {
		return !(unicode.IsLetter(r) || r == '_')
	})
	for _, w := range words {
		for _, l := range labels {
			if w == l && !contains(found, l) {
				found = append(found, l)
			}
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}

	return "", newParseError(ContextClassification, "no single known label", text)
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || r == '_')
	})
	return strings.ReplaceAll(s, " ", "_")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ParseGeneration requires a non-empty "code" field. Charts that are not
// well formed are dropped.
func ParseGeneration(text string) (Generation, error) {
	var raw struct {
		Code        *string         `json:"code"`
		Explanation string          `json:"explanation"`
		Charts      json.RawMessage `json:"charts"`
		Chart       json.RawMessage `json:"chart"`
	}
	if err := decodeObject(ContextGeneration, text, &raw); err != nil {
		return Generation{}, err
	}
	if raw.Code == nil {
		return Generation{}, newParseError(ContextGeneration, "missing \"code\" field", text)
	}
	if strings.TrimSpace(*raw.Code) == "" {
		return Generation{}, newParseError(ContextGeneration, "empty \"code\" field", text)
	}

	gen := Generation{
		Code:        *raw.Code,
		Explanation: raw.Explanation,
		Charts:      decodeCharts(raw.Charts),
	}
	// older prompt shape with a single chart object
	if len(gen.Charts) == 0 && len(raw.Chart) > 0 {
		var one ChartSpec
		if json.Unmarshal(raw.Chart, &one) == nil && one.Valid() {
			gen.Charts = []ChartSpec{one}
		}
	}
	return gen, nil
}

func decodeCharts(raw json.RawMessage) []ChartSpec {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var charts []ChartSpec
	for _, item := range items {
		var c ChartSpec
		if json.Unmarshal(item, &c) != nil {
			continue
		}
		c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		if c.Valid() {
			charts = append(charts, c)
		}
	}
	return charts
}

// MinSuggestions is the fewest alternatives an ambiguous turn may offer.
const MinSuggestions = 2

// ParseSuggestions requires a "suggestions" list of at least MinSuggestions
// entries, each carrying a query. Extra entries are returned as-is; callers
// cap the count.
func ParseSuggestions(text string) ([]Suggestion, error) {
	var raw struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	if err := decodeObject(ContextSuggestion, text, &raw); err != nil {
		return nil, err
	}
	if len(raw.Suggestions) == 0 {
		return nil, newParseError(ContextSuggestion, "missing or empty \"suggestions\" list", text)
	}
	if len(raw.Suggestions) < MinSuggestions {
		return nil, newParseError(ContextSuggestion, "need at least "+strconv.Itoa(MinSuggestions)+" suggestions, got "+strconv.Itoa(len(raw.Suggestions)), text)
	}
	for i, s := range raw.Suggestions {
		if strings.TrimSpace(s.Query) == "" {
			return nil, newParseError(ContextSuggestion, "suggestion without a query at index "+strconv.Itoa(i), text)
		}
	}
	return raw.Suggestions, nil
}

// ParseInsight requires an "insight" field; the follow-up query is optional.
func ParseInsight(text string) (Insight, error) {
	var in Insight
	if err := decodeObject(ContextInsight, text, &in); err != nil {
		return Insight{}, err
	}
	if strings.TrimSpace(in.Insight) == "" {
		return Insight{}, newParseError(ContextInsight, "missing \"insight\" field", text)
	}
	return in, nil
}

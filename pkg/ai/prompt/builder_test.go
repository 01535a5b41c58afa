package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"data-explorer-be/pkg/ai/parser"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

func sample() *dataset.Dataset {
	return dataset.MustNew(
		[]dataset.Column{{Name: "region", Type: dataset.TypeString}, {Name: "net_revenue", Type: dataset.TypeFloat}},
		[][]any{{"north", 1.5}, {"south", 2.0}},
	)
}

func TestTranscript(t *testing.T) {
	history := []store.Interaction{
		{Query: "hi", Classification: parser.LabelGreeting},
		{Query: "top products", Classification: parser.LabelSuggestion, Suggestions: []parser.Suggestion{{Query: "by units"}, {Query: "by revenue"}}},
		{Query: "sum revenue", Classification: parser.LabelCodeGeneration, Explanation: "Summed.", Insight: &parser.Insight{Insight: "North leads."}},
	}

	assert.Equal(t,
		"User: hi\nAssistant: (greeting)\n"+
			"User: top products\nAssistant: Suggested: by units; by revenue\n"+
			"User: sum revenue\nAssistant: Summed. Insight: North leads.\n",
		Transcript(history))
}

func TestBuilder_Generate(t *testing.T) {
	ds := sample()
	b := NewBuilder("total revenue by region", []store.Interaction{{Query: "hello", Explanation: "Hi!"}})

	first := b.Generate(dataset.BuildProfile(ds), ds.Columns(), nil)
	assert.Contains(t, first, "result_df")
	assert.Contains(t, first, "total revenue by region")
	assert.Contains(t, first, `"net_revenue" float`)
	assert.Contains(t, first, "dataset_summary")
	assert.Contains(t, first, "User: hello")
	assert.NotContains(t, first, "<previous_attempt>")

	retry := b.Generate(dataset.BuildProfile(ds), ds.Columns(), &Retry{Attempt: 1, Code: "SELECT nope;", Reason: "no such column: nope"})
	assert.Contains(t, retry, "<previous_attempt>")
	assert.Contains(t, retry, "no such column: nope")
	assert.Contains(t, retry, "SELECT nope;")
}

func TestBuilder_InsightIncludesHead(t *testing.T) {
	out := NewBuilder("q", nil).Insight(sample().Head(5))

	assert.Contains(t, out, `rows="2"`)
	assert.Contains(t, out, "north")
	assert.Contains(t, out, "follow_up_query")
	assert.NotContains(t, out, "<chat_history>")
}

func TestBuilder_ClassifyAndSuggest(t *testing.T) {
	b := NewBuilder("top products", nil)

	assert.Contains(t, b.Classify(), "code_generation, suggestion or greeting")
	assert.Contains(t, b.Suggest(dataset.BuildProfile(sample()), sample().Columns()), "suggestions")
}

func TestChatSummary(t *testing.T) {
	out := ChatSummary([]store.Interaction{{Query: "count rows", Explanation: "There are 2 rows."}})
	assert.Contains(t, out, "User: count rows")
	assert.Contains(t, out, "Assistant: There are 2 rows.")
}

// Package prompt renders the instructions sent to the model at each step of a
// turn. Wording is free to change; the JSON shapes requested here are what
// pkg/ai/parser expects back.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/store"
)

// Builder carries what every prompt of one turn shares.
type Builder struct {
	query   string
	history []store.Interaction
}

func NewBuilder(query string, history []store.Interaction) *Builder {
	return &Builder{query: query, history: history}
}

// Classify asks for one of the three routing labels.
func (b *Builder) Classify() string {
	var p strings.Builder

	p.WriteString("<task>\n")
	p.WriteString("You route questions about a tabular dataset. Classify the user's query into exactly one category:\n")
	p.WriteString("- code_generation: a clear, actionable request to transform, filter, aggregate or sort the data, with every metric it needs\n")
	p.WriteString("- suggestion: a vague or ambiguous request, e.g. \"top products\" without saying by which metric\n")
	p.WriteString("- greeting: small talk or a greeting with no data request\n")
	p.WriteString("</task>\n\n")

	b.writeHistory(&p)
	b.writeQuery(&p)

	p.WriteString("Respond with only the category name: code_generation, suggestion or greeting.\n")
	return p.String()
}

// Retry describes the previous failed attempt of this turn.
type Retry struct {
	Attempt int
	Code    string
	Reason  string
}

// Generate asks for a SQLite program that leaves its answer in result_df.
func (b *Builder) Generate(profile dataset.Profile, columns []dataset.Column, retry *Retry) string {
	var p strings.Builder

	p.WriteString("<task>\n")
	p.WriteString("You are a SQLite expert and a helpful data analyst. The user's data is loaded into a table named df.\n")
	p.WriteString("Write a SQLite script that answers the query. The script MUST create a table or view named result_df holding the final answer,\n")
	p.WriteString("for example: CREATE TABLE result_df AS SELECT ... FROM df ...;\n")
	p.WriteString("Only df exists. Do not use ATTACH, DETACH, PRAGMA, VACUUM or load_extension.\n")
	p.WriteString("</task>\n\n")

	writeSchema(&p, columns)
	writeProfile(&p, profile)
	b.writeHistory(&p)
	b.writeQuery(&p)

	if retry != nil {
		p.WriteString("<previous_attempt>\n")
		fmt.Fprintf(&p, "Attempt %d failed.\n", retry.Attempt)
		if retry.Code != "" {
			p.WriteString("Script:\n")
			p.WriteString(retry.Code)
			p.WriteString("\n")
		}
		p.WriteString("Error:\n")
		p.WriteString(retry.Reason)
		p.WriteString("\nFix the problem and return a corrected script.\n")
		p.WriteString("</previous_attempt>\n\n")
	}

	p.WriteString("<output_format>\n")
	p.WriteString("Return a single JSON object inside a ```json fenced block with these fields:\n")
	p.WriteString("- \"type\": \"code\"\n")
	p.WriteString("- \"code\": the SQLite script\n")
	p.WriteString("- \"explanation\": a short explanation for a non-technical user\n")
	p.WriteString("- \"charts\": every suitable chart for result_df. Each chart is one of:\n")
	p.WriteString("  {\"type\": \"bar\", \"x_column\": ..., \"y_column\": ...} for categorical comparisons\n")
	p.WriteString("  {\"type\": \"pie\", \"names_column\": ..., \"values_column\": ...} for parts of a whole with fewer than 6 categories\n")
	p.WriteString("  {\"type\": \"line\", \"x_column\": ..., \"y_column\": ...} for time series\n")
	p.WriteString("  {\"type\": \"scatter\", \"x_column\": ..., \"y_column\": ...} for two numeric variables\n")
	p.WriteString("  Any chart may add an optional \"color_column\".\n")
	p.WriteString("Example:\n")
	p.WriteString("```json\n")
	p.WriteString(`{"type": "code", "code": "CREATE TABLE result_df AS SELECT region, SUM(net_revenue) AS net_revenue FROM df GROUP BY region;", "explanation": "Total net revenue for each region.", "charts": [{"type": "bar", "x_column": "region", "y_column": "net_revenue"}]}`)
	p.WriteString("\n```\n")
	p.WriteString("</output_format>\n")
	return p.String()
}

// Suggest asks for refined natural-language alternatives to an ambiguous query.
func (b *Builder) Suggest(profile dataset.Profile, columns []dataset.Column) string {
	var p strings.Builder

	p.WriteString("<task>\n")
	p.WriteString("You are a helpful data analyst. The user's query is ambiguous.\n")
	p.WriteString("Propose 2 or 3 specific alternative questions, in plain English, that fit the user's intent and the available columns.\n")
	p.WriteString("Each suggestion must be a question the user could ask next. Never return SQL or code.\n")
	p.WriteString("</task>\n\n")

	writeSchema(&p, columns)
	writeProfile(&p, profile)
	b.writeHistory(&p)
	b.writeQuery(&p)

	p.WriteString("<output_format>\n")
	p.WriteString("Return a single JSON object inside a ```json fenced block:\n")
	p.WriteString("```json\n")
	p.WriteString(`{"type": "suggestions", "suggestions": [{"query": "Show top 5 products by units_sold", "explanation": "The 5 products with the most units sold."}, {"query": "Show top 5 products by net_revenue", "explanation": "The 5 products that earned the most."}]}`)
	p.WriteString("\n```\n")
	p.WriteString("</output_format>\n")
	return p.String()
}

// Insight asks for one observation about the head of a fresh result.
func (b *Builder) Insight(head *dataset.Dataset) string {
	var p strings.Builder

	p.WriteString("<task>\n")
	p.WriteString("You are a proactive data analyst. The user just ran a query and got a result.\n")
	p.WriteString("Point out one short, interesting observation about the result and propose a logical next question.\n")
	p.WriteString("</task>\n\n")

	b.writeQuery(&p)

	fmt.Fprintf(&p, "<result_head rows=\"%d\">\n", head.NumRows())
	p.WriteString(head.String())
	p.WriteString("</result_head>\n\n")

	p.WriteString("<output_format>\n")
	p.WriteString("Return a single JSON object inside a ```json fenced block with the keys \"insight\" and \"follow_up_query\".\n")
	p.WriteString("```json\n")
	p.WriteString(`{"insight": "Sales in the North region are 50% above average.", "follow_up_query": "Show a breakdown of product categories for the North region"}`)
	p.WriteString("\n```\n")
	p.WriteString("</output_format>\n")
	return p.String()
}

// ChatSummary asks for a prose summary of a whole conversation.
func ChatSummary(history []store.Interaction) string {
	var p strings.Builder

	p.WriteString("<task>\n")
	p.WriteString("Summarize the following conversation between a user and a data analysis assistant.\n")
	p.WriteString("Describe what the user explored, the main findings and any open questions. Use a few short paragraphs of plain prose.\n")
	p.WriteString("</task>\n\n")

	p.WriteString("<conversation>\n")
	p.WriteString(Transcript(history))
	p.WriteString("</conversation>\n")
	return p.String()
}

// Transcript renders history as alternating User/Assistant lines.
func Transcript(history []store.Interaction) string {
	var sb strings.Builder
	for _, it := range history {
		fmt.Fprintf(&sb, "User: %s\n", it.Query)
		fmt.Fprintf(&sb, "Assistant: %s\n", assistantLine(it))
	}
	return sb.String()
}

func assistantLine(it store.Interaction) string {
	var parts []string
	if it.Explanation != "" {
		parts = append(parts, it.Explanation)
	}
	if len(it.Suggestions) > 0 {
		qs := make([]string, len(it.Suggestions))
		for i, s := range it.Suggestions {
			qs[i] = s.Query
		}
		parts = append(parts, "Suggested: "+strings.Join(qs, "; "))
	}
	if it.Insight != nil {
		parts = append(parts, "Insight: "+it.Insight.Insight)
	}
	if it.Error != "" {
		parts = append(parts, "Error: "+it.Error)
	}
	if len(parts) == 0 {
		return "(" + it.Classification + ")"
	}
	return strings.Join(parts, " ")
}

func (b *Builder) writeHistory(p *strings.Builder) {
	if len(b.history) == 0 {
		return
	}
	p.WriteString("<chat_history>\n")
	p.WriteString(Transcript(b.history))
	p.WriteString("</chat_history>\n\n")
}

func (b *Builder) writeQuery(p *strings.Builder) {
	p.WriteString("<user_query>\n")
	p.WriteString(b.query)
	p.WriteString("\n</user_query>\n\n")
}

func writeSchema(p *strings.Builder, columns []dataset.Column) {
	p.WriteString("<table name=\"df\">\n")
	for _, c := range columns {
		fmt.Fprintf(p, "- %q %s\n", c.Name, c.Type)
	}
	p.WriteString("</table>\n\n")
}

func writeProfile(p *strings.Builder, profile dataset.Profile) {
	raw, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return
	}
	p.WriteString("<data_profile>\n")
	p.Write(raw)
	p.WriteString("\n</data_profile>\n\n")
}

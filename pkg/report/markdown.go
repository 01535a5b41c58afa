// Package report renders a session as a markdown document: the dataset
// profile, a model-written summary of the conversation and the full chat
// history.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"data-explorer-be/pkg/ai/prompt"
	"data-explorer-be/pkg/dataset"
	"data-explorer-be/pkg/llm"
	"data-explorer-be/pkg/store"
)

const previewRows = 5

type Generator struct {
	llm     llm.LLMProvider
	timeout time.Duration
	now     func() time.Time
}

func NewGenerator(provider llm.LLMProvider, timeout time.Duration) *Generator {
	return &Generator{llm: provider, timeout: timeout, now: time.Now}
}

// Summary asks the model for a prose summary of the conversation.
func (g *Generator) Summary(ctx context.Context, history []store.Interaction) (string, error) {
	if len(history) == 0 {
		return "No questions have been asked yet.", nil
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.llm.Generate(ctx, prompt.ChatSummary(history), llm.WithTemperature(0.3))
	if err != nil {
		return "", fmt.Errorf("chat summary: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Markdown renders the whole report. A failed summary is noted in the
// document rather than failing the export.
func (g *Generator) Markdown(ctx context.Context, s *store.Session) []byte {
	var b strings.Builder

	b.WriteString("# Data Analysis Report\n\n")
	fmt.Fprintf(&b, "Session `%s`, generated %s.\n\n", s.ID, g.now().UTC().Format(time.RFC1123))

	writeProfile(&b, dataset.BuildProfile(s.Dataset))

	b.WriteString("## Conversation Summary\n\n")
	summary, err := g.Summary(ctx, s.History)
	if err != nil {
		fmt.Fprintf(&b, "_Summary unavailable: %s_\n\n", err)
	} else {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	writeHistory(&b, s.History)
	return []byte(b.String())
}

func writeProfile(b *strings.Builder, p dataset.Profile) {
	b.WriteString("## Dataset Profile\n\n")
	b.WriteString("| Rows | Columns | Duplicate rows | Memory usage |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(b, "| %d | %d | %d | %s |\n\n", p.Summary.Rows, p.Summary.Columns, p.Summary.DuplicateRows, p.Summary.MemoryUsage)

	b.WriteString("### Columns\n\n")
	b.WriteString("| Column | Type | Non-null | Null |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, c := range p.Columns {
		fmt.Fprintf(b, "| %s | %s | %d | %d |\n", escape(c.Column), c.Type, c.NonNull, c.Null)
	}
	b.WriteString("\n")

	if len(p.Numeric) == 0 {
		return
	}
	names := make([]string, 0, len(p.Numeric))
	for name := range p.Numeric {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("### Numeric Summary\n\n")
	b.WriteString("| Column | Count | Mean | Std | Min | 25% | 50% | 75% | Max |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, name := range names {
		n := p.Numeric[name]
		fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s | %s | %s |\n",
			escape(name), n.Count, num(n.Mean), num(n.Std), num(n.Min), num(n.P25), num(n.P50), num(n.P75), num(n.Max))
	}
	b.WriteString("\n")
}

func writeHistory(b *strings.Builder, history []store.Interaction) {
	b.WriteString("## Chat History\n\n")
	if len(history) == 0 {
		b.WriteString("_No interactions._\n")
		return
	}
	for i, it := range history {
		fmt.Fprintf(b, "### %d. %s\n\n", i+1, it.Query)
		fmt.Fprintf(b, "- **Classification:** %s\n", it.Classification)
		if !it.CreatedAt.IsZero() {
			fmt.Fprintf(b, "- **Asked at:** %s\n", it.CreatedAt.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n")

		if it.Explanation != "" {
			b.WriteString(it.Explanation)
			b.WriteString("\n\n")
		}
		if len(it.Charts) > 0 {
			b.WriteString("**Charts:**\n\n")
			for _, c := range it.Charts {
				fmt.Fprintf(b, "- %s chart of %s\n", c.Type, strings.Join(c.Columns(), ", "))
			}
			b.WriteString("\n")
		}
		if len(it.Suggestions) > 0 {
			b.WriteString("**Suggestions:**\n\n")
			for _, s := range it.Suggestions {
				if s.Explanation != "" {
					fmt.Fprintf(b, "- %s: %s\n", s.Query, s.Explanation)
				} else {
					fmt.Fprintf(b, "- %s\n", s.Query)
				}
			}
			b.WriteString("\n")
		}
		if it.Insight != nil {
			fmt.Fprintf(b, "> **Insight:** %s\n", it.Insight.Insight)
			if it.Insight.FollowUpQuery != "" {
				fmt.Fprintf(b, ">\n> **Next:** %s\n", it.Insight.FollowUpQuery)
			}
			b.WriteString("\n")
		}
		if it.Error != "" {
			fmt.Fprintf(b, "**Error:** `%s`\n\n", strings.ReplaceAll(it.Error, "`", "'"))
		}
		if it.Dataset != nil {
			writeTable(b, it.Dataset.Head(previewRows))
			if it.Dataset.NumRows() > previewRows {
				fmt.Fprintf(b, "_%d of %d rows shown._\n\n", previewRows, it.Dataset.NumRows())
			}
		}
	}
}

func writeTable(b *strings.Builder, ds *dataset.Dataset) {
	names := ds.ColumnNames()
	for i := range names {
		names[i] = escape(names[i])
	}
	b.WriteString("| " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(names)) + "\n")
	for r := 0; r < ds.NumRows(); r++ {
		cells := make([]string, ds.NumColumns())
		for c := range cells {
			cells[c] = escape(dataset.FormatCell(ds.Value(r, c)))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	b.WriteString("\n")
}

func num(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

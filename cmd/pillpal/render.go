package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/vbonduro/pillpal/internal/domain"
)

const wordWrap = 80

// renderer turns Markdown into terminal output. It falls back to the raw
// text if glamour cannot render it.
type renderer struct {
	term *glamour.TermRenderer
}

func newRenderer(style string) (*renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wordWrap)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	term, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	return &renderer{term: term}, nil
}

func (r *renderer) Render(markdown string) string {
	out, err := r.term.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

func medicationMarkdown(m *domain.Medication) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Name)
	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Description)
	}
	if m.Dosage != "" {
		fmt.Fprintf(&b, "## Dosage\n\n%s\n\n", m.Dosage)
	}
	writeList(&b, "Side effects", m.SideEffects)
	writeList(&b, "Warnings", m.Warnings)
	b.WriteString("---\n\n*Informational only. Always consult a doctor or pharmacist.*\n")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

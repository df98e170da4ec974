package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ent0n29/roundtable/internal/persona"
	"github.com/ent0n29/roundtable/internal/transcript"
)

const (
	formatTable    = "table"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func validFormat(f string) error {
	switch f {
	case formatTable, formatMarkdown, formatJSON:
		return nil
	default:
		return fmt.Errorf("invalid --format %q (expected table|markdown|json)", f)
	}
}

func newWriter() table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	return w
}

func render(out io.Writer, w table.Writer, format string) error {
	var s string
	if format == formatMarkdown {
		s = w.RenderMarkdown()
	} else {
		s = w.Render()
	}
	_, err := fmt.Fprintln(out, s)
	return err
}

func renderTranscript(out io.Writer, records []transcript.TurnRecord, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := newWriter()
	w.AppendHeader(table.Row{"Round", "Character", "Message", "Sentiment"})
	for _, r := range records {
		w.AppendRow(table.Row{
			r.Round,
			r.Persona,
			strings.TrimSpace(r.Message),
			fmt.Sprintf("%s (%.2f)", r.SentimentLabel, r.SentimentScore),
		})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: 72},
	})
	return render(out, w, format)
}

func renderPersonas(out io.Writer, all []persona.Persona, format string) error {
	defaults := map[string]bool{}
	for _, n := range persona.DefaultSelection() {
		defaults[n] = true
	}

	if format == formatJSON {
		type row struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Default     bool   `json:"default"`
		}
		rows := make([]row, 0, len(all))
		for _, p := range all {
			rows = append(rows, row{Name: p.Name, Description: p.Description, Default: defaults[p.Name]})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := newWriter()
	w.AppendHeader(table.Row{"Character", "Description", "Default"})
	for _, p := range all {
		mark := ""
		if defaults[p.Name] {
			mark = "yes"
		}
		w.AppendRow(table.Row{p.Name, p.Description, mark})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 60},
		{Number: 3, Align: text.AlignCenter},
	})
	return render(out, w, format)
}

package agent

import (
	"maps"
	"slices"
	"strings"
)

// renderInstructions merges the persona's standing instructions with the task's.
func renderInstructions(task Task) string {
	var b strings.Builder
	if p := task.Persona; p != nil {
		b.WriteString(strings.TrimSpace(p.Instructions))
		if len(p.Tools) > 0 {
			b.WriteString("\n\nAvailable tools: ")
			b.WriteString(strings.Join(p.Tools, ", "))
		}
	}
	if s := strings.TrimSpace(task.Instructions); s != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}
	switch resultType(task) {
	case ResultFloat:
		b.WriteString("\n\nAnswer with a JSON object whose \"value\" field is a number.")
	case ResultBool:
		b.WriteString("\n\nAnswer with a JSON object whose \"value\" field is true or false.")
	}
	return strings.TrimSpace(b.String())
}

// renderInput lays out the objective followed by each context entry in key order.
func renderInput(task Task) string {
	var b strings.Builder
	b.WriteString("Objective: ")
	b.WriteString(strings.TrimSpace(task.Objective))
	for _, k := range slices.Sorted(maps.Keys(task.Context)) {
		v := strings.TrimSpace(task.Context[k])
		if v == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(k)
		b.WriteString(":\n")
		b.WriteString(v)
	}
	return b.String()
}

package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/riaworks/aios-core-sub000/internal/formatter"
)

// WriteMarkdown renders the report as markdown.
func WriteMarkdown(w io.Writer, r *Report) error {
	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, r)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"inc":              func(i int) int { return i + 1 },
		"upper":            strings.ToUpper,
		"pct":              func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" },
		"signed":           func(f float64) string { return fmt.Sprintf("%+.1f", f) },
		"age":              age,
		"qualityTable":     qualityTable,
		"consistencyTable": consistencyTable,
		"timingTable":      timingTable,
		"relevanceTable":   relevanceTable,
		"passed":           passedCount,
	}
}

func renderTable(headers []string, rows [][]string) string {
	var buf bytes.Buffer
	tbl := formatter.NewMarkdownTable(&buf, headers...)
	for _, r := range rows {
		tbl.AddRow(r...)
	}
	if err := tbl.Render(); err != nil {
		return ""
	}
	return buf.String()
}

func qualityTable(q Quality) string {
	rows := make([][]string, 0, len(q.Checks))
	for _, c := range q.Checks {
		rows = append(rows, []string{
			c.Name,
			c.Status,
			strconv.FormatFloat(c.Earned, 'f', 1, 64),
			strconv.FormatFloat(c.Weight, 'f', 0, 64),
		})
	}
	return renderTable([]string{"Check", "Status", "Earned", "Weight"}, rows)
}

func consistencyTable(checks []ConsistencyCheck) string {
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		rows = append(rows, []string{c.Name, status, c.Detail})
	}
	return renderTable([]string{"Check", "Result", "Detail"}, rows)
}

func timingTable(t Timing) string {
	rows := make([][]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		rows = append(rows, []string{
			fmt.Sprintf("L%d %s", e.Layer, e.Name),
			fmt.Sprintf("%.2fms", e.Duration),
			fmt.Sprintf("%.0fms", e.Budget),
			e.Verdict,
		})
	}
	return renderTable([]string{"Layer", "Duration", "Budget", "Verdict"}, rows)
}

func relevanceTable(entries []RelevanceEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		served := "yes"
		if !e.Served {
			served = "no"
		}
		rows = append(rows, []string{e.Signal, e.Value, e.Layer, e.Status, strconv.Itoa(e.Rules), served})
	}
	return renderTable([]string{"Signal", "Value", "Layer", "Status", "Rules", "Served"}, rows)
}

func passedCount(checks []ConsistencyCheck) int {
	n := 0
	for _, c := range checks {
		if c.Passed {
			n++
		}
	}
	return n
}

const reportTemplate = `# Synapse Diagnostics

Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}} (run {{.ID}})

## Summary

- Activation pipeline: **{{.Activation.Grade}}** ({{pct .Activation.Percent}}){{if .Activation.Stale}} stale{{end}}
- Hook pipeline: **{{.Hook.Grade}}** ({{pct .Hook.Percent}}){{if .Hook.Stale}} stale{{end}}
- Consistency: {{passed .Consistency}}/{{len .Consistency}} checks passed
- Pipeline time: {{printf "%.2f" .Timing.Total}}ms ({{.Timing.Verdict}})
- Gaps: {{len .Gaps}}
{{- with .Trend}}

## Trend

Compared with the run at {{.Previous.Timestamp.Format "2006-01-02 15:04:05"}}:

- Activation: {{pct .Previous.ActivationPercent}} previously ({{signed .ActivationDelta}})
- Hook: {{pct .Previous.HookPercent}} previously ({{signed .HookDelta}})
{{- end}}
{{range $q := .Qualities}}
## {{upper $q.Pipeline}} Quality
{{if $q.Present}}
Score {{printf "%.1f" $q.Score}}/{{printf "%.0f" $q.MaxScore}}, grade {{$q.Grade}}, data {{age $q.Age}}.

{{qualityTable $q}}{{else}}
No metrics recorded.
{{end}}{{end}}
## Consistency

{{consistencyTable .Consistency}}
## Timing
{{if .Timing.Entries}}
{{timingTable .Timing}}{{else}}
No hook timing recorded.
{{end}}
## Relevance
{{if .Relevance}}
{{relevanceTable .Relevance}}{{else}}
No active session signals.
{{end}}
## Gaps & Recommendations
{{if .Gaps}}
{{range $i, $g := .Gaps}}{{inc $i}}. **[{{upper $g.Severity}}]** {{$g.Area}}: {{$g.Message}}
   - {{$g.Recommendation}}
{{end}}{{else}}
No gaps found.
{{end}}`

// Qualities returns both pipeline scores, activation first.
func (r *Report) Qualities() []Quality {
	return []Quality{r.Activation, r.Hook}
}

package verify

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Report is the outcome of a verification pass.
type Report struct {
	Source   string    `json:"source,omitempty"`
	Findings []Finding `json:"findings"`
}

// Verify evaluates every check against doc. It never stops early.
func Verify(doc *workflow.Document, list *Checklist) *Report {
	report := &Report{Findings: make([]Finding, 0, list.Len())}
	for _, check := range list.Checks() {
		report.Findings = append(report.Findings, check.Evaluate(doc))
	}
	return report
}

// VerifyFile reloads the document at path and verifies it. Only an
// unreadable document is an error; mismatches are in the report.
func VerifyFile(path string, list *Checklist) (*Report, error) {
	doc, err := workflow.Load(path)
	if err != nil {
		return nil, err
	}
	report := Verify(doc, list)
	report.Source = path
	return report, nil
}

// Passed reports whether every finding passed.
func (r *Report) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed findings.
func (r *Report) Failures() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Status == StatusFail {
			out = append(out, f)
		}
	}
	return out
}

// Render writes the report as styled text or JSON.
func (r *Report) Render(w io.Writer, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(struct {
			*Report
			Passed bool `json:"passed"`
		}{r, r.Passed()})
	}

	styles := NewStyles(lipgloss.NewRenderer(w))

	title := "VERIFICATION"
	if r.Source != "" {
		title += "  " + r.Source
	}
	if _, err := fmt.Fprintln(w, styles.Title.Render(title)); err != nil {
		return err
	}

	for _, f := range r.Findings {
		status := styles.Pass.Render(string(f.Status))
		if f.Status == StatusFail {
			status = styles.Fail.Render(string(f.Status))
		}
		fmt.Fprintf(w, "%s  %s\n", status, f.Check)
		if f.Status == StatusFail {
			fmt.Fprintln(w, styles.Detail.Render("expected: "+f.Expected))
			fmt.Fprintln(w, styles.Detail.Render("actual:   "+f.Actual))
		}
	}

	failed := len(r.Failures())
	summary := fmt.Sprintf("%d checks, %d passed, %d failed", len(r.Findings), len(r.Findings)-failed, failed)
	if failed > 0 {
		summary = styles.Fail.Render(summary)
	} else {
		summary = styles.Pass.Render(summary)
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

// Styles holds the lipgloss styles shared by report and inspect output.
type Styles struct {
	Title  lipgloss.Style
	Pass   lipgloss.Style
	Fail   lipgloss.Style
	Warn   lipgloss.Style
	Detail lipgloss.Style
	Muted  lipgloss.Style
}

// NewStyles builds styles bound to a renderer, so colour is only emitted
// when the destination is a terminal.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF")),
		Pass:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00")),
		Fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000")),
		Warn:  r.NewStyle().Foreground(lipgloss.Color("#FFAA00")),
		Detail: r.NewStyle().
			PaddingLeft(6).
			Foreground(lipgloss.Color("#AAAAAA")),
		Muted: r.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

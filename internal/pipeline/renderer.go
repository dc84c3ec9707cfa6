package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/codebook/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════"

// Renderer writes evaluation reports as JSON, Markdown and a terminal
// summary.
type Renderer struct {
	includeFooter  bool
	includeAnswers bool
}

// NewRenderer creates a renderer. includeAnswers adds the per-answer
// table to Markdown output.
func NewRenderer(includeFooter, includeAnswers bool) *Renderer {
	return &Renderer{
		includeFooter:  includeFooter,
		includeAnswers: includeAnswers,
	}
}

// RenderJSON writes the report as indented JSON. Per-answer reports are
// kept only when the renderer includes answers.
func (r *Renderer) RenderJSON(report *model.EvaluationReport, path string) error {
	out := *report
	if !r.includeAnswers {
		out.Answers = nil
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the Markdown form of the report to path.
func (r *Renderer) RenderMarkdown(report *model.EvaluationReport, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// Markdown renders the report: global metrics, then per theme and per
// code tables sorted by name.
func (r *Renderer) Markdown(report *model.EvaluationReport) string {
	var b strings.Builder

	title := report.Subject
	if title == "" {
		title = "Agreement Report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if report.Annotated != "" {
		fmt.Fprintf(&b, "- **Annotated:** `%s`\n", report.Annotated)
	}
	if report.GroundTruth != "" {
		fmt.Fprintf(&b, "- **Ground truth:** `%s`\n", report.GroundTruth)
	}
	fmt.Fprintf(&b, "- **Evaluated answers:** %d\n", report.Evaluated)
	fmt.Fprintf(&b, "- **Matching:** %s, overlap >= %.2f", report.Options.Matching, report.Options.OverlapThreshold)
	if report.Options.MinConfidence > 0 {
		fmt.Fprintf(&b, ", confidence >= %.2f", report.Options.MinConfidence)
	}
	if report.Options.Presence {
		b.WriteString(", presence only")
	}
	b.WriteString("\n\n")

	b.WriteString("## Overall\n\n")
	writeMetricsHeader(&b, "Scope")
	writeMetricsRow(&b, "global", report.Overall)
	b.WriteString("\n")

	if len(report.PerTheme) > 0 {
		b.WriteString("## Per Theme\n\n")
		writeMetricsHeader(&b, "Theme")
		for _, theme := range sortedKeys(report.PerTheme) {
			writeMetricsRow(&b, theme, report.PerTheme[theme])
		}
		b.WriteString("\n")
	}

	if len(report.PerCode) > 0 {
		b.WriteString("## Per Code\n\n")
		writeMetricsHeader(&b, "Theme / Code")
		for _, theme := range sortedKeys(report.PerCode) {
			codes := report.PerCode[theme]
			for _, code := range sortedKeys(codes) {
				writeMetricsRow(&b, theme+" / "+code, codes[code])
			}
		}
		b.WriteString("\n")
	}

	if r.includeAnswers && len(report.Answers) > 0 {
		b.WriteString("## Per Answer\n\n")
		writeMetricsHeader(&b, "Answer")
		for _, a := range report.Answers {
			writeMetricsRow(&b, fmt.Sprintf("%d", a.ID), a.Report.Overall)
		}
		b.WriteString("\n")
	}

	if notes := reportNotes(report); len(notes) > 0 {
		b.WriteString("## Notes\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		if report.RunID != "" {
			fmt.Fprintf(&b, "_Run %s", report.RunID)
			if !report.CreatedAt.IsZero() {
				fmt.Fprintf(&b, " at %s", report.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			}
			b.WriteString("._\n\n")
		}
		b.WriteString("_Counts are micro-averaged: true positives, false positives and false negatives are summed before precision and recall are computed._\n")
	}

	return b.String()
}

// RenderSummary prints a short summary for the terminal.
func (r *Renderer) RenderSummary(w io.Writer, report *model.EvaluationReport) {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "  %s\n", summaryTitle(report))
	fmt.Fprintf(w, "%s\n\n", rule)

	fmt.Fprintf(w, "  Answers:    %d evaluated", report.Evaluated)
	if len(report.Skipped) > 0 {
		fmt.Fprintf(w, ", %d skipped", len(report.Skipped))
	}
	fmt.Fprintf(w, "\n")
	c := report.Overall.Counts
	fmt.Fprintf(w, "  Counts:     TP %d  FP %d  FN %d\n", c.TP, c.FP, c.FN)
	fmt.Fprintf(w, "  Precision:  %.3f\n", report.Overall.Precision)
	fmt.Fprintf(w, "  Recall:     %.3f\n", report.Overall.Recall)
	fmt.Fprintf(w, "  F1:         %.3f\n", report.Overall.F1)

	if len(report.PerTheme) > 0 {
		fmt.Fprintf(w, "\n  Per theme (F1):\n")
		for _, theme := range sortedKeys(report.PerTheme) {
			fmt.Fprintf(w, "    %-28s %.3f\n", theme, report.PerTheme[theme].F1)
		}
	}

	for _, n := range reportNotes(report) {
		fmt.Fprintf(w, "\n  ⚠ %s", n)
	}
	fmt.Fprintf(w, "\n\n")
}

func summaryTitle(report *model.EvaluationReport) string {
	if report.Subject != "" {
		return report.Subject
	}
	return "Agreement Summary"
}

func reportNotes(report *model.EvaluationReport) []string {
	var notes []string
	if !report.QuestionMatches {
		notes = append(notes, "Question text differs between annotated and ground-truth files.")
	}
	if len(report.Skipped) > 0 {
		notes = append(notes, fmt.Sprintf("Skipped answers missing from ground truth: %s", joinIDs(report.Skipped)))
	}
	if len(report.TextMismatches) > 0 {
		notes = append(notes, fmt.Sprintf("Answer text differs for ids: %s", joinIDs(report.TextMismatches)))
	}
	notes = append(notes, report.Warnings...)
	return notes
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

func writeMetricsHeader(b *strings.Builder, label string) {
	fmt.Fprintf(b, "| %s | TP | FP | FN | Precision | Recall | F1 |\n", label)
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
}

func writeMetricsRow(b *strings.Builder, label string, m model.Metrics) {
	fmt.Fprintf(b, "| %s | %d | %d | %d | %.3f | %.3f | %.3f |\n",
		label, m.TP, m.FP, m.FN, m.Precision, m.Recall, m.F1)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

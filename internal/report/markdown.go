package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brandalign/engine/pkg/types"
)

// MarkdownReport holds data for a Markdown evaluation report.
type MarkdownReport struct {
	Title       string
	RunAt       time.Time
	Evaluations []types.AssetEvaluation
	TotalCost   float64
	DurationMS  int64
}

// GenerateMarkdown writes a Markdown-formatted report to w.
func GenerateMarkdown(w io.Writer, r *MarkdownReport) error {
	title := r.Title
	if title == "" {
		title = "Brand Alignment Report"
	}

	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}

	if !r.RunAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run at:** %s\n\n", r.RunAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	if r.TotalCost > 0 {
		if _, err := fmt.Fprintf(w, "**Cost:** $%.6f\n\n", r.TotalCost); err != nil {
			return err
		}
	}
	if r.DurationMS > 0 {
		if _, err := fmt.Fprintf(w, "**Duration:** %dms\n\n", r.DurationMS); err != nil {
			return err
		}
	}

	if len(r.Evaluations) == 0 {
		_, err := fmt.Fprintln(w, "_No assets evaluated._")
		return err
	}

	for _, ev := range r.Evaluations {
		percent := int(ev.FinalScore * 100)
		if _, err := fmt.Fprintf(w, "### %s — %.2f %s\n\n",
			ev.AssetName, ev.FinalScore, TextProgressBar(percent, 20)); err != nil {
			return err
		}

		if len(ev.GuidelineVerdicts) == 0 {
			if _, err := fmt.Fprintln(w, "_No applicable guidelines._"); err != nil {
				return err
			}
			continue
		}

		if _, err := fmt.Fprintln(w, "| Guideline | Criterion | Verdict | Justification |"); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, "|-----------|-----------|---------|---------------|"); err != nil {
			return err
		}

		for _, gv := range ev.GuidelineVerdicts {
			for _, v := range gv.Verdicts {
				justification := strings.ReplaceAll(v.Justification, "|", "\\|")
				if len(justification) > 100 {
					justification = justification[:97] + "..."
				}
				if _, err := fmt.Fprintf(w, "| `%s` | `%s` | %s %s | %s |\n",
					gv.GuidelineID, v.CriterionID, verdictIcon(v), v.Verdict, justification); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	return nil
}

func verdictIcon(v types.CriterionVerdict) string {
	if v.Verdict == v.GTAnswer {
		return ":white_check_mark:"
	}
	return ":x:"
}

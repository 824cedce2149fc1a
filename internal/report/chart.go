package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/brandalign/engine/pkg/types"
)

// Chart renders a PNG bar chart of mean criterion scores per category for a
// single asset evaluation. Returns (nil, nil) when the evaluation carries no
// categorized verdicts, so callers can skip the attachment entirely.
func Chart(eval *types.AssetEvaluation) ([]byte, error) {
	type tally struct {
		sum   float64
		count int
	}
	byCategory := map[string]*tally{}

	for _, gv := range eval.GuidelineVerdicts {
		for _, v := range gv.Verdicts {
			if v.Category == "" {
				continue
			}
			t, ok := byCategory[v.Category]
			if !ok {
				t = &tally{}
				byCategory[v.Category] = t
			}
			if v.Verdict == v.GTAnswer {
				t.sum += 1.0
			}
			t.count++
		}
	}

	if len(byCategory) == 0 {
		return nil, nil
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	bars := make([]chart.Value, 0, len(categories))
	for _, c := range categories {
		t := byCategory[c]
		bars = append(bars, chart.Value{
			Label: c,
			Value: t.sum / float64(t.count),
		})
	}

	bc := chart.BarChart{
		Title:    eval.AssetName,
		Height:   512,
		BarWidth: 60,
		YAxis: chart.YAxis{
			// Scores live in [0, 1]; fixing the range keeps single-bar
			// charts from collapsing to a degenerate axis.
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering score chart: %w", err)
	}
	return buf.Bytes(), nil
}

package report

import (
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/brandalign/engine/pkg/types"
)

const reportVersion = "1.0"

type JSONReport struct {
	Version         string                  `json:"version"`
	Timestamp       string                  `json:"timestamp"`
	Evaluations     []types.AssetEvaluation `json:"evaluations"`
	Summary         JSONSummary             `json:"summary"`
	TotalCost       float64                 `json:"total_cost"`
	TotalDurationMS int64                   `json:"total_duration_ms"`
}

type JSONSummary struct {
	Assets            int     `json:"assets"`
	GuidelineVerdicts int     `json:"guideline_verdicts"`
	PassingCriteria   int     `json:"passing_criteria"`
	FailingCriteria   int     `json:"failing_criteria"`
	MeanFinalScore    float64 `json:"mean_final_score"`
}

// GenerateJSONReport generates a structured JSON report from asset evaluations.
func GenerateJSONReport(evaluations []types.AssetEvaluation, totalCost float64, totalDurationMS int64) ([]byte, error) {
	summary := JSONSummary{
		Assets: len(evaluations),
	}

	var scoreSum float64
	for _, ev := range evaluations {
		scoreSum += ev.FinalScore
		summary.GuidelineVerdicts += len(ev.GuidelineVerdicts)
		for _, gv := range ev.GuidelineVerdicts {
			for _, v := range gv.Verdicts {
				if v.Verdict == v.GTAnswer {
					summary.PassingCriteria++
				} else {
					summary.FailingCriteria++
				}
			}
		}
	}
	if len(evaluations) > 0 {
		summary.MeanFinalScore = scoreSum / float64(len(evaluations))
	}

	r := JSONReport{
		Version:         reportVersion,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Evaluations:     evaluations,
		Summary:         summary,
		TotalCost:       totalCost,
		TotalDurationMS: totalDurationMS,
	}

	return json.Marshal(&r)
}

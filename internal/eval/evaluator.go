package eval

import (
	"context"
	"log/slog"

	"github.com/brandalign/engine/pkg/types"
)

// Evaluator grades one (asset, guideline, mode) unit: it builds rubrics from
// the filtered criteria, submits them to the grading service in one batch, and
// computes the mean score from the verdicts that came back.
type Evaluator struct {
	grader Grader
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator using the given grading service.
func NewEvaluator(grader Grader, logger *slog.Logger) *Evaluator {
	return &Evaluator{grader: grader, logger: logger}
}

// Evaluate runs one grading batch and scores it. Verdicts are matched back to
// rubrics by key, never by position: the grading pass may reorder or batch
// across rubrics. Rubrics with no verdict entry are treated as no-data and
// skipped; a result set matching nothing yields (0.0, empty, nil), not an
// error. A failed grading call is fatal for this unit only and surfaces as
// *types.EvaluationError.
func (e *Evaluator) Evaluate(ctx context.Context, asset types.Asset, guideline *types.Guideline, criteria []types.Criterion, mode string) (float64, []types.CriterionVerdict, error) {
	rubrics := BuildRubrics(guideline, criteria)
	if len(rubrics) == 0 {
		return 0.0, []types.CriterionVerdict{}, nil
	}

	verdicts, err := e.grader.Grade(ctx, asset, mode, rubrics)
	if err != nil {
		return 0, nil, &types.EvaluationError{
			AssetID:     asset.AssetID,
			GuidelineID: guideline.GuidelineID,
			Mode:        mode,
			Err:         err,
		}
	}

	return scoreVerdicts(rubrics, verdicts)
}

// scoreVerdicts matches graded verdicts to rubrics by key and computes the
// mean score: 1.0 per verdict equal to the rubric's expected answer, 0.0
// otherwise, averaged over the rubrics that matched.
func scoreVerdicts(rubrics []Rubric, verdicts VerdictMap) (float64, []types.CriterionVerdict, error) {
	results := make([]types.CriterionVerdict, 0, len(rubrics))
	var sum float64
	var matched int

	for _, r := range rubrics {
		v, ok := verdicts[r.Key]
		if !ok {
			// Legacy unqualified key form.
			v, ok = verdicts[bareRubricKey(r.CriterionID)]
		}
		if !ok {
			continue
		}

		matched++
		if v.Verdict == r.GTAnswer {
			sum += 1.0
		}

		results = append(results, types.CriterionVerdict{
			CriterionID:   r.CriterionID,
			Question:      r.Question,
			GTAnswer:      r.GTAnswer,
			Verdict:       v.Verdict,
			Justification: v.Justification,
			Category:      r.Category,
			GuidelineID:   r.GuidelineID,
		})
	}

	if matched == 0 {
		return 0.0, []types.CriterionVerdict{}, nil
	}
	return sum / float64(matched), results, nil
}

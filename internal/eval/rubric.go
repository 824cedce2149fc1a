package eval

import (
	"fmt"

	"github.com/brandalign/engine/pkg/types"
)

// Rubric is a yes/no question derived from one criterion, ready to be graded.
type Rubric struct {
	Key           string
	CriterionID   string
	GuidelineID   string
	Question      string
	GTAnswer      string
	Justification string
	Category      string
	Severity      string
}

// RubricKey derives the deterministic grading key for a (guideline, criterion)
// pair. Keys are guideline-qualified so one grading batch may mix rubrics from
// several guidelines without collisions.
func RubricKey(guidelineID, criterionID string) string {
	return fmt.Sprintf("q_%s_%s", guidelineID, criterionID)
}

// bareRubricKey is the unqualified legacy key form, accepted on lookup when
// the grading service echoes keys without the guideline prefix.
func bareRubricKey(criterionID string) string {
	return "q" + criterionID
}

// BuildRubrics constructs one rubric per criterion, in input order. The
// expected answer is always "yes": every criterion states something the asset
// is expected to satisfy.
func BuildRubrics(guideline *types.Guideline, criteria []types.Criterion) []Rubric {
	rubrics := make([]Rubric, 0, len(criteria))
	for _, c := range criteria {
		justification := fmt.Sprintf("The asset should satisfy this guideline rule: %s", c.CriterionValue)
		if c.Severity == types.SeverityBlocker {
			justification = fmt.Sprintf("This rule is a blocker; the asset must satisfy it: %s", c.CriterionValue)
		}

		rubrics = append(rubrics, Rubric{
			Key:           RubricKey(guideline.GuidelineID, c.CriterionID),
			CriterionID:   c.CriterionID,
			GuidelineID:   guideline.GuidelineID,
			Question:      fmt.Sprintf("Does the asset satisfy the following rule: %s?", c.CriterionValue),
			GTAnswer:      "yes",
			Justification: justification,
			Category:      c.Category,
			Severity:      c.Severity,
		})
	}
	return rubrics
}

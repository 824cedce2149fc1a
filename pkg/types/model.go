package types

import "github.com/google/uuid"

const (
	SeverityWarning = "WARNING"
	SeverityBlocker = "BLOCKER"

	CategoryImage = "IMAGE"
	CategoryVideo = "VIDEO"

	AssetTypeImage   = "image"
	AssetTypeVideo   = "video"
	AssetTypeUnknown = "unknown"

	ModeDSG = "DSG"
	ModeBAS = "BAS"
)

// Criterion is one checkable rule within a guideline. Immutable once created;
// owned by exactly one Guideline.
type Criterion struct {
	CriterionID    string `json:"criterion_id"`
	Name           string `json:"name"`
	CriterionValue string `json:"criterion_value"`
	Severity       string `json:"severity"`
	Category       string `json:"category"`
}

// Guideline is a structured brand rulebook extracted from a source document.
// Constructed once during ingestion and read-only thereafter.
type Guideline struct {
	GuidelineID          string      `json:"guideline_id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	FileURI              string      `json:"file_uri"`
	ApplicableCategories []string    `json:"applicable_categories"`
	Criteria             []Criterion `json:"criteria"`
}

// AppliesTo reports whether the guideline applies to the given asset category.
// A guideline that declares no categories applies to everything.
func (g *Guideline) AppliesTo(category string) bool {
	if len(g.ApplicableCategories) == 0 {
		return true
	}
	for _, c := range g.ApplicableCategories {
		if c == category {
			return true
		}
	}
	return false
}

// EnsureIDs fills in missing guideline and criterion identifiers.
func (g *Guideline) EnsureIDs() {
	if g.GuidelineID == "" {
		g.GuidelineID = uuid.NewString()
	}
	for i := range g.Criteria {
		if g.Criteria[i].CriterionID == "" {
			g.Criteria[i].CriterionID = uuid.NewString()
		}
	}
}

// Asset is one creative artifact to be evaluated.
type Asset struct {
	AssetID     string `json:"asset_id"`
	AssetURI    string `json:"asset_uri"`
	AssetName   string `json:"asset_name"`
	AssetPrompt string `json:"asset_prompt"`
	Category    string `json:"category"`
}

// CriterionVerdict is the grading outcome for a single rubric. GuidelineID is
// a back-reference, not ownership.
type CriterionVerdict struct {
	CriterionID   string `json:"criterion_id"`
	Question      string `json:"question"`
	GTAnswer      string `json:"gt_answer"`
	Verdict       string `json:"verdict"`
	Justification string `json:"justification"`
	Category      string `json:"category"`
	GuidelineID   string `json:"guideline_id"`
}

// GuidelineVerdict aggregates one guideline's evaluation for one mode.
// MeanScore is the fraction of verdicts matching their expected answer.
type GuidelineVerdict struct {
	GuidelineID string             `json:"guideline_id"`
	MeanScore   float64            `json:"mean_score"`
	Verdicts    []CriterionVerdict `json:"verdicts"`
}

// AssetEvaluation is the top-level evaluation result for one asset.
// FinalScore is the arithmetic mean of all per-guideline mean scores across
// both evaluation modes; 0.0 when no guidelines applied.
type AssetEvaluation struct {
	AssetID           string             `json:"asset_id"`
	AssetName         string             `json:"asset_name"`
	Description       string             `json:"description"`
	GuidelineVerdicts []GuidelineVerdict `json:"guideline_verdicts"`
	FinalScore        float64            `json:"final_score"`
}

package eval

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/brandalign/engine/internal/llm"
	"github.com/brandalign/engine/pkg/types"
)

// GradedVerdict is the grading service's answer to one rubric.
type GradedVerdict struct {
	Verdict       string `json:"verdict"`
	Justification string `json:"justification"`
}

// VerdictMap holds graded verdicts keyed by rubric key.
type VerdictMap map[string]GradedVerdict

// Grader is the rubric-based grading service boundary: one batched call per
// (asset, mode) pair.
type Grader interface {
	Grade(ctx context.Context, asset types.Asset, mode string, rubrics []Rubric) (VerdictMap, error)
}

const dsgGraderPrompt = `You are a strict visual inspector. For each rubric question, examine the
asset and answer whether its descriptive and structural content matches the rule. Answer each
question with "yes" or "no" plus a one-sentence justification.`

const basGraderPrompt = `You are a brand reviewer. For each rubric question, judge whether the asset
is aligned with the brand rule in spirit and presentation. Answer each question with "yes" or "no"
plus a one-sentence justification.`

// gradeResponse is the expected shape of the grading model's reply.
type gradeResponse struct {
	Verdicts VerdictMap `json:"verdicts"`
}

// LLMGrader implements Grader on top of a generative-model provider.
type LLMGrader struct {
	provider llm.Provider
	costs    *CostTracker
	logger   *slog.Logger
}

// NewLLMGrader creates a grader. costs may be nil to disable accounting.
func NewLLMGrader(provider llm.Provider, costs *CostTracker, logger *slog.Logger) *LLMGrader {
	return &LLMGrader{provider: provider, costs: costs, logger: logger}
}

// Grade submits all rubrics for one (asset, mode) pair in a single call and
// returns the verdict mapping. The mapping may be reordered or partial; the
// caller matches entries back to rubrics by key.
func (g *LLMGrader) Grade(ctx context.Context, asset types.Asset, mode string, rubrics []Rubric) (VerdictMap, error) {
	if len(rubrics) == 0 {
		return VerdictMap{}, nil
	}

	systemPrompt := dsgGraderPrompt
	if mode == types.ModeBAS {
		systemPrompt = basGraderPrompt
	}

	req := &llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: buildGradePrompt(asset, rubrics)}},
		ForceJSON:    true,
	}
	if asset.AssetURI != "" {
		req.File = &llm.FileData{URI: asset.AssetURI, MIMEType: mimeTypeForAsset(asset)}
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("grading call (%s): %w", mode, err)
	}
	if g.costs != nil {
		if err := g.costs.Record(resp.Cost, resp.DurationMS); err != nil {
			return nil, err
		}
	}

	var parsed gradeResponse
	if err := DecodeFencedJSON(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("parse grading response (%s): %w", mode, err)
	}
	if parsed.Verdicts == nil {
		return nil, fmt.Errorf("grading response (%s) missing verdicts", mode)
	}
	return parsed.Verdicts, nil
}

// buildGradePrompt lists the asset context and every rubric with its key.
func buildGradePrompt(asset types.Asset, rubrics []Rubric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s (%s)\n", asset.AssetName, asset.AssetURI)
	if asset.AssetPrompt != "" {
		fmt.Fprintf(&b, "Generation intent: %s\n", asset.AssetPrompt)
	}
	b.WriteString("\nRubrics:\n")
	for _, r := range rubrics {
		fmt.Fprintf(&b, "- key=%s question=%q expected=%s\n", r.Key, r.Question, r.GTAnswer)
	}
	b.WriteString("\nReturn JSON: {\"verdicts\": {\"<key>\": {\"verdict\": \"yes|no\", \"justification\": \"...\"}}}")
	return b.String()
}

var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// mimeTypeForAsset maps the asset URI extension to a MIME type for the file part.
func mimeTypeForAsset(asset types.Asset) string {
	if mt, ok := mimeByExtension[strings.ToLower(path.Ext(asset.AssetURI))]; ok {
		return mt
	}
	return "application/octet-stream"
}

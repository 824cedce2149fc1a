package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brandalign/engine/internal/llm"
	"github.com/brandalign/engine/pkg/types"
)

const filterSystemPrompt = `You are a brand compliance assistant. Given a list of guideline criteria
and an asset type, decide which criteria can be checked against an asset of that type. Respond with
a JSON object of the form {"relevant_criterion_ids": ["id", ...]} and nothing else.`

// Filter narrows a guideline's criteria to the ones relevant to an asset's
// coarse type. Filtering never fails: any problem with the model call or its
// response fails open, returning the input unchanged. Over-evaluating is
// preferred to silently skipping checks.
type Filter struct {
	provider llm.Provider
	costs    *CostTracker
	logger   *slog.Logger
}

// NewFilter creates a Filter. costs may be nil to disable accounting.
func NewFilter(provider llm.Provider, costs *CostTracker, logger *slog.Logger) *Filter {
	return &Filter{provider: provider, costs: costs, logger: logger}
}

// filterResponse is the expected shape of the filtering model's reply.
// A pointer distinguishes a missing/mistyped key from a present empty list.
type filterResponse struct {
	RelevantCriterionIDs *[]string `json:"relevant_criterion_ids"`
}

// Relevant returns the subsequence of criteria relevant to assetType,
// preserving input order. Empty input returns empty with no model call; an
// unknown asset type returns the input unchanged with no model call.
func (f *Filter) Relevant(ctx context.Context, criteria []types.Criterion, assetType string) []types.Criterion {
	if len(criteria) == 0 {
		return []types.Criterion{}
	}
	if assetType != types.AssetTypeImage && assetType != types.AssetTypeVideo {
		// Type inference was inconclusive; nothing to reason about.
		return criteria
	}

	resp, err := f.provider.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt: filterSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: buildFilterPrompt(criteria, assetType)}},
	})
	if err != nil {
		f.logger.Warn("criteria filter call failed, keeping all criteria", "err", err)
		return criteria
	}
	if f.costs != nil {
		// Filtering ignores the ceiling; fail-open must not turn into an error path.
		_ = f.costs.Record(resp.Cost, resp.DurationMS)
	}

	var parsed filterResponse
	if err := DecodeFencedJSON(resp.Content, &parsed); err != nil {
		f.logger.Warn("criteria filter response unparsable, keeping all criteria", "err", err)
		return criteria
	}
	if parsed.RelevantCriterionIDs == nil {
		f.logger.Warn("criteria filter response missing relevant_criterion_ids, keeping all criteria")
		return criteria
	}

	relevant := make(map[string]bool, len(*parsed.RelevantCriterionIDs))
	for _, id := range *parsed.RelevantCriterionIDs {
		relevant[id] = true
	}

	filtered := make([]types.Criterion, 0, len(criteria))
	for _, c := range criteria {
		if relevant[c.CriterionID] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// buildFilterPrompt lists every criterion with its identifier for the model.
func buildFilterPrompt(criteria []types.Criterion, assetType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset type: %s\n\nCriteria:\n", assetType)
	for _, c := range criteria {
		fmt.Fprintf(&b, "- id=%s name=%q rule=%q\n", c.CriterionID, c.Name, c.CriterionValue)
	}
	b.WriteString("\nReturn the relevant criterion ids as JSON.")
	return b.String()
}

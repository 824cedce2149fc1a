package eval

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/brandalign/engine/pkg/types"
)

// evaluationModes is the fixed mode order per guideline: descriptive match
// first, then brand alignment. Order matters for reproducible output.
var evaluationModes = []string{types.ModeDSG, types.ModeBAS}

// Aggregator drives the full pipeline for an asset: coarse typing, criteria
// filtering, per-guideline grading in both modes, and the final score.
type Aggregator struct {
	filter    *Filter
	evaluator *Evaluator
	logger    *slog.Logger

	// concurrency bounds the multi-asset fan-out in EvaluateAssets.
	concurrency int
}

// NewAggregator creates an Aggregator. concurrency < 1 defaults to 4.
func NewAggregator(filter *Filter, evaluator *Evaluator, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Aggregator{filter: filter, evaluator: evaluator, concurrency: concurrency, logger: logger}
}

// EvaluateAsset scores one asset against every applicable guideline.
//
// Each surviving guideline contributes one GuidelineVerdict per mode, in
// encounter order; final_score is the arithmetic mean of every collected
// mean_score, 0.0 when nothing applied. A grading failure aborts this asset's
// evaluation (no partial score for the failed unit) but nothing else.
func (a *Aggregator) EvaluateAsset(ctx context.Context, asset types.Asset, guidelines []types.Guideline) (*types.AssetEvaluation, error) {
	assetType := AssetTypeFromURI(asset.AssetURI)

	evaluation := &types.AssetEvaluation{
		AssetID:           asset.AssetID,
		AssetName:         asset.AssetName,
		Description:       fmt.Sprintf("Evaluation of %s against %d guideline(s)", asset.AssetName, len(guidelines)),
		GuidelineVerdicts: []types.GuidelineVerdict{},
	}

	var sum float64
	for i := range guidelines {
		g := &guidelines[i]
		if !g.AppliesTo(asset.Category) {
			continue
		}

		relevant := a.filter.Relevant(ctx, g.Criteria, assetType)
		if len(relevant) == 0 {
			a.logger.Info("no relevant criteria, skipping guideline",
				"asset_id", asset.AssetID, "guideline_id", g.GuidelineID)
			continue
		}

		for _, mode := range evaluationModes {
			meanScore, verdicts, err := a.evaluator.Evaluate(ctx, asset, g, relevant, mode)
			if err != nil {
				return nil, err
			}
			evaluation.GuidelineVerdicts = append(evaluation.GuidelineVerdicts, types.GuidelineVerdict{
				GuidelineID: g.GuidelineID,
				MeanScore:   meanScore,
				Verdicts:    verdicts,
			})
			sum += meanScore
		}
	}

	if n := len(evaluation.GuidelineVerdicts); n > 0 {
		evaluation.FinalScore = sum / float64(n)
	}

	a.logger.Info("asset evaluated",
		"asset_id", asset.AssetID,
		"asset_type", assetType,
		"guideline_verdicts", len(evaluation.GuidelineVerdicts),
		"final_score", evaluation.FinalScore)

	return evaluation, nil
}

// BatchOutcome pairs an asset's evaluation with its failure, if any. Exactly
// one of Evaluation and Err is set.
type BatchOutcome struct {
	AssetID    string
	Evaluation *types.AssetEvaluation
	Err        error
}

// EvaluateAssets evaluates assets independently with a bounded fan-out.
// Outcomes preserve input order; one asset's failure never aborts the others.
func (a *Aggregator) EvaluateAssets(ctx context.Context, assets []types.Asset, guidelines []types.Guideline) []BatchOutcome {
	return a.EvaluateAssetsFunc(ctx, assets, guidelines, nil)
}

// EvaluateAssetsFunc is EvaluateAssets with an optional per-outcome callback,
// invoked as each asset finishes (in completion order, possibly concurrently
// with other evaluations still running).
func (a *Aggregator) EvaluateAssetsFunc(ctx context.Context, assets []types.Asset, guidelines []types.Guideline, onOutcome func(BatchOutcome)) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(assets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i := range assets {
		g.Go(func() error {
			ev, err := a.EvaluateAsset(ctx, assets[i], guidelines)
			outcomes[i] = BatchOutcome{AssetID: assets[i].AssetID, Evaluation: ev, Err: err}
			if onOutcome != nil {
				onOutcome(outcomes[i])
			}
			// Failures are reported per asset, never propagated: returning the
			// error here would cancel sibling evaluations.
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/brandalign/engine/internal/auth"
	"github.com/brandalign/engine/internal/eval"
	"github.com/brandalign/engine/internal/guideline"
	"github.com/brandalign/engine/internal/llm"
	"github.com/brandalign/engine/internal/report"
	"github.com/brandalign/engine/internal/session"
	"github.com/brandalign/engine/pkg/types"
)

const (
	engineVersion   = "0.1.0"
	protocolVersion = 1

	maxConcurrentRequests = 16
	maxAssetsPerBatch     = 64
)

// Engine bundles the wired pipeline components behind the RPC handlers.
// Extractor and Aggregator are nil when no model provider is configured;
// the corresponding methods are then not registered.
type Engine struct {
	Extractor  *guideline.Extractor
	Store      *guideline.Store
	Aggregator *eval.Aggregator
	Costs      *eval.CostTracker
	Auth       *auth.Resolver
	AuthConfig *auth.Config
	Logger     *slog.Logger
}

// RegisterBuiltinHandlers wires an Engine from BRANDALIGN_* env vars and
// registers the built-in JSON-RPC handlers on s.
func RegisterBuiltinHandlers(s *Server) error {
	engine, err := NewEngineFromEnv(context.Background(), s.logger)
	if err != nil {
		return err
	}
	RegisterHandlers(s, engine)
	return nil
}

// NewEngineFromEnv constructs an Engine from environment configuration.
//
//	BRANDALIGN_GEMINI_API_KEY   model API key (no extraction/evaluation without it)
//	BRANDALIGN_GEMINI_MODEL     model override
//	BRANDALIGN_RPM              provider requests per minute (default 60)
//	BRANDALIGN_BURST            rate limiter burst (default 4)
//	BRANDALIGN_MAX_RETRIES      provider retry count (default 2)
//	BRANDALIGN_DB_PATH          guideline store path (default ~/.brandalign/brandalign.db)
//	BRANDALIGN_EVAL_CONCURRENCY batch fan-out width (default 4)
//	BRANDALIGN_MAX_COST         soft batch cost ceiling in USD (0 = unlimited)
func NewEngineFromEnv(ctx context.Context, logger *slog.Logger) (*Engine, error) {
	store, err := guideline.Open(storePath())
	if err != nil {
		return nil, fmt.Errorf("opening guideline store: %w", err)
	}

	engine := &Engine{
		Store:  store,
		Costs:  eval.NewCostTracker(envFloat("BRANDALIGN_MAX_COST", 0)),
		Logger: logger,
	}

	// User identity resolution is optional; configuring the auth id key
	// turns it on and makes the rest of BRANDALIGN_AUTH_* required.
	if os.Getenv("BRANDALIGN_AUTH_ID_KEY") != "" {
		authCfg, err := auth.ConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("configuring auth: %w", err)
		}
		resolver, err := auth.NewResolver(authCfg, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("creating auth resolver: %w", err)
		}
		engine.Auth = resolver
		engine.AuthConfig = authCfg
	}

	apiKey := os.Getenv("BRANDALIGN_GEMINI_API_KEY")
	if apiKey == "" {
		logger.Warn("BRANDALIGN_GEMINI_API_KEY not set, extraction and evaluation disabled")
		return engine, nil
	}

	gemini, err := llm.NewGeminiProvider(ctx, apiKey, os.Getenv("BRANDALIGN_GEMINI_MODEL"))
	if err != nil {
		return nil, fmt.Errorf("creating model provider: %w", err)
	}
	provider, err := llm.NewRateLimitedProvider(gemini, llm.RateLimiterConfig{
		RequestsPerMinute: envInt("BRANDALIGN_RPM", 60),
		Burst:             envInt("BRANDALIGN_BURST", 4),
		MaxRetries:        envInt("BRANDALIGN_MAX_RETRIES", 2),
	})
	if err != nil {
		return nil, fmt.Errorf("configuring rate limiter: %w", err)
	}

	extractor, err := guideline.NewExtractor(provider, logger)
	if err != nil {
		return nil, fmt.Errorf("creating extractor: %w", err)
	}
	engine.Extractor = extractor

	grader := eval.NewLLMGrader(provider, engine.Costs, logger)
	engine.Aggregator = eval.NewAggregator(
		eval.NewFilter(provider, engine.Costs, logger),
		eval.NewEvaluator(grader, logger),
		envInt("BRANDALIGN_EVAL_CONCURRENCY", 4),
		logger,
	)

	logger.Info("engine wired", "provider", provider.Name(), "model", provider.DefaultModel())
	return engine, nil
}

// RegisterHandlers registers the RPC methods engine supports on s.
func RegisterHandlers(s *Server, engine *Engine) {
	caps := []string{"session_state", "reporting"}
	if engine.Extractor != nil {
		caps = append(caps, "guideline_extraction")
	}
	if engine.Aggregator != nil {
		caps = append(caps, "asset_evaluation", "batch_evaluation")
	}
	if engine.Auth != nil {
		caps = append(caps, "user_identity")
	}

	s.RegisterHandler("initialize", handleInitialize(caps))
	s.RegisterHandler("shutdown", handleShutdown)
	s.RegisterHandler("save_plan", handleSavePlan)
	s.RegisterHandler("generate_report", handleGenerateReport(engine))
	if engine.Extractor != nil {
		s.RegisterHandler("extract_guideline", handleExtractGuideline(engine))
	}
	if engine.Aggregator != nil {
		s.RegisterHandler("evaluate_asset", handleEvaluateAsset(engine))
		s.RegisterHandler("evaluate_batch", handleEvaluateBatch(s, engine))
	}
	if engine.Auth != nil {
		s.RegisterHandler("resolve_user", handleResolveUser(engine))
	}
}

func storePath() string {
	if p := os.Getenv("BRANDALIGN_DB_PATH"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".brandalign")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "brandalign.db")
}

// envInt reads an int from an env var with a fallback default.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envFloat reads a float from an env var with a fallback default.
func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func requireInitialized(session *Session, method string) *types.RPCError {
	if session.State() != StateInitialized {
		return types.NewRPCError(
			types.ErrSessionError,
			method+" called before initialize",
			types.ErrTypeSessionError,
			false,
			"call initialize first to establish a session",
		)
	}
	return nil
}

func invalidParams(method string, err error) *types.RPCError {
	return types.NewRPCError(
		types.ErrInvalidParams,
		fmt.Sprintf("invalid %s params: %v", method, err),
		types.ErrTypeInvalidParams,
		false,
		"check the request format matches the protocol",
	)
}

func handleInitialize(caps []string) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateUninitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"initialize called on already-initialized session",
				types.ErrTypeSessionError,
				false,
				"initialize may only be called once per session",
			)
		}

		var p types.InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("initialize", err)
		}

		if p.ProtocolVersion != protocolVersion {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				fmt.Sprintf("protocol version %d not supported; engine supports version %d", p.ProtocolVersion, protocolVersion),
				types.ErrTypeSessionError,
				false,
				"upgrade the engine binary or downgrade the SDK protocol_version",
			)
		}

		supported := make(map[string]bool, len(caps))
		for _, c := range caps {
			supported[c] = true
		}
		var missing []string
		for _, req := range p.RequiredCapabilities {
			if !supported[req] {
				missing = append(missing, req)
			}
		}
		compatible := len(missing) == 0
		if missing == nil {
			missing = []string{}
		}

		session.SetState(StateInitialized)

		return &types.InitializeResult{
			EngineVersion:         engineVersion,
			ProtocolVersion:       protocolVersion,
			Capabilities:          caps,
			Missing:               missing,
			Compatible:            compatible,
			MaxConcurrentRequests: maxConcurrentRequests,
			MaxAssetsPerBatch:     maxAssetsPerBatch,
		}, nil
	}
}

func handleShutdown(session *Session, _ json.RawMessage) (any, *types.RPCError) {
	if session.State() != StateInitialized {
		return nil, types.NewRPCError(
			types.ErrSessionError,
			"shutdown called on uninitialized or already-shutting-down session",
			types.ErrTypeSessionError,
			false,
			"call initialize before shutdown",
		)
	}

	session.SetState(StateShuttingDown)

	session.mu.Lock()
	session.sessionsCompleted++
	completed := session.sessionsCompleted
	evaluated := session.assetsEvaluated
	session.mu.Unlock()

	return &types.ShutdownResult{
		SessionsCompleted: int(completed),
		AssetsEvaluated:   int(evaluated),
	}, nil
}

func handleExtractGuideline(engine *Engine) Handler {
	return func(sess *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(sess, "extract_guideline"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.ExtractGuidelineParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("extract_guideline", err)
		}
		if p.FileURI == "" {
			return nil, invalidParams("extract_guideline", errors.New("file_uri is required"))
		}

		g, err := engine.Extractor.Extract(context.Background(), p.FileURI, p.MIMEType)
		if err != nil {
			return nil, types.NewRPCError(
				types.ErrExtractionError,
				fmt.Sprintf("extraction failed: %v", err),
				types.ErrTypeExtractionError,
				true,
				"the document may be unreadable, or the provider may be unavailable",
			)
		}

		if err := engine.Store.Put(g); err != nil {
			return nil, types.NewRPCError(
				types.ErrEngineError,
				fmt.Sprintf("storing guideline: %v", err),
				types.ErrTypeEngineError,
				false,
				"guideline store write failed",
			)
		}

		return &types.ExtractGuidelineResult{Guideline: *g}, nil
	}
}

// resolveGuidelines loads the requested guidelines, or every stored one when
// ids is empty.
func resolveGuidelines(engine *Engine, ids []string) ([]types.Guideline, *types.RPCError) {
	if len(ids) == 0 {
		all, err := engine.Store.List()
		if err != nil {
			return nil, types.NewRPCError(
				types.ErrEngineError,
				fmt.Sprintf("listing guidelines: %v", err),
				types.ErrTypeEngineError,
				false,
				"guideline store read failed",
			)
		}
		return all, nil
	}

	guidelines := make([]types.Guideline, 0, len(ids))
	for _, id := range ids {
		g, err := engine.Store.Get(id)
		if err != nil {
			return nil, invalidParams("evaluate", fmt.Errorf("guideline %q: %w", id, err))
		}
		guidelines = append(guidelines, *g)
	}
	return guidelines, nil
}

func handleEvaluateAsset(engine *Engine) Handler {
	return func(sess *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(sess, "evaluate_asset"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.EvaluateAssetParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("evaluate_asset", err)
		}
		if p.Asset.AssetURI == "" {
			return nil, invalidParams("evaluate_asset", errors.New("asset.asset_uri is required"))
		}

		guidelines, rpcErr := resolveGuidelines(engine, p.GuidelineIDs)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if len(guidelines) == 0 {
			return nil, invalidParams("evaluate_asset", errors.New("no guidelines available; call extract_guideline first"))
		}

		costBefore, durBefore := engine.Costs.Snapshot()
		evaluation, err := engine.Aggregator.EvaluateAsset(context.Background(), p.Asset, guidelines)
		if err != nil {
			return nil, evaluationRPCError(err)
		}
		costAfter, durAfter := engine.Costs.Snapshot()

		sess.IncrementAssets(1)

		return &types.EvaluateAssetResult{
			Evaluation:      *evaluation,
			TotalCost:       costAfter - costBefore,
			TotalDurationMS: durAfter - durBefore,
		}, nil
	}
}

func handleEvaluateBatch(s *Server, engine *Engine) Handler {
	return func(sess *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(sess, "evaluate_batch"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.EvaluateBatchParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("evaluate_batch", err)
		}
		if len(p.Assets) == 0 {
			return nil, invalidParams("evaluate_batch", errors.New("assets is empty"))
		}
		if len(p.Assets) > maxAssetsPerBatch {
			return nil, invalidParams("evaluate_batch",
				fmt.Errorf("batch of %d exceeds limit of %d", len(p.Assets), maxAssetsPerBatch))
		}

		guidelines, rpcErr := resolveGuidelines(engine, p.GuidelineIDs)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if len(guidelines) == 0 {
			return nil, invalidParams("evaluate_batch", errors.New("no guidelines available; call extract_guideline first"))
		}

		total := len(p.Assets)
		var done atomic.Int64
		s.notifyProgress(0, total)

		costBefore, durBefore := engine.Costs.Snapshot()
		outcomes := engine.Aggregator.EvaluateAssetsFunc(context.Background(), p.Assets, guidelines,
			func(eval.BatchOutcome) {
				s.notifyProgress(int(done.Add(1)), total)
			})
		costAfter, durAfter := engine.Costs.Snapshot()

		result := &types.EvaluateBatchResult{
			Evaluations:     []types.AssetEvaluation{},
			Failed:          []types.BatchFailure{},
			TotalCost:       costAfter - costBefore,
			TotalDurationMS: durAfter - durBefore,
		}
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				result.Failed = append(result.Failed, types.BatchFailure{
					AssetID: outcome.AssetID,
					Error:   outcome.Err.Error(),
				})
				continue
			}
			result.Evaluations = append(result.Evaluations, *outcome.Evaluation)
		}

		sess.IncrementAssets(len(result.Evaluations))

		return result, nil
	}
}

// evaluationRPCError maps pipeline failures onto protocol error codes.
func evaluationRPCError(err error) *types.RPCError {
	var cle *eval.CostLimitError
	if errors.As(err, &cle) {
		return types.NewRPCError(
			types.ErrProviderError,
			cle.Error(),
			types.ErrTypeProviderError,
			false,
			"raise BRANDALIGN_MAX_COST or evaluate fewer assets per batch",
		)
	}
	return types.NewRPCError(
		types.ErrEvaluationError,
		fmt.Sprintf("evaluation failed: %v", err),
		types.ErrTypeEvaluationError,
		true,
		"check model provider availability and retry",
	)
}

func handleResolveUser(engine *Engine) Handler {
	return func(sess *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(sess, "resolve_user"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.ResolveUserParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, invalidParams("resolve_user", err)
			}
		}
		if p.AccessToken != "" {
			sess.Store().Set("temp:"+engine.AuthConfig.AuthIDKey, p.AccessToken)
		}

		userID, err := engine.Auth.UserID(context.Background(), sess.Store(), sess.ID())
		if err != nil {
			var pending *auth.PendingAuthError
			if errors.As(err, &pending) {
				return nil, types.NewRPCError(
					types.ErrAuthPending,
					"authorization pending: no access token in session",
					types.ErrTypeAuthPending,
					true,
					pending.AuthURI,
				)
			}
			return nil, types.NewRPCError(
				types.ErrSessionError,
				fmt.Sprintf("resolving user identity: %v", err),
				types.ErrTypeSessionError,
				true,
				"check the access token and userinfo endpoint availability",
			)
		}

		return &types.ResolveUserResult{UserID: userID}, nil
	}
}

func handleSavePlan(sess *Session, params json.RawMessage) (any, *types.RPCError) {
	if rpcErr := requireInitialized(sess, "save_plan"); rpcErr != nil {
		return nil, rpcErr
	}

	var p types.SavePlanParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("save_plan", err)
	}

	if err := session.SavePlan(sess.Store(), p.GuidelineFiles, p.AssetFiles, p.AdditionalGuidance); err != nil {
		return nil, invalidParams("save_plan", err)
	}

	return &types.SavePlanResult{Saved: true}, nil
}

func handleGenerateReport(engine *Engine) Handler {
	return func(sess *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(sess, "generate_report"); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.GenerateReportParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("generate_report", err)
		}

		cost, durationMS := engine.Costs.Snapshot()

		switch p.Format {
		case "json":
			data, err := report.GenerateJSONReport([]types.AssetEvaluation{p.Evaluation}, cost, durationMS)
			if err != nil {
				return nil, reportRPCError(err)
			}
			return &types.GenerateReportResult{ContentType: "application/json", Data: data}, nil

		case "markdown":
			var buf bytes.Buffer
			err := report.GenerateMarkdown(&buf, &report.MarkdownReport{
				RunAt:       time.Now(),
				Evaluations: []types.AssetEvaluation{p.Evaluation},
				TotalCost:   cost,
				DurationMS:  durationMS,
			})
			if err != nil {
				return nil, reportRPCError(err)
			}
			return &types.GenerateReportResult{ContentType: "text/markdown", Data: buf.Bytes()}, nil

		case "chart":
			data, err := report.Chart(&p.Evaluation)
			if err != nil {
				return nil, reportRPCError(err)
			}
			if data == nil {
				return nil, invalidParams("generate_report", errors.New("evaluation has no categorized verdicts to chart"))
			}
			return &types.GenerateReportResult{ContentType: "image/png", Data: data}, nil

		default:
			return nil, invalidParams("generate_report", fmt.Errorf("unknown format %q", p.Format))
		}
	}
}

func reportRPCError(err error) *types.RPCError {
	return types.NewRPCError(
		types.ErrEngineError,
		fmt.Sprintf("report generation failed: %v", err),
		types.ErrTypeEngineError,
		false,
		"internal error while rendering the report",
	)
}

// progressNotification is sent between responses while a batch is running.
type progressNotification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  progressParams `json:"params"`
}

type progressParams struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Bar       string `json:"bar"`
}

func (s *Server) notifyProgress(completed, total int) {
	percent := report.WeightedProgress(0, 0, total, completed)
	s.writeNotification(&progressNotification{
		JSONRPC: "2.0",
		Method:  "progress",
		Params: progressParams{
			Completed: completed,
			Total:     total,
			Percent:   percent,
			Bar:       report.TextProgressBar(percent, 10),
		},
	})
}

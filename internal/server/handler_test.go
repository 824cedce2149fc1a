package server

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brandalign/engine/internal/auth"
	"github.com/brandalign/engine/internal/eval"
	"github.com/brandalign/engine/internal/guideline"
	"github.com/brandalign/engine/internal/llm"
	"github.com/brandalign/engine/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// guidelineJSON is a schema-valid extraction response with fixed ids so the
// grading responses below can reference stable rubric keys.
const guidelineJSON = `{
	"guideline_id": "g1",
	"name": "Logo Usage",
	"description": "Rules for logo placement and color",
	"applicable_categories": ["IMAGE"],
	"criteria": [
		{"criterion_id": "c1", "name": "Placement", "criterion_value": "Logo in the top-left corner", "severity": "BLOCKER", "category": "Logo"},
		{"criterion_id": "c2", "name": "Palette", "criterion_value": "Use only approved brand colors", "severity": "WARNING", "category": "Color"}
	]
}`

func testEngine(t *testing.T, responses []*llm.CompletionResponse) (*Engine, *llm.MockProvider) {
	t.Helper()

	store, err := guideline.Open(filepath.Join(t.TempDir(), "guidelines.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mock := llm.NewMockProvider(responses, nil)
	extractor, err := guideline.NewExtractor(mock, discardLogger())
	if err != nil {
		t.Fatalf("creating extractor: %v", err)
	}

	costs := eval.NewCostTracker(0)
	grader := eval.NewLLMGrader(mock, costs, discardLogger())
	aggregator := eval.NewAggregator(
		eval.NewFilter(mock, costs, discardLogger()),
		eval.NewEvaluator(grader, discardLogger()),
		2,
		discardLogger(),
	)

	return &Engine{
		Extractor:  extractor,
		Store:      store,
		Aggregator: aggregator,
		Costs:      costs,
		Logger:     discardLogger(),
	}, mock
}

// newTestServer starts a server over pipes and returns its stdin writer and
// a scanner over its stdout.
func newTestServer(t *testing.T, engine *Engine) (io.Writer, *bufio.Scanner) {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	s := New(inR, outW, discardLogger())
	RegisterHandlers(s, engine)
	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() { _ = inW.Close() })

	scanner := bufio.NewScanner(outR)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	return inW, scanner
}

func sendRequest(t *testing.T, stdin io.Writer, id int64, method string, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	req := types.Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	line, err := json.Marshal(&req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if _, err := stdin.Write(append(line, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

// readResponse returns the next response line, skipping progress
// notifications (lines carrying a method instead of a result or error).
func readResponse(t *testing.T, stdout *bufio.Scanner) *types.Response {
	t.Helper()
	for stdout.Scan() {
		line := stdout.Bytes()
		var peek struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(line, &peek); err == nil && peek.Method != "" {
			continue
		}
		var resp types.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", line, err)
		}
		return &resp
	}
	t.Fatalf("no response line: %v", stdout.Err())
	return nil
}

func initializeParams() types.InitializeParams {
	return types.InitializeParams{
		SDKName:         "test-sdk",
		SDKVersion:      "0.0.1",
		ProtocolVersion: protocolVersion,
	}
}

// initServer boots a server over engine, performs the initialize handshake,
// and returns send/recv funcs ready for subsequent calls.
func initServer(t *testing.T, engine *Engine) (send func(id int64, method string, params any), recv func() *types.Response) {
	t.Helper()
	stdin, stdout := newTestServer(t, engine)

	sendRequest(t, stdin, 1, "initialize", initializeParams())
	resp := readResponse(t, stdout)
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}

	send = func(id int64, method string, params any) {
		sendRequest(t, stdin, id, method, params)
	}
	recv = func() *types.Response {
		return readResponse(t, stdout)
	}
	return send, recv
}

func TestHandler_Initialize(t *testing.T) {
	engine, _ := testEngine(t, nil)
	stdin, stdout := newTestServer(t, engine)

	sendRequest(t, stdin, 1, "initialize", initializeParams())
	resp := readResponse(t, stdout)
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}

	var result types.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Compatible {
		t.Error("expected compatible session")
	}
	caps := strings.Join(result.Capabilities, ",")
	for _, want := range []string{"guideline_extraction", "asset_evaluation", "batch_evaluation", "reporting"} {
		if !strings.Contains(caps, want) {
			t.Errorf("capabilities missing %q: %v", want, result.Capabilities)
		}
	}
	if result.MaxAssetsPerBatch != maxAssetsPerBatch {
		t.Errorf("max_assets_per_batch = %d", result.MaxAssetsPerBatch)
	}

	// Double initialize is a session error.
	sendRequest(t, stdin, 2, "initialize", initializeParams())
	resp = readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeSessionError {
		t.Errorf("expected session error on second initialize, got %+v", resp.Error)
	}
}

func TestHandler_Initialize_ProtocolMismatch(t *testing.T) {
	engine, _ := testEngine(t, nil)
	stdin, stdout := newTestServer(t, engine)

	p := initializeParams()
	p.ProtocolVersion = 99
	sendRequest(t, stdin, 1, "initialize", p)
	resp := readResponse(t, stdout)
	if resp.Error == nil {
		t.Fatal("expected protocol version error")
	}
}

func TestHandler_RequiresInitialize(t *testing.T) {
	engine, _ := testEngine(t, nil)
	stdin, stdout := newTestServer(t, engine)

	sendRequest(t, stdin, 1, "evaluate_asset", types.EvaluateAssetParams{
		Asset: types.Asset{AssetID: "a1", AssetURI: "gs://b/a.png"},
	})
	resp := readResponse(t, stdout)
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeSessionError {
		t.Errorf("expected session error, got %+v", resp.Error)
	}
}

func TestHandler_MethodNotFound(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "no_such_method", struct{}{})
	resp := recv()
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestHandler_ExtractGuideline(t *testing.T) {
	engine, _ := testEngine(t, []*llm.CompletionResponse{
		{Content: guidelineJSON, Cost: 0.001},
	})
	send, recv := initServer(t, engine)

	send(2, "extract_guideline", types.ExtractGuidelineParams{
		FileURI:  "gs://brand/logo-guide.pdf",
		MIMEType: "application/pdf",
	})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("extract_guideline failed: %+v", resp.Error)
	}

	var result types.ExtractGuidelineResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Guideline.GuidelineID != "g1" || len(result.Guideline.Criteria) != 2 {
		t.Errorf("guideline = %+v", result.Guideline)
	}
	if result.Guideline.FileURI != "gs://brand/logo-guide.pdf" {
		t.Errorf("file_uri = %q", result.Guideline.FileURI)
	}
}

func TestHandler_ExtractGuideline_MissingURI(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "extract_guideline", types.ExtractGuidelineParams{})
	resp := recv()
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}
}

// scriptFullFlow configures mock so each pipeline stage gets a matching
// response regardless of call order: extraction requests carry a schema,
// grading requests carry the asset file, filter requests carry neither.
func scriptFullFlow(mock *llm.MockProvider, gradeVerdict string) {
	mock.MatchFunc = func(req *llm.CompletionRequest) *llm.CompletionResponse {
		switch {
		case req.Schema != nil:
			return &llm.CompletionResponse{Content: guidelineJSON, Cost: 0.002}
		case req.File != nil:
			return &llm.CompletionResponse{Content: `{"verdicts": {
				"q_g1_c1": {"verdict": "` + gradeVerdict + `", "justification": "j"},
				"q_g1_c2": {"verdict": "` + gradeVerdict + `", "justification": "j"}
			}}`, Cost: 0.003}
		default:
			return &llm.CompletionResponse{Content: `{"relevant_criterion_ids": ["c1", "c2"]}`, Cost: 0.001}
		}
	}
}

func TestHandler_EvaluateAsset_FullFlow(t *testing.T) {
	engine, mock := testEngine(t, nil)
	scriptFullFlow(mock, "yes")
	send, recv := initServer(t, engine)

	send(2, "extract_guideline", types.ExtractGuidelineParams{FileURI: "gs://brand/guide.pdf"})
	if resp := recv(); resp.Error != nil {
		t.Fatalf("extract_guideline failed: %+v", resp.Error)
	}

	send(3, "evaluate_asset", types.EvaluateAssetParams{
		Asset: types.Asset{
			AssetID: "a1", AssetURI: "gs://brand/hero.png", AssetName: "hero.png",
			AssetPrompt: "hero banner", Category: types.CategoryImage,
		},
	})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("evaluate_asset failed: %+v", resp.Error)
	}

	var result types.EvaluateAssetResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Evaluation.FinalScore != 1.0 {
		t.Errorf("final_score = %f, want 1.0", result.Evaluation.FinalScore)
	}
	if len(result.Evaluation.GuidelineVerdicts) != 2 {
		t.Errorf("expected 2 guideline verdicts, got %d", len(result.Evaluation.GuidelineVerdicts))
	}
	if result.TotalCost <= 0 {
		t.Errorf("total_cost = %f, want > 0", result.TotalCost)
	}
}

func TestHandler_EvaluateAsset_NoGuidelines(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "evaluate_asset", types.EvaluateAssetParams{
		Asset: types.Asset{AssetID: "a1", AssetURI: "gs://b/a.png"},
	})
	resp := recv()
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeInvalidParams {
		t.Errorf("expected invalid params without guidelines, got %+v", resp.Error)
	}
}

func TestHandler_EvaluateBatch(t *testing.T) {
	engine, mock := testEngine(t, nil)
	scriptFullFlow(mock, "yes")
	send, recv := initServer(t, engine)

	send(2, "extract_guideline", types.ExtractGuidelineParams{FileURI: "gs://brand/guide.pdf"})
	if resp := recv(); resp.Error != nil {
		t.Fatalf("extract_guideline failed: %+v", resp.Error)
	}

	send(3, "evaluate_batch", types.EvaluateBatchParams{
		Assets: []types.Asset{
			{AssetID: "a1", AssetURI: "gs://b/1.png", Category: types.CategoryImage},
			{AssetID: "a2", AssetURI: "gs://b/2.png", Category: types.CategoryImage},
		},
	})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("evaluate_batch failed: %+v", resp.Error)
	}

	var result types.EvaluateBatchResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Evaluations) != 2 || len(result.Failed) != 0 {
		t.Errorf("evaluations/failed = %d/%d", len(result.Evaluations), len(result.Failed))
	}
	for _, ev := range result.Evaluations {
		if ev.FinalScore != 1.0 {
			t.Errorf("asset %s final_score = %f, want 1.0", ev.AssetID, ev.FinalScore)
		}
	}
}

func TestHandler_EvaluateBatch_EmptyAssets(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "evaluate_batch", types.EvaluateBatchParams{})
	resp := recv()
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}
}

func TestHandler_SavePlan(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "save_plan", types.SavePlanParams{
		GuidelineFiles:     []string{"gs://brand/guide.pdf"},
		AssetFiles:         []string{"gs://brand/hero.png"},
		AdditionalGuidance: "focus on logo usage",
	})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("save_plan failed: %+v", resp.Error)
	}

	var result types.SavePlanResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Saved {
		t.Error("expected saved = true")
	}

	// An empty plan is rejected.
	send(3, "save_plan", types.SavePlanParams{})
	resp = recv()
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeInvalidParams {
		t.Errorf("expected invalid params for empty plan, got %+v", resp.Error)
	}
}

func TestHandler_GenerateReport(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	evaluation := types.AssetEvaluation{
		AssetID:   "a1",
		AssetName: "hero.png",
		GuidelineVerdicts: []types.GuidelineVerdict{
			{GuidelineID: "g1", MeanScore: 1.0, Verdicts: []types.CriterionVerdict{
				{CriterionID: "c1", GTAnswer: "yes", Verdict: "yes", Category: "Logo", GuidelineID: "g1"},
			}},
		},
		FinalScore: 1.0,
	}

	send(2, "generate_report", types.GenerateReportParams{Format: "markdown", Evaluation: evaluation})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("generate_report failed: %+v", resp.Error)
	}
	var result types.GenerateReportResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ContentType != "text/markdown" || !strings.Contains(string(result.Data), "hero.png") {
		t.Errorf("markdown report = %q %q", result.ContentType, result.Data)
	}

	send(3, "generate_report", types.GenerateReportParams{Format: "json", Evaluation: evaluation})
	resp = recv()
	if resp.Error != nil {
		t.Fatalf("generate_report failed: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ContentType != "application/json" {
		t.Errorf("content_type = %q", result.ContentType)
	}

	send(4, "generate_report", types.GenerateReportParams{Format: "chart", Evaluation: evaluation})
	resp = recv()
	if resp.Error != nil {
		t.Fatalf("generate_report failed: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ContentType != "image/png" || len(result.Data) == 0 {
		t.Errorf("chart report = %q, %d bytes", result.ContentType, len(result.Data))
	}

	send(5, "generate_report", types.GenerateReportParams{Format: "pdf", Evaluation: evaluation})
	resp = recv()
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeInvalidParams {
		t.Errorf("expected invalid params for unknown format, got %+v", resp.Error)
	}
}

// withAuth attaches an auth resolver backed by a stub userinfo endpoint.
func withAuth(t *testing.T, engine *Engine, email string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email": "` + email + `"}`))
	}))
	t.Cleanup(srv.Close)

	cfg := &auth.Config{
		AuthIDKey:   "oauth_access_token",
		ClientID:    "client-1",
		AuthURI:     "https://auth.example.com/authorize",
		TokenURI:    "https://auth.example.com/token",
		UserInfoURI: srv.URL,
	}
	resolver, err := auth.NewResolver(cfg, srv.Client(), discardLogger())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	engine.Auth = resolver
	engine.AuthConfig = cfg
}

func TestHandler_ResolveUser(t *testing.T) {
	engine, _ := testEngine(t, nil)
	withAuth(t, engine, "ada@example.com")
	send, recv := initServer(t, engine)

	send(2, "resolve_user", types.ResolveUserParams{AccessToken: "tok-1"})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("resolve_user failed: %+v", resp.Error)
	}

	var result types.ResolveUserResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := base64.StdEncoding.EncodeToString([]byte("ada@example.com"))
	if result.UserID != want {
		t.Errorf("user_id = %q, want %q", result.UserID, want)
	}

	// Second call resolves from the session cache, no token needed.
	send(3, "resolve_user", types.ResolveUserParams{})
	resp = recv()
	if resp.Error != nil {
		t.Fatalf("cached resolve_user failed: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.UserID != want {
		t.Errorf("cached user_id = %q, want %q", result.UserID, want)
	}
}

func TestHandler_ResolveUser_PendingAuth(t *testing.T) {
	engine, _ := testEngine(t, nil)
	withAuth(t, engine, "ada@example.com")
	send, recv := initServer(t, engine)

	// No token anywhere in session state: the caller must run the flow.
	send(2, "resolve_user", types.ResolveUserParams{})
	resp := recv()
	if resp.Error == nil || resp.Error.Data.ErrorType != types.ErrTypeAuthPending {
		t.Fatalf("expected auth pending, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Data.Detail, "auth.example.com") {
		t.Errorf("expected authorization URI in detail, got %q", resp.Error.Data.Detail)
	}
}

func TestHandler_ResolveUser_NotRegisteredWithoutAuth(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "resolve_user", types.ResolveUserParams{AccessToken: "tok-1"})
	resp := recv()
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("expected method-not-found without auth config, got %+v", resp.Error)
	}
}

func TestHandler_Shutdown(t *testing.T) {
	engine, _ := testEngine(t, nil)
	send, recv := initServer(t, engine)

	send(2, "shutdown", struct{}{})
	resp := recv()
	if resp.Error != nil {
		t.Fatalf("shutdown failed: %+v", resp.Error)
	}

	var result types.ShutdownResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.SessionsCompleted != 1 {
		t.Errorf("sessions_completed = %d", result.SessionsCompleted)
	}
}

package guideline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/brandalign/engine/internal/llm"
	"github.com/brandalign/engine/pkg/types"
)

const extractionSystemPrompt = `You are a brand guideline analyst. Extract the brand rules from the
attached document into the requested JSON structure. Each criterion must be a single checkable
rule with a severity of WARNING or BLOCKER and a short free-text category label.`

const extractionInstruction = `Extract the brand guideline from the attached document.`

// Extractor turns a guideline document into a structured Guideline with one
// generative call. The model's response is revalidated against the extraction
// schema before it is adopted; an unusable guideline must surface as an error
// rather than silently degrade downstream scores.
type Extractor struct {
	provider llm.Provider
	schema   *jsonschema.Schema
	logger   *slog.Logger
}

// NewExtractor creates an Extractor using the given provider.
func NewExtractor(provider llm.Provider, logger *slog.Logger) (*Extractor, error) {
	schema, err := compileGuidelineSchema()
	if err != nil {
		return nil, err
	}
	return &Extractor{provider: provider, schema: schema, logger: logger}, nil
}

// Extract sends the document at fileURI to the model and returns the parsed
// Guideline. Failures wrap the underlying cause in *types.ExtractionError;
// the caller decides whether to retry, and should not retry more than once.
func (e *Extractor) Extract(ctx context.Context, fileURI, mimeType string) (*types.Guideline, error) {
	req := &llm.CompletionRequest{
		SystemPrompt: extractionSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: extractionInstruction}},
		File:         &llm.FileData{URI: fileURI, MIMEType: mimeType},
		Schema:       []byte(guidelineSchemaJSON),
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return nil, &types.ExtractionError{FileURI: fileURI, Err: err}
	}

	// Structured output is still model output: revalidate before trusting it.
	var doc any
	if err := json.Unmarshal([]byte(resp.Content), &doc); err != nil {
		return nil, &types.ExtractionError{FileURI: fileURI, Err: err}
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, &types.ExtractionError{FileURI: fileURI, Err: err}
	}

	var g types.Guideline
	if err := json.Unmarshal([]byte(resp.Content), &g); err != nil {
		return nil, &types.ExtractionError{FileURI: fileURI, Err: err}
	}

	g.FileURI = fileURI
	g.EnsureIDs()

	e.logger.Info("extracted guideline",
		"guideline_id", g.GuidelineID,
		"name", g.Name,
		"criteria", len(g.Criteria),
		"file_uri", fileURI)

	return &g, nil
}

package llm

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Client is the uniform completion interface every provider implementation
// satisfies.
type Client interface {
	Complete(ctx context.Context, req rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error)
}

// GenAIClient implements Client against Google's Gemini API via the genai
// SDK, the same client construction the embedding engine uses.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient constructs a completion client. model is the default used
// when a CompletionRequest leaves Model empty.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, rlmerrors.New(rlmerrors.KindConfig, "GenAI API key is required")
	}
	if model == "" {
		model = "gemini-3-flash-preview"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, rlmerrors.Provider("gemini", 0, "failed to create GenAI client", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

// Complete issues req against the Gemini API, folding req.System and
// req.Messages into a single content list and translating GenAI's usage
// metadata into rlmtypes.Usage.
func (c *GenAIClient) Complete(ctx context.Context, req rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	logging.Get(logging.CategoryLLM).Debug("GenAIClient.Complete: model=%s messages=%d", model, len(req.Messages))

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == rlmtypes.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = req.Stop
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	latency := time.Since(start)

	if err != nil {
		logging.Get(logging.CategoryLLM).Error("GenAIClient.Complete: request failed after %v: %v", latency, err)
		return rlmtypes.CompletionResponse{}, rlmerrors.Provider("gemini", 0, "completion request failed", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return rlmtypes.CompletionResponse{}, rlmerrors.Provider("gemini", 0, "empty response: no candidates", nil)
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		text += part.Text
	}

	usage := rlmtypes.Usage{}
	if result.UsageMetadata != nil {
		usage.Input = int(result.UsageMetadata.PromptTokenCount)
		usage.Output = int(result.UsageMetadata.CandidatesTokenCount)
		usage.CacheRead = int(result.UsageMetadata.CachedContentTokenCount)
	}

	stopReason := rlmtypes.StopEndTurn
	if result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		stopReason = rlmtypes.StopMaxTokens
	}

	logging.Get(logging.CategoryLLM).Debug("GenAIClient.Complete: completed in %v, input=%d output=%d",
		latency, usage.Input, usage.Output)

	return rlmtypes.CompletionResponse{
		Model:      model,
		Content:    text,
		StopReason: stopReason,
		Usage:      usage,
		Timestamp:  time.Now(),
	}, nil
}

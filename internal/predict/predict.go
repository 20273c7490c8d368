// Package predict implements typed signature-bound model calls (Predict)
// and their two composition primitives, Chain and Parallel.
package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rlm-systems/rlm-runtime/internal/llm"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
	"github.com/rlm-systems/rlm-runtime/internal/signature"
)

// Demonstration is a single few-shot example injected as a prior
// user/assistant turn pair ahead of the real input.
type Demonstration struct {
	Inputs  map[string]interface{}
	Outputs map[string]interface{}
}

// Predict binds a Signature to an LLM client: Forward renders the
// signature's prompt, invokes the model, and parses the response into a
// typed output map, retrying on parse or transport failure.
type Predict struct {
	signature      rlmtypes.Signature
	client         llm.Client
	model          string
	maxRetries     int
	temperature    float64
	maxTokens      int
	demonstrations []Demonstration
	chainOfThought bool
}

// New constructs a Predict module bound to sig, calling model via client.
// maxRetries defaults to 1 (a single attempt, no retry) if left at 0.
func New(sig rlmtypes.Signature, client llm.Client, model string) *Predict {
	return &Predict{signature: sig, client: client, model: model, maxRetries: 1, maxTokens: 2048}
}

// WithDemonstrations attaches few-shot examples, rendered as alternating
// user/assistant turns ahead of the real input.
func (p *Predict) WithDemonstrations(demos ...Demonstration) *Predict {
	p.demonstrations = demos
	return p
}

// WithMaxRetries sets how many attempts Forward makes before surfacing the
// last error (clamped to at least 1).
func (p *Predict) WithMaxRetries(n int) *Predict {
	if n < 1 {
		n = 1
	}
	p.maxRetries = n
	return p
}

// WithChainOfThought relaxes the output-format requirement: when enabled,
// the model may emit reasoning text before the final JSON object instead
// of a JSON-only response.
func (p *Predict) WithChainOfThought(enabled bool) *Predict {
	p.chainOfThought = enabled
	return p
}

// WithTemperature overrides the completion temperature (default 0).
func (p *Predict) WithTemperature(t float64) *Predict {
	p.temperature = t
	return p
}

// Signature returns the bound signature, e.g. for chain_direct field
// compatibility checks.
func (p *Predict) Signature() rlmtypes.Signature {
	return p.signature
}

// Forward renders the prompt, calls the model, and parses+validates the
// response against the signature's output fields. Parse and transport
// failures are retried up to maxRetries; the last error is surfaced.
func (p *Predict) Forward(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	req := rlmtypes.CompletionRequest{
		Model:       p.model,
		System:      p.buildSystemPrompt(),
		Messages:    p.buildMessages(inputs),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		resp, err := p.client.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		parsed, err := extractJSON(resp.Content)
		if err != nil {
			lastErr = rlmerrors.Wrap(rlmerrors.KindSerialization, "failed to parse model output as JSON", err)
			continue
		}
		signature.ApplyDefaults(parsed, p.signature.Outputs)
		if errs := signature.Validate(parsed, p.signature.Outputs); len(errs) > 0 {
			lastErr = rlmerrors.Wrap(rlmerrors.KindValidation, "model output failed signature validation", errs)
			continue
		}
		return parsed, nil
	}
	return nil, lastErr
}

func (p *Predict) buildSystemPrompt() string {
	var b strings.Builder
	if p.signature.Instruction != "" {
		b.WriteString(p.signature.Instruction)
		b.WriteString("\n\n")
	}

	b.WriteString("Input fields:\n")
	for _, f := range p.signature.Inputs {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, signature.PromptHint(f), f.Description)
	}

	b.WriteString("\nOutput fields:\n")
	for _, f := range p.signature.Outputs {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, signature.PromptHint(f), f.Description)
	}

	if p.chainOfThought {
		b.WriteString("\nThink step by step, then respond with a final JSON object matching the output fields above.")
	} else {
		b.WriteString("\nRespond with a single JSON object matching the output fields above, and nothing else.")
	}
	return b.String()
}

func (p *Predict) buildMessages(inputs map[string]interface{}) []rlmtypes.Message {
	messages := make([]rlmtypes.Message, 0, len(p.demonstrations)*2+1)
	for _, demo := range p.demonstrations {
		messages = append(messages,
			rlmtypes.Message{Role: rlmtypes.RoleUser, Content: renderInput(demo.Inputs)},
			rlmtypes.Message{Role: rlmtypes.RoleAssistant, Content: renderJSON(demo.Outputs)},
		)
	}
	messages = append(messages, rlmtypes.Message{Role: rlmtypes.RoleUser, Content: renderInput(inputs)})
	return messages
}

func renderInput(inputs map[string]interface{}) string {
	return renderJSON(inputs)
}

func renderJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// extractJSON parses s as a JSON object, tolerating chain-of-thought
// reasoning text before the final object by locating the last balanced
// `{...}` span in s if a direct parse fails.
func extractJSON(s string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(s)
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, nil
	}

	start := strings.Index(trimmed, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	for i := start; i < len(trimmed); i++ {
		switch trimmed[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := trimmed[start : i+1]
				if err := json.Unmarshal([]byte(candidate), &out); err == nil {
					return out, nil
				}
				return nil, fmt.Errorf("malformed JSON object in response")
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}

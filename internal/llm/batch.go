package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// BatchedQuery is a set of prompts to execute concurrently against one
// Client, each with an optional system-context override.
type BatchedQuery struct {
	Prompts     []string
	Contexts    []*string // kept the same length as Prompts by AddPromptWithContext; nil entries use no extra context
	Model       string
	Temperature float64
	MaxTokens   int
	MaxParallel int
}

// NewBatchedQuery constructs an empty batch with the default parallelism.
func NewBatchedQuery() *BatchedQuery {
	return &BatchedQuery{MaxParallel: 5}
}

// AddPrompt appends a prompt with no extra context.
func (b *BatchedQuery) AddPrompt(prompt string) *BatchedQuery {
	return b.AddPromptWithContext(prompt, nil)
}

// AddPromptWithContext appends a prompt, padding Contexts to stay aligned
// with Prompts so every prompt has a corresponding (possibly nil) context.
func (b *BatchedQuery) AddPromptWithContext(prompt string, context *string) *BatchedQuery {
	b.Prompts = append(b.Prompts, prompt)
	for len(b.Contexts) < len(b.Prompts)-1 {
		b.Contexts = append(b.Contexts, nil)
	}
	b.Contexts = append(b.Contexts, context)
	return b
}

// WithMaxParallel clamps the requested parallelism to at least 1.
func (b *BatchedQuery) WithMaxParallel(n int) *BatchedQuery {
	if n < 1 {
		n = 1
	}
	b.MaxParallel = n
	return b
}

// BatchQueryResult is one prompt's outcome, keyed by its position in the
// originating BatchedQuery so results can be restored to input order after
// concurrent completion.
type BatchQueryResult struct {
	Index      int
	Success    bool
	Response   string
	Error      string
	TokensUsed int
}

func successResult(index int, response string, tokens int) BatchQueryResult {
	return BatchQueryResult{Index: index, Success: true, Response: response, TokensUsed: tokens}
}

func failureResult(index int, err error) BatchQueryResult {
	return BatchQueryResult{Index: index, Success: false, Error: err.Error()}
}

// BatchedQueryResults aggregates a batch's results in original input order
// along with derived success/failure counts and total token usage.
type BatchedQueryResults struct {
	Results      []BatchQueryResult
	SuccessCount int
	FailureCount int
	TotalTokens  int
}

func fromResults(results []BatchQueryResult) BatchedQueryResults {
	out := BatchedQueryResults{Results: make([]BatchQueryResult, len(results))}
	copy(out.Results, results)
	for i := range out.Results {
		for j := i + 1; j < len(out.Results); j++ {
			if out.Results[j].Index < out.Results[i].Index {
				out.Results[i], out.Results[j] = out.Results[j], out.Results[i]
			}
		}
	}
	for _, r := range out.Results {
		if r.Success {
			out.SuccessCount++
			out.TotalTokens += r.TokensUsed
		} else {
			out.FailureCount++
		}
	}
	return out
}

// Responses returns the successful responses in input order, dropping
// failures.
func (r BatchedQueryResults) Responses() []string {
	out := make([]string, 0, r.SuccessCount)
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res.Response)
		}
	}
	return out
}

// AllSucceeded reports whether every prompt in the batch completed
// successfully.
func (r BatchedQueryResults) AllSucceeded() bool {
	return r.FailureCount == 0 && len(r.Results) > 0
}

// Errors returns the error strings of every failed prompt, in input order.
func (r BatchedQueryResults) Errors() []string {
	out := make([]string, 0, r.FailureCount)
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res.Error)
		}
	}
	return out
}

// BatchExecutor runs a BatchedQuery against a Client with bounded
// concurrency: at most min(batch.MaxParallel, e.maxParallel) requests are
// in flight at once, via a counting semaphore.
type BatchExecutor struct {
	client      Client
	maxParallel int
}

// NewBatchExecutor constructs an executor whose own parallelism ceiling is
// maxParallel (clamped to at least 1); a batch's own MaxParallel can only
// narrow this further, never widen it.
func NewBatchExecutor(client Client, maxParallel int) *BatchExecutor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &BatchExecutor{client: client, maxParallel: maxParallel}
}

// Execute runs every prompt in batch concurrently and returns results in
// original index order. A single prompt's failure is captured in its
// BatchQueryResult and does not abort the rest of the batch.
func (e *BatchExecutor) Execute(ctx context.Context, batch *BatchedQuery) (BatchedQueryResults, error) {
	if len(batch.Prompts) == 0 {
		return BatchedQueryResults{}, nil
	}

	parallel := batch.MaxParallel
	if parallel < 1 {
		parallel = 1
	}
	if parallel > e.maxParallel {
		parallel = e.maxParallel
	}

	sem := make(chan struct{}, parallel)
	results := make([]BatchQueryResult, len(batch.Prompts))
	var wg sync.WaitGroup

	for i, prompt := range batch.Prompts {
		i, prompt := i, prompt
		var promptCtx *string
		if i < len(batch.Contexts) {
			promptCtx = batch.Contexts[i]
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			req := rlmtypes.CompletionRequest{
				Model:       batch.Model,
				Messages:    []rlmtypes.Message{{Role: rlmtypes.RoleUser, Content: prompt}},
				MaxTokens:   batch.MaxTokens,
				Temperature: batch.Temperature,
			}
			if promptCtx != nil {
				req.System = *promptCtx
			}

			resp, err := e.client.Complete(ctx, req)
			if err != nil {
				results[i] = failureResult(i, err)
				return
			}
			if resp.Content == "" {
				results[i] = failureResult(i, fmt.Errorf("empty response"))
				return
			}
			results[i] = successResult(i, resp.Content, resp.Usage.Input+resp.Usage.Output)
		}()
	}

	wg.Wait()
	return fromResults(results), nil
}

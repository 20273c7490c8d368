package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// fakeClient answers Complete deterministically from its prompt's content,
// failing for any prompt containing "fail".
type fakeClient struct {
	calls int
}

func (f *fakeClient) Complete(_ context.Context, req rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error) {
	f.calls++
	prompt := req.Messages[0].Content
	if contains(prompt, "fail") {
		return rlmtypes.CompletionResponse{}, fmt.Errorf("simulated failure for %q", prompt)
	}
	return rlmtypes.CompletionResponse{
		Content: "echo:" + prompt,
		Usage:   rlmtypes.Usage{Input: 10, Output: 5},
	}, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestBatchExecutor_PreservesInputOrder(t *testing.T) {
	batch := NewBatchedQuery()
	for i := 0; i < 10; i++ {
		batch.AddPrompt(fmt.Sprintf("prompt-%d", i))
	}

	exec := NewBatchExecutor(&fakeClient{}, 5)
	results, err := exec.Execute(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, results.Results, 10)
	for i, r := range results.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("echo:prompt-%d", i), r.Response)
	}
	assert.Equal(t, 10, results.SuccessCount)
	assert.Equal(t, 0, results.FailureCount)
	assert.True(t, results.AllSucceeded())
	assert.Equal(t, 150, results.TotalTokens)
}

func TestBatchExecutor_PartialFailureDoesNotAbortBatch(t *testing.T) {
	batch := NewBatchedQuery()
	batch.AddPrompt("ok-1")
	batch.AddPrompt("this will fail")
	batch.AddPrompt("ok-2")

	exec := NewBatchExecutor(&fakeClient{}, 3)
	results, err := exec.Execute(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, results.Results, 3)
	assert.Equal(t, 2, results.SuccessCount)
	assert.Equal(t, 1, results.FailureCount)
	assert.False(t, results.AllSucceeded())
	assert.False(t, results.Results[1].Success)
	assert.NotEmpty(t, results.Results[1].Error)
	assert.Len(t, results.Errors(), 1)
	assert.Len(t, results.Responses(), 2)
}

func TestBatchExecutor_ClampsParallelismToExecutorCeiling(t *testing.T) {
	batch := NewBatchedQuery().WithMaxParallel(100)
	for i := 0; i < 5; i++ {
		batch.AddPrompt(fmt.Sprintf("p-%d", i))
	}

	exec := NewBatchExecutor(&fakeClient{}, 2)
	results, err := exec.Execute(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 5, results.SuccessCount)
}

func TestBatchedQuery_AddPromptWithContextStaysAligned(t *testing.T) {
	batch := NewBatchedQuery()
	batch.AddPrompt("no context")
	ctxStr := "some context"
	batch.AddPromptWithContext("with context", &ctxStr)

	require.Len(t, batch.Contexts, 2)
	assert.Nil(t, batch.Contexts[0])
	assert.Equal(t, &ctxStr, batch.Contexts[1])
}

func TestBatchExecutor_EmptyBatchReturnsEmptyResults(t *testing.T) {
	exec := NewBatchExecutor(&fakeClient{}, 5)
	results, err := exec.Execute(context.Background(), NewBatchedQuery())
	require.NoError(t, err)
	assert.Empty(t, results.Results)
	assert.False(t, results.AllSucceeded())
}

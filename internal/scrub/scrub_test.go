package scrub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrub_RedactsCodeBlocksAndInlineCode(t *testing.T) {
	ctx := "Here is the fix:\n```go\nfunc main() {}\n```\nIt calls `os.Exit(1)` at the end."
	result := Scrub(ctx, DefaultOptions())

	assert.NotContains(t, result.Scrubbed, "func main()")
	assert.NotContains(t, result.Scrubbed, "os.Exit(1)")
	assert.Contains(t, result.Scrubbed, "[EVIDENCE REDACTED]")
}

func TestScrub_AggressiveModeUsesBarePlaceholder(t *testing.T) {
	ctx := "The value is 42."
	result := Scrub(ctx, Options{Aggressive: true, MinSignificantNumber: 2})

	assert.Contains(t, result.Scrubbed, "[REDACTED]")
	assert.NotContains(t, result.Scrubbed, "[EVIDENCE REDACTED]")
}

func TestScrub_LeavesInsignificantNumbersAlone(t *testing.T) {
	ctx := "Item 1 of 1 was updated."
	result := Scrub(ctx, Options{MinSignificantNumber: 10})

	assert.Equal(t, ctx, result.Scrubbed)
}

func TestScrub_RedactsSignificantNumbers(t *testing.T) {
	ctx := "Latency improved by 4500 milliseconds."
	result := Scrub(ctx, Options{MinSignificantNumber: 10})

	assert.NotContains(t, result.Scrubbed, "4500")
}

func TestScrub_CategoriesOptionRestrictsRedaction(t *testing.T) {
	ctx := "See /internal/sandbox/handle.go and the value 99."
	result := Scrub(ctx, Options{Categories: []Category{CategoryPathOrURL}})

	assert.NotContains(t, result.Scrubbed, "/internal/sandbox/handle.go")
	assert.Contains(t, result.Scrubbed, "99")
}

func TestScrub_DoesNotDoubleMaskFencedBlockInterior(t *testing.T) {
	ctx := "```\n`nested inline` text\n```"
	result := Scrub(ctx, DefaultOptions())

	assert.Equal(t, 1, strings.Count(result.Scrubbed, "[EVIDENCE REDACTED]"))
}

func TestPriorPrompt_AsksForProbabilityEstimate(t *testing.T) {
	prompt := PriorPrompt("scrubbed context", "the claim text")
	assert.Contains(t, prompt, "scrubbed context")
	assert.Contains(t, prompt, "the claim text")
	assert.Contains(t, prompt, "probability")
}

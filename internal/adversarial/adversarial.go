// Package adversarial implements the independent critic-model review loop:
// a strategy-weighted prompt asks a (normally different-provider) model to
// find problems with a proposed response, a fixed block-format parser
// reconstructs structured Issues from its prose, and iterative mode runs
// until no blocking issue remains or iterations are exhausted.
package adversarial

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/llm"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Bundle is everything the critic reviews.
type Bundle struct {
	Request         string
	Response        string
	CodeContext     string
	ToolOutputs     string
	PriorIterations []rlmtypes.Issue
	RelevantSpecs   string
}

// Strategy is a pluggable review lens: it contributes the categories it
// targets, a focus-area block appended to the system prompt, and an
// optional post-processing hook run over every issue it produced.
type Strategy struct {
	Name             string
	TargetCategories []rlmtypes.IssueCategory
	FocusPrompt      string
	PostProcess      func(rlmtypes.Issue) rlmtypes.Issue
}

// Critic strategy constructs. Each names itself via Name so findings can
// be traced back to the strategy that raised them.
func CriticStrategy() Strategy {
	return Strategy{
		Name:             "critic",
		TargetCategories: []rlmtypes.IssueCategory{rlmtypes.IssueLogicError, rlmtypes.IssueErrorHandling},
		FocusPrompt:      "Focus on logical correctness and unhandled error paths. Be skeptical of claims the response makes about its own correctness.",
	}
}

func EdgeCaseStrategy() Strategy {
	return Strategy{
		Name:             "edge_case",
		TargetCategories: []rlmtypes.IssueCategory{rlmtypes.IssueEdgeCase},
		FocusPrompt:      "Focus on boundary conditions: empty input, nil/zero values, off-by-one ranges, concurrent access, and resource exhaustion.",
	}
}

// SecurityStrategy's post-processor elevates every security finding to at
// least Medium severity and forces it blocking, regardless of what the
// critic reported.
func SecurityStrategy() Strategy {
	return Strategy{
		Name:             "security",
		TargetCategories: []rlmtypes.IssueCategory{rlmtypes.IssueSecurity},
		FocusPrompt:      "Focus on injection, auth/authz bypass, secret handling, and unsafe deserialization. Any finding here is high-stakes.",
		PostProcess: func(issue rlmtypes.Issue) rlmtypes.Issue {
			if issue.Category == rlmtypes.IssueSecurity {
				if !issue.Severity.AtLeast(rlmtypes.SeverityMedium) {
					issue.Severity = rlmtypes.SeverityMedium
				}
				issue.Blocking = true
			}
			return issue
		},
	}
}

func PerformanceStrategy() Strategy {
	return Strategy{
		Name:             "performance",
		TargetCategories: []rlmtypes.IssueCategory{rlmtypes.IssuePerformance},
		FocusPrompt:      "Focus on algorithmic complexity, unnecessary allocation, and blocking calls on hot paths.",
	}
}

func TestingStrategy() Strategy {
	return Strategy{
		Name:             "testing",
		TargetCategories: []rlmtypes.IssueCategory{rlmtypes.IssueTesting},
		FocusPrompt:      "Focus on missing or weak test coverage for the change, especially untested error branches.",
	}
}

func TraceabilityStrategy() Strategy {
	return Strategy{
		Name:             "traceability",
		TargetCategories: []rlmtypes.IssueCategory{rlmtypes.IssueTraceability},
		FocusPrompt:      "Focus on whether the response's claims are traceable to cited evidence, code, or spec sections.",
	}
}

// Config tunes a Validator's review loop.
type Config struct {
	MaxIterations int
	MinConfidence float64 // issues below this confidence are dropped
}

// DefaultConfig mirrors the spec's stated defaults: three iterations, no
// confidence floor.
func DefaultConfig() Config {
	return Config{MaxIterations: 3, MinConfidence: 0.0}
}

// Verdict is the outcome of a (possibly iterative) review.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// Result is the final outcome of RunIterative: the verdict, the
// deduplicated union of every issue raised across iterations, and how
// many iterations actually ran.
type Result struct {
	Verdict    Verdict
	Issues     []rlmtypes.Issue
	Iterations int
}

// Validator runs a critic model against a Bundle using one or more
// Strategies and reconstructs Issues from its structured prose response.
type Validator struct {
	client     llm.Client
	model      string
	strategies []Strategy
	cfg        Config
	bus        *eventbus.Bus
}

// New constructs a Validator. client is expected to be configured against
// a different provider than the one that produced the response under
// review, so the critique is genuinely independent.
func New(client llm.Client, model string, strategies []Strategy, cfg Config, bus *eventbus.Bus) *Validator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	return &Validator{client: client, model: model, strategies: strategies, cfg: cfg, bus: bus}
}

// reviewSystemPrompt is shared by every strategy's request in a Review
// round, so a single BatchedQuery can carry it once via AddPromptWithContext.
const reviewSystemPrompt = "You are an independent adversarial reviewer. Your job is to find real problems, not to be agreeable."

// Review runs every configured strategy against bundle concurrently (via
// an llm.BatchExecutor, one prompt per strategy) and returns the combined,
// confidence-filtered issue set (not deduplicated across iterations; see
// RunIterative for that).
func (v *Validator) Review(ctx context.Context, bundle Bundle) ([]rlmtypes.Issue, error) {
	if len(v.strategies) == 0 {
		return nil, nil
	}

	batch := llm.NewBatchedQuery().WithMaxParallel(len(v.strategies))
	batch.Model = v.model
	sys := reviewSystemPrompt
	for _, strat := range v.strategies {
		batch.AddPromptWithContext(buildPrompt(bundle, strat), &sys)
		if v.bus != nil {
			v.bus.Publish(rlmtypes.EventLLMRequest, 0, strat.Name, map[string]interface{}{"component": "adversarial"})
		}
	}

	executor := llm.NewBatchExecutor(v.client, len(v.strategies))
	results, err := executor.Execute(ctx, batch)
	if err != nil {
		return nil, err
	}

	var all []rlmtypes.Issue
	for i, strat := range v.strategies {
		res := results.Results[i]
		if !res.Success {
			return nil, rlmerrors.Wrap(rlmerrors.KindProviderError, "adversarial strategy "+strat.Name+" failed", fmt.Errorf("%s", res.Error))
		}
		all = append(all, v.issuesFromResponse(res.Response, strat)...)
	}
	return all, nil
}

func (v *Validator) issuesFromResponse(content string, strat Strategy) []rlmtypes.Issue {
	issues := parseIssues(content)
	var out []rlmtypes.Issue
	for _, issue := range issues {
		if issue.Confidence < v.cfg.MinConfidence {
			continue
		}
		issue.Category = pickCategory(issue.Category, strat)
		issue.ID = uuid.NewString()
		if strat.PostProcess != nil {
			issue = strat.PostProcess(issue)
		}
		if v.bus != nil {
			v.bus.Publish(rlmtypes.EventAdversarialIssue, 0, issue.ID, map[string]interface{}{
				"strategy": strat.Name,
				"severity": string(issue.Severity),
				"blocking": issue.Blocking,
			})
		}
		out = append(out, issue)
		logging.AdversarialDebug("strategy %s raised %s issue %q (blocking=%v)", strat.Name, issue.Severity, issue.Title, issue.Blocking)
	}
	return out
}

// pickCategory assigns the strategy's sole target category when the
// parsed category didn't land on one of the strategy's own categories
// (a critic frequently just writes prose, not the exact category token).
func pickCategory(parsed rlmtypes.IssueCategory, strat Strategy) rlmtypes.IssueCategory {
	if parsed != "" {
		for _, c := range strat.TargetCategories {
			if c == parsed {
				return parsed
			}
		}
	}
	if len(strat.TargetCategories) > 0 {
		return strat.TargetCategories[0]
	}
	return parsed
}

// RunIterative runs up to cfg.MaxIterations rounds of Review, feeding
// each round's issues back into the bundle as "prior iterations" context
// and de-duplicating by title across rounds. It stops early once a round
// raises no blocking issue.
func (v *Validator) RunIterative(ctx context.Context, bundle Bundle) (Result, error) {
	seen := make(map[string]bool)
	var all []rlmtypes.Issue

	iteration := 0
	for ; iteration < v.cfg.MaxIterations; iteration++ {
		issues, err := v.Review(ctx, bundle)
		if err != nil {
			return Result{}, err
		}

		blockingThisRound := false
		for _, issue := range issues {
			if issue.Blocking {
				blockingThisRound = true
			}
			key := strings.ToLower(strings.TrimSpace(issue.Title))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, issue)
		}

		if !blockingThisRound {
			return Result{Verdict: VerdictApproved, Issues: all, Iterations: iteration + 1}, nil
		}

		bundle.PriorIterations = all
	}

	return Result{Verdict: VerdictRejected, Issues: all, Iterations: iteration}, nil
}

func buildPrompt(bundle Bundle, strat Strategy) string {
	var sb strings.Builder

	sb.WriteString("REQUEST:\n")
	sb.WriteString(bundle.Request)
	sb.WriteString("\n\nRESPONSE UNDER REVIEW:\n")
	sb.WriteString(bundle.Response)

	if bundle.CodeContext != "" {
		sb.WriteString("\n\nCODE CONTEXT:\n")
		sb.WriteString(bundle.CodeContext)
	}
	if bundle.ToolOutputs != "" {
		sb.WriteString("\n\nTOOL OUTPUTS:\n")
		sb.WriteString(bundle.ToolOutputs)
	}
	if bundle.RelevantSpecs != "" {
		sb.WriteString("\n\nRELEVANT SPEC SECTIONS:\n")
		sb.WriteString(bundle.RelevantSpecs)
	}
	if len(bundle.PriorIterations) > 0 {
		sb.WriteString("\n\nPRIOR ITERATIONS (already raised, do not repeat):\n")
		for _, issue := range bundle.PriorIterations {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", issue.Severity, issue.Title))
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString(strat.FocusPrompt)
	sb.WriteString(`

Report every problem you find as one block per issue, in exactly this format:

ISSUE: [short title]
DESCRIPTION: [what is wrong and why it matters]
LOCATION: [file/function/line if applicable, else "n/a"]
SUGGESTION: [how to fix it]
CONFIDENCE: [0-100]
SEVERITY: [critical|high|medium|low|info]

If you find nothing, respond with NO ISSUES FOUND.`)

	return sb.String()
}

var issueBlockStart = regexp.MustCompile(`(?m)^ISSUE:\s*(.*)$`)

// parseIssues reconstructs Issue values from the critic's response text,
// splitting on repeated "ISSUE:" headers and parsing each block's
// DESCRIPTION/LOCATION/SUGGESTION/CONFIDENCE/SEVERITY fields.
func parseIssues(text string) []rlmtypes.Issue {
	starts := issueBlockStart.FindAllStringSubmatchIndex(text, -1)
	if len(starts) == 0 {
		return nil
	}

	var issues []rlmtypes.Issue
	for i, m := range starts {
		titleStart, titleEnd := m[2], m[3]
		blockStart := m[0]
		blockEnd := len(text)
		if i+1 < len(starts) {
			blockEnd = starts[i+1][0]
		}
		block := text[blockStart:blockEnd]
		title := strings.TrimSpace(text[titleStart:titleEnd])

		issue := rlmtypes.Issue{
			Title:      title,
			Severity:   rlmtypes.SeverityLow,
			Confidence: 0.5,
		}
		issue.Description = extractField(block, "DESCRIPTION")
		issue.Location = extractField(block, "LOCATION")
		issue.Suggestion = extractField(block, "SUGGESTION")

		if conf := extractField(block, "CONFIDENCE"); conf != "" {
			if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(conf), "%")); err == nil {
				issue.Confidence = float64(n) / 100.0
			}
		}
		if sev := extractField(block, "SEVERITY"); sev != "" {
			issue.Severity = parseSeverity(sev)
		}
		issue.Blocking = issue.DefaultBlocking()

		issues = append(issues, issue)
	}
	return issues
}

var fieldPattern = regexp.MustCompile(`(?m)^([A-Z]+):\s*(.*)$`)

// extractField returns the content following "NAME:" up to (but not
// including) the next recognized field header in the same block.
func extractField(block, name string) string {
	lines := strings.Split(block, "\n")
	var collecting bool
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := fieldPattern.FindStringSubmatch(trimmed); m != nil {
			if collecting {
				break
			}
			if strings.EqualFold(m[1], name) {
				collecting = true
				if rest := strings.TrimSpace(m[2]); rest != "" {
					out = append(out, rest)
				}
				continue
			}
			continue
		}
		if collecting && trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(out, " "))
}

func parseSeverity(s string) rlmtypes.IssueSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return rlmtypes.SeverityCritical
	case "high":
		return rlmtypes.SeverityHigh
	case "medium":
		return rlmtypes.SeverityMedium
	case "low":
		return rlmtypes.SeverityLow
	default:
		return rlmtypes.SeverityInfo
	}
}

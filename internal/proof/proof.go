// Package proof implements the proof-automation cascade: given a goal, it
// tries tactics tier by tier (Decidable, Automation, AIAssisted, HumanLoop)
// against a theorem-prover REPL, recording every attempt as a mangle fact
// and promoting winning tactics to the front of their domain's strategy
// list so later goals in the same domain try them first.
package proof

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/llm"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/mangle"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Domain is the keyword-inferred proof domain a goal belongs to; it picks
// which tactic strategy list the cascade draws from.
type Domain string

const (
	DomainArithmetic Domain = "arithmetic"
	DomainOrder      Domain = "order"
	DomainSetTheory  Domain = "set_theory"
	DomainGeneral    Domain = "general"
)

var (
	arithmeticKeywords = []string{"nat", "int ", "integer", "add", "mul", "sub", "succ", "zero", "+", "*"}
	orderKeywords      = []string{"<", ">", "≤", "≥", "<=", ">=", "le ", "lt ", "ge ", "gt "}
	setKeywords        = []string{"set", "finset", "subset", "∈", "∪", "∩", "member"}
)

// InferDomain picks a Domain from a goal's text via fixed keyword rules,
// checked in order (arithmetic, then order, then set theory), falling
// back to General when nothing matches.
func InferDomain(goalText string) Domain {
	lower := strings.ToLower(goalText)
	for _, kw := range arithmeticKeywords {
		if strings.Contains(lower, kw) {
			return DomainArithmetic
		}
	}
	for _, kw := range orderKeywords {
		if strings.Contains(lower, kw) {
			return DomainOrder
		}
	}
	for _, kw := range setKeywords {
		if strings.Contains(lower, kw) {
			return DomainSetTheory
		}
	}
	return DomainGeneral
}

// Goal is a single proof obligation the cascade attempts to discharge.
type Goal struct {
	Text    string
	Domain  Domain // zero value means InferDomain(Text) is used
	Lemmas  []string
	Similar []string // similar previously-solved proofs, for the AI tier prompt
}

func (g Goal) domain() Domain {
	if g.Domain != "" {
		return g.Domain
	}
	return InferDomain(g.Text)
}

// Attempt records one tactic application against the REPL.
type Attempt struct {
	Tactic    string
	Tier      rlmtypes.AutomationTier
	PreGoals  []string
	PostGoals []string
	ElapsedMs int64
	Success   bool
}

// Result is the outcome of running the cascade against a single Goal.
type Result struct {
	Goal        Goal
	Success     bool
	WinningTier rlmtypes.AutomationTier
	Tactic      string
	Attempts    []Attempt
	SorryLeft   bool
}

// Executor runs one piece of REPL code and reports whether the goal was
// discharged. sandbox.Handle satisfies this directly.
type Executor interface {
	Execute(ctx context.Context, code string, timeoutMs int, captureOutput bool) (rlmtypes.ExecuteResult, error)
}

// defaultTactics is the initial, un-learned tactic order per tier. A
// Cascade keeps its own per-domain copy so promotions in one domain don't
// affect another.
var defaultTactics = map[rlmtypes.AutomationTier][]string{
	rlmtypes.TierDecidable:  {"decide", "native_decide", "omega", "simp", "rfl"},
	rlmtypes.TierAutomation: {"aesop", "linarith", "ring", "norm_num", "positivity"},
}

// Cascade attempts tiers in order against a Goal, learning which tactic
// wins per domain.
type Cascade struct {
	mu       sync.Mutex
	strategy map[Domain]map[rlmtypes.AutomationTier][]string

	exec   Executor
	client llm.Client // used for the AIAssisted tier; may be nil to skip straight to HumanLoop
	model  string
	engine *mangle.Engine // fact store for tactic_tried/tactic_success; may be nil
	bus    *eventbus.Bus
}

// New constructs a Cascade. engine and bus may both be nil (facts/events
// are then simply not recorded).
func New(exec Executor, client llm.Client, model string, engine *mangle.Engine, bus *eventbus.Bus) *Cascade {
	return &Cascade{
		strategy: make(map[Domain]map[rlmtypes.AutomationTier][]string),
		exec:     exec,
		client:   client,
		model:    model,
		engine:   engine,
		bus:      bus,
	}
}

func (c *Cascade) tacticsFor(domain Domain, tier rlmtypes.AutomationTier) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	byTier, ok := c.strategy[domain]
	if !ok {
		byTier = make(map[rlmtypes.AutomationTier][]string)
		for t, list := range defaultTactics {
			cp := make([]string, len(list))
			copy(cp, list)
			byTier[t] = cp
		}
		c.strategy[domain] = byTier
	}
	return byTier[tier]
}

// promote moves tactic to the front of domain's tier list, so the next
// goal in this domain tries it first.
func (c *Cascade) promote(domain Domain, tier rlmtypes.AutomationTier, tactic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.strategy[domain][tier]
	filtered := make([]string, 0, len(list))
	filtered = append(filtered, tactic)
	for _, t := range list {
		if t != tactic {
			filtered = append(filtered, t)
		}
	}
	c.strategy[domain][tier] = filtered
}

// Attempt runs the cascade against goal, trying Decidable, then
// Automation, then AIAssisted, then finally HumanLoop (which always
// "succeeds" by inserting a sorry, but is recorded as Success=false).
func (c *Cascade) Attempt(ctx context.Context, goal Goal) (Result, error) {
	domain := goal.domain()
	result := Result{Goal: goal}

	for _, tier := range []rlmtypes.AutomationTier{rlmtypes.TierDecidable, rlmtypes.TierAutomation} {
		won, attempts, err := c.tryTacticTier(ctx, goal, domain, tier)
		result.Attempts = append(result.Attempts, attempts...)
		if err != nil {
			return result, err
		}
		if won != "" {
			result.Success = true
			result.WinningTier = tier
			result.Tactic = won
			return result, nil
		}
	}

	if c.client != nil {
		won, attempt, err := c.tryAITier(ctx, goal, domain)
		if attempt != nil {
			result.Attempts = append(result.Attempts, *attempt)
		}
		if err != nil {
			return result, err
		}
		if won != "" {
			result.Success = true
			result.WinningTier = rlmtypes.TierAIAssisted
			result.Tactic = won
			return result, nil
		}
	}

	attempt := c.humanTier(ctx, goal, domain)
	result.Attempts = append(result.Attempts, attempt)
	result.WinningTier = rlmtypes.TierHumanLoop
	result.SorryLeft = true
	return result, nil
}

// tryTacticTier tries every tactic in domain's strategy list for tier, in
// order, subject to the tier's time budget, stopping at the first
// success. On success it promotes the winning tactic and records a
// tactic_success fact; every attempt (win or lose) records a
// tactic_tried fact.
func (c *Cascade) tryTacticTier(ctx context.Context, goal Goal, domain Domain, tier rlmtypes.AutomationTier) (string, []Attempt, error) {
	tactics := c.tacticsFor(domain, tier)
	budget := tier.Budget()

	tierCtx := ctx
	var cancel context.CancelFunc
	if budget > 0 {
		tierCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	var attempts []Attempt
	for _, tactic := range tactics {
		select {
		case <-tierCtx.Done():
			return "", attempts, nil // budget exhausted, fall through to next tier
		default:
		}

		attempt, err := c.applyTactic(tierCtx, goal, domain, tier, tactic)
		if err != nil {
			return "", attempts, err
		}
		attempts = append(attempts, attempt)

		if attempt.Success {
			c.promote(domain, tier, tactic)
			if c.engine != nil {
				if err := c.engine.AssertTacticSuccess(string(domain), tactic, int(tier), attempt.ElapsedMs); err != nil {
					logging.ProofWarn("failed to assert tactic_success: %v", err)
				}
			}
			return tactic, attempts, nil
		}
	}
	return "", attempts, nil
}

func (c *Cascade) applyTactic(ctx context.Context, goal Goal, domain Domain, tier rlmtypes.AutomationTier, tactic string) (Attempt, error) {
	start := time.Now()
	res, err := c.exec.Execute(ctx, tactic, int(tier.Budget()/time.Millisecond), true)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Attempt{}, rlmerrors.Wrap(rlmerrors.KindReplExecution, "tactic "+tactic+" failed to execute", err)
	}

	attempt := Attempt{
		Tactic:    tactic,
		Tier:      tier,
		PreGoals:  []string{goal.Text},
		PostGoals: postGoals(res),
		ElapsedMs: elapsed,
		Success:   res.Success,
	}

	if c.engine != nil {
		if err := c.engine.AssertTacticTried(string(domain), goal.Text, tactic, int(tier), attempt.Success); err != nil {
			logging.ProofWarn("failed to assert tactic_tried: %v", err)
		}
	}
	if c.bus != nil {
		c.bus.Publish(rlmtypes.EventProofTactic, 0, tactic, map[string]interface{}{
			"domain":  string(domain),
			"tier":    tier.String(),
			"success": attempt.Success,
		})
	}
	logging.ProofDebug("tactic %s (tier %s, domain %s): success=%v elapsed=%dms", tactic, tier, domain, attempt.Success, elapsed)

	return attempt, nil
}

func postGoals(res rlmtypes.ExecuteResult) []string {
	if res.Success {
		return nil
	}
	if res.Error != "" {
		return []string{res.Error}
	}
	if s, ok := res.Result.(string); ok && s != "" {
		return []string{s}
	}
	return nil
}

// tryAITier issues a single prompt bundling the current goal, the history
// of prior attempts, available lemmas, and similar solved proofs, expects
// back a newline-separated tactic sequence, and tries each tactic in
// turn against the REPL.
func (c *Cascade) tryAITier(ctx context.Context, goal Goal, domain Domain) (string, *Attempt, error) {
	prompt := buildAIPrompt(goal, domain)
	req := rlmtypes.CompletionRequest{
		Model:    c.model,
		System:   "You are a theorem-proving assistant. Suggest a tactic sequence to close the given goal.",
		Messages: []rlmtypes.Message{{Role: rlmtypes.RoleUser, Content: prompt}},
	}

	tierCtx, cancel := context.WithTimeout(ctx, rlmtypes.TierAIAssisted.Budget())
	defer cancel()

	resp, err := c.client.Complete(tierCtx, req)
	if err != nil {
		return "", nil, rlmerrors.Wrap(rlmerrors.KindProviderError, "AI tactic suggestion failed", err)
	}

	for _, tactic := range parseTacticSequence(resp.Content) {
		attempt, err := c.applyTactic(tierCtx, goal, domain, rlmtypes.TierAIAssisted, tactic)
		if err != nil {
			return "", &attempt, err
		}
		if attempt.Success {
			if c.engine != nil {
				if aerr := c.engine.AssertTacticSuccess(string(domain), tactic, int(rlmtypes.TierAIAssisted), attempt.ElapsedMs); aerr != nil {
					logging.ProofWarn("failed to assert tactic_success: %v", aerr)
				}
			}
			return tactic, &attempt, nil
		}
	}
	return "", nil, nil
}

func buildAIPrompt(goal Goal, domain Domain) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("GOAL (%s):\n%s\n\n", domain, goal.Text))
	if len(goal.Lemmas) > 0 {
		sb.WriteString("AVAILABLE LEMMAS:\n" + strings.Join(goal.Lemmas, "\n") + "\n\n")
	}
	if len(goal.Similar) > 0 {
		sb.WriteString("SIMILAR SOLVED PROOFS:\n" + strings.Join(goal.Similar, "\n") + "\n\n")
	}
	sb.WriteString("Respond with one tactic per line, in the order they should be tried.")
	return sb.String()
}

func parseTacticSequence(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// humanTier inserts a `sorry` placeholder and marks the goal failed; this
// is the terminal tier and always "succeeds" at producing an attempt
// record, but never discharges the goal.
func (c *Cascade) humanTier(ctx context.Context, goal Goal, domain Domain) Attempt {
	code := "sorry -- TODO: " + goal.Text
	res, err := c.exec.Execute(ctx, code, 0, true)
	attempt := Attempt{
		Tactic:    "sorry",
		Tier:      rlmtypes.TierHumanLoop,
		PreGoals:  []string{goal.Text},
		PostGoals: []string{goal.Text},
		Success:   false,
	}
	if err == nil {
		attempt.ElapsedMs = res.ExecutionTimeMs
	}
	if c.engine != nil {
		if aerr := c.engine.AssertTacticTried(string(domain), goal.Text, "sorry", int(rlmtypes.TierHumanLoop), false); aerr != nil {
			logging.ProofWarn("failed to assert tactic_tried: %v", aerr)
		}
	}
	logging.ProofWarn("goal left as sorry: %s", goal.Text)
	return attempt
}

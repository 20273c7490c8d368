// Package classifier decides whether a query is complex enough to escalate
// into the full recursive pipeline, or simple enough to answer directly.
// It evaluates a compiled regex table plus session-context counters against
// the query and produces an ActivationDecision.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// DefaultThreshold is the activation score a query must meet or exceed to
// escalate, absent an explicit override.
const DefaultThreshold = 2

const (
	weightStrong   = 3
	weightMedium   = 2
	weightWeak     = 1
	weightNegative = -3
)

// TaskComplexitySignals is the fixed set of heuristic signals the
// classifier evaluates. Every field that fires contributes its tier's
// weight to the activation score.
type TaskComplexitySignals struct {
	// Strong signals (+3 each)
	ArchitectureAnalysis bool
	ExhaustiveSearch     bool
	SecurityReview       bool
	UserWantsThorough    bool

	// Medium signals (+2 each)
	MultiFile     bool
	CrossContext  bool
	PatternSearch bool
	Debugging     bool
	MultiDomain   bool
	MultiModule   bool

	// Weak signals (+1 each)
	Temporal       bool
	LargeOutputs   bool
	PriorConfusion bool
	Continuation   bool

	// Negative signal (-3)
	UserWantsFast bool
}

// SessionContext carries the counters the regex table alone can't see:
// how much of the conversation already spans files/turns, and whether the
// user has already had to correct a misunderstanding.
type SessionContext struct {
	FilesInScope        int
	PriorClarifications int
	IsContinuation      bool
}

// ActivationDecision is the classifier's verdict.
type ActivationDecision struct {
	ShouldActivate bool
	Reason         string
	Score          int
	Signals        TaskComplexitySignals
}

// Options configures a single classification call.
type Options struct {
	Threshold       int
	ForceActivation bool
}

type weightedSignal struct {
	name   string
	weight int
	fired  func(TaskComplexitySignals) bool
}

var signalTable = []weightedSignal{
	{"architecture_analysis", weightStrong, func(s TaskComplexitySignals) bool { return s.ArchitectureAnalysis }},
	{"exhaustive_search", weightStrong, func(s TaskComplexitySignals) bool { return s.ExhaustiveSearch }},
	{"security_review", weightStrong, func(s TaskComplexitySignals) bool { return s.SecurityReview }},
	{"user_wants_thorough", weightStrong, func(s TaskComplexitySignals) bool { return s.UserWantsThorough }},

	{"multi_file", weightMedium, func(s TaskComplexitySignals) bool { return s.MultiFile }},
	{"cross_context", weightMedium, func(s TaskComplexitySignals) bool { return s.CrossContext }},
	{"pattern_search", weightMedium, func(s TaskComplexitySignals) bool { return s.PatternSearch }},
	{"debugging", weightMedium, func(s TaskComplexitySignals) bool { return s.Debugging }},
	{"multi_domain", weightMedium, func(s TaskComplexitySignals) bool { return s.MultiDomain }},
	{"multi_module", weightMedium, func(s TaskComplexitySignals) bool { return s.MultiModule }},

	{"temporal", weightWeak, func(s TaskComplexitySignals) bool { return s.Temporal }},
	{"large_outputs", weightWeak, func(s TaskComplexitySignals) bool { return s.LargeOutputs }},
	{"prior_confusion", weightWeak, func(s TaskComplexitySignals) bool { return s.PriorConfusion }},
	{"continuation", weightWeak, func(s TaskComplexitySignals) bool { return s.Continuation }},

	{"user_wants_fast", weightNegative, func(s TaskComplexitySignals) bool { return s.UserWantsFast }},
}

var (
	architecturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(analyze|review|explain|assess)\s+(the\s+)?(architecture|design|structure)\b`),
		regexp.MustCompile(`(?i)\bhow\s+(does|do)\s+.+\s+(fit|work)\s+together\b`),
		regexp.MustCompile(`(?i)\bsystem\s+design\b`),
	}
	exhaustivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfind\s+all\b`),
		regexp.MustCompile(`(?i)\bevery\s+(instance|occurrence|place|usage)\b`),
		regexp.MustCompile(`(?i)\bexhaustive(ly)?\b`),
		regexp.MustCompile(`(?i)\bcomplete\s+list\b`),
	}
	securityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bsecurity\s+(issues?|vulnerabilit(y|ies)|reviews?|audits?|flaws?)\b`),
		regexp.MustCompile(`(?i)\b(sql\s*injection|xss|csrf|auth(entication|orization)?\s+bypass)\b`),
	}
	thoroughPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(thorough(ly)?|comprehensive(ly)?|in[\s-]depth|rigorous(ly)?)\b`),
		regexp.MustCompile(`(?i)\bdon't\s+miss\s+anything\b`),
	}
	multiFilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(all|every|multiple)\s+files?\b`),
		regexp.MustCompile(`(?i)\bacross\s+the\s+codebase\b`),
	}
	crossContextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(compare|cross[\s-]reference|reconcile)\s+.+\s+(with|against|and)\b`),
	}
	patternSearchPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(search|grep|look)\s+for\s+(the\s+)?pattern\b`),
		regexp.MustCompile(`(?i)\bwhere\s+else\s+is\b`),
	}
	debuggingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(bug|crash|fail(s|ing|ure)|error|exception|traceback|stack\s*trace)\b`),
		regexp.MustCompile(`(?i)\bwhy\s+(is|does|doesn't|won't)\b`),
	}
	multiDomainPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(frontend|backend)\s+and\s+(frontend|backend)\b`),
		regexp.MustCompile(`(?i)\b(database|api|ui)\s+and\s+(database|api|ui)\b`),
	}
	multiModulePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(module|package|service)s?\s+(interact|depend|communicate)\b`),
	}
	temporalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(recently|lately|over\s+time|history|changelog|git\s+log|evolved)\b`),
	}
	largeOutputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(full|complete|entire)\s+(report|output|listing|dump)\b`),
	}
	confusionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(that's\s+not\s+what\s+i\s+meant|i'm\s+confused|let\s+me\s+clarify|to\s+be\s+clear)\b`),
	}
	continuationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(as\s+before|continuing\s+from|like\s+(we|you)\s+did|same\s+as\s+last\s+time)\b`),
	}
	fastPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(quick(ly)?|fast|just\s+(a\s+)?(simple|quick)|one[\s-]liner|tl;?dr)\b`),
	}
)

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// detectSignals evaluates the regex table against query and layers in the
// session-context counters that the regex table alone can't see.
func detectSignals(query string, ctx SessionContext) TaskComplexitySignals {
	s := TaskComplexitySignals{
		ArchitectureAnalysis: matchesAny(architecturePatterns, query),
		ExhaustiveSearch:     matchesAny(exhaustivePatterns, query),
		SecurityReview:       matchesAny(securityPatterns, query),
		UserWantsThorough:    matchesAny(thoroughPatterns, query),

		MultiFile:     matchesAny(multiFilePatterns, query) || ctx.FilesInScope > 3,
		CrossContext:  matchesAny(crossContextPatterns, query),
		PatternSearch: matchesAny(patternSearchPatterns, query),
		Debugging:     matchesAny(debuggingPatterns, query),
		MultiDomain:   matchesAny(multiDomainPatterns, query),
		MultiModule:   matchesAny(multiModulePatterns, query),

		Temporal:       matchesAny(temporalPatterns, query),
		LargeOutputs:   matchesAny(largeOutputPatterns, query),
		PriorConfusion: matchesAny(confusionPatterns, query) || ctx.PriorClarifications > 0,
		Continuation:   matchesAny(continuationPatterns, query) || ctx.IsContinuation,

		UserWantsFast: matchesAny(fastPatterns, query),
	}
	return s
}

func score(s TaskComplexitySignals) (total int, fired []string) {
	for _, w := range signalTable {
		if w.fired(s) {
			total += w.weight
			fired = append(fired, w.name)
		}
	}
	return total, fired
}

func formatReason(reportedScore int, fired []string) string {
	if len(fired) == 0 {
		return "simple_task"
	}
	return fmt.Sprintf("complexity_score:%d:%s", reportedScore, strings.Join(fired, "+"))
}

// Classifier evaluates activation decisions and, if wired to a bus,
// publishes them as trajectory events.
type Classifier struct {
	threshold int
	bus       *eventbus.Bus
}

// New constructs a Classifier with the given activation threshold
// (DefaultThreshold if threshold <= 0) and an optional event bus.
func New(threshold int, bus *eventbus.Bus) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{threshold: threshold, bus: bus}
}

// Classify evaluates query/ctx and returns the activation decision,
// publishing EventActivationDecision if a bus is attached.
func (c *Classifier) Classify(query string, ctx SessionContext, opts Options) ActivationDecision {
	threshold := c.threshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	}

	signals := detectSignals(query, ctx)
	total, fired := score(signals)

	decision := ActivationDecision{Score: total, Signals: signals}
	if opts.ForceActivation {
		decision.Score = 100
		decision.ShouldActivate = true
		if len(fired) == 0 {
			decision.Reason = "complexity_score:100:forced"
		} else {
			decision.Reason = formatReason(100, append(fired, "forced"))
		}
	} else {
		decision.ShouldActivate = total >= threshold
		decision.Reason = formatReason(total, fired)
	}

	if c.bus != nil {
		c.bus.Publish(rlmtypes.EventActivationDecision, 0, decision.Reason, map[string]interface{}{
			"should_activate": decision.ShouldActivate,
			"score":            decision.Score,
			"query":            query,
		})
	}
	return decision
}

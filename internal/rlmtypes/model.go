package rlmtypes

import "time"

// FieldType is the closed set of types a FieldSpec may describe.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInteger
	FieldFloat
	FieldBoolean
	FieldList    // List(FieldType) - see FieldSpec.ElementType
	FieldObject  // Object(Fields) - see FieldSpec.Fields
	FieldEnum    // Enum([String]) - see FieldSpec.EnumValues
	FieldCustom  // Custom(String) - see FieldSpec.CustomType
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInteger:
		return "integer"
	case FieldFloat:
		return "float"
	case FieldBoolean:
		return "boolean"
	case FieldList:
		return "list"
	case FieldObject:
		return "object"
	case FieldEnum:
		return "enum"
	case FieldCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// FieldSpec describes one field of a Signature's input or output side.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Description string
	Prefix      string // optional chain-of-thought style prefix, e.g. "Reasoning:"
	Required    bool
	Default     interface{}

	// ElementType is populated when Type == FieldList.
	ElementType *FieldSpec
	// Fields is populated when Type == FieldObject.
	Fields []FieldSpec
	// EnumValues is populated when Type == FieldEnum.
	EnumValues []string
	// CustomType names the implementer-provided validator when Type == FieldCustom.
	CustomType string
}

// Signature pairs an input field-spec list with an output field-spec list
// and an instruction string describing the task to the model.
type Signature struct {
	Name        string
	Instruction string
	Inputs      []FieldSpec
	Outputs     []FieldSpec
}

// MessageRole is the closed set of chat roles accepted by the LLM Client
// Contract.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of a completion request.
type Message struct {
	Role          MessageRole `json:"role"`
	Content       string      `json:"content"`
	CacheControl  string      `json:"cache_control,omitempty"`
}

// CompletionRequest is the uniform request shape every LLM provider client
// accepts.
type CompletionRequest struct {
	Model         string                 `json:"model,omitempty"`
	System        string                 `json:"system,omitempty"`
	Messages      []Message              `json:"messages"`
	MaxTokens     int                    `json:"max_tokens,omitempty"`
	Temperature   float64                `json:"temperature,omitempty"`
	Stop          []string               `json:"stop,omitempty"`
	EnableCaching bool                   `json:"enable_caching"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// StopReason is the closed set of reasons a completion stopped.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopMaxTokens     StopReason = "max_tokens"
	StopStopSequence  StopReason = "stop_sequence"
	StopToolUse       StopReason = "tool_use"
)

// Usage tracks token counts for a single completion.
type Usage struct {
	Input          int `json:"input"`
	Output         int `json:"output"`
	CacheRead      int `json:"cache_read,omitempty"`
	CacheCreation  int `json:"cache_creation,omitempty"`
}

// CompletionResponse is the uniform response shape returned by every LLM
// provider client.
type CompletionResponse struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Content    string     `json:"content"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	Cost       float64    `json:"cost,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// TrajectoryEventType is the closed enum of event kinds broadcast on the
// event bus. Each variant carries an implicit minimum subscriber verbosity,
// see Verbosity/MinVerbosityFor below.
type TrajectoryEventType string

const (
	EventActivationDecision TrajectoryEventType = "activation_decision"
	EventReason             TrajectoryEventType = "reason"
	EventRouteDecision      TrajectoryEventType = "route_decision"
	EventLLMRequest         TrajectoryEventType = "llm_request"
	EventLLMResponse        TrajectoryEventType = "llm_response"
	EventLLMRetry           TrajectoryEventType = "llm_retry"
	EventPredictCall        TrajectoryEventType = "predict_call"
	EventChainStep          TrajectoryEventType = "chain_step"
	EventParallelFanOut     TrajectoryEventType = "parallel_fan_out"
	EventReplSpawn          TrajectoryEventType = "repl_spawn"
	EventReplExec           TrajectoryEventType = "repl_exec"
	EventReplSubmit         TrajectoryEventType = "repl_submit"
	EventReplDead           TrajectoryEventType = "repl_dead"
	EventDeferredOp         TrajectoryEventType = "deferred_op"
	EventClaimExtracted     TrajectoryEventType = "claim_extracted"
	EventScrubApplied       TrajectoryEventType = "scrub_applied"
	EventBudgetComputed     TrajectoryEventType = "budget_computed"
	EventHallucinationFlag  TrajectoryEventType = "hallucination_flag"
	EventMemoryGate         TrajectoryEventType = "memory_gate"
	EventAdversarialIssue   TrajectoryEventType = "adversarial_issue"
	EventAdversarialRound   TrajectoryEventType = "adversarial_round"
	EventProofTactic        TrajectoryEventType = "proof_tactic"
	EventProofTierEscalate  TrajectoryEventType = "proof_tier_escalate"
	EventCostRecorded       TrajectoryEventType = "cost_recorded"
	EventBudgetWarning      TrajectoryEventType = "budget_warning"
	EventError              TrajectoryEventType = "error"
)

// Verbosity is the closed set of subscriber verbosity levels.
type Verbosity int

const (
	VerbositySilent Verbosity = iota
	VerbosityErrors
	VerbosityNormal
	VerbosityVerbose
	VerbosityDebug
)

// MinVerbosityFor returns the minimum subscriber verbosity at which an
// event of the given type is delivered.
func MinVerbosityFor(t TrajectoryEventType) Verbosity {
	switch t {
	case EventError, EventReplDead, EventHallucinationFlag, EventBudgetWarning:
		return VerbosityErrors
	case EventReplExec, EventReplSubmit, EventDeferredOp, EventChainStep,
		EventParallelFanOut, EventAdversarialRound, EventProofTactic,
		EventProofTierEscalate:
		return VerbosityVerbose
	case EventLLMRequest, EventLLMResponse, EventLLMRetry, EventScrubApplied:
		return VerbosityDebug
	default:
		return VerbosityNormal
	}
}

// TrajectoryEvent is a single typed, depth-annotated, timestamped record of
// one step in the recursive execution.
type TrajectoryEvent struct {
	EventType TrajectoryEventType    `json:"event_type"`
	Depth     uint32                 `json:"depth"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// TokenUsage is a per-component accounting bucket.
type TokenUsage struct {
	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	CostUSD             float64 `json:"cost_usd"`
	RequestCount        int64   `json:"request_count"`
}

// CostSummary is the additive running total of token/cost accounting.
type CostSummary struct {
	InputTokens         int64                  `json:"input_tokens"`
	OutputTokens        int64                  `json:"output_tokens"`
	CacheCreationTokens int64                  `json:"cache_creation_tokens"`
	CacheReadTokens     int64                  `json:"cache_read_tokens"`
	TotalCostUSD        float64                `json:"total_cost_usd"`
	ByComponent         map[string]*TokenUsage `json:"by_component"`
}

// ClaimCategory is the closed set of claim categories.
type ClaimCategory string

const (
	CategoryFactual       ClaimCategory = "factual"
	CategoryCodeBehavior  ClaimCategory = "code_behavior"
	CategoryRelational    ClaimCategory = "relational"
	CategoryNumerical     ClaimCategory = "numerical"
	CategoryTemporal      ClaimCategory = "temporal"
	CategoryUserIntent    ClaimCategory = "user_intent"
	CategoryMetaReasoning ClaimCategory = "meta_reasoning"
	CategoryUnknown       ClaimCategory = "unknown"
)

// EvidenceType is the closed set of evidence-reference kinds.
type EvidenceType string

const (
	EvidenceCitation     EvidenceType = "citation"
	EvidenceCodeRef      EvidenceType = "code_ref"
	EvidenceToolOutput   EvidenceType = "tool_output"
	EvidenceUserStatement EvidenceType = "user_statement"
	EvidenceInference    EvidenceType = "inference"
	EvidencePrior        EvidenceType = "prior"
)

// EvidenceRef links a claim to a piece of supporting evidence.
type EvidenceRef struct {
	ID       string       `json:"id"`
	Type     EvidenceType `json:"type"`
	Strength float64      `json:"strength"` // [0,1]
}

// Claim is a single extracted assertion from a model response.
type Claim struct {
	ID           string        `json:"id"`
	Text         string        `json:"text"`
	SourceSpan   *[2]int       `json:"source_span,omitempty"` // [start,end) byte offsets
	Category     ClaimCategory `json:"category"`
	Specificity  float64       `json:"specificity"` // [0.01, 0.95]
	EvidenceRefs []EvidenceRef `json:"evidence_refs"`
	ExtractedAt  time.Time     `json:"extracted_at"`
}

// Probability is a point estimate with a confidence interval.
type Probability struct {
	Estimate  float64 `json:"estimate"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	NSamples  int     `json:"n_samples"`
}

// GroundingStatus is the closed set of budget-gap derived statuses.
type GroundingStatus string

const (
	StatusGrounded        GroundingStatus = "grounded"
	StatusWeaklyGrounded   GroundingStatus = "weakly_grounded"
	StatusUngrounded       GroundingStatus = "ungrounded"
	StatusUncertain        GroundingStatus = "uncertain"
)

// BudgetResult is the outcome of the epistemic verifier's per-claim
// computation.
type BudgetResult struct {
	ClaimID          string                 `json:"claim_id"`
	P0               Probability            `json:"p0"`
	P1               Probability            `json:"p1"`
	ObservedBits     float64                `json:"observed_bits"`
	RequiredBits     float64                `json:"required_bits"`
	BudgetGap        float64                `json:"budget_gap"`
	Status           GroundingStatus        `json:"status"`
	Confidence       float64                `json:"confidence"`
	EvidenceBreakdown map[string]float64    `json:"evidence_breakdown,omitempty"`
}

// IsGrounded reports whether the result's status permits use without
// penalty: gap <= 0.
func (b BudgetResult) IsGrounded() bool {
	return b.BudgetGap <= 0
}

// IssueSeverity is the closed set of adversarial-issue severities.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
	SeverityInfo     IssueSeverity = "info"
)

// severityRank orders severities for comparisons ("elevate to at least X").
var severityRank = map[IssueSeverity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is ranked at or above other.
func (s IssueSeverity) AtLeast(other IssueSeverity) bool {
	return severityRank[s] >= severityRank[other]
}

// IssueCategory is an open string set in practice (strategies may mint new
// ones) but the spec names a representative core set.
type IssueCategory string

const (
	IssueLogicError     IssueCategory = "logic_error"
	IssueSecurity       IssueCategory = "security"
	IssueErrorHandling  IssueCategory = "error_handling"
	IssuePerformance    IssueCategory = "performance"
	IssueTesting        IssueCategory = "testing"
	IssueTraceability   IssueCategory = "traceability"
	IssueEdgeCase       IssueCategory = "edge_case"
)

// Issue is a single finding raised by the adversarial validator.
type Issue struct {
	ID          string        `json:"id"`
	Severity    IssueSeverity `json:"severity"`
	Category    IssueCategory `json:"category"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location,omitempty"`
	Suggestion  string        `json:"suggestion,omitempty"`
	Confidence  float64       `json:"confidence"`
	Blocking    bool          `json:"blocking"`
}

// DefaultBlocking reports the default blocking decision implied by
// severity alone, before any strategy post-processor runs.
func (i Issue) DefaultBlocking() bool {
	return i.Severity.AtLeast(SeverityHigh)
}

// AutomationTier is the ordered tier enum used by the proof cascade.
type AutomationTier int

const (
	TierDecidable AutomationTier = iota
	TierAutomation
	TierAIAssisted
	TierHumanLoop
)

func (t AutomationTier) String() string {
	switch t {
	case TierDecidable:
		return "decidable"
	case TierAutomation:
		return "automation"
	case TierAIAssisted:
		return "ai_assisted"
	case TierHumanLoop:
		return "human_loop"
	default:
		return "unknown"
	}
}

// Budget returns the tier's time budget: 5s, 30s, 60s, and unbounded (0
// means "no deadline") for HumanLoop.
func (t AutomationTier) Budget() time.Duration {
	switch t {
	case TierDecidable:
		return 5 * time.Second
	case TierAutomation:
		return 30 * time.Second
	case TierAIAssisted:
		return 60 * time.Second
	default:
		return 0
	}
}

// NodeType is the closed set of reasoning-trace node kinds.
type NodeType string

const (
	NodeGoal       NodeType = "goal"
	NodeDecision   NodeType = "decision"
	NodeOption     NodeType = "option"
	NodeAction     NodeType = "action"
	NodeOutcome    NodeType = "outcome"
	NodeObservation NodeType = "observation"
)

// EdgeLabel is the closed set of typed edges between trace nodes.
type EdgeLabel string

const (
	EdgeSpawns     EdgeLabel = "spawns"
	EdgeConsiders  EdgeLabel = "considers"
	EdgeChooses    EdgeLabel = "chooses"
	EdgeRejects    EdgeLabel = "rejects"
	EdgeImplements EdgeLabel = "implements"
	EdgeProduces   EdgeLabel = "produces"
	EdgeLeadsTo    EdgeLabel = "leads_to"
	EdgeReferences EdgeLabel = "references"
	EdgeRequires   EdgeLabel = "requires"
	EdgeInvalidates EdgeLabel = "invalidates"
)

// TraceNode is a single node in the reasoning-trace decision graph.
type TraceNode struct {
	ID         string                 `json:"id"`
	NodeType   NodeType               `json:"node_type"`
	Content    string                 `json:"content"`
	Reason     string                 `json:"reason,omitempty"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// TraceEdge is a single typed, directed edge in the reasoning-trace graph.
type TraceEdge struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Label EdgeLabel `json:"label"`
}

// TheoremStatus is the closed set of per-theorem formalization states.
type TheoremStatus string

const (
	TheoremNotFormalized TheoremStatus = "not_formalized"
	TheoremStated        TheoremStatus = "stated"
	TheoremHasSorry      TheoremStatus = "has_sorry"
	TheoremComplete       TheoremStatus = "complete"
	TheoremFailed        TheoremStatus = "failed"
)

// theoremStatusRank orders statuses worst-first for the proof-status
// aggregation rule: Failed > HasSorry > Stated > Complete (worst wins).
var theoremStatusRank = map[TheoremStatus]int{
	TheoremFailed:        3,
	TheoremHasSorry:      2,
	TheoremStated:        1,
	TheoremComplete:      0,
	TheoremNotFormalized: 0,
}

// WorstTheoremStatus returns the worst (highest-rank) status among those
// given, per the spec's aggregation rule.
func WorstTheoremStatus(statuses []TheoremStatus) TheoremStatus {
	worst := TheoremComplete
	worstRank := -1
	for _, s := range statuses {
		if r := theoremStatusRank[s]; r > worstRank {
			worstRank = r
			worst = s
		}
	}
	return worst
}

// TheoremRef is a single formal theorem linked to a spec-coverage entry.
type TheoremRef struct {
	Name       string        `json:"name"`
	File       string        `json:"file"`
	Line       int           `json:"line"`
	Namespace  string        `json:"namespace,omitempty"`
	Statement  string        `json:"statement,omitempty"`
	Status     TheoremStatus `json:"status"`
	SorryCount int           `json:"sorry_count"`
	Error      string        `json:"error,omitempty"`
}

// TestTrace links a test function to a spec-coverage entry.
type TestTrace struct {
	TestName string `json:"test_name"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Passes   *bool  `json:"passes,omitempty"`
}

// SpecID identifies a requirement as (major, minor).
type SpecID struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

func (s SpecID) String() string {
	return formatSpecID(s.Major, s.Minor)
}

func formatSpecID(major, minor int) string {
	return "SPEC-" + itoa(major) + "." + itoa(minor)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// SpecCoverageEntry aggregates the theorems and tests traced to one
// requirement.
type SpecCoverageEntry struct {
	SpecID          SpecID        `json:"spec_id"`
	RequirementText string        `json:"requirement_text"`
	Theorems        []TheoremRef  `json:"theorems"`
	ProofStatus     TheoremStatus `json:"proof_status"`
	SpecSource      string        `json:"spec_source,omitempty"`
	SpecLine        int           `json:"spec_line,omitempty"`
	TestTraces      []TestTrace   `json:"test_traces"`
}

// SubmitStatus is the closed set of outcomes a SUBMIT(outputs) call inside
// a REPL can produce once a signature has been registered.
type SubmitStatus string

const (
	SubmitSuccess    SubmitStatus = "success"
	SubmitValidation SubmitStatus = "validation_error"
)

// SubmitResult is the typed outcome of a SUBMIT(outputs) call evaluated
// against whatever signature register_signature last installed.
type SubmitResult struct {
	Status  SubmitStatus           `json:"status"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Errors  []string               `json:"errors,omitempty"`
}

// PendingOperation is a deferred call a REPL's execute emitted mid-run
// (e.g. an LLM call issued from interpreted code) that the host must
// resolve out of band via resolve_operation before execute can finish.
type PendingOperation struct {
	ID      string                 `json:"id"`
	Kind    string                 `json:"kind"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ExecuteResult is the wire shape of a REPL's execute response.
type ExecuteResult struct {
	Success          bool               `json:"success"`
	Result           interface{}        `json:"result,omitempty"`
	Stdout           string             `json:"stdout"`
	Stderr           string             `json:"stderr"`
	Error            string             `json:"error,omitempty"`
	ErrorType        string             `json:"error_type,omitempty"`
	ExecutionTimeMs  int64              `json:"execution_time_ms"`
	PendingOperations []PendingOperation `json:"pending_operations,omitempty"`
	SubmitResult     *SubmitResult      `json:"submit_result,omitempty"`
}

// Package orchestrator implements the top-level Adapter: request
// dispatch through classification, the predict pipeline, the sandbox,
// the epistemic verifier, and the adversarial critic, with a hook
// pipeline, a tool registry, and the one-shot executing interlock.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rlm-systems/rlm-runtime/internal/adversarial"
	"github.com/rlm-systems/rlm-runtime/internal/claims"
	"github.com/rlm-systems/rlm-runtime/internal/classifier"
	"github.com/rlm-systems/rlm-runtime/internal/costbudget"
	"github.com/rlm-systems/rlm-runtime/internal/epistemic"
	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/llm"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/mcptools"
	"github.com/rlm-systems/rlm-runtime/internal/predict"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
	"github.com/rlm-systems/rlm-runtime/internal/scrub"
)

// Pipeline is anything Execute can drive a request's inputs through:
// satisfied directly by *predict.Predict and *predict.Chain, no adapter
// needed.
type Pipeline interface {
	Forward(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)
}

// Phase names a point in Execute's control flow a Hook may observe.
type Phase string

const (
	PhasePreClassify  Phase = "pre_classify"
	PhasePostClassify Phase = "post_classify"
	PhasePrePredict   Phase = "pre_predict"
	PhasePostPredict  Phase = "post_predict"
	PhasePreExecute   Phase = "pre_execute"
	PhasePostExecute  Phase = "post_execute"
	PhasePostVerify   Phase = "post_verify"
	PhasePostReview   Phase = "post_review"
	PhaseComplete     Phase = "complete"
)

// Hook observes one phase of a request's execution; returning an error
// aborts the request.
type Hook func(ctx context.Context, phase Phase, req *Request) error

// Mode is the top-level dispatch mode a request resolved to.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModePipeline Mode = "pipeline"
)

// Status is the adapter's current execution state, as reported by
// Status() for rlm_status.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusClassifying Status = "classifying"
	StatusPredicting  Status = "predicting"
	StatusExecuting   Status = "executing"
	StatusVerifying   Status = "verifying"
	StatusReviewing   Status = "reviewing"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Request is one top-level call into the adapter.
type Request struct {
	Query             string
	SessionContext    classifier.SessionContext
	ClassifierOptions classifier.Options
	PipelineInputs    map[string]interface{}
	OutputTextField   string
	CodeField         string
	ExecuteTimeoutMs  int
	CodeContext       string
	ToolOutputs       []string
	RelevantSpecs     []string
}

// Result is everything Execute produced for one request.
type Result struct {
	Mode            Mode
	Activation      classifier.ActivationDecision
	Output          map[string]interface{}
	ExecuteResult   *rlmtypes.ExecuteResult
	Claims          []rlmtypes.Claim
	BudgetResults   []rlmtypes.BudgetResult
	GroundingStatus rlmtypes.GroundingStatus
	Review          *adversarial.Result
	CostSummary     rlmtypes.CostSummary
}

// Executor is the sandbox boundary Execute drives when a pipeline
// emits code; satisfied by *sandbox.Handle/*sandbox.RemoteHandle.
type Executor interface {
	Execute(ctx context.Context, code string, timeoutMs int, captureOutput bool) (rlmtypes.ExecuteResult, error)
}

// Elicitor samples a probability estimate for claim given context, used
// to derive the epistemic verifier's p0 (scrubbed context) and p1 (full
// context) inputs.
type Elicitor interface {
	Elicit(ctx context.Context, contextText, claim string) (rlmtypes.Probability, error)
}

// Adapter is the top-level request dispatcher. Its executing flag is a
// mutual-exclusion interlock (atomic.Bool, not a mutex, per design);
// mode, status, hooks, and the tool registry each have their own RWMutex.
type Adapter struct {
	executing atomic.Bool

	modeMu sync.RWMutex
	mode   Mode

	statusMu sync.RWMutex
	status   Status

	hooksMu sync.RWMutex
	hooks   []Hook

	toolsMu sync.RWMutex
	tools   *mcptools.Surface

	classifier     *classifier.Classifier
	claimExtractor *claims.Extractor
	verifier       *epistemic.Verifier
	elicitor       Elicitor
	validator      *adversarial.Validator
	executor       Executor
	bus            *eventbus.Bus
	costMgr        *costbudget.Manager
}

// Config wires an Adapter's dependencies. Classifier is required;
// everything else is optional and its corresponding pipeline stage is
// skipped when nil.
type Config struct {
	Classifier     *classifier.Classifier
	ClaimExtractor *claims.Extractor
	Verifier       *epistemic.Verifier
	Elicitor       Elicitor
	Validator      *adversarial.Validator
	Executor       Executor
	Bus            *eventbus.Bus
	CostManager    *costbudget.Manager
	Tools          *mcptools.Surface
}

// New constructs an Adapter from cfg.
func New(cfg Config) *Adapter {
	return &Adapter{
		mode:           ModeDirect,
		status:         StatusIdle,
		classifier:     cfg.Classifier,
		claimExtractor: cfg.ClaimExtractor,
		verifier:       cfg.Verifier,
		elicitor:       cfg.Elicitor,
		validator:      cfg.Validator,
		executor:       cfg.Executor,
		bus:            cfg.Bus,
		costMgr:        cfg.CostManager,
		tools:          cfg.Tools,
	}
}

// RegisterHook appends h to the hook pipeline.
func (a *Adapter) RegisterHook(h Hook) {
	a.hooksMu.Lock()
	defer a.hooksMu.Unlock()
	a.hooks = append(a.hooks, h)
}

// Tools returns the currently registered tool surface, or nil.
func (a *Adapter) Tools() *mcptools.Surface {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	return a.tools
}

// SetTools swaps the registered tool surface.
func (a *Adapter) SetTools(s *mcptools.Surface) {
	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	a.tools = s
}

// Mode returns the mode the most recently completed (or in-flight)
// request resolved to.
func (a *Adapter) Mode() Mode {
	a.modeMu.RLock()
	defer a.modeMu.RUnlock()
	return a.mode
}

func (a *Adapter) setMode(m Mode) {
	a.modeMu.Lock()
	a.mode = m
	a.modeMu.Unlock()
}

// Status satisfies mcptools.StatusProvider for rlm_status.
func (a *Adapter) Status() mcptools.StatusSnapshot {
	return mcptools.StatusSnapshot{
		Mode:      string(a.Mode()),
		Executing: a.executing.Load(),
	}
}

// CurrentStatus returns the adapter's internal phase-level status (finer
// grained than the Mode/Executing pair Status() reports over MCP).
func (a *Adapter) CurrentStatus() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *Adapter) setStatus(s Status) {
	a.statusMu.Lock()
	a.status = s
	a.statusMu.Unlock()
}

func (a *Adapter) runHooks(ctx context.Context, phase Phase, req *Request) error {
	a.hooksMu.RLock()
	hooks := make([]Hook, len(a.hooks))
	copy(hooks, a.hooks)
	a.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, phase, req); err != nil {
			return rlmerrors.Wrap(rlmerrors.KindInternal, "hook failed at phase "+string(phase), err)
		}
	}
	return nil
}

// Execute is the top-level request dispatch. The executing flag rejects
// concurrent calls with Internal("RLM already executing"); it is
// cleared by a deferred scope guard that fires on every exit path,
// including a panic unwinding through this call.
func (a *Adapter) Execute(ctx context.Context, req Request, pipeline Pipeline) (Result, error) {
	if !a.executing.CompareAndSwap(false, true) {
		return Result{}, rlmerrors.Internal("RLM already executing")
	}
	defer func() {
		a.executing.Store(false)
	}()

	result := Result{}

	a.setStatus(StatusClassifying)
	if err := a.runHooks(ctx, PhasePreClassify, &req); err != nil {
		a.setStatus(StatusFailed)
		return result, err
	}

	decision := a.classifier.Classify(req.Query, req.SessionContext, req.ClassifierOptions)
	result.Activation = decision

	if err := a.runHooks(ctx, PhasePostClassify, &req); err != nil {
		a.setStatus(StatusFailed)
		return result, err
	}

	if !decision.ShouldActivate {
		a.setMode(ModeDirect)
		result.Mode = ModeDirect
		a.setStatus(StatusDone)
		logging.Orchestrator("request resolved direct (score=%d): %s", decision.Score, decision.Reason)
		return result, nil
	}

	a.setMode(ModePipeline)
	result.Mode = ModePipeline

	if pipeline == nil {
		a.setStatus(StatusFailed)
		return result, rlmerrors.New(rlmerrors.KindConfig, "activated request has no pipeline configured")
	}

	a.setStatus(StatusPredicting)
	if err := a.runHooks(ctx, PhasePrePredict, &req); err != nil {
		a.setStatus(StatusFailed)
		return result, err
	}

	inputs := req.PipelineInputs
	if inputs == nil {
		inputs = map[string]interface{}{"query": req.Query}
	}
	output, err := pipeline.Forward(ctx, inputs)
	if err != nil {
		a.setStatus(StatusFailed)
		return result, err
	}
	result.Output = output

	if err := a.runHooks(ctx, PhasePostPredict, &req); err != nil {
		a.setStatus(StatusFailed)
		return result, err
	}

	codeField := req.CodeField
	if codeField == "" {
		codeField = "code"
	}
	if code, _ := output[codeField].(string); code != "" && a.executor != nil {
		a.setStatus(StatusExecuting)
		if err := a.runHooks(ctx, PhasePreExecute, &req); err != nil {
			a.setStatus(StatusFailed)
			return result, err
		}

		timeout := req.ExecuteTimeoutMs
		if timeout <= 0 {
			timeout = 30000
		}
		execResult, err := a.executor.Execute(ctx, code, timeout, true)
		if err != nil {
			a.setStatus(StatusFailed)
			return result, err
		}
		result.ExecuteResult = &execResult

		if err := a.runHooks(ctx, PhasePostExecute, &req); err != nil {
			a.setStatus(StatusFailed)
			return result, err
		}
	}

	text := outputText(output, req.OutputTextField)
	if text != "" && result.ExecuteResult != nil {
		text = text + "\n" + fmt.Sprint(result.ExecuteResult.Result)
	}

	if text != "" && a.claimExtractor != nil && a.verifier != nil && a.elicitor != nil {
		a.setStatus(StatusVerifying)
		claimList, budgetResults, grounding := a.evaluateClaims(ctx, text)
		result.Claims = claimList
		result.BudgetResults = budgetResults
		result.GroundingStatus = grounding

		if err := a.runHooks(ctx, PhasePostVerify, &req); err != nil {
			a.setStatus(StatusFailed)
			return result, err
		}
	}

	if text != "" && a.validator != nil {
		a.setStatus(StatusReviewing)
		bundle := adversarial.Bundle{
			Request: req.Query, Response: text, CodeContext: req.CodeContext,
			ToolOutputs: strings.Join(req.ToolOutputs, "\n"), RelevantSpecs: strings.Join(req.RelevantSpecs, "\n"),
		}
		review, err := a.validator.RunIterative(ctx, bundle)
		if err == nil {
			result.Review = &review
		} else {
			logging.OrchestratorWarn("adversarial review failed: %v", err)
		}

		if err := a.runHooks(ctx, PhasePostReview, &req); err != nil {
			a.setStatus(StatusFailed)
			return result, err
		}
	}

	if a.costMgr != nil {
		result.CostSummary = a.costMgr.Summary()
	}

	a.setStatus(StatusDone)
	_ = a.runHooks(ctx, PhaseComplete, &req)
	return result, nil
}

func outputText(output map[string]interface{}, field string) string {
	if field == "" {
		field = "response"
	}
	if s, ok := output[field].(string); ok {
		return s
	}
	for _, key := range []string{"response", "output", "answer", "text"} {
		if s, ok := output[key].(string); ok {
			return s
		}
	}
	return ""
}

// evaluateClaims extracts claims from text and, for each, elicits a
// scrubbed-context prior and a full-context posterior probability before
// asking the verifier for its BudgetResult. The worst grounding status
// across claims is returned as the aggregate.
func (a *Adapter) evaluateClaims(ctx context.Context, text string) ([]rlmtypes.Claim, []rlmtypes.BudgetResult, rlmtypes.GroundingStatus) {
	claimList := a.claimExtractor.Extract(text)
	scrubbed := scrub.Scrub(text, scrub.DefaultOptions()).Scrubbed

	var results []rlmtypes.BudgetResult
	worst := rlmtypes.StatusGrounded

	for _, claim := range claimList {
		p0, err := a.elicitor.Elicit(ctx, scrubbed, claim.Text)
		if err != nil {
			logging.OrchestratorWarn("prior elicitation failed for claim %s: %v", claim.ID, err)
			continue
		}
		p1, err := a.elicitor.Elicit(ctx, text, claim.Text)
		if err != nil {
			logging.OrchestratorWarn("posterior elicitation failed for claim %s: %v", claim.ID, err)
			continue
		}
		result := a.verifier.Evaluate(claim, p0, p1)
		results = append(results, result)
		worst = worstGrounding(worst, result.Status)
	}
	return claimList, results, worst
}

var groundingRank = map[rlmtypes.GroundingStatus]int{
	rlmtypes.StatusGrounded:        0,
	rlmtypes.StatusUncertain:       1,
	rlmtypes.StatusWeaklyGrounded:  2,
	rlmtypes.StatusUngrounded:      3,
}

func worstGrounding(current, next rlmtypes.GroundingStatus) rlmtypes.GroundingStatus {
	if groundingRank[next] > groundingRank[current] {
		return next
	}
	return current
}

// PredictElicitor implements Elicitor by asking an LLM to estimate a
// probability directly, sampling Samples times and aggregating the usable
// samples into an unweighted mean with min/max bounds, recording their
// count in NSamples as epistemic.ProbabilityFromSamples does (without
// assuming a binary agree/disagree count, since this estimate is
// continuous).
type PredictElicitor struct {
	module  *predict.Predict
	Samples int
}

// NewPredictElicitor builds a one-field ("probability") signature bound
// to client/model via predict.Predict, reusing the predict/signature
// layers rather than hand-rolling a bespoke completion call.
func NewPredictElicitor(client llm.Client, model string, samples int) *PredictElicitor {
	if samples <= 0 {
		samples = 3
	}
	sig := rlmtypes.Signature{
		Name: "elicit_probability",
		Instruction: "Given the context, estimate the probability (0.0 to 1.0) that the " +
			"claim is true given only the evidence in the context. Respond with a single " +
			"JSON object with one field.",
		Inputs: []rlmtypes.FieldSpec{
			{Name: "context", Type: rlmtypes.FieldString, Required: true},
			{Name: "claim", Type: rlmtypes.FieldString, Required: true},
		},
		Outputs: []rlmtypes.FieldSpec{
			{Name: "probability", Type: rlmtypes.FieldFloat, Required: true},
		},
	}
	module := predict.New(sig, client, model).WithTemperature(0.7)
	return &PredictElicitor{module: module, Samples: samples}
}

// Elicit samples the bound module Samples times and aggregates.
func (e *PredictElicitor) Elicit(ctx context.Context, contextText, claim string) (rlmtypes.Probability, error) {
	var estimates []float64
	var lastErr error
	for i := 0; i < e.Samples; i++ {
		out, err := e.module.Forward(ctx, map[string]interface{}{"context": contextText, "claim": claim})
		if err != nil {
			lastErr = err
			continue
		}
		if v, ok := out["probability"].(float64); ok {
			estimates = append(estimates, v)
		}
	}
	if len(estimates) == 0 {
		if lastErr == nil {
			lastErr = rlmerrors.New(rlmerrors.KindSerialization, "elicitor produced no usable probability samples")
		}
		return rlmtypes.Probability{}, lastErr
	}
	return aggregateEstimates(estimates), nil
}

func aggregateEstimates(estimates []float64) rlmtypes.Probability {
	sum, lower, upper := 0.0, estimates[0], estimates[0]
	for _, e := range estimates {
		sum += e
		if e < lower {
			lower = e
		}
		if e > upper {
			upper = e
		}
	}
	mean := sum / float64(len(estimates))
	return rlmtypes.Probability{
		Estimate: epistemic.Clamp(mean),
		Lower:    epistemic.Clamp(lower),
		Upper:    epistemic.Clamp(upper),
		NSamples: len(estimates),
	}
}

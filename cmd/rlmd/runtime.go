package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rlm-systems/rlm-runtime/internal/adversarial"
	"github.com/rlm-systems/rlm-runtime/internal/claims"
	"github.com/rlm-systems/rlm-runtime/internal/classifier"
	"github.com/rlm-systems/rlm-runtime/internal/config"
	"github.com/rlm-systems/rlm-runtime/internal/costbudget"
	"github.com/rlm-systems/rlm-runtime/internal/epistemic"
	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/llm"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/mangle"
	"github.com/rlm-systems/rlm-runtime/internal/mcptools"
	"github.com/rlm-systems/rlm-runtime/internal/orchestrator"
	"github.com/rlm-systems/rlm-runtime/internal/proof"
	"github.com/rlm-systems/rlm-runtime/internal/sandbox"
	"github.com/rlm-systems/rlm-runtime/internal/trace"
)

// runtime bundles every long-lived dependency a subcommand might need,
// assembled once per invocation from global flags + the loaded config.
// Not every field is populated by every subcommand: buildRuntime takes an
// options struct naming what the caller actually needs.
type runtime struct {
	cfg       *config.Config
	bus       *eventbus.Bus
	costMgr   *costbudget.Manager
	client    llm.Client
	engine    *mangle.Engine
	sandbox   *sandbox.Handle
	classify  *classifier.Classifier
	extractor *claims.Extractor
	verifier  *epistemic.Verifier
	validator *adversarial.Validator
	cascade   *proof.Cascade
	graph     *trace.Graph
	adapter   *orchestrator.Adapter
	tools     *mcptools.Surface
}

type runtimeOptions struct {
	needLLM       bool
	needSandbox   bool
	needMangle    bool
	needValidator bool
	needCascade   bool
	needTrace     bool
	needAdapter   bool
}

func resolveAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return os.Getenv("RLM_API_KEY")
}

func buildRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	rt := &runtime{
		cfg: cfg,
		bus: eventbus.New(256),
	}
	rt.costMgr = costbudget.New(rt.cfg.CostBudgetConfig(), rt.bus)
	rt.classify = classifier.New(rt.cfg.General.ClassifierThreshold, rt.bus)

	if opts.needLLM {
		key := resolveAPIKey()
		if key == "" {
			return nil, fmt.Errorf("no API key: pass --api-key or set RLM_API_KEY")
		}
		client, err := llm.NewGenAIClient(ctx, key, rt.cfg.General.DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("constructing LLM client: %w", err)
		}
		rt.client = client
	}

	if opts.needSandbox {
		rt.sandbox = sandbox.NewHandle()
	}

	if opts.needMangle {
		engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
		if err != nil {
			return nil, fmt.Errorf("constructing mangle engine: %w", err)
		}
		rt.engine = engine
	}

	rt.extractor = claims.New(claims.DefaultOptions())
	rt.verifier = epistemic.New(rt.cfg.EpistemicConfig(), rt.bus)

	if opts.needValidator {
		if rt.client == nil {
			return nil, fmt.Errorf("adversarial review requires an LLM client")
		}
		strategies := []adversarial.Strategy{
			adversarial.CriticStrategy(),
			adversarial.EdgeCaseStrategy(),
			adversarial.SecurityStrategy(),
		}
		rt.validator = adversarial.New(rt.client, rt.cfg.General.ReviewModel, strategies, rt.cfg.AdversarialConfig(), rt.bus)
	}

	if opts.needCascade {
		if rt.sandbox == nil || rt.client == nil || rt.engine == nil {
			return nil, fmt.Errorf("proof cascade requires sandbox, LLM client, and mangle engine")
		}
		rt.cascade = proof.New(rt.sandbox, rt.client, rt.cfg.General.DefaultModel, rt.engine, rt.bus)
	}

	if opts.needTrace {
		rt.graph = trace.New()
	}

	if opts.needAdapter {
		var elicitor orchestrator.Elicitor
		if rt.client != nil {
			elicitor = orchestrator.NewPredictElicitor(rt.client, rt.cfg.General.DefaultModel, 3)
		}
		var executor orchestrator.Executor
		if rt.sandbox != nil {
			executor = rt.sandbox
		}
		rt.adapter = orchestrator.New(orchestrator.Config{
			Classifier:     rt.classify,
			ClaimExtractor: rt.extractor,
			Verifier:       rt.verifier,
			Elicitor:       elicitor,
			Validator:      rt.validator,
			Executor:       executor,
			Bus:            rt.bus,
			CostManager:    rt.costMgr,
		})
		rt.tools = mcptools.New(executor, rt.adapter, mcptools.NewMemoryStore(), rt.graph)
		rt.adapter.SetTools(rt.tools)
	}

	logging.Boot("rlmd: runtime assembled (llm=%v sandbox=%v mangle=%v validator=%v cascade=%v)",
		rt.client != nil, rt.sandbox != nil, rt.engine != nil, rt.validator != nil, rt.cascade != nil)
	return rt, nil
}

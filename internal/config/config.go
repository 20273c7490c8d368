// Package config loads and validates rlmd's TOML configuration: model
// pricing, cost/budget ceilings, classifier thresholds, and the
// epistemic/adversarial/proof tuning knobs the orchestrator's
// constituent packages expose as Config structs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rlm-systems/rlm-runtime/internal/adversarial"
	"github.com/rlm-systems/rlm-runtime/internal/costbudget"
	"github.com/rlm-systems/rlm-runtime/internal/epistemic"
)

// ModelPricing is the per-million-token rate a model bills at, used to
// cost out a rlmtypes.Usage into dollars.
type ModelPricing struct {
	InputPerMillion  float64 `toml:"input_per_million"`
	OutputPerMillion float64 `toml:"output_per_million"`
}

// CostUSD prices usage tokens at this pricing entry's rate.
func (p ModelPricing) CostUSD(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*p.InputPerMillion + float64(outputTokens)/1e6*p.OutputPerMillion
}

// General holds the default models and classifier threshold.
type General struct {
	DefaultModel      string `toml:"default_model"`
	ReviewModel       string `toml:"review_model"`
	ClassifierThreshold int  `toml:"classifier_threshold"`
}

// Budget mirrors costbudget.Config for TOML decoding.
type Budget struct {
	MaxCostUSD   float64 `toml:"max_cost_usd"`
	MaxTokens    int64   `toml:"max_tokens"`
	WarnFraction float64 `toml:"warn_fraction"`
}

func (b Budget) toCostBudgetConfig() costbudget.Config {
	return costbudget.Config{MaxCostUSD: b.MaxCostUSD, MaxTokens: b.MaxTokens, WarnFraction: b.WarnFraction}
}

// Epistemic mirrors epistemic.Config for TOML decoding.
type Epistemic struct {
	HallucinationThreshold float64 `toml:"hallucination_threshold"`
	RejectionThreshold     float64 `toml:"rejection_threshold"`
	AllowWeakGrounding     bool    `toml:"allow_weak_grounding"`
	WeakGroundingPenalty   float64 `toml:"weak_grounding_penalty"`
}

func (e Epistemic) toEpistemicConfig() epistemic.Config {
	return epistemic.Config{
		HallucinationThreshold: e.HallucinationThreshold,
		RejectionThreshold:     e.RejectionThreshold,
		AllowWeakGrounding:     e.AllowWeakGrounding,
		WeakGroundingPenalty:   e.WeakGroundingPenalty,
	}
}

// Adversarial mirrors adversarial.Config for TOML decoding.
type Adversarial struct {
	MaxIterations int     `toml:"max_iterations"`
	MinConfidence float64 `toml:"min_confidence"`
}

func (a Adversarial) toAdversarialConfig() adversarial.Config {
	return adversarial.Config{MaxIterations: a.MaxIterations, MinConfidence: a.MinConfidence}
}

// Proof holds proof-cascade settings. AIAssistedTimeout is loaded and
// defaulted here, but the proof cascade does not read it: every tier, the
// AI-assisted one included, uses rlmtypes.AutomationTier.Budget.
type Proof struct {
	AIAssistedTimeout Duration `toml:"ai_assisted_timeout"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is rlmd's full static configuration.
type Config struct {
	General     General                 `toml:"general"`
	Budget      Budget                  `toml:"budget"`
	Epistemic   Epistemic               `toml:"epistemic"`
	Adversarial Adversarial             `toml:"adversarial"`
	Proof       Proof                   `toml:"proof"`
	Pricing     map[string]ModelPricing `toml:"pricing"`
}

// CostBudgetConfig adapts the decoded Budget section for costbudget.New.
func (c *Config) CostBudgetConfig() costbudget.Config { return c.Budget.toCostBudgetConfig() }

// EpistemicConfig adapts the decoded Epistemic section for epistemic.New.
func (c *Config) EpistemicConfig() epistemic.Config { return c.Epistemic.toEpistemicConfig() }

// AdversarialConfig adapts the decoded Adversarial section for adversarial.New.
func (c *Config) AdversarialConfig() adversarial.Config { return c.Adversarial.toAdversarialConfig() }

// PricingFor looks up model's rate, falling back to zero (free/unknown) if
// the config doesn't price it.
func (c *Config) PricingFor(model string) ModelPricing {
	return c.Pricing[model]
}

// Default returns the runtime's built-in defaults, used when no config
// file is given or a file omits a section.
func Default() *Config {
	return &Config{
		General: General{
			DefaultModel:        "gemini-2.0-flash",
			ReviewModel:         "gemini-2.0-flash",
			ClassifierThreshold: 2,
		},
		Budget:      Budget{MaxCostUSD: 5.0, MaxTokens: 2_000_000, WarnFraction: 0.8},
		Epistemic:   Epistemic{HallucinationThreshold: 0.5, RejectionThreshold: 0.5, AllowWeakGrounding: true, WeakGroundingPenalty: 0.5},
		Adversarial: Adversarial{MaxIterations: 3, MinConfidence: 0.0},
		Proof:       Proof{AIAssistedTimeout: Duration{30 * time.Second}},
		Pricing:     map[string]ModelPricing{},
	}
}

func applyDefaults(cfg *Config, defaults *Config) {
	if cfg.General.DefaultModel == "" {
		cfg.General.DefaultModel = defaults.General.DefaultModel
	}
	if cfg.General.ReviewModel == "" {
		cfg.General.ReviewModel = defaults.General.ReviewModel
	}
	if cfg.General.ClassifierThreshold == 0 {
		cfg.General.ClassifierThreshold = defaults.General.ClassifierThreshold
	}
	if cfg.Budget.MaxCostUSD == 0 {
		cfg.Budget.MaxCostUSD = defaults.Budget.MaxCostUSD
	}
	if cfg.Budget.MaxTokens == 0 {
		cfg.Budget.MaxTokens = defaults.Budget.MaxTokens
	}
	if cfg.Budget.WarnFraction == 0 {
		cfg.Budget.WarnFraction = defaults.Budget.WarnFraction
	}
	if cfg.Adversarial.MaxIterations == 0 {
		cfg.Adversarial.MaxIterations = defaults.Adversarial.MaxIterations
	}
	if cfg.Proof.AIAssistedTimeout.Duration == 0 {
		cfg.Proof.AIAssistedTimeout = defaults.Proof.AIAssistedTimeout
	}
	if cfg.Pricing == nil {
		cfg.Pricing = make(map[string]ModelPricing)
	}
}

func validate(cfg *Config) error {
	if cfg.Budget.MaxCostUSD < 0 {
		return fmt.Errorf("budget.max_cost_usd must be >= 0")
	}
	if cfg.Budget.WarnFraction < 0 || cfg.Budget.WarnFraction > 1 {
		return fmt.Errorf("budget.warn_fraction must be within [0,1]")
	}
	if cfg.General.ClassifierThreshold < 0 {
		return fmt.Errorf("general.classifier_threshold must be >= 0")
	}
	return nil
}

// Load reads and validates a TOML config file at path, filling in any
// omitted section from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg, Default())
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return &cfg, nil
}

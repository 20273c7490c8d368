// Package costbudget tracks token and dollar spend across components and
// enforces a top-level budget ceiling. It generalizes the teacher's
// logging.Timer bucket-accounting pattern (accumulate, then report against
// a threshold) from wall-clock durations to token/cost totals.
package costbudget

import (
	"sync"

	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Manager accumulates per-component token usage and rejects further LLM
// calls once the configured ceiling is exceeded.
type Manager struct {
	mu sync.Mutex

	maxCostUSD   float64
	maxTokens    int64
	warnFraction float64 // fraction of ceiling at which EventBudgetWarning fires

	summary rlmtypes.CostSummary
	warned  bool

	bus *eventbus.Bus
}

// Config sets the budget ceiling a Manager enforces. A zero value for
// either field disables that particular ceiling.
type Config struct {
	MaxCostUSD   float64
	MaxTokens    int64
	WarnFraction float64 // defaults to 0.8 if zero
}

// New constructs a Manager that publishes EventCostRecorded and
// EventBudgetWarning onto bus, if bus is non-nil.
func New(cfg Config, bus *eventbus.Bus) *Manager {
	warn := cfg.WarnFraction
	if warn <= 0 {
		warn = 0.8
	}
	return &Manager{
		maxCostUSD:   cfg.MaxCostUSD,
		maxTokens:    cfg.MaxTokens,
		warnFraction: warn,
		summary:      rlmtypes.CostSummary{ByComponent: make(map[string]*rlmtypes.TokenUsage)},
		bus:          bus,
	}
}

// Record adds usage attributed to component to the running totals. It
// returns a BudgetExhausted error if recording this usage would exceed
// either configured ceiling; the caller is still expected to have already
// incurred the cost (the provider already charged for the call), so
// Record's role is to refuse the *next* call, not to undo this one.
func (m *Manager) Record(component string, usage rlmtypes.Usage, costUSD float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.summary.ByComponent[component]
	if !ok {
		bucket = &rlmtypes.TokenUsage{}
		m.summary.ByComponent[component] = bucket
	}
	bucket.InputTokens += int64(usage.Input)
	bucket.OutputTokens += int64(usage.Output)
	bucket.CacheCreationTokens += int64(usage.CacheCreation)
	bucket.CacheReadTokens += int64(usage.CacheRead)
	bucket.CostUSD += costUSD
	bucket.RequestCount++

	m.summary.InputTokens += int64(usage.Input)
	m.summary.OutputTokens += int64(usage.Output)
	m.summary.CacheCreationTokens += int64(usage.CacheCreation)
	m.summary.CacheReadTokens += int64(usage.CacheRead)
	m.summary.TotalCostUSD += costUSD

	totalTokens := m.summary.InputTokens + m.summary.OutputTokens
	logging.Get(logging.CategoryCostBudget).Debug(
		"%s recorded: +%d tokens, +$%.4f (running total $%.4f)",
		component, usage.Input+usage.Output, costUSD, m.summary.TotalCostUSD)

	if m.bus != nil {
		m.bus.Publish(rlmtypes.EventCostRecorded, 0, component, map[string]interface{}{
			"cost_usd": costUSD,
			"tokens":   usage.Input + usage.Output,
		})
	}

	m.maybeWarnLocked(totalTokens)

	if m.maxCostUSD > 0 && m.summary.TotalCostUSD > m.maxCostUSD {
		return rlmerrors.BudgetExhausted("total cost exceeded ceiling")
	}
	if m.maxTokens > 0 && totalTokens > m.maxTokens {
		return rlmerrors.BudgetExhausted("total token usage exceeded ceiling")
	}
	return nil
}

func (m *Manager) maybeWarnLocked(totalTokens int64) {
	if m.warned {
		return
	}
	costFrac := ratio(m.summary.TotalCostUSD, m.maxCostUSD)
	tokenFrac := ratio(float64(totalTokens), float64(m.maxTokens))
	if costFrac < m.warnFraction && tokenFrac < m.warnFraction {
		return
	}
	m.warned = true
	logging.Get(logging.CategoryCostBudget).Warn("budget at or above %.0f%% of ceiling", m.warnFraction*100)
	if m.bus != nil {
		m.bus.Publish(rlmtypes.EventBudgetWarning, 0, "approaching budget ceiling", nil)
	}
}

// ratio returns 0 if ceiling is non-positive (disabled), else value/ceiling.
func ratio(value, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return value / ceiling
}

// Summary returns a snapshot copy of the running totals.
func (m *Manager) Summary() rlmtypes.CostSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := rlmtypes.CostSummary{
		InputTokens:         m.summary.InputTokens,
		OutputTokens:        m.summary.OutputTokens,
		CacheCreationTokens: m.summary.CacheCreationTokens,
		CacheReadTokens:     m.summary.CacheReadTokens,
		TotalCostUSD:        m.summary.TotalCostUSD,
		ByComponent:         make(map[string]*rlmtypes.TokenUsage, len(m.summary.ByComponent)),
	}
	for name, bucket := range m.summary.ByComponent {
		copied := *bucket
		out.ByComponent[name] = &copied
	}
	return out
}

// Remaining returns how many tokens and how much cost remain before the
// ceiling is hit. A zero (or negative) maximum in the Config disables that
// ceiling, and Remaining reports it here as -1.
func (m *Manager) Remaining() (tokens int64, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxTokens <= 0 {
		tokens = -1
	} else {
		tokens = m.maxTokens - (m.summary.InputTokens + m.summary.OutputTokens)
	}
	if m.maxCostUSD <= 0 {
		costUSD = -1
	} else {
		costUSD = m.maxCostUSD - m.summary.TotalCostUSD
	}
	return tokens, costUSD
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rlmd.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_FillsOmittedSectionsFromDefaults(t *testing.T) {
	path := writeConfig(t, `
[general]
default_model = "gemini-2.0-pro"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-pro", cfg.General.DefaultModel)
	assert.Equal(t, Default().General.ClassifierThreshold, cfg.General.ClassifierThreshold)
	assert.Equal(t, Default().Budget.MaxCostUSD, cfg.Budget.MaxCostUSD)
}

func TestLoad_DecodesPricingTable(t *testing.T) {
	path := writeConfig(t, `
[pricing.gemini-2_0-flash]
input_per_million = 0.075
output_per_million = 0.3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	pricing := cfg.PricingFor("gemini-2_0-flash")
	assert.Equal(t, 0.075, pricing.InputPerMillion)
	assert.InDelta(t, 0.000075, pricing.CostUSD(1000, 0), 1e-9)
}

func TestLoad_RejectsInvalidWarnFraction(t *testing.T) {
	path := writeConfig(t, `
[budget]
warn_fraction = 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestDefault_ProducesValidConfig(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.NotZero(t, cfg.Proof.AIAssistedTimeout.Duration)
}

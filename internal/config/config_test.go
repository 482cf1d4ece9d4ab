package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Issuers, 4)
	assert.Equal(t, 0.95, cfg.Issuers["HDFC"].InitialSuccess)
	assert.Equal(t, 20.0, cfg.Generator.TransactionRate)
	assert.Equal(t, 15.0, cfg.Agent.CycleIntervalSeconds)
	assert.Equal(t, 6, cfg.Agent.MinActionFrequencyCycles)
	assert.Equal(t, 10.0, cfg.Simulation.LoopRate)
	require.NotNil(t, cfg.Simulation.DurationSeconds)
	assert.Equal(t, 600.0, *cfg.Simulation.DurationSeconds)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
issuers:
  HDFC:
    initial_success: 0.90
    initial_latency: 250
    initial_retry_prob: 0.10
generator:
  transaction_rate: 50
agent:
  anomaly_threshold: 3.0
simulation:
  time_scale: 2.0
  demo_mode: true
log_level: DEBUG
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// File entries overlay the defaults; untouched issuers survive.
	assert.Len(t, cfg.Issuers, 4)
	assert.Equal(t, 0.90, cfg.Issuers["HDFC"].InitialSuccess)
	assert.Equal(t, 0.97, cfg.Issuers["ICICI"].InitialSuccess)
	assert.Equal(t, 50.0, cfg.Generator.TransactionRate)
	assert.Equal(t, 3.0, cfg.Agent.AnomalyThreshold)
	assert.Equal(t, 2.0, cfg.Simulation.TimeScale)
	assert.True(t, cfg.Simulation.DemoMode)
	assert.Equal(t, 0.1, cfg.Drift.Theta)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Drift.Theta = 1.5
	cfg.Generator.TransactionRate = 0
	cfg.Agent.MinConfidence = 2.0
	cfg.Issuers["HDFC"] = IssuerConfig{InitialSuccess: 1.4, InitialLatency: 10, InitialRetryProb: 0.9}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "drift.theta must be in [0.0, 1.0]")
	assert.Contains(t, msg, "generator.transaction_rate must be > 0.0")
	assert.Contains(t, msg, "agent.min_confidence must be in [0.0, 1.0]")
	assert.Contains(t, msg, "HDFC: initial_success must be in [0.0, 1.0]")
	assert.Contains(t, msg, "HDFC: initial_latency must be in [50.0, 2000.0]")
	assert.Contains(t, msg, "HDFC: initial_retry_prob must be in [0.0, 0.5]")
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	for in, want := range map[string]string{
		"DEBUG": "DEBUG", "warn": "WARN", "ERROR": "ERROR", "INFO": "INFO", "bogus": "INFO",
	} {
		cfg.LogLevel = in
		assert.Equal(t, want, cfg.SlogLevel().String(), "level %q", in)
	}
}

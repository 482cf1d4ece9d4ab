// Package config loads and validates the agent configuration from
// YAML, with sensible defaults for every field.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/payops/sentinel/internal/drift"
)

// IssuerConfig is the starting health of one issuer.
type IssuerConfig struct {
	InitialSuccess   float64 `yaml:"initial_success"`
	InitialLatency   float64 `yaml:"initial_latency"`
	InitialRetryProb float64 `yaml:"initial_retry_prob"`
}

// GeneratorConfig shapes the synthetic traffic stream.
type GeneratorConfig struct {
	TransactionRate float64 `yaml:"transaction_rate"`
	BufferSize      int     `yaml:"buffer_size"`
}

// AgentConfig tunes the control loop's detection and decision stages.
type AgentConfig struct {
	CycleIntervalSeconds     float64 `yaml:"cycle_interval"`
	WindowDurationMS         int64   `yaml:"window_duration_ms"`
	AnomalyThreshold         float64 `yaml:"anomaly_threshold"`
	MinConfidence            float64 `yaml:"min_confidence"`
	MaxBlastRadius           float64 `yaml:"max_blast_radius"`
	MinActionFrequencyCycles int     `yaml:"min_action_frequency_cycles"`
}

// SimulationConfig controls the outer loop.
type SimulationConfig struct {
	TimeScale       float64  `yaml:"time_scale"`
	DurationSeconds *float64 `yaml:"duration_seconds"`
	LoopRate        float64  `yaml:"loop_rate"`
	Seed            int64    `yaml:"seed"`
	DemoMode        bool     `yaml:"demo_mode"`
}

// InfraConfig wires external systems; every field is optional and
// empty means the corresponding integration stays off.
type InfraConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PubSubProject string `yaml:"pubsub_project"`
	PubSubTopic   string `yaml:"pubsub_topic"`
	ListenAddr    string `yaml:"listen_addr"`
	StateDir      string `yaml:"state_dir"`
	AuditDir      string `yaml:"audit_dir"`
}

// Config is the complete agent configuration.
type Config struct {
	Drift      drift.Config            `yaml:"drift"`
	Issuers    map[string]IssuerConfig `yaml:"issuers"`
	Generator  GeneratorConfig         `yaml:"generator"`
	Agent      AgentConfig             `yaml:"agent"`
	Simulation SimulationConfig        `yaml:"simulation"`
	Infra      InfraConfig             `yaml:"infra"`
	LogLevel   string                  `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Drift: drift.DefaultConfig(),
		Issuers: map[string]IssuerConfig{
			"HDFC":  {InitialSuccess: 0.95, InitialLatency: 200, InitialRetryProb: 0.05},
			"ICICI": {InitialSuccess: 0.97, InitialLatency: 180, InitialRetryProb: 0.03},
			"AXIS":  {InitialSuccess: 0.93, InitialLatency: 220, InitialRetryProb: 0.07},
			"SBI":   {InitialSuccess: 0.94, InitialLatency: 210, InitialRetryProb: 0.06},
		},
		Generator: GeneratorConfig{
			TransactionRate: 20.0,
			BufferSize:      1000,
		},
		Agent: AgentConfig{
			CycleIntervalSeconds:     15.0,
			WindowDurationMS:         300000,
			AnomalyThreshold:         2.0,
			MinConfidence:            0.7,
			MaxBlastRadius:           0.3,
			MinActionFrequencyCycles: 6,
		},
		Simulation: SimulationConfig{
			TimeScale:       1.0,
			DurationSeconds: float64Ptr(600.0),
			LoopRate:        10.0,
		},
		Infra: InfraConfig{
			ListenAddr: ":8090",
			StateDir:   "data/state",
			AuditDir:   "data/audit",
		},
		LogLevel: "INFO",
	}
}

func float64Ptr(v float64) *float64 { return &v }

// Load reads a YAML configuration file over the defaults and validates
// the result. File values overlay defaults; issuer entries merge into
// the default issuer set.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Info("configuration loaded",
		"path", path, "issuers", len(cfg.Issuers),
		"rate", cfg.Generator.TransactionRate, "cycle_s", cfg.Agent.CycleIntervalSeconds)
	return cfg, nil
}

// Validate checks every parameter range and reports all violations at
// once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Drift.Theta < 0 || c.Drift.Theta > 1 {
		add("drift.theta must be in [0.0, 1.0], got %v", c.Drift.Theta)
	}
	if c.Drift.Sigma < 0 {
		add("drift.sigma must be >= 0.0, got %v", c.Drift.Sigma)
	}
	if c.Drift.MeanSuccess < 0 || c.Drift.MeanSuccess > 1 {
		add("drift.mean_success must be in [0.0, 1.0], got %v", c.Drift.MeanSuccess)
	}
	if c.Drift.MeanLatency < 50 || c.Drift.MeanLatency > 2000 {
		add("drift.mean_latency must be in [50.0, 2000.0], got %v", c.Drift.MeanLatency)
	}
	if c.Drift.MeanRetry < 0 || c.Drift.MeanRetry > 0.5 {
		add("drift.mean_retry must be in [0.0, 0.5], got %v", c.Drift.MeanRetry)
	}

	if len(c.Issuers) == 0 {
		add("at least one issuer must be configured")
	}
	for name, ic := range c.Issuers {
		if ic.InitialSuccess < 0 || ic.InitialSuccess > 1 {
			add("%s: initial_success must be in [0.0, 1.0]", name)
		}
		if ic.InitialLatency < 50 || ic.InitialLatency > 2000 {
			add("%s: initial_latency must be in [50.0, 2000.0]", name)
		}
		if ic.InitialRetryProb < 0 || ic.InitialRetryProb > 0.5 {
			add("%s: initial_retry_prob must be in [0.0, 0.5]", name)
		}
	}

	if c.Generator.TransactionRate <= 0 {
		add("generator.transaction_rate must be > 0.0, got %v", c.Generator.TransactionRate)
	}
	if c.Generator.BufferSize <= 0 {
		add("generator.buffer_size must be > 0, got %v", c.Generator.BufferSize)
	}

	if c.Agent.CycleIntervalSeconds <= 0 {
		add("agent.cycle_interval must be > 0.0, got %v", c.Agent.CycleIntervalSeconds)
	}
	if c.Agent.WindowDurationMS <= 0 {
		add("agent.window_duration_ms must be > 0, got %v", c.Agent.WindowDurationMS)
	}
	if c.Agent.AnomalyThreshold <= 0 {
		add("agent.anomaly_threshold must be > 0.0, got %v", c.Agent.AnomalyThreshold)
	}
	if c.Agent.MinConfidence < 0 || c.Agent.MinConfidence > 1 {
		add("agent.min_confidence must be in [0.0, 1.0], got %v", c.Agent.MinConfidence)
	}
	if c.Agent.MaxBlastRadius < 0 || c.Agent.MaxBlastRadius > 1 {
		add("agent.max_blast_radius must be in [0.0, 1.0], got %v", c.Agent.MaxBlastRadius)
	}
	if c.Agent.MinActionFrequencyCycles <= 0 {
		add("agent.min_action_frequency_cycles must be > 0, got %v", c.Agent.MinActionFrequencyCycles)
	}

	if c.Simulation.TimeScale <= 0 {
		add("simulation.time_scale must be > 0.0, got %v", c.Simulation.TimeScale)
	}
	if c.Simulation.DurationSeconds != nil && *c.Simulation.DurationSeconds <= 0 {
		add("simulation.duration_seconds must be > 0.0 or unset, got %v", *c.Simulation.DurationSeconds)
	}
	if c.Simulation.LoopRate <= 0 {
		add("simulation.loop_rate must be > 0.0, got %v", c.Simulation.LoopRate)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SlogLevel maps the configured log level string onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package drift evolves per-issuer health parameters with a
// mean-reverting Ornstein-Uhlenbeck process, plus occasional retry
// spikes that model retry storms.
package drift

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
)

// IssuerState is the current drifting health of one issuer. Values are
// clamped: success rate [0,1], latency [50,2000] ms, retry prob [0,0.5].
type IssuerState struct {
	Issuer      string  `json:"issuer"`
	SuccessRate float64 `json:"success_rate"`
	LatencyMS   float64 `json:"latency_ms"`
	RetryProb   float64 `json:"retry_prob"`
	LastUpdated float64 `json:"last_updated"`
}

// Config holds the process parameters. dx = theta*(mean-x)*dt + sigma*dW.
type Config struct {
	Theta       float64 `yaml:"theta"`
	Sigma       float64 `yaml:"sigma"`
	MeanSuccess float64 `yaml:"mean_success"`
	MeanLatency float64 `yaml:"mean_latency"`
	MeanRetry   float64 `yaml:"mean_retry"`

	SigmaSuccess float64 `yaml:"sigma_success"`
	SigmaLatency float64 `yaml:"sigma_latency"`
	SigmaRetry   float64 `yaml:"sigma_retry"`

	RetrySpikeProb      float64 `yaml:"retry_spike_prob"`
	RetrySpikeMagnitude float64 `yaml:"retry_spike_magnitude"`
	RetryDecayRate      float64 `yaml:"retry_decay_rate"`
}

// DefaultConfig returns the standard drift parameters.
func DefaultConfig() Config {
	return Config{
		Theta:               0.1,
		Sigma:               0.05,
		MeanSuccess:         0.95,
		MeanLatency:         200.0,
		MeanRetry:           0.05,
		SigmaSuccess:        0.05,
		SigmaLatency:        20.0,
		SigmaRetry:          0.02,
		RetrySpikeProb:      0.01,
		RetrySpikeMagnitude: 0.2,
		RetryDecayRate:      0.99,
	}
}

// Engine drifts a set of issuer states. Not safe for concurrent use by
// itself; the loop goroutine owns it.
type Engine struct {
	cfg       Config
	rng       *rand.Rand
	log       *slog.Logger
	mu        sync.RWMutex
	issuers   map[string]*IssuerState
	order     []string
	timeScale float64
}

// NewEngine builds an engine with its own seeded RNG so runs are
// reproducible.
func NewEngine(cfg Config, seed int64, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
		log:       log,
		issuers:   make(map[string]*IssuerState),
		timeScale: 1.0,
	}
	log.Info("drift engine initialized", "theta", cfg.Theta, "sigma", cfg.Sigma)
	return e
}

// AddIssuer registers an issuer with its initial parameters.
func (e *Engine) AddIssuer(name string, success, latencyMS, retryProb float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.issuers[name]; !ok {
		e.order = append(e.order, name)
	}
	e.issuers[name] = &IssuerState{
		Issuer:      name,
		SuccessRate: clamp(success, 0, 1),
		LatencyMS:   clamp(latencyMS, 50, 2000),
		RetryProb:   clamp(retryProb, 0, 0.5),
	}
	e.log.Info("issuer registered",
		"issuer", name, "success", success, "latency_ms", latencyMS, "retry_prob", retryProb)
}

// SetTimeScale accelerates simulated time (1.0 = real time).
func (e *Engine) SetTimeScale(scale float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if scale > 0 {
		e.timeScale = scale
	}
}

// Update advances every issuer by dt seconds of wall time.
func (e *Engine) Update(dt, now float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sdt := dt * e.timeScale
	if sdt <= 0 {
		return
	}
	sqrtDT := math.Sqrt(sdt)
	for _, name := range e.order {
		is := e.issuers[name]

		is.SuccessRate += e.cfg.Theta*(e.cfg.MeanSuccess-is.SuccessRate)*sdt +
			e.cfg.SigmaSuccess*e.rng.NormFloat64()*sqrtDT
		is.SuccessRate = clamp(is.SuccessRate, 0, 1)

		is.LatencyMS += e.cfg.Theta*(e.cfg.MeanLatency-is.LatencyMS)*sdt +
			e.cfg.SigmaLatency*e.rng.NormFloat64()*sqrtDT
		is.LatencyMS = clamp(is.LatencyMS, 50, 2000)

		if e.rng.Float64() < e.cfg.RetrySpikeProb*sdt {
			is.RetryProb += e.cfg.RetrySpikeMagnitude
			e.log.Debug("retry spike", "issuer", name, "retry_prob", is.RetryProb)
		} else {
			drift := e.cfg.Theta * (e.cfg.MeanRetry - is.RetryProb) * sdt
			decay := is.RetryProb * (1 - e.cfg.RetryDecayRate) * sdt
			is.RetryProb += drift - decay + e.cfg.SigmaRetry*e.rng.NormFloat64()*sqrtDT
		}
		is.RetryProb = clamp(is.RetryProb, 0, 0.5)
		is.LastUpdated = now
	}
}

// Force pins an issuer to explicit values, keeping the clamps. Used by
// demo-mode failure injection.
func (e *Engine) Force(name string, success, latencyMS float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if is, ok := e.issuers[name]; ok {
		is.SuccessRate = clamp(success, 0, 1)
		is.LatencyMS = clamp(latencyMS, 50, 2000)
	}
}

// State returns a copy of one issuer's state.
func (e *Engine) State(name string) (IssuerState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	is, ok := e.issuers[name]
	if !ok {
		return IssuerState{}, false
	}
	return *is, true
}

// States returns copies of all issuer states in registration order.
func (e *Engine) States() []IssuerState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]IssuerState, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, *e.issuers[name])
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

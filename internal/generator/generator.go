// Package generator produces the synthetic payment stream. Issuer
// health comes from the drift engine; intervention feedback arrives as
// volume/success/retry multipliers.
package generator

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/payops/sentinel/internal/core"
	"github.com/payops/sentinel/internal/drift"
)

const (
	failSoftShare = 0.7 // remaining 30% of failures are hard
	maxRetries    = 10
)

// Generator emits batches of transactions at a target rate, buffered in
// a shared ring. Safe for concurrent multiplier updates; batch
// generation itself belongs to the loop goroutine.
type Generator struct {
	engine *drift.Engine
	buffer *core.Ring
	rate   float64
	log    *slog.Logger
	rng    *rand.Rand
	nowMS  func() int64

	mu          sync.RWMutex
	successMult map[string]float64
	volumeMult  map[string]float64
	retryMult   float64

	counter int64
}

// New builds a generator over the given drift engine. rate is target
// transactions per second; the ring holds the most recent bufferSize
// transactions.
func New(engine *drift.Engine, rate float64, bufferSize int, seed int64, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	g := &Generator{
		engine:      engine,
		buffer:      core.NewRing(bufferSize),
		rate:        rate,
		log:         log,
		rng:         rand.New(rand.NewSource(seed)),
		nowMS:       func() int64 { return time.Now().UnixMilli() },
		successMult: make(map[string]float64),
		volumeMult:  make(map[string]float64),
		retryMult:   1.0,
	}
	log.Info("payment generator initialized", "rate", rate, "buffer", bufferSize)
	return g
}

// SetClock overrides the wall clock. Tests use this for reproducible
// timestamps.
func (g *Generator) SetClock(nowMS func() int64) { g.nowMS = nowMS }

// Buffer exposes the shared transaction ring.
func (g *Generator) Buffer() *core.Ring { return g.buffer }

// SetSuccessMultiplier scales an issuer's effective success rate.
func (g *Generator) SetSuccessMultiplier(issuer string, m float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successMult[issuer] = m
	g.log.Info("success multiplier set", "issuer", issuer, "multiplier", m)
}

// SetVolumeMultiplier scales an issuer's share of generated traffic.
func (g *Generator) SetVolumeMultiplier(issuer string, m float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volumeMult[issuer] = m
	g.log.Info("volume multiplier set", "issuer", issuer, "multiplier", m)
}

// SetRetryMultiplier scales the global retry probability.
func (g *Generator) SetRetryMultiplier(m float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retryMult = m
	g.log.Info("retry multiplier set", "multiplier", m)
}

// ClearMultipliers resets all feedback to neutral.
func (g *Generator) ClearMultipliers() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successMult = make(map[string]float64)
	g.volumeMult = make(map[string]float64)
	g.retryMult = 1.0
}

// GenerateBatch emits transactions covering dt seconds of stream time.
// At least one transaction is produced for any positive dt.
func (g *Generator) GenerateBatch(dt float64) []core.Transaction {
	count := int(g.rate * dt)
	if count == 0 && dt > 0 {
		count = 1
	}
	if count <= 0 {
		return nil
	}

	states := g.engine.States()
	if len(states) == 0 {
		return nil
	}

	g.mu.RLock()
	successMult := make(map[string]float64, len(g.successMult))
	for k, v := range g.successMult {
		successMult[k] = v
	}
	weights := make([]float64, len(states))
	for i, s := range states {
		w, ok := g.volumeMult[s.Issuer]
		if !ok {
			w = 1.0
		}
		weights[i] = w
	}
	retryMult := g.retryMult
	g.mu.RUnlock()

	nowMS := g.nowMS()
	txns := make([]core.Transaction, 0, count)
	for i := 0; i < count; i++ {
		state := states[g.pickWeighted(weights)]

		effSuccess := clamp(state.SuccessRate*multOr1(successMult, state.Issuer), 0, 1)
		effRetry := clamp(state.RetryProb*retryMult, 0, 0.5)

		outcome := g.outcome(effSuccess)
		g.counter++
		txn := core.Transaction{
			ID:         fmt.Sprintf("txn_%d_%d", nowMS, g.counter),
			Timestamp:  nowMS + int64(float64(i)*(dt*1000/float64(count))),
			MerchantID: fmt.Sprintf("merchant_%d", 1+g.rng.Intn(20)),
			Amount:     10 + g.rng.Float64()*990,
			Method:     core.MethodCard,
			Issuer:     state.Issuer,
			Geography:  geographies[g.rng.Intn(len(geographies))],
			Outcome:    outcome,
			LatencyMS:  g.latency(state.LatencyMS),
			RetryCount: g.retries(effRetry),
		}
		if outcome != core.OutcomeSuccess {
			txn.ErrorCode = fmt.Sprintf("ERR_%d", 1000+g.rng.Intn(9000))
		}
		txns = append(txns, txn)
	}

	g.buffer.AddBatch(txns)
	return txns
}

var geographies = []string{"US", "EU", "ASIA"}

func (g *Generator) pickWeighted(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return g.rng.Intn(len(weights))
	}
	target := g.rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}

func (g *Generator) outcome(effSuccess float64) core.Outcome {
	if g.rng.Float64() < effSuccess {
		return core.OutcomeSuccess
	}
	if g.rng.Float64() < failSoftShare {
		return core.OutcomeSoftFail
	}
	return core.OutcomeHardFail
}

func (g *Generator) latency(base float64) int {
	variation := base * 0.2
	l := base + (g.rng.Float64()*2-1)*variation
	return int(clamp(l, 50, 2000))
}

func (g *Generator) retries(effRetry float64) int {
	if g.rng.Float64() >= effRetry {
		return 0
	}
	n := int(g.rng.ExpFloat64() * 2.0)
	if n > maxRetries {
		n = maxRetries
	}
	return n
}

func multOr1(m map[string]float64, key string) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return 1.0
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

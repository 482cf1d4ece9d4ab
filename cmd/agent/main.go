// Command agent runs the autonomous payment-infrastructure control
// loop: synthetic traffic generation, anomaly detection, intervention
// planning and execution, and live dashboard telemetry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/payops/sentinel/internal/agent"
	"github.com/payops/sentinel/internal/config"
	"github.com/payops/sentinel/internal/events"
	"github.com/payops/sentinel/internal/infra"
	"github.com/payops/sentinel/internal/memory"
	"github.com/payops/sentinel/internal/metrics"
	"github.com/payops/sentinel/internal/telemetry"
)

const (
	exitOK        = 0
	exitError     = 1
	exitInterrupt = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML configuration (defaults apply when empty)")
	demo := flag.Bool("demo", false, "force a visible failure every fifth cycle")
	duration := flag.Float64("duration", 0, "run duration in seconds (0 uses the configured value)")
	flag.Parse()

	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	if *demo {
		cfg.Simulation.DemoMode = true
	}
	if *duration > 0 {
		cfg.Simulation.DurationSeconds = duration
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(log)

	emitter, closeEmitter := buildEmitter(cfg, log)
	defer closeEmitter()

	rt, err := agent.NewRuntime(cfg, emitter, metrics.NewMetrics(), log)
	if err != nil {
		log.Error("runtime init failed", "err", err)
		return exitError
	}

	hydrateIncidents(cfg, rt.Incidents, log)

	srv := telemetry.NewServer(cfg.Infra.ListenAddr, rt.Hub, rt.Loop.Status, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("telemetry server failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = rt.Loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("telemetry shutdown failed", "err", serr)
	}

	switch {
	case err != nil:
		log.Error("control loop failed", "err", err)
		return exitError
	case ctx.Err() != nil:
		log.Info("interrupted, shutting down")
		return exitInterrupt
	default:
		return exitOK
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// buildEmitter picks the event backend: Pub/Sub when configured, the
// in-memory bus otherwise.
func buildEmitter(cfg *config.Config, log *slog.Logger) (events.EventEmitter, func()) {
	if cfg.Infra.PubSubProject == "" || cfg.Infra.PubSubTopic == "" {
		return events.NewEventBus(), func() {}
	}
	bus, err := events.NewPubSubEventBus(cfg.Infra.PubSubProject, cfg.Infra.PubSubTopic)
	if err != nil {
		log.Warn("Pub/Sub unavailable, using in-memory event bus", "err", err)
		return events.NewEventBus(), func() {}
	}
	return bus, func() {
		if err := bus.Close(); err != nil {
			log.Warn("Pub/Sub close failed", "err", err)
		}
	}
}

// hydrateIncidents loads archived incidents from Redis into the
// in-memory store. Redis being down degrades to the seed corpus.
func hydrateIncidents(cfg *config.Config, store *memory.Store, log *slog.Logger) {
	if cfg.Infra.RedisAddr == "" {
		return
	}
	client, err := infra.NewGoRedisAdapter(cfg.Infra.RedisAddr, cfg.Infra.RedisPassword, cfg.Infra.RedisDB)
	if err != nil {
		log.Warn("Redis unavailable, using seeded incident memory only", "err", err)
		return
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := memory.NewRedisArchive(client, log).Hydrate(ctx, store)
	if err != nil {
		log.Warn("incident hydration failed", "err", err)
		return
	}
	log.Info("incident memory hydrated from Redis", "loaded", n)
}

// Command gatewayd runs the capability-learning execution gateway: it
// wires the registry, trace store, hypergraph, ranker, threshold
// manager, planner, executor, and tool-provider bridge together behind
// a single HTTP endpoint and serves until interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/internal/executor"
	"github.com/antigravity-dev/capgate/internal/gateway"
	"github.com/antigravity-dev/capgate/internal/hyperpath"
	"github.com/antigravity-dev/capgate/internal/ranker"
	"github.com/antigravity-dev/capgate/internal/registry"
	"github.com/antigravity-dev/capgate/internal/staticstruct"
	"github.com/antigravity-dev/capgate/internal/thompson"
	"github.com/antigravity-dev/capgate/internal/toolprovider"
	"github.com/antigravity-dev/capgate/internal/tracestore"
	"github.com/antigravity-dev/capgate/internal/vector"
	"github.com/antigravity-dev/capgate/resilience"
	"github.com/antigravity-dev/capgate/telemetry"
)

func main() {
	opts := []core.Option{}
	if path := os.Getenv("CAPGATE_CONFIG_FILE"); path != "" {
		opts = append(opts, core.WithConfigFile(path))
	}

	cfg, err := core.NewConfig(opts...)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

	var coreTelemetry core.Telemetry
	if cfg.Telemetry.Enabled {
		coreTelemetry, err = telemetry.EnableTelemetry(cfg.Name, cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("enabling telemetry: %v", err)
		}
		telemetry.EnableFrameworkIntegration(telemetry.NewTelemetryLogger(cfg.Name))
		logger.Info("telemetry enabled", map[string]interface{}{"endpoint": cfg.Telemetry.Endpoint})
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("parsing redis url: %v", err)
		}
		redisClient = redis.NewClient(redisOpts)
	}

	reg := buildRegistry(redisClient, logger)
	traces := buildTraceStore(redisClient, cfg.Thompson.Seed)
	checkpoints := buildCheckpointStore(redisClient)

	embeddings := vector.NewStaticProvider(cfg.Ranker.EmbeddingDim)
	hg := hyperpath.New(logger)
	rk := ranker.New(ranker.Config{
		Heads:        cfg.Ranker.Heads,
		Dim:          cfg.Ranker.EmbeddingDim,
		HeadDim:      cfg.Ranker.EmbeddingDim / cfg.Ranker.Heads,
		Seed:         cfg.Thompson.Seed,
		LearningRate: cfg.Ranker.LearningRate,
	}, logger)
	tm := thompson.New(thompson.Config{
		PriorAlpha: cfg.Thompson.PriorAlpha,
		PriorBeta:  cfg.Thompson.PriorBeta,
		Seed:       cfg.Thompson.Seed,
	}, logger)

	tools := buildToolProvider(cfg, logger, coreTelemetry)

	ex := executor.New(tools, checkpoints, logger,
		executor.WithMaxConcurrency(cfg.Executor.MaxConcurrency),
		executor.WithThompsonGate(tm, approvalThreshold(cfg)))

	builder := staticstruct.NewBuilder(nil)

	scope := registry.Scope{Org: cfg.Registry.FQDNOrg, Project: cfg.Registry.FQDNProject}
	gwCfg := gateway.DefaultConfig(scope)
	gwCfg.CreatedBy = cfg.Name
	gwCfg.ApprovalThreshold = approvalThreshold(cfg)

	handler := gateway.New(gwCfg, reg, traces, embeddings, hg, rk, tm, ex, tools, builder, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", executeHandler(handler, logger))
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/healthz/telemetry", telemetry.HealthHandler)

	traced := telemetry.TracingMiddlewareWithConfig(cfg.Name, &telemetry.TracingMiddlewareConfig{
		ExcludedPaths: []string{"/healthz"},
	})(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Server.Port),
		Handler:      traced,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("shutdown complete", nil)
}

func approvalThreshold(cfg *core.Config) float64 {
	// No dedicated config knob for this yet; the default matches
	// gateway.DefaultConfig's ApprovalThreshold.
	return 0.5
}

func buildRegistry(client *redis.Client, logger core.Logger) *registry.Registry {
	if client != nil {
		return registry.New(registry.NewRedisStore(client, 0), logger)
	}
	return registry.New(registry.NewInMemoryStore(), logger)
}

func buildTraceStore(client *redis.Client, seed int64) *tracestore.TraceStore {
	if client != nil {
		return tracestore.New(tracestore.NewRedisStore(client), seed)
	}
	return tracestore.New(tracestore.NewInMemoryStore(), seed)
}

func buildCheckpointStore(client *redis.Client) executor.CheckpointStore {
	if client != nil {
		return executor.NewRedisCheckpointStore(client, 24*time.Hour)
	}
	return executor.NewInMemoryCheckpointStore()
}

func buildToolProvider(cfg *core.Config, logger core.Logger, tel core.Telemetry) toolprovider.Provider {
	if cfg.Development.MockTools {
		return toolprovider.NewMockProvider([]toolprovider.ToolDescriptor{
			{ID: "fs:read_file", DisplayName: "Read a file"},
			{ID: "fs:write_file", DisplayName: "Write a file"},
			{ID: "http:get", DisplayName: "HTTP GET"},
		})
	}
	runnerURL := os.Getenv("CAPGATE_RUNNER_URL")
	if runnerURL == "" {
		runnerURL = "http://localhost:9090"
	}
	p, err := toolprovider.NewHTTPProvider(runnerURL, logger, resilience.ResilienceDependencies{
		Logger:    logger,
		Telemetry: tel,
	})
	if err != nil {
		log.Fatalf("building tool provider: %v", err)
	}
	return p
}

func executeHandler(h *gateway.Handler, logger core.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var args gateway.ExecuteArgs
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := h.Execute(r.Context(), args)
		if err != nil {
			logger.WarnWithContext(r.Context(), "execute failed", map[string]interface{}{"error": err.Error()})
			status := http.StatusInternalServerError
			if kind, ok := core.KindOf(err); ok {
				switch kind {
				case core.KindInvalidArgument, core.KindCodeTooLarge, core.KindNoDAG, core.KindInvalidName:
					status = http.StatusBadRequest
				case core.KindNotFound:
					status = http.StatusNotFound
				case core.KindCollision:
					status = http.StatusConflict
				case core.KindApprovalRejected:
					status = http.StatusForbidden
				case core.KindStateViolation:
					status = http.StatusConflict
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

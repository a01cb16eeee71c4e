package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chaingate/internal/cache"
	"chaingate/internal/chains"
	"chaingate/internal/config"
	"chaingate/internal/gateway"
	"chaingate/internal/meter"
	"chaingate/internal/metrics"
	"chaingate/internal/subscribe"
)

// Server wires the gateway, subscription, admin, and metrics surfaces onto
// one HTTP listener.
type Server struct {
	cfg         *config.Config
	gw          *gateway.Gateway
	registry    *chains.Registry
	tieredCache *cache.Tiered
	redisStore  *cache.RedisStore // nil without a shared Redis tier
	recorder    *meter.Recorder
	httpServer  *http.Server
	logger      zerolog.Logger
}

// New builds the full request-serving stack from config
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		return nil, fmt.Errorf("failed to build chain registry: %w", err)
	}

	// One Redis connection is shared by the cache, the rate gate, and the
	// usage sink when an address is configured.
	var redisStore *cache.RedisStore
	if cfg.IsCacheEnabled() && cfg.Cache.RedisAddr != "" {
		redisStore, err = cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPass, cfg.Cache.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect shared cache store: %w", err)
		}
	}

	tieredCache, err := buildCache(cfg, redisStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}

	var gate *meter.Gate
	if cfg.Rate.Enabled {
		var counters meter.CounterStore
		if redisStore != nil {
			counters = meter.NewRedisCounterStore(redisStore.Client())
		} else {
			counters = meter.NewMemoryCounterStore()
		}
		gate = meter.NewGate(counters, cfg.Rate.GetWindowDuration())
	}

	var sink meter.UsageSink
	if redisStore != nil {
		sink = meter.NewRedisSink(redisStore.Client())
	} else {
		sink = meter.NewLogSink(logger)
	}
	recorder := meter.NewRecorder(sink, cfg.Rate.UsageBufferSize, logger)

	m := metrics.New()
	gw := gateway.New(cfg, registry, tieredCache, gate, recorder, m, logger)

	wsHandler := subscribe.NewHandler(gw.Serve, gw.Client, cfg.GetHeadPollIntervalDuration(), logger)

	rpcHandler := gateway.NewHandler(gw, cfg.MaxBodySize)
	rpcHandler.WSUpgrade = wsHandler.Upgrade

	s := &Server{
		cfg:         cfg,
		gw:          gw,
		registry:    registry,
		tieredCache: tieredCache,
		redisStore:  redisStore,
		recorder:    recorder,
		logger:      logger.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc/", rpcHandler)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/admin/stats", s.handleStats)
	mux.HandleFunc("/admin/invalidate", s.handleInvalidate)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s, nil
}

// buildCache assembles the multi-tier cache from config. Without a Redis
// address the shared tier runs in-process; with caching disabled entirely
// only the in-memory layer exists and every tiered Get for a cacheable
// method still resolves correctly.
func buildCache(cfg *config.Config, redisStore *cache.RedisStore, logger zerolog.Logger) (*cache.Tiered, error) {
	localSize := config.DefaultCacheLocalSize
	localTTL := time.Duration(config.DefaultCacheLocalTTL) * time.Second

	var shared cache.Store
	if cfg.IsCacheEnabled() {
		if cfg.Cache.LocalSize > 0 {
			localSize = cfg.Cache.LocalSize
		}
		if cfg.Cache.LocalTTL > 0 {
			localTTL = cfg.Cache.GetLocalTTLDuration()
		}

		if redisStore != nil {
			shared = redisStore
		} else {
			shared = cache.NewMemoryStore()
		}
	}

	local, err := cache.NewLocal(localSize)
	if err != nil {
		return nil, err
	}

	return cache.NewTiered(local, shared, localTTL, logger), nil
}

// Start begins serving and blocks until the context is cancelled or the
// listener fails
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeoutDuration())
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	// Drain buffered usage records and release cache resources after the
	// listener stops accepting work.
	s.recorder.Close()
	s.tieredCache.Close()

	return err
}

// handleStats exposes cache counters read-only
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.gw.CacheStats())
}

// handleInvalidate removes cached entries matching the query scope. Scope
// narrows left to right: chain, then network, then method; omitting all
// three is rejected to keep a stray request from flushing everything.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	chain := q.Get("chain")
	network := q.Get("network")
	if chain == "" {
		http.Error(w, "chain is required", http.StatusBadRequest)
		return
	}
	if network != "" && !s.registry.Has(chain, network) {
		http.Error(w, "unknown chain network", http.StatusNotFound)
		return
	}

	removed, err := s.gw.Invalidate(r.Context(), chain, network, q.Get("method"))
	if err != nil {
		if errors.Is(err, cache.ErrInvalidScope) {
			http.Error(w, "method requires a network", http.StatusBadRequest)
			return
		}
		s.logger.Error().Err(err).Msg("invalidation failed")
		http.Error(w, "invalidation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"removed": removed})
}

// handleHealth reports liveness, including the shared Redis tier when one is
// configured
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.redisStore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redisStore.Ping(ctx); err != nil {
			http.Error(w, "shared cache unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thushan/llamatap/internal/adapter/auditlog"
	"github.com/thushan/llamatap/internal/adapter/extractcache"
	"github.com/thushan/llamatap/internal/adapter/proxy"
	"github.com/thushan/llamatap/internal/adapter/registry"
	"github.com/thushan/llamatap/internal/adapter/stats"
	"github.com/thushan/llamatap/internal/adapter/tlspolicy"
	"github.com/thushan/llamatap/internal/adapter/tokens"
	"github.com/thushan/llamatap/internal/app/middleware"
	"github.com/thushan/llamatap/internal/app/services"
	"github.com/thushan/llamatap/internal/config"
	"github.com/thushan/llamatap/internal/core/constants"
	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/logger"
	"github.com/thushan/llamatap/internal/router"
	"github.com/thushan/llamatap/pkg/profiler"
)

// Application wires the proxy pipeline to its listeners. Every component is built in
// New; nothing touches the network or the config files until Start.
type Application struct {
	StartTime   time.Time
	config      *config.Config
	logger      *logger.StyledLogger
	manager     *services.ServiceManager
	registry    *registry.Registry
	policy      *tlspolicy.Policy
	counter     *tokens.Counter
	audit       *auditlog.Logger
	extractions *extractcache.Cache[string, domain.Extraction]
	stats       *stats.Collector
	proxy       *proxy.Service
	routes      *router.RouteRegistry
	httpService *services.HTTPService
}

func New(cfg *config.Config, log *logger.StyledLogger) (*Application, error) {
	maxBody, err := cfg.Server.MaxBodyBytes()
	if err != nil {
		return nil, err
	}
	captureLimit, err := cfg.Proxy.CaptureLimitBytes()
	if err != nil {
		return nil, err
	}

	a := &Application{
		StartTime: time.Now(),
		config:    cfg,
		logger:    log,
		manager:   services.NewServiceManager(log),
		registry:  registry.New(log),
		stats:     stats.NewCollector(prometheus.NewRegistry()),
		routes:    router.NewRouteRegistry(log),
	}

	a.policy = tlspolicy.NewPolicy(nil, tlspolicy.TransportOptions{
		ConnectionTimeout: cfg.Proxy.ConnectionTimeout,
	}, log)

	a.counter = tokens.NewCounter(tokens.Config{
		Factory:       tokens.TiktokenFactory(cfg.Tokens.FallbackEncoding),
		CacheSize:     cfg.Tokens.EncoderCacheSize,
		MaxConcurrent: int64(cfg.Tokens.MaxConcurrent),
		OnEvict: func(string) {
			a.stats.RecordEviction(stats.CacheEncoder, stats.EvictCapacity)
		},
	}, log)

	a.extractions = extractcache.New[string, domain.Extraction](extractcache.Config[string]{
		Capacity:      cfg.Cache.Capacity,
		TTL:           cfg.Cache.TTL,
		SweepInterval: cfg.Cache.SweepInterval,
		OnEvict: func(_ string, reason extractcache.EvictReason) {
			a.stats.RecordEviction(stats.CacheExtraction, string(reason))
		},
	})

	a.audit, err = auditlog.New(auditlog.Config{
		File:           cfg.Audit.File,
		MaxSizeMB:      cfg.Audit.MaxSize,
		MaxBackups:     cfg.Audit.MaxBackups,
		PendingTimeout: cfg.Audit.PendingTimeout,
	}, log)
	if err != nil {
		a.extractions.Close()
		return nil, err
	}

	a.proxy, err = proxy.NewService(proxy.Dependencies{
		Resolver:    a.registry,
		Transports:  a.policy,
		Tokens:      a.counter,
		Audit:       a.audit,
		Extractions: a.extractions,
		Stats:       a.stats,
	}, &proxy.Configuration{
		UpstreamTimeout:  cfg.Proxy.UpstreamTimeout,
		MaxBodySize:      maxBody,
		CaptureLimit:     int(captureLimit),
		StreamBufferSize: cfg.Proxy.StreamBufferSize,
	}, log)
	if err != nil {
		_ = a.audit.Close()
		a.extractions.Close()
		return nil, fmt.Errorf("failed to create proxy service: %w", err)
	}

	a.registerRoutes()
	if err := a.registerServices(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Application) registerServices() error {
	sources := services.NewSourcesService(a.config.Providers, a.registry, a.policy, a.logger)
	pipeline := services.NewPipelineService(a.counter, a.audit, a.extractions, a.logger)
	a.httpService = services.NewHTTPService("http", &http.Server{
		Addr:         a.config.Server.GetAddress(),
		Handler:      a.Handler(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}, []string{sources.Name(), pipeline.Name()}, a.logger)

	managed := []services.ManagedService{
		sources,
		services.NewWatcherService(a.config.Providers, sources, a.logger),
		pipeline,
		a.httpService,
	}
	if addr := a.config.Telemetry.MetricsAddress; addr != "" {
		managed = append(managed, services.NewHTTPService("metrics", &http.Server{
			Addr:              addr,
			Handler:           a.metricsHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}, nil, a.logger))
	}

	for _, svc := range managed {
		if err := a.manager.Register(svc); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) registerRoutes() {
	a.routes.Register(http.MethodPost, constants.PathChatCompletions, a.proxyHandler, "Chat completions")
	a.routes.Register(http.MethodPost, constants.PathV1ChatCompletions, a.proxyHandler, "Chat completions (v1)")
}

// Handler is the full inbound chain: recovery, CORS, access log, exact-match routes
func (a *Application) Handler() http.Handler {
	handler := a.routes.Handler()
	if a.config.Server.RequestLogging {
		handler = middleware.AccessLogging(a.logger, a.config.Server.TrustProxy)(handler)
	}
	handler = middleware.CORS(handler)
	return middleware.Recovery(a.logger)(handler)
}

func (a *Application) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.stats.Handler())
	if a.config.Telemetry.Profile {
		profiler.Register(mux)
	}
	return mux
}

func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	a.logger.InfoWithCount("Serving models", len(a.registry.Identifiers()), "address", a.Addr())
	return nil
}

// Stop drains the listeners first, then the token counts, then the audit log
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Addr is the bound proxy address once started
func (a *Application) Addr() string {
	return a.httpService.Addr()
}

func (a *Application) Stats() stats.Snapshot {
	return a.stats.Snapshot()
}

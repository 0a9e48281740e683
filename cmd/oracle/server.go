package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	oracle "github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/api"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/api/handlers"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/cache"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/metrics"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/server"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/store"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装辩论引擎、HTTP API 与指标服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector
	cache     *cache.Manager
	archive   store.Archive
	engine    *oracle.Engine

	hub           *handlers.SessionHub
	debateHandler *handlers.DebateHandler
	healthHandler *handlers.HealthHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	// 限流清理与会话过期清理
	background context.Context
	stop       context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger,
		background: ctx,
		stop:       cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动 HTTP 与指标服务器
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.telemetry, err = telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.collector = metrics.NewCollector("oracle", s.registry, s.logger)

	if err := s.initDependencies(ctx); err != nil {
		return err
	}
	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}
	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	go s.hub.RunJanitor(s.background, time.Minute)

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("max_concurrent_debates", s.cfg.Server.MaxConcurrentDebates),
	)
	return nil
}

// initDependencies 连接可选的 Redis 缓存与结果归档. 归档不可用时降级运行.
func (s *Server) initDependencies(ctx context.Context) error {
	if s.cfg.Redis.Enabled {
		m, err := cache.NewManager(cache.ConfigFrom(s.cfg.Redis, s.cfg.Cache), s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		s.cache = m
	}

	archive, err := store.Open(ctx, s.cfg, s.collector, s.logger)
	if err != nil {
		s.logger.Warn("archive not available, results kept in memory only", zap.Error(err))
		return nil
	}
	s.archive = archive
	return nil
}

func (s *Server) initEngine() error {
	s.hub = handlers.NewSessionHub(s.cfg.Server.SessionRetention, s.logger)

	opts := []oracle.Option{
		oracle.WithLogger(s.logger),
		oracle.WithMetrics(s.collector),
		oracle.WithTracer(s.telemetry.Tracer()),
		oracle.WithObserver(s.hub),
	}
	if s.cache != nil {
		opts = append(opts, oracle.WithCache(s.cache))
	}
	if turns, err := telemetry.TurnCounter(s.telemetry.Meter()); err != nil {
		s.logger.Warn("turn counter unavailable", zap.Error(err))
	} else {
		opts = append(opts, oracle.WithObserver(turns))
	}

	engine, err := oracle.New(s.cfg, opts...)
	if err != nil {
		return err
	}
	s.engine = engine
	return nil
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(api.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	if s.archive != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("archive", s.archive.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	opts := []handlers.DebateHandlerOption{handlers.WithSessionTracker(s.collector)}
	if s.archive != nil {
		opts = append(opts, handlers.WithArchive(s.archive))
	}
	s.debateHandler = handlers.NewDebateHandler(s.engine, s.hub, s.cfg.Server.MaxConcurrentDebates, s.logger, opts...)
	s.logger.Info("Handlers initialized", zap.Bool("archive", s.archive != nil))
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由并构建中间件链
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion)

	mux.HandleFunc("POST /api/v1/debates", s.debateHandler.HandleCreate)
	mux.HandleFunc("POST /api/v1/debates:run", s.debateHandler.HandleRun)
	mux.HandleFunc("GET /api/v1/debates/{id}", s.debateHandler.HandleGet)
	mux.HandleFunc("GET /api/v1/debates/{id}/stream", s.debateHandler.HandleStream)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSOrigins),
		RateLimiter(s.background, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Auth(s.cfg.Auth, skipAuthPaths, s.logger),
	)
}

func (s *Server) startHTTPServer() error {
	s.httpManager = server.NewManager("http", s.routes(), server.ConfigFrom(s.cfg.Server), s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	cfg := server.ConfigFrom(s.cfg.Server)
	cfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	s.metricsManager = server.NewManager("metrics", mux, cfg, s.logger)
	return s.metricsManager.Start()
}

// Errors 合并两个服务器的运行时错误
func (s *Server) Errors() <-chan error {
	out := make(chan error, 2)
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		go func(ch <-chan error) {
			if err, ok := <-ch; ok && err != nil {
				out <- err
			}
		}(m.Errors())
	}
	return out
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 停止接收请求, 等待运行中的辩论, 然后释放依赖
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")
	defer s.stop()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.debateHandler != nil {
		if err := s.debateHandler.Shutdown(ctx); err != nil {
			s.logger.Warn("debate sessions cancelled at shutdown", zap.Error(err))
		}
	}

	var g errgroup.Group
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Shutdown(ctx) })
	}
	if s.archive != nil {
		g.Go(s.archive.Close)
	}
	if s.cache != nil {
		g.Go(s.cache.Close)
	}
	g.Go(func() error { return s.telemetry.Shutdown(ctx) })

	err := g.Wait()
	s.logger.Info("Graceful shutdown completed")
	return err
}

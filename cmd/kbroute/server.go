package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/api/handlers"
	"github.com/BaSui01/kbroute/config"
	"github.com/BaSui01/kbroute/internal/server"
)

// skipAuthPaths 不需要认证的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kbroute",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := buildApp(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.WithoutCancel(ctx)) }()

	srv := NewServer(a, reg)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	err = srv.Wait(ctx)
	logger.Info("kbroute stopped")
	return err
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 管理 API 与 Metrics 两个端口
type Server struct {
	app      *app
	cfg      *config.Config
	registry *prometheus.Registry
	logger   *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建服务器
func NewServer(a *app, reg *prometheus.Registry) *Server {
	return &Server{
		app:      a,
		cfg:      a.cfg,
		registry: reg,
		logger:   a.logger,
	}
}

// Handler 构建带中间件链的 API 路由. ctx 结束时限流器的清理协程退出.
func (s *Server) Handler(ctx context.Context) http.Handler {
	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewCheck("cache", s.app.cache.Ping))
	if s.app.store != nil {
		health.RegisterCheck(handlers.NewCheck("tracestore", s.app.store.Ping))
	}

	query := handlers.NewQueryHandler(s.app.pipeline, handlers.QueryHandlerConfig{
		MaxQueries:     s.cfg.Pipeline.MaxQueries,
		AllowedOrigins: s.cfg.Server.CORSAllowedOrigins,
		Metrics:        s.app.metrics,
	}, s.logger)

	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	// ========================================
	// 查询路由
	// ========================================
	mux.HandleFunc("POST /query", query.HandleQuery)
	mux.HandleFunc("GET /query/stream", query.HandleStream)

	// ========================================
	// 构建中间件链
	// ========================================
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger, s.app.metrics),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst),
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	if s.cfg.Server.JWT.Secret != "" {
		chain = append(chain, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
	}
	return Chain(mux, chain...)
}

// Start 启动 API 与 Metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	s.httpManager = server.NewManager("http", s.Handler(ctx),
		server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	s.metricsManager = server.NewManager("metrics", mux,
		server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	if err := s.metricsManager.Start(); err != nil {
		_ = s.httpManager.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
	)
	return nil
}

// Wait 阻塞到 ctx 结束或任一服务器出错, 然后关闭两个服务器
func (s *Server) Wait(ctx context.Context) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- s.httpManager.Wait(waitCtx) }()
	go func() { errCh <- s.metricsManager.Wait(waitCtx) }()

	// 任一服务器退出后通知另一个关闭
	first := <-errCh
	s.logger.Info("Starting graceful shutdown...")
	cancel()
	if err := errors.Join(first, <-errCh); err != nil {
		s.logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("Graceful shutdown completed")
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vmwarden/internal/cloud"
	"vmwarden/internal/cloud/azcli"
	"vmwarden/internal/cloud/local"
	"vmwarden/internal/config"
	"vmwarden/internal/handlers"
	"vmwarden/internal/manager"
	"vmwarden/internal/metrics"
	"vmwarden/internal/middleware"
	"vmwarden/internal/report"
	"vmwarden/internal/utils"
)

const natMappingLifetime = time.Hour

func main() {
	var (
		configPath   = flag.String("config", "vmwarden.yaml", "path to the YAML configuration file")
		assessTarget = flag.String("assess", "", "assess one target and exit")
		fleetCheck   = flag.Bool("fleet-check", false, "run one fleet check and exit")
		remediate    = flag.Bool("remediate", false, "restart unhealthy targets during a one-shot run")
		hashPassword = flag.String("hash-password", "", "print a bcrypt hash for the given password and exit")
	)
	flag.Parse()

	if *hashPassword != "" {
		hash, err := middleware.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	logger, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	provider, cleanup, err := buildProvider(cfg, logger)
	if err != nil {
		logger.Fatal("provider init failed", zap.Error(err))
	}
	defer cleanup()

	reports, err := report.NewWriter(cfg.Reports.Dir, logger.Named("report"))
	if err != nil {
		logger.Fatal("report store init failed", zap.Error(err))
	}

	promMetrics := metrics.New()
	mgr := manager.New(cfg, provider, reports, promMetrics, logger)

	// One-shot modes for pipeline jobs and manual runs.
	if *assessTarget != "" {
		os.Exit(runAssess(mgr, *assessTarget, *remediate, logger))
	}
	if *fleetCheck {
		os.Exit(runFleetCheck(mgr, *remediate, logger))
	}

	runServer(cfg, mgr, promMetrics, logger)
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("VMWARDEN_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(path string, logger *zap.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("config file not found, using rehearsal defaults", zap.String("path", path))
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildProvider(cfg *config.Config, logger *zap.Logger) (cloud.Provider, func(), error) {
	switch cfg.Provider.Kind {
	case "azcli":
		client := azcli.New(azcli.Options{
			Binary:        cfg.Provider.Binary,
			ResourceGroup: cfg.Provider.ResourceGroup,
			Workspace:     cfg.Provider.Workspace,
		}, logger.Named("azcli"))
		return client, func() {}, nil
	case "local":
		provider := local.New(cfg.Provider.ResourceGroup, cfg.Provider.LocalTargets, logger.Named("local"))
		provider.Run()
		return provider, provider.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

func runAssess(mgr *manager.Manager, target string, remediate bool, logger *zap.Logger) int {
	ctx := context.Background()
	if remediate {
		assessment, result, err := mgr.RemediateTarget(ctx, target, 0)
		if err != nil {
			return 1
		}
		if result.Error != "" {
			return 1
		}
		if assessment.Category != "healthy" && !result.Triggered {
			return 2
		}
		return 0
	}
	assessment, err := mgr.AssessTarget(ctx, target, 0)
	if err != nil {
		return 1
	}
	if assessment.NeedsRestart() {
		return 2
	}
	return 0
}

func runFleetCheck(mgr *manager.Manager, remediate bool, logger *zap.Logger) int {
	summary, err := mgr.CheckFleet(context.Background(), remediate)
	if err != nil {
		logger.Error("fleet check failed", zap.Error(err))
		return 1
	}
	if summary.Unhealthy > 0 || len(summary.FailedTargets) > 0 {
		return 2
	}
	return 0
}

func runServer(cfg *config.Config, mgr *manager.Manager, promMetrics *metrics.Metrics, logger *zap.Logger) {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	authService := middleware.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Username, cfg.Auth.PasswordHash)
	if !authService.Enabled() {
		logger.Warn("auth credential not configured, API login is disabled")
	}
	wsHub := middleware.NewHub(logger.Named("ws"))
	go wsHub.Run()
	mgr.SetBroadcast(wsHub.Broadcast)

	rateLimiter := middleware.NewRateLimiter(rate.Every(time.Minute/120), 20)
	api := handlers.New(mgr, authService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(rateLimiter.Middleware())

	r.GET("/healthz", api.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promMetrics.Registry(), promhttp.HandlerOpts{})))
	r.POST("/api/login", api.Login)
	// Alert action groups cannot attach bearer tokens, so this route sits
	// outside the auth group.
	r.POST("/api/alerts/webhook", api.AlertWebhook)

	authed := r.Group("/api", authService.RequireAuth())
	{
		authed.POST("/targets/:target/assess", api.AssessTarget)
		authed.POST("/targets/:target/remediate", api.RemediateTarget)
		authed.GET("/targets/:target/report", api.TargetReport)
		authed.POST("/fleet/check", api.FleetCheck)
		authed.GET("/fleet/summary", api.FleetSummary)
		authed.GET("/notifications", api.Notifications)
		authed.GET("/events", wsHub.HandleWebSocket())
	}

	srv := &http.Server{
		Addr:           ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if cfg.HTTP.NATMapping {
		go func() {
			external, err := utils.AddOrRefreshMapping(context.Background(), "tcp", cfg.HTTP.Port, "vmwarden-api", natMappingLifetime)
			if err != nil {
				logger.Warn("NAT port mapping failed, alert webhooks may not reach this box", zap.Error(err))
				return
			}
			logger.Info("NAT port mapping established", zap.Int("external_port", external))
		}()
	}

	go func() {
		if cfg.HTTP.TLSEnabled {
			logger.Info("starting HTTPS server", zap.Int("port", cfg.HTTP.Port))
			if err := srv.ListenAndServeTLS(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey); err != nil && err != http.ErrServerClosed {
				logger.Fatal("HTTPS server failed", zap.Error(err))
			}
			return
		}
		logger.Info("starting server", zap.Int("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	mgr.StartScheduler()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	mgr.Shutdown()
	rateLimiter.Stop()

	if cfg.HTTP.NATMapping {
		if err := utils.DeleteMapping(context.Background(), "tcp", cfg.HTTP.Port); err != nil {
			logger.Warn("failed to remove NAT mapping", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

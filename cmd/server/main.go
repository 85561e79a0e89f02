package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/config"
	"github.com/ErlanBelekov/backend-skeleton/internal/apidoc"
	"github.com/ErlanBelekov/backend-skeleton/internal/auth"
	"github.com/ErlanBelekov/backend-skeleton/internal/email"
	"github.com/ErlanBelekov/backend-skeleton/internal/health"
	"github.com/ErlanBelekov/backend-skeleton/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/backend-skeleton/internal/janitor"
	ctxlog "github.com/ErlanBelekov/backend-skeleton/internal/log"
	"github.com/ErlanBelekov/backend-skeleton/internal/metrics"
	"github.com/ErlanBelekov/backend-skeleton/internal/notification"
	httptransport "github.com/ErlanBelekov/backend-skeleton/internal/transport/http"
	"github.com/ErlanBelekov/backend-skeleton/internal/transport/http/handler"
	"github.com/ErlanBelekov/backend-skeleton/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())
	slog.SetDefault(logger)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.ProjectName)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		stop()
		log.Fatalf("migrate: %v", err)
	}

	// Identity
	userRepo := postgres.NewUserRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL, cfg.ProjectName)

	// Notifications
	renderer, err := notification.NewDefaultRenderer()
	if err != nil {
		pool.Close()
		stop()
		log.Fatalf("email templates: %v", err)
	}
	sender := email.NewSender(email.Options{
		Transport:    cfg.MailTransport,
		From:         cfg.MailFrom,
		FromName:     cfg.MailFromName,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
		ResendAPIKey: cfg.ResendAPIKey,
	}, logger)
	dispatcher := notification.NewDispatcher(renderer, sender, cfg.MailTimeout, logger)

	authUsecase := usecase.NewAuthUsecase(usecase.AuthUsecaseDeps{
		Authenticator:  auth.NewPasswordAuthenticator(userRepo),
		Users:          userRepo,
		Tokens:         tokenRepo,
		Issuer:         issuer,
		Notifier:       dispatcher,
		Logger:         logger,
		ActionTokenTTL: cfg.ActionTokenTTL,
		AppBaseURL:     cfg.AppBaseURL,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)
	checker := health.NewChecker(map[string]health.Pinger{"postgres": pool}, logger, reg)

	info := apidoc.NewInfo(cfg.ProjectName, cfg.APIVersion)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:             logger,
		AuthHandler:        handler.NewAuthHandler(authUsecase, logger),
		HealthHandler:      handler.NewHealthHandler(checker),
		Verifier:           issuer,
		APIInfo:            info,
		AuthRateLimit:      cfg.AuthRateLimit,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	cleaner, err := janitor.New(tokenRepo, cfg.TokenCleanupSchedule, logger)
	if err != nil {
		pool.Close()
		stop()
		log.Fatalf("janitor: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, reg)

	// A port that is already bound is fatal at startup.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		pool.Close()
		stop()
		log.Fatalf("listen %s: %v", srv.Addr, err)
	}

	go func() {
		logger.Info("server started", "port", cfg.Port, "api", info.Title, "version", info.Version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	cleaner.Start()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	cleaner.Stop(shutdownCtx)
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

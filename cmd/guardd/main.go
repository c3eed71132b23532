package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/background"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/policy"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/routes"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// store bundles the repositories for the configured driver
type store struct {
	attempts interface {
		services.AttemptAdminStore
		background.Purger
	}
	lists  services.AccessListAdminStore
	health handlers.HealthChecker
	close  func()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.close()

	// Policy: env defaults, optionally overridden by a TOML file
	var provider policy.Provider
	if cfg.Policy.File != "" {
		fp, err := policy.NewFileProvider(cfg.Policy.File, cfg.Policy.Defaults, logger)
		if err != nil {
			logger.Error("failed to load policy file", slog.String("path", cfg.Policy.File), slog.Any("error", err))
			os.Exit(1)
		}
		if cfg.Policy.Watch {
			go func() {
				if err := fp.Watch(ctx); err != nil {
					logger.Error("policy watcher stopped", slog.Any("error", err))
				}
			}()
		}
		provider = fp
	} else {
		sp, err := policy.NewStaticProvider(cfg.Policy.Defaults)
		if err != nil {
			logger.Error("invalid policy", slog.Any("error", err))
			os.Exit(1)
		}
		provider = sp
	}

	var notifier services.LockoutNotifier = services.NoopNotifier{}
	if cfg.Notify.Enabled() {
		ses, err := services.NewSESLockoutNotifier(cfg.Notify.AWSRegion, cfg.Notify.FromAddress, cfg.Notify.ToAddress, logger)
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = ses
		logger.Info("lockout notifications enabled",
			pkglogger.RedactedAttr("to", cfg.Notify.ToAddress, cfg.Server.Env))
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)
	engine := services.NewLockoutEngine(st.attempts, st.lists, provider, logger)
	guardService := services.NewGuardService(engine, notifier, auditLogger, logger)

	h := routes.Handlers{
		Health: handlers.NewHealthHandler(st.health),
		Guard:  handlers.NewGuardHandler(guardService, logger),
	}
	opts := routes.Options{
		IPConfig:               ipConfig,
		GuardRequestsPerMinute: cfg.Server.RequestsPerMinute,
	}

	if cfg.Admin.Enabled() {
		tokenManager := auth.NewTokenManager(cfg.Admin.JWTSecret, cfg.Admin.TokenExpiry)
		timingDelay := auth.NewTimingDelay(auth.TimingConfig{
			BaseDelayMs:   cfg.Admin.LoginDelayBaseMs,
			RandomDelayMs: cfg.Admin.LoginDelayRandomMs,
		})
		adminService := services.NewAdminService(st.attempts, st.lists, engine, provider, auditLogger, logger)

		h.Auth = handlers.NewAuthHandler(
			guardService,
			models.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash},
			tokenManager,
			timingDelay,
			auditLogger,
			ipConfig,
			logger,
		)
		h.Admin = handlers.NewAdminHandler(adminService, logger)
		opts.TokenManager = tokenManager
	} else {
		logger.Info("admin API disabled; set ADMIN_USERNAME and ADMIN_PASSWORD_HASH to enable it")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, h, opts)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(st.attempts, logger, cfg.Cleanup.RetentionPeriod, cfg.Cleanup.Interval)
	go cleanupManager.Start(ctx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.RunMigrations {
			if err := database.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return &store{
			attempts: repositories.NewPostgresAttemptRepository(db),
			lists:    repositories.NewPostgresAccessListRepository(db),
			health:   db,
			close:    db.Close,
		}, nil

	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			attempts: repositories.NewSQLiteAttemptRepository(db),
			lists:    repositories.NewSQLiteAccessListRepository(db),
			health:   handlers.HealthCheckFunc(db.PingContext),
			close:    func() { closeSQLite(db, logger) },
		}, nil

	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; attempt history is lost on restart")
		return &store{
			attempts: repositories.NewMemoryAttemptRepository(),
			lists:    repositories.NewMemoryAccessListRepository(),
			close:    func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func closeSQLite(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("failed to close sqlite database", slog.Any("error", err))
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// hashPassword reads a password from stdin and prints the value for ADMIN_PASSWORD_HASH
func hashPassword() error {
	fmt.Fprint(os.Stderr, "admin password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	if err := pkgauth.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

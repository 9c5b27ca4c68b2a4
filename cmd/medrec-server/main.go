package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medrec/medrec/internal/config"
	"github.com/medrec/medrec/internal/domain/chat"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/domain/record"
	"github.com/medrec/medrec/internal/domain/user"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/db"
	"github.com/medrec/medrec/internal/platform/filestore"
	"github.com/medrec/medrec/internal/platform/llm"
	"github.com/medrec/medrec/internal/platform/middleware"
	"github.com/medrec/medrec/internal/platform/ocr"
)

func main() {
	root := &cobra.Command{
		Use:   "medrec-server",
		Short: "Medical record manager API server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}
	var migrationsDir string
	migrate.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding migration files")

	migrateUp := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrationsDir, func(ctx context.Context, m *db.Migrator, log zerolog.Logger) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				log.Info().Int("applied", applied).Msg("migrations complete")
				return nil
			})
		},
	}

	migrateStatus := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrationsDir, func(ctx context.Context, m *db.Migrator, log zerolog.Logger) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, st := range statuses {
					state := "pending"
					if st.Applied {
						state = "applied"
					}
					fmt.Printf("%03d %-30s %s\n", st.Version, st.Name, state)
				}
				return nil
			})
		},
	}

	migrate.AddCommand(migrateUp, migrateStatus)
	root.AddCommand(serve, migrate)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMigrate(dir string, fn func(context.Context, *db.Migrator, zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir), log)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	cancel()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("database pool established")

	// External providers.
	files := filestore.NewClient(cfg.FileServiceBaseURL, cfg.FileServiceToken, cfg.FileServiceTokenHead)
	extractor := ocr.NewClient(cfg.OCRBaseURL, cfg.OCRAPIKey, cfg.OCRWorkflowID)
	analyst := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	// Repositories and services.
	userRepo := user.NewRepoPG(pool)
	patientRepo := patient.NewRepoPG(pool)
	recordRepo := record.NewRepoPG(pool)
	messageRepo := chat.NewMessageRepoPG(pool)
	analysisRepo := chat.NewAnalysisRepoPG(pool)

	userSvc := user.NewService(userRepo, cfg.JWTSecret, cfg.JWTExpiresIn, log)
	patientSvc := patient.NewService(patientRepo, log)
	recordSvc := record.NewService(recordRepo, files, extractor, cfg.UploadDir, log)
	chatSvc := chat.NewService(messageRepo, analysisRepo, recordRepo, analyst, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(reg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}))
	e.Use(metrics.Middleware())

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/health", func(c echo.Context) error {
		hctx, hcancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer hcancel()
		if err := pool.Ping(hctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "database": "down"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	api := e.Group("/api")
	user.NewHandler(userSvc).RegisterRoutes(api)

	protected := api.Group("", auth.Middleware(cfg.JWTSecret))
	patient.NewHandler(patientSvc).RegisterRoutes(protected)
	record.NewHandler(recordSvc, cfg.MaxFileSize).RegisterRoutes(protected)
	chat.NewHandler(chatSvc).RegisterRoutes(protected)

	// Serve until interrupted.
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

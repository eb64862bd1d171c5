package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"theralink-server/internal/config"
	"theralink-server/internal/feedback"
	"theralink-server/internal/middleware"
	"theralink-server/internal/models"
	"theralink-server/internal/routes"
	"theralink-server/internal/service"
	"theralink-server/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "theralink-server",
		Short: "Medication adherence and scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run schema migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				logger.Info().Msg("memory driver selected, nothing to migrate")
				return nil
			}
			db, err := models.InitDB(databaseConfig(cfg))
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			logger.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and ping storage and the feedback provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			stores, svc, err := build(cfg, logger, false)
			if err != nil {
				return err
			}
			defer stores.Close()

			report := svc.Check(cmd.Context())
			logger.Info().
				Str("storage", report.Storage).
				Str("feedback_provider", report.FeedbackProvider).
				Str("feedback", report.Feedback).
				Msg("system check")
			if report.Storage != "OK" {
				return errors.New("storage check failed")
			}
			return nil
		},
	}
}

// setup loads .env, reads and validates configuration and builds the logger.
func setup() (*config.Config, zerolog.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using environment only")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return nil, logger, err
	}
	return cfg, logger, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func databaseConfig(cfg *config.Config) models.DatabaseConfig {
	return models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.IsDev() && cfg.LogLevel == "debug",
	}
}

// build opens storage and wires the feedback generator and the service.
func build(cfg *config.Config, logger zerolog.Logger, migrate bool) (*store.Stores, *service.Service, error) {
	stores, err := store.Open(store.Options{
		Database:      databaseConfig(cfg),
		LedgerBackend: cfg.Ledger.Backend,
		LedgerPath:    cfg.Ledger.Path,
		Migrate:       migrate,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info().
		Str("driver", cfg.Database.Driver).
		Str("ledger", cfg.Ledger.Backend).
		Msg("storage ready")

	var primary feedback.Provider
	if cfg.Feedback.Provider == "gemini" {
		primary = feedback.NewGeminiProvider(cfg.Feedback.GeminiURL, cfg.Feedback.GeminiModel, cfg.Feedback.GeminiAPIKey)
	}
	gen := feedback.NewGenerator(primary, cfg.Feedback.Timeout, logger.With().Str("component", "feedback").Logger())

	svc := service.New(stores, gen, service.Options{
		Location:       cfg.Engine.Location,
		LookbackDays:   cfg.Engine.LookbackDays,
		HorizonDays:    cfg.Engine.HorizonDays,
		GracePeriod:    cfg.Engine.GracePeriod,
		StorageTimeout: cfg.StorageTimeout,
	}, logger)
	return stores, svc, nil
}

func runServer(migrate bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	stores, svc, err := build(cfg, logger, migrate)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close storage")
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	routes.SetupRoutes(router, svc, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

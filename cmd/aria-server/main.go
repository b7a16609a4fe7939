package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aria-health/aria/internal/config"
	"github.com/aria-health/aria/internal/domain/assistant"
	"github.com/aria-health/aria/internal/domain/identity"
	"github.com/aria-health/aria/internal/domain/worklist"
	"github.com/aria-health/aria/internal/platform/ai"
	"github.com/aria-health/aria/internal/platform/db"
	"github.com/aria-health/aria/internal/platform/middleware"
	"github.com/aria-health/aria/internal/platform/sandbox"
	"github.com/aria-health/aria/internal/platform/session"
	"github.com/aria-health/aria/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aria-server",
		Short: "ARIA radiology worklist API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ARIA API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic patients and studies",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			studies, _ := cmd.Flags().GetInt("studies-per-patient")
			criticalPct, _ := cmd.Flags().GetInt("critical-pct")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			seeder := sandbox.NewSeeder(
				pool,
				worklist.NewPatientRepoPG(pool),
				worklist.NewOrderRepoPG(pool),
				worklist.NewStudyRepoPG(pool),
				worklist.NewSeriesRepoPG(pool),
				worklist.NewReportRepoPG(pool),
				0,
			)
			result, err := seeder.Generate(ctx, sandbox.GenerateConfig{
				Patients:          patients,
				StudiesPerPatient: studies,
				CriticalPct:       criticalPct,
			})
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			fmt.Printf("Created %d patient(s) and %d studie(s).\n", result.Patients, result.Studies)
			return nil
		},
	}
	cmd.Flags().Int("patients", 50, "Number of patients to generate")
	cmd.Flags().Int("studies-per-patient", 3, "Maximum studies per patient")
	cmd.Flags().Int("critical-pct", 15, "Percentage of studies flagged critical")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Migrations run at startup so a fresh database is usable immediately.
	migrator := db.NewMigrator(pool, "./migrations")
	applied, err := migrator.Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("ran migrations")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// Sessions and auth endpoints
	sessions := session.NewMemoryStore(session.DefaultAccounts())
	identity.NewHandler(sessions).RegisterRoutes(e)

	// Authenticated API group
	api := e.Group("/api")
	api.Use(session.RequireToken(sessions))

	// Worklist domain
	patientRepo := worklist.NewPatientRepoPG(pool)
	orderRepo := worklist.NewOrderRepoPG(pool)
	studyRepo := worklist.NewStudyRepoPG(pool)
	seriesRepo := worklist.NewSeriesRepoPG(pool)
	reportRepo := worklist.NewReportRepoPG(pool)

	worklistSvc := worklist.NewService(patientRepo, orderRepo, studyRepo, seriesRepo, reportRepo)
	importer := worklist.NewImporter(patientRepo, rand.New(rand.NewSource(time.Now().UnixNano())))
	worklist.NewHandler(worklistSvc, importer).RegisterRoutes(api)

	// ARIA assistant endpoints
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY not set; ARIA endpoints will degrade")
	}
	aiClient := ai.NewOpenAIClient(ai.Options{
		BaseURL:         cfg.OpenAIBaseURL,
		APIKey:          cfg.OpenAIAPIKey,
		ChatModel:       cfg.AIChatModel,
		TranscribeModel: cfg.AITranscribeModel,
		SpeechModel:     cfg.AISpeechModel,
	})
	assistant.NewHandler(aiClient).RegisterRoutes(api)

	// Synthetic data generation
	seeder := sandbox.NewSeeder(pool, patientRepo, orderRepo, studyRepo, seriesRepo, reportRepo, 0)
	sandbox.NewHandler(seeder).RegisterRoutes(api)

	// Live feed websocket with heartbeat
	hub := websocket.NewHub()
	websocket.NewLiveHandler(hub).RegisterRoutes(e)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go hub.RunHeartbeat(heartbeatCtx, cfg.HeartbeatInterval())

	// First-run seed
	if cfg.SeedOnStart {
		result, err := seeder.SeedIfEmpty(ctx, sandbox.GenerateConfig{
			Patients:          60,
			StudiesPerPatient: 4,
			CriticalPct:       15,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed database")
		}
		if result != nil {
			logger.Info().
				Int("patients", result.Patients).
				Int("studies", result.Studies).
				Msg("seeded empty database")
		}
	}

	// Start server
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	stopHeartbeat()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}

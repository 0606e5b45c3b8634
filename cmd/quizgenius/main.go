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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizgenius/internal/api"
	"quizgenius/internal/config"
	"quizgenius/internal/db"
	"quizgenius/internal/ocr"
	"quizgenius/internal/services"
	"quizgenius/internal/session"
)

const (
	workspaceIdle   = 24 * time.Hour
	jobRetention    = time.Hour
	pruneInterval   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quizgenius",
		Short:        "Turn PDFs into quizzes, flashcards and timed tests",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	cmd.Flags().String("env", "", "development or production (overrides APP_ENV)")
	cmd.Flags().String("db", "", "SQLite database path (overrides DATABASE_PATH)")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Env)
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			conn, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", cfg.Database)
			return nil
		},
	}
	addConfigFlags(cmd)
	return cmd
}

func setupLogger(env string) *zap.Logger {
	var logger *zap.Logger
	if env == config.EnvDevelopment {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	var extractor ocr.Extractor
	if cfg.OCR.Enabled {
		ocrCfg := ocr.DefaultConfig()
		ocrCfg.TesseractPath = cfg.OCR.TesseractPath
		ocrCfg.GhostscriptPath = cfg.OCR.GhostscriptPath
		ocrCfg.Languages = cfg.OCR.Languages
		client := ocr.NewClient(ocrCfg, logger.Named("ocr"))
		if client.Available(ctx) {
			extractor = client
		} else {
			logger.Warn("ocr fallback disabled, tesseract or ghostscript not found")
		}
	}

	ai := services.NewAIService(services.LLMSettings{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		RatePerSec:  cfg.LLM.RatePerSec,
	}, logger.Named("ai"))
	if !ai.Enabled() {
		logger.Warn("GROQ_API_KEY is not set, users must supply a key per session")
	}

	quiz := services.NewQuizService(ai, services.NewPDFService(extractor, logger.Named("pdf")), logger.Named("quiz"))
	workspaces := services.NewWorkspaceStore()

	if cfg.GeneratedSecret {
		logger.Warn("SESSION_SECRET is not set, sessions will not survive a restart")
	}

	server := api.NewServer(api.Dependencies{
		Quiz:           quiz,
		Users:          services.NewUserService(conn, logger.Named("users")),
		Progress:       services.NewProgressService(conn, logger.Named("progress")),
		Flashcards:     services.NewFlashcardService(conn, logger.Named("flashcards")),
		Workspaces:     workspaces,
		Sessions:       session.NewManager(cfg.SessionSecret, !cfg.Development()),
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	}, logger.Named("api"))

	go pruneLoop(ctx, workspaces, server.Jobs(), logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pruneLoop drops idle workspaces and finished jobs until ctx is cancelled.
func pruneLoop(ctx context.Context, workspaces *services.WorkspaceStore, jobs *api.JobManager, logger *zap.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws := workspaces.Prune(workspaceIdle)
			finished := jobs.Prune(time.Now().UTC().Add(-jobRetention))
			if ws > 0 || finished > 0 {
				logger.Debug("pruned idle state", zap.Int("workspaces", ws), zap.Int("jobs", finished))
			}
		}
	}
}

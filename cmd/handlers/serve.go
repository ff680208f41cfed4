package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gazette/internal/assemble"
	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/delivery"
	"gazette/internal/feeds"
	"gazette/internal/images"
	"gazette/internal/llm"
	"gazette/internal/logger"
	"gazette/internal/payments"
	"gazette/internal/pipeline"
	"gazette/internal/review"
	"gazette/internal/server"
	"gazette/internal/weather"
)

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API and cron endpoints",
		Long: `Start the gazette HTTP server.

The server provides:
  • The dashboard REST API behind session-cookie authentication
  • Cron endpoints behind the shared scheduler token
  • Public poll-vote and payment-webhook routes
  • Health check endpoint

Examples:
  # Start server on default port 8080
  gazette serve

  # Start on custom port
  gazette serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

// headlineSubjects adapts the LLM client to the review service, which only
// holds the lead headline when it regenerates a subject.
type headlineSubjects struct {
	llm *llm.Client
}

func (h headlineSubjects) GenerateSubject(ctx context.Context, headline string) (string, error) {
	return h.llm.GenerateSubject(ctx, core.Article{Headline: headline})
}

func runServe(ctx context.Context, port int, host string) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}

	log.Info("Connecting to database")
	db, err := getDatabase()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and the connection string is correct.\n"+
			"Run 'gazette migrate up' to initialize the database schema.", err)
	}

	llmClient, err := llm.NewClient(cfg.AI.Model)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	fetcher := feeds.NewFetcher(cfg.Feeds.UserAgent, cfg.Feeds.Timeout, cfg.Feeds.MaxItems)
	cache := weather.NewCacheClient(cfg.Cache)
	weatherSvc := weather.NewService(cfg.Weather, cache, cfg.Cache.TTL)
	assembler := assemble.NewAssembler(db, weatherSvc)
	mailer := delivery.NewClient(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, cfg.Mailer.ListID, cfg.Mailer.Timeout)
	imageClient := images.NewClient(cfg.Images)
	paymentClient := payments.NewClient(cfg.Payments)

	reviewSvc := review.NewService(db.Articles(), db.Campaigns(),
		headlineSubjects{llm: llmClient}, cfg.Pipeline.TopArticleCount)
	runner := pipeline.NewRunner(db, fetcher, llmClient, reviewSvc, cfg.Pipeline)

	srv := server.New(db, cfg, server.Dependencies{
		Runner:    runner,
		Review:    reviewSvc,
		Assembler: assembler,
		Mailer:    mailer,
		Weather:   weatherSvc,
		Images:    imageClient,
		Payments:  paymentClient,
		Subjects:  llmClient,
	})

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Info("Server stopped successfully")
	}

	return nil
}

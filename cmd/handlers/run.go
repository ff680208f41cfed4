package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gazette/internal/config"
	"gazette/internal/feeds"
	"gazette/internal/llm"
	"gazette/internal/logger"
	"gazette/internal/pipeline"
	"gazette/internal/review"
)

// NewRunCmd creates the run command for triggering the nightly pipeline
func NewRunCmd() *cobra.Command {
	var sendDate string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nightly newsletter pipeline for a date",
		Long: `Run the full nightly pipeline: fetch feeds, deduplicate, score,
rewrite, select the top stories and leave the campaign in review.

The run is idempotent per send date: a second invocation for the same date
fails with "job already ran" instead of building a duplicate campaign.

Examples:
  # Build tomorrow's campaign
  gazette run --date 2026-09-01

  # Build today's campaign (the default)
  gazette run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), sendDate)
		},
	}

	cmd.Flags().StringVar(&sendDate, "date", "", "send date YYYY-MM-DD (default today)")

	return cmd
}

func runPipeline(ctx context.Context, sendDate string) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if sendDate == "" {
		sendDate = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", sendDate); err != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", sendDate)
	}

	db, err := getDatabase()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	llmClient, err := llm.NewClient(cfg.AI.Model)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	fetcher := feeds.NewFetcher(cfg.Feeds.UserAgent, cfg.Feeds.Timeout, cfg.Feeds.MaxItems)
	reviewSvc := review.NewService(db.Articles(), db.Campaigns(),
		headlineSubjects{llm: llmClient}, cfg.Pipeline.TopArticleCount)
	runner := pipeline.NewRunner(db, fetcher, llmClient, reviewSvc, cfg.Pipeline)

	log.Info("Starting pipeline run", "send_date", sendDate)
	summary, err := runner.Run(ctx, sendDate)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

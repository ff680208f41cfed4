// Package pipeline runs the nightly build of a campaign: fetch feeds, dedupe,
// score, rewrite, select and hand the draft to review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gazette/internal/assemble"
	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/llm"
	"gazette/internal/logger"
	"gazette/internal/persistence"
	"gazette/internal/review"
)

// JobTypeNightly is the idempotency job type for the scheduled nightly build.
const JobTypeNightly = "nightly"

// AI is the language-model surface the pipeline needs.
type AI interface {
	EvaluatePost(ctx context.Context, post core.Post) (llm.RatingResult, error)
	GroupDuplicates(ctx context.Context, posts []core.Post) ([][]int, error)
	RewritePost(ctx context.Context, post core.Post) (llm.Rewrite, error)
	GenerateSubject(ctx context.Context, article core.Article) (string, error)
}

// Fetcher pulls posts from one feed.
type Fetcher interface {
	Fetch(ctx context.Context, feed core.Feed, campaignID string) ([]core.Post, error)
}

// RunSummary reports what the nightly run did.
type RunSummary struct {
	CampaignID       string `json:"campaign_id"`
	SendDate         string `json:"send_date"`
	FeedsFetched     int    `json:"feeds_fetched"`
	FeedsFailed      int    `json:"feeds_failed"`
	PostsIngested    int    `json:"posts_ingested"`
	DuplicatesMarked int    `json:"duplicates_marked"`
	PostsScored      int    `json:"posts_scored"`
	PostsExcluded    int    `json:"posts_excluded"`
	PostsMalformed   int    `json:"posts_malformed"`
	ScoringFailures  int    `json:"scoring_failures"`
	ArticlesWritten  int    `json:"articles_written"`
	ArticlesSelected int    `json:"articles_selected"`
	Subject          string `json:"subject"`
	Duration         string `json:"duration"`
}

// Runner orchestrates the nightly pipeline.
type Runner struct {
	db      persistence.Database
	fetcher Fetcher
	ai      AI
	review  *review.Service
	cfg     config.Pipeline
	log     *slog.Logger
}

func NewRunner(db persistence.Database, fetcher Fetcher, ai AI, reviewSvc *review.Service, cfg config.Pipeline) *Runner {
	return &Runner{
		db:      db,
		fetcher: fetcher,
		ai:      ai,
		review:  reviewSvc,
		cfg:     cfg,
		log:     logger.Get(),
	}
}

// Run executes the nightly build for sendDate. A second trigger after a
// successful run returns persistence.ErrAlreadyRan before any work happens; a
// failed run releases its marker so the date can be re-triggered.
func (r *Runner) Run(ctx context.Context, sendDate string) (summary *RunSummary, err error) {
	if err := r.db.Campaigns().ClaimRun(ctx, sendDate, JobTypeNightly); err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		// The marker guards duplicate successes and concurrent triggers, not
		// recovery from failures.
		release := context.WithoutCancel(ctx)
		if rerr := r.db.Campaigns().ReleaseRun(release, sendDate, JobTypeNightly); rerr != nil {
			r.log.Error("Failed to release run marker", "send_date", sendDate, "error", rerr)
		}
	}()

	start := time.Now()
	summary = &RunSummary{SendDate: sendDate}

	campaign, err := r.ensureCampaign(ctx, sendDate)
	if err != nil {
		return nil, err
	}
	summary.CampaignID = campaign.ID

	if err := r.ingest(ctx, campaign, summary); err != nil {
		return nil, err
	}
	if err := r.dedupe(ctx, campaign.ID, summary); err != nil {
		return nil, err
	}
	if err := r.score(ctx, campaign.ID, summary); err != nil {
		return nil, err
	}
	if err := r.rewrite(ctx, campaign.ID, summary); err != nil {
		return nil, err
	}
	if err := r.selectAndSubject(ctx, campaign, summary); err != nil {
		return nil, err
	}

	next, err := core.Transition(campaign.Status, core.EventReviewStarted)
	if err != nil {
		return nil, fmt.Errorf("campaign %s cannot enter review: %w", campaign.ID, err)
	}
	if err := r.db.Campaigns().UpdateStatus(ctx, campaign.ID, next); err != nil {
		return nil, fmt.Errorf("update campaign status: %w", err)
	}

	summary.Duration = time.Since(start).Round(time.Millisecond).String()
	r.log.Info("Nightly pipeline finished",
		"campaign_id", campaign.ID,
		"send_date", sendDate,
		"posts", summary.PostsIngested,
		"articles", summary.ArticlesWritten,
		"selected", summary.ArticlesSelected,
		"duration", summary.Duration)
	return summary, nil
}

// ensureCampaign reuses an existing draft for the date or creates a new one.
func (r *Runner) ensureCampaign(ctx context.Context, sendDate string) (*core.Campaign, error) {
	campaign, err := r.db.Campaigns().GetBySendDate(ctx, sendDate)
	if err == nil {
		if campaign.Status != core.StatusDraft {
			return nil, fmt.Errorf("campaign %s for %s is %s, not draft", campaign.ID, sendDate, campaign.Status)
		}
		return campaign, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("look up campaign: %w", err)
	}

	campaign = &core.Campaign{
		ID:           uuid.NewString(),
		SendDate:     sendDate,
		Status:       core.StatusDraft,
		SectionOrder: assemble.DefaultSectionOrder,
	}
	if err := r.db.Campaigns().Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	r.log.Info("Created campaign", "campaign_id", campaign.ID, "send_date", sendDate)
	return campaign, nil
}

// ingest fetches every active feed. A failing feed is logged and recorded on
// the feed row; it never aborts the run.
func (r *Runner) ingest(ctx context.Context, campaign *core.Campaign, summary *RunSummary) error {
	feedList, err := r.db.Feeds().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list feeds: %w", err)
	}

	var posts []core.Post
	for _, feed := range feedList {
		fetched, err := r.fetcher.Fetch(ctx, feed, campaign.ID)
		if err != nil {
			summary.FeedsFailed++
			r.log.Warn("Feed fetch failed", "feed", feed.Name, "url", feed.URL, "error", err)
			feed.LastError = err.Error()
			if uerr := r.db.Feeds().Update(ctx, &feed); uerr != nil {
				r.log.Warn("Failed to record feed error", "feed", feed.Name, "error", uerr)
			}
			continue
		}
		summary.FeedsFetched++
		if feed.LastError != "" {
			feed.LastError = ""
			if uerr := r.db.Feeds().Update(ctx, &feed); uerr != nil {
				r.log.Warn("Failed to clear feed error", "feed", feed.Name, "error", uerr)
			}
		}
		posts = append(posts, fetched...)
	}

	created, err := r.db.Posts().CreateBatch(ctx, posts)
	if err != nil {
		return fmt.Errorf("store posts: %w", err)
	}
	summary.PostsIngested = created
	return nil
}

// dedupe groups near-identical posts. The member with the longest description
// survives as the group's representative; the rest are marked duplicates.
func (r *Runner) dedupe(ctx context.Context, campaignID string, summary *RunSummary) error {
	posts, err := r.db.Posts().ListByCampaign(ctx, campaignID, true)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}
	if len(posts) < 2 {
		return nil
	}

	groups, err := r.ai.GroupDuplicates(ctx, posts)
	if err != nil {
		// Dedupe is best-effort; scoring still works on the full set.
		r.log.Warn("Dedupe failed, keeping all posts", "campaign_id", campaignID, "error", err)
		return nil
	}

	var dupIDs []string
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keep := group[0]
		for _, idx := range group[1:] {
			if len(posts[idx].Description) > len(posts[keep].Description) {
				keep = idx
			}
		}
		for _, idx := range group {
			if idx != keep {
				dupIDs = append(dupIDs, posts[idx].ID)
			}
		}
	}
	if len(dupIDs) == 0 {
		return nil
	}
	if err := r.db.Posts().MarkDuplicates(ctx, dupIDs); err != nil {
		return fmt.Errorf("mark duplicates: %w", err)
	}
	summary.DuplicatesMarked = len(dupIDs)
	return nil
}

// score evaluates unique posts in bounded parallel batches with a pause
// between batches to stay inside the model's rate limits.
func (r *Runner) score(ctx context.Context, campaignID string, summary *RunSummary) error {
	posts, err := r.db.Posts().ListByCampaign(ctx, campaignID, true)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	batchSize := r.cfg.ScoreBatchSize
	if batchSize <= 0 {
		batchSize = 4
	}

	var mu sync.Mutex
	for offset := 0; offset < len(posts); offset += batchSize {
		end := offset + batchSize
		if end > len(posts) {
			end = len(posts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, post := range posts[offset:end] {
			post := post
			g.Go(func() error {
				result, err := r.ai.EvaluatePost(gctx, post)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					summary.ScoringFailures++
					r.log.Warn("Scoring call failed", "post_id", post.ID, "error", err)
				case result.Excluded:
					summary.PostsExcluded++
					r.log.Info("Post excluded by rubric", "post_id", post.ID, "reason", result.Reason)
				case result.Malformed():
					summary.PostsMalformed++
					r.log.Warn("Unparseable rating discarded", "post_id", post.ID)
				default:
					if cerr := r.db.Ratings().Create(gctx, result.Rating); cerr != nil {
						summary.ScoringFailures++
						r.log.Warn("Failed to store rating", "post_id", post.ID, "error", cerr)
					} else {
						summary.PostsScored++
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if end < len(posts) && r.cfg.BatchDelay > 0 {
			select {
			case <-time.After(r.cfg.BatchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// rewrite turns the highest-scoring posts into newsletter articles. A post
// whose rewrite fails twice is dropped; the next candidate is already in the
// rewrite set because the count exceeds the selection target.
func (r *Runner) rewrite(ctx context.Context, campaignID string, summary *RunSummary) error {
	ratings, err := r.db.Ratings().ListByCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("list ratings: %w", err)
	}
	sort.SliceStable(ratings, func(i, j int) bool { return ratings[i].TotalScore > ratings[j].TotalScore })

	count := r.cfg.RewriteCount
	if count <= 0 {
		count = 10
	}
	if count > len(ratings) {
		count = len(ratings)
	}

	for _, rating := range ratings[:count] {
		post, err := r.db.Posts().Get(ctx, rating.PostID)
		if err != nil {
			r.log.Warn("Rated post vanished", "post_id", rating.PostID, "error", err)
			continue
		}

		rewrite, err := r.ai.RewritePost(ctx, *post)
		if err != nil {
			r.log.Warn("Rewrite dropped after retry", "post_id", post.ID, "error", err)
			continue
		}

		article := &core.Article{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			PostID:     post.ID,
			Headline:   rewrite.Headline,
			Content:    rewrite.Content,
			WordCount:  rewrite.WordCount,
			TotalScore: rating.TotalScore,
		}
		if err := r.db.Articles().Create(ctx, article); err != nil {
			return fmt.Errorf("store article: %w", err)
		}
		summary.ArticlesWritten++
	}
	return nil
}

// selectAndSubject activates the top articles and generates the subject from
// the lead.
func (r *Runner) selectAndSubject(ctx context.Context, campaign *core.Campaign, summary *RunSummary) error {
	selected, err := r.review.SelectTop(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("select top articles: %w", err)
	}
	summary.ArticlesSelected = len(selected)
	if len(selected) == 0 {
		r.log.Warn("No articles selected, campaign enters review empty", "campaign_id", campaign.ID)
		return nil
	}

	subject, err := r.ai.GenerateSubject(ctx, selected[0])
	if err != nil {
		r.log.Warn("Subject generation failed, reviewer must set one", "campaign_id", campaign.ID, "error", err)
		return nil
	}
	if err := r.db.Campaigns().SetSubject(ctx, campaign.ID, subject); err != nil {
		return fmt.Errorf("store subject: %w", err)
	}
	summary.Subject = subject
	return nil
}

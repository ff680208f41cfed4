// Package review implements the dashboard operations on a campaign's article
// list: selecting the top stories, reordering, skipping and reinstating.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gazette/internal/core"
	"gazette/internal/logger"
	"gazette/internal/persistence"
)

// SubjectGenerator produces a send-ready subject line from the lead headline.
type SubjectGenerator interface {
	GenerateSubject(ctx context.Context, headline string) (string, error)
}

// Service applies review actions and keeps the rank sequence contiguous.
type Service struct {
	articles  persistence.ArticleRepository
	campaigns persistence.CampaignRepository
	subjects  SubjectGenerator
	target    int // number of active articles to maintain
	log       *slog.Logger
}

func NewService(articles persistence.ArticleRepository, campaigns persistence.CampaignRepository, subjects SubjectGenerator, targetCount int) *Service {
	if targetCount <= 0 {
		targetCount = 5
	}
	return &Service{
		articles:  articles,
		campaigns: campaigns,
		subjects:  subjects,
		target:    targetCount,
		log:       logger.Get(),
	}
}

// SelectTop activates the highest-scoring articles and ranks them 1..N.
// Anything outside the cut is deactivated. Skipped articles never qualify.
func (s *Service) SelectTop(ctx context.Context, campaignID string) ([]core.Article, error) {
	all, err := s.articles.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	candidates := make([]core.Article, 0, len(all))
	for _, a := range all {
		if !a.Skipped {
			candidates = append(candidates, a)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TotalScore > candidates[j].TotalScore
	})

	n := s.target
	if n > len(candidates) {
		n = len(candidates)
	}

	selected := make([]core.Article, 0, n)
	chosen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		rank := i + 1
		if err := s.articles.SetActive(ctx, candidates[i].ID, true, &rank); err != nil {
			return nil, fmt.Errorf("activate article: %w", err)
		}
		candidates[i].IsActive = true
		candidates[i].Rank = &rank
		selected = append(selected, candidates[i])
		chosen[candidates[i].ID] = true
	}

	for _, a := range all {
		if !chosen[a.ID] && (a.IsActive || a.Rank != nil) {
			if err := s.articles.SetActive(ctx, a.ID, false, nil); err != nil {
				return nil, fmt.Errorf("deactivate article: %w", err)
			}
		}
	}

	s.log.Info("Selected top articles", "campaign_id", campaignID, "selected", n, "candidates", len(candidates))
	return selected, nil
}

// Reorder applies the reviewer's ordering. orderedIDs must name exactly the
// active, non-skipped articles of the campaign; ranks are reassigned 1..N in
// the given order. When the lead article changes, the subject line is
// regenerated once from the new lead headline.
func (s *Service) Reorder(ctx context.Context, campaignID string, orderedIDs []string) error {
	all, err := s.articles.ListByCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	byID := make(map[string]core.Article, len(all))
	var previousLead string
	activeCount := 0
	for _, a := range all {
		byID[a.ID] = a
		if a.IsActive && !a.Skipped {
			activeCount++
			if a.Rank != nil && *a.Rank == 1 {
				previousLead = a.ID
			}
		}
	}

	if len(orderedIDs) != activeCount {
		return fmt.Errorf("reorder lists %d articles, campaign has %d active", len(orderedIDs), activeCount)
	}

	updates := make([]persistence.RankUpdate, 0, len(orderedIDs))
	seen := make(map[string]bool, len(orderedIDs))
	for i, id := range orderedIDs {
		a, ok := byID[id]
		if !ok {
			return fmt.Errorf("article %s does not belong to campaign %s", id, campaignID)
		}
		if !a.IsActive || a.Skipped {
			return fmt.Errorf("article %s is not active", id)
		}
		if seen[id] {
			return fmt.Errorf("article %s listed twice", id)
		}
		seen[id] = true
		updates = append(updates, persistence.RankUpdate{ArticleID: id, Rank: i + 1})
	}

	if err := s.articles.UpdateRanks(ctx, updates); err != nil {
		return fmt.Errorf("apply reorder: %w", err)
	}

	if len(orderedIDs) > 0 && orderedIDs[0] != previousLead {
		s.refreshSubject(ctx, campaignID, byID[orderedIDs[0]].Headline)
	}
	return nil
}

// Skip excludes an article from the newsletter without deleting it, or
// reinstates it when skipped is false. Remaining ranks are renormalized to a
// contiguous 1..N. Skipping an active article promotes the best benched
// candidate so the active count holds; skipping the lead regenerates the
// subject once.
func (s *Service) Skip(ctx context.Context, campaignID, articleID string, skipped bool) error {
	target, err := s.articles.Get(ctx, articleID)
	if err != nil {
		return fmt.Errorf("load article: %w", err)
	}
	if target.CampaignID != campaignID {
		return fmt.Errorf("article %s does not belong to campaign %s", articleID, campaignID)
	}

	wasLead := target.IsActive && target.Rank != nil && *target.Rank == 1

	if err := s.articles.SetSkipped(ctx, articleID, skipped); err != nil {
		return fmt.Errorf("set skipped: %w", err)
	}
	if skipped && target.IsActive {
		if err := s.articles.SetActive(ctx, articleID, false, nil); err != nil {
			return fmt.Errorf("deactivate skipped article: %w", err)
		}
	}

	all, err := s.articles.ListByCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	var active, bench []core.Article
	for _, a := range all {
		switch {
		case a.Skipped:
		case a.IsActive:
			active = append(active, a)
		default:
			bench = append(bench, a)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return rankOf(active[i]) < rankOf(active[j]) })
	sort.SliceStable(bench, func(i, j int) bool { return bench[i].TotalScore > bench[j].TotalScore })

	// Backfill the active set from the bench, best score first.
	for len(active) < s.target && len(bench) > 0 {
		promoted := bench[0]
		bench = bench[1:]
		active = append(active, promoted)
		s.log.Info("Promoted benched article", "campaign_id", campaignID, "article_id", promoted.ID)
	}

	for i, a := range active {
		rank := i + 1
		if a.IsActive && a.Rank != nil && *a.Rank == rank {
			continue
		}
		if err := s.articles.SetActive(ctx, a.ID, true, &rank); err != nil {
			return fmt.Errorf("activate article: %w", err)
		}
	}

	if wasLead && skipped && len(active) > 0 {
		s.refreshSubject(ctx, campaignID, active[0].Headline)
	}
	return nil
}

// refreshSubject regenerates the subject from the new lead headline. A
// generation failure keeps the old subject; the reviewer can retry from the
// dashboard.
func (s *Service) refreshSubject(ctx context.Context, campaignID, headline string) {
	if s.subjects == nil || headline == "" {
		return
	}
	subject, err := s.subjects.GenerateSubject(ctx, headline)
	if err != nil {
		s.log.Warn("Subject regeneration failed", "campaign_id", campaignID, "error", err)
		return
	}
	if err := s.campaigns.SetSubject(ctx, campaignID, subject); err != nil {
		s.log.Warn("Failed to store regenerated subject", "campaign_id", campaignID, "error", err)
	}
}

func rankOf(a core.Article) int {
	if a.Rank == nil {
		return 1 << 30
	}
	return *a.Rank
}

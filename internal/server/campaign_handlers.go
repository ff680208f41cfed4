package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gazette/internal/assemble"
	"gazette/internal/core"
	"gazette/internal/persistence"
)

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r, 30)
	campaigns, err := s.db.Campaigns().List(r.Context(), opts)
	if err != nil {
		s.respondStoreError(w, err, "list campaigns")
		return
	}
	s.respondJSON(w, http.StatusOK, campaigns)
}

type createCampaignRequest struct {
	SendDate     string   `json:"send_date"`
	SectionOrder []string `json:"section_order"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := time.Parse("2006-01-02", req.SendDate); err != nil {
		s.respondError(w, http.StatusBadRequest, "send_date must be YYYY-MM-DD")
		return
	}
	order := req.SectionOrder
	if len(order) == 0 {
		order = append([]string(nil), assemble.DefaultSectionOrder...)
	}

	campaign := &core.Campaign{
		ID:           uuid.NewString(),
		SendDate:     req.SendDate,
		Status:       core.StatusDraft,
		SectionOrder: order,
	}
	if err := s.db.Campaigns().Create(r.Context(), campaign); err != nil {
		s.respondStoreError(w, err, "create campaign")
		return
	}
	s.recordActivity(r.Context(), campaign.ID, "campaign_created", req.SendDate)
	s.respondJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.db.Campaigns().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}
	s.respondJSON(w, http.StatusOK, campaign)
}

type updateCampaignRequest struct {
	SubjectLine  *string  `json:"subject_line"`
	SectionOrder []string `json:"section_order"`
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateCampaignRequest
	if !s.decode(w, r, &req) {
		return
	}

	campaign, err := s.db.Campaigns().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}
	if campaign.Status.Terminal() {
		s.respondError(w, http.StatusConflict, "campaign can no longer be edited")
		return
	}

	if req.SubjectLine != nil {
		campaign.SubjectLine = *req.SubjectLine
	}
	if len(req.SectionOrder) > 0 {
		campaign.SectionOrder = req.SectionOrder
	}
	if err := s.db.Campaigns().Update(r.Context(), campaign); err != nil {
		s.respondStoreError(w, err, "update campaign")
		return
	}
	s.markEdited(r.Context(), campaign)
	s.recordActivity(r.Context(), id, "campaign_updated", "")
	s.respondJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.db.Campaigns().Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err, "delete campaign")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Event core.StatusEvent `json:"event"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req transitionRequest
	if !s.decode(w, r, &req) {
		return
	}

	campaign, err := s.db.Campaigns().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}

	next, err := core.Transition(campaign.Status, req.Event)
	if err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err := s.db.Campaigns().UpdateStatus(r.Context(), id, next); err != nil {
		s.respondStoreError(w, err, "update status")
		return
	}
	s.recordActivity(r.Context(), id, "status_"+string(req.Event), string(next))
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": next})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.db.Campaigns().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}

	html, err := s.deps.Assembler.Build(r.Context(), campaign)
	if err != nil {
		s.log.Error("Failed to assemble preview", "campaign_id", campaign.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to assemble newsletter")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(html)); err != nil {
		s.log.Error("Failed to write preview", "error", err)
	}
}

type sendRequest struct {
	SendAt string `json:"send_at"` // RFC3339; empty means send immediately
}

// handleSend assembles the newsletter and hands it to the email provider,
// either sending immediately or scheduling for a future time.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var req sendRequest
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	var sendAt time.Time
	if req.SendAt != "" {
		var perr error
		sendAt, perr = time.Parse(time.RFC3339, req.SendAt)
		if perr != nil {
			s.respondError(w, http.StatusBadRequest, "send_at must be RFC3339")
			return
		}
		if !sendAt.After(time.Now()) {
			s.respondError(w, http.StatusBadRequest, "send_at must be in the future")
			return
		}
	}

	campaign, err := s.db.Campaigns().Get(ctx, id)
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}
	// Validates send is legal from the current status before touching the
	// provider.
	if _, err := core.Transition(campaign.Status, core.EventSent); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}

	html, err := s.deps.Assembler.Build(ctx, campaign)
	if err != nil {
		s.log.Error("Failed to assemble campaign", "campaign_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to assemble newsletter")
		return
	}

	providerID := campaign.ProviderID
	if providerID == "" {
		providerID, err = s.deps.Mailer.CreateCampaign(ctx, campaign.SubjectLine, campaign.SendDate)
		if err != nil {
			s.failDelivery(ctx, w, campaign, "create provider campaign", err)
			return
		}
		if err := s.db.Campaigns().SetProviderID(ctx, id, providerID); err != nil {
			s.respondStoreError(w, err, "save provider id")
			return
		}
	} else if err := s.deps.Mailer.SetSubject(ctx, providerID, campaign.SubjectLine); err != nil {
		// The provider campaign predates any subject edits made in review.
		s.failDelivery(ctx, w, campaign, "update provider subject", err)
		return
	}

	if err := s.deps.Mailer.SetContent(ctx, providerID, html); err != nil {
		s.failDelivery(ctx, w, campaign, "set provider content", err)
		return
	}

	action := "campaign_sent"
	if !sendAt.IsZero() {
		if err := s.deps.Mailer.Schedule(ctx, providerID, sendAt); err != nil {
			s.failDelivery(ctx, w, campaign, "schedule campaign", err)
			return
		}
		action = "campaign_scheduled"
	} else if err := s.deps.Mailer.Send(ctx, providerID); err != nil {
		s.failDelivery(ctx, w, campaign, "send campaign", err)
		return
	}

	next, _ := core.Transition(campaign.Status, core.EventSent)
	if err := s.db.Campaigns().UpdateStatus(ctx, id, next); err != nil {
		s.respondStoreError(w, err, "update status")
		return
	}
	s.recordActivity(ctx, id, action, providerID)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"status":      next,
		"provider_id": providerID,
	})
}

// failDelivery moves the campaign to failed and reports the provider error.
func (s *Server) failDelivery(ctx context.Context, w http.ResponseWriter, campaign *core.Campaign, action string, cause error) {
	s.log.Error("Delivery failed", "campaign_id", campaign.ID, "action", action, "error", cause)
	if next, err := core.Transition(campaign.Status, core.EventDeliveryError); err == nil {
		if err := s.db.Campaigns().UpdateStatus(ctx, campaign.ID, next); err != nil {
			s.log.Error("Failed to mark campaign failed", "campaign_id", campaign.ID, "error", err)
		}
	}
	s.recordActivity(ctx, campaign.ID, "delivery_failed", action)
	s.respondError(w, http.StatusBadGateway, "email provider rejected the "+action)
}

func (s *Server) handleImportMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	campaign, err := s.db.Campaigns().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}
	if campaign.ProviderID == "" {
		s.respondError(w, http.StatusConflict, "campaign has no provider campaign yet")
		return
	}

	metrics, err := s.deps.Mailer.GetMetrics(r.Context(), campaign.ProviderID)
	if err != nil {
		s.log.Error("Failed to fetch metrics", "campaign_id", id, "error", err)
		s.respondError(w, http.StatusBadGateway, "failed to fetch provider metrics")
		return
	}
	metrics.ImportedAt = time.Now()
	if err := s.db.Campaigns().SetMetrics(r.Context(), id, *metrics); err != nil {
		s.respondStoreError(w, err, "save metrics")
		return
	}
	s.respondJSON(w, http.StatusOK, metrics)
}

// handleGenerateSubject regenerates the subject line from the lead article.
func (s *Server) handleGenerateSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	articles, err := s.db.Articles().ListByCampaign(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "list articles")
		return
	}

	var lead *core.Article
	for i := range articles {
		a := &articles[i]
		if a.IsActive && a.Rank != nil && *a.Rank == 1 {
			lead = a
			break
		}
	}
	if lead == nil {
		s.respondError(w, http.StatusConflict, "campaign has no lead article")
		return
	}

	subject, err := s.deps.Subjects.GenerateSubject(r.Context(), *lead)
	if err != nil {
		s.log.Error("Subject generation failed", "campaign_id", id, "error", err)
		s.respondError(w, http.StatusBadGateway, "subject generation failed")
		return
	}
	if err := s.db.Campaigns().SetSubject(r.Context(), id, subject); err != nil {
		s.respondStoreError(w, err, "save subject")
		return
	}
	s.recordActivity(r.Context(), id, "subject_regenerated", subject)
	s.respondJSON(w, http.StatusOK, map[string]string{"subject_line": subject})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.db.Articles().ListByCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "list articles")
		return
	}
	s.respondJSON(w, http.StatusOK, articles)
}

type reorderRequest struct {
	ArticleIDs []string `json:"article_ids"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req reorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.ArticleIDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "article_ids is required")
		return
	}

	if err := s.deps.Review.Reorder(r.Context(), id, req.ArticleIDs); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not found")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.touchEdited(r.Context(), id)
	s.recordActivity(r.Context(), id, "articles_reordered", "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := s.db.Activities().ListByCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "list activities")
		return
	}
	s.respondJSON(w, http.StatusOK, activities)
}

type updateArticleRequest struct {
	Headline string `json:"headline"`
	Content  string `json:"content"`
}

func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateArticleRequest
	if !s.decode(w, r, &req) {
		return
	}

	article, err := s.db.Articles().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get article")
		return
	}
	if req.Headline != "" {
		article.Headline = req.Headline
	}
	if req.Content != "" {
		article.Content = req.Content
		article.WordCount = wordCount(req.Content)
	}
	if err := s.db.Articles().Update(r.Context(), article); err != nil {
		s.respondStoreError(w, err, "update article")
		return
	}
	s.touchEdited(r.Context(), article.CampaignID)
	s.recordActivity(r.Context(), article.CampaignID, "article_edited", article.ID)
	s.respondJSON(w, http.StatusOK, article)
}

type skipRequest struct {
	Skipped bool `json:"skipped"`
}

func (s *Server) handleSkipArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req skipRequest
	if !s.decode(w, r, &req) {
		return
	}

	article, err := s.db.Articles().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get article")
		return
	}
	if err := s.deps.Review.Skip(r.Context(), article.CampaignID, id, req.Skipped); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "not found")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.touchEdited(r.Context(), article.CampaignID)
	action := "article_skipped"
	if !req.Skipped {
		action = "article_restored"
	}
	s.recordActivity(r.Context(), article.CampaignID, action, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListManualArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.db.ManualArticles().ListByCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "list manual articles")
		return
	}
	s.respondJSON(w, http.StatusOK, articles)
}

type manualArticleRequest struct {
	Headline string `json:"headline"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
	Rank     *int   `json:"rank"`
}

func (s *Server) handleCreateManualArticle(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	var req manualArticleRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Headline == "" || req.Content == "" {
		s.respondError(w, http.StatusBadRequest, "headline and content are required")
		return
	}

	article := &core.ManualArticle{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Headline:   req.Headline,
		Content:    req.Content,
		ImageURL:   req.ImageURL,
		Rank:       req.Rank,
		IsActive:   true,
		Author:     currentUser(r.Context()),
	}
	if err := s.db.ManualArticles().Create(r.Context(), article); err != nil {
		s.respondStoreError(w, err, "create manual article")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "manual_article_created", article.ID)
	s.respondJSON(w, http.StatusCreated, article)
}

func (s *Server) handleUpdateManualArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req manualArticleRequest
	if !s.decode(w, r, &req) {
		return
	}

	article, err := s.db.ManualArticles().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get manual article")
		return
	}
	if req.Headline != "" {
		article.Headline = req.Headline
	}
	if req.Content != "" {
		article.Content = req.Content
	}
	if req.ImageURL != "" {
		article.ImageURL = req.ImageURL
	}
	if req.Rank != nil {
		article.Rank = req.Rank
	}
	if err := s.db.ManualArticles().Update(r.Context(), article); err != nil {
		s.respondStoreError(w, err, "update manual article")
		return
	}
	s.touchEdited(r.Context(), article.CampaignID)
	s.recordActivity(r.Context(), article.CampaignID, "manual_article_edited", id)
	s.respondJSON(w, http.StatusOK, article)
}

func (s *Server) handleDeleteManualArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, err := s.db.ManualArticles().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get manual article")
		return
	}
	if err := s.db.ManualArticles().Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err, "delete manual article")
		return
	}
	s.touchEdited(r.Context(), article.CampaignID)
	s.recordActivity(r.Context(), article.CampaignID, "manual_article_deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// markEdited applies the edited event when it is legal for the campaign's
// current status. Edits to drafts stay drafts.
func (s *Server) markEdited(ctx context.Context, campaign *core.Campaign) {
	next, err := core.Transition(campaign.Status, core.EventEdited)
	if err != nil {
		return
	}
	if err := s.db.Campaigns().UpdateStatus(ctx, campaign.ID, next); err != nil {
		s.log.Error("Failed to mark campaign edited", "campaign_id", campaign.ID, "error", err)
		return
	}
	campaign.Status = next
}

// touchEdited is markEdited for handlers that only hold the campaign id.
func (s *Server) touchEdited(ctx context.Context, campaignID string) {
	campaign, err := s.db.Campaigns().Get(ctx, campaignID)
	if err != nil {
		s.log.Warn("Failed to load campaign for edit tracking", "campaign_id", campaignID, "error", err)
		return
	}
	s.markEdited(ctx, campaign)
}

func listOptions(r *http.Request, defaultLimit int) persistence.ListOptions {
	opts := persistence.ListOptions{Limit: defaultLimit}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositive(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := parsePositive(v); err == nil {
			opts.Offset = n
		}
	}
	return opts
}

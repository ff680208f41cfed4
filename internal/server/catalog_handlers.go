package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gazette/internal/core"
	"gazette/internal/events"
	"gazette/internal/payments"
	"gazette/internal/persistence"
)

// --- Feeds ---

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.Feeds().List(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "list feeds")
		return
	}
	s.respondJSON(w, http.StatusOK, feeds)
}

type feedRequest struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" || req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "url and name are required")
		return
	}

	feed := &core.Feed{
		ID:     uuid.NewString(),
		URL:    req.URL,
		Name:   req.Name,
		Active: true,
	}
	if req.Active != nil {
		feed.Active = *req.Active
	}
	if err := s.db.Feeds().Create(r.Context(), feed); err != nil {
		s.respondStoreError(w, err, "create feed")
		return
	}
	s.respondJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req feedRequest
	if !s.decode(w, r, &req) {
		return
	}

	feed, err := s.db.Feeds().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get feed")
		return
	}
	if req.URL != "" {
		feed.URL = req.URL
	}
	if req.Name != "" {
		feed.Name = req.Name
	}
	if req.Active != nil {
		feed.Active = *req.Active
	}
	if err := s.db.Feeds().Update(r.Context(), feed); err != nil {
		s.respondStoreError(w, err, "update feed")
		return
	}
	s.respondJSON(w, http.StatusOK, feed)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Feeds().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete feed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Events ---

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := persistence.EventFilter{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Search: q.Get("search"),
		Limit:  100,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := parsePositive(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := parsePositive(v); err == nil {
			filter.Offset = n
		}
	}

	list, err := s.db.Events().List(r.Context(), filter)
	if err != nil {
		s.respondStoreError(w, err, "list events")
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

type eventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Title == "" || req.StartsAt.IsZero() {
		s.respondError(w, http.StatusBadRequest, "title and starts_at are required")
		return
	}
	if req.EndsAt.IsZero() {
		req.EndsAt = req.StartsAt
	}

	event := &core.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		URL:         req.URL,
		ImageURL:    req.ImageURL,
	}
	if err := s.db.Events().Create(r.Context(), event); err != nil {
		s.respondStoreError(w, err, "create event")
		return
	}
	s.respondJSON(w, http.StatusCreated, event)
}

// handleImportEvents accepts a CSV upload, either as a multipart "file" field
// or as the raw request body.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "missing file upload")
			return
		}
		defer file.Close()
		reader = file
	}

	result, err := events.ParseCSV(reader)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid CSV: "+err.Error())
		return
	}

	imported := 0
	for i := range result.Events {
		event := result.Events[i]
		event.ID = uuid.NewString()
		if err := s.db.Events().Create(r.Context(), &event); err != nil {
			s.log.Error("Failed to store imported event", "title", event.Title, "error", err)
			result.Errors = append(result.Errors, "store "+event.Title+": "+err.Error())
			continue
		}
		imported++
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"imported": imported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
	})
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req eventRequest
	if !s.decode(w, r, &req) {
		return
	}

	event, err := s.db.Events().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get event")
		return
	}
	if req.Title != "" {
		event.Title = req.Title
	}
	if req.Description != "" {
		event.Description = req.Description
	}
	if req.Location != "" {
		event.Location = req.Location
	}
	if !req.StartsAt.IsZero() {
		event.StartsAt = req.StartsAt
	}
	if !req.EndsAt.IsZero() {
		event.EndsAt = req.EndsAt
	}
	if req.URL != "" {
		event.URL = req.URL
	}
	if req.ImageURL != "" {
		event.ImageURL = req.ImageURL
	}
	if err := s.db.Events().Update(r.Context(), event); err != nil {
		s.respondStoreError(w, err, "update event")
		return
	}
	s.respondJSON(w, http.StatusOK, event)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Events().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	list, err := s.db.Events().List(r.Context(), persistence.EventFilter{CampaignID: id})
	if err != nil {
		s.respondStoreError(w, err, "list campaign events")
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

type selectEventRequest struct {
	EventID   string `json:"event_id"`
	Featured  bool   `json:"featured"`
	SortOrder int    `json:"sort_order"`
}

func (s *Server) handleSelectEvent(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	var req selectEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.EventID == "" {
		s.respondError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	sel := core.CampaignEvent{
		CampaignID: campaignID,
		EventID:    req.EventID,
		Featured:   req.Featured,
		SortOrder:  req.SortOrder,
	}
	if err := s.db.Events().SelectForCampaign(r.Context(), sel); err != nil {
		s.respondStoreError(w, err, "select event")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "event_selected", req.EventID)
	s.respondJSON(w, http.StatusCreated, sel)
}

func (s *Server) handleDeselectEvent(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	eventID := chi.URLParam(r, "eventID")
	if err := s.db.Events().DeselectForCampaign(r.Context(), campaignID, eventID); err != nil {
		s.respondStoreError(w, err, "deselect event")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "event_deselected", eventID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Dining ---

func (s *Server) handleListDining(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	deals, err := s.db.Dining().List(r.Context(), activeOnly)
	if err != nil {
		s.respondStoreError(w, err, "list dining deals")
		return
	}
	s.respondJSON(w, http.StatusOK, deals)
}

type diningRequest struct {
	Restaurant string   `json:"restaurant"`
	Deal       string   `json:"deal"`
	DaysActive []string `json:"days_active"`
	URL        string   `json:"url"`
	ImageURL   string   `json:"image_url"`
	Active     *bool    `json:"active"`
}

func (s *Server) handleCreateDining(w http.ResponseWriter, r *http.Request) {
	var req diningRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Restaurant == "" || req.Deal == "" {
		s.respondError(w, http.StatusBadRequest, "restaurant and deal are required")
		return
	}

	deal := &core.DiningDeal{
		ID:         uuid.NewString(),
		Restaurant: req.Restaurant,
		Deal:       req.Deal,
		DaysActive: req.DaysActive,
		URL:        req.URL,
		ImageURL:   req.ImageURL,
		Active:     true,
	}
	if req.Active != nil {
		deal.Active = *req.Active
	}
	if err := s.db.Dining().Create(r.Context(), deal); err != nil {
		s.respondStoreError(w, err, "create dining deal")
		return
	}
	s.respondJSON(w, http.StatusCreated, deal)
}

func (s *Server) handleUpdateDining(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req diningRequest
	if !s.decode(w, r, &req) {
		return
	}

	deal, err := s.db.Dining().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get dining deal")
		return
	}
	if req.Restaurant != "" {
		deal.Restaurant = req.Restaurant
	}
	if req.Deal != "" {
		deal.Deal = req.Deal
	}
	if req.DaysActive != nil {
		deal.DaysActive = req.DaysActive
	}
	if req.URL != "" {
		deal.URL = req.URL
	}
	if req.ImageURL != "" {
		deal.ImageURL = req.ImageURL
	}
	if req.Active != nil {
		deal.Active = *req.Active
	}
	if err := s.db.Dining().Update(r.Context(), deal); err != nil {
		s.respondStoreError(w, err, "update dining deal")
		return
	}
	s.respondJSON(w, http.StatusOK, deal)
}

func (s *Server) handleDeleteDining(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Dining().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete dining deal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectDiningRequest struct {
	DealID    string `json:"deal_id"`
	SortOrder int    `json:"sort_order"`
}

func (s *Server) handleSelectDining(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	var req selectDiningRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.DealID == "" {
		s.respondError(w, http.StatusBadRequest, "deal_id is required")
		return
	}

	sel := core.CampaignDiningSelection{
		CampaignID: campaignID,
		DealID:     req.DealID,
		SortOrder:  req.SortOrder,
	}
	if err := s.db.Dining().SelectForCampaign(r.Context(), sel); err != nil {
		s.respondStoreError(w, err, "select dining deal")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "dining_selected", req.DealID)
	s.respondJSON(w, http.StatusCreated, sel)
}

func (s *Server) handleDeselectDining(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	dealID := chi.URLParam(r, "dealID")
	if err := s.db.Dining().DeselectForCampaign(r.Context(), campaignID, dealID); err != nil {
		s.respondStoreError(w, err, "deselect dining deal")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "dining_deselected", dealID)
	w.WriteHeader(http.StatusNoContent)
}

// --- VRBO listings ---

func (s *Server) handleListVrbo(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	listings, err := s.db.Vrbo().List(r.Context(), activeOnly)
	if err != nil {
		s.respondStoreError(w, err, "list vrbo listings")
		return
	}
	s.respondJSON(w, http.StatusOK, listings)
}

type vrboRequest struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
	Sleeps   int    `json:"sleeps"`
	Nightly  string `json:"nightly"`
	Active   *bool  `json:"active"`
}

func (s *Server) handleCreateVrbo(w http.ResponseWriter, r *http.Request) {
	var req vrboRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Title == "" || req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "title and url are required")
		return
	}

	listing := &core.VrboListing{
		ID:       uuid.NewString(),
		Title:    req.Title,
		URL:      req.URL,
		ImageURL: req.ImageURL,
		Sleeps:   req.Sleeps,
		Nightly:  req.Nightly,
		Active:   true,
	}
	if req.Active != nil {
		listing.Active = *req.Active
	}
	if err := s.db.Vrbo().Create(r.Context(), listing); err != nil {
		s.respondStoreError(w, err, "create vrbo listing")
		return
	}
	s.respondJSON(w, http.StatusCreated, listing)
}

func (s *Server) handleUpdateVrbo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req vrboRequest
	if !s.decode(w, r, &req) {
		return
	}

	listing, err := s.db.Vrbo().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get vrbo listing")
		return
	}
	if req.Title != "" {
		listing.Title = req.Title
	}
	if req.URL != "" {
		listing.URL = req.URL
	}
	if req.ImageURL != "" {
		listing.ImageURL = req.ImageURL
	}
	if req.Sleeps > 0 {
		listing.Sleeps = req.Sleeps
	}
	if req.Nightly != "" {
		listing.Nightly = req.Nightly
	}
	if req.Active != nil {
		listing.Active = *req.Active
	}
	if err := s.db.Vrbo().Update(r.Context(), listing); err != nil {
		s.respondStoreError(w, err, "update vrbo listing")
		return
	}
	s.respondJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDeleteVrbo(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Vrbo().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete vrbo listing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectVrboRequest struct {
	ListingID string `json:"listing_id"`
	Featured  bool   `json:"featured"`
	SortOrder int    `json:"sort_order"`
}

func (s *Server) handleSelectVrbo(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	var req selectVrboRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ListingID == "" {
		s.respondError(w, http.StatusBadRequest, "listing_id is required")
		return
	}

	sel := core.CampaignVrboSelection{
		CampaignID: campaignID,
		ListingID:  req.ListingID,
		Featured:   req.Featured,
		SortOrder:  req.SortOrder,
	}
	if err := s.db.Vrbo().SelectForCampaign(r.Context(), sel); err != nil {
		s.respondStoreError(w, err, "select vrbo listing")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "vrbo_selected", req.ListingID)
	s.respondJSON(w, http.StatusCreated, sel)
}

func (s *Server) handleDeselectVrbo(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	listingID := chi.URLParam(r, "listingID")
	if err := s.db.Vrbo().DeselectForCampaign(r.Context(), campaignID, listingID); err != nil {
		s.respondStoreError(w, err, "deselect vrbo listing")
		return
	}
	s.touchEdited(r.Context(), campaignID)
	s.recordActivity(r.Context(), campaignID, "vrbo_deselected", listingID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Polls ---

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	polls, err := s.db.Polls().List(r.Context(), activeOnly)
	if err != nil {
		s.respondStoreError(w, err, "list polls")
		return
	}
	s.respondJSON(w, http.StatusOK, polls)
}

type pollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Active   *bool    `json:"active"`
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Question == "" || len(req.Options) < 2 {
		s.respondError(w, http.StatusBadRequest, "question and at least two options are required")
		return
	}

	poll := &core.Poll{
		ID:       uuid.NewString(),
		Question: req.Question,
		Active:   true,
	}
	if req.Active != nil {
		poll.Active = *req.Active
	}
	for _, label := range req.Options {
		poll.Options = append(poll.Options, core.PollOption{
			ID:    uuid.NewString(),
			Label: label,
		})
	}
	if err := s.db.Polls().Create(r.Context(), poll); err != nil {
		s.respondStoreError(w, err, "create poll")
		return
	}
	s.respondJSON(w, http.StatusCreated, poll)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	poll, err := s.db.Polls().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "get poll")
		return
	}
	s.respondJSON(w, http.StatusOK, poll)
}

func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req pollRequest
	if !s.decode(w, r, &req) {
		return
	}

	poll, err := s.db.Polls().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get poll")
		return
	}
	if req.Question != "" {
		poll.Question = req.Question
	}
	if req.Active != nil {
		poll.Active = *req.Active
	}
	if err := s.db.Polls().Update(r.Context(), poll); err != nil {
		s.respondStoreError(w, err, "update poll")
		return
	}
	s.respondJSON(w, http.StatusOK, poll)
}

func (s *Server) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Polls().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete poll")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type voteRequest struct {
	OptionID string `json:"option_id"`
}

// handleVote is public: newsletter readers land here from the emailed poll.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	var req voteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.OptionID == "" {
		s.respondError(w, http.StatusBadRequest, "option_id is required")
		return
	}

	if err := s.db.Polls().Vote(r.Context(), pollID, req.OptionID); err != nil {
		s.respondStoreError(w, err, "record vote")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Advertisements ---

func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := s.db.Ads().List(r.Context(), listOptions(r, 50))
	if err != nil {
		s.respondStoreError(w, err, "list ads")
		return
	}
	s.respondJSON(w, http.StatusOK, ads)
}

type adRequest struct {
	Advertiser string `json:"advertiser"`
	Headline   string `json:"headline"`
	Body       string `json:"body"`
	LinkURL    string `json:"link_url"`
	ImageURL   string `json:"image_url"`
	RunDate    string `json:"run_date"`
	Active     *bool  `json:"active"`
}

func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	var req adRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Advertiser == "" || req.Headline == "" {
		s.respondError(w, http.StatusBadRequest, "advertiser and headline are required")
		return
	}
	if req.RunDate != "" {
		if _, err := time.Parse("2006-01-02", req.RunDate); err != nil {
			s.respondError(w, http.StatusBadRequest, "run_date must be YYYY-MM-DD")
			return
		}
	}

	ad := &core.Advertisement{
		ID:         uuid.NewString(),
		Advertiser: req.Advertiser,
		Headline:   req.Headline,
		Body:       req.Body,
		LinkURL:    req.LinkURL,
		ImageURL:   req.ImageURL,
		RunDate:    req.RunDate,
		Active:     true,
	}
	if req.Active != nil {
		ad.Active = *req.Active
	}
	if err := s.db.Ads().Create(r.Context(), ad); err != nil {
		s.respondStoreError(w, err, "create ad")
		return
	}
	s.respondJSON(w, http.StatusCreated, ad)
}

func (s *Server) handleUpdateAd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req adRequest
	if !s.decode(w, r, &req) {
		return
	}

	ad, err := s.db.Ads().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get ad")
		return
	}
	if req.Advertiser != "" {
		ad.Advertiser = req.Advertiser
	}
	if req.Headline != "" {
		ad.Headline = req.Headline
	}
	if req.Body != "" {
		ad.Body = req.Body
	}
	if req.LinkURL != "" {
		ad.LinkURL = req.LinkURL
	}
	if req.ImageURL != "" {
		ad.ImageURL = req.ImageURL
	}
	if req.RunDate != "" {
		ad.RunDate = req.RunDate
	}
	if req.Active != nil {
		ad.Active = *req.Active
	}
	if err := s.db.Ads().Update(r.Context(), ad); err != nil {
		s.respondStoreError(w, err, "update ad")
		return
	}
	s.respondJSON(w, http.StatusOK, ad)
}

func (s *Server) handleDeleteAd(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ads().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete ad")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// handleAdCheckout opens a checkout session and stores the session id so the
// payment webhook can match the settlement back to the ad.
func (s *Server) handleAdCheckout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req checkoutRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AmountCents <= 0 {
		s.respondError(w, http.StatusBadRequest, "amount_cents must be positive")
		return
	}

	ad, err := s.db.Ads().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get ad")
		return
	}
	if ad.Paid {
		s.respondError(w, http.StatusConflict, "ad is already paid")
		return
	}

	description := ad.Advertiser + ": " + ad.Headline
	session, err := s.deps.Payments.CreateSession(r.Context(), ad.ID, description, req.AmountCents)
	if err != nil {
		s.log.Error("Checkout session failed", "ad_id", id, "error", err)
		s.respondError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	ad.CheckoutID = session.ID
	if err := s.db.Ads().Update(r.Context(), ad); err != nil {
		s.respondStoreError(w, err, "save checkout id")
		return
	}
	s.respondJSON(w, http.StatusCreated, session)
}

// handlePaymentWebhook is public but HMAC-verified.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := s.deps.Payments.VerifyWebhook(body, r.Header.Get("X-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			s.log.Warn("Webhook signature mismatch")
			s.respondError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if event.Type != "checkout.completed" {
		// Acknowledge everything else so the provider stops retrying.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.db.Ads().MarkPaid(r.Context(), event.SessionID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.log.Warn("Webhook for unknown checkout session", "session_id", event.SessionID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.respondStoreError(w, err, "mark ad paid")
		return
	}
	s.log.Info("Ad payment settled", "session_id", event.SessionID, "ad_id", event.Reference)
	w.WriteHeader(http.StatusNoContent)
}

// --- Images ---

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.db.Images().List(r.Context(), listOptions(r, 100))
	if err != nil {
		s.respondStoreError(w, err, "list images")
		return
	}
	s.respondJSON(w, http.StatusOK, images)
}

type uploadImageRequest struct {
	SourceURL string `json:"source_url"`
	Label     string `json:"label"`
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	var req uploadImageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SourceURL == "" {
		s.respondError(w, http.StatusBadRequest, "source_url is required")
		return
	}

	image, err := s.deps.Images.UploadByURL(r.Context(), req.SourceURL, req.Label)
	if err != nil {
		s.log.Error("Image upload failed", "source_url", req.SourceURL, "error", err)
		s.respondError(w, http.StatusBadGateway, "image host unavailable")
		return
	}
	if err := s.db.Images().Create(r.Context(), image); err != nil {
		s.respondStoreError(w, err, "save image")
		return
	}
	s.respondJSON(w, http.StatusCreated, image)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	image, err := s.db.Images().Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "get image")
		return
	}

	// Remote deletion is best effort: the host may have expired the hash.
	if image.DeleteHash != "" {
		if err := s.deps.Images.Delete(r.Context(), image.DeleteHash); err != nil {
			s.log.Warn("Remote image deletion failed", "image_id", id, "error", err)
		}
	}
	if err := s.db.Images().Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err, "delete image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Road work ---

func (s *Server) handleListRoadWork(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	items, err := s.db.RoadWork().ListCurrent(r.Context(), date)
	if err != nil {
		s.respondStoreError(w, err, "list road work")
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

type roadWorkRequest struct {
	Road     string    `json:"road"`
	Details  string    `json:"details"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (s *Server) handleCreateRoadWork(w http.ResponseWriter, r *http.Request) {
	var req roadWorkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Road == "" || req.StartsAt.IsZero() {
		s.respondError(w, http.StatusBadRequest, "road and starts_at are required")
		return
	}
	if req.EndsAt.IsZero() {
		req.EndsAt = req.StartsAt
	}

	item := &core.RoadWorkItem{
		ID:       uuid.NewString(),
		Road:     req.Road,
		Details:  req.Details,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	}
	if err := s.db.RoadWork().Create(r.Context(), item); err != nil {
		s.respondStoreError(w, err, "create road work")
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleDeleteRoadWork(w http.ResponseWriter, r *http.Request) {
	if err := s.db.RoadWork().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err, "delete road work")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Weather ---

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		s.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	forecast, err := s.deps.Weather.Forecast(r.Context(), date)
	if err != nil {
		s.log.Error("Forecast lookup failed", "date", date, "error", err)
		s.respondError(w, http.StatusBadGateway, "forecast service unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, forecast)
}

// --- Cron ---

type cronRunRequest struct {
	SendDate string `json:"send_date"`
}

// handleCronRun triggers the nightly pipeline. Duplicate triggers for the same
// date return 409 via the run marker.
func (s *Server) handleCronRun(w http.ResponseWriter, r *http.Request) {
	var req cronRunRequest
	if r.ContentLength > 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	if req.SendDate == "" {
		req.SendDate = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", req.SendDate); err != nil {
		s.respondError(w, http.StatusBadRequest, "send_date must be YYYY-MM-DD")
		return
	}

	summary, err := s.deps.Runner.Run(r.Context(), req.SendDate)
	if err != nil {
		if errors.Is(err, persistence.ErrAlreadyRan) {
			s.respondError(w, http.StatusConflict, "pipeline already ran for "+req.SendDate)
			return
		}
		s.log.Error("Pipeline run failed", "send_date", req.SendDate, "error", err)
		s.respondError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

// handleCronMetrics imports provider metrics for the sent campaign of a date.
func (s *Server) handleCronMetrics(w http.ResponseWriter, r *http.Request) {
	var req cronRunRequest
	if r.ContentLength > 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	if req.SendDate == "" {
		req.SendDate = time.Now().Format("2006-01-02")
	}

	campaign, err := s.db.Campaigns().GetBySendDate(r.Context(), req.SendDate)
	if err != nil {
		s.respondStoreError(w, err, "get campaign")
		return
	}
	if campaign.Status != core.StatusSent || campaign.ProviderID == "" {
		s.respondError(w, http.StatusConflict, "campaign for "+req.SendDate+" has not been sent")
		return
	}

	metrics, err := s.deps.Mailer.GetMetrics(r.Context(), campaign.ProviderID)
	if err != nil {
		s.log.Error("Metrics import failed", "campaign_id", campaign.ID, "error", err)
		s.respondError(w, http.StatusBadGateway, "failed to fetch provider metrics")
		return
	}
	metrics.ImportedAt = time.Now()
	if err := s.db.Campaigns().SetMetrics(r.Context(), campaign.ID, *metrics); err != nil {
		s.respondStoreError(w, err, "save metrics")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"campaign_id": campaign.ID,
		"metrics":     metrics,
	})
}

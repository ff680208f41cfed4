// Package server exposes the dashboard and cron HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/logger"
	"gazette/internal/payments"
	"gazette/internal/persistence"
	"gazette/internal/pipeline"
	"gazette/internal/review"
)

// Assembler renders a campaign's newsletter HTML.
type Assembler interface {
	Build(ctx context.Context, campaign *core.Campaign) (string, error)
}

// Mailer is the delivery-provider surface the handlers use.
type Mailer interface {
	CreateCampaign(ctx context.Context, subject, sendDate string) (string, error)
	SetContent(ctx context.Context, providerID, html string) error
	SetSubject(ctx context.Context, providerID, subject string) error
	Send(ctx context.Context, providerID string) error
	Schedule(ctx context.Context, providerID string, sendAt time.Time) error
	GetMetrics(ctx context.Context, providerID string) (*core.CampaignMetrics, error)
}

// ForecastProvider supplies the dashboard weather endpoint.
type ForecastProvider interface {
	Forecast(ctx context.Context, date string) ([]core.WeatherForecast, error)
}

// Uploader re-hosts images at the external image service.
type Uploader interface {
	UploadByURL(ctx context.Context, sourceURL, label string) (*core.Image, error)
	Delete(ctx context.Context, deleteHash string) error
}

// Checkout opens payment sessions and verifies webhooks.
type Checkout interface {
	CreateSession(ctx context.Context, adID, description string, amountCents int64) (*payments.CheckoutSession, error)
	VerifyWebhook(body []byte, signature string) (*payments.WebhookEvent, error)
}

// SubjectAI regenerates subject lines on demand.
type SubjectAI interface {
	GenerateSubject(ctx context.Context, article core.Article) (string, error)
}

// PipelineRunner triggers the nightly build.
type PipelineRunner interface {
	Run(ctx context.Context, sendDate string) (*pipeline.RunSummary, error)
}

// Dependencies carries the service clients the handlers call.
type Dependencies struct {
	Runner    PipelineRunner
	Review    *review.Service
	Assembler Assembler
	Mailer    Mailer
	Weather   ForecastProvider
	Images    Uploader
	Payments  Checkout
	Subjects  SubjectAI
}

// Server is the HTTP server for the dashboard API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         persistence.Database
	cfg        *config.Config
	deps       Dependencies
	log        *slog.Logger
}

// New creates the HTTP server with middleware and routes wired.
func New(db persistence.Database, cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		router: chi.NewRouter(),
		db:     db,
		cfg:    cfg,
		deps:   deps,
		log:    logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	// The cron trigger runs the whole pipeline inside the request, so the
	// timeout has to cover a full nightly build.
	s.router.Use(middleware.Timeout(s.cfg.Server.WriteTimeout))

	if s.cfg.Server.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// Public routes: login, reader poll votes, payment webhooks.
	s.router.Post("/api/login", s.handleLogin)
	s.router.Post("/api/logout", s.handleLogout)
	s.router.Post("/api/polls/{id}/vote", s.handleVote)
	s.router.Post("/api/webhooks/payments", s.handlePaymentWebhook)

	// Cron routes: shared-secret bearer token, no session.
	s.router.Route("/api/cron", func(r chi.Router) {
		r.Use(s.cronAuth)
		r.Post("/run", s.handleCronRun)
		r.Post("/metrics", s.handleCronMetrics)
	})

	// Dashboard routes: session cookie required.
	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.sessionAuth)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Put("/{id}", s.handleUpdateCampaign)
			r.Delete("/{id}", s.handleDeleteCampaign)
			r.Post("/{id}/transition", s.handleTransition)
			r.Get("/{id}/preview", s.handlePreview)
			r.Post("/{id}/send", s.handleSend)
			r.Post("/{id}/metrics", s.handleImportMetrics)
			r.Post("/{id}/subject", s.handleGenerateSubject)
			r.Get("/{id}/articles", s.handleListArticles)
			r.Post("/{id}/articles/reorder", s.handleReorder)
			r.Get("/{id}/activities", s.handleListActivities)
			r.Get("/{id}/manual-articles", s.handleListManualArticles)
			r.Post("/{id}/manual-articles", s.handleCreateManualArticle)
			r.Get("/{id}/events", s.handleListCampaignEvents)
			r.Post("/{id}/events", s.handleSelectEvent)
			r.Delete("/{id}/events/{eventID}", s.handleDeselectEvent)
			r.Post("/{id}/dining", s.handleSelectDining)
			r.Delete("/{id}/dining/{dealID}", s.handleDeselectDining)
			r.Post("/{id}/vrbo", s.handleSelectVrbo)
			r.Delete("/{id}/vrbo/{listingID}", s.handleDeselectVrbo)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Put("/{id}", s.handleUpdateArticle)
			r.Post("/{id}/skip", s.handleSkipArticle)
		})

		r.Route("/manual-articles", func(r chi.Router) {
			r.Put("/{id}", s.handleUpdateManualArticle)
			r.Delete("/{id}", s.handleDeleteManualArticle)
		})

		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", s.handleListFeeds)
			r.Post("/", s.handleCreateFeed)
			r.Put("/{id}", s.handleUpdateFeed)
			r.Delete("/{id}", s.handleDeleteFeed)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Post("/", s.handleCreateEvent)
			r.Post("/import", s.handleImportEvents)
			r.Put("/{id}", s.handleUpdateEvent)
			r.Delete("/{id}", s.handleDeleteEvent)
		})

		r.Route("/dining", func(r chi.Router) {
			r.Get("/", s.handleListDining)
			r.Post("/", s.handleCreateDining)
			r.Put("/{id}", s.handleUpdateDining)
			r.Delete("/{id}", s.handleDeleteDining)
		})

		r.Route("/vrbo", func(r chi.Router) {
			r.Get("/", s.handleListVrbo)
			r.Post("/", s.handleCreateVrbo)
			r.Put("/{id}", s.handleUpdateVrbo)
			r.Delete("/{id}", s.handleDeleteVrbo)
		})

		r.Route("/polls", func(r chi.Router) {
			r.Get("/", s.handleListPolls)
			r.Post("/", s.handleCreatePoll)
			r.Get("/{id}", s.handleGetPoll)
			r.Put("/{id}", s.handleUpdatePoll)
			r.Delete("/{id}", s.handleDeletePoll)
		})

		r.Route("/ads", func(r chi.Router) {
			r.Get("/", s.handleListAds)
			r.Post("/", s.handleCreateAd)
			r.Put("/{id}", s.handleUpdateAd)
			r.Delete("/{id}", s.handleDeleteAd)
			r.Post("/{id}/checkout", s.handleAdCheckout)
		})

		r.Route("/images", func(r chi.Router) {
			r.Get("/", s.handleListImages)
			r.Post("/", s.handleUploadImage)
			r.Delete("/{id}", s.handleDeleteImage)
		})

		r.Route("/roadwork", func(r chi.Router) {
			r.Get("/", s.handleListRoadWork)
			r.Post("/", s.handleCreateRoadWork)
			r.Delete("/{id}", s.handleDeleteRoadWork)
		})

		r.Get("/weather", s.handleWeather)
	})
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.cfg.Server.ReadTimeout,
		"write_timeout", s.cfg.Server.WriteTimeout,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router returns the chi router, used by tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

var serverStartTime = time.Now()

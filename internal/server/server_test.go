package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/payments"
	"gazette/internal/persistence"
	"gazette/internal/pipeline"
	"gazette/internal/review"
)

type fakeCampaigns struct {
	persistence.CampaignRepository
	campaigns map[string]*core.Campaign
}

func (f *fakeCampaigns) Get(_ context.Context, id string) (*core.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) List(_ context.Context, _ persistence.ListOptions) ([]core.Campaign, error) {
	var out []core.Campaign
	for _, c := range f.campaigns {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCampaigns) Create(_ context.Context, c *core.Campaign) error {
	cp := *c
	f.campaigns[c.ID] = &cp
	return nil
}

func (f *fakeCampaigns) UpdateStatus(_ context.Context, id string, status core.Status) error {
	c, ok := f.campaigns[id]
	if !ok {
		return persistence.ErrNotFound
	}
	c.Status = status
	return nil
}

func (f *fakeCampaigns) SetProviderID(_ context.Context, id, providerID string) error {
	c, ok := f.campaigns[id]
	if !ok {
		return persistence.ErrNotFound
	}
	c.ProviderID = providerID
	return nil
}

type fakeEvents struct {
	persistence.EventRepository
	created []core.Event
}

func (f *fakeEvents) Create(_ context.Context, e *core.Event) error {
	f.created = append(f.created, *e)
	return nil
}

type fakeAds struct {
	persistence.AdRepository
	ads map[string]*core.Advertisement
}

func (f *fakeAds) Get(_ context.Context, id string) (*core.Advertisement, error) {
	ad, ok := f.ads[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := *ad
	return &cp, nil
}

func (f *fakeAds) Update(_ context.Context, ad *core.Advertisement) error {
	cp := *ad
	f.ads[ad.ID] = &cp
	return nil
}

func (f *fakeAds) MarkPaid(_ context.Context, checkoutID string) error {
	for _, ad := range f.ads {
		if ad.CheckoutID == checkoutID {
			ad.Paid = true
			ad.Active = true
			return nil
		}
	}
	return persistence.ErrNotFound
}

type fakePolls struct {
	persistence.PollRepository
	votes map[string]int
}

func (f *fakePolls) Vote(_ context.Context, pollID, optionID string) error {
	f.votes[pollID+"/"+optionID]++
	return nil
}

type fakeActivities struct {
	persistence.ActivityRepository
	recorded []core.UserActivity
}

func (f *fakeActivities) Record(_ context.Context, a *core.UserActivity) error {
	f.recorded = append(f.recorded, *a)
	return nil
}

type fakeDB struct {
	persistence.Database
	campaigns  *fakeCampaigns
	events     *fakeEvents
	ads        *fakeAds
	polls      *fakePolls
	activities *fakeActivities
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		campaigns:  &fakeCampaigns{campaigns: map[string]*core.Campaign{}},
		events:     &fakeEvents{},
		ads:        &fakeAds{ads: map[string]*core.Advertisement{}},
		polls:      &fakePolls{votes: map[string]int{}},
		activities: &fakeActivities{},
	}
}

func (f *fakeDB) Campaigns() persistence.CampaignRepository   { return f.campaigns }
func (f *fakeDB) Events() persistence.EventRepository         { return f.events }
func (f *fakeDB) Ads() persistence.AdRepository               { return f.ads }
func (f *fakeDB) Polls() persistence.PollRepository           { return f.polls }
func (f *fakeDB) Activities() persistence.ActivityRepository  { return f.activities }
func (f *fakeDB) Ping(_ context.Context) error                { return nil }

type fakeRunner struct {
	ran []string
	err error
}

func (f *fakeRunner) Run(_ context.Context, sendDate string) (*pipeline.RunSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.ran = append(f.ran, sendDate)
	return &pipeline.RunSummary{CampaignID: "c-" + sendDate}, nil
}

type fakeAssembler struct{}

func (fakeAssembler) Build(_ context.Context, _ *core.Campaign) (string, error) {
	return "<html>newsletter</html>", nil
}

type fakeMailer struct {
	subject   string
	content   string
	scheduled time.Time
	sent      bool
	sendErr   error
}

func (f *fakeMailer) CreateCampaign(_ context.Context, subject, _ string) (string, error) {
	f.subject = subject
	return "prov-1", nil
}

func (f *fakeMailer) SetContent(_ context.Context, _, html string) error {
	f.content = html
	return nil
}

func (f *fakeMailer) SetSubject(_ context.Context, _, subject string) error {
	f.subject = subject
	return nil
}

func (f *fakeMailer) Send(_ context.Context, _ string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = true
	return nil
}

func (f *fakeMailer) Schedule(_ context.Context, _ string, sendAt time.Time) error {
	f.scheduled = sendAt
	return nil
}

func (f *fakeMailer) GetMetrics(_ context.Context, _ string) (*core.CampaignMetrics, error) {
	return &core.CampaignMetrics{Delivered: 100}, nil
}

type fakePaymentsClient struct {
	markable string
}

func (f *fakePaymentsClient) CreateSession(_ context.Context, adID, _ string, _ int64) (*payments.CheckoutSession, error) {
	return &payments.CheckoutSession{ID: "sess-" + adID, URL: "https://pay.test/sess-" + adID}, nil
}

func (f *fakePaymentsClient) VerifyWebhook(body []byte, signature string) (*payments.WebhookEvent, error) {
	if signature != "valid" {
		return nil, payments.ErrBadSignature
	}
	var event payments.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.Server{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: time.Minute,
		},
		Auth: config.Auth{
			SessionSecret:     "test-secret",
			SessionTTL:        time.Hour,
			DashboardPassword: "hunter2",
			CronToken:         "cron-secret",
		},
	}
}

func testServer(db *fakeDB, deps Dependencies) *Server {
	if deps.Review == nil {
		deps.Review = review.NewService(nil, db.campaigns, nil, 5)
	}
	return New(db, testConfig(), deps)
}

func login(t *testing.T, s *Server) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password":"hunter2"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestDashboardRequiresSession(t *testing.T) {
	s := testServer(newFakeDB(), Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Status != http.StatusUnauthorized {
		t.Errorf("error.status = %d, want 401", body.Error.Status)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := testServer(newFakeDB(), Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password":"wrong"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLoginGrantsDashboardAccess(t *testing.T) {
	s := testServer(newFakeDB(), Dependencies{})
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestTransitionEndpoint(t *testing.T) {
	db := newFakeDB()
	db.campaigns.campaigns["c1"] = &core.Campaign{ID: "c1", Status: core.StatusInReview}
	s := testServer(db, Dependencies{})
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/transition", strings.NewReader(`{"event":"edited"}`))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := db.campaigns.campaigns["c1"].Status; got != core.StatusChangesMade {
		t.Errorf("campaign status = %s, want changes_made", got)
	}

	// An illegal event is refused without changing anything.
	req = httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/transition", strings.NewReader(`{"event":"review_started"}`))
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("illegal transition status = %d, want 409", rec.Code)
	}
	if got := db.campaigns.campaigns["c1"].Status; got != core.StatusChangesMade {
		t.Errorf("campaign status after refusal = %s, want changes_made", got)
	}
}

func TestSendHandsCampaignToProvider(t *testing.T) {
	db := newFakeDB()
	db.campaigns.campaigns["c1"] = &core.Campaign{
		ID: "c1", SendDate: "2026-08-29", SubjectLine: "Big news", Status: core.StatusInReview,
	}
	mailer := &fakeMailer{}
	s := testServer(db, Dependencies{Assembler: fakeAssembler{}, Mailer: mailer})
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/send", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !mailer.sent {
		t.Error("provider send was not triggered")
	}
	if mailer.content == "" {
		t.Error("newsletter content was not pushed to the provider")
	}
	if got := db.campaigns.campaigns["c1"]; got.Status != core.StatusSent || got.ProviderID != "prov-1" {
		t.Errorf("campaign = %s/%s, want sent/prov-1", got.Status, got.ProviderID)
	}
}

func TestSendSchedulesFutureDelivery(t *testing.T) {
	db := newFakeDB()
	db.campaigns.campaigns["c1"] = &core.Campaign{
		ID: "c1", SendDate: "2026-08-29", SubjectLine: "Big news", Status: core.StatusInReview,
	}
	mailer := &fakeMailer{}
	s := testServer(db, Dependencies{Assembler: fakeAssembler{}, Mailer: mailer})
	cookie := login(t, s)

	sendAt := time.Now().Add(12 * time.Hour).UTC().Truncate(time.Second)
	body := `{"send_at":"` + sendAt.Format(time.RFC3339) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/send", strings.NewReader(body))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if mailer.sent {
		t.Error("scheduled campaign must not send immediately")
	}
	if !mailer.scheduled.Equal(sendAt) {
		t.Errorf("scheduled at %v, want %v", mailer.scheduled, sendAt)
	}
}

func TestSendSyncsEditedSubject(t *testing.T) {
	db := newFakeDB()
	// A provider campaign already exists; the subject was edited since.
	db.campaigns.campaigns["c1"] = &core.Campaign{
		ID: "c1", SendDate: "2026-08-29", SubjectLine: "Revised subject",
		Status: core.StatusChangesMade, ProviderID: "prov-0",
	}
	mailer := &fakeMailer{}
	s := testServer(db, Dependencies{Assembler: fakeAssembler{}, Mailer: mailer})
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/c1/send", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if mailer.subject != "Revised subject" {
		t.Errorf("provider subject = %q, want the edited subject", mailer.subject)
	}
}

func TestCronRunRequiresToken(t *testing.T) {
	runner := &fakeRunner{}
	s := testServer(newFakeDB(), Dependencies{Runner: runner})

	req := httptest.NewRequest(http.MethodPost, "/api/cron/run", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/cron/run", strings.NewReader(`{"send_date":"2026-08-29"}`))
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: status = %d, want 200", rec.Code)
	}
	if len(runner.ran) != 1 || runner.ran[0] != "2026-08-29" {
		t.Errorf("runner ran %v, want [2026-08-29]", runner.ran)
	}
}

func TestCronRunDuplicateReturnsConflict(t *testing.T) {
	runner := &fakeRunner{err: persistence.ErrAlreadyRan}
	s := testServer(newFakeDB(), Dependencies{Runner: runner})

	req := httptest.NewRequest(http.MethodPost, "/api/cron/run", strings.NewReader(`{"send_date":"2026-08-29"}`))
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestPaymentWebhookMarksAdPaid(t *testing.T) {
	db := newFakeDB()
	db.ads.ads["ad1"] = &core.Advertisement{ID: "ad1", CheckoutID: "sess-ad1"}
	s := testServer(db, Dependencies{Payments: &fakePaymentsClient{}})

	payload := `{"type":"checkout.completed","session_id":"sess-ad1","reference":"ad1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("X-Signature", "valid")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !db.ads.ads["ad1"].Paid {
		t.Error("ad should be marked paid")
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	db := newFakeDB()
	db.ads.ads["ad1"] = &core.Advertisement{ID: "ad1", CheckoutID: "sess-ad1"}
	s := testServer(db, Dependencies{Payments: &fakePaymentsClient{}})

	payload := `{"type":"checkout.completed","session_id":"sess-ad1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("X-Signature", "forged")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if db.ads.ads["ad1"].Paid {
		t.Error("ad must not be marked paid on a forged webhook")
	}
}

func TestImportEventsSkipsPlaceholderRows(t *testing.T) {
	db := newFakeDB()
	s := testServer(db, Dependencies{})
	cookie := login(t, s)

	csv := "title,description,location,starts_at,ends_at,url,image_url\n" +
		"Farmers Market,Weekly market,Town Square,2026-09-05 09:00,2026-09-05 13:00,,\n" +
		"Example Event,This is an example row,Nowhere,2026-09-06 10:00,,,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/events/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Imported != 1 || body.Skipped != 1 {
		t.Errorf("imported/skipped = %d/%d, want 1/1", body.Imported, body.Skipped)
	}
	if len(db.events.created) != 1 {
		t.Errorf("stored %d events, want 1", len(db.events.created))
	}
}

func TestVoteIsPublic(t *testing.T) {
	db := newFakeDB()
	s := testServer(db, Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/api/polls/poll1/vote", strings.NewReader(`{"option_id":"opt1"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if db.polls.votes["poll1/opt1"] != 1 {
		t.Error("vote was not recorded")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(newFakeDB(), Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Checks["database"] != "ok" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/llm"
	"gazette/internal/persistence"
	"gazette/internal/review"
)

type memCampaigns struct {
	persistence.CampaignRepository
	campaigns map[string]*core.Campaign
	runs      map[string]bool
	subject   string
}

func (m *memCampaigns) ClaimRun(_ context.Context, sendDate, jobType string) error {
	key := sendDate + "/" + jobType
	if m.runs[key] {
		return persistence.ErrAlreadyRan
	}
	m.runs[key] = true
	return nil
}

func (m *memCampaigns) ReleaseRun(_ context.Context, sendDate, jobType string) error {
	delete(m.runs, sendDate+"/"+jobType)
	return nil
}

func (m *memCampaigns) GetBySendDate(_ context.Context, sendDate string) (*core.Campaign, error) {
	for _, c := range m.campaigns {
		if c.SendDate == sendDate {
			cp := *c
			return &cp, nil
		}
	}
	return nil, persistence.ErrNotFound
}

func (m *memCampaigns) Create(_ context.Context, c *core.Campaign) error {
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memCampaigns) UpdateStatus(_ context.Context, id string, status core.Status) error {
	c, ok := m.campaigns[id]
	if !ok {
		return persistence.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *memCampaigns) SetSubject(_ context.Context, id, subject string) error {
	m.subject = subject
	return nil
}

type memFeeds struct {
	persistence.FeedRepository
	feeds []core.Feed
}

func (m *memFeeds) ListActive(_ context.Context) ([]core.Feed, error) { return m.feeds, nil }

func (m *memFeeds) Update(_ context.Context, feed *core.Feed) error {
	for i := range m.feeds {
		if m.feeds[i].ID == feed.ID {
			m.feeds[i] = *feed
		}
	}
	return nil
}

type memPosts struct {
	persistence.PostRepository
	posts     map[string]*core.Post
	createErr error
}

func (m *memPosts) CreateBatch(_ context.Context, posts []core.Post) (int, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	created := 0
	for _, p := range posts {
		exists := false
		for _, have := range m.posts {
			if have.CampaignID == p.CampaignID && have.ExternalID == p.ExternalID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		cp := p
		m.posts[p.ID] = &cp
		created++
	}
	return created, nil
}

func (m *memPosts) Get(_ context.Context, id string) (*core.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPosts) ListByCampaign(_ context.Context, campaignID string, uniqueOnly bool) ([]core.Post, error) {
	var out []core.Post
	// Deterministic order for the dedupe index mapping.
	for i := 1; i <= len(m.posts)+10; i++ {
		p, ok := m.posts[fmt.Sprintf("p%d", i)]
		if !ok || p.CampaignID != campaignID {
			continue
		}
		if uniqueOnly && p.Duplicate {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memPosts) MarkDuplicates(_ context.Context, ids []string) error {
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			p.Duplicate = true
		}
	}
	return nil
}

type memRatings struct {
	persistence.RatingRepository
	ratings []core.Rating
}

func (m *memRatings) Create(_ context.Context, r *core.Rating) error {
	m.ratings = append(m.ratings, *r)
	return nil
}

func (m *memRatings) ListByCampaign(_ context.Context, _ string) ([]core.Rating, error) {
	return m.ratings, nil
}

type memArticles struct {
	persistence.ArticleRepository
	articles map[string]*core.Article
}

func (m *memArticles) Create(_ context.Context, a *core.Article) error {
	cp := *a
	m.articles[a.ID] = &cp
	return nil
}

func (m *memArticles) Get(_ context.Context, id string) (*core.Article, error) {
	a, ok := m.articles[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memArticles) ListByCampaign(_ context.Context, campaignID string) ([]core.Article, error) {
	var out []core.Article
	for _, a := range m.articles {
		if a.CampaignID == campaignID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memArticles) SetActive(_ context.Context, id string, active bool, rank *int) error {
	a, ok := m.articles[id]
	if !ok {
		return persistence.ErrNotFound
	}
	a.IsActive = active
	a.Rank = rank
	return nil
}

type memDB struct {
	persistence.Database
	campaigns *memCampaigns
	feeds     *memFeeds
	posts     *memPosts
	ratings   *memRatings
	articles  *memArticles
}

func newMemDB() *memDB {
	return &memDB{
		campaigns: &memCampaigns{campaigns: map[string]*core.Campaign{}, runs: map[string]bool{}},
		feeds:     &memFeeds{},
		posts:     &memPosts{posts: map[string]*core.Post{}},
		ratings:   &memRatings{},
		articles:  &memArticles{articles: map[string]*core.Article{}},
	}
}

func (m *memDB) Campaigns() persistence.CampaignRepository { return m.campaigns }
func (m *memDB) Feeds() persistence.FeedRepository         { return m.feeds }
func (m *memDB) Posts() persistence.PostRepository         { return m.posts }
func (m *memDB) Ratings() persistence.RatingRepository     { return m.ratings }
func (m *memDB) Articles() persistence.ArticleRepository   { return m.articles }

type fakeFetcher struct{}

// feed-1 yields six posts, feed-2 always fails.
func (fakeFetcher) Fetch(_ context.Context, feed core.Feed, campaignID string) ([]core.Post, error) {
	if feed.ID == "feed-2" {
		return nil, errors.New("connection refused")
	}
	var posts []core.Post
	for i := 1; i <= 6; i++ {
		posts = append(posts, core.Post{
			ID:         fmt.Sprintf("p%d", i),
			CampaignID: campaignID,
			FeedID:     feed.ID,
			ExternalID: fmt.Sprintf("ext-%d", i),
			Title:      fmt.Sprintf("Story %d", i),
			Published:  time.Now(),
		})
	}
	return posts, nil
}

type fakeAI struct {
	rewriteCalls int
}

// p2 is a duplicate of p1; p5 gets excluded; p6 comes back malformed.
func (f *fakeAI) GroupDuplicates(_ context.Context, posts []core.Post) ([][]int, error) {
	groups := [][]int{{0, 1}}
	for i := 2; i < len(posts); i++ {
		groups = append(groups, []int{i})
	}
	return groups, nil
}

func (f *fakeAI) EvaluatePost(_ context.Context, post core.Post) (llm.RatingResult, error) {
	switch post.ID {
	case "p5":
		return llm.RatingResult{Excluded: true, Reason: "same-day event"}, nil
	case "p6":
		return llm.RatingResult{Raw: "not json"}, nil
	}
	var n int
	_, _ = fmt.Sscanf(post.ID, "p%d", &n)
	return llm.RatingResult{Rating: &core.Rating{
		PostID:          post.ID,
		Interest:        10 + n,
		LocalRelevance:  5,
		CommunityImpact: 5,
		TotalScore:      20 + n,
	}}, nil
}

func (f *fakeAI) RewritePost(_ context.Context, post core.Post) (llm.Rewrite, error) {
	f.rewriteCalls++
	return llm.Rewrite{
		Headline:  "Rewritten: " + post.Title,
		Content:   strings.Repeat("word ", 50),
		WordCount: 50,
	}, nil
}

func (f *fakeAI) GenerateSubject(_ context.Context, article core.Article) (string, error) {
	return llm.TrimSubject(article.Headline), nil
}

func testRunner(db *memDB, ai AI) *Runner {
	reviewSvc := review.NewService(db.articles, db.campaigns, nil, 5)
	return NewRunner(db, fakeFetcher{}, ai, reviewSvc, config.Pipeline{
		TopArticleCount: 5,
		RewriteCount:    10,
		ScoreBatchSize:  2,
	})
}

func TestRunEndToEnd(t *testing.T) {
	db := newMemDB()
	db.feeds.feeds = []core.Feed{
		{ID: "feed-1", Name: "Town News", Active: true},
		{ID: "feed-2", Name: "Broken Feed", Active: true},
	}
	ai := &fakeAI{}
	runner := testRunner(db, ai)

	summary, err := runner.Run(context.Background(), "2026-08-29")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.FeedsFetched != 1 || summary.FeedsFailed != 1 {
		t.Errorf("feeds fetched/failed = %d/%d, want 1/1", summary.FeedsFetched, summary.FeedsFailed)
	}
	if summary.PostsIngested != 6 {
		t.Errorf("ingested %d posts, want 6", summary.PostsIngested)
	}
	if summary.DuplicatesMarked != 1 {
		t.Errorf("duplicates = %d, want 1", summary.DuplicatesMarked)
	}
	// 5 unique posts: p5 excluded, p6 malformed, p1/p3/p4 scored.
	if summary.PostsScored != 3 || summary.PostsExcluded != 1 || summary.PostsMalformed != 1 {
		t.Errorf("scored/excluded/malformed = %d/%d/%d, want 3/1/1",
			summary.PostsScored, summary.PostsExcluded, summary.PostsMalformed)
	}
	if summary.ArticlesWritten != 3 {
		t.Errorf("articles written = %d, want 3", summary.ArticlesWritten)
	}
	if summary.ArticlesSelected != 3 {
		t.Errorf("articles selected = %d, want 3", summary.ArticlesSelected)
	}
	if summary.Subject == "" || db.campaigns.subject == "" {
		t.Error("subject not generated")
	}

	campaign := db.campaigns.campaigns[summary.CampaignID]
	if campaign == nil || campaign.Status != core.StatusInReview {
		t.Errorf("campaign status = %v, want in_review", campaign)
	}

	// The failing feed carries its error for the dashboard.
	for _, feed := range db.feeds.feeds {
		if feed.ID == "feed-2" && feed.LastError == "" {
			t.Error("failed feed should record its last error")
		}
	}
}

func TestRunIsIdempotentPerDate(t *testing.T) {
	db := newMemDB()
	db.feeds.feeds = []core.Feed{{ID: "feed-1", Active: true}}
	runner := testRunner(db, &fakeAI{})

	if _, err := runner.Run(context.Background(), "2026-08-29"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := runner.Run(context.Background(), "2026-08-29"); !errors.Is(err, persistence.ErrAlreadyRan) {
		t.Errorf("second run: got %v, want ErrAlreadyRan", err)
	}
	// A different date runs fine.
	if _, err := runner.Run(context.Background(), "2026-08-30"); err != nil {
		t.Errorf("next date: %v", err)
	}
}

func TestFailedRunReleasesTheDate(t *testing.T) {
	db := newMemDB()
	db.feeds.feeds = []core.Feed{{ID: "feed-1", Active: true}}
	db.posts.createErr = errors.New("disk full")
	runner := testRunner(db, &fakeAI{})

	if _, err := runner.Run(context.Background(), "2026-08-29"); err == nil {
		t.Fatal("expected the first run to fail")
	}

	// The failure must not block the date for a manual re-trigger.
	db.posts.createErr = nil
	if _, err := runner.Run(context.Background(), "2026-08-29"); err != nil {
		t.Fatalf("re-trigger after a failed run: %v", err)
	}
}

func TestDedupeKeepsLongestDescription(t *testing.T) {
	db := newMemDB()
	db.posts.posts["p1"] = &core.Post{ID: "p1", CampaignID: "c1", Title: "Bridge closed", Description: "Short blurb."}
	db.posts.posts["p2"] = &core.Post{ID: "p2", CampaignID: "c1", Title: "Bridge closure", Description: "A much fuller account of the closure with dates, detours and contacts."}
	runner := testRunner(db, &fakeAI{})

	var summary RunSummary
	if err := runner.dedupe(context.Background(), "c1", &summary); err != nil {
		t.Fatalf("dedupe: %v", err)
	}

	if !db.posts.posts["p1"].Duplicate {
		t.Error("shorter-description post should be marked duplicate")
	}
	if db.posts.posts["p2"].Duplicate {
		t.Error("longest-description post must survive as the representative")
	}
	if summary.DuplicatesMarked != 1 {
		t.Errorf("duplicates marked = %d, want 1", summary.DuplicatesMarked)
	}
}

func TestRunRefusesNonDraftCampaign(t *testing.T) {
	db := newMemDB()
	db.campaigns.campaigns["c1"] = &core.Campaign{ID: "c1", SendDate: "2026-08-29", Status: core.StatusSent}
	runner := testRunner(db, &fakeAI{})

	if _, err := runner.Run(context.Background(), "2026-08-29"); err == nil {
		t.Error("expected error when the date's campaign is already sent")
	}
}

func TestSubjectWithinLimit(t *testing.T) {
	db := newMemDB()
	db.feeds.feeds = []core.Feed{{ID: "feed-1", Active: true}}
	runner := testRunner(db, &fakeAI{})

	summary, err := runner.Run(context.Background(), "2026-08-29")
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(summary.Subject)); n > llm.SubjectMaxChars {
		t.Errorf("subject is %d runes, limit %d", n, llm.SubjectMaxChars)
	}
}

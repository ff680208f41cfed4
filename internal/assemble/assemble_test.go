package assemble

import (
	"context"
	"strings"
	"testing"
	"time"

	"gazette/internal/core"
	"gazette/internal/persistence"
)

type fakeArticles struct {
	persistence.ArticleRepository
	articles []core.Article
}

func (f *fakeArticles) ListByCampaign(_ context.Context, _ string) ([]core.Article, error) {
	return f.articles, nil
}

type fakeManual struct {
	persistence.ManualArticleRepository
	articles []core.ManualArticle
}

func (f *fakeManual) ListByCampaign(_ context.Context, _ string) ([]core.ManualArticle, error) {
	return f.articles, nil
}

type fakeEvents struct {
	persistence.EventRepository
	events     map[string]core.Event
	selections []core.CampaignEvent
}

func (f *fakeEvents) ListSelections(_ context.Context, _ string) ([]core.CampaignEvent, error) {
	return f.selections, nil
}

func (f *fakeEvents) Get(_ context.Context, id string) (*core.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &e, nil
}

type fakeDining struct {
	persistence.DiningRepository
	deals []core.DiningDeal
}

func (f *fakeDining) ListSelections(_ context.Context, _ string) ([]core.CampaignDiningSelection, error) {
	return nil, nil
}

func (f *fakeDining) List(_ context.Context, _ bool) ([]core.DiningDeal, error) {
	return f.deals, nil
}

type fakeVrbo struct {
	persistence.VrboRepository
}

func (f *fakeVrbo) ListSelections(_ context.Context, _ string) ([]core.CampaignVrboSelection, error) {
	return nil, nil
}

type fakePolls struct {
	persistence.PollRepository
	polls []core.Poll
}

func (f *fakePolls) List(_ context.Context, _ bool) ([]core.Poll, error) {
	return f.polls, nil
}

type fakeAds struct {
	persistence.AdRepository
	ads []core.Advertisement
}

func (f *fakeAds) ListForDate(_ context.Context, _ string) ([]core.Advertisement, error) {
	return f.ads, nil
}

type fakeRoadWork struct {
	persistence.RoadWorkRepository
	items []core.RoadWorkItem
}

func (f *fakeRoadWork) ListCurrent(_ context.Context, _ string) ([]core.RoadWorkItem, error) {
	return f.items, nil
}

type fakeDB struct {
	persistence.Database
	articles persistence.ArticleRepository
	manual   persistence.ManualArticleRepository
	events   persistence.EventRepository
	dining   persistence.DiningRepository
	vrbo     persistence.VrboRepository
	polls    persistence.PollRepository
	ads      persistence.AdRepository
	roadwork persistence.RoadWorkRepository
}

func (f *fakeDB) Articles() persistence.ArticleRepository             { return f.articles }
func (f *fakeDB) ManualArticles() persistence.ManualArticleRepository { return f.manual }
func (f *fakeDB) Events() persistence.EventRepository                 { return f.events }
func (f *fakeDB) Dining() persistence.DiningRepository                { return f.dining }
func (f *fakeDB) Vrbo() persistence.VrboRepository                    { return f.vrbo }
func (f *fakeDB) Polls() persistence.PollRepository                   { return f.polls }
func (f *fakeDB) Ads() persistence.AdRepository                       { return f.ads }
func (f *fakeDB) RoadWork() persistence.RoadWorkRepository            { return f.roadwork }

type fakeForecast struct {
	forecasts []core.WeatherForecast
	err       error
}

func (f *fakeForecast) Forecast(_ context.Context, _ string) ([]core.WeatherForecast, error) {
	return f.forecasts, f.err
}

func intp(n int) *int { return &n }

func testDB() *fakeDB {
	return &fakeDB{
		articles: &fakeArticles{articles: []core.Article{
			{ID: "a1", Headline: "Lift tickets & passes go on sale", Content: "Sales open Monday.", Rank: intp(1), IsActive: true},
			{ID: "a2", Headline: "Skipped story", Content: "Hidden.", Rank: intp(9), IsActive: true, Skipped: true},
			{ID: "a3", Headline: "Bridge repairs finish early", Content: "Crews wrapped up a week ahead.", Rank: intp(3), IsActive: true},
		}},
		manual: &fakeManual{articles: []core.ManualArticle{
			{ID: "m1", Headline: "Editor's note", Content: "Thanks for reading.", Rank: intp(2), IsActive: true},
		}},
		events: &fakeEvents{
			events: map[string]core.Event{
				"e1": {ID: "e1", Title: "Farmers Market", Location: "Main St", StartsAt: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)},
				"e2": {ID: "e2", Title: "Concert in the Park", StartsAt: time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)},
				"e3": {ID: "e3", Title: "Trail Run", StartsAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)},
			},
			selections: []core.CampaignEvent{
				{CampaignID: "c1", EventID: "e1", SortOrder: 1},
				{CampaignID: "c1", EventID: "e2", Featured: true, SortOrder: 2},
				{CampaignID: "c1", EventID: "e3", SortOrder: 3},
			},
		},
		dining: &fakeDining{deals: []core.DiningDeal{
			{ID: "d1", Restaurant: "Summit Grill", Deal: "Half-price apps", DaysActive: []string{"Saturday"}, Active: true},
			{ID: "d2", Restaurant: "Valley Diner", Deal: "Kids eat free", DaysActive: []string{"Tuesday"}, Active: true},
		}},
		vrbo:     &fakeVrbo{},
		polls:    &fakePolls{polls: []core.Poll{{ID: "p1", Question: "Best trail this fall?", Active: true, Options: []core.PollOption{{ID: "o1", Label: "Ridge Loop"}, {ID: "o2", Label: "River Walk"}}}}},
		ads:      &fakeAds{ads: []core.Advertisement{{ID: "ad1", Advertiser: "Gear Shop", Headline: "Season tune-up special", Body: "Book now.", Paid: true, Active: true}}},
		roadwork: &fakeRoadWork{},
	}
}

// 2026-08-29 is a Saturday.
func testCampaign() *core.Campaign {
	return &core.Campaign{ID: "c1", SendDate: "2026-08-29", SubjectLine: "Lift tickets on sale", Status: core.StatusInReview}
}

func TestBuildRendersRankedStories(t *testing.T) {
	asm := NewAssembler(testDB(), nil)

	html, err := asm.Build(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	first := strings.Index(html, "Lift tickets &amp; passes go on sale")
	second := strings.Index(html, "Editor&#39;s note")
	third := strings.Index(html, "Bridge repairs finish early")
	if first == -1 || second == -1 || third == -1 {
		t.Fatalf("stories missing from output:\n%s", html)
	}
	if !(first < second && second < third) {
		t.Errorf("stories out of rank order: %d %d %d", first, second, third)
	}
	if strings.Contains(html, "Skipped story") {
		t.Error("skipped article rendered")
	}
}

func TestBuildSectionOrderAndOmission(t *testing.T) {
	asm := NewAssembler(testDB(), nil)
	campaign := testCampaign()
	campaign.SectionOrder = []string{"events", "articles"}

	html, err := asm.Build(context.Background(), campaign)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	events := strings.Index(html, "Happening Around Town")
	stories := strings.Index(html, "Today's Top Stories")
	if events == -1 || stories == -1 {
		t.Fatal("expected sections missing")
	}
	if events > stories {
		t.Error("campaign section order not respected")
	}
	if strings.Contains(html, "Dining Deals") {
		t.Error("section outside the campaign order was rendered")
	}
}

func TestBuildDiningWeekdayFallback(t *testing.T) {
	asm := NewAssembler(testDB(), nil)

	html, err := asm.Build(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(html, "Summit Grill") {
		t.Error("Saturday deal missing")
	}
	if strings.Contains(html, "Valley Diner") {
		t.Error("Tuesday-only deal rendered on a Saturday")
	}
}

func TestBuildEventsGroupedByDate(t *testing.T) {
	asm := NewAssembler(testDB(), nil)

	html, err := asm.Build(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	saturday := strings.Index(html, "Saturday, August 29")
	sunday := strings.Index(html, "Sunday, August 30")
	if saturday == -1 || sunday == -1 {
		t.Fatalf("day headings missing from output:\n%s", html)
	}
	if saturday > sunday {
		t.Error("days out of chronological order")
	}

	concert := strings.Index(html, "Concert in the Park")
	market := strings.Index(html, "Farmers Market")
	run := strings.Index(html, "Trail Run")
	if concert == -1 || market == -1 || run == -1 {
		t.Fatal("events missing from output")
	}
	// The featured concert leads its day; the next day's event comes after
	// everything on the first day.
	if !(concert < market && market < run) {
		t.Errorf("events out of order: concert=%d market=%d run=%d", concert, market, run)
	}
	if run < sunday {
		t.Error("next-day event rendered under the wrong heading")
	}
}

func TestBuildOneFeaturedEventPerDay(t *testing.T) {
	db := testDB()
	db.events = &fakeEvents{
		events: map[string]core.Event{
			"e1": {ID: "e1", Title: "Farmers Market", StartsAt: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)},
			"e2": {ID: "e2", Title: "Concert in the Park", StartsAt: time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)},
		},
		selections: []core.CampaignEvent{
			{CampaignID: "c1", EventID: "e1", Featured: true, SortOrder: 1},
			{CampaignID: "c1", EventID: "e2", Featured: true, SortOrder: 2},
		},
	}
	asm := NewAssembler(db, nil)

	html, err := asm.Build(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := strings.Count(html, `class="story featured"`); got != 1 {
		t.Errorf("featured leads = %d, want 1:\n%s", got, html)
	}
}

func TestBuildWeatherDegradesOnError(t *testing.T) {
	asm := NewAssembler(testDB(), &fakeForecast{err: context.DeadlineExceeded})
	campaign := testCampaign()
	campaign.SectionOrder = []string{"weather", "articles"}

	html, err := asm.Build(context.Background(), campaign)
	if err != nil {
		t.Fatalf("Build should not fail when weather is unavailable: %v", err)
	}
	if strings.Contains(html, "<h2>Weather</h2>") {
		t.Error("weather section rendered despite provider error")
	}
}

func TestBuildWeatherSection(t *testing.T) {
	provider := &fakeForecast{forecasts: []core.WeatherForecast{
		{Date: "2026-08-29", Summary: "Sunny", HighTempF: 74, LowTempF: 48},
	}}
	asm := NewAssembler(testDB(), provider)

	html, err := asm.Build(context.Background(), testCampaign())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(html, "Sunny") || !strings.Contains(html, "74") {
		t.Error("forecast not rendered")
	}
}

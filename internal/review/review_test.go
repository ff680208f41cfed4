package review

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"gazette/internal/core"
	"gazette/internal/persistence"
)

type fakeArticles struct {
	persistence.ArticleRepository
	byID map[string]*core.Article
}

func newFakeArticles(articles ...*core.Article) *fakeArticles {
	f := &fakeArticles{byID: make(map[string]*core.Article)}
	for _, a := range articles {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeArticles) Get(_ context.Context, id string) (*core.Article, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeArticles) ListByCampaign(_ context.Context, campaignID string) ([]core.Article, error) {
	var out []core.Article
	for _, a := range f.byID {
		if a.CampaignID == campaignID {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := 1<<30, 1<<30
		if out[i].Rank != nil {
			ri = *out[i].Rank
		}
		if out[j].Rank != nil {
			rj = *out[j].Rank
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].TotalScore > out[j].TotalScore
	})
	return out, nil
}

func (f *fakeArticles) UpdateRanks(_ context.Context, updates []persistence.RankUpdate) error {
	for _, u := range updates {
		a, ok := f.byID[u.ArticleID]
		if !ok {
			return persistence.ErrNotFound
		}
		rank := u.Rank
		a.Rank = &rank
	}
	return nil
}

func (f *fakeArticles) SetSkipped(_ context.Context, id string, skipped bool) error {
	a, ok := f.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	a.Skipped = skipped
	return nil
}

func (f *fakeArticles) SetActive(_ context.Context, id string, active bool, rank *int) error {
	a, ok := f.byID[id]
	if !ok {
		return persistence.ErrNotFound
	}
	a.IsActive = active
	a.Rank = rank
	return nil
}

type fakeCampaigns struct {
	persistence.CampaignRepository
	subject     string
	subjectSets int
}

func (f *fakeCampaigns) SetSubject(_ context.Context, _ string, subject string) error {
	f.subject = subject
	f.subjectSets++
	return nil
}

type fakeSubjects struct {
	calls int
}

func (f *fakeSubjects) GenerateSubject(_ context.Context, headline string) (string, error) {
	f.calls++
	return "Subject: " + headline, nil
}

func seedArticles(n int) []*core.Article {
	var out []*core.Article
	for i := 0; i < n; i++ {
		out = append(out, &core.Article{
			ID:         fmt.Sprintf("a%d", i+1),
			CampaignID: "camp-1",
			Headline:   fmt.Sprintf("Headline %d", i+1),
			TotalScore: 40 - i, // a1 scores highest
		})
	}
	return out
}

func activeByRank(t *testing.T, repo *fakeArticles) []core.Article {
	t.Helper()
	all, _ := repo.ListByCampaign(context.Background(), "camp-1")
	var active []core.Article
	for _, a := range all {
		if a.IsActive && !a.Skipped {
			active = append(active, a)
		}
	}
	return active
}

func checkContiguous(t *testing.T, active []core.Article) {
	t.Helper()
	for i, a := range active {
		if a.Rank == nil {
			t.Fatalf("active article %s has no rank", a.ID)
		}
		if *a.Rank != i+1 {
			t.Errorf("rank %d at position %d (article %s)", *a.Rank, i+1, a.ID)
		}
	}
}

func TestSelectTopActivatesBestFive(t *testing.T) {
	repo := newFakeArticles(seedArticles(7)...)
	svc := NewService(repo, &fakeCampaigns{}, nil, 5)

	selected, err := svc.SelectTop(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("SelectTop: %v", err)
	}
	if len(selected) != 5 {
		t.Fatalf("selected %d articles, want 5", len(selected))
	}

	active := activeByRank(t, repo)
	if len(active) != 5 {
		t.Fatalf("%d active articles, want 5", len(active))
	}
	checkContiguous(t, active)
	if active[0].ID != "a1" {
		t.Errorf("lead is %s, want highest-scoring a1", active[0].ID)
	}
	if repo.byID["a6"].IsActive || repo.byID["a7"].IsActive {
		t.Error("articles outside the top five should stay inactive")
	}
}

func TestSelectTopWithFewerCandidates(t *testing.T) {
	repo := newFakeArticles(seedArticles(3)...)
	svc := NewService(repo, &fakeCampaigns{}, nil, 5)

	selected, err := svc.SelectTop(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("SelectTop: %v", err)
	}
	if len(selected) != 3 {
		t.Errorf("selected %d articles, want all 3", len(selected))
	}
	checkContiguous(t, activeByRank(t, repo))
}

func TestSkipPromotesNextBest(t *testing.T) {
	repo := newFakeArticles(seedArticles(7)...)
	subjects := &fakeSubjects{}
	campaigns := &fakeCampaigns{}
	svc := NewService(repo, campaigns, subjects, 5)

	if _, err := svc.SelectTop(context.Background(), "camp-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Skip(context.Background(), "camp-1", "a3", true); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	active := activeByRank(t, repo)
	if len(active) != 5 {
		t.Fatalf("%d active after skip, want 5", len(active))
	}
	checkContiguous(t, active)

	promoted := active[len(active)-1]
	if promoted.ID != "a6" {
		t.Errorf("promoted %s, want next-best a6", promoted.ID)
	}
	if repo.byID["a3"].IsActive || !repo.byID["a3"].Skipped {
		t.Error("skipped article should be inactive and marked skipped")
	}
	if subjects.calls != 0 {
		t.Errorf("subject regenerated %d times for non-lead skip, want 0", subjects.calls)
	}
}

func TestSkipLeadRegeneratesSubjectOnce(t *testing.T) {
	repo := newFakeArticles(seedArticles(7)...)
	subjects := &fakeSubjects{}
	campaigns := &fakeCampaigns{}
	svc := NewService(repo, campaigns, subjects, 5)

	if _, err := svc.SelectTop(context.Background(), "camp-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Skip(context.Background(), "camp-1", "a1", true); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	if subjects.calls != 1 {
		t.Fatalf("subject regenerated %d times, want exactly 1", subjects.calls)
	}
	if campaigns.subjectSets != 1 {
		t.Errorf("subject stored %d times, want 1", campaigns.subjectSets)
	}
	if campaigns.subject != "Subject: Headline 2" {
		t.Errorf("subject = %q, want regenerated from new lead", campaigns.subject)
	}
	checkContiguous(t, activeByRank(t, repo))
}

func TestUnskipReinstatement(t *testing.T) {
	repo := newFakeArticles(seedArticles(5)...)
	svc := NewService(repo, &fakeCampaigns{}, nil, 5)

	if _, err := svc.SelectTop(context.Background(), "camp-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Skip(context.Background(), "camp-1", "a2", true); err != nil {
		t.Fatal(err)
	}
	if err := svc.Skip(context.Background(), "camp-1", "a2", false); err != nil {
		t.Fatalf("unskip: %v", err)
	}

	active := activeByRank(t, repo)
	if len(active) != 5 {
		t.Fatalf("%d active after reinstatement, want 5", len(active))
	}
	checkContiguous(t, active)
}

func TestReorderChangesLeadAndRegeneratesOnce(t *testing.T) {
	repo := newFakeArticles(seedArticles(5)...)
	subjects := &fakeSubjects{}
	campaigns := &fakeCampaigns{}
	svc := NewService(repo, campaigns, subjects, 5)

	if _, err := svc.SelectTop(context.Background(), "camp-1"); err != nil {
		t.Fatal(err)
	}
	order := []string{"a4", "a1", "a2", "a3", "a5"}
	if err := svc.Reorder(context.Background(), "camp-1", order); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	active := activeByRank(t, repo)
	checkContiguous(t, active)
	for i, id := range order {
		if active[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i+1, active[i].ID, id)
		}
	}
	if subjects.calls != 1 {
		t.Errorf("subject regenerated %d times after lead change, want 1", subjects.calls)
	}
}

func TestReorderSameLeadKeepsSubject(t *testing.T) {
	repo := newFakeArticles(seedArticles(5)...)
	subjects := &fakeSubjects{}
	svc := NewService(repo, &fakeCampaigns{}, subjects, 5)

	if _, err := svc.SelectTop(context.Background(), "camp-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reorder(context.Background(), "camp-1", []string{"a1", "a3", "a2", "a4", "a5"}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if subjects.calls != 0 {
		t.Errorf("subject regenerated %d times without a lead change, want 0", subjects.calls)
	}
}

func TestReorderRejectsBadInput(t *testing.T) {
	repo := newFakeArticles(seedArticles(5)...)
	svc := NewService(repo, &fakeCampaigns{}, nil, 5)

	if _, err := svc.SelectTop(context.Background(), "camp-1"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		order []string
	}{
		{"missing article", []string{"a1", "a2", "a3", "a4"}},
		{"unknown article", []string{"a1", "a2", "a3", "a4", "zz"}},
		{"duplicate article", []string{"a1", "a1", "a2", "a3", "a4"}},
	}
	for _, tc := range cases {
		if err := svc.Reorder(context.Background(), "camp-1", tc.order); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

package llm

import (
	"strings"
	"testing"
)

func TestParseRatingResponseComplete(t *testing.T) {
	text := `{"interest_level": 15, "local_relevance": 8, "community_impact": 6, "reasoning": "Major trail closure."}`

	result := ParseRatingResponse(text)
	if result.Malformed() {
		t.Fatalf("expected parsed rating, got malformed: %s", result.Raw)
	}
	if result.Excluded {
		t.Fatal("expected rating, got exclusion")
	}
	if result.Rating.Interest != 15 || result.Rating.LocalRelevance != 8 || result.Rating.CommunityImpact != 6 {
		t.Errorf("unexpected scores: %+v", result.Rating)
	}
	if result.Rating.TotalScore != 29 {
		t.Errorf("TotalScore = %d, want 29", result.Rating.TotalScore)
	}
}

func TestParseRatingResponseFencedMarkdown(t *testing.T) {
	text := "```json\n{\"interest_level\": 5, \"local_relevance\": 5, \"community_impact\": 5, \"reasoning\": \"ok\"}\n```"

	result := ParseRatingResponse(text)
	if result.Malformed() {
		t.Fatalf("fenced JSON should parse, got malformed: %s", result.Raw)
	}
}

func TestParseRatingResponseNeverPartial(t *testing.T) {
	cases := []string{
		`{"interest_level": 15, "local_relevance": 8}`,                               // missing field
		`{"interest_level": 99, "local_relevance": 8, "community_impact": 6}`,        // out of range
		`{"interest_level": 15, "local_relevance": 0, "community_impact": 6}`,        // below range
		`not json at all`,                                                            // prose
		`{"interest_level": "high", "local_relevance": 8, "community_impact": 6}`,    // wrong type
	}

	for _, text := range cases {
		result := ParseRatingResponse(text)
		if !result.Malformed() {
			t.Errorf("ParseRatingResponse(%q) should be malformed", text)
		}
		if result.Rating != nil {
			t.Errorf("ParseRatingResponse(%q) produced a partial rating: %+v", text, result.Rating)
		}
	}
}

func TestParseRatingResponseExclusion(t *testing.T) {
	result := ParseRatingResponse(`{"excluded": true, "reason": "same-day event"}`)
	if !result.Excluded {
		t.Fatal("expected exclusion")
	}
	if result.Rating != nil {
		t.Error("excluded result should carry no rating")
	}
	if result.Reason != "same-day event" {
		t.Errorf("Reason = %q", result.Reason)
	}
}

func TestParseDedupeResponse(t *testing.T) {
	groups, ok := ParseDedupeResponse(`[[1,4],[2],[3,5]]`, 5)
	if !ok {
		t.Fatal("expected valid grouping")
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0][0] != 0 || groups[0][1] != 3 {
		t.Errorf("first group = %v, want [0 3]", groups[0])
	}
}

func TestParseDedupeResponseRejectsBadCoverage(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"missing item", `[[1,2],[3]]`},
		{"duplicate item", `[[1,2],[2,3,4]]`},
		{"out of range", `[[1,2],[3,4,9]]`},
		{"empty group", `[[1,2,3,4],[]]`},
		{"not json", `the items are all unique`},
	}

	for _, c := range cases {
		if _, ok := ParseDedupeResponse(c.text, 4); ok {
			t.Errorf("%s: ParseDedupeResponse should reject %q", c.name, c.text)
		}
	}
}

func TestParseRewriteResponse(t *testing.T) {
	body := strings.Repeat("word ", 50)
	text := `{"headline": "Lift Opens Early", "content": "` + strings.TrimSpace(body) + `", "word_count": 50}`

	rewrite, err := ParseRewriteResponse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rewrite.Headline != "Lift Opens Early" {
		t.Errorf("Headline = %q", rewrite.Headline)
	}
	if rewrite.WordCount != 50 {
		t.Errorf("WordCount = %d, want recomputed 50", rewrite.WordCount)
	}
}

func TestParseRewriteResponseWordBounds(t *testing.T) {
	short := `{"headline": "H", "content": "` + strings.TrimSpace(strings.Repeat("w ", 10)) + `"}`
	long := `{"headline": "H", "content": "` + strings.TrimSpace(strings.Repeat("w ", 120)) + `"}`

	if _, err := ParseRewriteResponse(short); err == nil {
		t.Error("10-word body should fail validation")
	}
	if _, err := ParseRewriteResponse(long); err == nil {
		t.Error("120-word body should fail validation")
	}
}

func TestTrimSubject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Powder Day At The Back Bowls", "Powder Day At The Back Bowls"},
		{`"Powder Day At The Back Bowls!"`, "Powder Day At The Back Bowls"},
		{"  Town Council Approves New Housing Plan Tonight  ", "Town Council Approves New Housing"},
		{"", ""},
	}

	for _, c := range cases {
		if got := TrimSubject(c.in); got != c.want {
			t.Errorf("TrimSubject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTrimSubjectAlwaysWithinLimit(t *testing.T) {
	inputs := []string{
		strings.Repeat("a", 200),
		strings.Repeat("word ", 40),
		"short",
		strings.Repeat("é", 60), // multibyte runes
	}

	for _, in := range inputs {
		got := TrimSubject(in)
		if n := len([]rune(got)); n > SubjectMaxChars {
			t.Errorf("TrimSubject(%.20q...) produced %d runes, limit %d", in, n, SubjectMaxChars)
		}
	}
}

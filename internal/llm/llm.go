// Package llm wraps the Gemini API for the content pipeline: rubric scoring,
// topic deduplication, newsletter rewriting and subject-line generation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"gazette/internal/core"
)

const (
	// DefaultModel is the default Gemini model for all pipeline calls.
	DefaultModel = "gemini-2.5-flash"
	// SubjectMaxChars is the hard limit for campaign subject lines.
	SubjectMaxChars = 35
	// MinRewriteWords and MaxRewriteWords bound the rewritten article body.
	MinRewriteWords = 40
	MaxRewriteWords = 75
)

// Client talks to Gemini on behalf of the pipeline.
type Client struct {
	modelName string
	gClient   *genai.Client
	limiter   *rate.Limiter
}

// NewClient creates a new LLM client. The API key is read from the
// GEMINI_API_KEY environment variable or the ai.api_key config key.
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("ai.api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or ai.api_key")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	rpm := viper.GetInt("ai.requests_per_min")
	if rpm <= 0 {
		rpm = 60
	}

	gClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName: modelName,
		gClient:   gClient,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}, nil
}

// generateContent wraps a single GenerateContent call behind the rate limiter.
func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// RatingResult is the discriminated outcome of a scoring call: exactly one of
// Rating, Excluded or Malformed is meaningful. A rating is never partial.
type RatingResult struct {
	Rating   *core.Rating // nil unless the response parsed fully
	Excluded bool         // the model applied an exclusion rule
	Reason   string       // exclusion reason when Excluded
	Raw      string       // original response text when malformed
}

// Malformed reports whether the response could not be parsed.
func (r RatingResult) Malformed() bool {
	return r.Rating == nil && !r.Excluded
}

// EvaluatePost scores one post against the newsletter rubric. Transport
// failures return an error; unparseable responses return a Malformed result.
func (c *Client) EvaluatePost(ctx context.Context, post core.Post) (RatingResult, error) {
	prompt := fmt.Sprintf(ratingPromptTemplate, post.Title, post.Description)

	text, err := c.generateContent(ctx, prompt)
	if err != nil {
		return RatingResult{}, fmt.Errorf("evaluate post %s: %w", post.ID, err)
	}

	result := ParseRatingResponse(text)
	if result.Rating != nil {
		result.Rating.PostID = post.ID
		result.Rating.DateRated = time.Now().UTC()
		applyRegionalBonus(result.Rating, post)
	}
	return result, nil
}

// applyRegionalBonus adds the flat core-area bonus when the post mentions a
// configured regional town.
func applyRegionalBonus(rating *core.Rating, post core.Post) {
	bonus := viper.GetInt("pipeline.regional_bonus")
	towns := viper.GetStringSlice("pipeline.regional_towns")
	if bonus == 0 || len(towns) == 0 {
		rating.TotalScore = rating.Interest + rating.LocalRelevance + rating.CommunityImpact
		return
	}

	haystack := strings.ToLower(post.Title + " " + post.Description)
	for _, town := range towns {
		if strings.Contains(haystack, strings.ToLower(town)) {
			rating.RegionalBonus = bonus
			break
		}
	}
	rating.TotalScore = rating.Interest + rating.LocalRelevance + rating.CommunityImpact + rating.RegionalBonus
}

// ParseRatingResponse parses a scoring response. The result is all-or-nothing:
// any missing or out-of-range field yields a Malformed result.
func ParseRatingResponse(text string) RatingResult {
	payload := extractJSON(text)

	var excl struct {
		Excluded bool   `json:"excluded"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(payload), &excl); err == nil && excl.Excluded {
		return RatingResult{Excluded: true, Reason: excl.Reason}
	}

	var parsed struct {
		Interest        *int   `json:"interest_level"`
		LocalRelevance  *int   `json:"local_relevance"`
		CommunityImpact *int   `json:"community_impact"`
		Reasoning       string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return RatingResult{Raw: text}
	}
	if parsed.Interest == nil || parsed.LocalRelevance == nil || parsed.CommunityImpact == nil {
		return RatingResult{Raw: text}
	}
	if *parsed.Interest < 1 || *parsed.Interest > 20 ||
		*parsed.LocalRelevance < 1 || *parsed.LocalRelevance > 10 ||
		*parsed.CommunityImpact < 1 || *parsed.CommunityImpact > 10 {
		return RatingResult{Raw: text}
	}

	rating := &core.Rating{
		Interest:        *parsed.Interest,
		LocalRelevance:  *parsed.LocalRelevance,
		CommunityImpact: *parsed.CommunityImpact,
		Reasoning:       parsed.Reasoning,
	}
	rating.TotalScore = rating.Interest + rating.LocalRelevance + rating.CommunityImpact
	return RatingResult{Rating: rating}
}

// GroupDuplicates sends the whole batch to the model once and returns groups
// of indices into posts. Every post appears in exactly one group; a post with
// no duplicate is a group of one. Unparseable responses fall back to singleton
// groups so a bad dedupe never drops posts.
func (c *Client) GroupDuplicates(ctx context.Context, posts []core.Post) ([][]int, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, post := range posts {
		fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, post.Title, clip(post.Description, 300))
	}

	text, err := c.generateContent(ctx, fmt.Sprintf(dedupePromptTemplate, sb.String()))
	if err != nil {
		return nil, fmt.Errorf("group duplicates: %w", err)
	}

	groups, ok := ParseDedupeResponse(text, len(posts))
	if !ok {
		groups = make([][]int, len(posts))
		for i := range posts {
			groups[i] = []int{i}
		}
	}
	return groups, nil
}

// ParseDedupeResponse parses a grouping response into zero-based index groups.
// Returns ok=false when the response is malformed or does not cover every
// item exactly once.
func ParseDedupeResponse(text string, count int) ([][]int, bool) {
	var oneBased [][]int
	if err := json.Unmarshal([]byte(extractJSON(text)), &oneBased); err != nil {
		return nil, false
	}

	seen := make(map[int]bool, count)
	groups := make([][]int, 0, len(oneBased))
	for _, group := range oneBased {
		if len(group) == 0 {
			return nil, false
		}
		indices := make([]int, 0, len(group))
		for _, n := range group {
			if n < 1 || n > count || seen[n] {
				return nil, false
			}
			seen[n] = true
			indices = append(indices, n-1)
		}
		groups = append(groups, indices)
	}
	if len(seen) != count {
		return nil, false
	}
	return groups, true
}

// Rewrite is a parsed newsletter rewrite.
type Rewrite struct {
	Headline  string `json:"headline"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// RewritePost rewrites a post into newsletter prose. On a validation failure
// the call regenerates once; a second failure returns an error and the post is
// skipped by the caller.
func (c *Client) RewritePost(ctx context.Context, post core.Post) (Rewrite, error) {
	source := post.Description
	if post.Content != "" {
		source = post.Content
	}
	prompt := fmt.Sprintf(rewritePromptTemplate, post.Title, clip(source, 4000))

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := c.generateContent(ctx, prompt)
		if err != nil {
			return Rewrite{}, fmt.Errorf("rewrite post %s: %w", post.ID, err)
		}

		rewrite, err := ParseRewriteResponse(text)
		if err == nil {
			return rewrite, nil
		}
		lastErr = err
	}
	return Rewrite{}, fmt.Errorf("rewrite post %s failed validation: %w", post.ID, lastErr)
}

// ParseRewriteResponse parses and validates a rewrite response.
func ParseRewriteResponse(text string) (Rewrite, error) {
	var rewrite Rewrite
	if err := json.Unmarshal([]byte(extractJSON(text)), &rewrite); err != nil {
		return Rewrite{}, fmt.Errorf("malformed rewrite response: %w", err)
	}
	if rewrite.Headline == "" || rewrite.Content == "" {
		return Rewrite{}, fmt.Errorf("rewrite response missing headline or content")
	}

	words := len(strings.Fields(rewrite.Content))
	if words < MinRewriteWords || words > MaxRewriteWords {
		return Rewrite{}, fmt.Errorf("rewrite body is %d words, want %d-%d", words, MinRewriteWords, MaxRewriteWords)
	}
	rewrite.WordCount = words
	return rewrite, nil
}

// GenerateSubject produces a subject line from the campaign's lead article.
// The returned string is already trimmed to the hard character limit.
func (c *Client) GenerateSubject(ctx context.Context, article core.Article) (string, error) {
	prompt := fmt.Sprintf(subjectPromptTemplate, time.Now().UnixNano(), article.Headline, clip(article.Content, 600))

	text, err := c.generateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate subject: %w", err)
	}

	var parsed struct {
		SubjectLine string `json:"subject_line"`
	}
	subject := text
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err == nil && parsed.SubjectLine != "" {
		subject = parsed.SubjectLine
	}

	subject = TrimSubject(subject)
	if subject == "" {
		return "", fmt.Errorf("subject generation produced empty output")
	}
	return subject, nil
}

// TrimSubject normalizes a candidate subject line and truncates it to
// SubjectMaxChars runes, cutting at a word boundary when one is close enough.
func TrimSubject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})

	runes := []rune(s)
	if len(runes) <= SubjectMaxChars {
		return s
	}

	cut := string(runes[:SubjectMaxChars])
	if idx := strings.LastIndex(cut, " "); idx > SubjectMaxChars/2 {
		cut = cut[:idx]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// extractJSON strips markdown fences and surrounding prose from a model
// response, returning the first JSON value found.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	if end := strings.LastIndexByte(text, close); end > start {
		return text[start : end+1]
	}
	return text[start:]
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

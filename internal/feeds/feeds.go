// Package feeds fetches configured RSS/Atom sources and normalizes their
// items into campaign posts.
package feeds

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"gazette/internal/core"
)

// Fetcher retrieves and normalizes feed items.
type Fetcher struct {
	parser    *gofeed.Parser
	sanitizer *bluemonday.Policy
	maxItems  int
}

// NewFetcher creates a feed fetcher. maxItems caps how many items are taken
// from a single feed (0 means no cap).
func NewFetcher(userAgent string, timeout time.Duration, maxItems int) *Fetcher {
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	parser.Client = &http.Client{Timeout: timeout}

	return &Fetcher{
		parser:    parser,
		sanitizer: bluemonday.StrictPolicy(),
		maxItems:  maxItems,
	}
}

// Fetch retrieves one feed and returns its items as posts for the given
// campaign. The caller decides how a failed feed affects the batch.
func (f *Fetcher) Fetch(ctx context.Context, feed core.Feed, campaignID string) ([]core.Post, error) {
	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.URL, err)
	}

	items := parsed.Items
	if f.maxItems > 0 && len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	posts := make([]core.Post, 0, len(items))
	for _, item := range items {
		posts = append(posts, f.normalize(item, feed, campaignID))
	}
	return posts, nil
}

// normalize converts one feed item into a post record.
func (f *Fetcher) normalize(item *gofeed.Item, feed core.Feed, campaignID string) core.Post {
	externalID := item.GUID
	if externalID == "" {
		externalID = item.Link
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}

	var author string
	if len(item.Authors) > 0 {
		author = item.Authors[0].Name
	}

	return core.Post{
		ID:          postID(feed.ID, externalID),
		CampaignID:  campaignID,
		FeedID:      feed.ID,
		ExternalID:  externalID,
		Title:       cleanText(f.sanitizer, item.Title),
		Link:        item.Link,
		Description: cleanText(f.sanitizer, item.Description),
		Content:     item.Content,
		Author:      author,
		ImageURL:    extractImage(item),
		Published:   published,
		DateAdded:   time.Now().UTC(),
	}
}

// postID creates a deterministic ID so re-runs of the same day upsert instead
// of duplicating rows.
func postID(feedID, externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedID+externalID)).String()
}

// extractImage finds the item's image: explicit item image, then enclosures,
// then media extensions, then the first <img> inside the item content.
func extractImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}

	return firstImageInHTML(item.Content)
}

// firstImageInHTML returns the src of the first <img> tag in the fragment.
func firstImageInHTML(fragment string) string {
	if fragment == "" || !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// cleanText strips markup and decodes HTML entities from feed-provided text.
func cleanText(policy *bluemonday.Policy, s string) string {
	s = policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

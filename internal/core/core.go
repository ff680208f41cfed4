// Package core defines the domain types shared across the gazette service.
package core

import "time"

// Feed represents a configured RSS/Atom source polled by the nightly pipeline.
type Feed struct {
	ID        string    `json:"id"`         // Unique identifier for the feed
	URL       string    `json:"url"`        // Feed URL
	Name      string    `json:"name"`       // Human-readable source name
	Active    bool      `json:"active"`     // Whether the feed is polled
	LastError string    `json:"last_error"` // Last fetch error, empty when healthy
	DateAdded time.Time `json:"date_added"` // When the feed was configured
}

// Post is one ingested feed item, attached to the campaign it was fetched for.
type Post struct {
	ID          string    `json:"id"`          // Unique identifier for the post
	CampaignID  string    `json:"campaign_id"` // Campaign this post was ingested for
	FeedID      string    `json:"feed_id"`     // Source feed
	ExternalID  string    `json:"external_id"` // GUID from the feed (falls back to link)
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"` // Sanitized description text
	Content     string    `json:"content"`     // Raw item content when present
	Author      string    `json:"author"`
	ImageURL    string    `json:"image_url"` // Enclosure/media image, may be empty
	Published   time.Time `json:"published"`
	Duplicate   bool      `json:"duplicate"` // Marked by the deduplicator
	DateAdded   time.Time `json:"date_added"`
}

// Rating holds the rubric scores for a post. A rating is written exactly once
// and is either fully populated or absent entirely.
type Rating struct {
	PostID          string    `json:"post_id"`
	Interest        int       `json:"interest_level"`   // 1-20
	LocalRelevance  int       `json:"local_relevance"`  // 1-10
	CommunityImpact int       `json:"community_impact"` // 1-10
	RegionalBonus   int       `json:"regional_bonus"`   // Flat bonus for core-area stories
	TotalScore      int       `json:"total_score"`      // Sum of the above
	Reasoning       string    `json:"reasoning"`
	DateRated       time.Time `json:"date_rated"`
}

// Article is the newsletter-ready rewrite of a selected post.
type Article struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	PostID     string    `json:"post_id"` // Source post
	Headline   string    `json:"headline"`
	Content    string    `json:"content"`    // 40-75 word rewritten body
	WordCount  int       `json:"word_count"` // Reported by the writer
	TotalScore int       `json:"total_score"`
	Rank       *int      `json:"rank"`      // Display order among active articles, nil when unranked
	IsActive   bool      `json:"is_active"` // Included in the assembled newsletter
	Skipped    bool      `json:"skipped"`   // Excluded by a reviewer without deletion
	DateAdded  time.Time `json:"date_added"`
}

// ManualArticle is a reviewer-authored article not derived from a feed post.
// It shares the rank/active shape of Article.
type ManualArticle struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Headline   string    `json:"headline"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"image_url"`
	Rank       *int      `json:"rank"`
	IsActive   bool      `json:"is_active"`
	Skipped    bool      `json:"skipped"`
	Author     string    `json:"author"` // Dashboard user who wrote it
	DateAdded  time.Time `json:"date_added"`
}

// CampaignMetrics holds delivery statistics copied back from the email provider.
type CampaignMetrics struct {
	Delivered  int       `json:"delivered"`
	Opened     int       `json:"opened"`
	Clicked    int       `json:"clicked"`
	ImportedAt time.Time `json:"imported_at"`
}

// Campaign is one daily newsletter send.
type Campaign struct {
	ID           string           `json:"id"`
	SendDate     string           `json:"send_date"` // YYYY-MM-DD delivery date
	Status       Status           `json:"status"`
	SubjectLine  string           `json:"subject_line"` // At most 35 characters
	SectionOrder []string         `json:"section_order"`
	ProviderID   string           `json:"provider_id"` // Campaign id at the email provider
	Metrics      *CampaignMetrics `json:"metrics,omitempty"`
	DateAdded    time.Time        `json:"date_added"`
	DateUpdated  time.Time        `json:"date_updated"`
}

// Event is a local calendar entry managed independently of campaigns.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url"`
	DateAdded   time.Time `json:"date_added"`
}

// CampaignEvent joins an event into a campaign with selection flags.
type CampaignEvent struct {
	CampaignID string `json:"campaign_id"`
	EventID    string `json:"event_id"`
	Featured   bool   `json:"featured"` // One featured event per date in the rendered section
	SortOrder  int    `json:"sort_order"`
}

// WeatherForecast is one day's forecast card.
type WeatherForecast struct {
	Date      string  `json:"date"` // YYYY-MM-DD
	Summary   string  `json:"summary"`
	HighTempF float64 `json:"high_temp_f"`
	LowTempF  float64 `json:"low_temp_f"`
	SnowIn    float64 `json:"snow_in"`
	Icon      string  `json:"icon"`
}

// RoadWorkItem is a road-work notice shown alongside weather.
type RoadWorkItem struct {
	ID        string    `json:"id"`
	Road      string    `json:"road"`
	Details   string    `json:"details"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	DateAdded time.Time `json:"date_added"`
}

// DiningDeal is a restaurant promotion available for campaign selection.
type DiningDeal struct {
	ID         string    `json:"id"`
	Restaurant string    `json:"restaurant"`
	Deal       string    `json:"deal"`
	DaysActive []string  `json:"days_active"` // Weekday names the deal runs
	URL        string    `json:"url"`
	ImageURL   string    `json:"image_url"`
	Active     bool      `json:"active"`
	DateAdded  time.Time `json:"date_added"`
}

// CampaignDiningSelection joins a dining deal into a campaign.
type CampaignDiningSelection struct {
	CampaignID string `json:"campaign_id"`
	DealID     string `json:"deal_id"`
	SortOrder  int    `json:"sort_order"`
}

// VrboListing is a vacation-rental promo available for campaign selection.
type VrboListing struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ImageURL  string    `json:"image_url"`
	Sleeps    int       `json:"sleeps"`
	Nightly   string    `json:"nightly"` // Display price, free text
	Active    bool      `json:"active"`
	DateAdded time.Time `json:"date_added"`
}

// CampaignVrboSelection joins a listing into a campaign.
type CampaignVrboSelection struct {
	CampaignID string `json:"campaign_id"`
	ListingID  string `json:"listing_id"`
	Featured   bool   `json:"featured"`
	SortOrder  int    `json:"sort_order"`
}

// Poll is a reader poll embedded in the newsletter.
type Poll struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	Options   []PollOption `json:"options"`
	Active    bool         `json:"active"`
	DateAdded time.Time    `json:"date_added"`
}

// PollOption is one answer with its running vote count.
type PollOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Votes int    `json:"votes"`
}

// Advertisement is a paid placement in the newsletter.
type Advertisement struct {
	ID         string    `json:"id"`
	Advertiser string    `json:"advertiser"`
	Headline   string    `json:"headline"`
	Body       string    `json:"body"`
	LinkURL    string    `json:"link_url"`
	ImageURL   string    `json:"image_url"`
	Paid       bool      `json:"paid"`     // Set by the payment webhook
	Active     bool      `json:"active"`   // Eligible for assembly
	RunDate    string    `json:"run_date"` // YYYY-MM-DD, empty runs every day
	CheckoutID string    `json:"checkout_id"`
	DateAdded  time.Time `json:"date_added"`
}

// Image is an uploaded asset hosted at the external image service.
type Image struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	DeleteHash string    `json:"delete_hash"`
	Label      string    `json:"label"`
	DateAdded  time.Time `json:"date_added"`
}

// UserActivity is an audit record of a reviewer action on a campaign.
type UserActivity struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	User       string    `json:"user"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

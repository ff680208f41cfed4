// Package persistence provides database abstraction interfaces for campaigns,
// posts, articles and the supplementary catalogs.
package persistence

import (
	"context"
	"errors"

	"gazette/internal/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRan is returned when a pipeline run marker already exists for the
// (send date, job type) idempotency key.
var ErrAlreadyRan = errors.New("job already ran for this date")

// ListOptions controls pagination for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// EventFilter narrows event listings.
type EventFilter struct {
	From       string // YYYY-MM-DD inclusive
	To         string // YYYY-MM-DD inclusive
	Search     string // substring match on title/location
	CampaignID string // only events selected for this campaign
	Limit      int
	Offset     int
}

// RankUpdate assigns one article's rank during a bulk reorder.
type RankUpdate struct {
	ArticleID string
	Rank      int
}

// FeedRepository handles feed configuration.
type FeedRepository interface {
	Create(ctx context.Context, feed *core.Feed) error
	Get(ctx context.Context, id string) (*core.Feed, error)
	List(ctx context.Context) ([]core.Feed, error)
	ListActive(ctx context.Context) ([]core.Feed, error)
	Update(ctx context.Context, feed *core.Feed) error
	Delete(ctx context.Context, id string) error
}

// CampaignRepository handles campaign lifecycle persistence.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *core.Campaign) error
	Get(ctx context.Context, id string) (*core.Campaign, error)
	// GetBySendDate returns the most recently created campaign for a date.
	GetBySendDate(ctx context.Context, sendDate string) (*core.Campaign, error)
	List(ctx context.Context, opts ListOptions) ([]core.Campaign, error)
	Update(ctx context.Context, campaign *core.Campaign) error
	UpdateStatus(ctx context.Context, id string, status core.Status) error
	SetSubject(ctx context.Context, id string, subject string) error
	SetProviderID(ctx context.Context, id string, providerID string) error
	SetMetrics(ctx context.Context, id string, metrics core.CampaignMetrics) error
	// Delete removes the campaign and all dependent rows (posts, ratings,
	// articles, selections, activities).
	Delete(ctx context.Context, id string) error
	// ClaimRun inserts the run marker for (sendDate, jobType), returning
	// ErrAlreadyRan when the key exists. Concurrent triggers fail safely on
	// the unique constraint instead of racing.
	ClaimRun(ctx context.Context, sendDate string, jobType string) error
	// ReleaseRun removes the run marker so a failed run can be re-triggered.
	ReleaseRun(ctx context.Context, sendDate string, jobType string) error
}

// PostRepository handles ingested feed items.
type PostRepository interface {
	CreateBatch(ctx context.Context, posts []core.Post) (int, error)
	Get(ctx context.Context, id string) (*core.Post, error)
	// ListByCampaign returns posts for a campaign; when uniqueOnly is set,
	// posts marked duplicate are omitted.
	ListByCampaign(ctx context.Context, campaignID string, uniqueOnly bool) ([]core.Post, error)
	MarkDuplicates(ctx context.Context, ids []string) error
}

// RatingRepository handles rubric scores. Ratings are written once.
type RatingRepository interface {
	Create(ctx context.Context, rating *core.Rating) error
	GetByPostID(ctx context.Context, postID string) (*core.Rating, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]core.Rating, error)
}

// ArticleRepository handles rewritten newsletter articles.
type ArticleRepository interface {
	Create(ctx context.Context, article *core.Article) error
	Get(ctx context.Context, id string) (*core.Article, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]core.Article, error)
	Update(ctx context.Context, article *core.Article) error
	// UpdateRanks applies a bulk reorder atomically.
	UpdateRanks(ctx context.Context, updates []RankUpdate) error
	SetSkipped(ctx context.Context, id string, skipped bool) error
	SetActive(ctx context.Context, id string, active bool, rank *int) error
	Delete(ctx context.Context, id string) error
}

// ManualArticleRepository handles reviewer-authored articles.
type ManualArticleRepository interface {
	Create(ctx context.Context, article *core.ManualArticle) error
	Get(ctx context.Context, id string) (*core.ManualArticle, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]core.ManualArticle, error)
	Update(ctx context.Context, article *core.ManualArticle) error
	Delete(ctx context.Context, id string) error
}

// EventRepository handles the event catalog and campaign selections.
type EventRepository interface {
	Create(ctx context.Context, event *core.Event) error
	Get(ctx context.Context, id string) (*core.Event, error)
	List(ctx context.Context, filter EventFilter) ([]core.Event, error)
	Update(ctx context.Context, event *core.Event) error
	Delete(ctx context.Context, id string) error
	SelectForCampaign(ctx context.Context, sel core.CampaignEvent) error
	DeselectForCampaign(ctx context.Context, campaignID, eventID string) error
	ListSelections(ctx context.Context, campaignID string) ([]core.CampaignEvent, error)
}

// DiningRepository handles dining deals and campaign selections.
type DiningRepository interface {
	Create(ctx context.Context, deal *core.DiningDeal) error
	Get(ctx context.Context, id string) (*core.DiningDeal, error)
	List(ctx context.Context, activeOnly bool) ([]core.DiningDeal, error)
	Update(ctx context.Context, deal *core.DiningDeal) error
	Delete(ctx context.Context, id string) error
	SelectForCampaign(ctx context.Context, sel core.CampaignDiningSelection) error
	DeselectForCampaign(ctx context.Context, campaignID, dealID string) error
	ListSelections(ctx context.Context, campaignID string) ([]core.CampaignDiningSelection, error)
}

// VrboRepository handles vacation-rental listings and campaign selections.
type VrboRepository interface {
	Create(ctx context.Context, listing *core.VrboListing) error
	Get(ctx context.Context, id string) (*core.VrboListing, error)
	List(ctx context.Context, activeOnly bool) ([]core.VrboListing, error)
	Update(ctx context.Context, listing *core.VrboListing) error
	Delete(ctx context.Context, id string) error
	SelectForCampaign(ctx context.Context, sel core.CampaignVrboSelection) error
	DeselectForCampaign(ctx context.Context, campaignID, listingID string) error
	ListSelections(ctx context.Context, campaignID string) ([]core.CampaignVrboSelection, error)
}

// PollRepository handles reader polls.
type PollRepository interface {
	Create(ctx context.Context, poll *core.Poll) error
	Get(ctx context.Context, id string) (*core.Poll, error)
	List(ctx context.Context, activeOnly bool) ([]core.Poll, error)
	Update(ctx context.Context, poll *core.Poll) error
	Delete(ctx context.Context, id string) error
	Vote(ctx context.Context, pollID, optionID string) error
}

// AdRepository handles paid placements.
type AdRepository interface {
	Create(ctx context.Context, ad *core.Advertisement) error
	Get(ctx context.Context, id string) (*core.Advertisement, error)
	List(ctx context.Context, opts ListOptions) ([]core.Advertisement, error)
	// ListForDate returns paid, active ads whose run date is the given date
	// or empty.
	ListForDate(ctx context.Context, date string) ([]core.Advertisement, error)
	Update(ctx context.Context, ad *core.Advertisement) error
	// MarkPaid flips the ad matching the checkout session to paid/active.
	MarkPaid(ctx context.Context, checkoutID string) error
	Delete(ctx context.Context, id string) error
}

// ImageRepository handles hosted image records.
type ImageRepository interface {
	Create(ctx context.Context, image *core.Image) error
	Get(ctx context.Context, id string) (*core.Image, error)
	List(ctx context.Context, opts ListOptions) ([]core.Image, error)
	Delete(ctx context.Context, id string) error
}

// RoadWorkRepository handles road-work notices.
type RoadWorkRepository interface {
	Create(ctx context.Context, item *core.RoadWorkItem) error
	ListCurrent(ctx context.Context, date string) ([]core.RoadWorkItem, error)
	Delete(ctx context.Context, id string) error
}

// ActivityRepository records reviewer actions for the audit trail.
type ActivityRepository interface {
	Record(ctx context.Context, activity *core.UserActivity) error
	ListByCampaign(ctx context.Context, campaignID string) ([]core.UserActivity, error)
}

// Database is the full persistence surface.
type Database interface {
	Feeds() FeedRepository
	Campaigns() CampaignRepository
	Posts() PostRepository
	Ratings() RatingRepository
	Articles() ArticleRepository
	ManualArticles() ManualArticleRepository
	Events() EventRepository
	Dining() DiningRepository
	Vrbo() VrboRepository
	Polls() PollRepository
	Ads() AdRepository
	Images() ImageRepository
	RoadWork() RoadWorkRepository
	Activities() ActivityRepository

	Ping(ctx context.Context) error
	Close() error
}

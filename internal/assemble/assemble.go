// Package assemble builds the newsletter HTML for a campaign from its
// articles and the supplementary sections.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gazette/internal/core"
	"gazette/internal/logger"
	"gazette/internal/persistence"
)

// NewsletterTemplate holds the visual configuration for the rendered email.
type NewsletterTemplate struct {
	Name            string
	HeaderColor     string
	BackgroundColor string
	TextColor       string
	LinkColor       string
	BorderColor     string
	MaxWidth        string
	FontFamily      string
}

// GetDefaultTemplate returns the standard daily-newsletter look.
func GetDefaultTemplate() *NewsletterTemplate {
	return &NewsletterTemplate{
		Name:            "daily",
		HeaderColor:     "#1d4ed8", // Blue-700
		BackgroundColor: "#f8fafc", // Slate-50
		TextColor:       "#1e293b", // Slate-800
		LinkColor:       "#2563eb", // Blue-600
		BorderColor:     "#e2e8f0", // Slate-200
		MaxWidth:        "600px",
		FontFamily:      "system-ui, -apple-system, 'Segoe UI', Roboto, sans-serif",
	}
}

// DefaultSectionOrder is used when a campaign carries no explicit ordering.
var DefaultSectionOrder = []string{
	"articles", "events", "weather", "roadwork", "dining", "vrbo", "poll", "ads",
}

// ForecastProvider supplies the weather cards for a send date.
type ForecastProvider interface {
	Forecast(ctx context.Context, date string) ([]core.WeatherForecast, error)
}

// storyItem is one ranked entry in the articles section; feed-derived and
// manual articles are merged into a single list.
type storyItem struct {
	Headline string
	Content  string
	ImageURL string
	Rank     int
}

// eventItem pairs an event with its selection flags.
type eventItem struct {
	core.Event
	Featured bool
	When     string
}

// eventGroup is one day's events; a featured pick leads its day.
type eventGroup struct {
	Day   string
	Items []eventItem
}

// NewsletterData is everything the shell template needs.
type NewsletterData struct {
	Date     string
	Subject  string
	Sections []template.HTML
	Template *NewsletterTemplate
}

// Assembler gathers campaign content and renders the newsletter HTML.
type Assembler struct {
	db       persistence.Database
	weather  ForecastProvider
	template *NewsletterTemplate
	log      *slog.Logger
}

func NewAssembler(db persistence.Database, weather ForecastProvider) *Assembler {
	return &Assembler{
		db:       db,
		weather:  weather,
		template: GetDefaultTemplate(),
		log:      logger.Get(),
	}
}

// Build renders the complete newsletter HTML for a campaign. Sections with no
// content are omitted. Weather failures degrade to a missing section rather
// than failing the build.
func (a *Assembler) Build(ctx context.Context, campaign *core.Campaign) (string, error) {
	order := campaign.SectionOrder
	if len(order) == 0 {
		order = DefaultSectionOrder
	}

	var sections []template.HTML
	for _, name := range order {
		html, err := a.renderSection(ctx, campaign, name)
		if err != nil {
			return "", fmt.Errorf("render %s section: %w", name, err)
		}
		if html != "" {
			sections = append(sections, html)
		}
	}

	data := NewsletterData{
		Date:     displayDate(campaign.SendDate),
		Subject:  campaign.SubjectLine,
		Sections: sections,
		Template: a.template,
	}

	var buf bytes.Buffer
	if err := shellTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render newsletter shell: %w", err)
	}
	a.log.Info("Assembled newsletter", "campaign_id", campaign.ID, "sections", len(sections))
	return buf.String(), nil
}

func (a *Assembler) renderSection(ctx context.Context, campaign *core.Campaign, name string) (template.HTML, error) {
	switch name {
	case "articles":
		return a.articlesSection(ctx, campaign.ID)
	case "events":
		return a.eventsSection(ctx, campaign.ID)
	case "weather":
		return a.weatherSection(ctx, campaign.SendDate)
	case "roadwork":
		return a.roadWorkSection(ctx, campaign.SendDate)
	case "dining":
		return a.diningSection(ctx, campaign)
	case "vrbo":
		return a.vrboSection(ctx, campaign.ID)
	case "poll":
		return a.pollSection(ctx)
	case "ads":
		return a.adsSection(ctx, campaign.SendDate)
	default:
		a.log.Warn("Unknown section in campaign order", "section", name, "campaign_id", campaign.ID)
		return "", nil
	}
}

// articlesSection merges feed-derived and manual articles by rank.
func (a *Assembler) articlesSection(ctx context.Context, campaignID string) (template.HTML, error) {
	articles, err := a.db.Articles().ListByCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	manual, err := a.db.ManualArticles().ListByCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}

	var stories []storyItem
	for _, art := range articles {
		if art.IsActive && !art.Skipped && art.Rank != nil {
			stories = append(stories, storyItem{Headline: art.Headline, Content: art.Content, Rank: *art.Rank})
		}
	}
	for _, m := range manual {
		if m.IsActive && !m.Skipped && m.Rank != nil {
			stories = append(stories, storyItem{Headline: m.Headline, Content: m.Content, ImageURL: m.ImageURL, Rank: *m.Rank})
		}
	}
	if len(stories) == 0 {
		return "", nil
	}
	sort.SliceStable(stories, func(i, j int) bool { return stories[i].Rank < stories[j].Rank })

	return renderPartial(articlesTemplate, stories)
}

func (a *Assembler) eventsSection(ctx context.Context, campaignID string) (template.HTML, error) {
	selections, err := a.db.Events().ListSelections(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if len(selections) == 0 {
		return "", nil
	}

	var items []eventItem
	for _, sel := range selections {
		event, err := a.db.Events().Get(ctx, sel.EventID)
		if err != nil {
			if err == persistence.ErrNotFound {
				continue
			}
			return "", err
		}
		items = append(items, eventItem{
			Event:    *event,
			Featured: sel.Featured,
			When:     event.StartsAt.Format("3:04 PM"),
		})
	}
	if len(items) == 0 {
		return "", nil
	}

	return renderPartial(eventsTemplate, groupEventsByDay(items))
}

// groupEventsByDay buckets events by calendar date in chronological order.
// Within a day the featured pick moves to the front; extra featured picks on
// the same day are demoted so each day has at most one lead.
func groupEventsByDay(items []eventItem) []eventGroup {
	sort.SliceStable(items, func(i, j int) bool { return items[i].StartsAt.Before(items[j].StartsAt) })

	var groups []eventGroup
	lastDay := ""
	for _, item := range items {
		day := item.StartsAt.Format("2006-01-02")
		if day != lastDay {
			groups = append(groups, eventGroup{Day: item.StartsAt.Format("Monday, January 2")})
			lastDay = day
		}
		g := &groups[len(groups)-1]
		g.Items = append(g.Items, item)
	}

	for gi := range groups {
		g := &groups[gi]
		lead := -1
		for i := range g.Items {
			if !g.Items[i].Featured {
				continue
			}
			if lead == -1 {
				lead = i
			} else {
				g.Items[i].Featured = false
			}
		}
		if lead > 0 {
			item := g.Items[lead]
			copy(g.Items[1:lead+1], g.Items[:lead])
			g.Items[0] = item
		}
	}
	return groups
}

func (a *Assembler) weatherSection(ctx context.Context, sendDate string) (template.HTML, error) {
	if a.weather == nil {
		return "", nil
	}
	forecasts, err := a.weather.Forecast(ctx, sendDate)
	if err != nil {
		a.log.Warn("Weather unavailable, omitting section", "send_date", sendDate, "error", err)
		return "", nil
	}
	if len(forecasts) == 0 {
		return "", nil
	}
	return renderPartial(weatherTemplate, forecasts)
}

func (a *Assembler) roadWorkSection(ctx context.Context, sendDate string) (template.HTML, error) {
	items, err := a.db.RoadWork().ListCurrent(ctx, sendDate)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	return renderPartial(roadWorkTemplate, items)
}

// diningSection prefers the reviewer's explicit selections and falls back to
// active deals that run on the send date's weekday.
func (a *Assembler) diningSection(ctx context.Context, campaign *core.Campaign) (template.HTML, error) {
	selections, err := a.db.Dining().ListSelections(ctx, campaign.ID)
	if err != nil {
		return "", err
	}

	var deals []core.DiningDeal
	if len(selections) > 0 {
		for _, sel := range selections {
			deal, err := a.db.Dining().Get(ctx, sel.DealID)
			if err != nil {
				if err == persistence.ErrNotFound {
					continue
				}
				return "", err
			}
			deals = append(deals, *deal)
		}
	} else {
		all, err := a.db.Dining().List(ctx, true)
		if err != nil {
			return "", err
		}
		weekday := weekdayOf(campaign.SendDate)
		for _, deal := range all {
			if dealRunsOn(deal, weekday) {
				deals = append(deals, deal)
			}
		}
	}
	if len(deals) == 0 {
		return "", nil
	}
	return renderPartial(diningTemplate, deals)
}

func (a *Assembler) vrboSection(ctx context.Context, campaignID string) (template.HTML, error) {
	selections, err := a.db.Vrbo().ListSelections(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if len(selections) == 0 {
		return "", nil
	}

	var listings []core.VrboListing
	for _, sel := range selections {
		listing, err := a.db.Vrbo().Get(ctx, sel.ListingID)
		if err != nil {
			if err == persistence.ErrNotFound {
				continue
			}
			return "", err
		}
		listings = append(listings, *listing)
	}
	if len(listings) == 0 {
		return "", nil
	}
	return renderPartial(vrboTemplate, listings)
}

// pollSection renders the most recent active poll, if any.
func (a *Assembler) pollSection(ctx context.Context) (template.HTML, error) {
	polls, err := a.db.Polls().List(ctx, true)
	if err != nil {
		return "", err
	}
	if len(polls) == 0 {
		return "", nil
	}
	return renderPartial(pollTemplate, polls[0])
}

func (a *Assembler) adsSection(ctx context.Context, sendDate string) (template.HTML, error) {
	ads, err := a.db.Ads().ListForDate(ctx, sendDate)
	if err != nil {
		return "", err
	}
	if len(ads) == 0 {
		return "", nil
	}
	return renderPartial(adsTemplate, ads)
}

func renderPartial(tmpl *template.Template, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func displayDate(sendDate string) string {
	if t, err := time.Parse("2006-01-02", sendDate); err == nil {
		return t.Format("Monday, January 2, 2006")
	}
	return sendDate
}

func weekdayOf(sendDate string) string {
	t, err := time.Parse("2006-01-02", sendDate)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

func dealRunsOn(deal core.DiningDeal, weekday string) bool {
	if weekday == "" {
		return false
	}
	for _, day := range deal.DaysActive {
		if strings.EqualFold(day, weekday) {
			return true
		}
	}
	return false
}

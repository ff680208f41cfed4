package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"gazette/internal/core"
)

// postgresFeedRepo implements FeedRepository.
type postgresFeedRepo struct {
	db *sql.DB
}

const feedColumns = `id, url, name, active, last_error, date_added`

func scanFeed(row interface{ Scan(...any) error }) (*core.Feed, error) {
	var f core.Feed
	if err := row.Scan(&f.ID, &f.URL, &f.Name, &f.Active, &f.LastError, &f.DateAdded); err != nil {
		return nil, wrapNotFound(err)
	}
	return &f, nil
}

func (r *postgresFeedRepo) Create(ctx context.Context, feed *core.Feed) error {
	feed.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (`+feedColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		feed.ID, feed.URL, feed.Name, feed.Active, feed.LastError, feed.DateAdded)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

func (r *postgresFeedRepo) Get(ctx context.Context, id string) (*core.Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id)
	return scanFeed(row)
}

func (r *postgresFeedRepo) list(ctx context.Context, activeOnly bool) ([]core.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []core.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

func (r *postgresFeedRepo) List(ctx context.Context) ([]core.Feed, error) {
	return r.list(ctx, false)
}

func (r *postgresFeedRepo) ListActive(ctx context.Context) ([]core.Feed, error) {
	return r.list(ctx, true)
}

func (r *postgresFeedRepo) Update(ctx context.Context, feed *core.Feed) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET url = $2, name = $3, active = $4, last_error = $5 WHERE id = $1`,
		feed.ID, feed.URL, feed.Name, feed.Active, feed.LastError)
	if err != nil {
		return fmt.Errorf("update feed: %w", err)
	}
	return requireRow(res)
}

func (r *postgresFeedRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return requireRow(res)
}

// postgresEventRepo implements EventRepository.
type postgresEventRepo struct {
	db *sql.DB
}

const eventColumns = `id, title, description, location, starts_at, ends_at, url, image_url, date_added`

func scanEvent(row interface{ Scan(...any) error }) (*core.Event, error) {
	var e core.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
		&e.URL, &e.ImageURL, &e.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &e, nil
}

func (r *postgresEventRepo) Create(ctx context.Context, event *core.Event) error {
	event.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Title, event.Description, event.Location, event.StartsAt, event.EndsAt,
		event.URL, event.ImageURL, event.DateAdded)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *postgresEventRepo) Get(ctx context.Context, id string) (*core.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

// eventListQuery builds the filtered listing query.
func eventListQuery(filter EventFilter) sq.SelectBuilder {
	q := psql.Select("e.id", "e.title", "e.description", "e.location", "e.starts_at",
		"e.ends_at", "e.url", "e.image_url", "e.date_added").
		From("events e").
		OrderBy("e.starts_at")

	if filter.From != "" {
		q = q.Where(sq.GtOrEq{"e.starts_at": filter.From})
	}
	if filter.To != "" {
		q = q.Where(sq.Expr("e.starts_at < ?::date + INTERVAL '1 day'", filter.To))
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"e.title": like}, sq.ILike{"e.location": like}})
	}
	if filter.CampaignID != "" {
		q = q.Join("campaign_events ce ON ce.event_id = e.id").
			Where(sq.Eq{"ce.campaign_id": filter.CampaignID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

func (r *postgresEventRepo) List(ctx context.Context, filter EventFilter) ([]core.Event, error) {
	query, args, err := eventListQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *postgresEventRepo) Update(ctx context.Context, event *core.Event) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET title = $2, description = $3, location = $4, starts_at = $5, ends_at = $6, url = $7, image_url = $8
		 WHERE id = $1`,
		event.ID, event.Title, event.Description, event.Location, event.StartsAt, event.EndsAt,
		event.URL, event.ImageURL)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return requireRow(res)
}

func (r *postgresEventRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireRow(res)
}

func (r *postgresEventRepo) SelectForCampaign(ctx context.Context, sel core.CampaignEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaign_events (campaign_id, event_id, featured, sort_order)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (campaign_id, event_id) DO UPDATE SET featured = EXCLUDED.featured, sort_order = EXCLUDED.sort_order`,
		sel.CampaignID, sel.EventID, sel.Featured, sel.SortOrder)
	if err != nil {
		return fmt.Errorf("select event for campaign: %w", err)
	}
	return nil
}

func (r *postgresEventRepo) DeselectForCampaign(ctx context.Context, campaignID, eventID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaign_events WHERE campaign_id = $1 AND event_id = $2`, campaignID, eventID)
	if err != nil {
		return fmt.Errorf("deselect event: %w", err)
	}
	return requireRow(res)
}

func (r *postgresEventRepo) ListSelections(ctx context.Context, campaignID string) ([]core.CampaignEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT campaign_id, event_id, featured, sort_order FROM campaign_events
		 WHERE campaign_id = $1 ORDER BY sort_order`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list event selections: %w", err)
	}
	defer rows.Close()

	var sels []core.CampaignEvent
	for rows.Next() {
		var s core.CampaignEvent
		if err := rows.Scan(&s.CampaignID, &s.EventID, &s.Featured, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("scan event selection: %w", err)
		}
		sels = append(sels, s)
	}
	return sels, rows.Err()
}

// postgresDiningRepo implements DiningRepository.
type postgresDiningRepo struct {
	db *sql.DB
}

const diningColumns = `id, restaurant, deal, days_active, url, image_url, active, date_added`

func scanDeal(row interface{ Scan(...any) error }) (*core.DiningDeal, error) {
	var d core.DiningDeal
	err := row.Scan(&d.ID, &d.Restaurant, &d.Deal, pq.Array(&d.DaysActive), &d.URL,
		&d.ImageURL, &d.Active, &d.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &d, nil
}

func (r *postgresDiningRepo) Create(ctx context.Context, deal *core.DiningDeal) error {
	deal.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dining_deals (`+diningColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		deal.ID, deal.Restaurant, deal.Deal, pq.Array(deal.DaysActive), deal.URL,
		deal.ImageURL, deal.Active, deal.DateAdded)
	if err != nil {
		return fmt.Errorf("insert dining deal: %w", err)
	}
	return nil
}

func (r *postgresDiningRepo) Get(ctx context.Context, id string) (*core.DiningDeal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+diningColumns+` FROM dining_deals WHERE id = $1`, id)
	return scanDeal(row)
}

func (r *postgresDiningRepo) List(ctx context.Context, activeOnly bool) ([]core.DiningDeal, error) {
	query := `SELECT ` + diningColumns + ` FROM dining_deals`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY restaurant`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list dining deals: %w", err)
	}
	defer rows.Close()

	var deals []core.DiningDeal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dining deal: %w", err)
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

func (r *postgresDiningRepo) Update(ctx context.Context, deal *core.DiningDeal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dining_deals SET restaurant = $2, deal = $3, days_active = $4, url = $5, image_url = $6, active = $7
		 WHERE id = $1`,
		deal.ID, deal.Restaurant, deal.Deal, pq.Array(deal.DaysActive), deal.URL, deal.ImageURL, deal.Active)
	if err != nil {
		return fmt.Errorf("update dining deal: %w", err)
	}
	return requireRow(res)
}

func (r *postgresDiningRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dining_deals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dining deal: %w", err)
	}
	return requireRow(res)
}

func (r *postgresDiningRepo) SelectForCampaign(ctx context.Context, sel core.CampaignDiningSelection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaign_dining_selections (campaign_id, deal_id, sort_order)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (campaign_id, deal_id) DO UPDATE SET sort_order = EXCLUDED.sort_order`,
		sel.CampaignID, sel.DealID, sel.SortOrder)
	if err != nil {
		return fmt.Errorf("select dining deal: %w", err)
	}
	return nil
}

func (r *postgresDiningRepo) DeselectForCampaign(ctx context.Context, campaignID, dealID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaign_dining_selections WHERE campaign_id = $1 AND deal_id = $2`, campaignID, dealID)
	if err != nil {
		return fmt.Errorf("deselect dining deal: %w", err)
	}
	return requireRow(res)
}

func (r *postgresDiningRepo) ListSelections(ctx context.Context, campaignID string) ([]core.CampaignDiningSelection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT campaign_id, deal_id, sort_order FROM campaign_dining_selections
		 WHERE campaign_id = $1 ORDER BY sort_order`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list dining selections: %w", err)
	}
	defer rows.Close()

	var sels []core.CampaignDiningSelection
	for rows.Next() {
		var s core.CampaignDiningSelection
		if err := rows.Scan(&s.CampaignID, &s.DealID, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("scan dining selection: %w", err)
		}
		sels = append(sels, s)
	}
	return sels, rows.Err()
}

// postgresVrboRepo implements VrboRepository.
type postgresVrboRepo struct {
	db *sql.DB
}

const vrboColumns = `id, title, url, image_url, sleeps, nightly, active, date_added`

func scanListing(row interface{ Scan(...any) error }) (*core.VrboListing, error) {
	var l core.VrboListing
	err := row.Scan(&l.ID, &l.Title, &l.URL, &l.ImageURL, &l.Sleeps, &l.Nightly, &l.Active, &l.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &l, nil
}

func (r *postgresVrboRepo) Create(ctx context.Context, listing *core.VrboListing) error {
	listing.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vrbo_listings (`+vrboColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		listing.ID, listing.Title, listing.URL, listing.ImageURL, listing.Sleeps,
		listing.Nightly, listing.Active, listing.DateAdded)
	if err != nil {
		return fmt.Errorf("insert vrbo listing: %w", err)
	}
	return nil
}

func (r *postgresVrboRepo) Get(ctx context.Context, id string) (*core.VrboListing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+vrboColumns+` FROM vrbo_listings WHERE id = $1`, id)
	return scanListing(row)
}

func (r *postgresVrboRepo) List(ctx context.Context, activeOnly bool) ([]core.VrboListing, error) {
	query := `SELECT ` + vrboColumns + ` FROM vrbo_listings`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY title`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vrbo listings: %w", err)
	}
	defer rows.Close()

	var listings []core.VrboListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vrbo listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (r *postgresVrboRepo) Update(ctx context.Context, listing *core.VrboListing) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vrbo_listings SET title = $2, url = $3, image_url = $4, sleeps = $5, nightly = $6, active = $7
		 WHERE id = $1`,
		listing.ID, listing.Title, listing.URL, listing.ImageURL, listing.Sleeps, listing.Nightly, listing.Active)
	if err != nil {
		return fmt.Errorf("update vrbo listing: %w", err)
	}
	return requireRow(res)
}

func (r *postgresVrboRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vrbo_listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vrbo listing: %w", err)
	}
	return requireRow(res)
}

func (r *postgresVrboRepo) SelectForCampaign(ctx context.Context, sel core.CampaignVrboSelection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaign_vrbo_selections (campaign_id, listing_id, featured, sort_order)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (campaign_id, listing_id) DO UPDATE SET featured = EXCLUDED.featured, sort_order = EXCLUDED.sort_order`,
		sel.CampaignID, sel.ListingID, sel.Featured, sel.SortOrder)
	if err != nil {
		return fmt.Errorf("select vrbo listing: %w", err)
	}
	return nil
}

func (r *postgresVrboRepo) DeselectForCampaign(ctx context.Context, campaignID, listingID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaign_vrbo_selections WHERE campaign_id = $1 AND listing_id = $2`, campaignID, listingID)
	if err != nil {
		return fmt.Errorf("deselect vrbo listing: %w", err)
	}
	return requireRow(res)
}

func (r *postgresVrboRepo) ListSelections(ctx context.Context, campaignID string) ([]core.CampaignVrboSelection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT campaign_id, listing_id, featured, sort_order FROM campaign_vrbo_selections
		 WHERE campaign_id = $1 ORDER BY sort_order`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list vrbo selections: %w", err)
	}
	defer rows.Close()

	var sels []core.CampaignVrboSelection
	for rows.Next() {
		var s core.CampaignVrboSelection
		if err := rows.Scan(&s.CampaignID, &s.ListingID, &s.Featured, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("scan vrbo selection: %w", err)
		}
		sels = append(sels, s)
	}
	return sels, rows.Err()
}

// postgresPollRepo implements PollRepository.
type postgresPollRepo struct {
	db *sql.DB
}

func (r *postgresPollRepo) Create(ctx context.Context, poll *core.Poll) error {
	poll.DateAdded = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin poll insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO polls (id, question, active, date_added) VALUES ($1, $2, $3, $4)`,
		poll.ID, poll.Question, poll.Active, poll.DateAdded); err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}

	for i, opt := range poll.Options {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_options (id, poll_id, label, votes, sort_order) VALUES ($1, $2, $3, $4, $5)`,
			opt.ID, poll.ID, opt.Label, opt.Votes, i); err != nil {
			return fmt.Errorf("insert poll option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit poll insert: %w", err)
	}
	return nil
}

func (r *postgresPollRepo) Get(ctx context.Context, id string) (*core.Poll, error) {
	var p core.Poll
	err := r.db.QueryRowContext(ctx,
		`SELECT id, question, active, date_added FROM polls WHERE id = $1`, id).
		Scan(&p.ID, &p.Question, &p.Active, &p.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, label, votes FROM poll_options WHERE poll_id = $1 ORDER BY sort_order`, id)
	if err != nil {
		return nil, fmt.Errorf("list poll options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt core.PollOption
		if err := rows.Scan(&opt.ID, &opt.Label, &opt.Votes); err != nil {
			return nil, fmt.Errorf("scan poll option: %w", err)
		}
		p.Options = append(p.Options, opt)
	}
	return &p, rows.Err()
}

func (r *postgresPollRepo) List(ctx context.Context, activeOnly bool) ([]core.Poll, error) {
	query := `SELECT id, question, active, date_added FROM polls`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY date_added DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var ids []string
	var polls []core.Poll
	for rows.Next() {
		var p core.Poll
		if err := rows.Scan(&p.ID, &p.Question, &p.Active, &p.DateAdded); err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return polls, nil
	}

	optRows, err := r.db.QueryContext(ctx,
		`SELECT poll_id, id, label, votes FROM poll_options WHERE poll_id = ANY($1) ORDER BY sort_order`,
		pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("list poll options: %w", err)
	}
	defer optRows.Close()

	byID := make(map[string]*core.Poll, len(polls))
	for i := range polls {
		byID[polls[i].ID] = &polls[i]
	}
	for optRows.Next() {
		var pollID string
		var opt core.PollOption
		if err := optRows.Scan(&pollID, &opt.ID, &opt.Label, &opt.Votes); err != nil {
			return nil, fmt.Errorf("scan poll option: %w", err)
		}
		if p, ok := byID[pollID]; ok {
			p.Options = append(p.Options, opt)
		}
	}
	return polls, optRows.Err()
}

func (r *postgresPollRepo) Update(ctx context.Context, poll *core.Poll) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE polls SET question = $2, active = $3 WHERE id = $1`, poll.ID, poll.Question, poll.Active)
	if err != nil {
		return fmt.Errorf("update poll: %w", err)
	}
	return requireRow(res)
}

func (r *postgresPollRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return requireRow(res)
}

func (r *postgresPollRepo) Vote(ctx context.Context, pollID, optionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE poll_options SET votes = votes + 1 WHERE id = $1 AND poll_id = $2`, optionID, pollID)
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}
	return requireRow(res)
}

// postgresAdRepo implements AdRepository.
type postgresAdRepo struct {
	db *sql.DB
}

const adColumns = `id, advertiser, headline, body, link_url, image_url, paid, active, run_date, checkout_id, date_added`

func scanAd(row interface{ Scan(...any) error }) (*core.Advertisement, error) {
	var a core.Advertisement
	err := row.Scan(&a.ID, &a.Advertiser, &a.Headline, &a.Body, &a.LinkURL, &a.ImageURL,
		&a.Paid, &a.Active, &a.RunDate, &a.CheckoutID, &a.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

func (r *postgresAdRepo) Create(ctx context.Context, ad *core.Advertisement) error {
	ad.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO advertisements (`+adColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ad.ID, ad.Advertiser, ad.Headline, ad.Body, ad.LinkURL, ad.ImageURL,
		ad.Paid, ad.Active, ad.RunDate, ad.CheckoutID, ad.DateAdded)
	if err != nil {
		return fmt.Errorf("insert advertisement: %w", err)
	}
	return nil
}

func (r *postgresAdRepo) Get(ctx context.Context, id string) (*core.Advertisement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM advertisements WHERE id = $1`, id)
	return scanAd(row)
}

func (r *postgresAdRepo) List(ctx context.Context, opts ListOptions) ([]core.Advertisement, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+adColumns+` FROM advertisements ORDER BY date_added DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list advertisements: %w", err)
	}
	defer rows.Close()

	var ads []core.Advertisement
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan advertisement: %w", err)
		}
		ads = append(ads, *a)
	}
	return ads, rows.Err()
}

func (r *postgresAdRepo) ListForDate(ctx context.Context, date string) ([]core.Advertisement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+adColumns+` FROM advertisements
		 WHERE paid AND active AND (run_date = $1 OR run_date = '')
		 ORDER BY date_added`, date)
	if err != nil {
		return nil, fmt.Errorf("list advertisements for date: %w", err)
	}
	defer rows.Close()

	var ads []core.Advertisement
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan advertisement: %w", err)
		}
		ads = append(ads, *a)
	}
	return ads, rows.Err()
}

func (r *postgresAdRepo) Update(ctx context.Context, ad *core.Advertisement) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE advertisements SET advertiser = $2, headline = $3, body = $4, link_url = $5, image_url = $6, paid = $7, active = $8, run_date = $9
		 WHERE id = $1`,
		ad.ID, ad.Advertiser, ad.Headline, ad.Body, ad.LinkURL, ad.ImageURL, ad.Paid, ad.Active, ad.RunDate)
	if err != nil {
		return fmt.Errorf("update advertisement: %w", err)
	}
	return requireRow(res)
}

func (r *postgresAdRepo) MarkPaid(ctx context.Context, checkoutID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE advertisements SET paid = TRUE, active = TRUE WHERE checkout_id = $1`, checkoutID)
	if err != nil {
		return fmt.Errorf("mark advertisement paid: %w", err)
	}
	return requireRow(res)
}

func (r *postgresAdRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM advertisements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete advertisement: %w", err)
	}
	return requireRow(res)
}

// postgresImageRepo implements ImageRepository.
type postgresImageRepo struct {
	db *sql.DB
}

func (r *postgresImageRepo) Create(ctx context.Context, image *core.Image) error {
	image.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO images (id, url, delete_hash, label, date_added) VALUES ($1, $2, $3, $4, $5)`,
		image.ID, image.URL, image.DeleteHash, image.Label, image.DateAdded)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (r *postgresImageRepo) Get(ctx context.Context, id string) (*core.Image, error) {
	var img core.Image
	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, delete_hash, label, date_added FROM images WHERE id = $1`, id).
		Scan(&img.ID, &img.URL, &img.DeleteHash, &img.Label, &img.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &img, nil
}

func (r *postgresImageRepo) List(ctx context.Context, opts ListOptions) ([]core.Image, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, delete_hash, label, date_added FROM images ORDER BY date_added DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []core.Image
	for rows.Next() {
		var img core.Image
		if err := rows.Scan(&img.ID, &img.URL, &img.DeleteHash, &img.Label, &img.DateAdded); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *postgresImageRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return requireRow(res)
}

// postgresRoadWorkRepo implements RoadWorkRepository.
type postgresRoadWorkRepo struct {
	db *sql.DB
}

func (r *postgresRoadWorkRepo) Create(ctx context.Context, item *core.RoadWorkItem) error {
	item.DateAdded = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO road_work (id, road, details, starts_at, ends_at, date_added) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.Road, item.Details, item.StartsAt, item.EndsAt, item.DateAdded)
	if err != nil {
		return fmt.Errorf("insert road work: %w", err)
	}
	return nil
}

func (r *postgresRoadWorkRepo) ListCurrent(ctx context.Context, date string) ([]core.RoadWorkItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, road, details, starts_at, ends_at, date_added FROM road_work
		 WHERE starts_at <= $1::date + INTERVAL '1 day' AND ends_at >= $1::date
		 ORDER BY starts_at`, date)
	if err != nil {
		return nil, fmt.Errorf("list road work: %w", err)
	}
	defer rows.Close()

	var items []core.RoadWorkItem
	for rows.Next() {
		var item core.RoadWorkItem
		if err := rows.Scan(&item.ID, &item.Road, &item.Details, &item.StartsAt, &item.EndsAt, &item.DateAdded); err != nil {
			return nil, fmt.Errorf("scan road work: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *postgresRoadWorkRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM road_work WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete road work: %w", err)
	}
	return requireRow(res)
}

// postgresActivityRepo implements ActivityRepository.
type postgresActivityRepo struct {
	db *sql.DB
}

func (r *postgresActivityRepo) Record(ctx context.Context, activity *core.UserActivity) error {
	activity.OccurredAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_activities (id, campaign_id, user_name, action, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		activity.ID, activity.CampaignID, activity.User, activity.Action, activity.Detail, activity.OccurredAt)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (r *postgresActivityRepo) ListByCampaign(ctx context.Context, campaignID string) ([]core.UserActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, campaign_id, user_name, action, detail, occurred_at FROM user_activities
		 WHERE campaign_id = $1 ORDER BY occurred_at DESC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []core.UserActivity
	for rows.Next() {
		var a core.UserActivity
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.User, &a.Action, &a.Detail, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

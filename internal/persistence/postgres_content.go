package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"gazette/internal/core"
)

// postgresCampaignRepo implements CampaignRepository.
type postgresCampaignRepo struct {
	db *sql.DB
}

const campaignColumns = `id, send_date, status, subject_line, section_order, provider_id, metrics, date_added, date_updated`

func scanCampaign(row interface{ Scan(...any) error }) (*core.Campaign, error) {
	var c core.Campaign
	var metricsJSON []byte
	err := row.Scan(&c.ID, &c.SendDate, &c.Status, &c.SubjectLine,
		pq.Array(&c.SectionOrder), &c.ProviderID, &metricsJSON, &c.DateAdded, &c.DateUpdated)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if len(metricsJSON) > 0 {
		var m core.CampaignMetrics
		if err := json.Unmarshal(metricsJSON, &m); err == nil {
			c.Metrics = &m
		}
	}
	return &c, nil
}

func (r *postgresCampaignRepo) Create(ctx context.Context, campaign *core.Campaign) error {
	now := time.Now().UTC()
	campaign.DateAdded = now
	campaign.DateUpdated = now

	query := `INSERT INTO campaigns (id, send_date, status, subject_line, section_order, provider_id, date_added, date_updated)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, campaign.ID, campaign.SendDate, campaign.Status,
		campaign.SubjectLine, pq.Array(campaign.SectionOrder), campaign.ProviderID,
		campaign.DateAdded, campaign.DateUpdated)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *postgresCampaignRepo) Get(ctx context.Context, id string) (*core.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	return scanCampaign(row)
}

func (r *postgresCampaignRepo) GetBySendDate(ctx context.Context, sendDate string) (*core.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE send_date = $1 ORDER BY date_added DESC LIMIT 1`, sendDate)
	return scanCampaign(row)
}

func (r *postgresCampaignRepo) List(ctx context.Context, opts ListOptions) ([]core.Campaign, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns ORDER BY send_date DESC, date_added DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []core.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (r *postgresCampaignRepo) Update(ctx context.Context, campaign *core.Campaign) error {
	campaign.DateUpdated = time.Now().UTC()
	query := `UPDATE campaigns SET status = $2, subject_line = $3, section_order = $4, provider_id = $5, date_updated = $6
	          WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, campaign.ID, campaign.Status, campaign.SubjectLine,
		pq.Array(campaign.SectionOrder), campaign.ProviderID, campaign.DateUpdated)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return requireRow(res)
}

func (r *postgresCampaignRepo) UpdateStatus(ctx context.Context, id string, status core.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $2, date_updated = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	return requireRow(res)
}

func (r *postgresCampaignRepo) SetSubject(ctx context.Context, id string, subject string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET subject_line = $2, date_updated = NOW() WHERE id = $1`, id, subject)
	if err != nil {
		return fmt.Errorf("set campaign subject: %w", err)
	}
	return requireRow(res)
}

func (r *postgresCampaignRepo) SetProviderID(ctx context.Context, id string, providerID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET provider_id = $2, date_updated = NOW() WHERE id = $1`, id, providerID)
	if err != nil {
		return fmt.Errorf("set campaign provider id: %w", err)
	}
	return requireRow(res)
}

func (r *postgresCampaignRepo) SetMetrics(ctx context.Context, id string, metrics core.CampaignMetrics) error {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET metrics = $2, date_updated = NOW() WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("set campaign metrics: %w", err)
	}
	return requireRow(res)
}

// Delete relies on ON DELETE CASCADE for posts, ratings, articles, selections
// and activities, so no dependent rows survive.
func (r *postgresCampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return requireRow(res)
}

func (r *postgresCampaignRepo) ClaimRun(ctx context.Context, sendDate string, jobType string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (send_date, job_type, started_at) VALUES ($1, $2, NOW())`,
		sendDate, jobType)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAlreadyRan
		}
		return fmt.Errorf("claim pipeline run: %w", err)
	}
	return nil
}

func (r *postgresCampaignRepo) ReleaseRun(ctx context.Context, sendDate string, jobType string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pipeline_runs WHERE send_date = $1 AND job_type = $2`, sendDate, jobType)
	if err != nil {
		return fmt.Errorf("release pipeline run: %w", err)
	}
	return nil
}

// postgresPostRepo implements PostRepository.
type postgresPostRepo struct {
	db *sql.DB
}

const postColumns = `id, campaign_id, feed_id, external_id, title, link, description, content, author, image_url, published, duplicate, date_added`

func scanPost(row interface{ Scan(...any) error }) (*core.Post, error) {
	var p core.Post
	var published sql.NullTime
	err := row.Scan(&p.ID, &p.CampaignID, &p.FeedID, &p.ExternalID, &p.Title, &p.Link,
		&p.Description, &p.Content, &p.Author, &p.ImageURL, &published, &p.Duplicate, &p.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if published.Valid {
		p.Published = published.Time
	}
	return &p, nil
}

// CreateBatch upserts posts on (campaign_id, external_id) so an idempotent
// re-run of the pipeline does not duplicate rows. Returns the number of new
// rows.
func (r *postgresPostRepo) CreateBatch(ctx context.Context, posts []core.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin post batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO rss_posts (` + postColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          ON CONFLICT (campaign_id, external_id) DO NOTHING`

	created := 0
	for _, p := range posts {
		var published any
		if !p.Published.IsZero() {
			published = p.Published
		}
		res, err := tx.ExecContext(ctx, query, p.ID, p.CampaignID, p.FeedID, p.ExternalID,
			p.Title, p.Link, p.Description, p.Content, p.Author, p.ImageURL,
			published, p.Duplicate, p.DateAdded)
		if err != nil {
			return 0, fmt.Errorf("insert post %s: %w", p.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit post batch: %w", err)
	}
	return created, nil
}

func (r *postgresPostRepo) Get(ctx context.Context, id string) (*core.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM rss_posts WHERE id = $1`, id)
	return scanPost(row)
}

func (r *postgresPostRepo) ListByCampaign(ctx context.Context, campaignID string, uniqueOnly bool) ([]core.Post, error) {
	query := `SELECT ` + postColumns + ` FROM rss_posts WHERE campaign_id = $1`
	if uniqueOnly {
		query += ` AND NOT duplicate`
	}
	query += ` ORDER BY published DESC NULLS LAST, date_added`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []core.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (r *postgresPostRepo) MarkDuplicates(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE rss_posts SET duplicate = TRUE WHERE id = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		return fmt.Errorf("mark duplicates: %w", err)
	}
	return nil
}

// postgresRatingRepo implements RatingRepository.
type postgresRatingRepo struct {
	db *sql.DB
}

const ratingColumns = `post_id, interest, local_relevance, community_impact, regional_bonus, total_score, reasoning, date_rated`

func scanRating(row interface{ Scan(...any) error }) (*core.Rating, error) {
	var rt core.Rating
	err := row.Scan(&rt.PostID, &rt.Interest, &rt.LocalRelevance, &rt.CommunityImpact,
		&rt.RegionalBonus, &rt.TotalScore, &rt.Reasoning, &rt.DateRated)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &rt, nil
}

func (r *postgresRatingRepo) Create(ctx context.Context, rating *core.Rating) error {
	query := `INSERT INTO ratings (` + ratingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, rating.PostID, rating.Interest, rating.LocalRelevance,
		rating.CommunityImpact, rating.RegionalBonus, rating.TotalScore, rating.Reasoning, rating.DateRated)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

func (r *postgresRatingRepo) GetByPostID(ctx context.Context, postID string) (*core.Rating, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE post_id = $1`, postID)
	return scanRating(row)
}

func (r *postgresRatingRepo) ListByCampaign(ctx context.Context, campaignID string) ([]core.Rating, error) {
	query := `SELECT r.post_id, r.interest, r.local_relevance, r.community_impact, r.regional_bonus, r.total_score, r.reasoning, r.date_rated
	          FROM ratings r JOIN rss_posts p ON p.id = r.post_id
	          WHERE p.campaign_id = $1 ORDER BY r.total_score DESC`
	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var ratings []core.Rating
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, *rt)
	}
	return ratings, rows.Err()
}

// postgresArticleRepo implements ArticleRepository.
type postgresArticleRepo struct {
	db *sql.DB
}

const articleColumns = `id, campaign_id, post_id, headline, content, word_count, total_score, rank, is_active, skipped, date_added`

func scanArticle(row interface{ Scan(...any) error }) (*core.Article, error) {
	var a core.Article
	var rank sql.NullInt64
	err := row.Scan(&a.ID, &a.CampaignID, &a.PostID, &a.Headline, &a.Content,
		&a.WordCount, &a.TotalScore, &rank, &a.IsActive, &a.Skipped, &a.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if rank.Valid {
		n := int(rank.Int64)
		a.Rank = &n
	}
	return &a, nil
}

func (r *postgresArticleRepo) Create(ctx context.Context, article *core.Article) error {
	article.DateAdded = time.Now().UTC()
	query := `INSERT INTO articles (` + articleColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query, article.ID, article.CampaignID, article.PostID,
		article.Headline, article.Content, article.WordCount, article.TotalScore,
		nullableInt(article.Rank), article.IsActive, article.Skipped, article.DateAdded)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (r *postgresArticleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	return scanArticle(row)
}

func (r *postgresArticleRepo) ListByCampaign(ctx context.Context, campaignID string) ([]core.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE campaign_id = $1
		 ORDER BY rank NULLS LAST, total_score DESC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func (r *postgresArticleRepo) Update(ctx context.Context, article *core.Article) error {
	query := `UPDATE articles SET headline = $2, content = $3, word_count = $4, rank = $5, is_active = $6, skipped = $7
	          WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, article.ID, article.Headline, article.Content,
		article.WordCount, nullableInt(article.Rank), article.IsActive, article.Skipped)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	return requireRow(res)
}

// UpdateRanks applies a reorder in one transaction so readers never observe a
// half-applied ordering.
func (r *postgresArticleRepo) UpdateRanks(ctx context.Context, updates []RankUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rank update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE articles SET rank = $2 WHERE id = $1`, u.ArticleID, u.Rank); err != nil {
			return fmt.Errorf("update rank for %s: %w", u.ArticleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rank update: %w", err)
	}
	return nil
}

func (r *postgresArticleRepo) SetSkipped(ctx context.Context, id string, skipped bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE articles SET skipped = $2 WHERE id = $1`, id, skipped)
	if err != nil {
		return fmt.Errorf("set article skipped: %w", err)
	}
	return requireRow(res)
}

func (r *postgresArticleRepo) SetActive(ctx context.Context, id string, active bool, rank *int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE articles SET is_active = $2, rank = $3 WHERE id = $1`, id, active, nullableInt(rank))
	if err != nil {
		return fmt.Errorf("set article active: %w", err)
	}
	return requireRow(res)
}

func (r *postgresArticleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return requireRow(res)
}

// postgresManualArticleRepo implements ManualArticleRepository.
type postgresManualArticleRepo struct {
	db *sql.DB
}

const manualColumns = `id, campaign_id, headline, content, image_url, rank, is_active, skipped, author, date_added`

func scanManual(row interface{ Scan(...any) error }) (*core.ManualArticle, error) {
	var m core.ManualArticle
	var rank sql.NullInt64
	err := row.Scan(&m.ID, &m.CampaignID, &m.Headline, &m.Content, &m.ImageURL,
		&rank, &m.IsActive, &m.Skipped, &m.Author, &m.DateAdded)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if rank.Valid {
		n := int(rank.Int64)
		m.Rank = &n
	}
	return &m, nil
}

func (r *postgresManualArticleRepo) Create(ctx context.Context, article *core.ManualArticle) error {
	article.DateAdded = time.Now().UTC()
	query := `INSERT INTO manual_articles (` + manualColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query, article.ID, article.CampaignID, article.Headline,
		article.Content, article.ImageURL, nullableInt(article.Rank), article.IsActive,
		article.Skipped, article.Author, article.DateAdded)
	if err != nil {
		return fmt.Errorf("insert manual article: %w", err)
	}
	return nil
}

func (r *postgresManualArticleRepo) Get(ctx context.Context, id string) (*core.ManualArticle, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+manualColumns+` FROM manual_articles WHERE id = $1`, id)
	return scanManual(row)
}

func (r *postgresManualArticleRepo) ListByCampaign(ctx context.Context, campaignID string) ([]core.ManualArticle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+manualColumns+` FROM manual_articles WHERE campaign_id = $1 ORDER BY rank NULLS LAST, date_added`,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("list manual articles: %w", err)
	}
	defer rows.Close()

	var articles []core.ManualArticle
	for rows.Next() {
		m, err := scanManual(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manual article: %w", err)
		}
		articles = append(articles, *m)
	}
	return articles, rows.Err()
}

func (r *postgresManualArticleRepo) Update(ctx context.Context, article *core.ManualArticle) error {
	query := `UPDATE manual_articles SET headline = $2, content = $3, image_url = $4, rank = $5, is_active = $6, skipped = $7
	          WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, article.ID, article.Headline, article.Content,
		article.ImageURL, nullableInt(article.Rank), article.IsActive, article.Skipped)
	if err != nil {
		return fmt.Errorf("update manual article: %w", err)
	}
	return requireRow(res)
}

func (r *postgresManualArticleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM manual_articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete manual article: %w", err)
	}
	return requireRow(res)
}

// nullableInt converts an optional rank for SQL parameters.
func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

// requireRow turns a zero-row update/delete into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // Postgres driver
)

// psql builds queries with Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresDB implements the Database interface for PostgreSQL.
type PostgresDB struct {
	db *sql.DB

	feeds      FeedRepository
	campaigns  CampaignRepository
	posts      PostRepository
	ratings    RatingRepository
	articles   ArticleRepository
	manual     ManualArticleRepository
	events     EventRepository
	dining     DiningRepository
	vrbo       VrboRepository
	polls      PollRepository
	ads        AdRepository
	images     ImageRepository
	roadwork   RoadWorkRepository
	activities ActivityRepository
}

// NewPostgresDB opens a PostgreSQL connection pool and wires the repositories.
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresDB{db: db}
	pg.feeds = &postgresFeedRepo{db: db}
	pg.campaigns = &postgresCampaignRepo{db: db}
	pg.posts = &postgresPostRepo{db: db}
	pg.ratings = &postgresRatingRepo{db: db}
	pg.articles = &postgresArticleRepo{db: db}
	pg.manual = &postgresManualArticleRepo{db: db}
	pg.events = &postgresEventRepo{db: db}
	pg.dining = &postgresDiningRepo{db: db}
	pg.vrbo = &postgresVrboRepo{db: db}
	pg.polls = &postgresPollRepo{db: db}
	pg.ads = &postgresAdRepo{db: db}
	pg.images = &postgresImageRepo{db: db}
	pg.roadwork = &postgresRoadWorkRepo{db: db}
	pg.activities = &postgresActivityRepo{db: db}

	return pg, nil
}

func (p *PostgresDB) Feeds() FeedRepository                   { return p.feeds }
func (p *PostgresDB) Campaigns() CampaignRepository           { return p.campaigns }
func (p *PostgresDB) Posts() PostRepository                   { return p.posts }
func (p *PostgresDB) Ratings() RatingRepository               { return p.ratings }
func (p *PostgresDB) Articles() ArticleRepository             { return p.articles }
func (p *PostgresDB) ManualArticles() ManualArticleRepository { return p.manual }
func (p *PostgresDB) Events() EventRepository                 { return p.events }
func (p *PostgresDB) Dining() DiningRepository                { return p.dining }
func (p *PostgresDB) Vrbo() VrboRepository                    { return p.vrbo }
func (p *PostgresDB) Polls() PollRepository                   { return p.polls }
func (p *PostgresDB) Ads() AdRepository                       { return p.ads }
func (p *PostgresDB) Images() ImageRepository                 { return p.images }
func (p *PostgresDB) RoadWork() RoadWorkRepository            { return p.roadwork }
func (p *PostgresDB) Activities() ActivityRepository          { return p.activities }

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// wrapNotFound converts sql.ErrNoRows into the package sentinel.
func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

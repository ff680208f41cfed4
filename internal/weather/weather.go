// Package weather fetches the daily forecast and caches it per send date.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"

	"gazette/internal/config"
	"gazette/internal/core"
	"gazette/internal/logger"
)

// Service fetches forecasts from the weather API. When a redis client is
// provided, results are cached under the send date so every preview of the
// same campaign sees the same forecast until the TTL expires.
type Service struct {
	baseURL    string
	apiKey     string
	location   string
	httpClient *http.Client
	cache      *redis.Client
	ttl        time.Duration
	log        *slog.Logger
}

func NewService(cfg config.Weather, cache *redis.Client, ttl time.Duration) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		location:   cfg.Location,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		ttl:        ttl,
		log:        logger.Get(),
	}
}

// NewCacheClient builds the redis client from configuration, or nil when the
// cache is disabled.
func NewCacheClient(cfg config.Cache) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type apiDay struct {
	Date    string  `json:"date"`
	Summary string  `json:"summary"`
	HighF   float64 `json:"high_f"`
	LowF    float64 `json:"low_f"`
	SnowIn  float64 `json:"snow_in"`
	Icon    string  `json:"icon"`
}

type apiResponse struct {
	Days []apiDay `json:"days"`
}

// Forecast returns the forecast cards for the send date (the date itself plus
// the following days the API reports).
func (s *Service) Forecast(ctx context.Context, date string) ([]core.WeatherForecast, error) {
	if cached, ok := s.fromCache(ctx, date); ok {
		return cached, nil
	}

	forecasts, err := s.fetch(ctx, date)
	if err != nil {
		return nil, err
	}

	s.store(ctx, date, forecasts)
	return forecasts, nil
}

func cacheKey(date string) string {
	return "weather:" + date
}

func (s *Service) fromCache(ctx context.Context, date string) ([]core.WeatherForecast, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey(date)).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("Weather cache read failed", "error", err)
		}
		return nil, false
	}
	var forecasts []core.WeatherForecast
	if err := json.Unmarshal([]byte(raw), &forecasts); err != nil {
		s.log.Warn("Discarding malformed weather cache entry", "date", date)
		return nil, false
	}
	return forecasts, true
}

func (s *Service) store(ctx context.Context, date string, forecasts []core.WeatherForecast) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(forecasts)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(date), payload, s.ttl).Err(); err != nil {
		s.log.Warn("Weather cache write failed", "error", err)
	}
}

func (s *Service) fetch(ctx context.Context, date string) ([]core.WeatherForecast, error) {
	endpoint, err := url.Parse(s.baseURL + "/forecast")
	if err != nil {
		return nil, fmt.Errorf("bad weather base url: %w", err)
	}
	q := endpoint.Query()
	q.Set("location", s.location)
	q.Set("date", date)
	q.Set("key", s.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("weather API returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	forecasts := make([]core.WeatherForecast, 0, len(parsed.Days))
	for _, day := range parsed.Days {
		forecasts = append(forecasts, core.WeatherForecast{
			Date:      day.Date,
			Summary:   day.Summary,
			HighTempF: day.HighF,
			LowTempF:  day.LowF,
			SnowIn:    day.SnowIn,
			Icon:      day.Icon,
		})
	}
	return forecasts, nil
}

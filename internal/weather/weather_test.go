package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gazette/internal/config"
)

const sampleForecast = `{"days": [
  {"date": "2026-08-29", "summary": "Sunny", "high_f": 74, "low_f": 48, "snow_in": 0, "icon": "sun"},
  {"date": "2026-08-30", "summary": "Afternoon storms", "high_f": 68, "low_f": 45, "snow_in": 0, "icon": "storm"}
]}`

func testService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewService(config.Weather{
		BaseURL:  srv.URL,
		APIKey:   "k",
		Location: "81611",
		Timeout:  5 * time.Second,
	}, nil, 0)
}

func TestForecastParsesDays(t *testing.T) {
	var gotQuery map[string]string
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"location": r.URL.Query().Get("location"),
			"date":     r.URL.Query().Get("date"),
			"key":      r.URL.Query().Get("key"),
		}
		_, _ = w.Write([]byte(sampleForecast))
	})

	forecasts, err := svc.Forecast(context.Background(), "2026-08-29")
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(forecasts) != 2 {
		t.Fatalf("got %d days, want 2", len(forecasts))
	}
	if forecasts[0].Summary != "Sunny" || forecasts[0].HighTempF != 74 {
		t.Errorf("first day = %+v", forecasts[0])
	}
	if gotQuery["location"] != "81611" || gotQuery["date"] != "2026-08-29" || gotQuery["key"] != "k" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestForecastAPIError(t *testing.T) {
	svc := testService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream down"))
	})

	if _, err := svc.Forecast(context.Background(), "2026-08-29"); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestNewCacheClientDisabled(t *testing.T) {
	if c := NewCacheClient(config.Cache{Enabled: false}); c != nil {
		t.Error("disabled cache should return nil client")
	}
	if c := NewCacheClient(config.Cache{Enabled: true, Addr: "localhost:6379"}); c == nil {
		t.Error("enabled cache should return a client")
	}
}

// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Auth     Auth     `mapstructure:"auth"`
	AI       AI       `mapstructure:"ai"`
	Feeds    Feeds    `mapstructure:"feeds"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Mailer   Mailer   `mapstructure:"mailer"`
	Weather  Weather  `mapstructure:"weather"`
	Images   Images   `mapstructure:"images"`
	Payments Payments `mapstructure:"payments"`
	Cache    Cache    `mapstructure:"cache"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	ConfigFile string `mapstructure:"config_file"`
	Timezone   string `mapstructure:"timezone"`
}

// Server holds HTTP server configuration
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORS          `mapstructure:"cors"`
}

// CORS holds CORS configuration for the dashboard origin
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Database holds Postgres connection configuration
type Database struct {
	ConnectionString string `mapstructure:"connection_string"`
}

// Auth holds session and cron authentication configuration
type Auth struct {
	SessionSecret     string        `mapstructure:"session_secret"` // HMAC key for session JWTs
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	DashboardPassword string        `mapstructure:"dashboard_password"`
	CronToken         string        `mapstructure:"cron_token"` // Shared secret for scheduler-triggered routes
}

// AI holds Gemini configuration
type AI struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature"`
	RequestsPerMin int     `mapstructure:"requests_per_min"`
}

// Feeds holds RSS fetching configuration
type Feeds struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxItems  int           `mapstructure:"max_items_per_feed"`
}

// Pipeline holds nightly batch configuration
type Pipeline struct {
	TopArticleCount int           `mapstructure:"top_article_count"` // Articles marked active
	RewriteCount    int           `mapstructure:"rewrite_count"`     // Posts sent to the writer
	ScoreBatchSize  int           `mapstructure:"score_batch_size"`  // Parallel scoring calls per batch
	BatchDelay      time.Duration `mapstructure:"batch_delay"`       // Pause between scoring batches
	RegionalTowns   []string      `mapstructure:"regional_towns"`    // Core-area names for the rating bonus
	RegionalBonus   int           `mapstructure:"regional_bonus"`
}

// Mailer holds email-delivery provider configuration
type Mailer struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	ListID    string        `mapstructure:"list_id"`
	FromName  string        `mapstructure:"from_name"`
	FromEmail string        `mapstructure:"from_email"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Weather holds forecast API configuration
type Weather struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Location string        `mapstructure:"location"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Images holds image-hosting API configuration
type Images struct {
	BaseURL  string        `mapstructure:"base_url"`
	ClientID string        `mapstructure:"client_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Payments holds checkout provider configuration
type Payments struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	SuccessURL    string        `mapstructure:"success_url"`
	CancelURL     string        `mapstructure:"cancel_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Cache holds redis cache configuration
type Cache struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

var globalConfig *Config

// Load loads the configuration from file, environment and defaults.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".gazette")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.SetEnvPrefix("GAZETTE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := validate(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.timezone", "America/Denver")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "10m") // pipeline trigger runs inside a request
	viper.SetDefault("server.shutdown_timeout", "20s")
	viper.SetDefault("server.cors.enabled", true)

	viper.SetDefault("auth.session_ttl", "720h")

	viper.SetDefault("ai.model", "gemini-2.5-flash")
	viper.SetDefault("ai.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.requests_per_min", 60)

	viper.SetDefault("feeds.user_agent", "Gazette/1.0")
	viper.SetDefault("feeds.timeout", "30s")
	viper.SetDefault("feeds.max_items_per_feed", 50)

	viper.SetDefault("pipeline.top_article_count", 5)
	viper.SetDefault("pipeline.rewrite_count", 10)
	viper.SetDefault("pipeline.score_batch_size", 4)
	viper.SetDefault("pipeline.batch_delay", "2s")
	viper.SetDefault("pipeline.regional_bonus", 5)

	viper.SetDefault("mailer.timeout", "30s")
	viper.SetDefault("weather.timeout", "15s")
	viper.SetDefault("images.timeout", "30s")
	viper.SetDefault("payments.timeout", "30s")

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.addr", "localhost:6379")
	viper.SetDefault("cache.ttl", "12h")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys("database.connection_string", []string{"DATABASE_URL"})
	bindEnvKeys("auth.session_secret", []string{"SESSION_SECRET"})
	bindEnvKeys("auth.dashboard_password", []string{"DASHBOARD_PASSWORD"})
	bindEnvKeys("auth.cron_token", []string{"CRON_TOKEN"})
	bindEnvKeys("mailer.api_key", []string{"MAILER_API_KEY"})
	bindEnvKeys("weather.api_key", []string{"WEATHER_API_KEY"})
	bindEnvKeys("images.client_id", []string{"IMAGE_HOST_CLIENT_ID"})
	bindEnvKeys("payments.api_key", []string{"PAYMENTS_API_KEY"})
	bindEnvKeys("payments.webhook_secret", []string{"PAYMENTS_WEBHOOK_SECRET"})
	bindEnvKeys("cache.password", []string{"REDIS_PASSWORD"})
}

func bindEnvKeys(configKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if err := viper.BindEnv(configKey, envKey); err != nil {
			fmt.Printf("Warning: failed to bind %s: %v\n", envKey, err)
		}
	}
}

func validate(config *Config) error {
	if config.Pipeline.TopArticleCount <= 0 {
		return fmt.Errorf("pipeline.top_article_count must be positive")
	}
	if config.Pipeline.RewriteCount < config.Pipeline.TopArticleCount {
		return fmt.Errorf("pipeline.rewrite_count must be at least pipeline.top_article_count")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", config.Server.Port)
	}
	return nil
}

// Reset clears the cached configuration. Only used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

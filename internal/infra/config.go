package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSupabase = "supabase"
)

// Template sources.
const (
	TemplateSourcePostgres = "postgres"
	TemplateSourceFile     = "file"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	PublicBaseURL      string
	DatabaseURL        string
	StoreBackend       string
	SupabaseURL        string
	SupabaseServiceKey string
	JWTSecret          string
	CORSAllowedOrigins []string
	GeoIPDBPath        string
	RedisAddr          string
	RedisPassword      string
	RedisChannel       string
	StoragePath        string
	StorageBaseURL     string

	TemplateSource      string
	TemplateCatalogPath string
	TemplateCacheTTL    time.Duration

	AzureEndpoint       string
	AzureAPIKey         string
	GeminiAPIKey        string
	GeminiModel         string
	ReplicateAPIToken   string
	ReplicateBaseURL    string
	PollinationsBaseURL string

	ProviderRatePerMin int
	PollInterval       time.Duration
	PollMaxAttempts    int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                port,
		PublicBaseURL:       strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
		SupabaseURL:         os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:  os.Getenv("SUPABASE_SERVICE_KEY"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins:  splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisChannel:        getEnv("REDIS_CHANNEL", "generation-status"),
		StoragePath:         os.Getenv("STORAGE_PATH"),
		StorageBaseURL:      getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		TemplateSource:      strings.ToLower(getEnv("TEMPLATE_SOURCE", TemplateSourcePostgres)),
		TemplateCatalogPath: os.Getenv("TEMPLATE_CATALOG_PATH"),
		TemplateCacheTTL:    time.Second * time.Duration(getEnvInt("TEMPLATE_CACHE_TTL_SECONDS", 300)),
		AzureEndpoint:       os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIKey:         os.Getenv("AZURE_OPENAI_API_KEY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash-preview-image-generation"),
		ReplicateAPIToken:   os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:    getEnv("REPLICATE_BASE_URL", "https://api.replicate.com"),
		PollinationsBaseURL: getEnv("POLLINATIONS_BASE_URL", "https://image.pollinations.ai"),
		ProviderRatePerMin:  getEnvInt("PROVIDER_RATE_PER_MINUTE", 60),
		PollInterval:        time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollMaxAttempts:     getEnvInt("POLL_MAX_ATTEMPTS", 18),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreBackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase store")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.TemplateSource {
	case TemplateSourcePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres templates")
		}
	case TemplateSourceFile:
		if cfg.TemplateCatalogPath == "" {
			return nil, fmt.Errorf("TEMPLATE_CATALOG_PATH is required for file templates")
		}
	default:
		return nil, fmt.Errorf("unsupported TEMPLATE_SOURCE %q", cfg.TemplateSource)
	}

	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL must be an absolute url")
	}
	if cfg.PollInterval <= 0 || cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS and POLL_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// CallbackURL returns the webhook address for a provider and job.
func (c *Config) CallbackURL(provider, jobID string) string {
	return c.PublicBaseURL + "/v1/webhooks/" + url.PathEscape(provider) + "?id=" + url.QueryEscape(jobID)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Priorities and escalation roles recognised by the window table. Kept as
// plain strings here so the config package stays free of domain imports.
var (
	Priorities      = []string{"low", "medium", "high", "urgent"}
	EscalationRoles = []string{"field_staff", "supervisor", "commissioner"}
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Escalation    EscalationConfig
	Resolution    ResolutionConfig
	Notifications NotificationsConfig
	Classifier    ClassifierConfig
	RateLimit     RateLimitConfig
	Analytics     AnalyticsConfig
	Photos        PhotosConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EscalationConfig holds the timing policy for the assignment/escalation
// engine. Windows maps priority -> role -> time allowed at that role before
// the sweep escalates the issue. Operators tune these without code changes:
// a testing deployment runs minute-scale windows, production runs hours.
type EscalationConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	GraceWindow   time.Duration
	Windows       map[string]map[string]time.Duration
}

// Window returns the configured duration for a (priority, role) pair,
// falling back to the medium/field_staff entry for unknown keys.
func (c EscalationConfig) Window(priority, role string) time.Duration {
	if byRole, ok := c.Windows[priority]; ok {
		if d, ok := byRole[role]; ok && d > 0 {
			return d
		}
	}
	if d, ok := c.Windows["medium"]["field_staff"]; ok && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// ResolutionConfig governs the resolve gate.
type ResolutionConfig struct {
	GeofenceMaxMeters float64
	PointBonus        int
}

// NotificationsConfig sizes the dispatch worker pool.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ClassifierConfig points at the external report classifier.
type ClassifierConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RateLimitConfig throttles citizen issue submissions.
type RateLimitConfig struct {
	IssuesPerWindow int
	Window          time.Duration
}

// PhotosConfig governs local photo storage and signed download URLs.
type PhotosConfig struct {
	Dir      string
	Secret   string
	URLTTL   time.Duration
	MaxBytes int64
}

// AnalyticsConfig governs cache behaviour for analytics endpoints.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Escalation = EscalationConfig{
		Enabled:       v.GetBool("ESCALATION_ENABLED"),
		SweepInterval: parseDuration(v.GetString("ESCALATION_SWEEP_INTERVAL"), 30*time.Minute),
		GraceWindow:   parseDuration(v.GetString("ESCALATION_GRACE_WINDOW"), time.Hour),
		Windows:       loadWindows(v),
	}

	cfg.Resolution = ResolutionConfig{
		GeofenceMaxMeters: v.GetFloat64("RESOLUTION_GEOFENCE_METERS"),
		PointBonus:        v.GetInt("RESOLUTION_POINT_BONUS"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Classifier = ClassifierConfig{
		BaseURL: v.GetString("CLASSIFIER_BASE_URL"),
		Timeout: parseDuration(v.GetString("CLASSIFIER_TIMEOUT"), 5*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		IssuesPerWindow: v.GetInt("RATE_LIMIT_ISSUES"),
		Window:          parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Hour),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:  v.GetBool("ENABLE_ANALYTICS"),
		CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Photos = PhotosConfig{
		Dir:      v.GetString("PHOTO_DIR"),
		Secret:   v.GetString("PHOTO_URL_SECRET"),
		URLTTL:   parseDuration(v.GetString("PHOTO_URL_TTL"), 24*time.Hour),
		MaxBytes: v.GetInt64("PHOTO_MAX_BYTES"),
	}

	return cfg, nil
}

// loadWindows reads the (priority, role) escalation window table from keys
// of the form ESCALATION_WINDOW_<PRIORITY>_<ROLE>.
func loadWindows(v *viper.Viper) map[string]map[string]time.Duration {
	windows := make(map[string]map[string]time.Duration, len(Priorities))
	for _, priority := range Priorities {
		byRole := make(map[string]time.Duration, len(EscalationRoles))
		for _, role := range EscalationRoles {
			key := windowKey(priority, role)
			byRole[role] = parseDuration(v.GetString(key), defaultWindows[priority][role])
		}
		windows[priority] = byRole
	}
	return windows
}

func windowKey(priority, role string) string {
	return fmt.Sprintf("ESCALATION_WINDOW_%s_%s",
		strings.ToUpper(priority), strings.ToUpper(role))
}

// defaultWindows is the production timing table: higher priority and earlier
// roles get shorter windows.
var defaultWindows = map[string]map[string]time.Duration{
	"urgent": {
		"field_staff":  2 * time.Hour,
		"supervisor":   4 * time.Hour,
		"commissioner": 8 * time.Hour,
	},
	"high": {
		"field_staff":  8 * time.Hour,
		"supervisor":   12 * time.Hour,
		"commissioner": 24 * time.Hour,
	},
	"medium": {
		"field_staff":  24 * time.Hour,
		"supervisor":   48 * time.Hour,
		"commissioner": 72 * time.Hour,
	},
	"low": {
		"field_staff":  72 * time.Hour,
		"supervisor":   96 * time.Hour,
		"commissioner": 120 * time.Hour,
	},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "civicgrid")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "civicgrid-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ESCALATION_ENABLED", true)
	v.SetDefault("ESCALATION_SWEEP_INTERVAL", "30m")
	v.SetDefault("ESCALATION_GRACE_WINDOW", "1h")
	for _, priority := range Priorities {
		for _, role := range EscalationRoles {
			v.SetDefault(windowKey(priority, role), defaultWindows[priority][role].String())
		}
	}

	v.SetDefault("RESOLUTION_GEOFENCE_METERS", 100.0)
	v.SetDefault("RESOLUTION_POINT_BONUS", 50)

	v.SetDefault("NOTIFICATION_WORKERS", 4)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "5s")

	v.SetDefault("CLASSIFIER_BASE_URL", "")
	v.SetDefault("CLASSIFIER_TIMEOUT", "5s")

	v.SetDefault("RATE_LIMIT_ISSUES", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1h")

	v.SetDefault("ENABLE_ANALYTICS", true)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")

	v.SetDefault("PHOTO_DIR", "./photos")
	v.SetDefault("PHOTO_URL_SECRET", "dev_secret")
	v.SetDefault("PHOTO_URL_TTL", "24h")
	v.SetDefault("PHOTO_MAX_BYTES", 5<<20)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

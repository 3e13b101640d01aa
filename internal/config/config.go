package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Tracking  TrackingConfig
	MinIO     MinIOConfig
	Sessions  SessionsConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig: an empty URI runs the service on in-memory stores.
type MongoDBConfig struct {
	URI           string
	Database      string
	Timeout       time.Duration
	ChangeStreams bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
	// AllowInsecure accepts unsigned tokens. Integration setups only.
	AllowInsecure bool
}

// Issuer is the OIDC issuer URL derived from URL and Realm.
func (k KeycloakConfig) Issuer() string {
	if k.URL == "" {
		return ""
	}
	if k.Realm == "" {
		return k.URL
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// Allocator modes.
const (
	AllocatorScan  = "scan"
	AllocatorRedis = "redis"
)

type TrackingConfig struct {
	// DispatchRole is the identity-provider role that gets dispatch-format
	// reference numbers.
	DispatchRole      string
	AllocatorMode     string
	SummarizerURL     string
	SummarizerTimeout time.Duration
	FeedChannel       string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

type SessionsConfig struct {
	TTL time.Duration
}

// LoadConfig loads configuration from environment variables and an
// optional .env file (ENV_FILE, default ".env").
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "doctrack")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("TRACKING_DISPATCH_ROLE", "dispatch")
	v.SetDefault("TRACKING_ALLOCATOR", AllocatorScan)
	v.SetDefault("TRACKING_SUMMARIZER_TIMEOUT_MS", 3000)
	v.SetDefault("TRACKING_FEED_CHANNEL", "doctrack:feed")
	v.SetDefault("MINIO_BUCKET", "doctrack-archive")
	v.SetDefault("MINIO_PREFIX", "archive/")
	v.SetDefault("SESSION_TTL_MINUTES", 720)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:           v.GetString("MONGODB_URI"),
			Database:      v.GetString("MONGODB_DATABASE"),
			Timeout:       time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			ChangeStreams: v.GetBool("MONGODB_CHANGE_STREAMS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:           v.GetString("KEYCLOAK_URL"),
			Realm:         v.GetString("KEYCLOAK_REALM"),
			ClientID:      v.GetString("KEYCLOAK_CLIENT_ID"),
			AllowInsecure: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Tracking: TrackingConfig{
			DispatchRole:      v.GetString("TRACKING_DISPATCH_ROLE"),
			AllocatorMode:     strings.ToLower(v.GetString("TRACKING_ALLOCATOR")),
			SummarizerURL:     v.GetString("TRACKING_SUMMARIZER_URL"),
			SummarizerTimeout: time.Duration(v.GetInt("TRACKING_SUMMARIZER_TIMEOUT_MS")) * time.Millisecond,
			FeedChannel:       v.GetString("TRACKING_FEED_CHANNEL"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			Prefix:    v.GetString("MINIO_PREFIX"),
		},
		Sessions: SessionsConfig{
			TTL: time.Duration(v.GetInt("SESSION_TTL_MINUTES")) * time.Minute,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Tracking.AllocatorMode {
	case AllocatorScan:
	case AllocatorRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("TRACKING_ALLOCATOR=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unknown TRACKING_ALLOCATOR %q (want scan or redis)", c.Tracking.AllocatorMode)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	return nil
}

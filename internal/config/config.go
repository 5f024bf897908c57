package config

import (
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/logger"
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
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
	Search    SearchConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	FrontendURL  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
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
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type AuthConfig struct {
	BcryptCost     int
	ResetTokenTTL  time.Duration
	SeedSampleDocs bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// RealtimeConfig tunes the change broadcast channel.
type RealtimeConfig struct {
	QueueSize      int
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	UseRedisBridge bool
}

type SearchConfig struct {
	MeiliURL    string
	MeiliAPIKey string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("MONGODB_DATABASE", "collabdocs")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("RESET_TOKEN_TTL", 10)
	v.SetDefault("SEED_SAMPLE_DOCUMENTS", true)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("REALTIME_QUEUE_SIZE", 64)
	v.SetDefault("REALTIME_PING_INTERVAL", 30)
	v.SetDefault("REALTIME_READ_TIMEOUT", 60)
	v.SetDefault("REALTIME_WRITE_TIMEOUT", 10)
	v.SetDefault("REALTIME_MAX_MESSAGE_BYTES", 1<<20)
	v.SetDefault("REALTIME_REDIS_BRIDGE", false)
	v.SetDefault("MINIO_BUCKET", "collabdocs")
	v.SetDefault("MINIO_URL_EXPIRY", 15)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			FrontendURL:  v.GetString("FRONTEND_URL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:          v.GetString("KEYCLOAK_URL"),
			Realm:        v.GetString("KEYCLOAK_REALM"),
			ClientID:     v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: v.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		Auth: AuthConfig{
			BcryptCost:     v.GetInt("BCRYPT_COST"),
			ResetTokenTTL:  time.Duration(v.GetInt("RESET_TOKEN_TTL")) * time.Minute,
			SeedSampleDocs: v.GetBool("SEED_SAMPLE_DOCUMENTS"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Realtime: RealtimeConfig{
			QueueSize:      v.GetInt("REALTIME_QUEUE_SIZE"),
			PingInterval:   time.Duration(v.GetInt("REALTIME_PING_INTERVAL")) * time.Second,
			ReadTimeout:    time.Duration(v.GetInt("REALTIME_READ_TIMEOUT")) * time.Second,
			WriteTimeout:   time.Duration(v.GetInt("REALTIME_WRITE_TIMEOUT")) * time.Second,
			MaxMessageSize: v.GetInt64("REALTIME_MAX_MESSAGE_BYTES"),
			UseRedisBridge: v.GetBool("REALTIME_REDIS_BRIDGE"),
		},
		Search: SearchConfig{
			MeiliURL:    v.GetString("MEILI_URL"),
			MeiliAPIKey: v.GetString("MEILI_API_KEY"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			URLExpiry: time.Duration(v.GetInt("MINIO_URL_EXPIRY")) * time.Minute,
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warnf("JWT_SECRET is not set; set a secure value in production")
	}
	if cfg.Realtime.QueueSize <= 0 {
		cfg.Realtime.QueueSize = 64
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

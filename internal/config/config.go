package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string

	// Registration
	AdminRegistrationCode string

	// Listing rules
	MinExpiryHours        int
	MaxExpiryHours        int
	PointsPerListing      int
	PointsPerClaim        int
	MinDescriptionLength  int
	DefaultMaxDistanceKm  float64
	ExpiredRetentionHours int

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseS3URL     string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// App Defaults
	AppName       string
	StatsCacheTTL time.Duration

	// Fallback coordinate for the static location provider. Optional; when
	// unset the provider reports location unavailable.
	DefaultLatitude  float64
	DefaultLongitude float64
	HasDefaultCoords bool

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "feedr")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.AdminRegistrationCode = getEnv("ADMIN_REGISTRATION_CODE", "")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@feedr.example.com")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseS3URL = getEnv("IMAGE_BASE_S3_URL", "")
	cfg.AppName = getEnv("APP_NAME", "Feedr")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.MinExpiryHours, err = strconv.Atoi(getEnv("MIN_EXPIRY_HOURS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_EXPIRY_HOURS: %w", err)
	}

	cfg.MaxExpiryHours, err = strconv.Atoi(getEnv("MAX_EXPIRY_HOURS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_EXPIRY_HOURS: %w", err)
	}

	cfg.PointsPerListing, err = strconv.Atoi(getEnv("POINTS_PER_LISTING", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid POINTS_PER_LISTING: %w", err)
	}

	cfg.PointsPerClaim, err = strconv.Atoi(getEnv("POINTS_PER_CLAIM", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid POINTS_PER_CLAIM: %w", err)
	}

	cfg.MinDescriptionLength, err = strconv.Atoi(getEnv("MIN_DESCRIPTION_LENGTH", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_DESCRIPTION_LENGTH: %w", err)
	}

	cfg.DefaultMaxDistanceKm, err = strconv.ParseFloat(getEnv("DEFAULT_MAX_DISTANCE_KM", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_MAX_DISTANCE_KM: %w", err)
	}

	cfg.ExpiredRetentionHours, err = strconv.Atoi(getEnv("EXPIRED_RETENTION_HOURS", "48"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRED_RETENTION_HOURS: %w", err)
	}

	cfg.ImageMaxDimension, err = strconv.Atoi(getEnv("IMAGE_MAX_DIMENSION", "2048"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_DIMENSION: %w", err)
	}

	cfg.ImageMaxSizeMB, err = strconv.Atoi(getEnv("IMAGE_MAX_SIZE_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_SIZE_MB: %w", err)
	}

	statsCacheTTLSeconds, err := strconv.ParseInt(getEnv("STATS_CACHE_TTL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.StatsCacheTTL = time.Duration(statsCacheTTLSeconds) * time.Second

	if latStr, ok := os.LookupEnv("DEFAULT_LATITUDE"); ok {
		lonStr := os.Getenv("DEFAULT_LONGITUDE")
		cfg.DefaultLatitude, err = strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_LATITUDE: %w", err)
		}
		cfg.DefaultLongitude, err = strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_LONGITUDE: %w", err)
		}
		cfg.HasDefaultCoords = true
	}

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}

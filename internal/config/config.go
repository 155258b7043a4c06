package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ImageStoreS3    = "s3"
	ImageStoreLocal = "local"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string
	APIUrl   string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeZone string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret string

	// Image store
	ImageStore             string // "s3" | "local"
	ImageStoreTimeout      time.Duration
	ImageUploadConcurrency int
	ImageVariantsBaseURL   string
	ImageNamespace         string

	// Media S3
	MediaS3Endpoint        string
	MediaS3Region          string
	MediaS3AccessKeyID     string
	MediaS3SecretAccessKey string
	MediaS3UsePathStyle    bool
	MediaImagesBucket      string
	MediaPublicURL         string

	// Local storage
	LocalAssetsPath string
	PublicAssetsURL string

	// Uploads
	UploadMaxImageSize int64
	UploadMaxImages    int
	UploadDailyLimit   int

	// Listing
	ListingDefaultLimit int
	ListingMaxLimit     int
	RelatedDefaultLimit int
	RelatedMaxLimit     int

	// Security
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func New() *Config {
	apiURL := strings.TrimRight(getEnv("API_URL", "http://localhost:8080"), "/")

	return &Config{
		// Server
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		APIUrl:   apiURL,

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "artmarket"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "artmarket_db"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		DBTimeZone: getEnv("DB_TIMEZONE", "UTC"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Image store
		ImageStore:             getEnv("IMAGE_STORE", ImageStoreLocal),
		ImageStoreTimeout:      getEnvAsDuration("IMAGE_STORE_TIMEOUT", "30s"),
		ImageUploadConcurrency: getEnvAsInt("IMAGE_UPLOAD_CONCURRENCY", 3),
		ImageVariantsBaseURL:   getEnv("IMAGE_VARIANTS_BASE_URL", ""),
		ImageNamespace:         getEnv("IMAGE_NAMESPACE", "artworks"),

		// Media S3
		MediaS3Endpoint:        getEnv("MEDIA_S3_ENDPOINT", ""),
		MediaS3Region:          getEnv("MEDIA_S3_REGION", "us-east-1"),
		MediaS3AccessKeyID:     getEnv("MEDIA_S3_ACCESS_KEY_ID", ""),
		MediaS3SecretAccessKey: getEnv("MEDIA_S3_SECRET_ACCESS_KEY", ""),
		MediaS3UsePathStyle:    getEnvAsBool("MEDIA_S3_USE_PATH_STYLE", true),
		MediaImagesBucket:      getEnv("MEDIA_IMAGES_BUCKET", "artmarket-images"),
		MediaPublicURL:         getEnv("MEDIA_PUBLIC_URL", ""),

		// Local storage
		LocalAssetsPath: getEnv("LOCAL_ASSETS_PATH", "./data/uploads"),
		PublicAssetsURL: getEnv("PUBLIC_ASSETS_URL", apiURL+"/uploads"),

		// Uploads
		UploadMaxImageSize: getEnvAsInt64("UPLOAD_MAX_IMAGE_SIZE", 10*1024*1024),
		UploadMaxImages:    getEnvAsInt("UPLOAD_MAX_IMAGES", 5),
		UploadDailyLimit:   getEnvAsInt("UPLOAD_DAILY_LIMIT", 50),

		// Listing
		ListingDefaultLimit: getEnvAsInt("LISTING_DEFAULT_LIMIT", 12),
		ListingMaxLimit:     getEnvAsInt("LISTING_MAX_LIMIT", 100),
		RelatedDefaultLimit: getEnvAsInt("RELATED_DEFAULT_LIMIT", 6),
		RelatedMaxLimit:     getEnvAsInt("RELATED_MAX_LIMIT", 24),

		// Security
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AllowedMethods: getEnvAsSlice("ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvAsSlice("ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization"}),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.ImageStore {
	case ImageStoreS3:
		if c.MediaImagesBucket == "" {
			errs = append(errs, errors.New("MEDIA_IMAGES_BUCKET is required for the s3 image store"))
		}
	case ImageStoreLocal:
		if c.LocalAssetsPath == "" {
			errs = append(errs, errors.New("LOCAL_ASSETS_PATH is required for the local image store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IMAGE_STORE %q (expected %q or %q)", c.ImageStore, ImageStoreS3, ImageStoreLocal))
	}

	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.ImageStoreTimeout <= 0 {
		errs = append(errs, errors.New("IMAGE_STORE_TIMEOUT must be positive"))
	}
	if c.ImageUploadConcurrency < 1 {
		errs = append(errs, errors.New("IMAGE_UPLOAD_CONCURRENCY must be at least 1"))
	}
	if c.UploadMaxImages < 1 || c.UploadMaxImageSize < 1 {
		errs = append(errs, errors.New("upload limits must be positive"))
	}
	if c.ListingDefaultLimit < 1 || c.ListingMaxLimit < c.ListingDefaultLimit {
		errs = append(errs, errors.New("LISTING_DEFAULT_LIMIT must be positive and not exceed LISTING_MAX_LIMIT"))
	}
	if c.RelatedDefaultLimit < 1 || c.RelatedMaxLimit < c.RelatedDefaultLimit {
		errs = append(errs, errors.New("RELATED_DEFAULT_LIMIT must be positive and not exceed RELATED_MAX_LIMIT"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Minute
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

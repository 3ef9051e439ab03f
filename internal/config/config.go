package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppPort    string
	AppEnv     string
	AppBaseURL string

	DBDSN         string
	JWTSecret     string
	JWTExpiresMin int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StorageDriver       string // local | firebase
	UploadDir           string
	FirebaseCredentials string
	FirebaseBucket      string
	UploadConcurrency   int
	MaxPhotoBytes       int64

	CORSOrigins string

	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	redisDB, _ := strconv.Atoi(get("REDIS_DB", "0"))
	concurrency, _ := strconv.Atoi(get("UPLOAD_CONCURRENCY", "4"))
	if concurrency < 1 {
		concurrency = 1
	}
	maxPhoto, err := strconv.ParseInt(get("MAX_PHOTO_BYTES", "10485760"), 10, 64)
	if err != nil || maxPhoto <= 0 {
		maxPhoto = 10 << 20
	}

	cfg := Config{
		AppPort:    get("APP_PORT", "8080"),
		AppEnv:     get("APP_ENV", "production"),
		AppBaseURL: strings.TrimRight(get("APP_BASE_URL", ""), "/"),

		DBDSN:         must("DB_DSN"),
		JWTSecret:     must("JWT_SECRET"),
		JWTExpiresMin: expires,

		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		StorageDriver:       strings.ToLower(get("STORAGE_DRIVER", "local")),
		UploadDir:           get("UPLOAD_DIR", "./uploads"),
		FirebaseCredentials: get("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseBucket:      get("FIREBASE_STORAGE_BUCKET", ""),
		UploadConcurrency:   concurrency,
		MaxPhotoBytes:       maxPhoto,

		CORSOrigins: get("CORS_ORIGINS", "http://127.0.0.1:8081, http://localhost:8081"),

		GoogleClientID:  get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  get("GOOGLE_REDIRECT_URL", ""),
		FrontendBaseURL: get("FRONTEND_BASE_URL", "http://localhost:8081"),
	}

	if cfg.StorageDriver == "firebase" {
		cfg.FirebaseCredentials = must("FIREBASE_CREDENTIALS_PATH")
		cfg.FirebaseBucket = must("FIREBASE_STORAGE_BUCKET")
	}
	return cfg
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleSecret != "" && c.GoogleRedirect != ""
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port    string
	GinMode string

	// Database
	MongoURI string
	DBName   string

	// Auth
	JWTSecret string

	// Media
	UploadDir     string
	CloudinaryURL string

	// Cache (optional, disabled when empty)
	RedisAddr string

	// Web push
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		MongoURI: getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		DBName:   getEnv("DB_NAME", "wellfeed"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		CloudinaryURL: os.Getenv("CLOUDINARY_URL"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		// Generate a pair once with webpush.GenerateVAPIDKeys and keep it
		// in the environment; push stays disabled while these are empty.
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5500")),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

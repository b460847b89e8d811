package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string

	ApifyToken   string
	ApifyBaseURL string
	ProductActor string
	ReviewActor  string
	FetchTimeout time.Duration

	LLMProvider     string
	GeminiAPIKey    string
	DefaultLLMModel string

	SessionTTL     time.Duration
	TaskMaxRetries int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8082"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ApifyToken:   os.Getenv("APIFY_TOKEN"),
		ApifyBaseURL: getenv("APIFY_BASE_URL", "https://api.apify.com"),
		ProductActor: getenv("APIFY_PRODUCT_ACTOR", "junglee~amazon-crawler"),
		ReviewActor:  getenv("APIFY_REVIEW_ACTOR", "junglee~amazon-reviews-scraper"),
		FetchTimeout: time.Duration(getenvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),

		SessionTTL:     time.Duration(getenvInt("SESSION_TTL_SECONDS", 1800)) * time.Second,
		TaskMaxRetries: getenvInt("TASK_MAX_RETRIES", 0),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	AIBackend     string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	ClaudeAPIKey  string
	ClaudeModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OllamaHost    string
	OllamaModel   string

	ImageBackend      string
	ImagePath         string
	MaxImageBytes     int64
	MaxImageDimension int

	SessionDBPath string
	SessionTTL    time.Duration

	PromptsFile    string
	AllowedOrigins []string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first without overriding variables that are
// already set.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		AIBackend:         getEnv("AI_BACKEND", "gemini"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", ""),
		ClaudeAPIKey:      getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:       getEnv("CLAUDE_MODEL", "claude-sonnet-4-5"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3.2-vision"),
		ImageBackend:      getEnv("IMAGE_BACKEND", "memory"),
		ImagePath:         getEnv("IMAGE_LOCAL_PATH", "/data/images"),
		MaxImageBytes:     getEnvInt64("MAX_IMAGE_BYTES", 20*1024*1024),
		MaxImageDimension: int(getEnvInt64("MAX_IMAGE_DIMENSION", 2048)),
		SessionDBPath:     getEnv("SESSION_DB_PATH", ""),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		PromptsFile:       getEnv("PROMPTS_FILE", ""),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGIN"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogFile:           getEnv("LOG_FILE", ""),
	}
}

// SweepInterval is how often idle sessions are looked for.
func (c *Config) SweepInterval() time.Duration {
	interval := c.SessionTTL / 4
	if interval <= 0 || interval > 5*time.Minute {
		return 5 * time.Minute
	}
	return interval
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && v >= 0 {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the agent needs to wire its collaborators.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string

	LLMProvider string
	LLMModel    string
	SQLProvider string
	SQLModel    string
	OllamaURL   string
	OpenAIKey   string
	GeminiKey   string

	SessionBackend     string
	SessionPath        string
	SessionDatabaseURL string
	SessionTTL         time.Duration
	RedisURL           string
	RedisPassword      string
	RedisDB            int

	CallTimeout       time.Duration
	NameMatchMinScore int
	PromptHintsFile   string

	Port           string
	LogLevel       string
	EnableRawQuery bool
}

// Default returns the configuration used when nothing is set in the environment.
func Default() *Config {
	return &Config{
		DatabaseDriver:    "sqlite3",
		DatabaseURL:       "esports.db",
		LLMProvider:       "ollama",
		LLMModel:          "llama3.1",
		OllamaURL:         "http://localhost:11434",
		SessionBackend:    "memory",
		SessionPath:       "sessions.bolt",
		RedisURL:          "localhost:6379",
		CallTimeout:       60 * time.Second,
		NameMatchMinScore: 60,
		Port:              "5001",
		LogLevel:          "info",
	}
}

// Load reads an optional .env file and then overlays environment variables
// on top of Default. Missing .env files are not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	c := Default()

	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	// DATABASE_NAME is the older name for the sqlite file.
	c.DatabaseURL = getEnv("DATABASE_URL", getEnv("DATABASE_NAME", c.DatabaseURL))

	c.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.SQLProvider = strings.ToLower(getEnv("SQL_PROVIDER", c.LLMProvider))
	c.SQLModel = getEnv("SQL_MODEL", getEnv("FINE_TUNED_MODEL", c.LLMModel))
	c.OllamaURL = getEnv("OLLAMA_URL", c.OllamaURL)
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.GeminiKey = os.Getenv("GEMINI_API_KEY")

	c.SessionBackend = strings.ToLower(getEnv("SESSION_BACKEND", c.SessionBackend))
	c.SessionPath = getEnv("SESSION_PATH", c.SessionPath)
	c.SessionDatabaseURL = os.Getenv("SESSION_DATABASE_URL")
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")

	var err error
	if c.RedisDB, err = getInt("REDIS_DB", c.RedisDB); err != nil {
		return nil, err
	}
	if c.SessionTTL, err = getDuration("SESSION_TTL", c.SessionTTL); err != nil {
		return nil, err
	}
	if c.CallTimeout, err = getDuration("CALL_TIMEOUT", c.CallTimeout); err != nil {
		return nil, err
	}
	if c.NameMatchMinScore, err = getInt("NAME_MATCH_MIN_SCORE", c.NameMatchMinScore); err != nil {
		return nil, err
	}
	if c.EnableRawQuery, err = getBool("ENABLE_RAW_QUERY", c.EnableRawQuery); err != nil {
		return nil, err
	}

	c.PromptHintsFile = os.Getenv("PROMPT_HINTS_FILE")
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	return c, c.Validate()
}

// Validate rejects combinations the agent cannot start with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	for _, p := range []string{c.LLMProvider, c.SQLProvider} {
		switch p {
		case "ollama", "openai", "gemini":
		default:
			return fmt.Errorf("unsupported completion provider %q", p)
		}
	}
	switch c.SessionBackend {
	case "memory", "redis", "bolt":
	case "postgres":
		if c.SessionDatabaseURL == "" {
			return fmt.Errorf("SESSION_DATABASE_URL is required for the postgres session backend")
		}
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.NameMatchMinScore < 0 || c.NameMatchMinScore > 100 {
		return fmt.Errorf("NAME_MATCH_MIN_SCORE must be within 0..100, got %d", c.NameMatchMinScore)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

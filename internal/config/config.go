package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Repair   RepairConfig
	Crawl    CrawlConfig
	Pipeline PipelineConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type LLMConfig struct {
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxFailures       int
	Cooldown          time.Duration
	Language          string
}

type RepairConfig struct {
	MaxAttempts       int
	DiagnosticDir     string
	UniqueDiagnostics bool
	LegacyBraces      bool
}

type CrawlConfig struct {
	ConfigPath   string
	WorklistPath string
	OutputPath   string
}

type PipelineConfig struct {
	Delay         time.Duration
	DelayJitter   time.Duration
	ItemRetries   int
	SkipDone      bool
	PromptVariant string
}

type BrowserConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	ViewportWidth     int
	ViewportHeight    int
	Locale            string
	ProxyServer       string
	UserAgents        []string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	RelayInterval time.Duration
	RelayBatch    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. Variables from the file
// named by ENV_FILE (default .env) are loaded first when it exists; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvOrDefault("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 20*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getStringSliceOrDefault("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		LLM: LLMConfig{
			APIKey:            os.Getenv("GEMINI_API_KEY"),
			Model:             getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:           getDurationOrDefault("LLM_TIMEOUT", 2*time.Minute),
			RequestsPerMinute: getIntOrDefault("LLM_REQUESTS_PER_MINUTE", 15),
			MaxFailures:       getIntOrDefault("LLM_MAX_FAILURES", 3),
			Cooldown:          getDurationOrDefault("LLM_COOLDOWN", 5*time.Minute),
			Language:          getEnvOrDefault("PROMPT_LANGUAGE", "Vietnamese"),
		},
		Repair: RepairConfig{
			MaxAttempts:       getIntOrDefault("REPAIR_MAX_ATTEMPTS", 3),
			DiagnosticDir:     getEnvOrDefault("REPAIR_DIAGNOSTIC_DIR", "."),
			UniqueDiagnostics: getBoolOrDefault("REPAIR_UNIQUE_DIAGNOSTICS", false),
			LegacyBraces:      getBoolOrDefault("REPAIR_LEGACY_BRACES", false),
		},
		Crawl: CrawlConfig{
			ConfigPath:   getEnvOrDefault("CRAWL_CONFIG_PATH", "crawl-config.json"),
			WorklistPath: getEnvOrDefault("WORKLIST_PATH", "worklist.xlsx"),
			OutputPath:   getEnvOrDefault("OUTPUT_PATH", "."),
		},
		Pipeline: PipelineConfig{
			Delay:         getDurationOrDefault("PIPELINE_DELAY", 2*time.Second),
			DelayJitter:   getDurationOrDefault("PIPELINE_DELAY_JITTER", 0),
			ItemRetries:   getIntOrDefault("PIPELINE_ITEM_RETRIES", 1),
			SkipDone:      getBoolOrDefault("PIPELINE_SKIP_DONE", true),
			PromptVariant: getEnvOrDefault("PROMPT_VARIANT", "standard"),
		},
		Browser: BrowserConfig{
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAVIGATION_TIMEOUT", 60*time.Second),
			SelectorTimeout:   getDurationOrDefault("BROWSER_SELECTOR_TIMEOUT", 15*time.Second),
			ViewportWidth:     getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			Locale:            getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:       os.Getenv("BROWSER_PROXY"),
			UserAgents:        getStringSliceOrDefault("BROWSER_USER_AGENTS", nil),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:       getBoolOrDefault("REDIS_ENABLED", false),
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			RelayInterval: getDurationOrDefault("REDIS_RELAY_INTERVAL", 5*time.Second),
			RelayBatch:    getIntOrDefault("REDIS_RELAY_BATCH", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Repair.MaxAttempts < 1 {
		return invalid("REPAIR_MAX_ATTEMPTS must be at least 1")
	}

	if c.Pipeline.Delay < 0 || c.Pipeline.DelayJitter < 0 {
		return invalid("PIPELINE_DELAY and PIPELINE_DELAY_JITTER cannot be negative")
	}

	if c.Pipeline.ItemRetries < 0 {
		return invalid("PIPELINE_ITEM_RETRIES cannot be negative")
	}

	switch c.Pipeline.PromptVariant {
	case "standard", "structured", "schema":
	default:
		return invalid("PROMPT_VARIANT must be one of standard, structured, schema")
	}

	if c.LLM.RequestsPerMinute < 0 {
		return invalid("LLM_REQUESTS_PER_MINUTE cannot be negative")
	}

	if c.LLM.MaxFailures < 0 {
		return invalid("LLM_MAX_FAILURES cannot be negative")
	}

	if c.LLM.Timeout <= 0 {
		return invalid("LLM_TIMEOUT must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return invalid("LOG_FORMAT must be json or text")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("LOG_LEVEL must be debug, info, warn or error")
	}

	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return invalid("DB_PORT must be between 1 and 65535")
	}

	if c.Redis.Enabled {
		if !c.Database.Enabled {
			return invalid("REDIS_ENABLED requires DB_ENABLED, the relay reads the database outbox")
		}
		if c.Redis.Addr == "" {
			return invalid("REDIS_ADDR is required when REDIS_ENABLED is set")
		}
		if c.Redis.RelayBatch < 1 {
			return invalid("REDIS_RELAY_BATCH must be at least 1")
		}
	}

	return nil
}

// RequireLLM reports whether the model client can be built.
func (c *Config) RequireLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return invalid("GEMINI_API_KEY is required")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

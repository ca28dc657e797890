package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AWS           AWSConfig
	Transcription TranscriptionConfig
	LLM           LLMConfig
	Pipeline      PipelineConfig
	Notion        NotionConfig
	Slack         SlackConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	MaxUploadMB        int
	RunWorker          bool // run the pipeline worker loop inside the server process
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/voxnote?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the audio bucket. Empty bucket disables queue mode.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AudioBucket          string
	PresignExpireMinutes int
}

// ProviderConfig describes one OpenAI-compatible speech-to-text endpoint.
type ProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// Enabled reports whether the provider has credentials.
func (p ProviderConfig) Enabled() bool { return p.APIKey != "" && p.BaseURL != "" }

// TranscriptionConfig holds the ordered provider chain (primary first).
type TranscriptionConfig struct {
	Primary        ProviderConfig
	Secondary      ProviderConfig
	TimeoutSeconds int
}

// LLMConfig holds the text-generation endpoint used by the classifier and formatter.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// PipelineConfig holds recording pipeline policy.
type PipelineConfig struct {
	Timezone           string // date context for templates and titles
	DefaultPlanMinutes int    // base monthly allotment for new users
	StuckAfterMinutes  int
	SweepIntervalSec   int
}

// NotionConfig holds the Notion API endpoint.
type NotionConfig struct {
	BaseURL        string
	Version        string
	RatePerSecond  int
	TimeoutSeconds int
}

// SlackConfig holds the Slack Web API endpoint.
type SlackConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 60),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 60),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			MaxUploadMB:        getEnvInt("MAX_UPLOAD_MB", 100),
			RunWorker:          getEnvBool("RUN_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "voxnote"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24*7),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AudioBucket:          getEnv("AWS_S3_AUDIO_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Transcription: TranscriptionConfig{
			Primary: ProviderConfig{
				Name:    "groq",
				BaseURL: getEnv("STT_PRIMARY_BASE_URL", "https://api.groq.com/openai/v1"),
				APIKey:  getEnv("GROQ_API_KEY", ""),
				Model:   getEnv("STT_PRIMARY_MODEL", "whisper-large-v3"),
			},
			Secondary: ProviderConfig{
				Name:    "openai",
				BaseURL: getEnv("STT_SECONDARY_BASE_URL", "https://api.openai.com/v1"),
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				Model:   getEnv("STT_SECONDARY_MODEL", "whisper-1"),
			},
			TimeoutSeconds: getEnvInt("STT_TIMEOUT_SEC", 600),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			TimeoutSeconds: getEnvInt("LLM_TIMEOUT_SEC", 180),
		},
		Pipeline: PipelineConfig{
			Timezone:           getEnv("DOC_TIMEZONE", "Asia/Tokyo"),
			DefaultPlanMinutes: getEnvInt("DEFAULT_PLAN_MINUTES", 60),
			StuckAfterMinutes:  getEnvInt("STUCK_AFTER_MINUTES", 30),
			SweepIntervalSec:   getEnvInt("SWEEP_INTERVAL_SEC", 60),
		},
		Notion: NotionConfig{
			BaseURL:        getEnv("NOTION_API_BASE_URL", "https://api.notion.com/v1"),
			Version:        getEnv("NOTION_API_VERSION", "2022-06-28"),
			RatePerSecond:  getEnvInt("NOTION_RATE_PER_SEC", 3),
			TimeoutSeconds: getEnvInt("NOTION_TIMEOUT_SEC", 30),
		},
		Slack: SlackConfig{
			BaseURL:        getEnv("SLACK_API_BASE_URL", "https://slack.com/api"),
			TimeoutSeconds: getEnvInt("SLACK_TIMEOUT_SEC", 15),
		},
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET must not be empty")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// SplitTrim splits s on sep and drops empty, trimmed parts.
func SplitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

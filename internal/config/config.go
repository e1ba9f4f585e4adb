package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger backends.
const (
	LedgerFile    = "file"
	LedgerSurreal = "surreal"
	LedgerS3      = "s3"
)

// Image analysis providers for the fallback pipeline.
const (
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// Gemini (primary video analysis)
	GeminiAPIKey   string
	GeminiURL      string
	PreciseModel   string
	FastModel      string
	PollInterval   time.Duration
	MaxPolls       int
	FrameWorkers   int
	FallbackFrames int

	// Image-based fallback
	FallbackProvider string
	FallbackModel    string
	OllamaHost       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	AWSRegion        string

	// Frame extraction
	FramesDir   string
	FFmpegPath  string
	FFprobePath string

	// Run ledger
	Ledger    string
	LedgerDir string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// S3 ledger
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool

	// Scoring
	ScoringPolicy string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Server
	ServerPort string
}

// FallbackModelName returns the configured fallback model or a provider default.
func (c Config) FallbackModelName() string {
	if c.FallbackModel != "" {
		return c.FallbackModel
	}
	switch c.FallbackProvider {
	case ProviderOllama:
		return "llava:13b"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderBedrock:
		return "anthropic.claude-3-5-sonnet-20240620-v1:0"
	default:
		return c.FastModel
	}
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		// Gemini
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiURL:      getEnv("REELFACTS_GEMINI_URL", "https://generativelanguage.googleapis.com"),
		PreciseModel:   getEnv("REELFACTS_PRECISE_MODEL", "gemini-2.5-pro"),
		FastModel:      getEnv("REELFACTS_FAST_MODEL", "gemini-2.5-flash"),
		PollInterval:   getDuration("REELFACTS_POLL_INTERVAL", 2*time.Second),
		MaxPolls:       getInt("REELFACTS_MAX_POLLS", 150),
		FrameWorkers:   getInt("REELFACTS_FRAME_WORKERS", 4),
		FallbackFrames: getInt("REELFACTS_FALLBACK_FRAMES", 8),

		// Fallback
		FallbackProvider: strings.ToLower(getEnv("REELFACTS_FALLBACK_PROVIDER", ProviderGemini)),
		FallbackModel:    getEnv("REELFACTS_FALLBACK_MODEL", ""),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),

		// Frames
		FramesDir:   getEnv("REELFACTS_FRAMES_DIR", os.TempDir()+"/reelfacts-frames"),
		FFmpegPath:  getEnv("REELFACTS_FFMPEG", "ffmpeg"),
		FFprobePath: getEnv("REELFACTS_FFPROBE", "ffprobe"),

		// Ledger
		Ledger:    strings.ToLower(getEnv("REELFACTS_LEDGER", LedgerFile)),
		LedgerDir: getEnv("REELFACTS_LEDGER_DIR", defaultLedgerDir()),

		// SurrealDB
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "reelfacts"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "ledger"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		// S3
		S3Bucket:       getEnv("REELFACTS_S3_BUCKET", ""),
		S3Prefix:       getEnv("REELFACTS_S3_PREFIX", "reelfacts"),
		S3Region:       getEnv("REELFACTS_S3_REGION", getEnv("AWS_REGION", "us-east-1")),
		S3Endpoint:     getEnv("REELFACTS_S3_ENDPOINT", ""),
		S3UsePathStyle: getEnv("REELFACTS_S3_PATH_STYLE", "false") == "true",

		ScoringPolicy: getEnv("REELFACTS_SCORING_POLICY", ""),

		// Logging
		LogFile:  getEnv("REELFACTS_LOG_FILE", "/tmp/reelfacts.log"),
		LogLevel: parseLogLevel(getEnv("REELFACTS_LOG_LEVEL", "INFO")),

		ServerPort: getEnv("REELFACTS_SERVER_PORT", "8484"),
	}
}

func defaultLedgerDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/reelfacts/runs"
	}
	return ".reelfacts/runs"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

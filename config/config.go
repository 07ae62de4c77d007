package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the application's configuration
type Config struct {
	LLMHost              string        `mapstructure:"LLM_HOST"`
	LLMAPIKey            string        `mapstructure:"LLM_API_KEY"`
	LLMModel             string        `mapstructure:"LLM_MODEL"`
	WhisperModel         string        `mapstructure:"WHISPER_MODEL"`
	TTSModel             string        `mapstructure:"TTS_MODEL"`
	TTSVoice             string        `mapstructure:"TTS_VOICE"`
	EmbeddingHost        string        `mapstructure:"EMBEDDING_HOST"`
	LLMRequestTimeout    time.Duration `mapstructure:"LLM_REQUEST_TIMEOUT"`
	MaxRetries           int           `mapstructure:"MAX_RETRIES"`
	RetryDelaySeconds    time.Duration `mapstructure:"RETRY_DELAY_SECONDS"`
	BackoffMaxSeconds    time.Duration `mapstructure:"BACKOFF_MAX_SECONDS"`
	BackoffJitterRatio   float64       `mapstructure:"BACKOFF_JITTER_RATIO"`
	Temperature          float64       `mapstructure:"TEMPERATURE"`
	DataDir              string        `mapstructure:"DATA_DIR"`
	LogDir               string        `mapstructure:"LOG_DIR"`
	RetrievalResults     int           `mapstructure:"RETRIEVAL_RESULTS"`
	ContextMaxChars      int           `mapstructure:"CONTEXT_MAX_CHARS"`
	SnippetMaxChars      int           `mapstructure:"SNIPPET_MAX_CHARS"`
	RetrievalCacheSize   int           `mapstructure:"RETRIEVAL_CACHE_SIZE"`
	VectorIndexEnabled   bool          `mapstructure:"VECTOR_INDEX_ENABLED"`
	SessionRetentionAge  time.Duration `mapstructure:"SESSION_RETENTION_AGE"`
	CleanupInterval      time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	RateLimitTurnsPerMin int           `mapstructure:"RATE_LIMIT_TURNS_PER_MIN"`
	RateLimitBurstSize   int           `mapstructure:"RATE_LIMIT_BURST_SIZE"`
	WebPort              int           `mapstructure:"WEB_PORT"`
	MaxAudioUploadBytes  int64         `mapstructure:"MAX_AUDIO_UPLOAD_BYTES"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")        // For running locally
	viper.AddConfigPath("../")      // For running from a subdir
	viper.AddConfigPath("./config") // Common config folder
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("LLM_HOST", "https://api.groq.com/openai")
	viper.SetDefault("LLM_API_KEY", "")
	viper.SetDefault("LLM_MODEL", "llama-3.3-70b-versatile")
	viper.SetDefault("WHISPER_MODEL", "whisper-large-v3")
	viper.SetDefault("TTS_MODEL", "playai-tts")
	viper.SetDefault("TTS_VOICE", "Fritz-PlayAI")
	viper.SetDefault("EMBEDDING_HOST", "")
	viper.SetDefault("LLM_REQUEST_TIMEOUT", 30)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_DELAY_SECONDS", 2)
	viper.SetDefault("BACKOFF_MAX_SECONDS", 15)
	viper.SetDefault("BACKOFF_JITTER_RATIO", 0.1)
	viper.SetDefault("TEMPERATURE", 0.1)
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("LOG_DIR", "logs")
	viper.SetDefault("RETRIEVAL_RESULTS", 8)
	viper.SetDefault("CONTEXT_MAX_CHARS", 3500)
	viper.SetDefault("SNIPPET_MAX_CHARS", 800)
	viper.SetDefault("RETRIEVAL_CACHE_SIZE", 256)
	viper.SetDefault("VECTOR_INDEX_ENABLED", true)
	viper.SetDefault("SESSION_RETENTION_AGE", 2)
	viper.SetDefault("CLEANUP_INTERVAL", 1)
	viper.SetDefault("RATE_LIMIT_TURNS_PER_MIN", 20)
	viper.SetDefault("RATE_LIMIT_BURST_SIZE", 5)
	viper.SetDefault("WEB_PORT", 5000)
	viper.SetDefault("MAX_AUDIO_UPLOAD_BYTES", 10*1024*1024)
	viper.SetDefault("LOG_LEVEL", "info")

	if err := viper.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	// GROQ_API_KEY kept as a fallback env var name so existing deployment
	// environments keep working without renaming their secrets.
	if config.LLMAPIKey == "" {
		config.LLMAPIKey = os.Getenv("GROQ_API_KEY")
	}
	if config.EmbeddingHost == "" {
		config.EmbeddingHost = config.LLMHost
	}

	// Convert seconds/hours to proper time.Duration
	config.LLMRequestTimeout = config.LLMRequestTimeout * time.Second
	config.RetryDelaySeconds = config.RetryDelaySeconds * time.Second
	config.BackoffMaxSeconds = config.BackoffMaxSeconds * time.Second
	config.SessionRetentionAge = config.SessionRetentionAge * time.Hour
	config.CleanupInterval = config.CleanupInterval * time.Hour

	return &config
}

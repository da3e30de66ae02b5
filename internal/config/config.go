package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	AuthPassword   string
	LogLevel       string
	LogDevelopment bool

	AssemblyAIKey string

	OpenAIKey     string
	OpenAIBaseURL string
	LLMModel      string
	PersonaModel  string

	TTSProvider       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	GDDDataDir     string
	GDDPipelineURL string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
	ExportDir          string

	Debounce         time.Duration
	DebounceExtended time.Duration
	CritiqueGrace    time.Duration
	MinAnswerWords   int
	DocTimeout       time.Duration
	FinishTimeout    time.Duration
}

// Load reads an optional .env file and environment variables and returns
// Config with sane defaults. Missing keys are logged, never fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: reading .env: %v", err)
	}

	cfg := Config{
		HTTPAddress:    env("HTTP_ADDRESS", ":8080"),
		AuthPassword:   os.Getenv("AUTH_PASSWORD"),
		LogLevel:       env("LOG_LEVEL", "info"),
		LogDevelopment: envBool("LOG_DEVELOPMENT", false),

		AssemblyAIKey: os.Getenv("ASSEMBLYAI_API_KEY"),

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		LLMModel:      env("LLM_MODEL", "gpt-4o-mini"),

		TTSProvider:       strings.ToLower(env("TTS_PROVIDER", "deepgram")),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     env("DEEPGRAM_MODEL", "aura-2-thalia-en"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),

		GDDDataDir:     os.Getenv("GDD_DATA_DIR"),
		GDDPipelineURL: os.Getenv("GDD_PIPELINE_URL"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     env("SUPABASE_BUCKET", "gdd-exports"),
		ExportDir:          env("EXPORT_DIR", "exports"),

		Debounce:         envMillis("DEBOUNCE_MS", 1200),
		DebounceExtended: envMillis("DEBOUNCE_EXTENDED_MS", 2000),
		CritiqueGrace:    envMillis("CRITIQUE_GRACE_MS", 1800),
		MinAnswerWords:   envInt("MIN_ANSWER_WORDS", 2),
		DocTimeout:       time.Duration(envInt("DOC_TIMEOUT_S", 10)) * time.Second,
		FinishTimeout:    time.Duration(envInt("FINISH_TIMEOUT_S", 20)) * time.Second,
	}
	cfg.PersonaModel = env("PERSONA_MODEL", cfg.LLMModel)

	if cfg.AssemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - voice input will not work")
	}
	if cfg.OpenAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - replies and document generation will not work")
	}
	switch cfg.TTSProvider {
	case "elevenlabs":
		if cfg.ElevenLabsKey == "" || cfg.ElevenLabsVoiceID == "" {
			log.Println("Warning: ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - TTS will be silent")
		}
	default:
		cfg.TTSProvider = "deepgram"
		if cfg.DeepgramKey == "" {
			log.Println("Warning: DEEPGRAM_API_KEY not set - TTS will be silent")
		}
	}
	return cfg
}

// NewLogger builds the root logger. Unknown levels fall back to info.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func envMillis(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Millisecond
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

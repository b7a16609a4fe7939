package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	OpenAIAPIKey      string   `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL     string   `mapstructure:"OPENAI_BASE_URL"`
	AIChatModel       string   `mapstructure:"AI_CHAT_MODEL"`
	AITranscribeModel string   `mapstructure:"AI_TRANSCRIBE_MODEL"`
	AISpeechModel     string   `mapstructure:"AI_SPEECH_MODEL"`
	HeartbeatSeconds  int      `mapstructure:"HEARTBEAT_SECONDS"`
	SeedOnStart       bool     `mapstructure:"SEED_ON_START"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_CHAT_MODEL", "gpt-4o")
	v.SetDefault("AI_TRANSCRIBE_MODEL", "whisper-1")
	v.SetDefault("AI_SPEECH_MODEL", "tts-1")
	v.SetDefault("HEARTBEAT_SECONDS", 10)
	v.SetDefault("SEED_ON_START", true)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_BASE_URL")
	v.BindEnv("AI_CHAT_MODEL")
	v.BindEnv("AI_TRANSCRIBE_MODEL")
	v.BindEnv("AI_SPEECH_MODEL")
	v.BindEnv("HEARTBEAT_SECONDS")
	v.BindEnv("SEED_ON_START")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HeartbeatInterval returns the websocket heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. The AI endpoints
// degrade gracefully without a key, so OPENAI_API_KEY is only warned about
// at startup, not required here.
func (c *Config) Validate() error {
	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	}
	if c.HeartbeatSeconds < 0 {
		return fmt.Errorf("HEARTBEAT_SECONDS must not be negative, got %d", c.HeartbeatSeconds)
	}
	return nil
}

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Panel   PanelConfig   `mapstructure:"panel"`
	History HistoryConfig `mapstructure:"history"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Speech backend selection and voice loading behaviour
type SpeechConfig struct {
	Backend          string          `mapstructure:"backend"` // "system", "google", "translate" or "dummy"
	FallbackLang     string          `mapstructure:"fallback_lang"`
	RetryDelay       time.Duration   `mapstructure:"retry_delay"`
	MaxVoiceAttempts int             `mapstructure:"max_voice_attempts"` // 0 retries forever
	System           SystemConfig    `mapstructure:"system"`
	Google           GoogleConfig    `mapstructure:"google"`
	Translate        TranslateConfig `mapstructure:"translate"`
}

type SystemConfig struct {
	Binary string `mapstructure:"binary"` // empty auto-detects espeak-ng, espeak or say
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"` // Optional, defaults to GOOGLE_APPLICATION_CREDENTIALS
}

type TranslateConfig struct {
	Languages []string `mapstructure:"languages"`
}

type PanelConfig struct {
	DefaultRate    float64       `mapstructure:"default_rate"`
	DefaultPitch   float64       `mapstructure:"default_pitch"`
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	SpeakPerSecond float64       `mapstructure:"speak_per_second"`
	SpeakBurst     int           `mapstructure:"speak_burst"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Limit   int    `mapstructure:"limit"`
}

type AuthConfig struct {
	SessionSecret string `mapstructure:"session_secret"`
	PasswordHash  string `mapstructure:"password_hash"` // bcrypt hash, empty disables login
}

// Load reads config.yaml (and an optional config.local.yaml override) from
// the given paths, falling back to "." and "./config".
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix("NEONVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// Config file not found, use defaults
	} else {
		v.SetConfigName("config.local")
		if err := v.MergeInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})

	v.SetDefault("log.level", "info")

	v.SetDefault("speech.backend", "system")
	v.SetDefault("speech.fallback_lang", "uz-UZ")
	v.SetDefault("speech.retry_delay", 300*time.Millisecond)
	v.SetDefault("speech.max_voice_attempts", 20)
	v.SetDefault("speech.system.binary", "")
	v.SetDefault("speech.google.credentials_file", "")
	v.SetDefault("speech.translate.languages", []string{"uz", "en", "ru", "tr"})

	v.SetDefault("panel.default_rate", 1.0)
	v.SetDefault("panel.default_pitch", 1.0)
	v.SetDefault("panel.idle_ttl", 30*time.Minute)
	v.SetDefault("panel.speak_per_second", 2.0)
	v.SetDefault("panel.speak_burst", 4)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "./neonvoice.db")
	v.SetDefault("history.limit", 50)

	v.SetDefault("auth.session_secret", "your-secret-key-change-this-in-production")
	v.SetDefault("auth.password_hash", "")
}

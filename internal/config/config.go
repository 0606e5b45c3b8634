package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config stores runtime configuration loaded from the environment, an
// optional .env file and command line flags.
type Config struct {
	Env           string    `mapstructure:"app_env" validate:"oneof=development production"`
	Port          string    `mapstructure:"port" validate:"required,numeric"`
	Database      string    `mapstructure:"database_path" validate:"required"`
	SessionSecret string    `mapstructure:"session_secret"`
	MaxUploadMB   int64     `mapstructure:"max_upload_mb" validate:"min=1,max=200"`
	LLM           LLMConfig `mapstructure:",squash"`
	OCR           OCRConfig `mapstructure:",squash"`

	// GeneratedSecret is set when no SESSION_SECRET was configured and a
	// random one was created for this process.
	GeneratedSecret bool `mapstructure:"-"`
}

type LLMConfig struct {
	APIKey      string  `mapstructure:"groq_api_key"`
	BaseURL     string  `mapstructure:"llm_base_url" validate:"required,url"`
	Model       string  `mapstructure:"llm_model" validate:"required"`
	Temperature float32 `mapstructure:"llm_temperature" validate:"min=0,max=2"`
	MaxTokens   int     `mapstructure:"llm_max_tokens" validate:"min=1,max=8192"`
	RatePerSec  float64 `mapstructure:"llm_rate_per_sec" validate:"min=0"`
}

type OCRConfig struct {
	Enabled         bool   `mapstructure:"ocr_enabled"`
	TesseractPath   string `mapstructure:"tesseract_path"`
	GhostscriptPath string `mapstructure:"ghostscript_path"`
	Languages       string `mapstructure:"ocr_languages"`
}

var defaults = map[string]any{
	"app_env":          EnvProduction,
	"port":             "8501",
	"database_path":    "./data/quizgenius.db",
	"session_secret":   "",
	"max_upload_mb":    25,
	"groq_api_key":     "",
	"llm_base_url":     "https://api.groq.com/openai/v1",
	"llm_model":        "llama-3.1-8b-instant",
	"llm_temperature":  0.7,
	"llm_max_tokens":   600,
	"llm_rate_per_sec": 0,
	"ocr_enabled":      true,
	"tesseract_path":   "tesseract",
	"ghostscript_path": "gs",
	"ocr_languages":    "eng",
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"port": "port",
	"env":  "app_env",
	"db":   "database_path",
}

var validate = validator.New()

// Load reads configuration from the environment, providing sensible defaults.
// Flags present in fs take precedence over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.SessionSecret = secret
		cfg.GeneratedSecret = true
	}

	if cfg.Database != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
			return nil, fmt.Errorf("ensure database dir %s: %w", cfg.Database, err)
		}
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("validate config: %w", err)
		}
		msgs := make([]string, 0, len(errs))
		for _, fe := range errs {
			msgs = append(msgs, fmt.Sprintf("Field: %s, Tag: %s, Param: %s", fe.Namespace(), fe.Tag(), fe.Param()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

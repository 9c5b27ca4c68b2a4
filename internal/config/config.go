package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	JWTExpiresIn time.Duration `mapstructure:"JWT_EXPIRES_IN"`

	FileServiceBaseURL   string `mapstructure:"FILE_SERVICE_BASE_URL"`
	FileServiceToken     string `mapstructure:"FILE_SERVICE_TOKEN"`
	FileServiceTokenHead string `mapstructure:"FILE_SERVICE_TOKEN_HEADER"`
	UploadDir            string `mapstructure:"UPLOAD_DIR"`
	MaxFileSize          int64  `mapstructure:"MAX_FILE_SIZE"`

	OCRBaseURL    string `mapstructure:"OCR_BASE_URL"`
	OCRAPIKey     string `mapstructure:"OCR_API_KEY"`
	OCRWorkflowID string `mapstructure:"OCR_WORKFLOW_ID"`

	LLMBaseURL string `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey  string `mapstructure:"LLM_API_KEY"`
	LLMModel   string `mapstructure:"LLM_MODEL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("JWT_EXPIRES_IN", "8h")
	v.SetDefault("FILE_SERVICE_BASE_URL", "http://127.0.0.1:7070/file_store")
	v.SetDefault("FILE_SERVICE_TOKEN_HEADER", "x-file-token")
	v.SetDefault("UPLOAD_DIR", "medical-records")
	v.SetDefault("MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("OCR_BASE_URL", "https://api.coze.cn")
	v.SetDefault("LLM_BASE_URL", "https://api.deepseek.com")
	v.SetDefault("LLM_MODEL", "deepseek-chat")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_EXPIRES_IN")
	v.BindEnv("FILE_SERVICE_BASE_URL")
	v.BindEnv("FILE_SERVICE_TOKEN")
	v.BindEnv("FILE_SERVICE_TOKEN_HEADER")
	v.BindEnv("UPLOAD_DIR")
	v.BindEnv("MAX_FILE_SIZE")
	v.BindEnv("OCR_BASE_URL")
	v.BindEnv("OCR_API_KEY")
	v.BindEnv("OCR_WORKFLOW_ID")
	v.BindEnv("LLM_BASE_URL")
	v.BindEnv("LLM_API_KEY")
	v.BindEnv("LLM_MODEL")

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

// Validate checks that the configuration is safe to run. Outside development
// the JWT secret and external provider credentials must be present so that
// auth and the AI features actually work.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV is not development")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	if c.FileServiceBaseURL == "" {
		return fmt.Errorf("FILE_SERVICE_BASE_URL is required")
	}
	if !c.IsDev() && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when ENV is not development")
	}
	if !c.IsDev() && c.OCRWorkflowID == "" {
		return fmt.Errorf("OCR_WORKFLOW_ID is required when ENV is not development")
	}
	return nil
}

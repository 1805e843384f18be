package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultPrompt = "PancakeSwap cake coin crypto avatar, glowing yellow theme, cute bunny, high detail, high quality"

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string        `yaml:"app_env"`
	Port               string        `yaml:"port"`
	LeonardoAPIKey     string        `yaml:"-"`
	LeonardoBaseURL    string        `yaml:"leonardo_base_url"`
	LeonardoModel      string        `yaml:"leonardo_model"`
	UploadDir          string        `yaml:"upload_dir"`
	GeneratedDir       string        `yaml:"generated_dir"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes"`
	DefaultPrompt      string        `yaml:"default_prompt"`
	OutputWidth        int           `yaml:"output_width"`
	OutputHeight       int           `yaml:"output_height"`
	ReferenceStrength  string        `yaml:"reference_strength"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollTimeout        time.Duration `yaml:"poll_timeout"`
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	HTTPReadTimeout    time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout   time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout    time.Duration `yaml:"http_idle_timeout"`
	RateLimitPerMin    int           `yaml:"rate_limit_per_minute"`
}

// LoadConfig loads configuration from an optional YAML file named by
// CONFIG_FILE, then environment variables, applying defaults where needed.
// A missing provider key is not an error; generation requests report it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            "development",
		Port:              "8080",
		LeonardoBaseURL:   "https://cloud.leonardo.ai/api/rest",
		LeonardoModel:     "gpt-image-1.5",
		UploadDir:         "uploads",
		GeneratedDir:      "generated",
		MaxUploadBytes:    12 << 20,
		DefaultPrompt:     defaultPrompt,
		OutputWidth:       1024,
		OutputHeight:      1024,
		ReferenceStrength: "MID",
		PollInterval:      2 * time.Second,
		PollTimeout:       140 * time.Second,
		ProviderTimeout:   30 * time.Second,
		HTTPReadTimeout:   30 * time.Second,
		HTTPWriteTimeout:  200 * time.Second,
		HTTPIdleTimeout:   60 * time.Second,
		RateLimitPerMin:   30,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LeonardoAPIKey = strings.TrimSpace(os.Getenv("LEONARDO_API_KEY"))
	cfg.LeonardoBaseURL = getEnv("LEONARDO_BASE_URL", cfg.LeonardoBaseURL)
	cfg.LeonardoModel = getEnv("LEONARDO_MODEL", cfg.LeonardoModel)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.GeneratedDir = getEnv("GENERATED_DIR", cfg.GeneratedDir)
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.DefaultPrompt = getEnv("DEFAULT_PROMPT", cfg.DefaultPrompt)
	cfg.OutputWidth = getEnvInt("OUTPUT_WIDTH", cfg.OutputWidth)
	cfg.OutputHeight = getEnvInt("OUTPUT_HEIGHT", cfg.OutputHeight)
	cfg.ReferenceStrength = getEnv("REFERENCE_STRENGTH", cfg.ReferenceStrength)
	cfg.PollInterval = getEnvSeconds("POLL_INTERVAL_SECONDS", cfg.PollInterval)
	cfg.PollTimeout = getEnvSeconds("POLL_TIMEOUT_SECONDS", cfg.PollTimeout)
	cfg.ProviderTimeout = getEnvSeconds("PROVIDER_CALL_TIMEOUT_SECONDS", cfg.ProviderTimeout)
	cfg.HTTPReadTimeout = getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", cfg.HTTPReadTimeout)
	cfg.HTTPWriteTimeout = getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", cfg.HTTPWriteTimeout)
	cfg.HTTPIdleTimeout = getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", cfg.HTTPIdleTimeout)
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMin)
	if origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if cfg.PollTimeout < cfg.PollInterval {
		return nil, fmt.Errorf("poll timeout %s is shorter than poll interval %s", cfg.PollTimeout, cfg.PollInterval)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return cfg, nil
}

// ProviderConfigured reports whether a provider credential is present.
func (c *Config) ProviderConfigured() bool {
	return c != nil && c.LeonardoAPIKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

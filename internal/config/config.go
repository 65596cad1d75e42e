package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/treegest/internal/tokens"
	"github.com/dgallion1/treegest/internal/visualtree"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML file read before the environment.
const FileEnv = "TREEGEST_CONFIG"

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Render defaults
	DefaultTokenLimit  int     `yaml:"default_token_limit"`
	DefaultDetailLevel string  `yaml:"default_detail_level"`
	DefaultStartingID  int     `yaml:"default_starting_id"`
	TokenRatios        string  `yaml:"token_ratios"`
	LatinTokenRatio    float64 `yaml:"latin_token_ratio"`
	CJKTokenRatio      float64 `yaml:"cjk_token_ratio"`
	CacheSize          int     `yaml:"cache_size"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Worker pool
	WorkerCount         int `yaml:"worker_count"`
	MaxQueueSize        int `yaml:"max_queue_size"`
	MaxConcurrentRender int `yaml:"max_concurrent_render"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// Browser capture
	BrowserControlURL string        `yaml:"browser_control_url"`
	BrowserHeadless   bool          `yaml:"browser_headless"`
	CaptureTimeout    time.Duration `yaml:"capture_timeout"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`

	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port: "8090",

		DefaultTokenLimit:  8000,
		DefaultDetailLevel: "compact",
		TokenRatios:        "default",
		CacheSize:          256,

		MaxUploadBytes: 20 << 20, // 20MB

		WorkerCount:         2,
		MaxQueueSize:        50,
		MaxConcurrentRender: 4,

		JobTTL: 1 * time.Hour,

		BrowserHeadless: true,
		CaptureTimeout:  30 * time.Second,

		PDFFallbackPdftotext: true,

		Env:      "dev",
		LogLevel: "info",
	}
}

// Load layers the defaults, the YAML file named by TREEGEST_CONFIG, a .env
// file in the working directory and the process environment, later layers
// winning.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	// .env never overrides variables already set.
	_ = godotenv.Load()

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("TREEGEST_API_KEY", c.APIKey)

	c.DefaultTokenLimit = envInt("DEFAULT_TOKEN_LIMIT", c.DefaultTokenLimit)
	c.DefaultDetailLevel = envOr("DEFAULT_DETAIL_LEVEL", c.DefaultDetailLevel)
	c.DefaultStartingID = envInt("DEFAULT_STARTING_ID", c.DefaultStartingID)
	c.TokenRatios = envOr("TOKEN_RATIOS", c.TokenRatios)
	c.LatinTokenRatio = envFloat("LATIN_TOKEN_RATIO", c.LatinTokenRatio)
	c.CJKTokenRatio = envFloat("CJK_TOKEN_RATIO", c.CJKTokenRatio)
	c.CacheSize = envInt("CACHE_SIZE", c.CacheSize)

	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.MaxConcurrentRender = envInt("MAX_CONCURRENT_RENDER", c.MaxConcurrentRender)

	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)

	c.BrowserControlURL = envOr("BROWSER_CONTROL_URL", c.BrowserControlURL)
	c.BrowserHeadless = envBool("BROWSER_HEADLESS", c.BrowserHeadless)
	c.CaptureTimeout = envDuration("CAPTURE_TIMEOUT", c.CaptureTimeout)

	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)

	c.Env = envOr("ENV", c.Env)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
}

func (c *Config) applyDefaults() {
	d := Defaults()
	if c.DefaultTokenLimit <= 0 {
		c.DefaultTokenLimit = d.DefaultTokenLimit
	}
	if c.DefaultStartingID < 0 {
		c.DefaultStartingID = 0
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxConcurrentRender <= 0 {
		c.MaxConcurrentRender = d.MaxConcurrentRender
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = d.CaptureTimeout
	}
}

// Detail returns the parsed default detail level.
func (c Config) Detail() visualtree.DetailLevel {
	return visualtree.ParseDetailLevel(c.DefaultDetailLevel)
}

// Estimator returns the token estimator: the named ratio set, with explicit
// per-script ratios taking precedence.
func (c Config) Estimator() tokens.Estimator {
	est := tokens.ByName(c.TokenRatios)
	if c.LatinTokenRatio > 0 {
		est.LatinRatio = c.LatinTokenRatio
	}
	if c.CJKTokenRatio > 0 {
		est.CJKRatio = c.CJKTokenRatio
	}
	return est
}

// Validate checks what the HTTP server needs. The CLI does not call it.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("TREEGEST_API_KEY is required")
	}
	est := c.Estimator()
	if est.LatinRatio <= 0 || est.CJKRatio <= 0 {
		return errors.New("token ratios must be positive")
	}
	if c.LatinTokenRatio < 0 || c.CJKTokenRatio < 0 {
		return errors.New("token ratios must be positive")
	}
	switch strings.ToLower(c.TokenRatios) {
	case "", "default", "legacy":
	default:
		return fmt.Errorf("unknown TOKEN_RATIOS %q (want default or legacy)", c.TokenRatios)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

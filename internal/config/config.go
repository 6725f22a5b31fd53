package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/logging"
)

const DefaultDatabaseURL = "sqlite:///posts.db"

// DevSecretKey signs sessions when Dev is set and no SECRET_KEY is given.
// Outside dev mode it is rejected.
const DevSecretKey = "dev-secret-key"

type Config struct {
	Addr         string            `yaml:"addr"`
	Dev          bool              `yaml:"dev"`
	DatabaseURL  string            `yaml:"database_url"`
	SecretKey    string            `yaml:"secret_key"`
	SessionTTL   time.Duration     `yaml:"session_ttl"`
	CookieSecure bool              `yaml:"cookie_secure"`
	// TrustProxy keys clients by X-Forwarded-For instead of the peer address.
	TrustProxy   bool              `yaml:"trust_proxy"`
	Password     auth.HasherConfig `yaml:"password"`
	Log          logging.Config    `yaml:"log"`
	RateLimits   RateLimits        `yaml:"rate_limits"`
	Gravatar     Gravatar          `yaml:"gravatar"`
}

type RateLimits struct {
	LoginPerMinute    int `yaml:"login_per_minute"`
	RegisterPerMinute int `yaml:"register_per_minute"`
	CommentPerMinute  int `yaml:"comment_per_minute"`
}

type Gravatar struct {
	Size    int    `yaml:"size"`
	Rating  string `yaml:"rating"`
	Default string `yaml:"default"`
}

func Default() Config {
	return Config{
		Addr:        ":8080",
		DatabaseURL: DefaultDatabaseURL,
		SessionTTL:  24 * time.Hour,
		Password: auth.HasherConfig{
			Method:     auth.MethodPBKDF2SHA256,
			SaltLength: auth.DefaultSaltLength,
			Iterations: auth.DefaultPBKDF2Iterations,
			BcryptCost: 10,
		},
		Log: logging.Config{Level: "info", Format: "text", Output: "stderr"},
		RateLimits: RateLimits{
			LoginPerMinute:    10,
			RegisterPerMinute: 5,
			CommentPerMinute:  30,
		},
		Gravatar: Gravatar{Size: 50, Rating: "g", Default: "retro"},
	}
}

// Load layers defaults, the YAML file named by INKPOST_CONFIG, and the
// environment (after reading .env if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("INKPOST_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if cfg.Dev && cfg.SecretKey == "" {
		cfg.SecretKey = DevSecretKey
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("INKPOST_ADDR"); addr != "" {
		cfg.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	cfg.Dev = envBool("INKPOST_DEV", cfg.Dev)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.SecretKey = envString("SECRET_KEY", cfg.SecretKey)
	cfg.SessionTTL = envDuration("INKPOST_SESSION_TTL", cfg.SessionTTL)
	cfg.CookieSecure = envBool("INKPOST_COOKIE_SECURE", cfg.CookieSecure)
	cfg.TrustProxy = envBool("INKPOST_TRUST_PROXY", cfg.TrustProxy)

	cfg.Password.Method = envString("INKPOST_PASSWORD_METHOD", cfg.Password.Method)
	cfg.Password.SaltLength = envInt("INKPOST_PASSWORD_SALT_LENGTH", cfg.Password.SaltLength)
	cfg.Password.Iterations = envInt("INKPOST_PASSWORD_ITERATIONS", cfg.Password.Iterations)
	cfg.Password.BcryptCost = envInt("INKPOST_BCRYPT_COST", cfg.Password.BcryptCost)

	cfg.Log.Level = envString("INKPOST_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("INKPOST_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = envString("INKPOST_LOG_OUTPUT", cfg.Log.Output)

	cfg.RateLimits.LoginPerMinute = envInt("INKPOST_RL_LOGIN_PER_MIN", cfg.RateLimits.LoginPerMinute)
	cfg.RateLimits.RegisterPerMinute = envInt("INKPOST_RL_REGISTER_PER_MIN", cfg.RateLimits.RegisterPerMinute)
	cfg.RateLimits.CommentPerMinute = envInt("INKPOST_RL_COMMENT_PER_MIN", cfg.RateLimits.CommentPerMinute)
}

func (c Config) Validate() error {
	var errs []error
	switch {
	case strings.TrimSpace(c.SecretKey) == "":
		errs = append(errs, errors.New("SECRET_KEY must be set (or INKPOST_DEV=true for local development)"))
	case c.SecretKey == DevSecretKey && !c.Dev:
		errs = append(errs, errors.New("SECRET_KEY must not be the development key outside INKPOST_DEV"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if _, err := auth.NewHasher(c.Password); err != nil {
		errs = append(errs, fmt.Errorf("password: %w", err))
	}
	if c.RateLimits.LoginPerMinute < 0 || c.RateLimits.RegisterPerMinute < 0 || c.RateLimits.CommentPerMinute < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location; FLOODWATCH_CONFIG overrides it.
const ConfigPath = "config.yaml"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	minProductionSecretBytes = 16
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port" validate:"required,numeric"`
	LogLevel          string   `yaml:"logLevel"`
	Environment       string   `yaml:"environment"`
	DatabaseURL       string   `yaml:"databaseURL" validate:"required"`
	JWTSecret         string   `yaml:"jwtSecret" validate:"required"`
	JWTIssuer         string   `yaml:"jwtIssuer"`
	SessionTTL        string   `yaml:"sessionTTL"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	GovFloodAPIURL   string `yaml:"govFloodApiURL" validate:"omitempty,url"`
	GovShelterAPIURL string `yaml:"govShelterApiURL" validate:"omitempty,url"`
	GovAPIKey        string `yaml:"govApiKey"`
	FeedTimeout      string `yaml:"feedTimeout"`

	SchedulerEnabled *bool  `yaml:"schedulerEnabled"`
	FloodSyncRule    string `yaml:"floodSyncRule"`
	ShelterSyncRule  string `yaml:"shelterSyncRule"`

	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute" validate:"gte=0"`
	RegisterRateLimitPerMinute int `yaml:"registerRateLimitPerMinute" validate:"gte=0"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to FLOODWATCH_CONFIG, then config.yaml),
// applies environment overrides and validates the result. A missing file is
// allowed when the environment supplies every required value.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("FLOODWATCH_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Environment, "APP_ENV", "NODE_ENV")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.SessionTTL, "SESSION_TTL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.GovFloodAPIURL, "GOV_FLOOD_API_URL")
	setString(&cfg.GovShelterAPIURL, "GOV_SHELTER_API_URL")
	setString(&cfg.GovAPIKey, "GOV_FLOOD_API_KEY")
	setString(&cfg.FeedTimeout, "GOV_FEED_TIMEOUT")
	setString(&cfg.FloodSyncRule, "FLOOD_SYNC_RULE")
	setString(&cfg.ShelterSyncRule, "SHELTER_SYNC_RULE")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitList(v)
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SchedulerEnabled = &b
		}
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg FileConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q validation", yamlName(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.IsDevelopment() && len(cfg.JWTSecret) < minProductionSecretBytes {
		return fmt.Errorf("config: jwtSecret must be at least %d bytes outside development", minProductionSecretBytes)
	}
	for name, raw := range map[string]string{"sessionTTL": cfg.SessionTTL, "feedTimeout": cfg.FeedTimeout} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("config: invalid %s duration %q", name, raw)
		}
	}
	for name, raw := range map[string]string{"floodSyncRule": cfg.FloodSyncRule, "shelterSyncRule": cfg.ShelterSyncRule} {
		if raw == "" {
			continue
		}
		if _, err := rrule.StrToRRule(raw); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	if cfg.MinioEndpoint != "" && strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	return nil
}

// IsDevelopment reports whether the environment is "development"
// (case-insensitive).
func (c FileConfig) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvDevelopment)
}

// SchedulerOn reports whether periodic sync should run (default on).
func (c FileConfig) SchedulerOn() bool {
	return c.SchedulerEnabled == nil || *c.SchedulerEnabled
}

// ParseDuration parses an optional duration, returning fallback when empty.
func ParseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
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

func yamlName(field string) string {
	switch field {
	case "DatabaseURL":
		return "databaseURL"
	case "JWTSecret":
		return "jwtSecret"
	case "GovFloodAPIURL":
		return "govFloodApiURL"
	case "GovShelterAPIURL":
		return "govShelterApiURL"
	}
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// Package config loads the process configuration once at startup.
//
// Values come from an optional config.yml and from environment variables
// (environment wins). The returned *Config is treated as immutable: it is
// built in main and injected into every component, nothing reads the
// environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration values.
type Config struct {
	Port     int    `mapstructure:"PORT"`
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// DatabaseURL is a sqlite file path (or ":memory:") or a mongodb:// URI.
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	MongoDatabase      string `mapstructure:"MONGODB_DATABASE"`
	CommentsCollection string `mapstructure:"COMMENTS_COLLECTION"`

	// Three independent signing secrets, one per token kind.
	VerificationSecret string `mapstructure:"JWT_SECRET"`
	AccessSecret       string `mapstructure:"JWT_ACCESS_KEY"`
	RefreshSecret      string `mapstructure:"JWT_REFRESH_KEY"`
	SessionSecret      string `mapstructure:"SESSION_SECRET"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	// ClientURL is the public base URL of this API (used in emailed links
	// and the OAuth callback). FrontEndURL is the SPA that redirects land on.
	ClientURL   string `mapstructure:"CLIENT_URL"`
	FrontEndURL string `mapstructure:"FRONT_END_URL"`

	CloudinaryCloudName string `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `mapstructure:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `mapstructure:"CLOUDINARY_API_SECRET"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	MaxUploadMB    int    `mapstructure:"MAX_UPLOAD_MB"`
	AuthRateLimit  int    `mapstructure:"AUTH_RATE_LIMIT"`
}

// APIPrefix is the versioned path prefix every route is mounted under.
const APIPrefix = "/api/v2"

var envKeys = []string{
	"PORT", "APP_ENV", "LOG_LEVEL",
	"DATABASE_URL", "MONGODB_DATABASE", "COMMENTS_COLLECTION",
	"JWT_SECRET", "JWT_ACCESS_KEY", "JWT_REFRESH_KEY", "SESSION_SECRET",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM",
	"CLIENT_URL", "FRONT_END_URL",
	"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
	"REDIS_URL", "ALLOWED_ORIGINS", "COOKIE_SECURE", "MAX_UPLOAD_MB", "AUTH_RATE_LIMIT",
}

// Load reads configuration from config.yml (if present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	// viper.Unmarshal only sees keys it knows about; AutomaticEnv alone
	// does not register them.
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 5000)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "data/thoughts.db")
	v.SetDefault("MONGODB_DATABASE", "thoughts")
	v.SetDefault("COMMENTS_COLLECTION", "comments")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "no-reply@thoughts.local")
	v.SetDefault("CLIENT_URL", "http://localhost:5000")
	v.SetDefault("FRONT_END_URL", "http://localhost:5173")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("MAX_UPLOAD_MB", 5)
	v.SetDefault("AUTH_RATE_LIMIT", 5)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.ClientURL = strings.TrimRight(c.ClientURL, "/")
	c.FrontEndURL = strings.TrimRight(c.FrontEndURL, "/")
	c.CommentsCollection = strings.TrimSpace(c.CommentsCollection)
}

// Validate ensures required values are present and the token secrets
// partition the token namespace.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	secrets := map[string]string{
		"JWT_SECRET":      c.VerificationSecret,
		"JWT_ACCESS_KEY":  c.AccessSecret,
		"JWT_REFRESH_KEY": c.RefreshSecret,
		"SESSION_SECRET":  c.SessionSecret,
	}
	seen := make(map[string]string, len(secrets))
	for _, name := range []string{"JWT_SECRET", "JWT_ACCESS_KEY", "JWT_REFRESH_KEY", "SESSION_SECRET"} {
		value := secrets[name]
		if len(value) < 16 {
			return fmt.Errorf("%s must be at least 16 characters", name)
		}
		if other, dup := seen[value]; dup {
			return fmt.Errorf("%s must differ from %s", name, other)
		}
		seen[value] = name
	}

	switch c.CommentsCollection {
	case "comments", "like_comments":
	default:
		return fmt.Errorf("COMMENTS_COLLECTION must be comments or like_comments, got %q", c.CommentsCollection)
	}

	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// IsMongo reports whether DatabaseURL points at a MongoDB deployment.
func (c *Config) IsMongo() bool {
	return strings.HasPrefix(c.DatabaseURL, "mongodb://") || strings.HasPrefix(c.DatabaseURL, "mongodb+srv://")
}

// GoogleEnabled reports whether federated login can be offered.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// CloudinaryEnabled reports whether object storage credentials are present.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// SMTPEnabled reports whether a real mail transport is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// CallbackURL is the OAuth redirect URI registered with the provider.
func (c *Config) CallbackURL() string {
	return c.ClientURL + APIPrefix + "/users/google/callback"
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Encryption  EncryptionConfig
	Automation  AutomationConfig
	Slack       SlackConfig
	RateLimit   RateLimitConfig
	Scanner     ScannerConfig
	CORSOrigins []string
}

type ServerConfig struct {
	Host    string
	Port    int
	Env     string
	BaseURL string
}

// DatabaseConfig carries two sets of credentials. User/Password is the
// application role; ServiceUser/ServicePassword is the elevated role used
// only for first-login provisioning.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	ServiceUser     string
	ServicePassword string
	Name            string
	SSLMode         string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// AuthConfig describes the hosted identity provider. SignInURL is its
// login page, which redirects back to /api/auth/callback.
type AuthConfig struct {
	JWTSecret    string
	Audience     string
	ExpiryHours  int
	SignInURL    string
	SecureCookie bool
}

type EncryptionConfig struct {
	Key string
}

type AutomationConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type ScannerConfig struct {
	Port          int
	DefaultRegion string
	ReportBaseURL string
}

func (d *DatabaseConfig) DSN() string {
	return d.dsn(d.User, d.Password)
}

// ServiceDSN falls back to the application role when no service role is set.
func (d *DatabaseConfig) ServiceDSN() string {
	if d.ServiceUser == "" {
		return d.DSN()
	}
	return d.dsn(d.ServiceUser, d.ServicePassword)
}

func (d *DatabaseConfig) dsn(user, password string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, user, password, d.Name, d.SSLMode,
	)
}

// URL is the postgres:// form golang-migrate expects. Migrations run as the
// service role since they own the schema.
func (d *DatabaseConfig) URL() string {
	user, password := d.User, d.Password
	if d.ServiceUser != "" {
		user, password = d.ServiceUser, d.ServicePassword
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (a *AuthConfig) Expiry() time.Duration {
	return time.Duration(a.ExpiryHours) * time.Hour
}

func (a *AutomationConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ScannerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "cloudguard")
	v.SetDefault("DATABASE_PASSWORD", "cloudguard_secret")
	v.SetDefault("DATABASE_SERVICE_USER", "")
	v.SetDefault("DATABASE_SERVICE_PASSWORD", "")
	v.SetDefault("DATABASE_NAME", "cloudguard")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("AUTH_JWT_SECRET", "change-me-in-production")
	v.SetDefault("AUTH_JWT_AUDIENCE", "authenticated")
	v.SetDefault("AUTH_JWT_EXPIRY_HOURS", 1)
	v.SetDefault("AUTH_SIGN_IN_URL", "http://localhost:9999/authorize?provider=email&redirect_to=http://localhost:8080/api/auth/callback")
	v.SetDefault("AUTH_SECURE_COOKIE", false)
	v.SetDefault("AUTOMATION_WEBHOOK_URL", "http://localhost:5678/webhook/cloud-scan-trigger")
	v.SetDefault("AUTOMATION_WEBHOOK_TIMEOUT_SECONDS", 30)
	v.SetDefault("SLACK_WEBHOOK_URL", "")
	v.SetDefault("SLACK_CHANNEL", "#cloud-alerts")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("SCANNER_PORT", 8090)
	v.SetDefault("SCANNER_DEFAULT_REGION", "eu-central-1")
	v.SetDefault("SCANNER_REPORT_BASE_URL", "http://localhost:8080/reports")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:    v.GetString("SERVER_HOST"),
			Port:    v.GetInt("SERVER_PORT"),
			Env:     v.GetString("SERVER_ENV"),
			BaseURL: v.GetString("SERVER_BASE_URL"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DATABASE_HOST"),
			Port:            v.GetInt("DATABASE_PORT"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			ServiceUser:     v.GetString("DATABASE_SERVICE_USER"),
			ServicePassword: v.GetString("DATABASE_SERVICE_PASSWORD"),
			Name:            v.GetString("DATABASE_NAME"),
			SSLMode:         v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("AUTH_JWT_SECRET"),
			Audience:     v.GetString("AUTH_JWT_AUDIENCE"),
			ExpiryHours:  v.GetInt("AUTH_JWT_EXPIRY_HOURS"),
			SignInURL:    v.GetString("AUTH_SIGN_IN_URL"),
			SecureCookie: v.GetBool("AUTH_SECURE_COOKIE"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		Automation: AutomationConfig{
			WebhookURL:     v.GetString("AUTOMATION_WEBHOOK_URL"),
			TimeoutSeconds: v.GetInt("AUTOMATION_WEBHOOK_TIMEOUT_SECONDS"),
		},
		Slack: SlackConfig{
			WebhookURL: v.GetString("SLACK_WEBHOOK_URL"),
			Channel:    v.GetString("SLACK_CHANNEL"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Scanner: ScannerConfig{
			Port:          v.GetInt("SCANNER_PORT"),
			DefaultRegion: v.GetString("SCANNER_DEFAULT_REGION"),
			ReportBaseURL: v.GetString("SCANNER_REPORT_BASE_URL"),
		},
		CORSOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

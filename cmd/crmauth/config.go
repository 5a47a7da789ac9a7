package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/crmauth/internal/handlers/middleware"
	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/service/auth/attempts"
	"github.com/nkiryanov/crmauth/internal/service/auth/tokenmanager"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultSMTPPort     = 587
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key. Signing keys of every token kind are derived from it
	SecretKey string

	// Environment
	Environment string

	// Redis keeps login attempts and revoked tokens. Empty means process memory (single replica only)
	RedisAddr     string
	RedisPassword string

	// Lockout policy
	MaxLoginAttempts int
	LoginLockout     time.Duration
	LockoutFailOpen  bool

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	// Zero means exact exp and iat checks
	ClockSkew time.Duration

	// Reset e-mails are only logged if SMTP host is empty
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	ResetURL     string

	// Proxies (CIDR or address) whose X-Forwarded-For is honored. Empty means the peer address is the client
	TrustedProxies []string

	// Sentry reporting is off if empty
	SentryDSN string

	// First administrator, created on start if password is set and login is free
	AdminLogin    string
	AdminEmail    string
	AdminPassword string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		Environment:      defaultEnvironment,
		MaxLoginAttempts: attempts.DefaultMaxAttempts,
		LoginLockout:     attempts.DefaultWindow,
		AccessTokenTTL:   tokenmanager.DefaultAccessTTL,
		RefreshTokenTTL:  tokenmanager.DefaultRefreshTTL,
		ResetTokenTTL:    tokenmanager.DefaultResetTTL,
		ClockSkew:        tokenmanager.DefaultClockSkew,
		SMTPPort:         defaultSMTPPort,
		AdminLogin:       "admin",
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			var items []string
			for item := range strings.SplitSeq(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*o = items
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"REDIS_ADDRESS":      setString(&c.RedisAddr),
		"REDIS_PASSWORD":     setString(&c.RedisPassword),
		"MAX_LOGIN_ATTEMPTS": setInt(&c.MaxLoginAttempts),
		"LOGIN_LOCKOUT":      setDuration(&c.LoginLockout),
		"LOCKOUT_FAIL_OPEN":  setBool(&c.LockoutFailOpen),
		"ACCESS_TOKEN_TTL":   setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":  setDuration(&c.RefreshTokenTTL),
		"RESET_TOKEN_TTL":    setDuration(&c.ResetTokenTTL),
		"CLOCK_SKEW":         setDuration(&c.ClockSkew),
		"SMTP_HOST":          setString(&c.SMTPHost),
		"SMTP_PORT":          setInt(&c.SMTPPort),
		"SMTP_USERNAME":      setString(&c.SMTPUsername),
		"SMTP_PASSWORD":      setString(&c.SMTPPassword),
		"SMTP_FROM":          setString(&c.SMTPFrom),
		"RESET_URL":          setString(&c.ResetURL),
		"TRUSTED_PROXIES":    setList(&c.TrustedProxies),
		"SENTRY_DSN":         setString(&c.SentryDSN),
		"ADMIN_LOGIN":        setString(&c.AdminLogin),
		"ADMIN_EMAIL":        setString(&c.AdminEmail),
		"ADMIN_PASSWORD":     setString(&c.AdminPassword),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("crmauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address, process memory is used if empty")
	fs.IntVar(&c.MaxLoginAttempts, "max-login-attempts", c.MaxLoginAttempts, "Failed logins from one source before lockout")
	fs.DurationVar(&c.LoginLockout, "login-lockout", c.LoginLockout, "Lockout window")
	fs.BoolVar(&c.LockoutFailOpen, "lockout-fail-open", c.LockoutFailOpen, "Allow logins when attempt tracker is unavailable")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.ResetTokenTTL, "reset-ttl", c.ResetTokenTTL, "Password reset token lifetime")
	fs.DurationVar(&c.ClockSkew, "clock-skew", c.ClockSkew, "Accepted clock skew for token time claims, 0 for exact checks")
	fs.StringVar(&c.SMTPHost, "smtp-host", c.SMTPHost, "SMTP host for reset e-mails, e-mails are logged if empty")
	fs.IntVar(&c.SMTPPort, "smtp-port", c.SMTPPort, "SMTP port")
	fs.StringVar(&c.SMTPFrom, "smtp-from", c.SMTPFrom, "Sender address of reset e-mails")
	fs.StringVar(&c.ResetURL, "reset-url", c.ResetURL, "Password reset page, token is appended as query parameter")
	fs.StringSliceVar(&c.TrustedProxies, "trusted-proxies", c.TrustedProxies, "Proxies (CIDR or address) allowed to set X-Forwarded-For")
	fs.StringVar(&c.SentryDSN, "sentry-dsn", c.SentryDSN, "Sentry DSN")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.MaxLoginAttempts < 1 {
		errs = append(errs, fmt.Errorf("max login attempts must be positive, got %d", c.MaxLoginAttempts))
	}
	if c.LoginLockout <= 0 {
		errs = append(errs, fmt.Errorf("login lockout must be positive, got %s", c.LoginLockout))
	}
	if c.ClockSkew < 0 || c.ClockSkew > tokenmanager.MaxClockSkew {
		errs = append(errs, fmt.Errorf("clock skew must be within [0, %s], got %s", tokenmanager.MaxClockSkew, c.ClockSkew))
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		errs = append(errs, errors.New("smtp from address is required when smtp host is set"))
	}

	return errors.Join(errs...)
}

// Explicit zero skew is kept as zero, token manager would read it as "use default"
func (c *Config) TokenManagerConfig() tokenmanager.Config {
	skew := c.ClockSkew
	if skew == 0 {
		skew = tokenmanager.NoClockSkew
	}

	return tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
		ResetTTL:   c.ResetTokenTTL,
		ClockSkew:  skew,
	}
}

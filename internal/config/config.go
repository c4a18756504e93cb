// Package config loads the server configuration.
//
// Values are layered: built-in defaults, then environment variables, then
// command-line flags. The result is validated once; the server refuses to
// start on an invalid config rather than falling back to something unsafe.
// In particular there is no default signing secret.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"
)

// Config holds runtime settings for the auth server.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret is the HS256 secret. JWTKeyFile, when set, points to a PEM
	// RSA private key and takes precedence (RS256).
	JWTSecret  string
	JWTKeyFile string
	JWTIssuer  string
	TokenTTL   time.Duration

	ResetTTL time.Duration

	BcryptCost      int
	StrictPasswords bool

	SecureCookie bool
	LogLevel     string
}

// LoadDefaults populates Config with development defaults. JWTSecret is
// deliberately left empty.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.DBPath = "data/auth.db"
	c.TokenTTL = 7 * 24 * time.Hour
	c.ResetTTL = time.Hour
	c.BcryptCost = 12
	c.StrictPasswords = false
	c.SecureCookie = true
	c.LogLevel = "info"
}

// Load builds a Config from defaults, the environment (via getenv) and args
// (without the program name), then validates it.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadFromOS is Load over os.Args and os.Getenv.
func LoadFromOS() (*Config, error) {
	return Load(os.Args[1:], os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	integer("PORT", &c.Port)
	str("DB_PATH", &c.DBPath)
	str("JWT_SECRET", &c.JWTSecret)
	str("JWT_KEY_FILE", &c.JWTKeyFile)
	str("JWT_ISSUER", &c.JWTIssuer)
	duration("TOKEN_TTL", &c.TokenTTL)
	duration("RESET_TTL", &c.ResetTTL)
	integer("BCRYPT_COST", &c.BcryptCost)
	boolean("STRICT_PASSWORDS", &c.StrictPasswords)
	boolean("SECURE_COOKIE", &c.SecureCookie)
	str("LOG_LEVEL", &c.LogLevel)

	return errors.Join(errs...)
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path")
	fs.StringVar(&c.JWTSecret, "jwt-secret", c.JWTSecret, "HS256 signing secret (>= 16 bytes)")
	fs.StringVar(&c.JWTKeyFile, "jwt-key-file", c.JWTKeyFile, "PEM RSA private key for RS256 signing")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", c.JWTIssuer, "token issuer (iss claim)")
	fs.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "signed token lifetime")
	fs.DurationVar(&c.ResetTTL, "reset-ttl", c.ResetTTL, "password reset token lifetime")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", c.BcryptCost, "bcrypt work factor")
	fs.BoolVar(&c.StrictPasswords, "strict-passwords", c.StrictPasswords, "reject saving a value that is already a bcrypt hash")
	fs.BoolVar(&c.SecureCookie, "secure-cookie", c.SecureCookie, "set the Secure flag on the token cookie")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")

	return fs.Parse(args)
}

// Validate checks every field. A signing secret or key file is mandatory.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.JWTSecret, validation.By(c.checkSecret)),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.ResetTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.BcryptCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

func (c Config) checkSecret(value interface{}) error {
	if c.JWTKeyFile != "" {
		return nil
	}
	secret, _ := value.(string)
	switch {
	case secret == "":
		return errors.New("JWT_SECRET or JWT_KEY_FILE must be set")
	case len(secret) < 16:
		return errors.New("must be at least 16 bytes")
	}
	return nil
}

// SigningKey returns the key material for auth.TokenConfig: the PEM file's
// contents when JWTKeyFile is set, otherwise the secret.
func (c Config) SigningKey() ([]byte, error) {
	if c.JWTKeyFile == "" {
		return []byte(c.JWTSecret), nil
	}
	key, err := os.ReadFile(c.JWTKeyFile)
	if err != nil {
		return nil, fmt.Errorf("config: reading JWT key file: %w", err)
	}
	return key, nil
}

// Level maps LogLevel onto slog.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

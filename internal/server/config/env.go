package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig lists the environment variables the server understands.
// Pointer fields stay nil when a variable is unset so defaults survive.
type envConfig struct {
	Environment *string `env:"ENV"`
	LogLevel    *string `env:"LOG_LEVEL"`
	HTTPAddr    *string `env:"HTTP_ADDR"`
	DatabaseDSN *string `env:"DATABASE_DSN"`
	BaseURL     *string `env:"BASE_URL"`

	DBName     *string `env:"DB_NAME"`
	DBUser     *string `env:"DB_USER"`
	DBHostname *string `env:"DB_HOSTNAME"`
	DBPassword *string `env:"DB_PWD"`
	DBPort     *int    `env:"DB_PORT"`

	Algorithm                       *string `env:"ALGORITHM"`
	AccessTokenSecretKey            *string `env:"ACCESS_TOKEN_SECRET_KEY"`
	RefreshTokenSecretKey           *string `env:"REFRESH_TOKEN_SECRET_KEY"`
	EmailVerificationTokenSecretKey *string `env:"EMAIL_VERIFICATION_TOKEN_SECRET_KEY"`
	PasswordResetTokenSecretKey     *string `env:"PASSWORD_RESET_TOKEN_SECRET_KEY"`

	AccessTokenExpMinutes       *int `env:"ACCESS_TOKEN_EXP_MINUTES"`
	RefreshTokenExpMinutes      *int `env:"REFRESH_TOKEN_EXP_MINUTES"`
	EmailVerificationExpMinutes *int `env:"EMAIL_VERIFICATION_EXP_MINUTES"`
	PasswordResetExpMinutes     *int `env:"PASSWORD_RESET_EXP_MINUTES"`

	EmailServer   *string `env:"EMAIL_SERVER"`
	EmailPort     *int    `env:"EMAIL_PORT"`
	EmailUsername *string `env:"EMAIL_USERNAME"`
	EmailPassword *string `env:"EMAIL_PASSWORD"`
	EmailFrom     *string `env:"EMAIL_FROM"`
	EmailFromName *string `env:"EMAIL_FROM_NAME"`

	OutboxPollInterval *time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    *int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  *int           `env:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryBase    *time.Duration `env:"OUTBOX_RETRY_BASE"`
	OutboxRetryMax     *time.Duration `env:"OUTBOX_RETRY_MAX"`
	OutboxLease        *time.Duration `env:"OUTBOX_LEASE"`
}

// parseEnv overlays the variables present in environ onto config.
func parseEnv(config *Config, environ map[string]string) error {
	e, err := env.ParseAsWithOptions[envConfig](env.Options{Environment: environ})
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	setPtr(&config.Environment, e.Environment)
	setPtr(&config.LogLevel, e.LogLevel)
	setPtr(&config.HTTPAddr, e.HTTPAddr)
	setPtr(&config.BaseURL, e.BaseURL)

	if e.DBHostname != nil {
		config.DatabaseDSN = e.dsnFromParts()
	}
	setPtr(&config.DatabaseDSN, e.DatabaseDSN)

	setPtr(&config.Algorithm, e.Algorithm)
	setPtr(&config.AccessTokenSecretKey, e.AccessTokenSecretKey)
	setPtr(&config.RefreshTokenSecretKey, e.RefreshTokenSecretKey)
	setPtr(&config.EmailVerificationTokenSecretKey, e.EmailVerificationTokenSecretKey)
	setPtr(&config.PasswordResetTokenSecretKey, e.PasswordResetTokenSecretKey)

	setMinutes(&config.AccessTokenValidityDuration, e.AccessTokenExpMinutes)
	setMinutes(&config.RefreshTokenValidityDuration, e.RefreshTokenExpMinutes)
	setMinutes(&config.EmailVerificationTokenValidityDuration, e.EmailVerificationExpMinutes)
	setMinutes(&config.PasswordResetTokenValidityDuration, e.PasswordResetExpMinutes)

	setPtr(&config.EmailServer, e.EmailServer)
	setPtr(&config.EmailPort, e.EmailPort)
	setPtr(&config.EmailUsername, e.EmailUsername)
	setPtr(&config.EmailPassword, e.EmailPassword)
	setPtr(&config.EmailFrom, e.EmailFrom)
	setPtr(&config.EmailFromName, e.EmailFromName)

	setPtr(&config.OutboxPollInterval, e.OutboxPollInterval)
	setPtr(&config.OutboxBatchSize, e.OutboxBatchSize)
	setPtr(&config.OutboxMaxAttempts, e.OutboxMaxAttempts)
	setPtr(&config.OutboxRetryBase, e.OutboxRetryBase)
	setPtr(&config.OutboxRetryMax, e.OutboxRetryMax)
	setPtr(&config.OutboxLease, e.OutboxLease)

	return nil
}

// dsnFromParts assembles a DSN from the split DB_* variables.
func (e envConfig) dsnFromParts() string {
	port := 5432
	if e.DBPort != nil {
		port = *e.DBPort
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(deref(e.DBHostname), strconv.Itoa(port)),
		Path:     "/" + deref(e.DBName),
		RawQuery: "sslmode=disable",
	}
	if e.DBUser != nil {
		if e.DBPassword != nil {
			u.User = url.UserPassword(*e.DBUser, *e.DBPassword)
		} else {
			u.User = url.User(*e.DBUser)
		}
	}
	return u.String()
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setMinutes(dst *time.Duration, minutes *int) {
	if minutes != nil {
		*dst = time.Duration(*minutes) * time.Minute
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

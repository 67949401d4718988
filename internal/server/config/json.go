package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/onepass/internal/flagx"
	"github.com/dmitrijs2005/onepass/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Durations
// use timex.Duration so both "15m" strings and integer nanoseconds work.
// Keys that are absent or zero leave the current value untouched.
type JsonConfig struct {
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`
	BaseURL     string `json:"base_url"`

	Algorithm                       string `json:"algorithm"`
	AccessTokenSecretKey            string `json:"access_token_secret_key"`
	RefreshTokenSecretKey           string `json:"refresh_token_secret_key"`
	EmailVerificationTokenSecretKey string `json:"email_verification_token_secret_key"`
	PasswordResetTokenSecretKey     string `json:"password_reset_token_secret_key"`

	AccessTokenValidityDuration            timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration           timex.Duration `json:"refresh_token_validity_duration"`
	EmailVerificationTokenValidityDuration timex.Duration `json:"email_verification_token_validity_duration"`
	PasswordResetTokenValidityDuration     timex.Duration `json:"password_reset_token_validity_duration"`

	EmailServer   string `json:"email_server"`
	EmailPort     int    `json:"email_port"`
	EmailUsername string `json:"email_username"`
	EmailPassword string `json:"email_password"`
	EmailFrom     string `json:"email_from"`
	EmailFromName string `json:"email_from_name"`

	OutboxPollInterval timex.Duration `json:"outbox_poll_interval"`
	OutboxBatchSize    int            `json:"outbox_batch_size"`
	OutboxMaxAttempts  int            `json:"outbox_max_attempts"`
	OutboxRetryBase    timex.Duration `json:"outbox_retry_base"`
	OutboxRetryMax     timex.Duration `json:"outbox_retry_max"`
	OutboxLease        timex.Duration `json:"outbox_lease"`
}

// parseJson loads the file named by -c/-config, if any, into config.
// Unreadable files and invalid JSON panic.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Environment, c.Environment)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.BaseURL, c.BaseURL)

	setString(&config.Algorithm, c.Algorithm)
	setString(&config.AccessTokenSecretKey, c.AccessTokenSecretKey)
	setString(&config.RefreshTokenSecretKey, c.RefreshTokenSecretKey)
	setString(&config.EmailVerificationTokenSecretKey, c.EmailVerificationTokenSecretKey)
	setString(&config.PasswordResetTokenSecretKey, c.PasswordResetTokenSecretKey)

	setNonZero(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration.Duration)
	setNonZero(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration.Duration)
	setNonZero(&config.EmailVerificationTokenValidityDuration, c.EmailVerificationTokenValidityDuration.Duration)
	setNonZero(&config.PasswordResetTokenValidityDuration, c.PasswordResetTokenValidityDuration.Duration)

	setString(&config.EmailServer, c.EmailServer)
	setNonZero(&config.EmailPort, c.EmailPort)
	setString(&config.EmailUsername, c.EmailUsername)
	setString(&config.EmailPassword, c.EmailPassword)
	setString(&config.EmailFrom, c.EmailFrom)
	setString(&config.EmailFromName, c.EmailFromName)

	setNonZero(&config.OutboxPollInterval, c.OutboxPollInterval.Duration)
	setNonZero(&config.OutboxBatchSize, c.OutboxBatchSize)
	setNonZero(&config.OutboxMaxAttempts, c.OutboxMaxAttempts)
	setNonZero(&config.OutboxRetryBase, c.OutboxRetryBase.Duration)
	setNonZero(&config.OutboxRetryMax, c.OutboxRetryMax.Duration)
	setNonZero(&config.OutboxLease, c.OutboxLease.Duration)
}

func setString(dst *string, v string) {
	setNonZero(dst, v)
}

func setNonZero[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

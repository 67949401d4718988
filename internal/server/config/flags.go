package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/onepass/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN, or "memory"
//	-e string   environment ("development", "production")
//	-l string   log level
//	-b string   base URL used in email links
//	-g string   signing algorithm (HS256, HS384, HS512)
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-v int      email verification token validity, minutes
//	-p int      password reset token validity, minutes
//	-m string   SMTP server host
//
// Token secrets are read only from the environment or the JSON file.
// Duration flags override the current value only when given explicitly.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-e", "-l", "-b", "-g", "-t", "-r", "-v", "-p", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.BaseURL, "b", config.BaseURL, "base URL for email links")
	fs.StringVar(&config.Algorithm, "g", config.Algorithm, "token signing algorithm")

	access := fs.Int("t", minutes(config.AccessTokenValidityDuration), "access token validity (in minutes)")
	refresh := fs.Int("r", minutes(config.RefreshTokenValidityDuration), "refresh token validity (in minutes)")
	verification := fs.Int("v", minutes(config.EmailVerificationTokenValidityDuration), "email verification token validity (in minutes)")
	reset := fs.Int("p", minutes(config.PasswordResetTokenValidityDuration), "password reset token validity (in minutes)")

	fs.StringVar(&config.EmailServer, "m", config.EmailServer, "SMTP server host")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*access) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refresh) * time.Minute
		case "v":
			config.EmailVerificationTokenValidityDuration = time.Duration(*verification) * time.Minute
		case "p":
			config.PasswordResetTokenValidityDuration = time.Duration(*reset) * time.Minute
		}
	})
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

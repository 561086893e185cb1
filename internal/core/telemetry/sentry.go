// Package telemetry provides error tracking for the CLI.
package telemetry

import (
	"os"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds telemetry configuration.
type Config struct {
	// DSN is the Sentry DSN. Telemetry is off without one.
	DSN string

	// Enabled controls whether telemetry is enabled.
	// Can be disabled via COMPDEF_TELEMETRY_DISABLED=true
	Enabled bool

	// Environment is the deployment environment (development, ci, production).
	Environment string

	// Version is the CLI version.
	Version string

	// Debug enables debug mode for Sentry.
	Debug bool
}

// DefaultConfig returns the telemetry configuration from the environment.
func DefaultConfig(version string) *Config {
	cfg := &Config{
		DSN:         os.Getenv("COMPDEF_SENTRY_DSN"),
		Enabled:     true,
		Environment: "production",
		Version:     version,
	}

	if disabled := os.Getenv("COMPDEF_TELEMETRY_DISABLED"); disabled == "true" || disabled == "1" {
		cfg.Enabled = false
	}

	if env := os.Getenv("COMPDEF_ENVIRONMENT"); env != "" {
		cfg.Environment = env
	} else if os.Getenv("CI") != "" {
		cfg.Environment = "ci"
	}

	return cfg
}

// Init initializes Sentry with the given configuration.
// Returns a cleanup function that should be deferred.
func Init(cfg *Config) func() {
	if !cfg.Enabled || cfg.DSN == "" {
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          "compdef-cli@" + cfg.Version,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		SampleRate:       1.0,
		SendDefaultPII:   false,
		ServerName:       "",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})

	if err != nil {
		// telemetry must not break the CLI
		return func() {}
	}

	return func() {
		sentry.Flush(2 * time.Second)
	}
}

// CaptureException captures an exception and sends it to Sentry.
func CaptureException(err error) {
	sentry.CaptureException(err)
}

// RecoverAndReport recovers from a panic, reports it and re-panics.
// Should be called with defer at the start of main goroutines.
func RecoverAndReport() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		panic(r)
	}
}

// SetTag sets a tag on the current scope.
func SetTag(key, value string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(key, value)
	})
}

var sensitiveEnvVars = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"COMPDEF_SENTRY_DSN",
}

// tokenPattern matches GitHub tokens and AWS access key IDs.
var tokenPattern = regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{20,}|AKIA[0-9A-Z]{16})\b`)

// scrubEvent removes credentials from events.
func scrubEvent(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}

	if event.Contexts["os"] != nil {
		if env, ok := event.Contexts["os"]["env"].(map[string]string); ok {
			for _, envVar := range sensitiveEnvVars {
				delete(env, envVar)
			}
		}
	}

	event.Message = scrub(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
	}
	return event
}

func scrub(s string) string {
	return tokenPattern.ReplaceAllString(s, "[REDACTED]")
}

// Package errorreporting forwards unrecoverable cache and server failures to Sentry.
// Everything here is a no-op until Init succeeds with a DSN.
package errorreporting

import (
	"fmt"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/onnwee/blogcache/internal/secrets"
)

// Options configures the Sentry client.
type Options struct {
	DSN         string
	Environment string
	Release     string  // defaults to SENTRY_RELEASE, then SERVICE_VERSION, then "dev"
	SampleRate  float64 // error sample rate; 0 means 1.0 outside production and 0.1 in it
}

var scrubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret)["\s:=]+[a-zA-Z0-9_-]{16,}`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// dsnInText finds connection strings embedded in error messages.
var dsnInText = regexp.MustCompile(`[a-z][a-z0-9+.-]*://\S+`)

var enabled atomic.Bool

// Init configures the global Sentry client. An empty DSN leaves reporting disabled
// and is not an error.
func Init(opts Options) error {
	if opts.DSN == "" {
		return nil
	}
	if err := ValidateDSN(opts.DSN); err != nil {
		return err
	}
	if opts.Release == "" {
		opts.Release = release()
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 1.0
		if opts.Environment == "production" {
			opts.SampleRate = 0.1
		}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       opts.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

func release() string {
	for _, name := range []string{"SENTRY_RELEASE", "SERVICE_VERSION"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return "dev"
}

// beforeSend strips credentials and anything that may hold cached user data.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = Scrub(event.Exception[i].Value)
	}
	event.Message = Scrub(event.Message)
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = Scrub(s)
		}
	}
	for _, b := range event.Breadcrumbs {
		b.Message = Scrub(b.Message)
	}

	if req := event.Request; req != nil {
		for _, h := range []string{"Authorization", "Cookie", "X-Api-Key"} {
			delete(req.Headers, h)
		}
		// Entry bodies and keys are cached user content.
		req.Data = ""
		req.QueryString = ""
	}
	return event
}

// Scrub removes credentials and personal data from text.
func Scrub(text string) string {
	if text == "" {
		return text
	}
	text = dsnInText.ReplaceAllStringFunc(text, secrets.RedactDSN)
	for _, p := range scrubPatterns {
		text = p.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}

// CaptureError reports err with no extra context.
func CaptureError(err error) {
	CaptureErrorWithContext(err, nil, nil)
}

// CaptureErrorWithContext reports err with tags and extras attached to a scoped event.
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events to be delivered.
func Flush(timeout time.Duration) bool {
	if !enabled.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// IsSentryEnabled reports whether Init configured a client.
func IsSentryEnabled() bool {
	return enabled.Load()
}

// ValidateDSN checks that dsn parses as a Sentry DSN.
func ValidateDSN(dsn string) error {
	if _, err := sentry.NewDsn(dsn); err != nil {
		return fmt.Errorf("invalid Sentry DSN: %w", err)
	}
	return nil
}

package sentryutil

import (
	"log"
	"os"
	"strings"
	"time"

	"sac/internal/config"

	"github.com/getsentry/sentry-go"
)

// sensitiveKeys are stripped from event extras and request data before upload.
var sensitiveKeys = []string{"email", "mail", "upn", "token", "nfc_token", "password", "mdp", "session"}

func Init() {
	dsn := config.Cfg.SentryDSN
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      config.Cfg.SentryEnvironment,
		Release:          config.Cfg.SentryRelease,
		TracesSampleRate: 0.2,
		EnableTracing:    dsn != "",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		log.Printf("sentry init (non-blocking): %s", err)
	}
	if dsn == "" {
		log.Println("SENTRY_DSN empty, error tracking disabled")
	} else {
		log.Println("sentry initialized")
	}
}

// scrub drops user identity and any personal field from an outgoing event.
func scrub(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	event.User = sentry.User{}
	for k := range event.Extra {
		if isSensitive(k) {
			event.Extra[k] = "[redacted]"
		}
	}
	for k := range event.Tags {
		if isSensitive(k) {
			event.Tags[k] = "[redacted]"
		}
	}
	if event.Request != nil {
		event.Request.Cookies = ""
		event.Request.Data = ""
		delete(event.Request.Headers, "Cookie")
		delete(event.Request.Headers, "Authorization")
		delete(event.Request.Headers, "X-Admin-Key")
	}
	return event
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

func Flush() { sentry.Flush(2 * time.Second) }

var exit = os.Exit

// Fatal reports err, flushes the queue and exits with status 1. Use it
// instead of log.Fatal once Init has run, since deferred Flush calls are
// skipped on exit.
func Fatal(err error, tags map[string]string) {
	log.Print(err)
	CaptureError(err, tags)
	Flush()
	exit(1)
}

func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func CaptureMessage(msg string, level sentry.Level, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(msg)
	})
}

// LevelWarning returns sentry.LevelWarning so callers don't need to import sentry-go directly.
func LevelWarning() sentry.Level { return sentry.LevelWarning }

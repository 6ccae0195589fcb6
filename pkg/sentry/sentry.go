// Package sentry wraps github.com/getsentry/sentry-go with the scrubbing
// rules and hub-per-goroutine conventions Cliparino's long-lived
// supervisors need, in place of a per-request gin.Context hub.
package sentry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/cliparino/cliparino/config"
)

// Init initializes the Sentry SDK with the given configuration.
func Init(cfg *config.SentryConfig) error {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrubSensitiveData(event)
		},
		SampleRate: 1.0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return nil
}

// Close flushes any buffered events and shuts down Sentry.
func Close() {
	sentry.Flush(2 * time.Second)
}

// scrubSensitiveData removes or masks PII from Sentry events.
func scrubSensitiveData(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}

	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
		}
		if event.Request.QueryString != "" {
			event.Request.QueryString = "[REDACTED]"
		}
	}

	if event.User.ID != "" {
		event.User.ID = hashUserID(event.User.ID)
		event.User.Email = ""
		event.User.Username = ""
		event.User.IPAddress = ""
	}

	filteredBreadcrumbs := make([]*sentry.Breadcrumb, 0, len(event.Breadcrumbs))
	for _, bc := range event.Breadcrumbs {
		if bc.Data != nil {
			delete(bc.Data, "password")
			delete(bc.Data, "token")
			delete(bc.Data, "secret")
			delete(bc.Data, "api_key")
		}
		filteredBreadcrumbs = append(filteredBreadcrumbs, bc)
	}
	event.Breadcrumbs = filteredBreadcrumbs

	return event
}

// hashUserID creates a SHA-256 hash of a user/channel ID for privacy.
func hashUserID(userID string) string {
	hash := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(hash[:8])
}

type hubKey struct{}

// WithHub attaches a cloned Sentry hub to ctx, so a goroutine (an OBS
// supervisor loop, a playback state machine) can carry its own scope
// instead of sharing the global hub.
func WithHub(ctx context.Context) context.Context {
	hub := sentry.CurrentHub().Clone()
	return context.WithValue(ctx, hubKey{}, hub)
}

func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub, ok := ctx.Value(hubKey{}).(*sentry.Hub); ok && hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// SetTag sets a tag on the hub carried by ctx.
func SetTag(ctx context.Context, key, value string) {
	hubFromContext(ctx).ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(key, value)
	})
}

// SetContext sets additional structured context on the hub carried by ctx.
func SetContext(ctx context.Context, key string, data map[string]interface{}) {
	hubFromContext(ctx).ConfigureScope(func(scope *sentry.Scope) {
		scope.SetContext(key, data)
	})
}

// CaptureException reports err to Sentry via the hub carried by ctx.
func CaptureException(ctx context.Context, err error) {
	hubFromContext(ctx).CaptureException(err)
}

// CaptureMessage reports message to Sentry via the hub carried by ctx.
func CaptureMessage(ctx context.Context, message string) {
	hubFromContext(ctx).CaptureMessage(message)
}

// AddBreadcrumb records a breadcrumb on the hub carried by ctx. The
// playback engine and the OBS supervisor do not call it, so their state
// transitions and reconnect attempts leave no breadcrumbs.
func AddBreadcrumb(ctx context.Context, breadcrumb *sentry.Breadcrumb) {
	hubFromContext(ctx).AddBreadcrumb(breadcrumb, nil)
}

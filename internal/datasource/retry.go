package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"sac/internal/logger"
	sentryutil "sac/internal/sentry"
)

// withRetry runs attempt with the current token, up to c.attempts times.
// An expired token refreshes the credentials before the next attempt;
// envelope errors other than expiry are not retried.
func (c *Client) withRetry(ctx context.Context, path string, attempt func(token string) error) error {
	if c.creds == nil {
		return errors.New("datasource: no credentials configured")
	}
	start := time.Now()
	refresh := false

	err := retry.Do(func() error {
		if refresh {
			refresh = false
			if err := c.creds.Refresh(ctx); err != nil {
				sentryutil.CaptureError(err, map[string]string{"component": "ecoledirecte", "op": "refresh"})
				return retry.Unrecoverable(err)
			}
			sentryutil.CaptureMessage("ecoledirecte token expired and was renewed", sentryutil.LevelWarning(),
				map[string]string{"component": "ecoledirecte", "endpoint": path})
		}
		token, err := c.creds.Token(ctx)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		err = attempt(token)
		if errors.Is(err, ErrTokenExpired) {
			refresh = true
		}
		return err
	},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Info("datasource: retrying", map[string]interface{}{
				"endpoint": path, "attempt": n + 1, "error": err.Error(),
			})
		}),
	)
	logFetch(path, start, err)
	return err
}

func retryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == 429
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

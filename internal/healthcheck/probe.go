// Package healthcheck polls an HTTP endpoint until it reports healthy.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultAttempts = 3
	DefaultInterval = 5 * time.Second

	requestTimeout = 10 * time.Second
)

// ErrUnhealthy is returned when every attempt failed.
var ErrUnhealthy = errors.New("health check failed")

// Client is the HTTP client used for probes.
var Client = &http.Client{Timeout: requestTimeout}

// Probe issues GET requests to url until one returns a 2xx status, waiting
// interval between attempts. It gives up after attempts tries or when ctx
// is done.
func Probe(ctx context.Context, url string, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if interval < 0 {
		interval = DefaultInterval
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = check(ctx, url)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v (last error: %v)", ErrUnhealthy, ctx.Err(), lastErr)
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrUnhealthy, attempts, lastErr)
}

func check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid health check request: %w", err)
	}

	resp, err := Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package epidata is the HTTP fetch capability for the Delphi Epidata APIs
// (FluView and COVIDcast share the same response envelope).
//
// Resilience:
//   - Fixed-delay retry on transport and HTTP-status failures; the last
//     error is returned once attempts are exhausted.
//   - A shared rate limiter keeps request bursts polite toward the public
//     API regardless of how many sources run in one invocation.
//   - An optional circuit breaker stops hammering an upstream that is down;
//     it opens on sustained failure and recovers on its own schedule.
//
// An envelope with result != 1 is NOT an error at this layer: the API uses
// it for empty result sets as well as soft failures. Callers log the message
// and treat the response as zero rows.
package epidata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/gudetimes1234/healthintel/internal/config"
	"github.com/gudetimes1234/healthintel/internal/logging"
	"github.com/gudetimes1234/healthintel/internal/metrics"
	"github.com/gudetimes1234/healthintel/internal/models"
)

// maxErrorBodySize caps how much of a failed response body is read for
// error reporting, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024

// Fetcher is the capability consumed by data sources. Implemented by Client
// in production and by fakes in tests.
type Fetcher interface {
	// Fetch performs a parameterized GET against baseURL and decodes the
	// Epidata envelope. The timeout bounds a single attempt, not the whole
	// retry loop.
	Fetch(ctx context.Context, baseURL string, params url.Values, timeout time.Duration) (*models.EpidataResponse, error)
}

// Client is the production Fetcher with retry, rate limiting and an
// optional circuit breaker. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*models.EpidataResponse]
}

// NewClient builds a Client from the global HTTP configuration.
func NewClient(cfg config.HTTPConfig) *Client {
	c := &Client{
		httpClient: &http.Client{},
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
	}
	if c.retries < 1 {
		c.retries = 1
	}

	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	if cfg.CircuitBreaker {
		c.breaker = newBreaker("delphi-epidata")
	}

	return c
}

// newBreaker configures the upstream circuit breaker: opens at a 60% failure
// rate over at least 10 requests, waits 2 minutes before probing again.
func newBreaker(name string) *gobreaker.CircuitBreaker[*models.EpidataResponse] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*models.EpidataResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Fetch implements Fetcher. When the circuit breaker is enabled a rejected
// call (open circuit) counts as a fetch failure for the calling phase.
func (c *Client) Fetch(ctx context.Context, baseURL string, params url.Values, timeout time.Duration) (*models.EpidataResponse, error) {
	if c.breaker == nil {
		return c.fetchWithRetry(ctx, baseURL, params, timeout)
	}

	resp, err := c.breaker.Execute(func() (*models.EpidataResponse, error) {
		return c.fetchWithRetry(ctx, baseURL, params, timeout)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.FetchRequests.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("upstream circuit open: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

// fetchWithRetry runs the fixed-delay retry loop around doFetch. All
// failures retry the same way; after the final attempt the last error is
// returned unchanged.
func (c *Client) fetchWithRetry(ctx context.Context, baseURL string, params url.Values, timeout time.Duration) (*models.EpidataResponse, error) {
	var lastErr error

	for attempt := 0; attempt < c.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		resp, err := c.doFetch(ctx, baseURL, params, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < c.retries-1 {
			metrics.FetchRetries.Inc()
			logging.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", c.retries).
				Dur("delay", c.retryDelay).
				Msg("Epidata request failed, retrying")

			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	metrics.FetchRequests.WithLabelValues("failure").Inc()
	return nil, lastErr
}

// doFetch performs one GET attempt and decodes the envelope.
func (c *Client) doFetch(ctx context.Context, baseURL string, params url.Values, timeout time.Duration) (*models.EpidataResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reqURL := baseURL
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", baseURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("epidata request failed with status %d: %s", resp.StatusCode, string(body))
	}

	envelope := &models.EpidataResponse{}
	if err := json.NewDecoder(resp.Body).Decode(envelope); err != nil {
		return nil, fmt.Errorf("failed to decode epidata response: %w", err)
	}

	if envelope.OK() {
		metrics.FetchRequests.WithLabelValues("success").Inc()
	} else {
		metrics.FetchRequests.WithLabelValues("empty").Inc()
	}
	return envelope, nil
}

// readBodyForError reads at most maxErrorBodySize bytes of a failed
// response body for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

// DecodeRows unmarshals every raw envelope row into T, skipping rows that
// fail to decode. Returns the decoded rows and the number skipped; the
// caller decides whether skips matter (they count toward transform-phase
// skip metrics, not hard failures).
func DecodeRows[T any](rows []json.RawMessage) ([]T, int) {
	out := make([]T, 0, len(rows))
	skipped := 0
	for _, raw := range rows {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			logging.Warn().Err(err).Msg("Skipping undecodable epidata row")
			skipped++
			continue
		}
		out = append(out, row)
	}
	return out, skipped
}

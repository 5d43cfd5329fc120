// Package httpsource fetches quotes from an HTTP price feed, retrying
// transient failures with a backoff paced by a token bucket so a feed
// outage doesn't turn a retry storm into a self-inflicted rate limit.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/aristath/trigger-engine/internal/engineerr"
)

const maxAttempts = 3

// Source fetches quotes from a JSON HTTP endpoint of the form
// {baseURL}/{symbol} -> {"price": float64, "observedAt": RFC3339}.
type Source struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a source backed by the feed at baseURL, making up to three
// attempts per fetch with exponential backoff between them.
func New(baseURL string) *Source {
	return &Source{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

type quotePayload struct {
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
}

func (s *Source) FetchPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.limiter.WaitN(ctx, 1); err != nil {
				return 0, time.Time{}, err
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, time.Time{}, ctx.Err()
			}
			backoff *= 2
		}

		price, observedAt, err := s.fetchOnce(ctx, symbol)
		if err == nil {
			return price, observedAt, nil
		}
		lastErr = err
	}
	return 0, time.Time{}, fmt.Errorf("%w: %v", engineerr.ErrQuoteUnavailable, lastErr)
}

func (s *Source) fetchOnce(ctx context.Context, symbol string) (float64, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+symbol, nil)
	if err != nil {
		return 0, time.Time{}, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, time.Time{}, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, time.Time{}, err
	}
	if payload.ObservedAt.IsZero() {
		payload.ObservedAt = time.Now()
	}
	return payload.Price, payload.ObservedAt, nil
}

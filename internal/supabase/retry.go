package supabase

import (
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// RetryConfig is the backoff policy for GET requests. Attempt n waits
// InitialBackoff*BackoffMultiplier^(n-1), capped at MaxBackoff, spread by
// +/- Jitter.
type RetryConfig struct {
	MaxRetries           int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used by the service.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// retryTransport retries GET requests. Inserts are never replayed since a
// lost response does not mean the row was not written.
type retryTransport struct {
	base   http.RoundTripper
	config RetryConfig
}

func (rt *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return rt.base.RoundTrip(req)
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= rt.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(rt.backoff(attempt)):
			}
		}

		resp, err = rt.base.RoundTrip(req.Clone(req.Context()))
		if err != nil {
			if isRetryableError(err) && attempt < rt.config.MaxRetries {
				continue
			}
			return nil, err
		}
		if !rt.retryableStatus(resp.StatusCode) || attempt == rt.config.MaxRetries {
			return resp, nil
		}
		resp.Body.Close()
	}
	return resp, err
}

func (rt *retryTransport) backoff(attempt int) time.Duration {
	backoff := float64(rt.config.InitialBackoff) * math.Pow(rt.config.BackoffMultiplier, float64(attempt-1))
	if ceiling := float64(rt.config.MaxBackoff); ceiling > 0 && backoff > ceiling {
		backoff = ceiling
	}
	if rt.config.Jitter > 0 {
		backoff += backoff * rt.config.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func (rt *retryTransport) retryableStatus(code int) bool {
	for _, retryable := range rt.config.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}

func isRetryableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

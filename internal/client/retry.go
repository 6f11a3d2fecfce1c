// Copyright (c) 2024 OData MCP Contributors
// SPDX-License-Identifier: MIT

package client

import (
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for transient HTTP failures.
type RetryConfig struct {
	MaxRetries        int           // maximum retry attempts (0 = no retries)
	InitialBackoff    time.Duration // delay before the first retry
	MaxBackoff        time.Duration // cap on the delay between retries
	BackoffMultiplier float64       // exponential growth factor
	JitterFraction    float64       // random jitter fraction (0.0-1.0)
	RetryableStatuses []int         // status codes that trigger a retry
}

// DefaultRetryConfig returns the standard retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
		RetryableStatuses: []int{429, 500, 502, 503, 504},
	}
}

// CalculateBackoff returns the delay for a 0-indexed attempt: attempt 0
// yields InitialBackoff, later attempts grow exponentially up to MaxBackoff
// with jitter applied to avoid thundering herds.
func (c *RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	if c.JitterFraction > 0 {
		jitterRange := backoff * c.JitterFraction
		backoff += (rand.Float64()*2 - 1) * jitterRange
		if backoff < 0 {
			backoff = 0
		}
	}

	return time.Duration(backoff)
}

// ShouldRetry reports whether a response status warrants another attempt.
func (c *RetryConfig) ShouldRetry(statusCode int, attempt int) bool {
	if attempt >= c.MaxRetries {
		return false
	}
	return c.IsRetryableStatus(statusCode)
}

// IsRetryableStatus checks a status code against the retryable list.
func (c *RetryConfig) IsRetryableStatus(statusCode int) bool {
	for _, code := range c.RetryableStatuses {
		if statusCode == code {
			return true
		}
	}
	return false
}

// IsCSRFFailure reports whether a 403 response is a CSRF token rejection.
// SAP systems signal this either through the x-csrf-token: Required header
// or a body that mentions CSRF.
func IsCSRFFailure(resp *http.Response, body []byte) bool {
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		return false
	}
	if strings.EqualFold(resp.Header.Get("x-csrf-token"), "required") {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), "csrf")
}

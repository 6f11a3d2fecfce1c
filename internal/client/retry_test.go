// Copyright (c) 2024 OData MCP Contributors
// SPDX-License-Identifier: MIT

package client

import (
	"net/http"
	"testing"
	"time"
)

func TestCalculateBackoffGrowthAndCap(t *testing.T) {
	cfg := &RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFraction:    0, // deterministic
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{9, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := cfg.CalculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCalculateBackoffJitterStaysInRange(t *testing.T) {
	cfg := &RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}

	base := 200 * time.Millisecond // attempt 1
	lo := time.Duration(float64(base) * 0.9)
	hi := time.Duration(float64(base) * 1.1)

	for i := 0; i < 20; i++ {
		got := cfg.CalculateBackoff(1)
		if got < lo || got > hi {
			t.Fatalf("CalculateBackoff(1) = %v, want within [%v, %v]", got, lo, hi)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	tests := []struct {
		name    string
		status  int
		attempt int
		want    bool
	}{
		{"429 retries", 429, 0, true},
		{"500 retries", 500, 0, true},
		{"502 retries", 502, 0, true},
		{"503 retries", 503, 2, true},
		{"504 retries", 504, 0, true},
		{"budget exhausted", 503, 3, false},
		{"success never retries", 200, 0, false},
		{"client errors never retry", 400, 0, false},
		{"auth errors never retry", 401, 0, false},
		{"403 handled by CSRF path", 403, 0, false},
		{"404 never retries", 404, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ShouldRetry(tt.status, tt.attempt); got != tt.want {
				t.Errorf("ShouldRetry(%d, %d) = %v, want %v", tt.status, tt.attempt, got, tt.want)
			}
		})
	}
}

func TestIsCSRFFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header string
		body   string
		want   bool
	}{
		{"403 with csrf in body", 403, "", `{"error":{"message":{"value":"CSRF token validation failed"}}}`, true},
		{"403 with lowercase csrf", 403, "", "csrf check failed", true},
		{"403 with Required header", 403, "Required", `{"error":{"message":{"value":"Forbidden"}}}`, true},
		{"plain 403", 403, "", "Access denied", false},
		{"401 with csrf wording", 401, "", "CSRF token validation failed", false},
		{"200 OK", 200, "", `{"d":{"results":[]}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: make(http.Header)}
			if tt.header != "" {
				resp.Header.Set("x-csrf-token", tt.header)
			}
			if got := IsCSRFFailure(resp, []byte(tt.body)); got != tt.want {
				t.Errorf("IsCSRFFailure() = %v, want %v", got, tt.want)
			}
		})
	}

	if IsCSRFFailure(nil, nil) {
		t.Error("IsCSRFFailure(nil) = true, want false")
	}
}

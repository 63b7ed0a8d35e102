// internal/pkg/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of a rate-limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Store counts requests per identifier over a trailing window. Both
// backends satisfy the same contract so they are interchangeable at
// startup.
type Store interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Policy pairs a request budget with its window.
type Policy struct {
	Max    int
	Window time.Duration
}

// Policies observed across the service.
var (
	LoginPolicy  = Policy{Max: 5, Window: 15 * time.Minute}
	SignupPolicy = Policy{Max: 3, Window: time.Hour}
	APIPolicy    = Policy{Max: 100, Window: time.Minute}
)

package controlplane

import (
	"net/http"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// ClientPolicy is one client's request-budget entry, adapted from the
// teacher's ClientContract.RateLimits shape down to the fields this
// control plane actually enforces.
type ClientPolicy struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstLimit        int `yaml:"burst_limit"`
}

// RateLimitPolicy maps a client id (the X-Client-ID request header) to its
// budget; a client with no entry is subject to DefaultPolicy.
type RateLimitPolicy struct {
	DefaultPolicy ClientPolicy            `yaml:"default"`
	Clients       map[string]ClientPolicy `yaml:"clients"`
}

// LoadRateLimitPolicy reads a YAML policy file in the shape the teacher's
// contract files used, minus the fields this control plane doesn't need
// (SPEC_FULL.md §1 explicitly excludes custom auth, not rate limiting).
func LoadRateLimitPolicy(path string) (*RateLimitPolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var policy RateLimitPolicy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return nil, err
	}
	if policy.Clients == nil {
		policy.Clients = map[string]ClientPolicy{}
	}
	return &policy, nil
}

// bucket is a fixed-window request counter for one client.
type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// RateLimiter enforces RateLimitPolicy's per-minute budgets using a
// fixed-window counter per client id, reset every minute.
type RateLimiter struct {
	policy  *RateLimitPolicy
	buckets sync.Map // client id -> *bucket
}

// NewRateLimiter builds a RateLimiter over a loaded policy.
func NewRateLimiter(policy *RateLimitPolicy) *RateLimiter {
	return &RateLimiter{policy: policy}
}

func (rl *RateLimiter) policyFor(clientID string) ClientPolicy {
	if p, ok := rl.policy.Clients[clientID]; ok {
		return p
	}
	return rl.policy.DefaultPolicy
}

// Allow reports whether clientID may make one more request this window.
func (rl *RateLimiter) Allow(clientID string) bool {
	p := rl.policyFor(clientID)
	if p.RequestsPerMinute <= 0 {
		return true
	}

	limit := p.RequestsPerMinute
	if p.BurstLimit > limit {
		limit = p.BurstLimit
	}

	v, _ := rl.buckets.LoadOrStore(clientID, &bucket{windowStart: time.Now()})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.windowStart) >= time.Minute {
		b.windowStart = time.Now()
		b.count = 0
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

// Middleware rejects requests over budget with 429, identifying the
// client by the X-Client-ID header (unset header shares DefaultPolicy's
// budget across all anonymous callers).
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.Header.Get("X-Client-ID")
		if !rl.Allow(clientID) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

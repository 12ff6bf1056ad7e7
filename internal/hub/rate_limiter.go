package hub

import (
	"sync"
	"time"
)

// RateLimiter tracks per-connection event budgets over a sliding window.
// Upload storms from a single misbehaving client must not starve the hub.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit events per window for each connection ID.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the connection may send another event now.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cw, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(cw.windowStart) >= rl.window {
		cw.count = 1
		cw.windowStart = now
		return true
	}

	if cw.count >= rl.limit {
		return false
	}
	cw.count++
	return true
}

// Forget drops tracking state for a disconnected client.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	delete(rl.clients, connID)
	rl.mu.Unlock()
}

// Cleanup removes windows idle for several multiples of the window length.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, cw := range rl.clients {
		if now.Sub(cw.windowStart) > 5*rl.window {
			delete(rl.clients, id)
		}
	}
}

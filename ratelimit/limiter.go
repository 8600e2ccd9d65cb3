// Package ratelimit provides per-caller sliding-window admission control.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// Config holds limiter parameters
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Validate checks that both limits are positive
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return errors.New("max requests must be positive")
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

// window holds the admission timestamps of one caller, oldest first
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// evict drops every timestamp at or before cutoff. Only the stale prefix is visited.
func (w *window) evict(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	w.times = w.times[i:]
	// Reallocate once the backing array is mostly dead so it can be collected
	if cap(w.times) > 64 && len(w.times) < cap(w.times)/4 {
		w.times = append(make([]time.Time, 0, len(w.times)*2), w.times...)
	}
}

// Limiter is a hard cap of MaxRequests per Window for each caller identity.
// It is not a token bucket: there is no burst allowance beyond the cap.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*window
}

// New creates a limiter
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string]*window),
	}, nil
}

// Config returns the limiter parameters
func (l *Limiter) Config() Config {
	return l.cfg
}

// windowFor returns the caller's window, creating it on first use
func (l *Limiter) windowFor(identity string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok {
		w = &window{}
		l.windows[identity] = w
	}
	return w
}

// Admit records a request from identity at now and reports whether it is within the cap.
// A denied request does not consume capacity.
func (l *Limiter) Admit(identity string, now time.Time) bool {
	w := l.windowFor(identity)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now.Add(-l.cfg.Window))
	if len(w.times) >= l.cfg.MaxRequests {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Remaining returns how many more requests identity may make at now
func (l *Limiter) Remaining(identity string, now time.Time) int {
	l.mu.Lock()
	w, ok := l.windows[identity]
	l.mu.Unlock()
	if !ok {
		return l.cfg.MaxRequests
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	live := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			live++
		}
	}
	if live >= l.cfg.MaxRequests {
		return 0
	}
	return l.cfg.MaxRequests - live
}

// Len returns the number of tracked identities
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Package memorylimiter is a per-process token bucket limiter keyed by bucket and caller.
package memorylimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit allows Limit events per Window, with a burst of Limit.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultBucket is used for bucket names with no configured limit.
const DefaultBucket = "default"

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	entries map[string]*entry
	now     func() time.Time
	idleTTL time.Duration
	sweeps  int
}

func New(limits map[string]Limit) *Limiter {
	cp := make(map[string]Limit, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Limiter{
		limits:  cp,
		entries: make(map[string]*entry),
		now:     time.Now,
		idleTTL: time.Hour,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter { l.now = now; return l }

func (l *Limiter) limitFor(bucket string) (Limit, bool) {
	if lim, ok := l.limits[bucket]; ok {
		return lim, true
	}
	lim, ok := l.limits[DefaultBucket]
	return lim, ok
}

// AllowNamed consumes one token for key in bucket. Buckets without a limit, and no
// default, always allow.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limitFor(bucket)
	if !ok || lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}
	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		every := rate.Every(lim.Window / time.Duration(lim.Limit))
		e = &entry{lim: rate.NewLimiter(every, lim.Limit)}
		l.entries[key] = e
	}
	e.seen = now
	allowed := e.lim.AllowN(now, 1)

	l.sweeps++
	if l.sweeps >= 1024 {
		l.sweeps = 0
		for k, v := range l.entries {
			if now.Sub(v.seen) > l.idleTTL {
				delete(l.entries, k)
			}
		}
	}
	return allowed, nil
}

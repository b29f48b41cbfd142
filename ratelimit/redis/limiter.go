// Package redislimiter is a fixed-window limiter shared across instances through Redis.
package redislimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limit struct {
	Limit  int
	Window time.Duration
}

const DefaultBucket = "default"

type Limiter struct {
	rdb     redis.UniversalClient
	limits  map[string]Limit
	prefix  string
	timeout time.Duration
}

func New(rdb redis.UniversalClient, limits map[string]Limit) *Limiter {
	cp := make(map[string]Limit, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Limiter{rdb: rdb, limits: cp, prefix: "rl:", timeout: 250 * time.Millisecond}
}

func (l *Limiter) WithPrefix(p string) *Limiter { l.prefix = p; return l }

// incrScript increments the window counter and sets its expiry on first use.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// AllowNamed counts one event for key in bucket's current window.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	lim, ok := l.limits[bucket]
	if !ok {
		lim, ok = l.limits[DefaultBucket]
	}
	if !ok || lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	n, err := incrScript.Run(ctx, l.rdb, []string{l.prefix + key}, lim.Window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(lim.Limit), nil
}

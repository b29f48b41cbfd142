package authhttp

import "net/http"

// RateLimiter is implemented by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}

func limitKey(bucket, ip string) string { return "verify:" + bucket + ":ip:" + ip }

// AllowNamed lets hosts that mount routes beside APIHandler reuse a limiter with the
// same keying. Unknown client addresses and limiter errors let the request through.
func AllowNamed(r *http.Request, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ip := DefaultClientIP()(r)
	if ip == "" {
		return true
	}
	ok, err := rl.AllowNamed(bucket, limitKey(bucket, ip))
	return err != nil || ok
}

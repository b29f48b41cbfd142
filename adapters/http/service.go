package authhttp

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PaulFidika/verifykit/core"
	jwtkit "github.com/PaulFidika/verifykit/jwt"
	memorylimiter "github.com/PaulFidika/verifykit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/verifykit/ratelimit/redis"
	redisstore "github.com/PaulFidika/verifykit/storage/redis"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Options configures token verification for account-scoped routes.
type Options struct {
	Issuer   string
	Audience string
	// Skew tolerated on exp/nbf/iat. Defaults to one second.
	Skew time.Duration
	// SecondFactorIssuer is the label shown in authenticator apps.
	SecondFactorIssuer string
}

// Service wraps core.Service with net/http mounting helpers.
type Service struct {
	svc      *core.Service
	keys     jwtkit.Keyset
	opts     Options
	rl       RateLimiter
	clientIP ClientIPFunc
	log      *slog.Logger
}

func (s *Service) allow(r *http.Request, bucket string) bool {
	if s == nil {
		return true
	}
	if s.rl == nil {
		return true
	}
	ipFn := s.clientIP
	if ipFn == nil {
		ipFn = DefaultClientIP()
	}
	ip := ipFn(r)
	if strings.TrimSpace(ip) == "" {
		return true
	}
	ok, err := s.rl.AllowNamed(bucket, limitKey(bucket, ip))
	if err != nil {
		s.log.WarnContext(r.Context(), "verifykit: rate limiter unavailable", "bucket", bucket, "err", err)
		return true
	}
	return ok
}

// NewService wraps svc for net/http. keys verify bearer tokens and back the JWKS route.
func NewService(svc *core.Service, keys jwtkit.Keyset, opts Options) *Service {
	if opts.Skew <= 0 {
		opts.Skew = time.Second
	}
	if opts.SecondFactorIssuer == "" {
		opts.SecondFactorIssuer = "verifykit"
	}
	return &Service{
		svc:      svc,
		keys:     keys,
		opts:     opts,
		rl:       memorylimiter.New(ToMemoryLimits(DefaultRateLimits())),
		clientIP: DefaultClientIP(),
		log:      svc.Logger(),
	}
}

// WithRedis shares rate limits and the reset marker store across instances.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	if rd != nil {
		s.rl = redislimiter.New(rd, ToRedisLimits(DefaultRateLimits()))
		s.svc = s.svc.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis)
	}
	return s
}
func (s *Service) WithRateLimiter(rl RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) DisableRateLimiter() *Service            { s.rl = nil; return s }
func (s *Service) WithClientIPFunc(fn ClientIPFunc) *Service {
	if fn == nil {
		s.clientIP = DefaultClientIP()
		return s
	}
	s.clientIP = fn
	return s
}
func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l != nil {
		s.log = l
	}
	return s
}

func (s *Service) Core() *core.Service { return s.svc }

// Keyfunc, Issuer and Audience make *Service a Verifier.
func (s *Service) Keyfunc() jwt.Keyfunc { return s.keys.Keyfunc() }
func (s *Service) Issuer() string       { return s.opts.Issuer }
func (s *Service) Audience() string     { return s.opts.Audience }
func (s *Service) Skew() time.Duration  { return s.opts.Skew }

package core

import (
	"context"
	"time"
)

type EphemeralMode string

const (
	EphemeralMemory EphemeralMode = "memory"
	EphemeralRedis  EphemeralMode = "redis"
)

// EphemeralStore is a minimal key-value interface for short-lived markers.
// Missing keys are (found=false, err=nil). Take must read and delete atomically.
type EphemeralStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

func (s *Service) WithEphemeralStore(store EphemeralStore, mode EphemeralMode) *Service {
	if mode == "" {
		mode = EphemeralMemory
	}
	s.ephemeralStore = store
	s.ephemeralMode = mode
	return s
}

func (s *Service) EphemeralMode() EphemeralMode {
	if s == nil || s.ephemeralMode == "" {
		return EphemeralMemory
	}
	return s.ephemeralMode
}

func (s *Service) ephemSetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.ephemeralStore == nil {
		return errEphemeralUnavailable
	}
	return s.ephemeralStore.Set(ctx, key, []byte(value), ttl)
}

func (s *Service) ephemTakeString(ctx context.Context, key string) (string, bool, error) {
	if s.ephemeralStore == nil {
		return "", false, errEphemeralUnavailable
	}
	b, ok, err := s.ephemeralStore.Take(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return string(b), true, nil
}

func resetAuthorizedKey(challengeID string) string {
	return "verify:pwreset:authorized:" + challengeID
}

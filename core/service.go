package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/PaulFidika/verifykit/core"

type MessageKind string

const (
	MessageOTP        MessageKind = "otp"
	MessageInvitation MessageKind = "invitation"
)

// Message is handed to the Notifier. Code and Link carry the secret; senders that log must redact them.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Purpose Purpose     `json:"purpose,omitempty"`
	Subject string      `json:"subject"`
	Body    string      `json:"body"`
	Code    string      `json:"code,omitempty"`
	Link    string      `json:"link,omitempty"`
}

// Notifier delivers codes and invitation links. Delivery is fire-and-forget:
// errors are logged, never surfaced to the caller of the operation that issued the secret.
type Notifier interface {
	Send(ctx context.Context, address string, msg Message) error
}

// SessionRevoker invalidates every active session of an account after a password reset.
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, accountID string) error
}

// Recorder receives one event per completed operation. outcome is "ok" or an error code.
type Recorder interface {
	RecordOperation(op, outcome string, d time.Duration)
}

// Service owns every state transition of accounts, email records, challenges and invitations.
type Service struct {
	cfg            Config
	store          Store
	clock          Clock
	notifier       Notifier
	sessions       SessionRevoker
	ephemeralStore EphemeralStore
	ephemeralMode  EphemeralMode
	log            *slog.Logger
	recorder       Recorder
	tracer         trace.Tracer
}

func NewService(cfg Config, store Store) *Service {
	return &Service{
		cfg:           cfg.withDefaults(),
		store:         store,
		clock:         SystemClock,
		ephemeralMode: EphemeralMemory,
		log:           slog.Default(),
		tracer:        otel.Tracer(tracerName),
	}
}

func (s *Service) WithClock(c Clock) *Service {
	if c == nil {
		c = SystemClock
	}
	s.clock = c
	return s
}

func (s *Service) WithNotifier(n Notifier) *Service             { s.notifier = n; return s }
func (s *Service) WithSessionRevoker(r SessionRevoker) *Service { s.sessions = r; return s }
func (s *Service) WithRecorder(r Recorder) *Service             { s.recorder = r; return s }

func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	s.log = l
	return s
}

func (s *Service) WithTracer(t trace.Tracer) *Service {
	if t == nil {
		t = otel.Tracer(tracerName)
	}
	s.tracer = t
	return s
}

func (s *Service) Config() Config       { return s.cfg }
func (s *Service) HasNotifier() bool    { return s.notifier != nil }
func (s *Service) Logger() *slog.Logger { return s.log }
func (s *Service) now() time.Time       { return s.clock.Now().UTC() }
func (s *Service) gate() Gate           { return Gate{Clock: s.clock} }

// rejection marks a business failure whose writes must still commit, which is how
// rejected attempts keep their bookkeeping.
type rejection struct{ err error }

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

func reject(err error) error { return &rejection{err: err} }

func isRejection(err error) bool {
	var r *rejection
	return errors.As(err, &r)
}

// withinTx runs fn in the store. A rejection commits and is returned unwrapped afterwards.
func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.store == nil {
		return errStoreUnavailable
	}
	var verdict error
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		err := fn(ctx, tx)
		var r *rejection
		if errors.As(err, &r) {
			verdict = r.err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return verdict
}

// begin opens a span for op. The returned func records outcome, latency and, for
// security failures, a detailed warning that never reaches the caller.
func (s *Service) begin(ctx context.Context, op string, attrs ...any) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "verifykit."+op)
	start := time.Now()
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		outcome := "ok"
		if err != nil {
			outcome = Code(err)
			span.SetStatus(codes.Error, outcome)
			switch Classify(err) {
			case ClassSecurity:
				s.log.WarnContext(ctx, "verifykit: rejected", append([]any{"op", op, "reason", err.Error()}, attrs...)...)
			case ClassInternal:
				span.RecordError(err)
				s.log.ErrorContext(ctx, "verifykit: failed", append([]any{"op", op, "err", err}, attrs...)...)
			}
		}
		span.End()
		if s.recorder != nil {
			s.recorder.RecordOperation(op, outcome, time.Since(start))
		}
	}
}

func (s *Service) notify(ctx context.Context, address string, msg Message) {
	if s.notifier == nil {
		s.log.WarnContext(ctx, "verifykit: no notifier configured", "kind", msg.Kind, "purpose", msg.Purpose)
		return
	}
	if err := s.notifier.Send(ctx, address, msg); err != nil {
		s.log.ErrorContext(ctx, "verifykit: notify failed", "kind", msg.Kind, "purpose", msg.Purpose, "err", err)
	}
}

func (s *Service) appendLog(ctx context.Context, tx Tx, entry EmailChangeLog) error {
	meta := requestMetaFromContext(ctx)
	entry.Timestamp = s.now()
	entry.ID = newLogID(entry.Timestamp)
	entry.IPAddress = meta.IPAddress
	entry.UserAgent = meta.UserAgent
	return tx.AppendChangeLog(ctx, &entry)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

package riverjobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

type ExpireInvitationsArgs struct {
	BatchSize  int `json:"batch_size,omitempty"`
	MaxBatches int `json:"max_batches,omitempty"`
}

func (ExpireInvitationsArgs) Kind() string { return "verifykit_expire_invitations" }

func (args ExpireInvitationsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: river.QueueDefault,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: 15 * time.Minute,
			ByQueue:  true,
		},
	}
}

// InvitationExpirer is implemented by *core.Service.
type InvitationExpirer interface {
	ExpireStaleInvitations(ctx context.Context, limit int) (int, error)
}

// ExpireInvitationsWorker flips overdue pending invitations to expired so listings
// reflect reality. Acceptance checks expiry on its own, so a late run is harmless.
type ExpireInvitationsWorker struct {
	river.WorkerDefaults[ExpireInvitationsArgs]
	svc InvitationExpirer
	log *slog.Logger
}

func NewExpireInvitationsWorker(svc InvitationExpirer, log *slog.Logger) *ExpireInvitationsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpireInvitationsWorker{svc: svc, log: log}
}

func (w *ExpireInvitationsWorker) Timeout(*river.Job[ExpireInvitationsArgs]) time.Duration {
	return 5 * time.Minute
}

func (w *ExpireInvitationsWorker) Work(ctx context.Context, job *river.Job[ExpireInvitationsArgs]) error {
	if w == nil || w.svc == nil {
		return errors.New("verifykit expire invitations: service not configured")
	}
	batch := job.Args.BatchSize
	if batch <= 0 {
		batch = 500
	}
	maxBatches := job.Args.MaxBatches
	if maxBatches <= 0 {
		maxBatches = 20
	}

	total := 0
	for i := 0; i < maxBatches; i++ {
		n, err := w.svc.ExpireStaleInvitations(ctx, batch)
		if err != nil {
			return err
		}
		total += n
		if n < batch {
			break
		}
	}
	if total > 0 {
		w.log.InfoContext(ctx, "verifykit: expired invitations", "count", total)
	}
	return nil
}

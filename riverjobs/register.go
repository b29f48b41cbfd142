package riverjobs

import (
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
)

// RegisterExpireInvitationsWorker registers the expiry worker into a River workers registry.
func RegisterExpireInvitationsWorker(ws *river.Workers, svc InvitationExpirer, log *slog.Logger) {
	river.AddWorker(ws, NewExpireInvitationsWorker(svc, log))
}

func parseSchedule(cronSpec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule '%s': %w", cronSpec, err)
	}
	return schedule, nil
}

// AddExpireInvitationsPeriodicJob enqueues the expiry job on a cron schedule.
//
// Example cron: "*/15 * * * *" (every quarter hour).
func AddExpireInvitationsPeriodicJob[T any](client *river.Client[T], cronSpec string, args ExpireInvitationsArgs, runOnStart bool) error {
	schedule, err := parseSchedule(cronSpec)
	if err != nil {
		return err
	}
	opts := args.InsertOpts()
	_ = client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) { return args, &opts },
			&river.PeriodicJobOpts{RunOnStart: runOnStart},
		),
	)
	return nil
}

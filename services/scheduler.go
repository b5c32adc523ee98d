// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"gatekeeper-api/utils"
)

// StartSessionPurgeScheduler removes expired proof sessions every interval. The
// caller owns the returned scheduler and must Shutdown it.
func StartSessionPurgeScheduler(issuer *ProofIssuer, interval time.Duration, opts ...gocron.SchedulerOption) (gocron.Scheduler, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			n, err := issuer.Purge(ctx)
			if err != nil {
				utils.Log.Errorf("❌ [SCHEDULER] Proof purge failed: %v", err)
				return
			}
			if n > 0 {
				utils.Log.Infof("🧹 [SCHEDULER] Purged %d expired proof session(s)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}

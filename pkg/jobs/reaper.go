package jobs

import (
	"context"
	"log"
	"time"

	"github.com/filecrate/filecrate-api/pkg/file_api/services"
	"github.com/filecrate/filecrate-api/pkg/tools"
	"github.com/robfig/cron/v3"
)

// ScheduleReaper sets up a cron job that sweeps expired artifacts on a fixed
// interval. Deletion happens on schedule whether or not a client ever came
// back for the result.
func ScheduleReaper(ctx context.Context, svc *services.ReaperService, interval time.Duration) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@every "+interval.String(), func() {
		tools.Dispatch(context.Background(), "reap", func(ctx context.Context) error {
			n, err := svc.Sweep(ctx)
			if err != nil {
				log.Printf("[reaper] sweep finished with error after %d rows: %v", n, err)
				return err
			}
			if n > 0 {
				log.Printf("[reaper] sweep removed %d rows", n)
			}
			return nil
		})
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}

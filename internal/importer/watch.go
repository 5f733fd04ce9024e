package importer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Watch scans dir once and then again on every tick of schedule (standard
// five-field cron syntax or descriptors such as "@every 15m") until ctx is
// cancelled. A tick that fires while the previous scan is still running is
// skipped.
func (i *Importer) Watch(ctx context.Context, dir, schedule string) error {
	log := i.Logger.With().Str("folder", dir).Logger()
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&log))))

	run := func() {
		if _, err := i.ScanFolder(ctx, dir); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduled scan failed")
		}
	}

	if _, err := c.AddFunc(schedule, run); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	run()

	c.Start()
	log.Info().Str("schedule", schedule).Msg("watching folder")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("watch stopped")
	return nil
}

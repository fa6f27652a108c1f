package apply

import (
	"context"

	"github.com/mbrock/hostkeep/internal/executor"
	"github.com/mbrock/hostkeep/internal/mount"
	"github.com/mbrock/hostkeep/internal/service"
)

// StatusRow describes one target for `hostkeep status`.
type StatusRow struct {
	Target     Target
	Unit       string
	Configured bool
	Status     service.Status
	// Mounted is only meaningful for the mount target.
	Mounted bool
	Err     error
}

// Status queries every target's manager. Query errors are reported per row.
func (r *Runner) Status(ctx context.Context) []StatusRow {
	rows := make([]StatusRow, 0, len(AllTargets))
	for _, t := range AllTargets {
		row := StatusRow{Target: t, Unit: r.unitName(t)}
		var mgr service.Manager
		switch t {
		case TargetMount:
			row.Configured, mgr = r.Config.Mount.Enabled, r.Mount
			if row.Configured {
				row.Mounted, row.Err = mount.NewSupervisor(r.Config.Mount, executor.Default(), nil).Mounted()
			}
		case TargetScheduler:
			row.Configured, mgr = r.Config.Scheduler.Enabled, r.Scheduler
		case TargetWorker:
			row.Configured, mgr = r.Config.Worker.Enabled, r.Worker
		}
		if row.Configured && mgr != nil && row.Err == nil {
			row.Status, row.Err = mgr.Status(ctx, row.Unit)
		}
		rows = append(rows, row)
	}
	return rows
}

// Package apply runs the three supervisors (mount, scheduler, worker) for
// one hostkeep invocation.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/hostos"
	"github.com/mbrock/hostkeep/internal/install"
	"github.com/mbrock/hostkeep/internal/mount"
	"github.com/mbrock/hostkeep/internal/service"
)

// Target names one supervisor.
type Target string

const (
	TargetMount     Target = "mount"
	TargetScheduler Target = "scheduler"
	TargetWorker    Target = "worker"
)

// AllTargets lists every supervisor in apply order.
var AllTargets = []Target{TargetMount, TargetScheduler, TargetWorker}

// ParseTargets validates names given on the command line. No names means
// every target.
func ParseTargets(names []string) ([]Target, error) {
	if len(names) == 0 {
		return AllTargets, nil
	}
	var out []Target
	for _, n := range names {
		t := Target(n)
		if !slices.Contains(AllTargets, t) {
			return nil, fmt.Errorf("unknown target %q (want mount, scheduler or worker)", n)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Outcome is what happened to one target.
type Outcome struct {
	Target Target
	Unit   string
	// Skipped holds the reason the target was not applied.
	Skipped string
	Result  service.Result
	Err     error
}

// Runner holds everything an apply needs. Managers are only consulted for
// targets that are enabled.
type Runner struct {
	Config  *config.Config
	Release hostos.Release

	Mount     service.Manager
	Scheduler service.Manager
	Worker    service.Manager

	Sources service.SourceState
	// ForceSourcesChanged restarts the worker even when its digest matches.
	ForceSourcesChanged bool

	// Executable and ConfigPath are written into the mount unit.
	Executable string
	ConfigPath string

	Logger *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// PlatformMatches reports whether the host passes the [platform] gate.
func (r *Runner) PlatformMatches() bool {
	p := r.Config.Platform
	return r.Release.Matches(p.Distribution, p.Version)
}

// Apply runs each target in order. A failing target does not stop the
// others; all errors are joined.
func (r *Runner) Apply(ctx context.Context, targets []Target) ([]Outcome, error) {
	log := r.logger()
	if !r.PlatformMatches() {
		p := r.Config.Platform
		log.Info("platform does not match, skipping all supervisors",
			"host", r.Release.String(), "distribution", p.Distribution, "version", p.Version)
		out := make([]Outcome, 0, len(targets))
		for _, t := range targets {
			out = append(out, Outcome{Target: t, Unit: r.unitName(t), Skipped: "platform mismatch"})
		}
		return out, nil
	}

	var (
		out  []Outcome
		errs []error
	)
	for _, t := range targets {
		o := r.applyTarget(ctx, t)
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, o.Err))
			log.Error("apply failed", "target", t, "error", o.Err)
		}
		out = append(out, o)
	}
	return out, errors.Join(errs...)
}

func (r *Runner) unitName(t Target) string {
	switch t {
	case TargetMount:
		return r.Config.Mount.Unit
	case TargetScheduler:
		return r.Config.Scheduler.Name
	default:
		return r.Config.Worker.Name
	}
}

func (r *Runner) applyTarget(ctx context.Context, t Target) Outcome {
	o := Outcome{Target: t, Unit: r.unitName(t)}
	log := r.logger().With("target", t)

	var (
		enabled bool
		mgr     service.Manager
		build   func() (service.Unit, error)
		digest  string
	)
	switch t {
	case TargetMount:
		enabled, mgr, build = r.Config.Mount.Enabled, r.Mount, r.mountUnit
	case TargetScheduler:
		enabled, mgr = r.Config.Scheduler.Enabled, r.Scheduler
		build = func() (service.Unit, error) { return service.DaemonUnit(service.RoleScheduler, r.Config.Scheduler) }
	case TargetWorker:
		enabled, mgr = r.Config.Worker.Enabled, r.Worker
		build = func() (u service.Unit, err error) {
			u, digest, err = r.workerUnit()
			return u, err
		}
	}
	if !enabled {
		log.Debug("disabled")
		o.Skipped = "disabled"
		return o
	}
	if mgr == nil {
		o.Err = errors.New("no service manager configured")
		return o
	}

	u, err := build()
	if err != nil {
		o.Err = err
		return o
	}
	o.Result, o.Err = service.NewReconciler(mgr, log).Apply(ctx, u)
	if o.Err == nil && digest != "" {
		if err := r.Sources.Record(u.Name, digest); err != nil {
			o.Err = fmt.Errorf("recording sources: %w", err)
		}
	}
	return o
}

func (r *Runner) mountUnit() (service.Unit, error) {
	f, err := mount.UnitFile(r.Config.Mount, r.Executable, r.ConfigPath)
	if err != nil {
		return service.Unit{}, err
	}
	return service.Unit{
		Name:            r.Config.Mount.Unit,
		Files:           []install.File{f},
		ReloadUnitCache: true,
	}, nil
}

// workerUnit builds the worker's unit and returns the digest of its source
// trees, recorded once the apply succeeds.
func (r *Runner) workerUnit() (service.Unit, string, error) {
	cfg := r.Config.Worker
	u, err := service.DaemonUnit(service.RoleWorker, cfg)
	if err != nil {
		return u, "", err
	}
	var digest string
	if len(cfg.Sources) > 0 {
		var changed bool
		digest, changed, err = r.Sources.Check(cfg.Name, cfg.Sources)
		if err != nil {
			return u, "", fmt.Errorf("checking sources: %w", err)
		}
		u.SourcesChanged = changed
	}
	if r.ForceSourcesChanged {
		u.SourcesChanged = true
	}
	return u, digest, nil
}

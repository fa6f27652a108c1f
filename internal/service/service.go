package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mbrock/hostkeep/internal/install"
)

// Manager is the host service manager as seen by the reconciler.
type Manager interface {
	// Registered reports whether the manager already knows the service.
	Registered(ctx context.Context, name string) (bool, error)
	// Reload makes the manager re-read unit definitions.
	Reload(ctx context.Context) error
	Start(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	// Enable arranges for the service to start at boot.
	Enable(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (Status, error)
}

// Status is a service's state as reported by its manager.
type Status struct {
	Registered bool
	Active     bool
	Enabled    bool
	Detail     string
}

// Unit is one managed daemon and the files that define it.
type Unit struct {
	Name  string
	Files []install.File
	// ReloadUnitCache reloads the manager after any file changed.
	ReloadUnitCache bool
	// SourcesChanged forces a restart of a registered service.
	SourcesChanged bool
}

// Result records what Apply did.
type Result struct {
	Unit           string
	Registered     bool
	ChangedFiles   []string
	SourcesChanged bool
	Reloaded       bool
	Restarted      bool
	Started        bool
	Enabled        bool
}

// Changed reports whether any file was written or re-permissioned.
func (r Result) Changed() bool {
	return len(r.ChangedFiles) > 0
}

// Reconciler applies Units through a Manager.
type Reconciler struct {
	Manager Manager
	Logger  *slog.Logger
}

// NewReconciler creates a Reconciler. A nil logger discards output.
func NewReconciler(m Manager, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{Manager: m, Logger: logger}
}

// Apply brings u to its desired state.
func (r *Reconciler) Apply(ctx context.Context, u Unit) (Result, error) {
	res := Result{Unit: u.Name, SourcesChanged: u.SourcesChanged}
	log := r.Logger.With("unit", u.Name)

	registered, err := r.Manager.Registered(ctx, u.Name)
	if err != nil {
		return res, fmt.Errorf("checking %s registration: %w", u.Name, err)
	}
	res.Registered = registered

	for _, f := range u.Files {
		changed, err := install.Ensure(f)
		if err != nil {
			return res, fmt.Errorf("installing %s: %w", f.Path, err)
		}
		if changed {
			log.Info("installed file", "path", f.Path, "mode", fmt.Sprintf("%04o", f.Mode.Perm()))
			res.ChangedFiles = append(res.ChangedFiles, f.Path)
		}
	}

	if res.Changed() && u.ReloadUnitCache {
		if err := r.Manager.Reload(ctx); err != nil {
			return res, fmt.Errorf("reloading unit cache: %w", err)
		}
		res.Reloaded = true
		log.Info("reloaded unit cache")
	}

	if !registered {
		if err := r.Manager.Start(ctx, u.Name); err != nil {
			return res, fmt.Errorf("starting %s: %w", u.Name, err)
		}
		res.Started = true
		if err := r.Manager.Enable(ctx, u.Name); err != nil {
			return res, fmt.Errorf("enabling %s: %w", u.Name, err)
		}
		res.Enabled = true
		log.Info("started and enabled new service")
		return res, nil
	}

	if res.Changed() || u.SourcesChanged {
		if err := r.Manager.Restart(ctx, u.Name); err != nil {
			return res, fmt.Errorf("restarting %s: %w", u.Name, err)
		}
		res.Restarted = true
		log.Info("restarted service", "files_changed", len(res.ChangedFiles), "sources_changed", u.SourcesChanged)
	} else {
		st, err := r.Manager.Status(ctx, u.Name)
		if err != nil {
			return res, fmt.Errorf("checking %s status: %w", u.Name, err)
		}
		if !st.Active {
			if err := r.Manager.Start(ctx, u.Name); err != nil {
				return res, fmt.Errorf("starting %s: %w", u.Name, err)
			}
			res.Started = true
			log.Info("started inactive service")
		}
		if st.Enabled {
			log.Debug("service up to date")
			return res, nil
		}
	}

	if err := r.Manager.Enable(ctx, u.Name); err != nil {
		return res, fmt.Errorf("enabling %s: %w", u.Name, err)
	}
	res.Enabled = true
	return res, nil
}

package service

import (
	"fmt"
	"os"

	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/install"
)

const (
	scriptMode   = 0o755
	settingsMode = 0o644
)

// DaemonUnit builds the Unit for a celery daemon: its init script copied
// from ScriptSource and its rendered /etc/default settings.
func DaemonUnit(role Role, cfg config.Service) (Unit, error) {
	script, err := os.ReadFile(cfg.ScriptSource)
	if err != nil {
		return Unit{}, fmt.Errorf("reading %s script: %w", cfg.Name, err)
	}
	settings, err := RenderSettings(role, cfg.Name, cfg.Celery, cfg.ConfigTemplate)
	if err != nil {
		return Unit{}, fmt.Errorf("rendering %s settings: %w", cfg.Name, err)
	}

	return Unit{
		Name: cfg.Name,
		Files: []install.File{
			{Path: cfg.ScriptPath, Content: script, Mode: scriptMode, Owner: cfg.Owner, Group: cfg.Group},
			{Path: cfg.ConfigPath, Content: settings, Mode: settingsMode, Owner: cfg.Owner, Group: cfg.Group},
		},
		ReloadUnitCache: cfg.ReloadUnitCache,
	}, nil
}

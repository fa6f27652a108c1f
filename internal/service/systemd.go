package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mbrock/hostkeep/internal/platform/systemd"
)

// SystemdManager controls services as systemd units over D-Bus.
type SystemdManager struct {
	systemd systemd.Systemd

	// SysV enables units that systemd-sysv-generator made from init
	// scripts and reports whether they start at boot. EnableUnitFiles
	// cannot link those; systemctl hands them to update-rc.d instead.
	SysV *SysVManager
}

var _ Manager = (*SystemdManager)(nil)

// NewSystemdManager wraps a Systemd connection.
func NewSystemdManager(sd systemd.Systemd) *SystemdManager {
	return &SystemdManager{systemd: sd}
}

func (m *SystemdManager) Registered(ctx context.Context, name string) (bool, error) {
	unit, err := m.systemd.GetUnit(ctx, systemd.ServiceUnit(name))
	if err != nil {
		return false, err
	}
	return unit.Loaded(), nil
}

func (m *SystemdManager) Reload(ctx context.Context) error {
	return m.systemd.Reload(ctx)
}

func (m *SystemdManager) Start(ctx context.Context, name string) error {
	return m.systemd.StartUnit(ctx, systemd.ServiceUnit(name))
}

func (m *SystemdManager) Restart(ctx context.Context, name string) error {
	return m.systemd.RestartUnit(ctx, systemd.ServiceUnit(name))
}

func (m *SystemdManager) Enable(ctx context.Context, name string) error {
	unit, err := m.systemd.GetUnit(ctx, systemd.ServiceUnit(name))
	if err != nil {
		return err
	}
	if unit.Generated() {
		if m.SysV == nil {
			return fmt.Errorf("%s is generated from an init script and no update-rc command is configured", unit.Name)
		}
		return m.SysV.Enable(ctx, name)
	}
	return m.systemd.EnableUnits(ctx, []string{unit.Name.String()})
}

func (m *SystemdManager) enabled(name string, unit *systemd.Unit) bool {
	if unit.Generated() {
		return m.SysV != nil && m.SysV.enabled(name)
	}
	return unit.Enabled()
}

func (m *SystemdManager) Status(ctx context.Context, name string) (Status, error) {
	unit, err := m.systemd.GetUnit(ctx, systemd.ServiceUnit(name))
	if err != nil {
		return Status{}, err
	}
	detail := string(unit.State)
	if unit.SubState != "" {
		detail += " (" + unit.SubState + ")"
	}
	if unit.Active() && !unit.Since.IsZero() {
		detail += " since " + unit.Since.Format(time.DateTime)
	}
	if unit.MainPID != 0 {
		detail += fmt.Sprintf(", pid %d", unit.MainPID)
	}
	if !unit.Loaded() {
		detail = unit.LoadState
	}
	return Status{
		Registered: unit.Loaded(),
		Active:     unit.Active(),
		Enabled:    m.enabled(name, unit),
		Detail:     detail,
	}, nil
}

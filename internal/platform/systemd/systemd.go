// Package systemd drives the systemd manager over D-Bus: unit inspection,
// start and restart jobs, daemon-reload and enabling unit files.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

const noSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"

// Systemd is the part of the systemd manager API hostkeep uses.
type Systemd interface {
	// GetUnit returns a unit's state. A unit systemd has never loaded is
	// reported with LoadState "not-found", not as an error.
	GetUnit(ctx context.Context, name UnitName) (*Unit, error)

	// StartUnit and RestartUnit queue a job and wait for its result.
	StartUnit(ctx context.Context, name UnitName) error
	RestartUnit(ctx context.Context, name UnitName) error

	// Reload is daemon-reload.
	Reload(ctx context.Context) error

	// EnableUnits links unit files into their [Install] targets.
	EnableUnits(ctx context.Context, units []string) error

	Close() error
}

type conn struct {
	bus *dbus.Conn
}

// Connect dials the system manager, or the per-user manager when user is set.
func Connect(ctx context.Context, user bool) (Systemd, error) {
	dial, which := dbus.NewSystemConnectionContext, "system"
	if user {
		dial, which = dbus.NewUserConnectionContext, "user"
	}
	bus, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s systemd: %w", which, err)
	}
	return &conn{bus: bus}, nil
}

func (c *conn) Close() error {
	c.bus.Close()
	return nil
}

func isNoSuchUnit(err error) bool {
	if e := (godbus.Error{}); errors.As(err, &e) {
		return e.Name == noSuchUnit
	}
	if e := (*godbus.Error)(nil); errors.As(err, &e) {
		return e.Name == noSuchUnit
	}
	return false
}

func (c *conn) GetUnit(ctx context.Context, name UnitName) (*Unit, error) {
	props, err := c.bus.GetUnitPropertiesContext(ctx, name.String())
	if isNoSuchUnit(err) {
		return &Unit{Name: name, LoadState: LoadStateNotFound, State: UnitStateInactive}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s properties: %w", name, err)
	}

	str := func(key string) string {
		s, _ := props[key].(string)
		return s
	}
	u := &Unit{
		Name:          name,
		LoadState:     str("LoadState"),
		State:         UnitState(str("ActiveState")),
		SubState:      str("SubState"),
		UnitFileState: str("UnitFileState"),
		Description:   str("Description"),
	}
	// microseconds since the epoch
	if us, ok := props["ActiveEnterTimestamp"].(uint64); ok && us > 0 {
		u.Since = time.UnixMicro(int64(us))
	}

	// Only service units have a main PID; other types just leave it zero.
	if svc, err := c.bus.GetUnitTypePropertiesContext(ctx, name.String(), "Service"); err == nil {
		u.MainPID, _ = svc["MainPID"].(uint32)
	}
	return u, nil
}

type enqueue func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// wait enqueues a job in "replace" mode and blocks until systemd reports a
// result. Any result other than "done" is an error.
func wait(ctx context.Context, verb string, name UnitName, fn enqueue) error {
	ch := make(chan string, 1)
	if _, err := fn(ctx, name.String(), "replace", ch); err != nil {
		return fmt.Errorf("%s %s: %w", verb, name, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("%s job for %s failed: %s", verb, name, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) StartUnit(ctx context.Context, name UnitName) error {
	return wait(ctx, "start", name, c.bus.StartUnitContext)
}

func (c *conn) RestartUnit(ctx context.Context, name UnitName) error {
	return wait(ctx, "restart", name, c.bus.RestartUnitContext)
}

func (c *conn) Reload(ctx context.Context) error {
	if err := c.bus.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

func (c *conn) EnableUnits(ctx context.Context, units []string) error {
	// runtime=false, force=true: persistent, replacing stale links
	if _, _, err := c.bus.EnableUnitFilesContext(ctx, units, false, true); err != nil {
		return fmt.Errorf("enabling %v: %w", units, err)
	}
	return nil
}

package systemd

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeSystemd is an in-memory implementation of Systemd for unit tests.
// Every call is appended to a log ("reload", "start celeryd.service", ...)
// so tests can assert on ordering.
type FakeSystemd struct {
	mu      sync.RWMutex
	units   map[UnitName]*Unit
	pending map[UnitName]string // UnitFileState of units that appear on the next reload
	calls   []string

	// Fail maps a call string (e.g. "reload", "restart celeryd.service") to
	// the error it should return.
	Fail map[string]error
}

// NewFakeSystemd creates a new FakeSystemd with empty state.
func NewFakeSystemd() *FakeSystemd {
	return &FakeSystemd{
		units:   make(map[UnitName]*Unit),
		pending: make(map[UnitName]string),
		Fail:    make(map[string]error),
	}
}

// AddUnit adds a loaded unit to the fake state.
func (f *FakeSystemd) AddUnit(unit Unit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if unit.LoadState == "" {
		unit.LoadState = "loaded"
	}
	if unit.State == "" {
		unit.State = UnitStateInactive
	}
	f.units[unit.Name] = &unit
}

// AddUnitFile simulates a unit file appearing on disk: the unit becomes
// loaded on the next Reload.
func (f *FakeSystemd) AddUnitFile(name UnitName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[name] = "disabled"
}

// AddInitScript simulates an /etc/init.d script: on the next Reload the
// unit is loaded in the "generated" state, as systemd-sysv-generator does.
func (f *FakeSystemd) AddInitScript(name UnitName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[name] = "generated"
}

// Calls returns the call log.
func (f *FakeSystemd) Calls() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.calls...)
}

// record logs a call and returns its configured failure, if any.
// Callers must hold f.mu.
func (f *FakeSystemd) record(call string) error {
	f.calls = append(f.calls, call)
	return f.Fail[call]
}

// GetUnit retrieves a single unit's properties.
func (f *FakeSystemd) GetUnit(ctx context.Context, name UnitName) (*Unit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	unit, ok := f.units[name]
	if !ok {
		return &Unit{Name: name, LoadState: LoadStateNotFound, State: UnitStateInactive}, nil
	}
	u := *unit
	return &u, nil
}

func (f *FakeSystemd) loaded(name UnitName) (*Unit, error) {
	unit, ok := f.units[name]
	if !ok {
		return nil, fmt.Errorf("unit %s not found", name)
	}
	return unit, nil
}

// StartUnit starts a loaded unit.
func (f *FakeSystemd) StartUnit(ctx context.Context, name UnitName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("start " + name.String()); err != nil {
		return err
	}
	unit, err := f.loaded(name)
	if err != nil {
		return err
	}
	if !unit.Active() {
		unit.State = UnitStateActive
		unit.Since = time.Now()
	}
	return nil
}

// RestartUnit restarts a loaded unit.
func (f *FakeSystemd) RestartUnit(ctx context.Context, name UnitName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("restart " + name.String()); err != nil {
		return err
	}
	unit, err := f.loaded(name)
	if err != nil {
		return err
	}
	unit.State = UnitStateActive
	unit.Since = time.Now()
	return nil
}

// Reload loads any pending unit files.
func (f *FakeSystemd) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reload"); err != nil {
		return err
	}
	for name, state := range f.pending {
		if _, ok := f.units[name]; !ok {
			f.units[name] = &Unit{Name: name, LoadState: "loaded", State: UnitStateInactive, UnitFileState: state}
		}
		delete(f.pending, name)
	}
	return nil
}

// EnableUnits marks units enabled. Like the real EnableUnitFiles call it
// fails for generated units, which have no unit file to link.
func (f *FakeSystemd) EnableUnits(ctx context.Context, units []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range units {
		if err := f.record("enable " + name); err != nil {
			return err
		}
		unit, err := f.loaded(UnitName(name))
		if err != nil {
			return err
		}
		if unit.Generated() {
			return fmt.Errorf("unit file %s does not exist", name)
		}
		unit.UnitFileState = "enabled"
	}
	return nil
}

// Close is a no-op.
func (f *FakeSystemd) Close() error {
	return nil
}

var _ Systemd = (*FakeSystemd)(nil)

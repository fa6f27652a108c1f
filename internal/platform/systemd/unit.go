package systemd

import (
	"strings"
	"time"
)

// UnitName is a typed systemd unit name.
type UnitName string

// ServiceUnit returns the .service unit name for a daemon name.
// "celeryd" -> "celeryd.service"; names that already carry a suffix are kept.
func ServiceUnit(name string) UnitName {
	if strings.Contains(name, ".") {
		return UnitName(name)
	}
	return UnitName(name + ".service")
}

// String returns the unit name as a string.
func (u UnitName) String() string {
	return string(u)
}

// UnitState represents the systemd active state.
type UnitState string

const (
	UnitStateActive       UnitState = "active"
	UnitStateReloading    UnitState = "reloading"
	UnitStateActivating   UnitState = "activating"
	UnitStateDeactivating UnitState = "deactivating"
	UnitStateInactive     UnitState = "inactive"
	UnitStateFailed       UnitState = "failed"
)

// LoadStateNotFound is the LoadState systemd reports for units it has no file for.
const LoadStateNotFound = "not-found"

// Unit represents a systemd unit with its properties.
type Unit struct {
	Name          UnitName
	LoadState     string // "loaded", "not-found", "masked", ...
	State         UnitState
	SubState      string
	UnitFileState string // "enabled", "disabled", "generated", ...
	Description   string
	Since         time.Time // entered the active state
	MainPID       uint32
}

// Loaded reports whether systemd knows the unit.
func (u Unit) Loaded() bool {
	return u.LoadState != "" && u.LoadState != LoadStateNotFound
}

// Active reports whether the unit is running or about to be.
func (u Unit) Active() bool {
	switch u.State {
	case UnitStateActive, UnitStateActivating, UnitStateReloading:
		return true
	}
	return false
}

// Generated reports whether a generator such as systemd-sysv-generator
// produced the unit. Such units have no unit file for EnableUnits to link,
// so whether they start at boot is decided outside systemd.
func (u Unit) Generated() bool {
	return u.UnitFileState == "generated"
}

// Enabled reports whether the unit starts at boot. Generated units are
// never reported enabled here.
func (u Unit) Enabled() bool {
	switch u.UnitFileState {
	case "enabled", "enabled-runtime", "static", "alias":
		return true
	}
	return false
}

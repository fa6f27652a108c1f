package mount

import (
	"errors"
	"time"

	"github.com/mbrock/hostkeep/internal/config"
)

// ErrRestartsExhausted is returned by Run when the restart policy gives up.
var ErrRestartsExhausted = errors.New("mount: restarts exhausted")

// Mode selects how the delay between bridge restarts grows.
type Mode string

const (
	ModeNever       Mode = "never"
	ModeFixed       Mode = "fixed"
	ModeExponential Mode = "exponential"
)

// Policy decides whether and when a failed bridge is started again.
type Policy struct {
	Mode        Mode
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 = unlimited
}

// PolicyFromConfig converts the [mount.restart] section.
func PolicyFromConfig(r config.Restart) Policy {
	return Policy{
		Mode:        Mode(r.Policy),
		Delay:       r.Delay.Duration,
		MaxDelay:    r.MaxDelay.Duration,
		MaxAttempts: r.MaxAttempts,
	}
}

// Next returns how long to wait after the given number of consecutive
// failures (starting at 1). ok is false when no further restart is allowed.
func (p Policy) Next(failures int) (wait time.Duration, ok bool) {
	if failures < 1 {
		failures = 1
	}
	if p.MaxAttempts > 0 && failures > p.MaxAttempts {
		return 0, false
	}
	switch p.Mode {
	case ModeFixed:
		return p.Delay, true
	case ModeExponential:
		wait = p.Delay
		for i := 1; i < failures; i++ {
			wait *= 2
			if p.MaxDelay > 0 && wait >= p.MaxDelay {
				return p.MaxDelay, true
			}
		}
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		return wait, true
	default:
		return 0, false
	}
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Duration is a time.Duration that decodes from TOML strings like "2s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Platform gates every supervisor on the host's distribution. Empty fields
// match anything.
type Platform struct {
	Distribution string `toml:"distribution"`
	Version      string `toml:"version"`
}

// Backend selects how the scheduler and worker daemons are controlled.
type Backend struct {
	// Kind is "sysv" (init.d scripts driven by the service command) or
	// "systemd" (units driven over D-Bus).
	Kind string `toml:"kind"`
	// UserBus connects to the per-user systemd instance instead of the system one.
	UserBus bool `toml:"user_bus"`

	ServiceCommand  string   `toml:"service_command"`
	UpdateRCCommand string   `toml:"update_rc_command"`
	ReloadCommand   []string `toml:"reload_command"`
}

// Restart describes what the mount supervisor does when the bridge exits non-zero.
type Restart struct {
	// Policy is one of "never", "fixed" or "exponential".
	Policy      string   `toml:"policy"`
	Delay       Duration `toml:"delay"`
	MaxDelay    Duration `toml:"max_delay"`
	MaxAttempts int      `toml:"max_attempts"` // 0 = unlimited
}

// Mount describes the SSH-backed filesystem bridge.
type Mount struct {
	Enabled     bool   `toml:"enabled"`
	Unit        string `toml:"unit"`
	Description string `toml:"description"`
	UnitDir     string `toml:"unit_dir"`

	RemoteHost   string   `toml:"remote_host"`
	RemotePath   string   `toml:"remote_path"`
	MountPoint   string   `toml:"mount_point"`
	IdentityFile string   `toml:"identity_file"`
	User         string   `toml:"user"`
	Port         int      `toml:"port"`
	Marker       string   `toml:"marker"`
	Options      []string `toml:"options"`

	SSHFS      string `toml:"sshfs"`
	Fusermount string `toml:"fusermount"`

	// PreflightAddress (host:port) enables an SFTP check of RemotePath before mounting.
	PreflightAddress string   `toml:"preflight_address"`
	PreflightUser    string   `toml:"preflight_user"`
	PreflightTimeout Duration `toml:"preflight_timeout"`

	After    []string `toml:"after"`
	Requires []string `toml:"requires"`
	WantedBy []string `toml:"wanted_by"`

	Restart Restart `toml:"restart"`
}

// Celery holds the values rendered into /etc/default/<name>.
type Celery struct {
	Bin         string            `toml:"bin"`
	App         string            `toml:"app"`
	ChDir       string            `toml:"chdir"`
	Nodes       []string          `toml:"nodes"`
	Concurrency int               `toml:"concurrency"`
	Pool        string            `toml:"pool"`
	TimeLimit   int               `toml:"time_limit"`
	Schedule    string            `toml:"schedule"`
	ExtraOpts   string            `toml:"extra_opts"`
	LogFile     string            `toml:"log_file"`
	LogLevel    string            `toml:"log_level"`
	PidFile     string            `toml:"pid_file"`
	User        string            `toml:"user"`
	Group       string            `toml:"group"`
	CreateDirs  bool              `toml:"create_dirs"`
	Environment map[string]string `toml:"environment"`
}

// Service describes one init-script managed daemon (celeryd or celerybeat).
type Service struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`

	ScriptSource   string `toml:"script_source"`
	ScriptPath     string `toml:"script_path"`
	ConfigPath     string `toml:"config_path"`
	ConfigTemplate string `toml:"config_template"`
	Owner          string `toml:"owner"`
	Group          string `toml:"group"`

	// ReloadUnitCache runs a daemon-reload after script or config changes.
	ReloadUnitCache bool `toml:"reload_unit_cache"`

	// Sources are trees whose content changes restart the daemon (worker only).
	Sources []string `toml:"sources"`

	Celery Celery `toml:"celery"`
}

// Config encapsulates all configuration values for hostkeep.
//
// Configuration sections:
//   - Logging: log level and format
//   - Platform: distribution/version gate
//   - Backend: how celery daemons are controlled
//   - Mount: the sshfs bridge and its systemd unit
//   - Scheduler: celerybeat
//   - Worker: celeryd
type Config struct {
	Logging   Logging  `toml:"logging"`
	Platform  Platform `toml:"platform"`
	Backend   Backend  `toml:"backend"`
	Mount     Mount    `toml:"mount"`
	Scheduler Service  `toml:"scheduler"`
	Worker    Service  `toml:"worker"`
}

// SampleConfig returns an annotated example configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load parses, normalizes and validates the configuration at path. exists
// reports whether the file was found; a missing file is not an error and
// yields the defaults, which enable nothing.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config: %w", err)
	}

	if err := Parse(data, &cfg); err != nil {
		return nil, true, err
	}
	return &cfg, true, nil
}

// Parse decodes data over cfg, then normalizes and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("parse config: line %d column %d: %w", row, col, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

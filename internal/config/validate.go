package config

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
)

// envName matches names a POSIX shell accepts after export.
var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateMount(); err != nil {
		return err
	}
	if err := c.Scheduler.validate("scheduler"); err != nil {
		return err
	}
	if len(c.Scheduler.Sources) > 0 {
		return errors.New("scheduler.sources is not supported; only the worker restarts on source changes")
	}
	if err := c.Worker.validate("worker"); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.Backend.Kind {
	case "sysv":
		if c.Backend.ServiceCommand == "" {
			return errors.New("backend.service_command must be set for the sysv backend")
		}
	case "systemd":
	default:
		return fmt.Errorf("backend.kind %q must be sysv or systemd", c.Backend.Kind)
	}
	return nil
}

func (c *Config) validateMount() error {
	m := c.Mount
	if !m.Enabled {
		return nil
	}
	if m.Unit == "" {
		return errors.New("mount.unit must be set")
	}
	if m.RemoteHost == "" {
		return errors.New("mount.remote_host must be set")
	}
	if m.RemotePath == "" {
		return errors.New("mount.remote_path must be set")
	}
	if !filepath.IsAbs(m.MountPoint) {
		return fmt.Errorf("mount.mount_point %q must be an absolute path", m.MountPoint)
	}
	if m.IdentityFile == "" {
		return errors.New("mount.identity_file must be set")
	}
	if m.Port < 0 || m.Port > 65535 {
		return fmt.Errorf("mount.port %d out of range", m.Port)
	}
	if m.Marker == "" || filepath.IsAbs(m.Marker) {
		return fmt.Errorf("mount.marker %q must be a path relative to the mount point", m.Marker)
	}
	return m.Restart.validate()
}

func (r Restart) validate() error {
	switch r.Policy {
	case "never":
		return nil
	case "fixed", "exponential":
	default:
		return fmt.Errorf("mount.restart.policy %q must be never, fixed or exponential", r.Policy)
	}
	if r.Delay.Duration <= 0 {
		return errors.New("mount.restart.delay must be positive")
	}
	if r.Policy == "exponential" && r.MaxDelay.Duration < r.Delay.Duration {
		return errors.New("mount.restart.max_delay must not be shorter than mount.restart.delay")
	}
	if r.MaxAttempts < 0 {
		return errors.New("mount.restart.max_attempts must not be negative")
	}
	return nil
}

func (s Service) validate(section string) error {
	for _, key := range slices.Sorted(maps.Keys(s.Celery.Environment)) {
		if !envName.MatchString(key) {
			return fmt.Errorf("%s.celery.environment key %q is not a valid shell variable name", section, key)
		}
	}
	if !s.Enabled {
		return nil
	}
	if s.Name == "" {
		return fmt.Errorf("%s.name must be set", section)
	}
	if s.ScriptSource == "" {
		return fmt.Errorf("%s.script_source must be set", section)
	}
	for key, p := range map[string]string{"script_path": s.ScriptPath, "config_path": s.ConfigPath} {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%s.%s %q must be an absolute path", section, key, p)
		}
	}
	if s.Celery.App == "" {
		return fmt.Errorf("%s.celery.app must be set", section)
	}
	if s.Celery.Concurrency < 0 {
		return fmt.Errorf("%s.celery.concurrency must not be negative", section)
	}
	return nil
}

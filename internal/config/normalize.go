package config

import (
	"path/filepath"
	"strings"
)

func (c *Config) normalize() {
	c.normalizeLogging()
	c.Backend.Kind = strings.ToLower(strings.TrimSpace(c.Backend.Kind))
	c.normalizeMount()
	c.Scheduler.normalize()
	c.Worker.normalize()
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) normalizeMount() {
	m := &c.Mount
	m.RemoteHost = strings.TrimSpace(m.RemoteHost)
	m.Restart.Policy = strings.ToLower(strings.TrimSpace(m.Restart.Policy))
	if m.MountPoint != "" {
		m.MountPoint = filepath.Clean(m.MountPoint)
	}
	if m.Description == "" && m.RemoteHost != "" {
		m.Description = "Mount " + m.RemoteHost + ":" + m.RemotePath + " at " + m.MountPoint
	}
	m.Unit = strings.TrimSuffix(strings.TrimSpace(m.Unit), ".service")
}

func (s *Service) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return
	}
	if s.ScriptPath == "" {
		s.ScriptPath = filepath.Join("/etc/init.d", s.Name)
	}
	if s.ConfigPath == "" {
		s.ConfigPath = filepath.Join("/etc/default", s.Name)
	}
	for i, src := range s.Sources {
		s.Sources[i] = filepath.Clean(src)
	}
}

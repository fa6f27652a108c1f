// Package dirs provides standard directory resolution for hostkeep.
// Every directory can be overridden from the environment, which is how
// tests and unprivileged runs point hostkeep away from /etc and /var.
package dirs

import (
	"os"
	"os/user"
	"path/filepath"
)

// DefaultConfigPath is where hostkeep looks for its configuration when
// neither --config nor $HOSTKEEP_CONFIG is given.
const DefaultConfigPath = "/etc/hostkeep/hostkeep.toml"

// ConfigPath returns the configuration file path.
// Priority: $HOSTKEEP_CONFIG > /etc/hostkeep/hostkeep.toml
func ConfigPath() string {
	if v := os.Getenv("HOSTKEEP_CONFIG"); v != "" {
		return v
	}
	return DefaultConfigPath
}

// StateDir returns the directory for persistent state (source digests).
// Priority: $HOSTKEEP_STATE_DIR > /var/lib/hostkeep (root) > $XDG_STATE_HOME/hostkeep > ~/.local/state/hostkeep
func StateDir() string {
	if v := os.Getenv("HOSTKEEP_STATE_DIR"); v != "" {
		return v
	}
	if os.Geteuid() == 0 {
		return "/var/lib/hostkeep"
	}
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, "hostkeep")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "state", "hostkeep")
	}
	return filepath.Join(os.TempDir(), "hostkeep-state")
}

// RuntimeDir returns the directory for ephemeral runtime data (the apply lock).
// Priority: $HOSTKEEP_RUNTIME_DIR > /run/hostkeep (root) > $XDG_RUNTIME_DIR/hostkeep > $TMPDIR/hostkeep-$USER
func RuntimeDir() string {
	if v := os.Getenv("HOSTKEEP_RUNTIME_DIR"); v != "" {
		return v
	}
	if os.Geteuid() == 0 {
		return "/run/hostkeep"
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "hostkeep")
	}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return filepath.Join(os.TempDir(), "hostkeep-"+username)
}

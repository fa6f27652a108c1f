package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mbrock/hostkeep/internal/executor"
	"github.com/mbrock/hostkeep/internal/install"
)

// SysVManager controls init.d scripts through the service and update-rc.d
// commands.
type SysVManager struct {
	Executor executor.Executor
	// InitDir holds the init scripts; a service is registered when its
	// script exists there.
	InitDir string
	// RCDir is the root holding rc?.d link farms, normally /etc.
	RCDir           string
	ServiceCommand  string
	UpdateRCCommand string
	// ReloadCommand re-reads unit definitions; empty makes Reload a no-op.
	ReloadCommand []string
	Logger        *slog.Logger
}

var _ Manager = (*SysVManager)(nil)

func (m *SysVManager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

func (m *SysVManager) run(ctx context.Context, cmd ...string) ([]byte, error) {
	m.logger().Debug("running", "cmd", strings.Join(cmd, " "))
	return executor.Run(ctx, m.Executor, cmd)
}

func (m *SysVManager) Registered(ctx context.Context, name string) (bool, error) {
	return install.Exists(filepath.Join(m.InitDir, name))
}

func (m *SysVManager) Reload(ctx context.Context) error {
	if len(m.ReloadCommand) == 0 {
		m.logger().Debug("no reload command configured")
		return nil
	}
	_, err := m.run(ctx, m.ReloadCommand...)
	return err
}

func (m *SysVManager) Start(ctx context.Context, name string) error {
	_, err := m.run(ctx, m.ServiceCommand, name, "start")
	return err
}

func (m *SysVManager) Restart(ctx context.Context, name string) error {
	_, err := m.run(ctx, m.ServiceCommand, name, "restart")
	return err
}

func (m *SysVManager) Enable(ctx context.Context, name string) error {
	if m.UpdateRCCommand == "" {
		return fmt.Errorf("no update-rc command configured to enable %s", name)
	}
	_, err := m.run(ctx, m.UpdateRCCommand, name, "defaults")
	return err
}

// Status runs "service NAME status"; LSB scripts exit 0 only when running.
func (m *SysVManager) Status(ctx context.Context, name string) (Status, error) {
	registered, err := m.Registered(ctx, name)
	if err != nil {
		return Status{}, err
	}
	if !registered {
		return Status{Detail: "not installed"}, nil
	}

	st := Status{Registered: true, Enabled: m.enabled(name)}
	out, err := m.run(ctx, m.ServiceCommand, name, "status")
	switch code, isExit := executor.ExitCode(err); {
	case err == nil:
		st.Active = true
		st.Detail = "running"
	case isExit:
		st.Detail = fmt.Sprintf("stopped (status %d)", code)
	default:
		return Status{}, err
	}
	if line := firstLine(out); line != "" {
		st.Detail += ": " + line
	}
	return st, nil
}

// enabled looks for a start link in any rc?.d directory.
func (m *SysVManager) enabled(name string) bool {
	root := m.RCDir
	if root == "" {
		root = "/etc"
	}
	matches, _ := filepath.Glob(filepath.Join(root, "rc[2-5].d", "S[0-9][0-9]"+name))
	return len(matches) > 0
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Package mount supervises an sshfs bridge that exposes a remote directory
// at a local mount point.
//
// A leftover mount from a previous run is detected through a marker file
// that only exists on the remote side: if MountPoint/Marker is visible
// before mounting, the old mount is lazily unmounted first.
package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/executor"
)

// Supervisor runs and tears down one sshfs mount.
type Supervisor struct {
	cfg    config.Mount
	policy Policy
	exec   executor.Executor
	logger *slog.Logger

	// Output receives the bridge's stdout and stderr.
	Output io.Writer

	// wait sleeps for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a Supervisor for cfg. A nil logger discards output.
func NewSupervisor(cfg config.Mount, exec executor.Executor, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{
		cfg:    cfg,
		policy: PolicyFromConfig(cfg.Restart),
		exec:   exec,
		logger: logger.With("mount_point", cfg.MountPoint),
		Output: os.Stderr,
		wait:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remote returns the HOST:PATH source handed to sshfs.
func (s *Supervisor) Remote() string {
	return s.cfg.RemoteHost + ":" + s.cfg.RemotePath
}

// Command returns the sshfs command line. The bridge always runs in the
// foreground so its lifetime is the supervisor's.
func (s *Supervisor) Command() []string {
	args := []string{s.cfg.SSHFS, "-f"}
	opt := func(o string) { args = append(args, "-o", o) }

	if s.cfg.IdentityFile != "" {
		opt("IdentityFile=" + s.cfg.IdentityFile)
	}
	opt("StrictHostKeyChecking=no")
	opt("UserKnownHostsFile=/dev/null")
	for _, o := range s.cfg.Options {
		opt(o)
	}
	if s.cfg.Port > 0 {
		opt("port=" + strconv.Itoa(s.cfg.Port))
	}
	return append(args, s.Remote(), s.cfg.MountPoint)
}

func (s *Supervisor) unmountCommand() []string {
	return []string{s.cfg.Fusermount, "-u", "-z", s.cfg.MountPoint}
}

func (s *Supervisor) markerPath() string {
	return filepath.Join(s.cfg.MountPoint, s.cfg.Marker)
}

// Prepare readies the mount point. A visible marker means a previous mount
// is still attached, so it is unmounted first. Unmount failures are logged
// and otherwise ignored.
func (s *Supervisor) Prepare(ctx context.Context) error {
	_, err := os.Stat(s.markerPath())
	switch {
	case err == nil:
		s.logger.Info("marker present, unmounting stale mount", "marker", s.markerPath())
		if _, err := executor.Run(ctx, s.exec, s.unmountCommand()); err != nil {
			s.logger.Warn("stale unmount failed", "error", err)
		}
	case errors.Is(err, unix.ENOTCONN):
		s.logger.Info("mount point disconnected, unmounting")
		if _, err := executor.Run(ctx, s.exec, s.unmountCommand()); err != nil {
			s.logger.Warn("stale unmount failed", "error", err)
		}
	}

	if err := os.MkdirAll(s.cfg.MountPoint, 0o755); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}
	return nil
}

// Stop unmounts the mount point. The unmount is attempted whether or not a
// mount ever succeeded; its failure is only an error if the mount point is
// still mounted afterwards.
func (s *Supervisor) Stop(ctx context.Context) error {
	_, err := executor.Run(ctx, s.exec, s.unmountCommand())
	if err == nil {
		s.logger.Info("unmounted")
		return nil
	}
	mounted, merr := s.Mounted()
	if merr == nil && !mounted {
		s.logger.Debug("unmount failed on unmounted path", "error", err)
		return nil
	}
	return fmt.Errorf("unmounting %s: %w", s.cfg.MountPoint, err)
}

// Mounted reports whether MountPoint is a mount point: its device differs
// from its parent's. A disconnected FUSE mount counts as mounted.
func (s *Supervisor) Mounted() (bool, error) {
	return isMountPoint(s.cfg.MountPoint)
}

func isMountPoint(path string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		switch {
		case errors.Is(err, unix.ENOTCONN):
			return true, nil
		case errors.Is(err, unix.ENOENT):
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := unix.Stat(filepath.Dir(path), &parent); err != nil {
		return false, fmt.Errorf("stat %s: %w", filepath.Dir(path), err)
	}
	if st.Dev != parent.Dev {
		return true, nil
	}
	// "/" and bind mounts of a directory onto itself
	return st.Ino == parent.Ino, nil
}

// Run keeps the bridge up. Each attempt starts with Prepare. A zero exit
// ends Run; a non-zero exit is retried as the restart policy allows, after
// which ErrRestartsExhausted is returned. Cancelling ctx kills the bridge
// and unmounts.
func (s *Supervisor) Run(ctx context.Context) error {
	for failures := 0; ; {
		if err := s.Prepare(ctx); err != nil {
			return err
		}

		code, err := s.runBridge(ctx)
		if ctx.Err() != nil {
			s.logger.Info("shutting down")
			return s.Stop(context.WithoutCancel(ctx))
		}
		if err == nil && code == 0 {
			s.logger.Info("bridge exited cleanly")
			return nil
		}

		failures++
		if err == nil {
			err = &executor.ExitError{Command: s.Command(), Code: code}
		}
		delay, ok := s.policy.Next(failures)
		if !ok {
			return fmt.Errorf("%w after %d failures: %w", ErrRestartsExhausted, failures, err)
		}
		s.logger.Warn("bridge failed, restarting", "error", err, "failures", failures, "delay", delay)
		if err := s.wait(ctx, delay); err != nil {
			return s.Stop(context.WithoutCancel(ctx))
		}
	}
}

func (s *Supervisor) runBridge(ctx context.Context) (int, error) {
	cmd := s.Command()
	s.logger.Info("starting bridge", "remote", s.Remote())
	p, err := s.exec.Start(cmd, nil, s.Output, s.Output)
	if err != nil {
		return -1, fmt.Errorf("starting %s: %w", cmd[0], err)
	}
	return executor.WaitContext(ctx, p)
}

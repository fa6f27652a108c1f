package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/executor"
)

func testConfig(t *testing.T) config.Mount {
	t.Helper()
	cfg := config.Default().Mount
	cfg.Enabled = true
	cfg.RemoteHost = "storage"
	cfg.RemotePath = "/srv/crx"
	cfg.MountPoint = filepath.Join(t.TempDir(), "crx")
	cfg.IdentityFile = "/home/dbling/.ssh/id_rsa"
	cfg.User = "dbling"
	return cfg
}

// newTestSupervisor returns a supervisor whose waits are recorded instead
// of slept.
func newTestSupervisor(t *testing.T, cfg config.Mount, fe *executor.FakeExecutor) (*Supervisor, *[]time.Duration) {
	t.Helper()
	s := NewSupervisor(cfg, fe, nil)
	s.Output = io.Discard
	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	s.wait = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waits = append(waits, d)
		return ctx.Err()
	}
	return s, &waits
}

func exitWith(code int) executor.FakeCommand {
	return func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
		return code
	}
}

func TestCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 2222
	s := NewSupervisor(cfg, executor.NewFakeExecutor(), nil)

	want := []string{
		"sshfs", "-f",
		"-o", "IdentityFile=/home/dbling/.ssh/id_rsa",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "cache=no",
		"-o", "allow_other",
		"-o", "port=2222",
		"storage:/srv/crx", cfg.MountPoint,
	}
	if diff := cmp.Diff(want, s.Command()); diff != "" {
		t.Errorf("Command() (-want +got):\n%s", diff)
	}
}

func TestRun_MarkerTriggersUnmountBeforeMount(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.MountPoint, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.MountPoint, cfg.Marker), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	fe := executor.NewFakeExecutor()
	fe.Succeed("fusermount")
	fe.Succeed("sshfs")
	s, _ := newTestSupervisor(t, cfg, fe)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := fe.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %v", calls)
	}
	if diff := cmp.Diff([]string{"fusermount", "-u", "-z", cfg.MountPoint}, calls[0]); diff != "" {
		t.Errorf("first call (-want +got):\n%s", diff)
	}
	if calls[1][0] != "sshfs" {
		t.Errorf("second call = %v, want sshfs", calls[1])
	}
}

func TestRun_NoMarkerMountsDirectly(t *testing.T) {
	cfg := testConfig(t)
	fe := executor.NewFakeExecutor()
	fe.Succeed("sshfs")
	s, _ := newTestSupervisor(t, cfg, fe)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(fe.CallsTo("fusermount")); n != 0 {
		t.Errorf("fusermount called %d times", n)
	}
	if info, err := os.Stat(cfg.MountPoint); err != nil || !info.IsDir() {
		t.Errorf("mount point not created: %v", err)
	}
}

func TestPrepare_UnmountFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.MountPoint, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.MountPoint, cfg.Marker), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	fe := executor.NewFakeExecutor()
	fe.RegisterCommand("fusermount", exitWith(1))
	s, _ := newTestSupervisor(t, cfg, fe)

	if err := s.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if n := len(fe.CallsTo("fusermount")); n != 1 {
		t.Errorf("fusermount called %d times", n)
	}
}

func TestStop_AlwaysAttemptsUnmount(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.MountPoint, 0o755); err != nil {
		t.Fatal(err)
	}
	fe := executor.NewFakeExecutor()
	fe.RegisterCommand("fusermount", func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
		fmt.Fprintf(stderr, "fusermount: entry for %s not found in /etc/mtab\n", args[len(args)-1])
		return 1
	})
	s, _ := newTestSupervisor(t, cfg, fe)

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop on unmounted path: %v", err)
	}
	want := [][]string{{"fusermount", "-u", "-z", cfg.MountPoint}}
	if diff := cmp.Diff(want, fe.Calls()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestRun_RestartsWithBackoff(t *testing.T) {
	cfg := testConfig(t)
	fe := executor.NewFakeExecutor()
	var (
		mu       sync.Mutex
		attempts int
	)
	fe.RegisterCommand("sshfs", func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts <= 3 {
			return 1
		}
		return 0
	})
	s, waits := newTestSupervisor(t, cfg, fe)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if diff := cmp.Diff(want, *waits); diff != "" {
		t.Errorf("waits (-want +got):\n%s", diff)
	}
	if n := len(fe.CallsTo("sshfs")); n != 4 {
		t.Errorf("sshfs started %d times, want 4", n)
	}
}

func TestRun_NeverPolicyGivesUp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Restart = config.Restart{Policy: "never"}
	fe := executor.NewFakeExecutor()
	fe.RegisterCommand("sshfs", exitWith(1))
	s, waits := newTestSupervisor(t, cfg, fe)

	err := s.Run(context.Background())
	if !errors.Is(err, ErrRestartsExhausted) {
		t.Fatalf("Run err = %v, want ErrRestartsExhausted", err)
	}
	if code, ok := executor.ExitCode(err); !ok || code != 1 {
		t.Errorf("ExitCode = %d, %v", code, ok)
	}
	if len(*waits) != 0 || len(fe.CallsTo("sshfs")) != 1 {
		t.Errorf("waits = %v, sshfs calls = %d", *waits, len(fe.CallsTo("sshfs")))
	}
}

func TestRun_MaxAttempts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Restart.MaxAttempts = 2
	fe := executor.NewFakeExecutor()
	fe.RegisterCommand("sshfs", exitWith(1))
	s, _ := newTestSupervisor(t, cfg, fe)

	if err := s.Run(context.Background()); !errors.Is(err, ErrRestartsExhausted) {
		t.Fatalf("Run err = %v", err)
	}
	if n := len(fe.CallsTo("sshfs")); n != 3 {
		t.Errorf("sshfs started %d times, want 3", n)
	}
}

func TestRun_CancelKillsBridgeAndUnmounts(t *testing.T) {
	cfg := testConfig(t)
	fe := executor.NewFakeExecutor()
	fe.Succeed("fusermount")
	started := make(chan struct{})
	fe.RegisterCommand("sshfs", func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
		close(started)
		<-ctx.Done()
		return 143
	})
	s, _ := newTestSupervisor(t, cfg, fe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n := len(fe.CallsTo("fusermount")); n != 1 {
		t.Errorf("fusermount called %d times, want 1", n)
	}
}

func TestMounted(t *testing.T) {
	s := NewSupervisor(testConfig(t), executor.NewFakeExecutor(), nil)
	if ok, err := s.Mounted(); err != nil || ok {
		t.Errorf("missing mount point: Mounted() = %v, %v", ok, err)
	}

	if ok, err := isMountPoint(t.TempDir()); err != nil || ok {
		t.Errorf("plain directory: %v, %v", ok, err)
	}
	if ok, err := isMountPoint("/"); err != nil || !ok {
		t.Errorf("root: %v, %v", ok, err)
	}
}

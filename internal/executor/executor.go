// Package executor starts host commands (sshfs, fusermount, service,
// update-rc.d) behind an interface so supervisors can run against fakes.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// StopGrace is how long WaitContext lets a process handle SIGTERM before
// it is killed. sshfs unmounts cleanly on SIGTERM.
var StopGrace = 5 * time.Second

// Process is a started command.
type Process interface {
	// Wait blocks until exit. A process that ran and exited non-zero
	// reports its code with a nil error.
	Wait() (exitCode int, err error)
	Kill() error
	Signal(sig syscall.Signal) error
}

// Executor starts commands. cmd[0] is looked up in PATH.
type Executor interface {
	Start(cmd []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error)
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command []string
	Code    int
	Output  []byte
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", strings.Join(e.Command, " "), e.Code)
	if out := strings.TrimSpace(string(e.Output)); out != "" {
		msg += ": " + out
	}
	return msg
}

// ExitCode extracts the code from an *ExitError in err's chain. ok is false
// when there is none, including when the command never started.
func ExitCode(err error) (code int, ok bool) {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return 0, false
}

// OS runs real commands through os/exec.
type OS struct{}

// Default returns the os/exec backed Executor.
func Default() Executor {
	return OS{}
}

func (OS) Start(cmd []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error) {
	if len(cmd) == 0 {
		return nil, errors.New("empty command")
	}
	c := exec.Command(cmd[0], cmd[1:]...)
	c.Env = os.Environ()
	c.Stdin, c.Stdout, c.Stderr = stdin, stdout, stderr
	if err := c.Start(); err != nil {
		return nil, err
	}
	return osProcess{c}, nil
}

type osProcess struct {
	cmd *exec.Cmd
}

func (p osProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	var ee *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &ee):
		return ee.ExitCode(), nil
	default:
		return 1, err
	}
}

func (p osProcess) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

func (p osProcess) Signal(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}

// WaitContext waits for p. If ctx ends first the process gets SIGTERM, then
// SIGKILL after StopGrace, and ctx.Err() is returned once it is reaped.
func WaitContext(ctx context.Context, p Process) (int, error) {
	type exit struct {
		code int
		err  error
	}
	done := make(chan exit, 1)
	go func() {
		code, err := p.Wait()
		done <- exit{code, err}
	}()

	select {
	case e := <-done:
		return e.code, e.err
	case <-ctx.Done():
	}

	_ = p.Signal(syscall.SIGTERM)
	grace := time.NewTimer(StopGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		_ = p.Kill()
		<-done
	}
	return -1, ctx.Err()
}

// Run starts cmd and waits for it, returning stdout and stderr combined.
// A non-zero exit is an *ExitError.
func Run(ctx context.Context, e Executor, cmd []string) ([]byte, error) {
	var out bytes.Buffer
	p, err := e.Start(cmd, nil, &out, &out)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", cmd[0], err)
	}
	code, err := WaitContext(ctx, p)
	if err != nil {
		return out.Bytes(), fmt.Errorf("waiting for %s: %w", cmd[0], err)
	}
	if code != 0 {
		return out.Bytes(), &ExitError{Command: cmd, Code: code, Output: out.Bytes()}
	}
	return out.Bytes(), nil
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"syscall"
)

// FakeCommand stands in for an executable. It returns the exit code; ctx is
// cancelled when the process is signalled to stop.
type FakeCommand func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int

// FakeExecutor runs FakeCommands by name and logs every command line.
type FakeExecutor struct {
	mu       sync.Mutex
	commands map[string]FakeCommand
	calls    [][]string
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{commands: make(map[string]FakeCommand)}
}

// RegisterCommand makes name (cmd[0]) run fn. Registering again replaces it.
func (e *FakeExecutor) RegisterCommand(name string, fn FakeCommand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands[name] = fn
}

// Succeed registers name as a command that always exits 0.
func (e *FakeExecutor) Succeed(name string) {
	e.RegisterCommand(name, func(context.Context, io.Reader, io.Writer, io.Writer, []string) int {
		return 0
	})
}

// Calls returns every command line started so far, in order.
func (e *FakeExecutor) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

// CallsTo filters Calls by executable.
func (e *FakeExecutor) CallsTo(name string) [][]string {
	var out [][]string
	for _, c := range e.Calls() {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func (e *FakeExecutor) Start(cmd []string, stdin io.Reader, stdout, stderr io.Writer) (Process, error) {
	if len(cmd) == 0 {
		return nil, errors.New("empty command")
	}
	e.mu.Lock()
	e.calls = append(e.calls, slices.Clone(cmd))
	fn, ok := e.commands[cmd[0]]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("executable %q not found", cmd[0])
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProcess{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer cancel()
		p.code = fn(ctx, stdin, stdout, stderr, cmd)
	}()
	return p, nil
}

type fakeProcess struct {
	cancel context.CancelFunc
	done   chan struct{}
	code   int // written before done is closed
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

func (p *fakeProcess) Kill() error {
	p.cancel()
	return nil
}

func (p *fakeProcess) Signal(sig syscall.Signal) error {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGKILL:
		p.cancel()
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbrock/hostkeep/internal/apply"
	"github.com/mbrock/hostkeep/internal/dirs"
	"github.com/mbrock/hostkeep/internal/lock"
)

func cmdApply(ctx context.Context, args []string) {
	targets, err := apply.ParseTargets(args)
	if err != nil {
		fatal("%v", err)
	}
	outcomes, err := runApply(ctx, runLogger(), targets)
	printOutcomes(outcomes)
	if err != nil {
		fatal("%v", err)
	}
}

// runApply holds the apply lock for the duration of one apply.
func runApply(ctx context.Context, log *slog.Logger, targets []apply.Target) ([]apply.Outcome, error) {
	l := lock.New(filepath.Join(dirs.RuntimeDir(), "apply.lock"))
	if err := l.Acquire(ctx, lockTimeoutFlag); err != nil {
		return nil, err
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.Warn("releasing apply lock", "error", err)
		}
	}()

	r, closeRunner, err := newRunner(ctx, log)
	if err != nil {
		return nil, err
	}
	defer closeRunner()

	log.Debug("applying", "targets", targets, "host", r.Release.String())
	return r.Apply(ctx, targets)
}

func printOutcomes(outcomes []apply.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{string(o.Target), o.Unit, describeOutcome(o)})
	}
	fmt.Fprintln(os.Stdout, renderTable([]string{"Target", "Unit", "Result"}, rows))
}

func describeOutcome(o apply.Outcome) string {
	switch {
	case o.Skipped != "":
		return "skipped: " + o.Skipped
	case o.Err != nil:
		return "failed: " + o.Err.Error()
	}

	res := o.Result
	var did []string
	if n := len(res.ChangedFiles); n > 0 {
		did = append(did, fmt.Sprintf("%d file(s) updated", n))
	}
	if res.SourcesChanged {
		did = append(did, "sources changed")
	}
	if res.Reloaded {
		did = append(did, "reloaded")
	}
	if res.Restarted {
		did = append(did, "restarted")
	}
	if res.Started {
		did = append(did, "started")
	}
	if res.Enabled {
		did = append(did, "enabled")
	}
	if len(did) == 0 {
		return "unchanged"
	}
	return strings.Join(did, ", ")
}

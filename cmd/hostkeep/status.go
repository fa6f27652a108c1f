package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mbrock/hostkeep/internal/apply"
)

func cmdStatus(ctx context.Context) {
	r, closeRunner, err := newRunner(ctx, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer closeRunner()

	platform := "matches"
	if !r.PlatformMatches() {
		platform = "does not match, apply skips everything"
	}
	fmt.Printf("host: %s (%s)\n", r.Release.String(), platform)

	var rows [][]string
	for _, row := range r.Status(ctx) {
		rows = append(rows, statusRow(row))
	}
	fmt.Fprintln(os.Stdout, renderTable(
		[]string{"Target", "Unit", "Registered", "Active", "Enabled", "Detail"},
		rows, 2, 3, 4))
}

func statusRow(row apply.StatusRow) []string {
	if !row.Configured {
		return []string{string(row.Target), row.Unit, "-", "-", "-", "disabled in config"}
	}
	detail := row.Status.Detail
	if row.Target == apply.TargetMount {
		if row.Mounted {
			detail += ", mounted"
		} else {
			detail += ", not mounted"
		}
	}
	if row.Err != nil {
		detail = "error: " + row.Err.Error()
	}
	return []string{
		string(row.Target),
		row.Unit,
		yesNo(row.Status.Registered),
		yesNo(row.Status.Active),
		yesNo(row.Status.Enabled),
		detail,
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

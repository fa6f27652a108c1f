package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbrock/hostkeep/internal/executor"
	"github.com/mbrock/hostkeep/internal/mount"
)

// cmdMount is what the mount's systemd unit invokes.
func cmdMount(ctx context.Context, verb string) {
	mc := cfg.Mount
	if !mc.Enabled {
		fatal("mount is not enabled in %s", configFlag)
	}
	sup := mount.NewSupervisor(mc, executor.Default(), logger)

	switch verb {
	case "prepare":
		if err := sup.Prepare(ctx); err != nil {
			fatal("%v", err)
		}
	case "run":
		if err := sup.Preflight(ctx); err != nil && !errors.Is(err, mount.ErrPreflightDisabled) {
			fatal("preflight: %v", err)
		}
		if err := sup.Run(ctx); err != nil {
			fatal("%v", err)
		}
	case "stop":
		if err := sup.Stop(ctx); err != nil {
			fatal("%v", err)
		}
	case "check":
		err := sup.Preflight(ctx)
		if errors.Is(err, mount.ErrPreflightDisabled) {
			fatal("set mount.preflight_address to enable the check")
		}
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("ok: %s is reachable\n", sup.Remote())
	case "unit":
		exe, err := os.Executable()
		if err != nil {
			fatal("locating executable: %v", err)
		}
		configPath, err := filepath.Abs(configFlag)
		if err != nil {
			fatal("%v", err)
		}
		f, err := mount.UnitFile(mc, exe, configPath)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("# %s\n%s", f.Path, f.Content)
	default:
		fatal("unknown mount command %q (want prepare, run, stop, check or unit)", verb)
	}
}

package mount

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/install"
)

const unitMode = 0o644

// UnitOptions returns the systemd unit that runs the supervisor through
// exe. configPath is passed back to every hostkeep invocation.
func UnitOptions(cfg config.Mount, exe, configPath string) []*unit.UnitOption {
	self := func(verb string) string {
		return execLine(exe, "--config", configPath, "mount", verb)
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", cfg.Description),
	}
	if len(cfg.After) > 0 {
		opts = append(opts, unit.NewUnitOption("Unit", "After", strings.Join(cfg.After, " ")))
	}
	if len(cfg.Requires) > 0 {
		opts = append(opts, unit.NewUnitOption("Unit", "Requires", strings.Join(cfg.Requires, " ")))
	}

	opts = append(opts, unit.NewUnitOption("Service", "Type", "simple"))
	if cfg.User != "" {
		opts = append(opts, unit.NewUnitOption("Service", "User", cfg.User))
	}
	opts = append(opts,
		// "-" tolerates a failed stale unmount.
		unit.NewUnitOption("Service", "ExecStartPre", "-"+self("prepare")),
		unit.NewUnitOption("Service", "ExecStart", self("run")),
		unit.NewUnitOption("Service", "ExecStop", self("stop")),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", restartSec(cfg.Restart.Delay.Duration)),
	)

	for _, target := range cfg.WantedBy {
		opts = append(opts, unit.NewUnitOption("Install", "WantedBy", target))
	}
	return opts
}

// UnitFile renders UnitOptions into the file installed under UnitDir.
func UnitFile(cfg config.Mount, exe, configPath string) (install.File, error) {
	content, err := io.ReadAll(unit.Serialize(UnitOptions(cfg, exe, configPath)))
	if err != nil {
		return install.File{}, fmt.Errorf("serializing unit: %w", err)
	}
	return install.File{
		Path:    filepath.Join(cfg.UnitDir, cfg.Unit+".service"),
		Content: content,
		Mode:    unitMode,
	}, nil
}

func restartSec(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// execLine joins args for an Exec*= setting, quoting words that contain
// whitespace or quotes.
func execLine(args ...string) string {
	words := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		words[i] = a
	}
	return strings.Join(words, " ")
}

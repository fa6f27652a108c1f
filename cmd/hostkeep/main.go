// hostkeep - keep an sshfs mount and the celery daemons running
//
// Usage:
//
//	hostkeep apply [mount|scheduler|worker]...   Install, reload, restart as needed
//	hostkeep status                              Show every supervisor's state
//	hostkeep mount prepare|run|stop|check|unit   Mount supervisor entry points
//	hostkeep watch                               Re-apply when sources or config change
//	hostkeep config                              Print a sample configuration
//	hostkeep version                             Print the version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/mbrock/hostkeep/internal/apply"
	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/dirs"
	"github.com/mbrock/hostkeep/internal/executor"
	"github.com/mbrock/hostkeep/internal/hostos"
	"github.com/mbrock/hostkeep/internal/logging"
	"github.com/mbrock/hostkeep/internal/platform/systemd"
	"github.com/mbrock/hostkeep/internal/service"
)

var version = "dev"

// Global flags
var (
	configFlag         string
	logLevelFlag       string
	logFormatFlag      string
	backendFlag        string
	lockTimeoutFlag    time.Duration
	sourcesChangedFlag bool
	debounceFlag       time.Duration
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var connectSystemd = systemd.Connect

func main() {
	flag.StringVarP(&configFlag, "config", "c", dirs.ConfigPath(), "Configuration file (overrides HOSTKEEP_CONFIG)")
	flag.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.StringVar(&logFormatFlag, "log-format", "", "Log format: text, json (overrides config)")
	flag.StringVar(&backendFlag, "backend", "", "Daemon backend: sysv, systemd (overrides config)")
	flag.DurationVar(&lockTimeoutFlag, "lock-timeout", 30*time.Second, "How long apply waits for another apply to finish")
	flag.BoolVar(&sourcesChangedFlag, "sources-changed", false, "Restart the worker as if its sources changed")
	flag.DurationVar(&debounceFlag, "debounce", 2*time.Second, "Quiet period before watch re-applies")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `hostkeep - keep an sshfs mount and the celery daemons running

Usage:
  hostkeep apply [mount|scheduler|worker]...   Install, reload, restart as needed
  hostkeep status                              Show every supervisor's state
  hostkeep mount prepare                       Unmount a stale mount (ExecStartPre)
  hostkeep mount run                           Run the sshfs bridge (ExecStart)
  hostkeep mount stop                          Unmount (ExecStop)
  hostkeep mount check                         SSH/SFTP preflight of the remote path
  hostkeep mount unit                          Print the mount's systemd unit
  hostkeep watch                               Re-apply when sources or config change
  hostkeep config                              Print a sample configuration
  hostkeep version                             Print the version

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "version":
		fmt.Println("hostkeep", version)
		return
	case "config":
		fmt.Print(config.SampleConfig())
		return
	}

	initConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "apply":
		cmdApply(ctx, cmdArgs)
	case "status":
		cmdStatus(ctx)
	case "mount":
		if len(cmdArgs) != 1 {
			fatal("usage: hostkeep mount prepare|run|stop|check|unit")
		}
		cmdMount(ctx, cmdArgs[0])
	case "watch":
		cmdWatch(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// initConfig loads the configuration and sets up logging. Flags override
// the file.
func initConfig() {
	var (
		exists bool
		err    error
	)
	cfg, exists, err = config.Load(configFlag)
	if err != nil {
		fatal("%v", err)
	}
	if backendFlag != "" {
		cfg.Backend.Kind = backendFlag
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = logFormatFlag
	}
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	logger, err = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fatal("%v", err)
	}
	slog.SetDefault(logger)
	if !exists {
		logger.Warn("config file not found, nothing is enabled", "path", configFlag)
	}
}

// newRunner wires the service managers for the configured backend. The
// mount is always a systemd unit.
func newRunner(ctx context.Context, log *slog.Logger) (*apply.Runner, func(), error) {
	release, err := hostos.Detect()
	if err != nil {
		log.Warn("cannot identify host distribution", "error", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("locating executable: %w", err)
	}
	configPath, err := filepath.Abs(configFlag)
	if err != nil {
		return nil, nil, err
	}

	r := &apply.Runner{
		Config:              cfg,
		Release:             release,
		Sources:             service.SourceState{Dir: dirs.StateDir()},
		ForceSourcesChanged: sourcesChangedFlag,
		Executable:          exe,
		ConfigPath:          configPath,
		Logger:              log,
	}

	var sd systemd.Systemd
	closeRunner := func() {
		if sd != nil {
			sd.Close()
		}
	}
	if cfg.Mount.Enabled || cfg.Backend.Kind == "systemd" {
		sd, err = connectSystemd(ctx, cfg.Backend.UserBus)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to systemd: %w", err)
		}
	}

	if cfg.Mount.Enabled {
		r.Mount = service.NewSystemdManager(sd)
	}
	switch cfg.Backend.Kind {
	case "systemd":
		// init.d scripts show up as generated units; update-rc.d enables them.
		scheduler := service.NewSystemdManager(sd)
		scheduler.SysV = sysvManager(cfg.Scheduler, log)
		worker := service.NewSystemdManager(sd)
		worker.SysV = sysvManager(cfg.Worker, log)
		r.Scheduler, r.Worker = scheduler, worker
	default:
		r.Scheduler = sysvManager(cfg.Scheduler, log)
		r.Worker = sysvManager(cfg.Worker, log)
	}

	return r, closeRunner, nil
}

func sysvManager(svc config.Service, log *slog.Logger) *service.SysVManager {
	return &service.SysVManager{
		Executor:        executor.Default(),
		InitDir:         filepath.Dir(svc.ScriptPath),
		RCDir:           "/etc",
		ServiceCommand:  cfg.Backend.ServiceCommand,
		UpdateRCCommand: cfg.Backend.UpdateRCCommand,
		ReloadCommand:   cfg.Backend.ReloadCommand,
		Logger:          log.With("unit", svc.Name),
	}
}

// runLogger tags everything one apply logs with a fresh run id.
func runLogger() *slog.Logger {
	return logger.With("run", uuid.NewString())
}

package main

import (
	"context"
	"os"

	"github.com/mbrock/hostkeep/internal/apply"
	"github.com/mbrock/hostkeep/internal/config"
	"github.com/mbrock/hostkeep/internal/watch"
)

// cmdWatch re-runs apply for the scheduler and worker whenever their
// sources, init scripts, templates or the config file change. Config edits
// take effect on the next change event.
func cmdWatch(ctx context.Context) {
	paths := watchPaths(cfg)
	if len(paths) == 0 {
		fatal("nothing to watch: enable the scheduler or worker")
	}

	w, err := watch.New(paths, debounceFlag, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer w.Close()

	logger.Info("watching", "paths", paths, "debounce", debounceFlag)
	err = w.Run(ctx, func(ctx context.Context, changed []string) error {
		log := runLogger()
		log.Info("re-applying", "changed", changed)

		next, _, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		next.Backend.Kind = cfg.Backend.Kind
		cfg = next

		_, err = runApply(ctx, log, []apply.Target{apply.TargetScheduler, apply.TargetWorker})
		return err
	})
	if err != nil {
		fatal("%v", err)
	}
}

func watchPaths(c *config.Config) []string {
	var paths []string
	for _, svc := range []config.Service{c.Scheduler, c.Worker} {
		if !svc.Enabled {
			continue
		}
		paths = append(paths, svc.ScriptSource)
		if svc.ConfigTemplate != "" {
			paths = append(paths, svc.ConfigTemplate)
		}
		paths = append(paths, svc.Sources...)
	}
	if len(paths) == 0 {
		return nil
	}
	if _, err := os.Stat(configFlag); err == nil {
		paths = append(paths, configFlag)
	}
	return paths
}

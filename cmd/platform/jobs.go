package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/easeaico/storefront-cs/internal/agent"
	"github.com/easeaico/storefront-cs/internal/config"
)

// startJobs runs the periodic memory prune and, when configured, the
// periodic reload of operator files.
func startJobs(ctx context.Context, engine *agent.Engine, cfg config.Config) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if cfg.PruneSchedule != "" {
		if _, err := c.AddFunc(cfg.PruneSchedule, func() {
			sessions, users := engine.PruneExpired(ctx)
			slog.Info("memory pruned", "sessions", sessions, "users", users)
		}); err != nil {
			return nil, fmt.Errorf("invalid PRUNE_SCHEDULE %q: %w", cfg.PruneSchedule, err)
		}
	}

	if cfg.ReloadSchedule != "" {
		if _, err := c.AddFunc(cfg.ReloadSchedule, func() {
			loaded := engine.ReloadPromptDocs()
			if err := engine.ReloadMediaLibrary(); err != nil {
				slog.Warn("scheduled media reload failed", "error", err.Error())
			}
			if err := engine.ReloadRuleConfigs(); err != nil {
				slog.Warn("scheduled rule reload failed", "error", err.Error())
			}
			if err := engine.ReloadKnowledge(ctx); err != nil {
				slog.Warn("scheduled knowledge reload failed", "error", err.Error())
			}
			slog.Debug("operator files reloaded", "prompt_docs", loaded)
		}); err != nil {
			return nil, fmt.Errorf("invalid RELOAD_SCHEDULE %q: %w", cfg.ReloadSchedule, err)
		}
	}

	c.Start()
	return c, nil
}

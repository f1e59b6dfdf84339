package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/devrev/pairdb/contextmap/internal/config"
	"github.com/devrev/pairdb/contextmap/internal/contextmap"
	"github.com/devrev/pairdb/contextmap/internal/errors"
	"github.com/devrev/pairdb/contextmap/internal/health"
	"github.com/devrev/pairdb/contextmap/internal/model"
	"github.com/devrev/pairdb/contextmap/internal/server"
	"github.com/devrev/pairdb/contextmap/internal/service"
	"github.com/devrev/pairdb/contextmap/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	ServeMetrics bool
	StopOnError  bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay SCRIPT...",
		Short: "Replay scripts against fresh indexes and check expectations",
		Long: `Replay each script against its own empty index and report every step.

Scripts run concurrently; reports are printed in argument order.

Exit codes:
  0 - Every step met its expectation
  1 - At least one step did not
  2 - Command error (bad config, unreadable or invalid script)

Examples:
  contextmap replay scenario.yaml
  contextmap replay --format yaml a.yaml b.yaml
  contextmap replay --config contextmap.yaml --serve-metrics load.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.ServeMetrics, "serve-metrics", false, "keep serving metrics and probes after the replay until interrupted")
	cmd.Flags().BoolVar(&opts.StopOnError, "stop-on-error", false, "stop a script at its first failed step")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, paths []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, err := newLogger(cfg.Logging, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	defer func() { _ = logger.Sync() }()

	policy, err := contextmap.ParsePolicy(cfg.Index.DefaultPolicy)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid default policy", err)
	}

	scripts := make([]*model.Script, 0, len(paths))
	for _, path := range paths {
		script, err := service.LoadScript(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load script", err)
		}
		scripts = append(scripts, script)
	}

	var (
		reg     *prometheus.Registry
		metrics *server.MetricsServer
		hc      = health.NewHealthChecker(logger)
	)
	if cfg.Metrics.Enabled || opts.ServeMetrics {
		reg = prometheus.NewRegistry()
		hc.Register(health.GoroutineCheck(10000))
		metrics = server.NewMetricsServer(&server.MetricsServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, reg, hc, logger)
		if err := metrics.Start(); err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server stop failed", zap.Error(err))
			}
		}()
		hc.SetReadiness(true)
	}

	svc := service.NewReplayService(replayConfig(cfg, policy, opts.StopOnError),
		validation.NewValidatorWithLimits(cfg.Validation.MaxKeySize, cfg.Validation.MaxValueSize, cfg.Validation.MaxSteps),
		registerer(reg), logger)

	logger.Info("Replaying scripts",
		zap.Int("scripts", len(scripts)),
		zap.String("default_policy", policy.String()),
		zap.Int("workers", cfg.Replay.Workers))

	reports, errs := svc.ReplayAll(ctx, scripts)

	if err := writeReports(cmd.OutOrStdout(), opts.Format, reports); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		msg := fmt.Sprintf("script %s", scripts[i].Source)
		if errors.IsIndexError(err) {
			msg = fmt.Sprintf("%s (%s)", msg, errors.StatusOf(err).Code())
		}
		return WrapExitError(ExitCommandError, msg, err)
	}

	if opts.ServeMetrics {
		logger.Info("Serving metrics until interrupted", zap.String("addr", metrics.Addr()))
		<-ctx.Done()
	}

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scripts failed", failed, len(reports)))
	}
	return nil
}

func replayConfig(cfg *config.Config, policy contextmap.Policy, stopOnError bool) *service.ReplayConfig {
	return &service.ReplayConfig{
		DefaultPolicy: policy,
		StopOnError:   cfg.Replay.StopOnError || stopOnError,
		Workers:       cfg.Replay.Workers,
		QueueSize:     cfg.Replay.QueueSize,
		Timeout:       cfg.Replay.Timeout,
	}
}

// registerer avoids handing the service a typed nil registry
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func writeReports(w io.Writer, format string, reports []*model.Report) error {
	if format == "yaml" {
		return service.WriteYAML(w, reports)
	}
	return service.WriteText(w, reports)
}

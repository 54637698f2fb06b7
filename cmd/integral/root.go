package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/integral/internal/infrastructure/config"
	"github.com/GriffinCanCode/integral/internal/infrastructure/logging"
	"github.com/GriffinCanCode/integral/internal/runner"
)

// cliFlags holds every flag; a flag only overrides the configuration when it
// was set on the command line.
type cliFlags struct {
	configPath string
	logLevel   string
	logDev     bool
	reportPath string

	size    int
	rank    int
	density int
	threads int

	listenAddr      string
	coordinatorAddr string
	metricsAddr     string
	replyTimeout    time.Duration
	connectTimeout  time.Duration
	connectAttempts int

	statusAddr string
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	root := &cobra.Command{
		Use:   "integral",
		Short: "Distributed trapezoidal integration with pull-based dispatch",
		Long: `integral integrates f(x) = 1/(1+x) over [start, end].

The interval is split into 100 * multiplier packets. A coordinator hands one
packet to each idle worker and gives the next packet to whichever worker
answers first, so faster workers do more of the work.

Configuration is layered: defaults, then --config (YAML or TOML), then
environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "configuration file (.yaml, .yml or .toml)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&f.logDev, "log-dev", false, "human-readable console logs")

	root.AddCommand(
		newLocalCmd(f),
		newCoordinatorCmd(f),
		newWorkerCmd(f),
		newRunCmd(f),
		newStatusCmd(f),
	)
	return root
}

func addKernelFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().IntVar(&f.density, "density", 0, "trapezoid sub-steps per packet")
	cmd.Flags().IntVar(&f.threads, "threads", 0, "goroutines per packet")
}

func addCoordinatorFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().StringVar(&f.reportPath, "report", "", "write a JSON run report to this path")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve /health, /status and /metrics on this address")
	cmd.Flags().DurationVar(&f.replyTimeout, "reply-timeout", 0, "fail when no reply arrives within this long (0 waits forever)")
}

func addGroupFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().IntVarP(&f.size, "size", "n", 0, "group size, coordinator included")
}

func addWorkerFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().IntVar(&f.rank, "rank", 0, "this process's rank")
	cmd.Flags().StringVar(&f.coordinatorAddr, "coordinator", "", "coordinator address")
	cmd.Flags().DurationVar(&f.connectTimeout, "connect-timeout", 0, "timeout per connection attempt")
	cmd.Flags().IntVar(&f.connectAttempts, "connect-attempts", 0, "give up after this many failed attempts")
}

// setup loads the configuration, applies changed flags and builds the logger.
func setup(cmd *cobra.Command, f *cliFlags) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Layer(f.configPath)
	if err != nil {
		return nil, nil, &runner.StartupError{Reason: "load configuration", Err: err}
	}
	f.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, &runner.StartupError{Reason: "invalid configuration", Err: err}
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		// An unusable log setting never stops a run
		logger = fallbackLogger(cfg.Logging.Development)
		logger.Warn("Falling back to the default logger", zap.String("level", cfg.Logging.Level), zap.Error(err))
	}
	logger.Debug("Configuration loaded",
		zap.String("file", f.configPath),
		zap.Int("size", cfg.Group.Size),
		zap.Int("rank", cfg.Group.Rank),
		zap.Int("density", cfg.Run.Density))
	return cfg, logger, nil
}

func fallbackLogger(development bool) *logging.Logger {
	if development {
		return logging.NewDevelopment()
	}
	return logging.NewDefault()
}

func (f *cliFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("log-dev") {
		cfg.Logging.Development = f.logDev
	}
	if changed("size") {
		cfg.Group.Size = f.size
	}
	if changed("rank") {
		cfg.Group.Rank = f.rank
	}
	if changed("density") {
		cfg.Run.Density = f.density
	}
	if changed("threads") {
		cfg.Run.KernelThreads = f.threads
	}
	if changed("listen") {
		cfg.Transport.ListenAddr = f.listenAddr
	}
	if changed("coordinator") {
		cfg.Transport.CoordinatorAddr = f.coordinatorAddr
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("reply-timeout") {
		cfg.Transport.ReplyTimeout = config.Duration(f.replyTimeout)
	}
	if changed("connect-timeout") {
		cfg.Transport.ConnectTimeout = config.Duration(f.connectTimeout)
	}
	if changed("connect-attempts") {
		cfg.Transport.ConnectAttempts = f.connectAttempts
	}
}

func runnerFor(cmd *cobra.Command, f *cliFlags, cfg *config.Config, logger *logging.Logger) *runner.Runner {
	return runner.New(cfg, logger,
		runner.WithOutput(cmd.OutOrStdout()),
		runner.WithReport(f.reportPath))
}

func positional(args []string) (runner.Params, error) {
	p, err := runner.ParseParams(args)
	if err != nil {
		return runner.Params{}, fmt.Errorf("usage: %s: %w", runner.Usage, err)
	}
	return p, nil
}
